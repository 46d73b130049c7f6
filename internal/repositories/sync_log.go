package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// DefaultLogLimit is the number of entries returned when no limit is given.
const DefaultLogLimit = 50

// SyncLogRepository is the append-only audit trail of sync runs.
type SyncLogRepository struct {
	db *sql.DB
}

// NewSyncLogRepository creates a new [SyncLogRepository] with the given database connection
func NewSyncLogRepository(db *sql.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Append inserts an entry, filling in its ID and timestamp when missing. Entries are never updated.
func (r *SyncLogRepository) Append(entry *models.SyncLogEntry) error {
	if entry.JobID == "" || entry.Subject == "" {
		return fmt.Errorf("%w: log entry needs a job and subject", shared.ErrInvalidInput)
	}
	if entry.ID == "" {
		entry.ID = shared.GenerateID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sync_logs (id, job_id, subject, platform, action, status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, entry.ID, entry.JobID, entry.Subject, entry.Platform, entry.Action,
		entry.Status, nullString(entry.Message), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries for subject, optionally narrowed to one job.
func (r *SyncLogRepository) ListRecent(subject, jobID string, limit int) ([]*models.SyncLogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	query := `
		SELECT id, job_id, subject, platform, action, status, message, created_at
		FROM sync_logs
		WHERE subject = ?
	`
	args := []any{subject}
	if jobID != "" {
		query += " AND job_id = ?"
		args = append(args, jobID)
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.SyncLogEntry
	for rows.Next() {
		var (
			entry            models.SyncLogEntry
			platform, status string
			message          sql.NullString
			createdAt        time.Time
		)
		err := rows.Scan(&entry.ID, &entry.JobID, &entry.Subject, &platform, &entry.Action, &status, &message, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		entry.Platform = models.Platform(platform)
		entry.Status = models.RunStatus(status)
		entry.Message = message.String
		entry.CreatedAt = createdAt.UTC()
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Stats aggregates the overall run entries of subject, in total and per job.
func (r *SyncLogRepository) Stats(subject string) (*models.Stats, error) {
	query := `
		SELECT job_id, status, created_at
		FROM sync_logs
		WHERE subject = ? AND platform = ? AND action = ?
		ORDER BY seq ASC
	`
	rows, err := r.db.Query(query, subject, models.AllPlatform, models.ActionRun)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync stats: %w", err)
	}
	defer rows.Close()

	stats := &models.Stats{PerJob: []models.JobStats{}}
	perJob := make(map[string]int)

	for rows.Next() {
		var (
			jobID, status string
			createdAt     time.Time
		)
		if err := rows.Scan(&jobID, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync stats: %w", err)
		}
		at := createdAt.UTC()

		stats.TotalRuns++
		switch models.RunStatus(status) {
		case models.RunSuccess:
			stats.SuccessCount++
		case models.RunPartial:
			stats.PartialCount++
		default:
			stats.FailedCount++
		}
		stats.LastRun = &at

		i, ok := perJob[jobID]
		if !ok {
			i = len(stats.PerJob)
			perJob[jobID] = i
			stats.PerJob = append(stats.PerJob, models.JobStats{JobID: jobID})
		}
		js := &stats.PerJob[i]
		js.Runs++
		if models.RunStatus(status) == models.RunSuccess {
			js.Successes++
		}
		js.LastRun = &at
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return stats, nil
}
