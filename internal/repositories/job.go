package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// JobRepository implements [models.Repository] for [models.SyncJob] persistence.
//
// Destinations live in sync_job_destinations and are always read and written together with their job.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new [JobRepository] with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, sequence, subject, source_platform, source_playlist_id, status, last_run_at, last_status, created_at, updated_at`

// Create inserts a new job and its destinations with a generated ID and sequence
func (r *JobRepository) Create(job *models.SyncJob) error {
	if job.Status == "" {
		job.Status = models.JobActive
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(r.db, "sync_jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now().UTC()
	job.ID = shared.GenerateID()
	job.Sequence = sequence
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO sync_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(query, job.ID, job.Sequence, job.Subject, job.SourcePlatform, job.SourcePlaylistID,
		job.Status, lastRunArg(job), nullString(string(job.LastStatus)), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	if err := insertDestinations(tx, job, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID, excluding soft-deleted jobs
func (r *JobRepository) Get(id string) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = ? AND deleted_at IS NULL`
	return r.getOne(query, id)
}

// Find resolves a job reference typed by a user: a full ID, a sequence number or a unique ID prefix.
func (r *JobRepository) Find(ref string) (*models.SyncJob, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if ref == "" {
		return nil, fmt.Errorf("%w: job reference is empty", shared.ErrInvalidInput)
	}

	if seq, err := strconv.Atoi(ref); err == nil {
		query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE sequence = ? AND deleted_at IS NULL`
		if job, err := r.getOne(query, seq); err == nil || !errors.Is(err, shared.ErrJobNotFound) {
			return job, err
		}
	}

	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id LIKE ? AND deleted_at IS NULL LIMIT 2`
	jobs, err := r.query(query, ref+"%")
	if err != nil {
		return nil, err
	}
	switch len(jobs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, ref)
	case 1:
		return jobs[0], nil
	default:
		return nil, fmt.Errorf("%w: job reference %q is ambiguous", shared.ErrInvalidInput, ref)
	}
}

// Update writes the job's mutable fields and replaces its destinations
func (r *JobRepository) Update(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	job.UpdatedAt = now

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE sync_jobs
		SET source_playlist_id = ?, status = ?, last_run_at = ?, last_status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := tx.Exec(query, job.SourcePlaylistID, job.Status, lastRunArg(job), nullString(string(job.LastStatus)), now, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if err := expectOneRow(result, "job", job.ID, shared.ErrJobNotFound); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM sync_job_destinations WHERE job_id = ?`, job.ID); err != nil {
		return fmt.Errorf("failed to clear destinations: %w", err)
	}
	if err := insertDestinations(tx, job, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}
	return nil
}

// Delete soft-deletes a job by ID. Its sync log history is kept.
func (r *JobRepository) Delete(id string) error {
	now := time.Now().UTC()

	query := `UPDATE sync_jobs SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`
	result, err := r.db.Exec(query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return expectOneRow(result, "job", id, shared.ErrJobNotFound)
}

// List retrieves jobs matching the criteria, ordered by sequence.
//
// Supported criteria are "subject" (string) and "status" ([models.JobStatus] or string).
func (r *JobRepository) List(criteria map[string]any) ([]*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE deleted_at IS NULL`
	args := []any{}

	if subject, ok := criteria["subject"].(string); ok && subject != "" {
		query += " AND subject = ?"
		args = append(args, subject)
	}

	switch status := criteria["status"].(type) {
	case models.JobStatus:
		query += " AND status = ?"
		args = append(args, string(status))
	case string:
		if status != "" {
			query += " AND status = ?"
			args = append(args, status)
		}
	}

	query += " ORDER BY sequence ASC"
	return r.query(query, args...)
}

// SetDestinationPlaylist records the playlist created for a destination so later runs reuse it.
func (r *JobRepository) SetDestinationPlaylist(jobID string, platform models.Platform, playlistID string) error {
	query := `UPDATE sync_job_destinations SET playlist_id = ?, updated_at = ? WHERE job_id = ? AND platform = ?`
	result, err := r.db.Exec(query, playlistID, time.Now().UTC(), jobID, platform)
	if err != nil {
		return fmt.Errorf("failed to update destination: %w", err)
	}
	return expectOneRow(result, "destination", jobID+"/"+string(platform), shared.ErrJobNotFound)
}

// RecordRun stores the outcome of a run and the job status it leads to.
func (r *JobRepository) RecordRun(jobID string, status models.RunStatus, at time.Time, jobStatus models.JobStatus) error {
	query := `
		UPDATE sync_jobs
		SET last_run_at = ?, last_status = ?, status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := r.db.Exec(query, at.UTC(), string(status), jobStatus, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return expectOneRow(result, "job", jobID, shared.ErrJobNotFound)
}

// SetStatus changes the lifecycle status of a job.
func (r *JobRepository) SetStatus(jobID string, status models.JobStatus) error {
	query := `UPDATE sync_jobs SET status = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`
	result, err := r.db.Exec(query, status, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return expectOneRow(result, "job", jobID, shared.ErrJobNotFound)
}

func (r *JobRepository) getOne(query string, arg any) (*models.SyncJob, error) {
	job, err := scanJob(r.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", shared.ErrJobNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}

	dests, err := r.destinations(job.ID)
	if err != nil {
		return nil, err
	}
	job.Destinations = dests[job.ID]
	return job, nil
}

func (r *JobRepository) query(query string, args ...any) ([]*models.SyncJob, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	if len(jobs) == 0 {
		return jobs, nil
	}

	dests, err := r.destinations("")
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		job.Destinations = dests[job.ID]
	}
	return jobs, nil
}

// destinations loads destinations grouped by job, for one job or for every live job when jobID is empty.
func (r *JobRepository) destinations(jobID string) (map[string][]models.Destination, error) {
	query := `
		SELECT d.job_id, d.platform, d.playlist_id, d.playlist_name
		FROM sync_job_destinations d
		JOIN sync_jobs j ON j.id = d.job_id
		WHERE j.deleted_at IS NULL
	`
	args := []any{}
	if jobID != "" {
		query += " AND d.job_id = ?"
		args = append(args, jobID)
	}
	query += " ORDER BY d.job_id, d.position ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query destinations: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Destination)
	for rows.Next() {
		var (
			id, platform, name string
			playlistID         sql.NullString
		)
		if err := rows.Scan(&id, &platform, &playlistID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan destination: %w", err)
		}
		out[id] = append(out[id], models.Destination{
			Platform:     models.Platform(platform),
			PlaylistID:   playlistID.String,
			PlaylistName: name,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func insertDestinations(tx *sql.Tx, job *models.SyncJob, now time.Time) error {
	query := `
		INSERT INTO sync_job_destinations (job_id, platform, position, playlist_id, playlist_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for i, d := range job.Destinations {
		if _, err := tx.Exec(query, job.ID, d.Platform, i, nullString(d.PlaylistID), d.PlaylistName, now, now); err != nil {
			return fmt.Errorf("failed to insert destination %s: %w", d.Platform, err)
		}
	}
	return nil
}

func scanJob(s scanner) (*models.SyncJob, error) {
	var (
		job                  models.SyncJob
		source, status       string
		lastRunAt            sql.NullTime
		lastStatus           sql.NullString
		createdAt, updatedAt time.Time
	)

	err := s.Scan(&job.ID, &job.Sequence, &job.Subject, &source, &job.SourcePlaylistID, &status, &lastRunAt,
		&lastStatus, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.SourcePlatform = models.Platform(source)
	job.Status = models.JobStatus(status)
	job.LastRunAt = timePtr(lastRunAt)
	job.LastStatus = models.RunStatus(lastStatus.String)
	job.CreatedAt = createdAt.UTC()
	job.UpdatedAt = updatedAt.UTC()
	return &job, nil
}

func lastRunArg(job *models.SyncJob) sql.NullTime {
	if job.LastRunAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: job.LastRunAt.UTC(), Valid: true}
}
