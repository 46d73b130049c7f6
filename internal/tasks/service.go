package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// RecentLogLimit is the number of log entries returned by [SyncService.ListRecentLogs].
const RecentLogLimit = 50

// SyncService is the surface used by the CLI, the TUI and the daemon API.
type SyncService struct {
	adapters  Adapters
	creds     Credentials
	jobs      JobStore
	logs      LogStore
	scheduler *Scheduler
	logger    *log.Logger
}

// NewSyncService creates a service. Manual runs go through scheduler so they never overlap a scheduled run.
func NewSyncService(adapters Adapters, creds Credentials, jobs JobStore, logs LogStore, scheduler *Scheduler, logger *log.Logger) *SyncService {
	if logger == nil {
		logger = log.Default()
	}
	return &SyncService{
		adapters:  adapters,
		creds:     creds,
		jobs:      jobs,
		logs:      logs,
		scheduler: scheduler,
		logger:    logger,
	}
}

// CreateJob records a job mirroring a source playlist onto destPlatform under destPlaylistName.
// The destination playlist is created by the first run.
func (s *SyncService) CreateJob(subject string, sourcePlatform models.Platform, sourcePlaylistID string, destPlatform models.Platform, destPlaylistName string) (string, error) {
	for _, p := range []models.Platform{sourcePlatform, destPlatform} {
		if _, err := s.adapters.Adapter(p); err != nil {
			return "", err
		}
	}

	job := models.NewSyncJob(subject, sourcePlatform, strings.TrimSpace(sourcePlaylistID), destPlatform,
		strings.TrimSpace(destPlaylistName))
	if err := s.jobs.Create(job); err != nil {
		return "", err
	}

	s.logger.Info("created sync job", "job", job.ID, "sequence", job.Sequence, "source", sourcePlatform,
		"destination", destPlatform)
	return job.ID, nil
}

// AddDestination adds another destination platform to an existing job.
func (s *SyncService) AddDestination(ref string, p models.Platform, playlistName string) (*models.SyncJob, error) {
	if _, err := s.adapters.Adapter(p); err != nil {
		return nil, err
	}
	job, err := s.jobs.Find(ref)
	if err != nil {
		return nil, err
	}

	job.Destinations = append(job.Destinations, models.Destination{Platform: p, PlaylistName: strings.TrimSpace(playlistName)})
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if err := s.jobs.Update(job); err != nil {
		return nil, err
	}
	return job, nil
}

// RunJobNow runs a job immediately, bypassing the minimum re-sync interval.
func (s *SyncService) RunJobNow(ctx context.Context, ref string) (*RunResult, error) {
	job, err := s.jobs.Find(ref)
	if err != nil {
		return nil, err
	}
	return s.scheduler.RunNow(ctx, job.ID)
}

// RunJobWithProgress is [SyncService.RunJobNow] reporting progress on progress. The channel is not closed.
func (s *SyncService) RunJobWithProgress(ctx context.Context, ref string, progress chan<- ProgressUpdate) (*RunResult, error) {
	job, err := s.jobs.Find(ref)
	if err != nil {
		return nil, err
	}
	return s.scheduler.RunNowWithProgress(ctx, job.ID, progress)
}

// ListRecentLogs returns the newest log entries for subject, narrowed to one job when ref is not empty.
func (s *SyncService) ListRecentLogs(subject, ref string) ([]*models.SyncLogEntry, error) {
	jobID := ""
	if ref != "" {
		job, err := s.jobs.Find(ref)
		if err != nil {
			return nil, err
		}
		jobID = job.ID
	}
	return s.logs.ListRecent(subject, jobID, RecentLogLimit)
}

// GetStats aggregates the overall run entries of subject.
func (s *SyncService) GetStats(subject string) (*models.Stats, error) {
	return s.logs.Stats(subject)
}

// GetJob resolves a job by id, id prefix or sequence number.
func (s *SyncService) GetJob(ref string) (*models.SyncJob, error) {
	return s.jobs.Find(ref)
}

// ListJobs returns the jobs of subject in creation order.
func (s *SyncService) ListJobs(subject string) ([]*models.SyncJob, error) {
	return s.jobs.List(map[string]any{"subject": subject})
}

// SetEnabled activates or disables a job. Enabling also clears an error status.
func (s *SyncService) SetEnabled(ref string, enabled bool) (*models.SyncJob, error) {
	job, err := s.jobs.Find(ref)
	if err != nil {
		return nil, err
	}
	status := models.JobDisabled
	if enabled {
		status = models.JobActive
	}
	if err := s.jobs.SetStatus(job.ID, status); err != nil {
		return nil, err
	}
	job.Status = status
	return job, nil
}

// DeleteJob removes a job. Its log entries are kept.
func (s *SyncService) DeleteJob(ref string) error {
	job, err := s.jobs.Find(ref)
	if err != nil {
		return err
	}
	return s.jobs.Delete(job.ID)
}

// ListPlaylists returns the playlists of subject on platform p, sorted by name.
func (s *SyncService) ListPlaylists(ctx context.Context, p models.Platform, subject string) ([]models.Playlist, error) {
	adapter, err := s.adapters.Adapter(p)
	if err != nil {
		return nil, err
	}
	cred, err := s.creds.LiveCredential(ctx, p, subject)
	if err != nil {
		return nil, err
	}

	playlists, err := adapter.ListPlaylists(ctx, cred)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(playlists, func(i, j int) bool {
		return strings.ToLower(playlists[i].Name) < strings.ToLower(playlists[j].Name)
	})
	return playlists, nil
}
