package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a [SyncJob].
type JobStatus string

const (
	JobActive   JobStatus = "active"
	JobError    JobStatus = "error"
	JobDisabled JobStatus = "disabled"
)

// RunStatus is the outcome of one run, or of one platform within a run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// Destination is one target playlist of a job. PlaylistID is empty until the playlist has been created.
type Destination struct {
	Platform     Platform `json:"platform"`
	PlaylistID   string   `json:"playlist_id,omitempty"`
	PlaylistName string   `json:"playlist_name"`
}

// SyncJob mirrors a source playlist onto one or more destination platforms.
type SyncJob struct {
	ID               string        `json:"id"`
	Sequence         int           `json:"sequence"`
	Subject          string        `json:"subject"`
	SourcePlatform   Platform      `json:"source_platform"`
	SourcePlaylistID string        `json:"source_playlist_id"`
	Destinations     []Destination `json:"destinations"`
	Status           JobStatus     `json:"status"`
	LastRunAt        *time.Time    `json:"last_run_at,omitempty"`
	LastStatus       RunStatus     `json:"last_status,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewSyncJob creates an active job with a single destination.
func NewSyncJob(subject string, source Platform, sourcePlaylistID string, dest Platform, destName string) *SyncJob {
	now := time.Now().UTC()
	return &SyncJob{
		Subject:          subject,
		SourcePlatform:   source,
		SourcePlaylistID: sourcePlaylistID,
		Destinations:     []Destination{{Platform: dest, PlaylistName: destName}},
		Status:           JobActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Destination returns the destination on platform p.
func (j *SyncJob) Destination(p Platform) (*Destination, bool) {
	for i := range j.Destinations {
		if j.Destinations[i].Platform == p {
			return &j.Destinations[i], true
		}
	}
	return nil, false
}

// Platforms returns the source platform followed by every destination platform.
func (j *SyncJob) Platforms() []Platform {
	out := []Platform{j.SourcePlatform}
	for _, d := range j.Destinations {
		out = append(out, d.Platform)
	}
	return out
}

// DueAt reports whether the job should run at now given the minimum re-sync interval.
func (j *SyncJob) DueAt(now time.Time, minInterval time.Duration) bool {
	if j.Status != JobActive {
		return false
	}
	return j.LastRunAt == nil || now.Sub(*j.LastRunAt) >= minInterval
}

// Validate checks the job before it is persisted.
func (j *SyncJob) Validate() error {
	if j.Subject == "" {
		return fmt.Errorf("job subject is required")
	}
	if _, err := ParsePlatform(string(j.SourcePlatform)); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if j.SourcePlaylistID == "" {
		return fmt.Errorf("source playlist id is required")
	}
	if len(j.Destinations) == 0 {
		return fmt.Errorf("at least one destination is required")
	}

	seen := map[Platform]bool{j.SourcePlatform: true}
	for _, d := range j.Destinations {
		if _, err := ParsePlatform(string(d.Platform)); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		if seen[d.Platform] {
			return fmt.Errorf("platform %s is used more than once in job", d.Platform)
		}
		seen[d.Platform] = true
		if d.PlaylistName == "" {
			return fmt.Errorf("destination playlist name is required for %s", d.Platform)
		}
	}

	switch j.Status {
	case JobActive, JobError, JobDisabled:
	default:
		return fmt.Errorf("invalid job status %q", j.Status)
	}
	return nil
}
