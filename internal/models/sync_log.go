package models

import "time"

// Actions recorded in the sync log.
const (
	ActionFetch = "fetch"
	ActionSync  = "sync"
	ActionRun   = "run"
)

// SyncLogEntry is one append-only audit row.
type SyncLogEntry struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Subject   string    `json:"subject"`
	Platform  Platform  `json:"platform"`
	Action    string    `json:"action"`
	Status    RunStatus `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats aggregates overall runs for a subject.
type Stats struct {
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	PartialCount int        `json:"partial_count"`
	FailedCount  int        `json:"failed_count"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	PerJob       []JobStats `json:"per_job"`
}

// JobStats aggregates overall runs for one job.
type JobStats struct {
	JobID     string     `json:"job_id"`
	Runs      int        `json:"runs"`
	Successes int        `json:"successes"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}
