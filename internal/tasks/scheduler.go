package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/sync/singleflight"
)

// Scheduler defaults.
const (
	DefaultInterval     = 30 * time.Minute
	DefaultMinInterval  = 25 * time.Minute
	DefaultInitialDelay = time.Minute
	DefaultJobDelay     = 5 * time.Second
)

// Runner executes one run of a job. [*Engine] implements it.
type Runner interface {
	Run(ctx context.Context, job *models.SyncJob) *RunResult
}

// progressRunner is implemented by runners that can report [ProgressUpdate] values, such as [Engine].
type progressRunner interface {
	RunWithProgress(ctx context.Context, job *models.SyncJob, progress chan<- ProgressUpdate) *RunResult
}

// SchedulerConfig holds the scheduler timings. Zero values fall back to the defaults.
type SchedulerConfig struct {
	Interval     time.Duration
	MinInterval  time.Duration
	InitialDelay time.Duration
	JobDelay     time.Duration
}

// SchedulerConfigFrom reads the timings from the sync section of the config file.
func SchedulerConfigFrom(cfg shared.SyncConfig) SchedulerConfig {
	return SchedulerConfig{
		Interval:     cfg.Interval.Duration,
		MinInterval:  cfg.MinInterval.Duration,
		InitialDelay: cfg.InitialDelay.Duration,
		JobDelay:     cfg.JobDelay.Duration,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.JobDelay <= 0 {
		c.JobDelay = DefaultJobDelay
	}
	return c
}

// Scheduler runs due jobs periodically, one at a time.
//
// Scheduled and manual runs of the same job share a single-flight group, so they never overlap and a caller that
// arrives mid-run receives the in-flight result.
type Scheduler struct {
	runner Runner
	jobs   JobStore
	creds  Credentials
	cfg    SchedulerConfig
	logger *log.Logger
	now    func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	ticking chan struct{}
}

// NewScheduler creates a scheduler. It does nothing until [Scheduler.Start] is called.
func NewScheduler(runner Runner, jobs JobStore, creds Credentials, cfg SchedulerConfig, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		runner:  runner,
		jobs:    jobs,
		creds:   creds,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
		ticking: make(chan struct{}, 1),
	}
}

// Start begins the tick loop: one pass after the initial delay, then one per interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("%w: scheduler already started", shared.ErrInvalidInput)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "min_interval", s.cfg.MinInterval,
		"initial_delay", s.cfg.InitialDelay)
	return nil
}

// Stop stops accepting ticks and waits for the in-flight scheduled run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.cfg.InitialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	s.Tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every due job sequentially, pausing between jobs. Cancelling ctx stops the pass after the current job.
//
// A job is due when it is active, its last run is older than the minimum interval, and its subject has at least
// two live connections. Jobs that are not due are skipped without a log entry.
func (s *Scheduler) Tick(ctx context.Context) {
	select {
	case s.ticking <- struct{}{}:
		defer func() { <-s.ticking }()
	default:
		s.logger.Debug("previous tick still running, skipping")
		return
	}

	jobs, err := s.jobs.List(map[string]any{"status": models.JobActive})
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		return
	}

	now := s.now()
	live := make(map[string]bool)
	ran := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if !job.DueAt(now, s.cfg.MinInterval) {
			s.logger.Debug("job not due", "job", job.ID, "last_run", job.LastRunAt)
			continue
		}
		ok, checked := live[job.Subject]
		if !checked {
			ok = s.hasLiveConnections(ctx, job.Subject)
			live[job.Subject] = ok
		}
		if !ok {
			s.logger.Debug("subject has fewer than two live connections, skipping", "job", job.ID, "subject", job.Subject)
			continue
		}

		if ran > 0 && !s.pause(ctx) {
			return
		}
		ran++
		s.execute(context.WithoutCancel(ctx), job.ID, nil)
	}

	if ran > 0 {
		s.logger.Info("scheduler pass finished", "jobs", len(jobs), "ran", ran)
	}
}

func (s *Scheduler) hasLiveConnections(ctx context.Context, subject string) bool {
	live, err := s.creds.LiveConnections(ctx, subject)
	if err != nil {
		s.logger.Warn("failed to check connections", "subject", subject, "error", err)
		return false
	}
	return len(live) >= 2
}

func (s *Scheduler) pause(ctx context.Context) bool {
	t := time.NewTimer(s.cfg.JobDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RunNow runs one job immediately, ignoring the minimum interval. The run is not cancelled with ctx.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) (*RunResult, error) {
	return s.RunNowWithProgress(ctx, jobID, nil)
}

// RunNowWithProgress is [Scheduler.RunNow] with progress updates sent on progress. A caller that joins a run
// already in flight receives its result but no updates. Cancelling ctx does not stop a run once it has started.
func (s *Scheduler) RunNowWithProgress(ctx context.Context, jobID string, progress chan<- ProgressUpdate) (*RunResult, error) {
	job, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == models.JobDisabled {
		return nil, fmt.Errorf("%w: job #%d is disabled", shared.ErrInvalidInput, job.Sequence)
	}
	return s.execute(context.WithoutCancel(ctx), job.ID, progress), nil
}

// execute runs the job through the single-flight group. The job is reloaded inside the flight so it sees the
// playlist ids recorded by the previous run.
func (s *Scheduler) execute(ctx context.Context, jobID string, progress chan<- ProgressUpdate) *RunResult {
	v, _, _ := s.group.Do(jobID, func() (any, error) {
		return s.safeRun(ctx, jobID, progress), nil
	})
	return v.(*RunResult)
}

func (s *Scheduler) safeRun(ctx context.Context, jobID string, progress chan<- ProgressUpdate) (res *RunResult) {
	logger := shared.WithLogger(s.logger, "job", jobID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sync run panicked", "panic", r)
			res = &RunResult{JobID: jobID, FinishedAt: s.now().UTC()}
			res.abort(fmt.Errorf("run panicked: %v", r))
		}
	}()

	job, err := s.jobs.Get(jobID)
	if err != nil {
		logger.Error("failed to load job", "error", err)
		res = &RunResult{JobID: jobID, FinishedAt: s.now().UTC()}
		res.abort(err)
		return res
	}
	if pr, ok := s.runner.(progressRunner); ok && progress != nil {
		return pr.RunWithProgress(ctx, job, progress)
	}
	return s.runner.Run(ctx, job)
}
