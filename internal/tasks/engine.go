package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/matching"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCallTimeout bounds a single external platform request made during a run.
	DefaultCallTimeout = 30 * time.Second
	// DefaultFetchTimeout bounds reading a whole playlist, which may take many paginated requests.
	DefaultFetchTimeout = 10 * time.Minute
)

// Credentials is the part of the token lifecycle manager the engine depends on.
// [*credentials.Manager] implements it.
type Credentials interface {
	LiveCredential(ctx context.Context, p models.Platform, subject string) (*models.Credential, error)
	LiveConnections(ctx context.Context, subject string) ([]models.Platform, error)
}

// Adapters looks up platform adapters. [*services.Registry] implements it.
type Adapters interface {
	Adapter(p models.Platform) (services.Adapter, error)
}

// JobStore persists sync jobs. [*repositories.JobRepository] implements it.
type JobStore interface {
	Create(job *models.SyncJob) error
	Get(id string) (*models.SyncJob, error)
	Find(ref string) (*models.SyncJob, error)
	Update(job *models.SyncJob) error
	Delete(id string) error
	List(criteria map[string]any) ([]*models.SyncJob, error)
	SetDestinationPlaylist(jobID string, p models.Platform, playlistID string) error
	RecordRun(jobID string, status models.RunStatus, at time.Time, jobStatus models.JobStatus) error
	SetStatus(jobID string, status models.JobStatus) error
}

// LogStore is the append-only sync log. [*repositories.SyncLogRepository] implements it.
type LogStore interface {
	Append(entry *models.SyncLogEntry) error
	ListRecent(subject, jobID string, limit int) ([]*models.SyncLogEntry, error)
	Stats(subject string) (*models.Stats, error)
}

// Role tells whether a platform is read from or written to during a run.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// PlatformResult is the outcome of one platform within a run.
type PlatformResult struct {
	Platform   models.Platform  `json:"platform"`
	Role       Role             `json:"role"`
	PlaylistID string           `json:"playlist_id,omitempty"`
	Created    bool             `json:"created,omitempty"`
	Skipped    bool             `json:"skipped,omitempty"`
	Fetched    int              `json:"fetched"`
	Missing    int              `json:"missing"`
	Requested  int              `json:"requested"`
	Added      int              `json:"added"`
	NotFound   int              `json:"not_found"`
	Status     models.RunStatus `json:"status"`
	Errors     []string         `json:"errors,omitempty"`

	errs         []error
	tracks       []models.Track
	createFailed bool
}

func (p *PlatformResult) fail(err error) {
	p.errs = append(p.errs, err)
	p.Errors = append(p.Errors, fmt.Sprintf("%s: %v", shared.Classify(err), err))
}

// Err returns the first error recorded for the platform.
func (p *PlatformResult) Err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return p.errs[0]
}

func (p *PlatformResult) failed() bool {
	return len(p.errs) > 0
}

func (p *PlatformResult) settle() {
	switch {
	case !p.failed():
		p.Status = models.RunSuccess
	case p.Added > 0:
		p.Status = models.RunPartial
	default:
		p.Status = models.RunError
	}
}

func (p *PlatformResult) message() string {
	var parts []string
	if p.Created {
		parts = append(parts, fmt.Sprintf("created playlist %s", p.PlaylistID))
	}
	if p.Role == RoleSource {
		if !p.failed() {
			parts = append(parts, fmt.Sprintf("fetched %d tracks", p.Fetched))
		}
	} else if p.Requested > 0 || p.Missing > 0 {
		parts = append(parts, fmt.Sprintf("added %d of %d tracks", p.Added, p.Requested))
		if p.NotFound > 0 {
			parts = append(parts, fmt.Sprintf("%d not found", p.NotFound))
		}
	} else if !p.failed() {
		parts = append(parts, "already in sync")
	}
	parts = append(parts, p.Errors...)
	return strings.Join(parts, "; ")
}

// RunResult is the outcome of one reconciliation run.
type RunResult struct {
	JobID      string            `json:"job_id"`
	Subject    string            `json:"subject"`
	Status     models.RunStatus  `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Platforms  []*PlatformResult `json:"platforms"`
	Error      string            `json:"error,omitempty"`

	err error
}

// Err returns the run-wide failure, such as an unmet precondition.
func (r *RunResult) Err() error {
	return r.err
}

// Platform returns the result for p.
func (r *RunResult) Platform(p models.Platform) (*PlatformResult, bool) {
	for _, pr := range r.Platforms {
		if pr.Platform == p {
			return pr, true
		}
	}
	return nil, false
}

// Added sums the tracks added to every destination.
func (r *RunResult) Added() int {
	n := 0
	for _, pr := range r.Platforms {
		n += pr.Added
	}
	return n
}

// NotFound sums the tracks no destination could resolve.
func (r *RunResult) NotFound() int {
	n := 0
	for _, pr := range r.Platforms {
		n += pr.NotFound
	}
	return n
}

// ErrorCount returns the number of platforms that failed.
func (r *RunResult) ErrorCount() int {
	n := 0
	for _, pr := range r.Platforms {
		if pr.failed() {
			n++
		}
	}
	return n
}

// Summary is the one-line description written to the overall log entry.
func (r *RunResult) Summary() string {
	if r.err != nil {
		return r.Error
	}
	destinations := 0
	for _, pr := range r.Platforms {
		if pr.Role == RoleDestination && !pr.Skipped {
			destinations++
		}
	}
	return fmt.Sprintf("%s: added %d tracks across %d destinations, %d not found, %d platform errors",
		r.Status, r.Added(), destinations, r.NotFound(), r.ErrorCount())
}

func (r *RunResult) abort(err error) {
	r.err = err
	r.Error = err.Error()
	r.Status = models.RunError
}

// settle derives the overall status from the platform results.
//
// A run succeeds with zero platform errors. It is an error when every attempted destination failed to create its
// playlist or when no platform succeeded at all, and partial otherwise. A source that was read successfully counts
// as a succeeded platform.
func (r *RunResult) settle() {
	if r.err != nil {
		r.Status = models.RunError
		return
	}

	var errored, succeeded, attempted, createFailed int
	for _, pr := range r.Platforms {
		if pr.Skipped {
			continue
		}
		pr.settle()
		if pr.failed() {
			errored++
		}
		if pr.Status != models.RunError {
			succeeded++
		}
		if pr.Role == RoleDestination {
			attempted++
			if pr.createFailed {
				createFailed++
			}
		}
	}

	switch {
	case attempted == 0:
		r.abort(fmt.Errorf("%w: no destination platform is connected", shared.ErrNotConnected))
	case errored == 0:
		r.Status = models.RunSuccess
	case createFailed == attempted:
		r.Status = models.RunError
	case succeeded > 0:
		r.Status = models.RunPartial
	default:
		r.Status = models.RunError
	}
}

// Engine reconciles a job's source playlist onto its destinations.
//
// Tracks are only ever added. Run never returns an error: every failure is contained in the [RunResult], the
// sync log, and the job's last status.
type Engine struct {
	adapters     Adapters
	creds        Credentials
	jobs         JobStore
	logs         LogStore
	cache        matching.Cache
	resolver     *matching.Resolver
	callTimeout  time.Duration
	fetchTimeout time.Duration
	logger       *log.Logger
	now          func() time.Time
}

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithCallTimeout bounds each single-request call. Adding n tracks is allowed n times this budget since some
// platforms insert one track per request.
func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithFetchTimeout bounds reading one playlist across all of its pages.
func WithFetchTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.fetchTimeout = d
		}
	}
}

// WithResolutionCache remembers resolved destination tracks across runs.
func WithResolutionCache(cache matching.Cache) EngineOption {
	return func(e *Engine) { e.cache = cache }
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithEngineClock replaces time.Now.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine.
func NewEngine(adapters Adapters, creds Credentials, jobs JobStore, logs LogStore, opts ...EngineOption) *Engine {
	e := &Engine{
		adapters:     adapters,
		creds:        creds,
		jobs:         jobs,
		logs:         logs,
		callTimeout:  DefaultCallTimeout,
		fetchTimeout: DefaultFetchTimeout,
		logger:       log.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = matching.NewResolver(e.cache, e.logger)
	return e
}

// platformRun is the working state of one platform during a run.
type platformRun struct {
	result  *PlatformResult
	adapter services.Adapter
	cred    *models.Credential
	fresh   bool // playlist created during this run, known to be empty
}

// Run executes one reconciliation pass of job.
func (e *Engine) Run(ctx context.Context, job *models.SyncJob) *RunResult {
	return e.RunWithProgress(ctx, job, nil)
}

// RunWithProgress is [Engine.Run] with progress updates sent to progress without blocking.
func (e *Engine) RunWithProgress(ctx context.Context, job *models.SyncJob, progress chan<- ProgressUpdate) *RunResult {
	logger := shared.WithLogger(e.logger, "job", job.ID, "subject", job.Subject)
	res := &RunResult{JobID: job.ID, Subject: job.Subject, StartedAt: e.now().UTC()}

	defer func() {
		res.FinishedAt = e.now().UTC()
		e.record(job, res, logger)
		sendProgress(progress, completeUpdate(res))
	}()

	live, err := e.creds.LiveConnections(ctx, job.Subject)
	if err != nil {
		res.abort(fmt.Errorf("failed to check connections: %w", err))
		return res
	}
	sendProgress(progress, checkConnectionsUpdate(len(live)))
	if len(live) < 2 {
		res.abort(fmt.Errorf("%w: at least two live platform connections are required, found %d",
			shared.ErrNotConnected, len(live)))
		return res
	}

	runs := e.prepare(ctx, job, res, logger)
	source := runs[0]
	if source.cred == nil {
		for _, r := range runs[1:] {
			if !r.result.Skipped {
				r.result.fail(fmt.Errorf("source platform %s is unavailable", job.SourcePlatform))
			}
		}
		res.settle()
		return res
	}

	e.createPlaylists(ctx, job, runs[1:], progress, logger)
	e.fetch(ctx, runs, progress)

	if source.result.failed() {
		for _, r := range runs[1:] {
			if r.cred != nil && !r.result.failed() {
				r.result.fail(fmt.Errorf("source playlist %s could not be read", job.SourcePlaylistID))
			}
		}
		res.settle()
		return res
	}

	for _, r := range runs[1:] {
		if r.cred == nil || r.result.failed() {
			continue
		}
		e.reconcile(ctx, source.result.tracks, r, progress, logger)
	}

	res.settle()
	return res
}

// prepare looks up the adapter and a live credential for every platform of job. The source is always first.
//
// A platform with no stored credential is skipped without error. One whose credential cannot be refreshed fails.
func (e *Engine) prepare(ctx context.Context, job *models.SyncJob, res *RunResult, logger *log.Logger) []*platformRun {
	runs := make([]*platformRun, 0, len(job.Destinations)+1)

	add := func(p models.Platform, role Role, playlistID string) {
		r := &platformRun{result: &PlatformResult{Platform: p, Role: role, PlaylistID: playlistID}}
		res.Platforms = append(res.Platforms, r.result)
		runs = append(runs, r)

		adapter, err := e.adapters.Adapter(p)
		if err != nil {
			r.result.fail(err)
			return
		}

		cred, err := e.creds.LiveCredential(ctx, p, job.Subject)
		switch {
		case errors.Is(err, shared.ErrNotConnected) && role == RoleDestination:
			r.result.Skipped = true
			logger.Debug("platform not connected, skipping", "platform", p)
			return
		case errors.Is(err, shared.ErrRefreshFailed):
			logger.Warn("credential unusable for this run", "platform", p, "error", err)
			r.result.fail(err)
			return
		case err != nil:
			r.result.fail(err)
			return
		}

		r.adapter = adapter
		r.cred = cred
	}

	add(job.SourcePlatform, RoleSource, job.SourcePlaylistID)
	for _, d := range job.Destinations {
		add(d.Platform, RoleDestination, d.PlaylistID)
	}
	return runs
}

// createPlaylists creates every destination playlist that does not exist yet and persists its id immediately.
func (e *Engine) createPlaylists(ctx context.Context, job *models.SyncJob, dests []*platformRun, progress chan<- ProgressUpdate, logger *log.Logger) {
	for _, r := range dests {
		if r.cred == nil || r.result.PlaylistID != "" {
			continue
		}
		p := r.result.Platform
		dest, _ := job.Destination(p)

		var pl *models.Playlist
		err := e.call(ctx, func(ctx context.Context) error {
			var err error
			pl, err = r.adapter.CreatePlaylist(ctx, r.cred, dest.PlaylistName)
			return err
		})
		if err != nil {
			logger.Error("failed to create destination playlist", "platform", p, "error", err)
			r.result.createFailed = true
			r.result.fail(fmt.Errorf("create playlist: %w", err))
			continue
		}

		r.result.PlaylistID = pl.ID
		r.result.Created = true
		r.fresh = true
		dest.PlaylistID = pl.ID
		sendProgress(progress, createPlaylistUpdate(p, pl))

		if err := e.jobs.SetDestinationPlaylist(job.ID, p, pl.ID); err != nil {
			logger.Error("created playlist but failed to record it", "platform", p, "playlist", pl.ID, "error", err)
			r.result.fail(fmt.Errorf("record playlist %s: %w", pl.ID, err))
			continue
		}
		logger.Info("created destination playlist", "platform", p, "playlist", pl.ID, "name", pl.Name)
	}
}

// fetch reads the source and every existing destination playlist concurrently.
func (e *Engine) fetch(ctx context.Context, runs []*platformRun, progress chan<- ProgressUpdate) {
	var g errgroup.Group
	var pending []*platformRun
	for _, r := range runs {
		if r.cred != nil && !r.fresh && !r.result.failed() {
			pending = append(pending, r)
		}
	}

	for i, r := range pending {
		g.Go(func() error {
			var tracks []models.Track
			err := callWithin(ctx, e.fetchTimeout, func(ctx context.Context) error {
				var err error
				tracks, err = r.adapter.GetPlaylistTracks(ctx, r.cred, r.result.PlaylistID)
				return err
			})
			if err != nil {
				r.result.fail(fmt.Errorf("fetch tracks: %w", err))
				return nil
			}
			r.result.tracks = tracks
			r.result.Fetched = len(tracks)
			sendProgress(progress, fetchTracksUpdate(i+1, len(pending), r.result.Platform, len(tracks)))
			return nil
		})
	}
	_ = g.Wait()
}

// reconcile adds the source tracks missing from one destination.
func (e *Engine) reconcile(ctx context.Context, source []models.Track, r *platformRun, progress chan<- ProgressUpdate, logger *log.Logger) {
	p := r.result.Platform
	ix := matching.NewIndex(r.result.tracks)
	missing := matching.Missing(source, ix)

	var ids []string
	queued := make(map[string]struct{})
	for i, t := range missing {
		if hit, ok := e.resolver.Cached(p, t); ok && ix.HasRef(hit.NativeID) {
			continue
		}
		r.result.Missing++
		sendProgress(progress, resolveTrackUpdate(i+1, len(missing), p, t))

		var found *models.Track
		err := e.call(ctx, func(ctx context.Context) error {
			var err error
			found, err = e.resolver.Resolve(ctx, r.adapter, r.cred, t)
			return err
		})
		switch {
		case err != nil:
			logger.Warn("track search failed", "platform", p, "title", t.Title, "artist", t.Artist, "error", err)
			r.result.fail(fmt.Errorf("search %q: %w", t.Title, err))
			continue
		case found == nil:
			logger.Debug("track not found", "platform", p, "title", t.Title, "artist", t.Artist)
			r.result.NotFound++
			continue
		}

		if ix.HasRef(found.NativeID) {
			continue
		}
		if _, dup := queued[found.NativeID]; dup {
			continue
		}
		queued[found.NativeID] = struct{}{}
		ids = append(ids, found.NativeID)
	}

	if len(ids) == 0 {
		return
	}

	r.result.Requested = len(ids)
	sendProgress(progress, addTracksUpdate(p, len(ids)))
	err := callWithin(ctx, e.callTimeout*time.Duration(len(ids)), func(ctx context.Context) error {
		return r.adapter.AddTracks(ctx, r.cred, r.result.PlaylistID, ids)
	})

	var partial *shared.PartialBatchError
	switch {
	case errors.As(err, &partial):
		r.result.Added = partial.Added
		logger.Warn("tracks partially added", "platform", p, "added", partial.Added, "requested", partial.Requested)
		r.result.fail(err)
	case err != nil:
		logger.Error("failed to add tracks", "platform", p, "error", err)
		r.result.fail(fmt.Errorf("add tracks: %w", err))
	default:
		r.result.Added = len(ids)
		logger.Info("added tracks", "platform", p, "count", len(ids))
	}
}

func (e *Engine) call(ctx context.Context, fn func(context.Context) error) error {
	return callWithin(ctx, e.callTimeout, fn)
}

func callWithin(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

// record persists the run outcome and appends one log entry per touched platform plus the overall entry.
func (e *Engine) record(job *models.SyncJob, res *RunResult, logger *log.Logger) {
	jobStatus := job.Status
	if jobStatus != models.JobDisabled {
		jobStatus = models.JobActive
		if src, ok := res.Platform(job.SourcePlatform); ok && errors.Is(src.Err(), shared.ErrPlaylistNotFound) {
			jobStatus = models.JobError
		}
	}

	if err := e.jobs.RecordRun(job.ID, res.Status, res.FinishedAt, jobStatus); err != nil {
		logger.Error("failed to record run", "error", err)
	} else {
		finished := res.FinishedAt
		job.LastRunAt = &finished
		job.LastStatus = res.Status
		job.Status = jobStatus
	}

	for _, pr := range res.Platforms {
		if pr.Skipped {
			continue
		}
		action := models.ActionSync
		if pr.Role == RoleSource {
			action = models.ActionFetch
		}
		e.appendLog(&models.SyncLogEntry{
			JobID:     job.ID,
			Subject:   job.Subject,
			Platform:  pr.Platform,
			Action:    action,
			Status:    pr.Status,
			Message:   pr.message(),
			CreatedAt: res.FinishedAt,
		}, logger)
	}

	e.appendLog(&models.SyncLogEntry{
		JobID:     job.ID,
		Subject:   job.Subject,
		Platform:  models.AllPlatform,
		Action:    models.ActionRun,
		Status:    res.Status,
		Message:   res.Summary(),
		CreatedAt: res.FinishedAt,
	}, logger)

	switch res.Status {
	case models.RunSuccess:
		logger.Info("sync run finished", "status", res.Status, "added", res.Added(), "not_found", res.NotFound())
	default:
		logger.Warn("sync run finished", "status", res.Status, "summary", res.Summary())
	}
}

func (e *Engine) appendLog(entry *models.SyncLogEntry, logger *log.Logger) {
	if err := e.logs.Append(entry); err != nil {
		logger.Error("failed to append sync log", "platform", entry.Platform, "error", err)
	}
}
