package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/desertthunder/tunesync/internal/formatter"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// parseSource splits "platform:playlist-id". The id may itself contain colons (e.g. Spotify URIs).
func parseSource(s string) (models.Platform, string, error) {
	name, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || strings.TrimSpace(id) == "" {
		return "", "", fmt.Errorf("%w: --source must look like platform:playlist-id, got %q", shared.ErrInvalidArgument, s)
	}
	p, err := parsePlatform(name)
	if err != nil {
		return "", "", err
	}
	return p, strings.TrimSpace(id), nil
}

func jobRef(cmd *cli.Command) (string, error) {
	ref := strings.TrimSpace(cmd.StringArg("job"))
	if ref == "" {
		return "", fmt.Errorf("%w: job", shared.ErrMissingArgument)
	}
	return ref, nil
}

// Playlists lists the playlists of one connected platform.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	p, err := parsePlatform(cmd.String("platform"))
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	playlists, err := r.svc.ListPlaylists(ctx, p, r.subject)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}
	if len(playlists) == 0 {
		return r.writePlain("No playlists on %s.\n", p.DisplayName())
	}
	return r.writeBlock(formatter.PlaylistsTable(playlists))
}

// JobsCreate creates a job from --source, --dest and --name.
func (r *Runner) JobsCreate(ctx context.Context, cmd *cli.Command) error {
	src, srcID, err := parseSource(cmd.String("source"))
	if err != nil {
		return err
	}
	dest, err := parsePlatform(cmd.String("dest"))
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	id, err := r.svc.CreateJob(r.subject, src, srcID, dest, cmd.String("name"))
	if err != nil {
		return err
	}
	job, err := r.svc.GetJob(id)
	if err != nil {
		return err
	}

	r.writePlain("✓ Created job #%d (%s)\n", job.Sequence, job.ID)
	return r.writePlain("The destination playlist is created on the first run: tunesync jobs run %d\n", job.Sequence)
}

// JobsAddDest adds a destination platform to an existing job.
func (r *Runner) JobsAddDest(ctx context.Context, cmd *cli.Command) error {
	ref, err := jobRef(cmd)
	if err != nil {
		return err
	}
	dest, err := parsePlatform(cmd.String("dest"))
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	job, err := r.svc.AddDestination(ref, dest, cmd.String("name"))
	if err != nil {
		return err
	}
	return r.writePlain("✓ Job #%d now syncs to %d destinations\n", job.Sequence, len(job.Destinations))
}

// JobsList lists the subject's jobs.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	jobs, err := r.svc.ListJobs(r.subject)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if jobs == nil {
			jobs = []*models.SyncJob{}
		}
		return r.writeJSON(jobs, true)
	}
	if len(jobs) == 0 {
		return r.writePlain("No sync jobs. Create one with 'tunesync jobs create'.\n")
	}
	return r.writeBlock(formatter.JobsTable(jobs))
}

// JobsShow prints one job.
func (r *Runner) JobsShow(ctx context.Context, cmd *cli.Command) error {
	ref, err := jobRef(cmd)
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	job, err := r.svc.GetJob(ref)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(job, true)
	}
	return r.writeBlock(formatter.JobDetail(job))
}

// JobsRun runs a job now and prints progress followed by the per-platform outcome.
func (r *Runner) JobsRun(ctx context.Context, cmd *cli.Command) error {
	ref, err := jobRef(cmd)
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	asJSON := cmd.Bool("json")
	progressCh := make(chan tasks.ProgressUpdate, 50)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progressCh {
			if !asJSON {
				r.printProgress(update)
			}
		}
	}()

	result, err := r.svc.RunJobWithProgress(ctx, ref, progressCh)
	close(progressCh)
	wg.Wait()

	if err != nil {
		return err
	}

	if asJSON {
		return r.writeJSON(result, true)
	}
	r.writePlain("\n")
	if err := r.writeBlock(formatter.RunTable(result)); err != nil {
		return err
	}
	if result.Err() != nil {
		return result.Err()
	}
	return nil
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.ResolveTracks:
		if update.Step == update.Total || update.Step%10 == 0 {
			r.writePlain("   %s\n", update.Message)
		}
	case tasks.Complete:
	default:
		r.writePlain("%s\n", update.Message)
	}
}

func (r *Runner) setEnabled(cmd *cli.Command, enabled bool) error {
	ref, err := jobRef(cmd)
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	job, err := r.svc.SetEnabled(ref, enabled)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Job #%d is %s\n", job.Sequence, job.Status)
}

// JobsEnable re-enables a job.
func (r *Runner) JobsEnable(ctx context.Context, cmd *cli.Command) error {
	return r.setEnabled(cmd, true)
}

// JobsDisable stops scheduling a job.
func (r *Runner) JobsDisable(ctx context.Context, cmd *cli.Command) error {
	return r.setEnabled(cmd, false)
}

// JobsDelete deletes a job. Its history stays in the sync log.
func (r *Runner) JobsDelete(ctx context.Context, cmd *cli.Command) error {
	ref, err := jobRef(cmd)
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	if err := r.svc.DeleteJob(ref); err != nil {
		return err
	}
	return r.writePlain("✓ Job %s deleted\n", ref)
}

// Logs prints recent sync log entries.
func (r *Runner) Logs(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	entries, err := r.svc.ListRecentLogs(r.subject, cmd.String("job"))
	if err != nil {
		return err
	}
	return formatter.WriteLogs(r.output, entries, format)
}

// Stats prints aggregate run statistics.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	stats, err := r.svc.GetStats(r.subject)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}
	return r.writeBlock(formatter.StatsTable(stats))
}

// CacheStatus prints the number of cached track resolutions per platform.
func (r *Runner) CacheStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	counts, err := r.cache.Count()
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return r.writePlain("Resolution cache is empty.\n")
	}

	platforms := make([]models.Platform, 0, len(counts))
	for p := range counts {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	for _, p := range platforms {
		r.writePlain("%-8s %d tracks\n", p.DisplayName(), counts[p])
	}
	return nil
}

// CacheClear forgets cached resolutions, for one platform when --platform is set.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	var p models.Platform
	if name := cmd.String("platform"); name != "" {
		parsed, err := parsePlatform(name)
		if err != nil {
			return err
		}
		p = parsed
	}
	if err := r.open(); err != nil {
		return err
	}

	n, err := r.cache.Clear(p)
	if err != nil {
		return err
	}
	r.logger.Info("resolution cache cleared", "platform", p, "removed", n)
	return r.writePlain("✓ Removed %d cached resolutions\n", n)
}
