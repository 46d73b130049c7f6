package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	tu "github.com/desertthunder/tunesync/internal/testing"
)

func newTestService(h *harness) *SyncService {
	registry := services.NewRegistry(h.spotify, h.deezer, h.youtube)
	scheduler := NewScheduler(h.engine, h.jobs, h.manager, fastConfig(), h.logger)
	return NewSyncService(registry, h.manager, h.jobs, h.logs, scheduler, h.logger)
}

func TestSyncService(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateJob", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestService(h)

		id, err := svc.CreateJob(testSubject, models.Spotify, " src ", models.Deezer, "Mirror")
		if err != nil {
			t.Fatalf("failed to create job: %v", err)
		}
		job, err := svc.GetJob(id)
		if err != nil {
			t.Fatalf("failed to get job: %v", err)
		}
		if job.SourcePlaylistID != "src" || job.Status != models.JobActive || job.Sequence != 1 {
			t.Errorf("unexpected job %+v", job)
		}
		if dest, ok := job.Destination(models.Deezer); !ok || dest.PlaylistID != "" {
			t.Errorf("expected a pending deezer destination, got %+v", job.Destinations)
		}
	})

	t.Run("CreateJob Rejects Bad Input", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestService(h)

		if _, err := svc.CreateJob(testSubject, models.Platform("tidal"), "src", models.Deezer, "Mirror"); !errors.Is(err, shared.ErrUnknownPlatform) {
			t.Errorf("expected ErrUnknownPlatform, got %v", err)
		}
		if _, err := svc.CreateJob(testSubject, models.Spotify, "src", models.Spotify, "Mirror"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for same source and destination, got %v", err)
		}
		if _, err := svc.CreateJob(testSubject, models.Spotify, "", models.Deezer, "Mirror"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty playlist, got %v", err)
		}
	})

	t.Run("AddDestination", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestService(h)
		id, _ := svc.CreateJob(testSubject, models.Spotify, "src", models.Deezer, "Mirror")

		job, err := svc.AddDestination("#1", models.YouTube, "Mirror YT")
		if err != nil {
			t.Fatalf("failed to add destination: %v", err)
		}
		if job.ID != id || len(job.Destinations) != 2 {
			t.Errorf("expected two destinations, got %+v", job.Destinations)
		}
		if _, err := svc.AddDestination(id, models.Deezer, "Again"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected duplicate platform to be rejected, got %v", err)
		}
	})

	t.Run("RunJobNow Logs And Stats", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestService(h)
		h.spotify.SetPlaylist("src", "Favorites", track(models.Spotify, "sp1", "Song A", "X", "ISRC1"))
		h.deezer.AddCatalog(track(models.Deezer, "dz1", "Song A", "X", "ISRC1"))
		id, _ := svc.CreateJob(testSubject, models.Spotify, "src", models.Deezer, "Mirror")

		res, err := svc.RunJobNow(ctx, "1")
		if err != nil {
			t.Fatalf("failed to run job: %v", err)
		}
		if res.Status != models.RunSuccess || res.Added() != 1 {
			t.Errorf("expected one track added, got %s/%d", res.Status, res.Added())
		}

		h.deezer.FailOn(tu.OpTracks, fmt.Errorf("%w: 500", shared.ErrTransport))
		if res, _ := svc.RunJobNow(ctx, id); res.Status != models.RunPartial {
			t.Errorf("expected the second run to be partial, got %s", res.Status)
		}

		entries, err := svc.ListRecentLogs(testSubject, id)
		if err != nil {
			t.Fatalf("failed to list logs: %v", err)
		}
		if len(entries) != 6 {
			t.Errorf("expected 3 entries per run, got %d", len(entries))
		}

		stats, err := svc.GetStats(testSubject)
		if err != nil {
			t.Fatalf("failed to get stats: %v", err)
		}
		if stats.TotalRuns != 2 || stats.SuccessCount != 1 || stats.PartialCount != 1 || stats.FailedCount != 0 {
			t.Errorf("unexpected stats %+v", stats)
		}
		if len(stats.PerJob) != 1 || stats.PerJob[0].JobID != id || stats.PerJob[0].Runs != 2 {
			t.Errorf("unexpected per-job stats %+v", stats.PerJob)
		}
	})

	t.Run("RunJobWithProgress", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestService(h)
		h.spotify.SetPlaylist("src", "Favorites", track(models.Spotify, "sp1", "Song A", "X", "ISRC1"))
		h.deezer.AddCatalog(track(models.Deezer, "dz1", "Song A", "X", "ISRC1"))
		svc.CreateJob(testSubject, models.Spotify, "src", models.Deezer, "Mirror")

		progress := make(chan ProgressUpdate, 64)
		res, err := svc.RunJobWithProgress(ctx, "#1", progress)
		if err != nil {
			t.Fatalf("failed to run job: %v", err)
		}
		close(progress)

		var last ProgressUpdate
		count := 0
		for u := range progress {
			last = u
			count++
		}
		if count == 0 || last.Phase != Complete {
			t.Errorf("expected progress ending in Complete, got %d updates ending in %v", count, last.Phase)
		}
		if res.Added() != 1 {
			t.Errorf("expected one track added, got %d", res.Added())
		}
	})

	t.Run("Recent Logs Are Capped", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestService(h)
		id, _ := svc.CreateJob(testSubject, models.Spotify, "src", models.Deezer, "Mirror")

		for i := range RecentLogLimit + 10 {
			entry := &models.SyncLogEntry{
				JobID:    id,
				Subject:  testSubject,
				Platform: models.AllPlatform,
				Action:   models.ActionRun,
				Status:   models.RunSuccess,
				Message:  fmt.Sprintf("run %d", i),
			}
			if err := h.logs.Append(entry); err != nil {
				t.Fatalf("failed to append: %v", err)
			}
		}

		entries, err := svc.ListRecentLogs(testSubject, "")
		if err != nil {
			t.Fatalf("failed to list logs: %v", err)
		}
		if len(entries) != RecentLogLimit {
			t.Errorf("expected %d entries, got %d", RecentLogLimit, len(entries))
		}
		if entries[0].Message != fmt.Sprintf("run %d", RecentLogLimit+9) {
			t.Errorf("expected newest entry first, got %q", entries[0].Message)
		}
	})

	t.Run("Enable Disable Delete", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestService(h)
		id, _ := svc.CreateJob(testSubject, models.Spotify, "src", models.Deezer, "Mirror")

		job, err := svc.SetEnabled(id, false)
		if err != nil || job.Status != models.JobDisabled {
			t.Fatalf("expected disabled job, got %v, %v", job, err)
		}
		if _, err := svc.RunJobNow(ctx, id); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected disabled job to refuse running, got %v", err)
		}
		if job, _ := svc.SetEnabled(id, true); job.Status != models.JobActive {
			t.Errorf("expected active job, got %s", job.Status)
		}

		if err := svc.DeleteJob(id); err != nil {
			t.Fatalf("failed to delete job: %v", err)
		}
		if _, err := svc.GetJob(id); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound after delete, got %v", err)
		}
		jobs, _ := svc.ListJobs(testSubject)
		if len(jobs) != 0 {
			t.Errorf("expected no jobs, got %d", len(jobs))
		}
	})

	t.Run("ListPlaylists", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestService(h)
		h.deezer.SetPlaylist("2", "rock")
		h.deezer.SetPlaylist("1", "Ambient")
		h.deezer.SetPlaylist("3", "Jazz")

		playlists, err := svc.ListPlaylists(ctx, models.Deezer, testSubject)
		if err != nil {
			t.Fatalf("failed to list playlists: %v", err)
		}
		if len(playlists) != 3 || playlists[0].Name != "Ambient" || playlists[2].Name != "rock" {
			t.Errorf("expected playlists sorted by name, got %+v", playlists)
		}
		if cred := h.deezer.LastCredential(); cred == nil || cred.AccessToken != "deezer-token" {
			t.Errorf("expected the stored credential to be used, got %+v", cred)
		}

		if err := h.manager.Disconnect(models.Deezer, testSubject); err != nil {
			t.Fatalf("failed to disconnect: %v", err)
		}
		if _, err := svc.ListPlaylists(ctx, models.Deezer, testSubject); !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})
}
