package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func newTestJob() *models.SyncJob {
	job := models.NewSyncJob("default", models.Spotify, "sp-playlist", models.Deezer, "Mirror")
	job.Destinations = append(job.Destinations, models.Destination{Platform: models.YouTube, PlaylistName: "Mirror YT"})
	return job
}

func TestCredentialRepository(t *testing.T) {
	t.Run("Save & Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCredentialRepository(db)
		expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		cred := &models.Credential{
			Platform:     models.Spotify,
			Subject:      "default",
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    "Bearer",
			ExpiresAt:    expires,
		}

		if err := repo.Save(cred); err != nil {
			t.Fatalf("failed to save credential: %v", err)
		}
		if cred.ID == "" {
			t.Error("credential ID should be set after save")
		}

		retrieved, err := repo.Get(models.Spotify, "default")
		if err != nil {
			t.Fatalf("failed to get credential: %v", err)
		}
		if retrieved.AccessToken != "access" || retrieved.RefreshToken != "refresh" {
			t.Errorf("unexpected tokens %+v", retrieved)
		}
		if !retrieved.ExpiresAt.Equal(expires) {
			t.Errorf("expected expiry %v, got %v", expires, retrieved.ExpiresAt)
		}
	})

	t.Run("Save Upserts By Platform And Subject", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCredentialRepository(db)
		first := &models.Credential{Platform: models.Deezer, Subject: "default", AccessToken: "one"}
		if err := repo.Save(first); err != nil {
			t.Fatalf("failed to save credential: %v", err)
		}

		second := &models.Credential{Platform: models.Deezer, Subject: "default", AccessToken: "two"}
		if err := repo.Save(second); err != nil {
			t.Fatalf("failed to upsert credential: %v", err)
		}

		retrieved, err := repo.Get(models.Deezer, "default")
		if err != nil {
			t.Fatalf("failed to get credential: %v", err)
		}
		if retrieved.AccessToken != "two" {
			t.Errorf("expected upserted token, got %s", retrieved.AccessToken)
		}
		if retrieved.ID != first.ID {
			t.Errorf("expected original row to be kept, got id %s", retrieved.ID)
		}
		if !retrieved.ExpiresAt.IsZero() {
			t.Errorf("expected non-expiring token, got %v", retrieved.ExpiresAt)
		}
	})

	t.Run("Get Missing Is Not Connected", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		_, err := NewCredentialRepository(db).Get(models.YouTube, "default")
		if !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("List & Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCredentialRepository(db)
		for _, p := range models.Platforms {
			if err := repo.Save(&models.Credential{Platform: p, Subject: "default", AccessToken: "tok"}); err != nil {
				t.Fatalf("failed to save credential: %v", err)
			}
		}
		if err := repo.Save(&models.Credential{Platform: models.Spotify, Subject: "other", AccessToken: "tok"}); err != nil {
			t.Fatalf("failed to save credential: %v", err)
		}

		creds, err := repo.List("default")
		if err != nil {
			t.Fatalf("failed to list credentials: %v", err)
		}
		if len(creds) != 3 {
			t.Errorf("expected 3 credentials, got %d", len(creds))
		}

		if err := repo.Delete(models.Spotify, "default"); err != nil {
			t.Fatalf("failed to delete credential: %v", err)
		}
		if err := repo.Delete(models.Spotify, "default"); !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected deleting twice, got %v", err)
		}
		if _, err := repo.Get(models.Spotify, "other"); err != nil {
			t.Errorf("other subject should be untouched, got %v", err)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if err := NewCredentialRepository(db).Save(&models.Credential{Platform: models.Spotify, Subject: "default"}); err == nil {
			t.Error("expected validation error for empty access token")
		}
	})
}

func TestJobRepository(t *testing.T) {
	t.Run("Create & Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewJobRepository(db)
		job := newTestJob()
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}
		if job.ID == "" || job.Sequence != 1 {
			t.Errorf("expected id and sequence 1, got %q/%d", job.ID, job.Sequence)
		}

		retrieved, err := repo.Get(job.ID)
		if err != nil {
			t.Fatalf("failed to get job: %v", err)
		}
		if retrieved.SourcePlaylistID != "sp-playlist" || retrieved.Status != models.JobActive {
			t.Errorf("unexpected job %+v", retrieved)
		}
		if len(retrieved.Destinations) != 2 || retrieved.Destinations[0].Platform != models.Deezer || retrieved.Destinations[1].Platform != models.YouTube {
			t.Errorf("expected ordered destinations, got %+v", retrieved.Destinations)
		}
		if retrieved.LastRunAt != nil {
			t.Errorf("expected no last run, got %v", retrieved.LastRunAt)
		}
	})

	t.Run("Create Rejects Invalid Job", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		job := models.NewSyncJob("default", models.Spotify, "pl", models.Spotify, "Same")
		if err := NewJobRepository(db).Create(job); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("SetDestinationPlaylist", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewJobRepository(db)
		job := newTestJob()
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}

		if err := repo.SetDestinationPlaylist(job.ID, models.YouTube, "PL123"); err != nil {
			t.Fatalf("failed to set destination playlist: %v", err)
		}
		if err := repo.SetDestinationPlaylist(job.ID, models.Spotify, "x"); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound for unknown destination, got %v", err)
		}

		retrieved, _ := repo.Get(job.ID)
		dest, ok := retrieved.Destination(models.YouTube)
		if !ok || dest.PlaylistID != "PL123" {
			t.Errorf("expected youtube playlist id to persist, got %+v", retrieved.Destinations)
		}
	})

	t.Run("RecordRun", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewJobRepository(db)
		job := newTestJob()
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}

		at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		if err := repo.RecordRun(job.ID, models.RunError, at, models.JobError); err != nil {
			t.Fatalf("failed to record run: %v", err)
		}

		retrieved, _ := repo.Get(job.ID)
		if retrieved.LastRunAt == nil || !retrieved.LastRunAt.Equal(at) {
			t.Errorf("expected last run %v, got %v", at, retrieved.LastRunAt)
		}
		if retrieved.LastStatus != models.RunError || retrieved.Status != models.JobError {
			t.Errorf("unexpected status %s/%s", retrieved.LastStatus, retrieved.Status)
		}
	})

	t.Run("Update Replaces Destinations", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewJobRepository(db)
		job := newTestJob()
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}

		job.Destinations = job.Destinations[:1]
		job.Status = models.JobDisabled
		if err := repo.Update(job); err != nil {
			t.Fatalf("failed to update job: %v", err)
		}

		retrieved, _ := repo.Get(job.ID)
		if len(retrieved.Destinations) != 1 || retrieved.Status != models.JobDisabled {
			t.Errorf("unexpected job after update %+v", retrieved)
		}
	})

	t.Run("List & Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewJobRepository(db)
		jobs := []*models.SyncJob{newTestJob(), newTestJob(), newTestJob()}
		jobs[2].Subject = "other"
		for _, job := range jobs {
			if err := repo.Create(job); err != nil {
				t.Fatalf("failed to create job: %v", err)
			}
		}
		if err := repo.SetStatus(jobs[1].ID, models.JobDisabled); err != nil {
			t.Fatalf("failed to set status: %v", err)
		}

		all, err := repo.List(map[string]any{"subject": "default"})
		if err != nil {
			t.Fatalf("failed to list jobs: %v", err)
		}
		if len(all) != 2 || all[0].Sequence != 1 || len(all[1].Destinations) != 2 {
			t.Errorf("unexpected jobs %+v", all)
		}

		active, err := repo.List(map[string]any{"subject": "default", "status": models.JobActive})
		if err != nil {
			t.Fatalf("failed to list active jobs: %v", err)
		}
		if len(active) != 1 || active[0].ID != jobs[0].ID {
			t.Errorf("expected only the first job active, got %+v", active)
		}

		if err := repo.Delete(jobs[0].ID); err != nil {
			t.Fatalf("failed to delete job: %v", err)
		}
		if _, err := repo.Get(jobs[0].ID); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound after delete, got %v", err)
		}
		if err := repo.Delete(jobs[0].ID); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound deleting twice, got %v", err)
		}

		remaining, _ := repo.List(map[string]any{})
		if len(remaining) != 2 {
			t.Errorf("expected 2 remaining jobs, got %d", len(remaining))
		}
	})

	t.Run("Find", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewJobRepository(db)
		job := newTestJob()
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}

		tests := []struct {
			name string
			ref  string
		}{
			{"Full ID", job.ID},
			{"Sequence", "1"},
			{"Hash Sequence", "#1"},
			{"Prefix", job.ID[:8]},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				found, err := repo.Find(tt.ref)
				if err != nil || found.ID != job.ID {
					t.Errorf("Find(%q) = %v, %v", tt.ref, found, err)
				}
			})
		}

		if _, err := repo.Find("42"); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
		if _, err := repo.Find(" "); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestSyncLogRepository(t *testing.T) {
	t.Run("Append & ListRecent", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncLogRepository(db)
		for i, job := range []string{"job-a", "job-b", "job-a"} {
			entry := &models.SyncLogEntry{
				JobID:    job,
				Subject:  "default",
				Platform: models.Deezer,
				Action:   models.ActionSync,
				Status:   models.RunSuccess,
				Message:  "entry " + string(rune('0'+i)),
			}
			if err := repo.Append(entry); err != nil {
				t.Fatalf("failed to append: %v", err)
			}
			if entry.ID == "" || entry.CreatedAt.IsZero() {
				t.Error("expected id and timestamp to be filled in")
			}
		}

		entries, err := repo.ListRecent("default", "", 0)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(entries) != 3 || entries[0].Message != "entry 2" {
			t.Errorf("expected newest first, got %+v", entries)
		}

		filtered, _ := repo.ListRecent("default", "job-b", 10)
		if len(filtered) != 1 || filtered[0].JobID != "job-b" {
			t.Errorf("expected one job-b entry, got %+v", filtered)
		}

		limited, _ := repo.ListRecent("default", "", 2)
		if len(limited) != 2 {
			t.Errorf("expected limit of 2, got %d", len(limited))
		}

		other, _ := repo.ListRecent("someone-else", "", 0)
		if len(other) != 0 {
			t.Errorf("expected no entries for other subject, got %d", len(other))
		}
	})

	t.Run("Append Requires Job And Subject", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if err := NewSyncLogRepository(db).Append(&models.SyncLogEntry{Subject: "default"}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncLogRepository(db)
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		entries := []models.SyncLogEntry{
			{JobID: "a", Platform: models.AllPlatform, Action: models.ActionRun, Status: models.RunSuccess},
			{JobID: "a", Platform: models.Deezer, Action: models.ActionSync, Status: models.RunError},
			{JobID: "b", Platform: models.AllPlatform, Action: models.ActionRun, Status: models.RunPartial},
			{JobID: "a", Platform: models.AllPlatform, Action: models.ActionRun, Status: models.RunError},
			{JobID: "a", Platform: models.AllPlatform, Action: models.ActionRun, Status: models.RunSuccess},
		}
		for i := range entries {
			entries[i].Subject = "default"
			entries[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
			if err := repo.Append(&entries[i]); err != nil {
				t.Fatalf("failed to append: %v", err)
			}
		}

		stats, err := repo.Stats("default")
		if err != nil {
			t.Fatalf("failed to compute stats: %v", err)
		}
		if stats.TotalRuns != 4 || stats.SuccessCount != 2 || stats.PartialCount != 1 || stats.FailedCount != 1 {
			t.Errorf("unexpected totals %+v", stats)
		}
		if stats.LastRun == nil || !stats.LastRun.Equal(base.Add(4*time.Minute)) {
			t.Errorf("unexpected last run %v", stats.LastRun)
		}
		if len(stats.PerJob) != 2 || stats.PerJob[0].JobID != "a" || stats.PerJob[0].Runs != 3 || stats.PerJob[0].Successes != 2 {
			t.Errorf("unexpected per job stats %+v", stats.PerJob)
		}

		empty, err := repo.Stats("nobody")
		if err != nil || empty.TotalRuns != 0 || empty.LastRun != nil {
			t.Errorf("expected empty stats, got %+v, %v", empty, err)
		}
	})
}

func TestResolvedTrackRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewResolvedTrackRepository(db)

	miss, err := repo.Lookup(models.YouTube, "usx1")
	if err != nil || miss != nil {
		t.Fatalf("expected miss, got %v, %v", miss, err)
	}

	track := models.Track{NativeID: "vid1", URI: "https://music.youtube.com/watch?v=vid1", Title: "Song", Artist: "Artist"}
	if err := repo.Store(models.YouTube, "USX1", track); err != nil {
		t.Fatalf("failed to store: %v", err)
	}
	track.NativeID = "vid2"
	if err := repo.Store(models.YouTube, "USX1", track); err != nil {
		t.Fatalf("failed to overwrite: %v", err)
	}
	if err := repo.Store(models.Deezer, "USX1", models.Track{NativeID: "99"}); err != nil {
		t.Fatalf("failed to store: %v", err)
	}

	hit, err := repo.Lookup(models.YouTube, "USX1")
	if err != nil || hit == nil || hit.NativeID != "vid2" || hit.Platform != models.YouTube {
		t.Errorf("unexpected hit %v, %v", hit, err)
	}

	counts, err := repo.Count()
	if err != nil || counts[models.YouTube] != 1 || counts[models.Deezer] != 1 {
		t.Errorf("unexpected counts %v, %v", counts, err)
	}

	n, err := repo.Clear(models.YouTube)
	if err != nil || n != 1 {
		t.Errorf("expected 1 cleared, got %d, %v", n, err)
	}
	if err := repo.Store(models.YouTube, "", track); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	seq1, err := NextSequence(db, "sync_jobs")
	if err != nil {
		t.Fatalf("failed to get first sequence: %v", err)
	}

	if seq1 != 1 {
		t.Errorf("expected first sequence to be 1, got %d", seq1)
	}

	seq2, err := NextSequence(db, "sync_jobs")
	if err != nil {
		t.Fatalf("failed to get second sequence: %v", err)
	}

	if seq2 != 2 {
		t.Errorf("expected second sequence to be 2, got %d", seq2)
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected error for table without sequence")
	}
}
