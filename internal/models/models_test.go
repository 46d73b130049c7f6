package models

import (
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{"spotify", Spotify, false},
		{" Deezer ", Deezer, false},
		{"YOUTUBE", YouTube, false},
		{"tidal", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePlatform(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePlatform(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePlatform(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCredential(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ExpiresWithin", func(t *testing.T) {
		tests := []struct {
			name    string
			expires time.Time
			want    bool
		}{
			{"far future", now.Add(time.Hour), false},
			{"inside margin", now.Add(4 * time.Minute), true},
			{"exactly at margin", now.Add(5 * time.Minute), true},
			{"already expired", now.Add(-time.Minute), true},
			{"no expiry", time.Time{}, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c := &Credential{ExpiresAt: tt.expires}
				if got := c.ExpiresWithin(5*time.Minute, now); got != tt.want {
					t.Errorf("ExpiresWithin() = %v, want %v", got, tt.want)
				}
			})
		}
	})

	t.Run("Usable", func(t *testing.T) {
		expired := &Credential{ExpiresAt: now.Add(-time.Minute)}
		if expired.Usable(now) {
			t.Error("expired credential without refresh token should not be usable")
		}
		expired.RefreshToken = "r"
		if !expired.Usable(now) {
			t.Error("expired credential with refresh token should be usable")
		}
	})

	t.Run("WithToken keeps refresh token", func(t *testing.T) {
		c := &Credential{Platform: Spotify, Subject: "u", AccessToken: "old", RefreshToken: "keep"}
		next := c.WithToken(&oauth2.Token{AccessToken: "new", Expiry: now.Add(time.Hour)})

		if next.AccessToken != "new" || next.RefreshToken != "keep" {
			t.Errorf("unexpected token %+v", next)
		}
		if c.AccessToken != "old" {
			t.Error("WithToken should not mutate the receiver")
		}

		rotated := c.WithToken(&oauth2.Token{AccessToken: "new", RefreshToken: "rotated"})
		if rotated.RefreshToken != "rotated" {
			t.Errorf("expected rotated refresh token, got %s", rotated.RefreshToken)
		}
	})
}

func TestSyncJob(t *testing.T) {
	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name    string
			mutate  func(*SyncJob)
			wantErr bool
		}{
			{"valid", func(*SyncJob) {}, false},
			{"missing subject", func(j *SyncJob) { j.Subject = "" }, true},
			{"unknown source", func(j *SyncJob) { j.SourcePlatform = "tidal" }, true},
			{"missing source playlist", func(j *SyncJob) { j.SourcePlaylistID = "" }, true},
			{"no destinations", func(j *SyncJob) { j.Destinations = nil }, true},
			{"destination equals source", func(j *SyncJob) { j.Destinations[0].Platform = Spotify }, true},
			{"duplicate destination", func(j *SyncJob) {
				j.Destinations = append(j.Destinations, Destination{Platform: YouTube, PlaylistName: "x"})
			}, true},
			{"missing name", func(j *SyncJob) { j.Destinations[0].PlaylistName = "" }, true},
			{"bad status", func(j *SyncJob) { j.Status = "paused" }, true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				job := NewSyncJob("u1", Spotify, "pl1", YouTube, "Mirror")
				tt.mutate(job)
				if err := job.Validate(); (err != nil) != tt.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("DueAt", func(t *testing.T) {
		now := time.Now()
		job := NewSyncJob("u1", Spotify, "pl1", Deezer, "Mirror")
		if !job.DueAt(now, 25*time.Minute) {
			t.Error("never-run job should be due")
		}

		recent := now.Add(-10 * time.Minute)
		job.LastRunAt = &recent
		if job.DueAt(now, 25*time.Minute) {
			t.Error("job run 10 minutes ago should not be due")
		}

		old := now.Add(-26 * time.Minute)
		job.LastRunAt = &old
		if !job.DueAt(now, 25*time.Minute) {
			t.Error("job run 26 minutes ago should be due")
		}

		job.Status = JobDisabled
		if job.DueAt(now, 25*time.Minute) {
			t.Error("disabled job should never be due")
		}
	})

	t.Run("Platforms", func(t *testing.T) {
		job := NewSyncJob("u1", Spotify, "pl1", Deezer, "Mirror")
		job.Destinations = append(job.Destinations, Destination{Platform: YouTube, PlaylistName: "Mirror"})

		got := job.Platforms()
		if len(got) != 3 || got[0] != Spotify || got[2] != YouTube {
			t.Errorf("unexpected platforms %v", got)
		}
		if _, ok := job.Destination(YouTube); !ok {
			t.Error("expected youtube destination")
		}
	})
}
