package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	tu "github.com/desertthunder/tunesync/internal/testing"
)

type cliHarness struct {
	runner  *Runner
	output  *bytes.Buffer
	config  string
	spotify *tu.FakeAdapter
	deezer  *tu.FakeAdapter
	youtube *tu.FakeAdapter
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	h := &cliHarness{
		output:  &bytes.Buffer{},
		config:  filepath.Join(t.TempDir(), "config.toml"),
		spotify: tu.NewFakeAdapter(models.Spotify),
		deezer:  tu.NewFakeAdapter(models.Deezer),
		youtube: tu.NewFakeAdapter(models.YouTube),
	}
	h.runner = NewRunner(RunnerOpts{
		Logger:   log.New(io.Discard),
		Output:   h.output,
		DB:       db,
		Registry: services.NewRegistry(h.spotify, h.deezer, h.youtube),
	})
	return h
}

func (h *cliHarness) connect(t *testing.T, platforms ...models.Platform) {
	t.Helper()
	if err := h.runner.open(); err != nil {
		t.Fatalf("failed to open runner: %v", err)
	}
	for _, p := range platforms {
		cred := &models.Credential{Platform: p, Subject: "default", AccessToken: string(p) + "-token"}
		if err := h.runner.manager.Connect(cred); err != nil {
			t.Fatalf("failed to connect %s: %v", p, err)
		}
	}
}

// run executes the CLI with args and returns what it printed.
func (h *cliHarness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	h.output.Reset()
	argv := append([]string{"tunesync", "--config", h.config}, args...)
	err := newApp(h.runner).Run(context.Background(), argv)
	return h.output.String(), err
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			registry := services.NewRegistry()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Registry:   registry,
			})

			if runner.config != config || runner.logger != logger || runner.output != output {
				t.Error("expected config, logger and output to be set")
			}
			if runner.httpClient != httpClient || runner.registry != registry {
				t.Error("expected httpClient and registry to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.subject != "default" {
				t.Errorf("expected subject from config, got %s", runner.subject)
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil || runner.logger == nil {
				t.Error("expected default config and logger")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), `"key": "value"`) || !strings.HasSuffix(output.String(), "\n") {
				t.Errorf("expected formatted JSON with newline, got %q", output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			if err := runner.writeJSON(make(chan int), false); err == nil {
				t.Error("expected marshal error")
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})
			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})
		if err := runner.writePlain("Hello %s\n", "World"); err != nil || output.String() != "Hello World\n" {
			t.Errorf("unexpected output %q (%v)", output.String(), err)
		}

		failing := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := failing.writePlain("x"); err == nil {
			t.Error("expected write error")
		}
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		names := map[string]bool{}
		for _, cmd := range runner.register() {
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "auth", "playlists", "jobs", "logs", "stats", "cache", "daemon", "tui"} {
			if !names[want] {
				t.Errorf("expected %s command to be registered", want)
			}
		}
	})
}

func TestParsing(t *testing.T) {
	t.Run("parseSource", func(t *testing.T) {
		p, id, err := parseSource("spotify:spotify:playlist:37i9")
		if err != nil || p != models.Spotify || id != "spotify:playlist:37i9" {
			t.Errorf("unexpected parse %s %s %v", p, id, err)
		}
		for _, bad := range []string{"spotify", "spotify:", "tidal:123"} {
			if _, _, err := parseSource(bad); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument for %q, got %v", bad, err)
			}
		}
	})

	t.Run("parsePlatform", func(t *testing.T) {
		if _, err := parsePlatform(""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if p, err := parsePlatform("YouTube"); err != nil || p != models.YouTube {
			t.Errorf("expected youtube, got %s %v", p, err)
		}
	})

	t.Run("callbackAddr", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		runner.config.Credentials.Deezer.RedirectURI = "http://localhost:8089/deezer/callback"
		runner.config.Credentials.YouTube.RedirectURI = ""

		addr, path, err := runner.callbackAddr(models.Deezer)
		if err != nil || addr != "localhost:8089" || path != "/deezer/callback" {
			t.Errorf("unexpected deezer callback %s %s %v", addr, path, err)
		}
		addr, path, err = runner.callbackAddr(models.YouTube)
		if err != nil || addr != runner.config.Server.Addr() || path != "/callback" {
			t.Errorf("expected server defaults, got %s %s %v", addr, path, err)
		}
	})
}

func TestCommands(t *testing.T) {
	t.Run("setup config", func(t *testing.T) {
		h := newCLIHarness(t)

		out, err := h.run(t, "setup", "config")
		if err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		tu.AssertFileExists(t, h.config)
		if !strings.Contains(tu.MustReadFile(t, h.config), "[credentials.deezer]") {
			t.Error("config file should contain the deezer section")
		}
		if !strings.Contains(out, "Configuration written") {
			t.Errorf("unexpected output %q", out)
		}

		if _, err := h.run(t, "setup", "config"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected existing file to be refused, got %v", err)
		}
		if _, err := h.run(t, "setup", "config", "--force"); err != nil {
			t.Errorf("expected --force to overwrite, got %v", err)
		}
	})

	t.Run("setup database", func(t *testing.T) {
		h := newCLIHarness(t)
		h.runner.config.Database.Path = filepath.Join(t.TempDir(), "tunesync.db")

		out, err := h.run(t, "setup", "database")
		if err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		if !strings.Contains(out, "Database ready") || !strings.Contains(out, "migration 0001") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("jobs lifecycle", func(t *testing.T) {
		h := newCLIHarness(t)
		h.connect(t, models.Spotify, models.Deezer)
		h.spotify.SetPlaylist("src", "Favorites",
			models.Track{Platform: models.Spotify, NativeID: "sp1", Title: "Song A", Artist: "X", ISRC: "ISRC1"})
		h.deezer.AddCatalog(models.Track{Platform: models.Deezer, NativeID: "dz1", Title: "Song A", Artist: "X", ISRC: "ISRC1"})

		out, err := h.run(t, "jobs", "create", "--source", "spotify:src", "--dest", "deezer", "--name", "Mirror")
		if err != nil {
			t.Fatalf("jobs create failed: %v", err)
		}
		if !strings.Contains(out, "Created job #1") {
			t.Errorf("unexpected create output %q", out)
		}

		if out, _ = h.run(t, "jobs", "list"); !strings.Contains(out, "spotify:src") {
			t.Errorf("jobs list missing job, got %q", out)
		}

		out, err = h.run(t, "jobs", "run", "1")
		if err != nil {
			t.Fatalf("jobs run failed: %v", err)
		}
		if !strings.Contains(out, "success: added 1 tracks") {
			t.Errorf("unexpected run output %q", out)
		}
		if got := h.deezer.PlaylistIDs(); len(got) != 1 {
			t.Errorf("expected one deezer playlist, got %v", got)
		}

		out, _ = h.run(t, "jobs", "show", "#1", "--json")
		var job models.SyncJob
		if err := json.Unmarshal([]byte(out), &job); err != nil {
			t.Fatalf("invalid job JSON: %v", err)
		}
		if job.LastStatus != models.RunSuccess || job.Destinations[0].PlaylistID == "" {
			t.Errorf("expected a recorded run, got %+v", job)
		}

		if out, _ = h.run(t, "logs", "--format", "csv"); !strings.HasPrefix(out, "Time,Job,Platform,Action,Status,Message") {
			t.Errorf("unexpected csv logs %q", out)
		}

		out, _ = h.run(t, "stats", "--json")
		var stats models.Stats
		if err := json.Unmarshal([]byte(out), &stats); err != nil {
			t.Fatalf("invalid stats JSON: %v", err)
		}
		if stats.TotalRuns != 1 || stats.SuccessCount != 1 {
			t.Errorf("unexpected stats %+v", stats)
		}

		if out, _ = h.run(t, "cache", "status"); !strings.Contains(out, "Deezer") {
			t.Errorf("expected a cached deezer resolution, got %q", out)
		}
		if out, _ = h.run(t, "cache", "clear", "--platform", "deezer"); !strings.Contains(out, "Removed 1") {
			t.Errorf("unexpected cache clear output %q", out)
		}

		if out, _ = h.run(t, "jobs", "disable", "1"); !strings.Contains(out, "disabled") {
			t.Errorf("unexpected disable output %q", out)
		}
		if _, err := h.run(t, "jobs", "run", "1"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected disabled job to be refused, got %v", err)
		}
		if _, err := h.run(t, "jobs", "delete", "1"); err != nil {
			t.Errorf("jobs delete failed: %v", err)
		}
		if _, err := h.run(t, "jobs", "show", "1"); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected deleted job to be gone, got %v", err)
		}
	})

	t.Run("jobs create rejects bad input", func(t *testing.T) {
		h := newCLIHarness(t)

		if _, err := h.run(t, "jobs", "create", "--source", "src", "--dest", "deezer", "--name", "M"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := h.run(t, "logs", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected bad format to be rejected, got %v", err)
		}
	})

	t.Run("run with one connection", func(t *testing.T) {
		h := newCLIHarness(t)
		h.connect(t, models.Spotify)
		h.run(t, "jobs", "create", "--source", "spotify:src", "--dest", "deezer", "--name", "Mirror")

		_, err := h.run(t, "jobs", "run", "1")
		if !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("auth status and disconnect", func(t *testing.T) {
		h := newCLIHarness(t)
		h.connect(t, models.Spotify)

		out, err := h.run(t, "auth", "status")
		if err != nil {
			t.Fatalf("auth status failed: %v", err)
		}
		if !strings.Contains(out, "Spotify") || !strings.Contains(out, "not connected") {
			t.Errorf("unexpected status output %q", out)
		}
		if !strings.Contains(out, "at least two platforms") {
			t.Errorf("expected a hint about connecting two platforms, got %q", out)
		}

		if _, err := h.run(t, "auth", "disconnect", "spotify"); err != nil {
			t.Fatalf("disconnect failed: %v", err)
		}
		out, _ = h.run(t, "auth", "status", "--json")
		if strings.Contains(out, `"connected": true`) {
			t.Errorf("expected no connections, got %q", out)
		}
	})

	t.Run("playlists", func(t *testing.T) {
		h := newCLIHarness(t)
		h.connect(t, models.Deezer)
		h.deezer.SetPlaylist("p1", "Road Trip")

		out, err := h.run(t, "playlists", "--platform", "deezer")
		if err != nil {
			t.Fatalf("playlists failed: %v", err)
		}
		if !strings.Contains(out, "Road Trip") {
			t.Errorf("expected playlist in output, got %q", out)
		}
	})

	t.Run("subject flag", func(t *testing.T) {
		h := newCLIHarness(t)
		h.connect(t, models.Spotify, models.Deezer)
		h.run(t, "jobs", "create", "--source", "spotify:src", "--dest", "deezer", "--name", "Mirror")

		out, err := h.run(t, "--subject", "someone-else", "jobs", "list")
		if err != nil {
			t.Fatalf("jobs list failed: %v", err)
		}
		if !strings.Contains(out, "No sync jobs") {
			t.Errorf("expected no jobs for another subject, got %q", out)
		}
	})
}
