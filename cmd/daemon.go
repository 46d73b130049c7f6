package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/gofrs/flock"
	"github.com/urfave/cli/v3"
)

// acquireLock takes the daemon lock file so only one scheduler runs per database.
func (r *Runner) acquireLock() (*flock.Flock, error) {
	path := r.config.Sync.LockFile
	if path == "" {
		path = filepath.Join(filepath.Dir(r.config.Database.Path), "tunesync.lock")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: another daemon holds %s", shared.ErrServiceUnavailable, path)
	}
	return lock, nil
}

// Daemon runs the scheduler and the JSON API until SIGINT or SIGTERM.
func (r *Runner) Daemon(ctx context.Context, cmd *cli.Command) error {
	lock, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release daemon lock", "error", err)
		}
	}()

	if err := r.open(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.scheduler.Start(ctx); err != nil {
		return err
	}
	defer r.scheduler.Stop()

	r.logger.Info("tunesync daemon started", "subject", r.subject, "lock", lock.Path(),
		"interval", r.config.Sync.Interval.Duration)

	if cmd.Bool("no-api") {
		<-ctx.Done()
		r.logger.Info("shutting down")
		return nil
	}

	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger), server.RequestLogger(r.logger))
	server.NewAPIHandler(r.svc, r.subject, r.logger).Register(router)

	err = server.Serve(ctx, server.New(r.config.Server.Addr(), router), r.logger)
	r.logger.Info("shutting down")
	return err
}
