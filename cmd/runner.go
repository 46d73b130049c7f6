package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/credentials"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and platform adapters are opened lazily so commands like `setup config` work without a database.
type Runner struct {
	config     *shared.Config
	configPath string
	subject    string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	db        *sql.DB
	ownsDB    bool
	registry  *services.Registry
	manager   *credentials.Manager
	jobs      *repositories.JobRepository
	logs      *repositories.SyncLogRepository
	cache     *repositories.ResolvedTrackRepository
	engine    *tasks.Engine
	scheduler *tasks.Scheduler
	svc       *tasks.SyncService
}

// RunnerOpts contains configuration options for creating a Runner.
//
// DB and Registry are normally built from the configuration; tests inject an in-memory database and fake adapters.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB
	Registry   *services.Registry
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		subject:    opts.Config.Sync.Subject,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		db:         opts.DB,
		registry:   opts.Registry,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, jobsCommand, logsCommand, statsCommand, cacheCommand,
		daemonCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the environment file and configuration named by the global flags.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	r.configPath = cmd.String("config")
	envPath := filepath.Join(filepath.Dir(r.configPath), ".env")
	if err := shared.LoadEnvFile(envPath); err != nil {
		r.logger.Warn("failed to load environment file", "path", envPath, "error", err)
	}

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}
	r.config.ApplyEnv()

	r.subject = r.config.Sync.Subject
	if s := strings.TrimSpace(cmd.String("subject")); s != "" {
		r.subject = s
	}
	return ctx, nil
}

// SetLogger replaces the logger used by the runner and everything it builds afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// open builds the storage layer, adapters and sync service on first use.
func (r *Runner) open() error {
	if r.svc != nil {
		return nil
	}

	if r.db == nil {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return err
		}
		r.db = db
		r.ownsDB = true
	}

	if r.registry == nil {
		registry, err := services.NewRegistryFromConfig(r.config.Credentials,
			services.WithHTTPClient(r.httpClient),
			services.WithLogger(r.logger),
		)
		if err != nil {
			return err
		}
		r.registry = registry
	}

	syncCfg := r.config.Sync
	r.jobs = repositories.NewJobRepository(r.db)
	r.logs = repositories.NewSyncLogRepository(r.db)
	r.cache = repositories.NewResolvedTrackRepository(r.db)
	r.manager = credentials.NewManager(
		repositories.NewCredentialRepository(r.db),
		r.registry,
		credentials.WithMargin(syncCfg.RefreshMargin.Duration),
		credentials.WithLogger(r.logger),
	)
	r.engine = tasks.NewEngine(r.registry, r.manager, r.jobs, r.logs,
		tasks.WithCallTimeout(syncCfg.CallTimeout.Duration),
		tasks.WithFetchTimeout(syncCfg.FetchTimeout.Duration),
		tasks.WithResolutionCache(r.cache),
		tasks.WithEngineLogger(r.logger),
	)
	r.scheduler = tasks.NewScheduler(r.engine, r.jobs, r.manager, tasks.SchedulerConfigFrom(syncCfg), r.logger)
	r.svc = tasks.NewSyncService(r.registry, r.manager, r.jobs, r.logs, r.scheduler, r.logger)
	return nil
}

// Close releases the database if the runner opened it.
func (r *Runner) Close() error {
	if r.db == nil || !r.ownsDB {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.ownsDB = false
	r.svc = nil
	return err
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBlock(block string) error {
	return r.writePlain("%s\n", strings.TrimRight(block, "\n"))
}
