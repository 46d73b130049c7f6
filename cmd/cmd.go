// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.StringFlag{
			Name:    "subject",
			Aliases: []string{"s"},
			Usage:   "Subject (user) whose connections and jobs are used",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
}

func platformFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "platform",
		Aliases:  []string{"p"},
		Usage:    "Platform: spotify, deezer or youtube",
		Required: required,
	}
}

func jobArg() cli.Argument {
	return &cli.StringArg{Name: "job", UsageText: "job id, id prefix or #sequence"}
}

// setupCommand handles setup operations for configuration and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a configuration file from the built-in template",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles platform connections
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage platform connections",
		Commands: []*cli.Command{
			{
				Name:      "connect",
				Usage:     "Connect a platform through its OAuth flow",
				Arguments: []cli.Argument{&cli.StringArg{Name: "platform"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.AuthConnect,
			},
			{
				Name:  "status",
				Usage: "Show the connection state of every platform",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.AuthStatus,
			},
			{
				Name:      "disconnect",
				Usage:     "Remove a stored connection",
				Arguments: []cli.Argument{&cli.StringArg{Name: "platform"}},
				Action:    r.AuthDisconnect,
			},
		},
	}
}

// playlistsCommand lists the playlists of a connected platform
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List playlists on a connected platform",
		Flags: []cli.Flag{
			platformFlag(true),
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Playlists,
	}
}

// jobsCommand manages sync jobs
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Manage sync jobs",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a job mirroring a source playlist onto a destination platform",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Source playlist as platform:playlist-id",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "dest",
						Usage:    "Destination platform",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Name of the destination playlist",
						Required: true,
					},
				},
				Action: r.JobsCreate,
			},
			{
				Name:      "add-dest",
				Usage:     "Add another destination platform to a job",
				Arguments: []cli.Argument{jobArg()},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dest", Usage: "Destination platform", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Name of the destination playlist", Required: true},
				},
				Action: r.JobsAddDest,
			},
			{
				Name:  "list",
				Usage: "List jobs",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.JobsList,
			},
			{
				Name:      "show",
				Usage:     "Show one job and its destinations",
				Arguments: []cli.Argument{jobArg()},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.JobsShow,
			},
			{
				Name:      "run",
				Usage:     "Run a job now, ignoring the minimum interval",
				Arguments: []cli.Argument{jobArg()},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.JobsRun,
			},
			{
				Name:      "enable",
				Usage:     "Enable a job and clear its error state",
				Arguments: []cli.Argument{jobArg()},
				Action:    r.JobsEnable,
			},
			{
				Name:      "disable",
				Usage:     "Stop scheduling a job",
				Arguments: []cli.Argument{jobArg()},
				Action:    r.JobsDisable,
			},
			{
				Name:      "delete",
				Usage:     "Delete a job",
				Arguments: []cli.Argument{jobArg()},
				Action:    r.JobsDelete,
			},
		},
	}
}

// logsCommand prints recent sync log entries
func logsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Show recent sync history",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "job", Usage: "Only entries of this job"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "table, csv or json", Value: "table"},
		},
		Action: r.Logs,
	}
}

// statsCommand prints aggregate run statistics
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show sync statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Stats,
	}
}

// cacheCommand manages the track resolution cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the track resolution cache",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show cached resolutions per platform",
				Action: r.CacheStatus,
			},
			{
				Name:   "clear",
				Usage:  "Forget cached resolutions so tracks are searched again",
				Flags:  []cli.Flag{platformFlag(false)},
				Action: r.CacheClear,
			},
		},
	}
}

// daemonCommand runs the scheduler with the JSON API
func daemonCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run scheduled syncs and serve the JSON API until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-api", Usage: "Do not start the HTTP API"},
		},
		Action: r.Daemon,
	}
}

// tuiCommand returns the top-level TUI command for the jobs dashboard.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive jobs dashboard",
		Action:  r.TUI,
	}
}
