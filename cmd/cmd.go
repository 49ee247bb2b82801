// submodule cmd contains command definitions
package main

import (
	"strings"
	"time"

	"github.com/desertthunder/audiocache/internal/formatter"
	"github.com/desertthunder/audiocache/internal/shared"
	"github.com/urfave/cli/v3"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (" + strings.Join(formatter.Formats, ", ") + ")",
		Value:   "text",
	}
}

// resolveCommand resolves a single query through the cache tiers
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Aliases:   []string{"r"},
		Usage:     "Resolve a search, URL or Spotify URI into playable tracks",
		ArgsUsage: "<query>",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "query",
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Ignore the local cache and ask the load node again",
			},
			&cli.IntFlag{
				Name:  "level",
				Usage: "Cache level bitmask for this query (1 metadata, 2 url, 4 load); -1 uses the configured level",
				Value: -1,
			},
			formatFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the result to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "no-policy",
				Usage: "Skip the keyword allow/deny lists",
			},
		},
		Action: r.Resolve,
	}
}

// randomCommand picks tracks from a recently played cached result
func randomCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "random",
		Usage:  "Print the tracks of a random recently played cached result",
		Flags:  []cli.Flag{formatFlag()},
		Action: r.Random,
	}
}

// spotifyCommand browses Spotify metadata
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Browse Spotify categories and playlists",
		Commands: []*cli.Command{
			{
				Name:  "categories",
				Usage: "List browse categories",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SpotifyCategories,
			},
			{
				Name:      "playlists",
				Usage:     "List the playlists of a browse category",
				ArgsUsage: "<category>",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "category",
					},
				},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists to print",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SpotifyPlaylists,
			},
		},
	}
}

// cacheCommand handles local cache inspection and maintenance
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the local cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show row counts per cache table",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheStats,
			},
			{
				Name:  "contribute",
				Usage: "Submit every eligible cached result to the community cache",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Records submitted between pauses",
						Value: 1000,
					},
					&cli.DurationFlag{
						Name:  "pause",
						Usage: "Pause between chunks",
						Value: 5 * time.Second,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent submissions within a chunk (max 10)",
						Value: 5,
					},
				},
				Action: r.CacheContribute,
			},
			{
				Name:   "migrations",
				Usage:  "Show applied and pending migrations",
				Action: r.CacheMigrations,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.CacheRollback,
			},
		},
	}
}

// configCommand reads and writes runtime settings
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change configuration",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: r.ConfigShow,
			},
			{
				Name:      "set",
				Usage:     "Change a setting (" + strings.Join(shared.SettingKeys, ", ") + ")",
				ArgsUsage: "<key> <value>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "key"},
					&cli.StringArg{Name: "value"},
				},
				Action: r.ConfigSet,
			},
		},
	}
}

// setupCommand writes a config file and initializes the database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, then initialize the database and run migrations",
		Action: r.Setup,
	}
}

// serveCommand runs the HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the resolution API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}
