// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/tracksig/internal/formatter"
	"github.com/desertthunder/tracksig/internal/similarity"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand creates the config file if missing and migrates the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// dbCommand handles schema maintenance
func dbCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Database maintenance",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "List applied migrations",
				Action: r.DBStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Revert the most recent migration",
				Action: r.DBRollback,
			},
		},
	}
}

// ingestCommand handles catalog ingestion
func ingestCommand(r *Runner) *cli.Command {
	idFlag := func(what string) cli.Flag {
		return &cli.StringFlag{
			Name:     "id",
			Usage:    what + " ID in the catalog",
			Required: true,
		}
	}

	return &cli.Command{
		Name:  "ingest",
		Usage: "Store previewable tracks from the catalog",
		Commands: []*cli.Command{
			{
				Name:   "artist",
				Usage:  "Ingest every album and single of an artist",
				Flags:  []cli.Flag{idFlag("Artist")},
				Action: r.IngestArtist,
			},
			{
				Name:   "album",
				Usage:  "Ingest the tracks of one album",
				Flags:  []cli.Flag{idFlag("Album")},
				Action: r.IngestAlbum,
			},
		},
	}
}

// signaturesCommand handles signature computation
func signaturesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "signatures",
		Aliases: []string{"sig"},
		Usage:   "Compute and inspect track signatures",
		Commands: []*cli.Command{
			{
				Name:  "compute",
				Usage: "Compute signatures for stored tracks that lack one",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of pending tracks to process (0 = all)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Tracks per batch and per grouped write-back (0 = configured)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent extractions per batch (0 = configured)",
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Hide the progress bar",
					},
				},
				Action: r.SignaturesCompute,
			},
			{
				Name:  "show",
				Usage: "Print the stored signature of a track",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Track ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SignaturesShow,
			},
		},
	}
}

// tracksCommand handles stored track lookups
func tracksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tracks",
		Usage: "Look up stored tracks",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Show one stored track",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Track ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.TracksGet,
			},
			{
				Name:  "search",
				Usage: "Search titles and artists",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Text to match",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tracks to return",
						Value: 30,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TracksSearch,
			},
			{
				Name:  "similar",
				Usage: "Rank stored tracks by signature distance",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Reference track ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "metric",
						Aliases: []string{"m"},
						Usage:   "Distance metric (cosine, euclidean, manhattan, chebyshev, minkowski, correlation)",
						Value:   string(similarity.Cosine),
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of matches",
						Value: 20,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (json, csv, markdown, txt)",
						Value:   formatter.FormatText,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the export to a file instead of stdout (use \"auto\" for {id}_similar.{ext})",
					},
				},
				Action: r.TracksSimilar,
			},
		},
	}
}

// compareCommand computes two local signatures and prints every metric
func compareCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Compare two local audio files (WAV or MP3) across every distance metric",
		ArgsUsage: "FILE_A FILE_B",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "a"},
			&cli.StringArg{Name: "b"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Compare,
	}
}

// serveCommand runs the HTTP surface
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API and the progress stream",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from [server] config)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for browsing the library and computing signatures.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for browsing tracks and computing signatures",
		Action:  r.TUI,
	}
}
