// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func taxonomyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "taxonomy",
		Usage: "Path to a taxonomy TOML file overriding the embedded one",
	}
}

// analyzeCommand runs a fresh enrichment over an M3U playlist.
func analyzeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "analyze",
		Aliases: []string{"an"},
		Usage:   "Enrich an M3U playlist with reconciled genres and write a CSV report",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "playlist",
			},
		},
		Flags: []cli.Flag{
			configFlag(),
			taxonomyFlag(),
			&cli.StringFlag{
				Name:    "music-dir",
				Aliases: []string{"m"},
				Usage:   "Music root directory for resolving relative playlist paths",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output CSV path (default: <playlist>_enriched.csv)",
			},
			&cli.StringFlag{
				Name:  "stats-output",
				Usage: "Stats CSV path (default: <playlist>_stats.csv)",
			},
			&cli.BoolFlag{
				Name:  "features",
				Usage: "Fetch Spotify audio features and analysis",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "loved-tracks",
				Usage: "Path to a loved tracks M3U file",
			},
			&cli.StringFlag{
				Name:  "loved-albums",
				Usage: "Path to a loved albums M3U file",
			},
			&cli.StringFlag{
				Name:  "loved-artists",
				Usage: "Path to a loved artists M3U file",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log every processed track",
			},
		},
		Action: r.Analyze,
	}
}

// postCommand reprocesses a previously written CSV without re-querying genre providers.
func postCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "post",
		Usage: "Reprocess an enriched CSV: fill missing audio features and recompute stats",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "csv",
			},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output CSV path (default: overwrite the input)",
			},
			&cli.StringFlag{
				Name:  "stats-output",
				Usage: "Stats CSV path (default: <csv>_stats.csv)",
			},
			&cli.BoolFlag{
				Name:  "features",
				Usage: "Fetch missing Spotify audio features",
				Value: true,
			},
		},
		Action: r.Post,
	}
}

// statsCommand prints the genre distribution of an enriched CSV.
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print genre statistics for an enriched CSV",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "csv",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Also write the stats as CSV to this path",
			},
		},
		Action: r.Stats,
	}
}

// taxonomyCommand inspects the canonical genre tree.
func taxonomyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "taxonomy",
		Usage: "Show the genre taxonomy and alias table",
		Flags: []cli.Flag{
			taxonomyFlag(),
		},
		Action: r.Taxonomy,
	}
}

// setupCommand writes the config template and initializes the cache database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create a config file and initialize the lookup cache",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "purge",
				Usage: "Purge expired cache entries",
			},
		},
		Action: r.Setup,
	}
}
