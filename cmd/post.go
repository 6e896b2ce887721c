package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"genrify/internal/enrich"
	"genrify/internal/formatter"
	"genrify/internal/providers"
	"genrify/internal/reconcile"
	"genrify/internal/shared"
	"genrify/internal/stats"
	"genrify/internal/taxonomy"
	"genrify/internal/ui"
)

// Post reprocesses a previously written CSV: recomputes the statistics and,
// when Spotify credentials are available, fills in missing audio features.
// Genre providers are never re-queried.
func (r *Runner) Post(ctx context.Context, cmd *cli.Command) error {
	csvPath := cmd.StringArg("csv")
	if csvPath == "" {
		return fmt.Errorf("%w: csv path", shared.ErrMissingArgument)
	}

	config := r.loadConfig(cmd)

	records, err := formatter.ReadCSV(csvPath)
	if err != nil {
		return err
	}
	r.logger.Info("read enriched CSV", "path", csvPath, "records", len(records))

	var report *enrich.PlaylistReport
	_, spotifyProvider := r.buildProviders(ctx, config)

	if cmd.Bool("features") && spotifyProvider != nil {
		db, store, err := r.openCache(config)
		if err != nil {
			return err
		}
		defer db.Close()

		tax, err := taxonomy.Default()
		if err != nil {
			return err
		}
		engine, err := r.buildEngine(config, []providers.Provider{spotifyProvider}, spotifyProvider, store, tax, true)
		if err != nil {
			return err
		}

		prog := make(chan enrich.ProgressUpdate, 256)
		done := make(chan struct{})
		go r.drainProgress(prog, done)

		report, err = engine.Post(ctx, prog, csvPath, records)
		close(prog)
		<-done
		if err != nil {
			return err
		}
	} else {
		// No feature source; recompute the summary alone.
		decisions := make([]reconcile.Decision, len(records))
		for i := range records {
			decisions[i] = records[i].Decision()
		}
		report = &enrich.PlaylistReport{
			RunID:   shared.GenerateID(),
			Source:  csvPath,
			Records: records,
			Summary: stats.Aggregate(decisions),
		}
	}

	outPath := cmd.String("output")
	if outPath == "" {
		outPath = csvPath
	}
	if err := formatter.WriteCSV(report, outPath); err != nil {
		return err
	}
	r.logger.Info("wrote enriched CSV", "path", outPath, "run_id", report.RunID)

	statsPath := cmd.String("stats-output")
	if statsPath == "" {
		statsPath = derivedPath(csvPath, "_stats.csv")
	}
	if err := formatter.WriteStatsCSV(report.Summary, statsPath); err != nil {
		return err
	}

	return r.writePlain("%s", ui.RenderSummary(report.Summary))
}
