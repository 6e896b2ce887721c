package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"genrify/internal/formatter"
	"genrify/internal/reconcile"
	"genrify/internal/shared"
	"genrify/internal/stats"
	"genrify/internal/ui"
)

// Stats prints the genre distribution of an enriched CSV.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	csvPath := cmd.StringArg("csv")
	if csvPath == "" {
		return fmt.Errorf("%w: csv path", shared.ErrMissingArgument)
	}

	records, err := formatter.ReadCSV(csvPath)
	if err != nil {
		return err
	}

	decisions := make([]reconcile.Decision, len(records))
	for i := range records {
		decisions[i] = records[i].Decision()
	}
	summary := stats.Aggregate(decisions)

	if outPath := cmd.String("output"); outPath != "" {
		if err := formatter.WriteStatsCSV(summary, outPath); err != nil {
			return err
		}
		r.logger.Info("wrote stats CSV", "path", outPath)
	}

	return r.writePlain("%s", ui.RenderSummary(summary))
}
