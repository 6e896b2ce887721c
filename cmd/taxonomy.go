package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"genrify/internal/ui"
)

// Taxonomy prints the canonical genre tree and alias table.
func (r *Runner) Taxonomy(ctx context.Context, cmd *cli.Command) error {
	tax, err := r.loadTaxonomy(cmd)
	if err != nil {
		return err
	}
	return r.writePlain("%s", ui.RenderTaxonomy(tax))
}
