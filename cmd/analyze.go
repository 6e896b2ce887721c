package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"genrify/internal/enrich"
	"genrify/internal/formatter"
	"genrify/internal/playlist"
	"genrify/internal/shared"
	"genrify/internal/ui"
)

// Analyze runs the full enrichment pipeline over an M3U playlist.
func (r *Runner) Analyze(ctx context.Context, cmd *cli.Command) error {
	playlistPath := cmd.StringArg("playlist")
	if playlistPath == "" {
		return fmt.Errorf("%w: playlist path", shared.ErrMissingArgument)
	}
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	config := r.loadConfig(cmd)

	genreProviders, spotifyProvider := r.buildProviders(ctx, config)
	if len(genreProviders) == 0 {
		return fmt.Errorf("%w: configure at least one provider credential", shared.ErrMissingCredentials)
	}

	tax, err := r.loadTaxonomy(cmd)
	if err != nil {
		return err
	}

	db, store, err := r.openCache(config)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := r.buildEngine(config, genreProviders, spotifyProvider, store, tax, cmd.Bool("features"))
	if err != nil {
		return err
	}

	tracks, err := playlist.Parse(playlistPath, cmd.String("music-dir"), r.logger)
	if err != nil {
		return err
	}
	r.logger.Info("parsed playlist", "path", playlistPath, "tracks", len(tracks))

	loved, err := playlist.LoadLovedSets(
		cmd.String("loved-tracks"), cmd.String("loved-albums"), cmd.String("loved-artists"),
		cmd.String("music-dir"), r.logger)
	if err != nil {
		return err
	}

	prog := make(chan enrich.ProgressUpdate, 256)
	done := make(chan struct{})
	go r.drainProgress(prog, done)

	report, err := engine.Enrich(ctx, prog, playlistPath, tracks)
	close(prog)
	<-done
	if err != nil {
		return err
	}

	for i := range report.Records {
		record := &report.Records[i]
		record.Loved.Track, record.Loved.Album, record.Loved.Artist = loved.Flags(record.Track.Path)
	}

	outPath := cmd.String("output")
	if outPath == "" {
		outPath = derivedPath(playlistPath, "_enriched.csv")
	}
	if err := formatter.WriteCSV(report, outPath); err != nil {
		return err
	}
	r.logger.Info("wrote enriched CSV", "path", outPath, "run_id", report.RunID)

	statsPath := cmd.String("stats-output")
	if statsPath == "" {
		statsPath = derivedPath(playlistPath, "_stats.csv")
	}
	if err := formatter.WriteStatsCSV(report.Summary, statsPath); err != nil {
		return err
	}
	r.logger.Info("wrote stats CSV", "path", statsPath)

	return r.writePlain("%s", ui.RenderSummary(report.Summary))
}

// derivedPath swaps the input's extension for a suffix, so mix.m3u becomes
// mix_enriched.csv.
func derivedPath(input, suffix string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + suffix
}
