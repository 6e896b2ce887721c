package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"genrify/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
	})

	app := &cli.Command{
		Name:     "genrify",
		Usage:    "Enrich playlists with reconciled genres from Last.fm, Spotify & MusicBrainz",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrAllProvidersDown) {
			logger.Fatalf("aborted: %v", err)
		}
		logger.Fatalf("application error: %v", err)
	}
}
