package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"genrify/internal/shared"
)

// Setup creates the config file from the embedded template and initializes
// the lookup cache database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("config file already exists", "path", configPath)
	} else {
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.logger.Info("config file created", "path", configPath)
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return err
	}
	config.ApplyEnv()

	db, store, err := r.openCache(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if cmd.Bool("purge") {
		n, err := store.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		r.logger.Info("purged expired cache entries", "removed", n)
	}

	count, err := store.Len(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("cache ready", "path", config.Cache.Path, "entries", count)
	return nil
}
