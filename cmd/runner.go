package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"genrify/internal/cache"
	"genrify/internal/enrich"
	"genrify/internal/features"
	"genrify/internal/providers"
	"genrify/internal/reconcile"
	"genrify/internal/resilience"
	"genrify/internal/shared"
	"genrify/internal/taxonomy"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		analyzeCommand, postCommand, statsCommand, taxonomyCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the config file named by the command's --config flag,
// falling back to embedded defaults, then overlays environment credentials.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	path := cmd.String("config")
	config := r.config

	if _, err := os.Stat(path); err == nil {
		if loaded, err := shared.LoadConfig(path); err == nil {
			config = loaded
		} else {
			r.logger.Warn("failed to load config, using defaults", "path", path, "error", err)
		}
	}

	config.ApplyEnv()
	return config
}

// buildProviders constructs every genre provider with usable credentials.
// A missing credential disables that provider alone.
func (r *Runner) buildProviders(ctx context.Context, config *shared.Config) ([]providers.Provider, *providers.SpotifyProvider) {
	var list []providers.Provider
	var spotifyProvider *providers.SpotifyProvider

	if key := config.Credentials.LastFM.APIKey; key != "" {
		if p, err := providers.NewLastFMProvider(key); err != nil {
			r.logger.Warn("lastfm disabled", "error", err)
		} else {
			list = append(list, p)
		}
	} else {
		r.logger.Debug("lastfm disabled: no api key configured")
	}

	creds := config.Credentials.Spotify
	if creds.ClientID != "" && creds.ClientSecret != "" {
		if p, err := providers.NewSpotifyProvider(ctx, creds.ClientID, creds.ClientSecret); err != nil {
			r.logger.Warn("spotify disabled", "error", err)
		} else {
			list = append(list, p)
			spotifyProvider = p
		}
	} else {
		r.logger.Debug("spotify disabled: no client credentials configured")
	}

	mb := config.Credentials.MusicBrainz
	if mb.Contact != "" {
		if p, err := providers.NewMusicBrainzProvider(mb.AppName, mb.AppVersion, mb.Contact); err != nil {
			r.logger.Warn("musicbrainz disabled", "error", err)
		} else {
			list = append(list, p)
		}
	} else {
		r.logger.Debug("musicbrainz disabled: no contact configured")
	}

	return list, spotifyProvider
}

// openCache opens the sqlite lookup cache named by config.
func (r *Runner) openCache(config *shared.Config) (*sql.DB, *cache.Store, error) {
	path := config.Cache.Path
	if path == "" {
		path = "genrify.db"
	}
	ttl := time.Duration(config.Cache.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	shared.ConfigureDatabase(db, 4, 2)

	store, err := cache.NewStore(db, ttl, r.logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

// loadTaxonomy returns the embedded taxonomy or the override file named by
// the command's --taxonomy flag.
func (r *Runner) loadTaxonomy(cmd *cli.Command) (*taxonomy.Taxonomy, error) {
	if path := cmd.String("taxonomy"); path != "" {
		return taxonomy.LoadFile(path, os.ReadFile)
	}
	return taxonomy.Default()
}

// buildEngine wires the full pipeline from config.
func (r *Runner) buildEngine(
	config *shared.Config,
	genreProviders []providers.Provider,
	spotifyProvider *providers.SpotifyProvider,
	store *cache.Store,
	tax *taxonomy.Taxonomy,
	withFeatures bool,
) (*enrich.Engine, error) {
	ec := config.Enrich

	policy := resilience.DefaultPolicy()
	if ec.MaxAttempts > 0 {
		policy.MaxAttempts = ec.MaxAttempts
	}
	if ec.BackoffBaseMS > 0 {
		policy.BackoffBase = time.Duration(ec.BackoffBaseMS) * time.Millisecond
	}
	if ec.BackoffCapMS > 0 {
		policy.BackoffCap = time.Duration(ec.BackoffCapMS) * time.Millisecond
	}
	if ec.BreakerThreshold > 0 {
		policy.BreakerThreshold = ec.BreakerThreshold
	}
	if ec.BreakerCooldownS > 0 {
		policy.BreakerCooldown = time.Duration(ec.BreakerCooldownS) * time.Second
	}
	ctrl := resilience.NewController(policy, resilience.ControllerOpts{Logger: r.logger})

	voter := reconcile.NewEngine(reconcile.Config{
		TrustWeights:      ec.TrustWeights,
		StaleWeight:       ec.StaleWeight,
		SubgenreThreshold: ec.SubgenreThreshold,
	})

	var collector *features.Collector
	if withFeatures && spotifyProvider != nil {
		var err error
		if collector, err = features.NewCollector(spotifyProvider, ctrl, store, r.logger); err != nil {
			return nil, err
		}
	}

	return enrich.NewEngine(genreProviders, ctrl, store, tax, voter, collector,
		enrich.Options{Workers: ec.Workers, RateLimits: ec.RateLimits}, r.logger)
}

// drainProgress consumes progress updates, logging phase transitions.
func (r *Runner) drainProgress(prog <-chan enrich.ProgressUpdate, done chan<- struct{}) {
	for update := range prog {
		switch update.Phase {
		case enrich.PhaseTrack:
			r.logger.Debug(update.Message, "step", update.Step, "total", update.Total)
		case enrich.PhaseProviderDown:
			r.logger.Warn(update.Message)
		default:
			r.logger.Info(update.Message)
		}
	}
	close(done)
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
