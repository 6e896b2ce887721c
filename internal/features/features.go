// Package features collects per-track audio features and structural analysis
// summaries from a capable provider, through the shared retry controller and
// lookup cache.
//
// Feature collection is best-effort: a track whose features cannot be fetched
// still gets a genre decision, with the failure annotated on its record.
package features

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"

	"genrify/internal/cache"
	"genrify/internal/providers"
	"genrify/internal/resilience"
	"genrify/internal/shared"
)

// Collector fetches audio features and analysis for tracks. Safe for
// concurrent use.
type Collector struct {
	provider providers.Provider
	ctrl     *resilience.Controller
	store    *cache.Store
	logger   *log.Logger
}

// NewCollector wires a feature-capable provider to the controller and cache.
// Returns ErrNoProviders when the provider cannot serve features.
func NewCollector(provider providers.Provider, ctrl *resilience.Controller, store *cache.Store, logger *log.Logger) (*Collector, error) {
	if provider == nil || !provider.SupportsFeatures() {
		return nil, shared.ErrNoProviders
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Collector{
		provider: provider,
		ctrl:     ctrl,
		store:    store,
		logger:   logger.With("component", "features"),
	}, nil
}

// ProviderName returns the name of the backing provider, for rate limiting
// and error annotations.
func (c *Collector) ProviderName() string {
	return c.provider.Name()
}

// Features returns the track's audio feature record. A nil record with nil
// error means the provider has no data for the track (cached as a negative
// entry).
func (c *Collector) Features(ctx context.Context, track providers.Track) (*providers.FeatureRecord, error) {
	entry, err := c.fetch(ctx, track, providers.QueryFeatures, func(ctx context.Context) (any, error) {
		return c.provider.FetchFeatures(ctx, track)
	})
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.Features()
}

// Analysis returns the track's structural analysis summary, nil when the
// provider has none.
func (c *Collector) Analysis(ctx context.Context, track providers.Track) (*providers.AnalysisRecord, error) {
	entry, err := c.fetch(ctx, track, providers.QueryAnalysis, func(ctx context.Context) (any, error) {
		return c.provider.FetchAnalysis(ctx, track)
	})
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.Analysis()
}

// fetch is the cache-through path shared by Features and Analysis. Stale
// entries are acceptable only while the provider's circuit is open.
func (c *Collector) fetch(ctx context.Context, track providers.Track, kind providers.QueryKind, fn func(context.Context) (any, error)) (*cache.Entry, error) {
	name := c.provider.Name()
	fp := providers.Fingerprint(name, kind, track)

	allowStale := c.ctrl.CircuitOpen(name)
	if entry, ok, err := c.store.Get(ctx, name, kind, fp, allowStale); err != nil {
		return nil, err
	} else if ok {
		if entry.NotFound {
			return nil, nil
		}
		return entry, nil
	}

	payload, err := resilience.Do(ctx, c.ctrl, name, fn)
	if err != nil {
		if providers.KindOf(err) == providers.KindNotFound {
			if putErr := c.store.Put(ctx, name, kind, fp, nil, true); putErr != nil {
				c.logger.Warn("failed to cache negative result", "error", putErr)
			}
			return nil, nil
		}
		// Expired data beats no data while the provider is down.
		if providers.KindOf(err) == providers.KindUnavailable {
			if entry, ok, getErr := c.store.Get(ctx, name, kind, fp, true); getErr == nil && ok && !entry.NotFound {
				return entry, nil
			}
		}
		return nil, err
	}

	if err := c.store.Put(ctx, name, kind, fp, payload, false); err != nil {
		c.logger.Warn("failed to cache result", "kind", kind, "error", err)
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &cache.Entry{Provider: name, Kind: kind, Fingerprint: fp, Payload: blob}, nil
}
