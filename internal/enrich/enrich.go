// package enrich orchestrates the per-track enrichment pipeline.
//
// The Engine fans playlist tracks out to a bounded worker pool. Each track is
// looked up against every configured genre provider (cache first, then
// network through the retry controller), normalized onto the taxonomy,
// reconciled into a single decision, and optionally annotated with audio
// features. Operations emit progress updates via channels for non-blocking
// status reporting to the CLI layer.
//
// # Failure Containment
//
// A Fatal error (bad credentials, revoked key) disables that provider for the
// remainder of the run; other providers keep voting. The run itself aborts
// only when every genre provider has been disabled. All other failures are
// annotated on the affected track's record and never stop the pipeline.
package enrich

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"genrify/internal/cache"
	"genrify/internal/features"
	"genrify/internal/providers"
	"genrify/internal/reconcile"
	"genrify/internal/resilience"
	"genrify/internal/shared"
	"genrify/internal/stats"
	"genrify/internal/taxonomy"
)

// Annotation records one provider's failure on one track.
type Annotation struct {
	Provider string
	Kind     providers.ErrorKind
	Message  string
}

// LovedFlags marks membership in the user's loved tracks, albums and artists.
type LovedFlags struct {
	Track  bool
	Album  bool
	Artist bool
}

// TrackRecord is the enriched result for one playlist entry.
type TrackRecord struct {
	Track      providers.Track
	Genre      string
	Subgenre   string
	Confidence float64

	// ProviderGenres holds each contributing provider's strongest label,
	// keyed by provider name.
	ProviderGenres map[string]string
	// DroppedTags counts raw tags across providers that matched nothing in
	// the taxonomy.
	DroppedTags int

	Features *providers.FeatureRecord
	Analysis *providers.AnalysisRecord
	Loved    LovedFlags
	Errors   []Annotation
}

// Decision re-derives the record's reconciled decision, for aggregation.
func (r *TrackRecord) Decision() reconcile.Decision {
	return reconcile.Decision{Genre: r.Genre, Subgenre: r.Subgenre, Confidence: r.Confidence}
}

// PlaylistReport is the full result of an enrichment run, with records in
// playlist order.
type PlaylistReport struct {
	RunID       string
	GeneratedAt time.Time
	Source      string
	Records     []TrackRecord
	Summary     stats.Summary
}

// Options contains tuning knobs for an Engine.
type Options struct {
	Workers    int                // Concurrent workers (default: 4)
	RateLimits map[string]float64 // Requests per second per provider
}

// Engine runs enrichment pipelines. Construct once and reuse; safe for
// concurrent runs.
type Engine struct {
	genreProviders []providers.Provider
	ctrl           *resilience.Controller
	store          *cache.Store
	tax            *taxonomy.Taxonomy
	voter          *reconcile.Engine
	collector      *features.Collector // nil disables feature collection
	limiters       map[string]*rate.Limiter
	workers        int
	logger         *log.Logger
}

// NewEngine wires the pipeline together. collector may be nil when no
// feature-capable provider is configured.
func NewEngine(
	genreProviders []providers.Provider,
	ctrl *resilience.Controller,
	store *cache.Store,
	tax *taxonomy.Taxonomy,
	voter *reconcile.Engine,
	collector *features.Collector,
	opts Options,
	logger *log.Logger,
) (*Engine, error) {
	if len(genreProviders) == 0 {
		return nil, fmt.Errorf("%w: no genre providers configured", shared.ErrNoProviders)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Workers > 10 {
		opts.Workers = 10
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	limiters := make(map[string]*rate.Limiter)
	for name, limit := range opts.RateLimits {
		if limit > 0 {
			limiters[name] = rate.NewLimiter(rate.Limit(limit), 1)
		}
	}

	return &Engine{
		genreProviders: genreProviders,
		ctrl:           ctrl,
		store:          store,
		tax:            tax,
		voter:          voter,
		collector:      collector,
		limiters:       limiters,
		workers:        opts.Workers,
		logger:         logger.With("component", "enrich"),
	}, nil
}

// runState holds per-run mutable state shared across workers.
type runState struct {
	cancel context.CancelFunc
	prog   chan<- ProgressUpdate
	total  int

	mu       sync.Mutex
	disabled map[string]error
	flights  map[string]*flightCall
	aborted  bool
}

type flightCall struct {
	done  chan struct{}
	tags  providers.RawTagSet
	stale bool
	err   error
}

type trackJob struct {
	index int
	track providers.Track
}

type trackResult struct {
	index  int
	record TrackRecord
}

// Enrich processes the tracks and returns a report in playlist order.
//
// prog may be nil; updates are sent without blocking and dropped when the
// channel is full. An empty track list yields a well-formed empty report.
func (e *Engine) Enrich(ctx context.Context, prog chan<- ProgressUpdate, source string, tracks []providers.Track) (*PlaylistReport, error) {
	report := &PlaylistReport{
		RunID:       shared.GenerateID(),
		GeneratedAt: time.Now().UTC(),
		Source:      source,
		Records:     make([]TrackRecord, len(tracks)),
	}
	if len(tracks) == 0 {
		report.Summary = stats.Aggregate(nil)
		return report, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &runState{
		cancel:   cancel,
		prog:     prog,
		total:    len(tracks),
		disabled: make(map[string]error),
		flights:  make(map[string]*flightCall),
	}

	jobs := make(chan trackJob, len(tracks))
	results := make(chan trackResult, len(tracks))

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go e.trackWorker(runCtx, run, &wg, jobs, results)
	}

	e.sendProgress(prog, startUpdate(len(tracks)))
	for i, track := range tracks {
		jobs <- trackJob{index: i, track: track}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		report.Records[res.index] = res.record
		e.sendProgress(prog, trackUpdate(completed, len(tracks), res.record.Track))
	}

	run.mu.Lock()
	aborted := run.aborted
	run.mu.Unlock()
	if aborted {
		return nil, fmt.Errorf("%w: every genre provider failed fatally", shared.ErrAllProvidersDown)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.sendProgress(prog, aggregateUpdate(len(tracks)))
	report.Summary = stats.Aggregate(decisionsOf(report.Records))
	e.sendProgress(prog, doneUpdate(len(tracks)))
	return report, nil
}

// Post recomputes a report from previously enriched records without
// re-querying genre providers. Only missing audio features are fetched.
func (e *Engine) Post(ctx context.Context, prog chan<- ProgressUpdate, source string, records []TrackRecord) (*PlaylistReport, error) {
	report := &PlaylistReport{
		RunID:       shared.GenerateID(),
		GeneratedAt: time.Now().UTC(),
		Source:      source,
		Records:     records,
	}

	e.sendProgress(prog, startUpdate(len(records)))
	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record := &report.Records[i]
		if e.collector != nil && record.Features == nil {
			e.collectFeatures(ctx, record)
		}
		e.sendProgress(prog, trackUpdate(i+1, len(records), record.Track))
	}

	e.sendProgress(prog, aggregateUpdate(len(records)))
	report.Summary = stats.Aggregate(decisionsOf(report.Records))
	e.sendProgress(prog, doneUpdate(len(records)))
	return report, nil
}

func decisionsOf(records []TrackRecord) []reconcile.Decision {
	decisions := make([]reconcile.Decision, len(records))
	for i := range records {
		decisions[i] = records[i].Decision()
	}
	return decisions
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(prog chan<- ProgressUpdate, update ProgressUpdate) {
	if prog == nil {
		return
	}
	select {
	case prog <- update:
	default:
	}
}

// trackWorker consumes jobs until the channel closes or the run is canceled.
func (e *Engine) trackWorker(ctx context.Context, run *runState, wg *sync.WaitGroup, jobs <-chan trackJob, results chan<- trackResult) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results <- trackResult{index: job.index, record: e.processTrack(ctx, run, job.track)}
	}
}

// processTrack runs the full per-track pipeline: fetch, normalize, reconcile,
// collect features.
func (e *Engine) processTrack(ctx context.Context, run *runState, track providers.Track) TrackRecord {
	record := TrackRecord{
		Track:          track,
		ProviderGenres: make(map[string]string),
	}

	votes := make([]reconcile.Vote, 0, len(e.genreProviders))
	for _, p := range e.genreProviders {
		name := p.Name()
		raw, stale, err := e.fetchTags(ctx, run, p, track)
		if err != nil {
			record.Errors = append(record.Errors, annotate(name, err))
			if providers.KindOf(err) == providers.KindFatal {
				e.disableProvider(run, name, err)
			}
			continue
		}

		set := e.tax.Normalize(raw)
		set.Stale = stale
		record.DroppedTags += set.Dropped
		if set.Empty() {
			continue
		}
		record.ProviderGenres[name] = topLabel(set)
		votes = append(votes, reconcile.Vote{Provider: name, Tags: set})
	}

	decision := e.voter.Reconcile(votes)
	record.Genre = decision.Genre
	record.Subgenre = decision.Subgenre
	record.Confidence = decision.Confidence

	if e.collector != nil {
		e.collectFeatures(ctx, &record)
	}
	return record
}

// collectFeatures attaches audio features and analysis to the record.
// Failures annotate and never abort.
func (e *Engine) collectFeatures(ctx context.Context, record *TrackRecord) {
	name := e.collector.ProviderName()
	if err := e.waitLimiter(ctx, name); err != nil {
		return
	}

	feats, err := e.collector.Features(ctx, record.Track)
	if err != nil {
		record.Errors = append(record.Errors, annotate(name, err))
	} else {
		record.Features = feats
	}

	analysis, err := e.collector.Analysis(ctx, record.Track)
	if err != nil {
		record.Errors = append(record.Errors, annotate(name, err))
	} else {
		record.Analysis = analysis
	}
}

// fetchTags returns the provider's raw tags for the track, reading through
// the cache. The stale return is true when the tags came from an expired
// entry served while the provider's circuit is open.
func (e *Engine) fetchTags(ctx context.Context, run *runState, p providers.Provider, track providers.Track) (providers.RawTagSet, bool, error) {
	name := p.Name()
	if err := run.disabledErr(name); err != nil {
		return nil, false, err
	}

	fp := providers.Fingerprint(name, providers.QueryGenres, track)
	allowStale := e.ctrl.CircuitOpen(name)
	if entry, ok, err := e.store.Get(ctx, name, providers.QueryGenres, fp, allowStale); err != nil {
		return nil, false, err
	} else if ok {
		if entry.NotFound {
			return nil, false, providers.NotFound(name)
		}
		tags, err := entry.Tags()
		return tags, entry.Stale, err
	}

	return run.flight(name+"|"+fp, func() (providers.RawTagSet, bool, error) {
		if err := e.waitLimiter(ctx, name); err != nil {
			return nil, false, err
		}

		tags, err := resilience.Do(ctx, e.ctrl, name, func(ctx context.Context) (providers.RawTagSet, error) {
			return p.FetchGenreTags(ctx, track)
		})
		if err != nil {
			switch providers.KindOf(err) {
			case providers.KindNotFound:
				if putErr := e.store.Put(ctx, name, providers.QueryGenres, fp, nil, true); putErr != nil {
					e.logger.Warn("failed to cache negative result", "provider", name, "error", putErr)
				}
			case providers.KindUnavailable:
				// Expired data beats no data while the provider is down.
				if entry, ok, getErr := e.store.Get(ctx, name, providers.QueryGenres, fp, true); getErr == nil && ok && !entry.NotFound {
					if stale, decErr := entry.Tags(); decErr == nil {
						return stale, true, nil
					}
				}
			}
			return nil, false, err
		}

		if err := e.store.Put(ctx, name, providers.QueryGenres, fp, tags, false); err != nil {
			e.logger.Warn("failed to cache result", "provider", name, "error", err)
		}
		return tags, false, nil
	})
}

func (e *Engine) waitLimiter(ctx context.Context, provider string) error {
	lim, ok := e.limiters[provider]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}

// disableProvider removes a fatally failed provider from the rest of the run
// and cancels the run when no provider is left.
func (e *Engine) disableProvider(run *runState, provider string, err error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if _, already := run.disabled[provider]; already {
		return
	}
	run.disabled[provider] = err
	e.logger.Error("provider disabled for this run", "provider", provider, "error", err)
	e.sendProgress(run.prog, providerDownUpdate(len(run.disabled), run.total, provider))

	if len(run.disabled) == len(e.genreProviders) {
		run.aborted = true
		run.cancel()
	}
}

func (r *runState) disabledErr(provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled[provider]
}

// flight deduplicates concurrent fetches of the same key. Successful results
// are memoized for the run; failures are forgotten so later tracks retry.
func (r *runState) flight(key string, fn func() (providers.RawTagSet, bool, error)) (providers.RawTagSet, bool, error) {
	r.mu.Lock()
	if c, ok := r.flights[key]; ok {
		r.mu.Unlock()
		<-c.done
		return c.tags, c.stale, c.err
	}
	c := &flightCall{done: make(chan struct{})}
	r.flights[key] = c
	r.mu.Unlock()

	c.tags, c.stale, c.err = fn()
	if c.err != nil {
		r.mu.Lock()
		delete(r.flights, key)
		r.mu.Unlock()
	}
	close(c.done)
	return c.tags, c.stale, c.err
}

// topLabel picks the provider's strongest label for display, tie-broken
// lexically for determinism.
func topLabel(set taxonomy.NormalizedTagSet) string {
	type ranked struct {
		name   string
		weight float64
	}
	labels := make([]ranked, 0, len(set.Weights))
	for label, weight := range set.Weights {
		name := label.Genre
		if label.Subgenre != "" {
			name = label.Subgenre
		}
		labels = append(labels, ranked{name: name, weight: weight})
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].weight != labels[j].weight {
			return labels[i].weight > labels[j].weight
		}
		return labels[i].name < labels[j].name
	})
	return labels[0].name
}

func annotate(provider string, err error) Annotation {
	return Annotation{
		Provider: provider,
		Kind:     providers.KindOf(err),
		Message:  err.Error(),
	}
}
