package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"genrify/internal/cache"
	"genrify/internal/providers"
	"genrify/internal/reconcile"
	"genrify/internal/resilience"
	"genrify/internal/shared"
	"genrify/internal/taxonomy"
)

// mockGenreProvider is a scriptable genre source with call counting.
type mockGenreProvider struct {
	name string
	fn   func(track providers.Track) (providers.RawTagSet, error)

	mu    sync.Mutex
	calls int
}

func (m *mockGenreProvider) Name() string           { return m.name }
func (m *mockGenreProvider) SupportsFeatures() bool { return false }

func (m *mockGenreProvider) FetchGenreTags(ctx context.Context, track providers.Track) (providers.RawTagSet, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.fn(track)
}

func (m *mockGenreProvider) FetchFeatures(ctx context.Context, track providers.Track) (*providers.FeatureRecord, error) {
	return nil, shared.ErrNotImplemented
}

func (m *mockGenreProvider) FetchAnalysis(ctx context.Context, track providers.Track) (*providers.AnalysisRecord, error) {
	return nil, shared.ErrNotImplemented
}

func (m *mockGenreProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func fixedTags(tags providers.RawTagSet) func(providers.Track) (providers.RawTagSet, error) {
	return func(providers.Track) (providers.RawTagSet, error) { return tags, nil }
}

func newTestStore(t *testing.T) *cache.Store {
	return newTestStoreWithTTL(t, time.Hour)
}

func newTestStoreWithTTL(t *testing.T, ttl time.Duration) *cache.Store {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := cache.NewStore(db, ttl, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func newTestEngine(t *testing.T, store *cache.Store, workers int, mocks ...providers.Provider) *Engine {
	t.Helper()
	tax, err := taxonomy.Default()
	if err != nil {
		t.Fatalf("failed to load taxonomy: %v", err)
	}

	ctrl := resilience.NewController(resilience.Policy{
		MaxAttempts:      1,
		BackoffBase:      time.Millisecond,
		BackoffCap:       time.Millisecond,
		BreakerThreshold: 100,
		BreakerCooldown:  time.Minute,
	}, resilience.ControllerOpts{})

	engine, err := NewEngine(mocks, ctrl, store, tax, reconcile.NewEngine(reconcile.Config{}), nil, Options{Workers: workers}, nil)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func TestEnrichReconciliation(t *testing.T) {
	ctx := context.Background()
	track := providers.Track{Artist: "Deadmau5", Title: "Strobe"}

	t.Run("Agreeing Providers Produce Subgenre", func(t *testing.T) {
		lastfm := &mockGenreProvider{name: "lastfm", fn: fixedTags(providers.RawTagSet{"Progressive House": 10})}
		spotify := &mockGenreProvider{name: "spotify", fn: fixedTags(providers.RawTagSet{"house": 5})}
		engine := newTestEngine(t, newTestStore(t), 2, lastfm, spotify)

		report, err := engine.Enrich(ctx, nil, "test.m3u", []providers.Track{track})
		if err != nil {
			t.Fatalf("enrich failed: %v", err)
		}

		record := report.Records[0]
		if record.Genre != "House" {
			t.Errorf("expected House, got %s", record.Genre)
		}
		if record.Subgenre != "Progressive House" {
			t.Errorf("expected Progressive House, got %q", record.Subgenre)
		}
		if record.Confidence <= 0.5 {
			t.Errorf("expected confidence above 0.5, got %v", record.Confidence)
		}
		if record.ProviderGenres["lastfm"] != "Progressive House" {
			t.Errorf("expected lastfm column Progressive House, got %q", record.ProviderGenres["lastfm"])
		}
	})

	t.Run("All NotFound Yields Unknown", func(t *testing.T) {
		notFound := func(name string) *mockGenreProvider {
			return &mockGenreProvider{name: name, fn: func(providers.Track) (providers.RawTagSet, error) {
				return nil, providers.NotFound(name)
			}}
		}
		engine := newTestEngine(t, newTestStore(t), 1, notFound("lastfm"), notFound("spotify"), notFound("musicbrainz"))

		report, err := engine.Enrich(ctx, nil, "test.m3u", []providers.Track{track})
		if err != nil {
			t.Fatalf("enrich failed: %v", err)
		}

		record := report.Records[0]
		if record.Genre != reconcile.UnknownGenre {
			t.Errorf("expected Unknown, got %s", record.Genre)
		}
		if record.Confidence != 0 {
			t.Errorf("expected zero confidence, got %v", record.Confidence)
		}
		if len(record.Errors) != 3 {
			t.Fatalf("expected 3 annotations, got %d", len(record.Errors))
		}
		for _, ann := range record.Errors {
			if ann.Kind != providers.KindNotFound {
				t.Errorf("expected NotFound annotation for %s, got %s", ann.Provider, ann.Kind)
			}
		}
	})

	t.Run("Empty Playlist Yields Empty Report", func(t *testing.T) {
		engine := newTestEngine(t, newTestStore(t), 2, &mockGenreProvider{name: "lastfm", fn: fixedTags(nil)})

		report, err := engine.Enrich(ctx, nil, "empty.m3u", nil)
		if err != nil {
			t.Fatalf("enrich failed: %v", err)
		}
		if len(report.Records) != 0 || report.Summary.Total != 0 {
			t.Errorf("expected empty report, got %+v", report.Summary)
		}
		if report.RunID == "" {
			t.Error("expected a run id")
		}
	})
}

func TestEnrichOrdering(t *testing.T) {
	ctx := context.Background()

	byArtist := map[string]string{
		"Slayer":      "metal",
		"Miles Davis": "jazz",
		"Deadmau5":    "house",
		"Bob Marley":  "reggae",
		"Kraftwerk":   "electronic",
	}
	provider := &mockGenreProvider{name: "lastfm", fn: func(track providers.Track) (providers.RawTagSet, error) {
		genre, ok := byArtist[track.Artist]
		if !ok {
			return nil, providers.NotFound("lastfm")
		}
		return providers.RawTagSet{genre: 10}, nil
	}}

	var tracks []providers.Track
	for artist := range byArtist {
		for i := 0; i < 4; i++ {
			tracks = append(tracks, providers.Track{Artist: artist, Title: fmt.Sprintf("Track %d", i)})
		}
	}

	engine := newTestEngine(t, newTestStore(t), 5, provider)
	report, err := engine.Enrich(ctx, nil, "test.m3u", tracks)
	if err != nil {
		t.Fatalf("enrich failed: %v", err)
	}

	if len(report.Records) != len(tracks) {
		t.Fatalf("expected %d records, got %d", len(tracks), len(report.Records))
	}
	for i, record := range report.Records {
		if record.Track != tracks[i] {
			t.Errorf("record %d out of order: expected %+v, got %+v", i, tracks[i], record.Track)
		}
	}
}

func TestEnrichCaching(t *testing.T) {
	ctx := context.Background()
	track := providers.Track{Artist: "Miles Davis", Title: "So What"}

	t.Run("Second Run Makes No Network Calls", func(t *testing.T) {
		store := newTestStore(t)
		provider := &mockGenreProvider{name: "lastfm", fn: fixedTags(providers.RawTagSet{"jazz": 10})}

		engine := newTestEngine(t, store, 2, provider)
		if _, err := engine.Enrich(ctx, nil, "test.m3u", []providers.Track{track}); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		first := provider.callCount()

		if _, err := engine.Enrich(ctx, nil, "test.m3u", []providers.Track{track}); err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if provider.callCount() != first {
			t.Errorf("expected no extra network calls, got %d then %d", first, provider.callCount())
		}
	})

	t.Run("Same Fingerprint Fetched Once Per Run", func(t *testing.T) {
		store := newTestStore(t)
		provider := &mockGenreProvider{name: "lastfm", fn: fixedTags(providers.RawTagSet{"jazz": 10})}

		// Same track appearing twice shares a fingerprint.
		tracks := []providers.Track{
			{Artist: "Miles Davis", Title: "So What"},
			{Artist: "Miles Davis", Title: "So What"},
		}
		engine := newTestEngine(t, store, 2, provider)
		if _, err := engine.Enrich(ctx, nil, "test.m3u", tracks); err != nil {
			t.Fatalf("enrich failed: %v", err)
		}
		if provider.callCount() != 1 {
			t.Errorf("expected 1 network call for duplicate fingerprints, got %d", provider.callCount())
		}
	})

	t.Run("Negative Results Cached", func(t *testing.T) {
		store := newTestStore(t)
		provider := &mockGenreProvider{name: "lastfm", fn: func(providers.Track) (providers.RawTagSet, error) {
			return nil, providers.NotFound("lastfm")
		}}

		engine := newTestEngine(t, store, 1, provider)
		engine.Enrich(ctx, nil, "test.m3u", []providers.Track{track})
		engine.Enrich(ctx, nil, "test.m3u", []providers.Track{track})

		if provider.callCount() != 1 {
			t.Errorf("expected 1 network call across runs, got %d", provider.callCount())
		}
	})
}

func TestEnrichStaleFallback(t *testing.T) {
	ctx := context.Background()
	track := providers.Track{Artist: "Miles Davis", Title: "So What"}

	// Seed an entry and let it expire.
	store := newTestStoreWithTTL(t, 25*time.Millisecond)
	fp := providers.Fingerprint("lastfm", providers.QueryGenres, track)
	if err := store.Put(ctx, "lastfm", providers.QueryGenres, fp, providers.RawTagSet{"jazz": 10}, false); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	provider := &mockGenreProvider{name: "lastfm", fn: func(providers.Track) (providers.RawTagSet, error) {
		return nil, providers.Transient("lastfm", errors.New("connection reset"))
	}}

	tax, err := taxonomy.Default()
	if err != nil {
		t.Fatalf("failed to load taxonomy: %v", err)
	}
	ctrl := resilience.NewController(resilience.Policy{
		MaxAttempts:      1,
		BackoffBase:      time.Millisecond,
		BackoffCap:       time.Millisecond,
		BreakerThreshold: 1,
		BreakerCooldown:  time.Minute,
	}, resilience.ControllerOpts{})
	engine, err := NewEngine([]providers.Provider{provider}, ctrl, store, tax,
		reconcile.NewEngine(reconcile.Config{}), nil, Options{Workers: 1}, nil)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	t.Run("Expired Entry Not Served While Circuit Closed", func(t *testing.T) {
		report, err := engine.Enrich(ctx, nil, "test.m3u", []providers.Track{track})
		if err != nil {
			t.Fatalf("enrich failed: %v", err)
		}

		record := report.Records[0]
		if record.Genre != reconcile.UnknownGenre {
			t.Errorf("expected Unknown while circuit is closed, got %s", record.Genre)
		}
		if len(record.Errors) != 1 || record.Errors[0].Kind != providers.KindTransient {
			t.Errorf("expected one transient annotation, got %+v", record.Errors)
		}
		if provider.callCount() != 1 {
			t.Errorf("expected 1 network call, got %d", provider.callCount())
		}
	})

	t.Run("Expired Entry Served Stale Once Circuit Opens", func(t *testing.T) {
		if !ctrl.CircuitOpen("lastfm") {
			t.Fatal("expected the first run to trip the circuit")
		}

		report, err := engine.Enrich(ctx, nil, "test.m3u", []providers.Track{track})
		if err != nil {
			t.Fatalf("enrich failed: %v", err)
		}

		record := report.Records[0]
		if record.Genre != "Jazz" {
			t.Errorf("expected Jazz from the stale entry, got %s", record.Genre)
		}
		if len(record.Errors) != 0 {
			t.Errorf("expected no annotations when the stale entry serves, got %+v", record.Errors)
		}
		if provider.callCount() != 1 {
			t.Errorf("expected no further network calls while the circuit is open, got %d", provider.callCount())
		}
	})
}

func TestEnrichFailureContainment(t *testing.T) {
	ctx := context.Background()

	tracks := []providers.Track{
		{Artist: "Slayer", Title: "Raining Blood"},
		{Artist: "Miles Davis", Title: "So What"},
		{Artist: "Bob Marley", Title: "Exodus"},
	}

	t.Run("Fatal Disables One Provider Only", func(t *testing.T) {
		broken := &mockGenreProvider{name: "lastfm", fn: func(providers.Track) (providers.RawTagSet, error) {
			return nil, providers.Fatal("lastfm", errors.New("invalid api key"))
		}}
		healthy := &mockGenreProvider{name: "musicbrainz", fn: fixedTags(providers.RawTagSet{"rock": 5})}

		engine := newTestEngine(t, newTestStore(t), 1, broken, healthy)
		report, err := engine.Enrich(ctx, nil, "test.m3u", tracks)
		if err != nil {
			t.Fatalf("enrich failed: %v", err)
		}

		if broken.callCount() != 1 {
			t.Errorf("expected broken provider called once then disabled, got %d calls", broken.callCount())
		}
		for i, record := range report.Records {
			if record.Genre != "Rock" {
				t.Errorf("record %d: expected healthy provider to carry the run, got %s", i, record.Genre)
			}
			if len(record.Errors) == 0 {
				t.Errorf("record %d: expected a fatal annotation", i)
			}
		}
	})

	t.Run("All Fatal Aborts Run", func(t *testing.T) {
		fatal := func(name string) *mockGenreProvider {
			return &mockGenreProvider{name: name, fn: func(providers.Track) (providers.RawTagSet, error) {
				return nil, providers.Fatal(name, errors.New("revoked"))
			}}
		}

		engine := newTestEngine(t, newTestStore(t), 1, fatal("lastfm"), fatal("spotify"))
		_, err := engine.Enrich(ctx, nil, "test.m3u", tracks)
		if !errors.Is(err, shared.ErrAllProvidersDown) {
			t.Fatalf("expected ErrAllProvidersDown, got %v", err)
		}
	})

	t.Run("Transient Failure Annotates Without Abort", func(t *testing.T) {
		flaky := &mockGenreProvider{name: "lastfm", fn: func(providers.Track) (providers.RawTagSet, error) {
			return nil, providers.Transient("lastfm", errors.New("timeout"))
		}}
		healthy := &mockGenreProvider{name: "musicbrainz", fn: fixedTags(providers.RawTagSet{"jazz": 5})}

		engine := newTestEngine(t, newTestStore(t), 1, flaky, healthy)
		report, err := engine.Enrich(ctx, nil, "test.m3u", tracks[:1])
		if err != nil {
			t.Fatalf("enrich failed: %v", err)
		}

		record := report.Records[0]
		if record.Genre != "Jazz" {
			t.Errorf("expected Jazz from healthy provider, got %s", record.Genre)
		}
		if len(record.Errors) != 1 || record.Errors[0].Kind != providers.KindTransient {
			t.Errorf("expected one transient annotation, got %+v", record.Errors)
		}
	})
}

func TestEnrichProgress(t *testing.T) {
	ctx := context.Background()
	provider := &mockGenreProvider{name: "lastfm", fn: fixedTags(providers.RawTagSet{"rock": 5})}
	engine := newTestEngine(t, newTestStore(t), 1, provider)

	prog := make(chan ProgressUpdate, 64)
	_, err := engine.Enrich(ctx, prog, "test.m3u", []providers.Track{{Artist: "Slayer", Title: "Angel of Death"}})
	if err != nil {
		t.Fatalf("enrich failed: %v", err)
	}
	close(prog)

	var phases []Phase
	for update := range prog {
		phases = append(phases, update.Phase)
	}
	if len(phases) == 0 || phases[0] != PhaseStart {
		t.Fatalf("expected start update first, got %v", phases)
	}
	if phases[len(phases)-1] != PhaseDone {
		t.Errorf("expected done update last, got %v", phases)
	}
}

func TestPost(t *testing.T) {
	ctx := context.Background()
	provider := &mockGenreProvider{name: "lastfm", fn: fixedTags(nil)}
	engine := newTestEngine(t, newTestStore(t), 1, provider)

	records := []TrackRecord{
		{Track: providers.Track{Artist: "Slayer", Title: "Raining Blood"}, Genre: "Rock", Confidence: 0.9},
		{Track: providers.Track{Artist: "Miles Davis", Title: "So What"}, Genre: "Jazz", Confidence: 0.8},
		{Track: providers.Track{Artist: "Unknown Artist", Title: "Untitled"}, Genre: reconcile.UnknownGenre},
	}

	report, err := engine.Post(ctx, nil, "enriched.csv", records)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}

	if provider.callCount() != 0 {
		t.Errorf("post mode must not re-query genre providers, got %d calls", provider.callCount())
	}
	if report.Summary.Total != 3 || report.Summary.Unknown != 1 {
		t.Errorf("expected summary over 3 records with 1 unknown, got %+v", report.Summary)
	}
	if report.Summary.Genres[0].Count != 1 {
		t.Errorf("expected singleton counts, got %+v", report.Summary.Genres)
	}
}
