package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"genrify/internal/cache"
	"genrify/internal/providers"
	"genrify/internal/resilience"
	"genrify/internal/shared"
)

type mockProvider struct {
	name          string
	supports      bool
	featureCalls  int
	analysisCalls int
	featuresFn    func(providers.Track) (*providers.FeatureRecord, error)
	analysisFn    func(providers.Track) (*providers.AnalysisRecord, error)
}

func (m *mockProvider) Name() string           { return m.name }
func (m *mockProvider) SupportsFeatures() bool { return m.supports }

func (m *mockProvider) FetchGenreTags(ctx context.Context, track providers.Track) (providers.RawTagSet, error) {
	return nil, providers.NotFound(m.name)
}

func (m *mockProvider) FetchFeatures(ctx context.Context, track providers.Track) (*providers.FeatureRecord, error) {
	m.featureCalls++
	return m.featuresFn(track)
}

func (m *mockProvider) FetchAnalysis(ctx context.Context, track providers.Track) (*providers.AnalysisRecord, error) {
	m.analysisCalls++
	return m.analysisFn(track)
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := cache.NewStore(db, time.Hour, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func newTestCollector(t *testing.T, provider providers.Provider) *Collector {
	t.Helper()
	ctrl := resilience.NewController(resilience.DefaultPolicy(), resilience.ControllerOpts{})
	collector, err := NewCollector(provider, ctrl, newTestStore(t), nil)
	if err != nil {
		t.Fatalf("failed to create collector: %v", err)
	}
	return collector
}

func TestNewCollector(t *testing.T) {
	t.Run("Rejects Feature Incapable Provider", func(t *testing.T) {
		_, err := NewCollector(&mockProvider{name: "lastfm"}, nil, nil, nil)
		if !errors.Is(err, shared.ErrNoProviders) {
			t.Fatalf("expected ErrNoProviders, got %v", err)
		}
	})
}

func TestCollectorFeatures(t *testing.T) {
	ctx := context.Background()
	track := providers.Track{Artist: "Deadmau5", Title: "Strobe"}

	t.Run("Second Fetch Served From Cache", func(t *testing.T) {
		mock := &mockProvider{
			name:     "spotify",
			supports: true,
			featuresFn: func(providers.Track) (*providers.FeatureRecord, error) {
				return &providers.FeatureRecord{Tempo: 128, Energy: 0.7}, nil
			},
		}
		collector := newTestCollector(t, mock)

		for i := 0; i < 3; i++ {
			record, err := collector.Features(ctx, track)
			if err != nil {
				t.Fatalf("fetch %d failed: %v", i, err)
			}
			if record == nil || record.Tempo != 128 {
				t.Fatalf("fetch %d: expected tempo 128, got %+v", i, record)
			}
		}
		if mock.featureCalls != 1 {
			t.Errorf("expected 1 provider call, got %d", mock.featureCalls)
		}
	})

	t.Run("NotFound Cached As Negative Entry", func(t *testing.T) {
		mock := &mockProvider{
			name:     "spotify",
			supports: true,
			featuresFn: func(providers.Track) (*providers.FeatureRecord, error) {
				return nil, providers.NotFound("spotify")
			},
		}
		collector := newTestCollector(t, mock)

		for i := 0; i < 2; i++ {
			record, err := collector.Features(ctx, track)
			if err != nil {
				t.Fatalf("fetch %d: expected nil error for missing features, got %v", i, err)
			}
			if record != nil {
				t.Fatalf("fetch %d: expected nil record, got %+v", i, record)
			}
		}
		if mock.featureCalls != 1 {
			t.Errorf("expected 1 provider call, got %d", mock.featureCalls)
		}
	})

	t.Run("Fatal Error Surfaces", func(t *testing.T) {
		mock := &mockProvider{
			name:     "spotify",
			supports: true,
			featuresFn: func(providers.Track) (*providers.FeatureRecord, error) {
				return nil, providers.Fatal("spotify", errors.New("bad credentials"))
			},
		}
		collector := newTestCollector(t, mock)

		_, err := collector.Features(ctx, track)
		if providers.KindOf(err) != providers.KindFatal {
			t.Fatalf("expected fatal error, got %v", err)
		}
		if mock.featureCalls != 1 {
			t.Errorf("expected no retry on fatal, got %d calls", mock.featureCalls)
		}
	})
}

func TestCollectorAnalysis(t *testing.T) {
	ctx := context.Background()
	track := providers.Track{Artist: "Daft Punk", Title: "Around the World"}

	mock := &mockProvider{
		name:     "spotify",
		supports: true,
		analysisFn: func(providers.Track) (*providers.AnalysisRecord, error) {
			return &providers.AnalysisRecord{Sections: 9, Tempo: 121.3}, nil
		},
	}
	collector := newTestCollector(t, mock)

	record, err := collector.Analysis(ctx, track)
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if record.Sections != 9 {
		t.Errorf("expected 9 sections, got %d", record.Sections)
	}

	if _, err := collector.Analysis(ctx, track); err != nil {
		t.Fatalf("cached analysis failed: %v", err)
	}
	if mock.analysisCalls != 1 {
		t.Errorf("expected 1 provider call, got %d", mock.analysisCalls)
	}
}
