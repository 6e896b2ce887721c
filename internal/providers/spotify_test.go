package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/zmb3/spotify/v2"
)

// rewriteTransport redirects every request to the test server, since the
// spotify client has no exported base URL override.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newSpotifyTestProvider(t *testing.T, handler http.HandlerFunc) *SpotifyProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	target, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("failed to parse server url: %v", err)
	}
	client := spotify.New(&http.Client{Transport: rewriteTransport{target: target}})
	return NewSpotifyProviderFromClient(client)
}

func TestSpotifyFetchGenreTags(t *testing.T) {
	ctx := context.Background()
	track := Track{Artist: "Deadmau5", Title: "Strobe"}

	t.Run("Genres Rank Weighted", func(t *testing.T) {
		provider := newSpotifyTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"artists":{"items":[{"id":"abc","name":"deadmau5","genres":["progressive house","electro house","edm"]}],"limit":1,"total":1}}`)
		})

		tags, err := provider.FetchGenreTags(ctx, track)
		if err != nil {
			t.Fatalf("expected tags, got %v", err)
		}
		if len(tags) != 3 {
			t.Fatalf("expected 3 tags, got %d", len(tags))
		}
		if tags["progressive house"] <= tags["edm"] {
			t.Errorf("expected first genre weighted highest, got %v", tags)
		}
	})

	t.Run("Artist Without Genres Is NotFound", func(t *testing.T) {
		provider := newSpotifyTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"artists":{"items":[{"id":"abc","name":"obscure","genres":[]}],"limit":1,"total":1}}`)
		})

		_, err := provider.FetchGenreTags(ctx, track)
		if KindOf(err) != KindNotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("No Matching Artist Is NotFound", func(t *testing.T) {
		provider := newSpotifyTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"artists":{"items":[],"limit":1,"total":0}}`)
		})

		_, err := provider.FetchGenreTags(ctx, track)
		if KindOf(err) != KindNotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("Rate Limit Classified", func(t *testing.T) {
		provider := newSpotifyTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"status":429,"message":"rate limit exceeded"}}`)
		})

		_, err := provider.FetchGenreTags(ctx, track)
		if KindOf(err) != KindRateLimited {
			t.Fatalf("expected RateLimited, got %v", err)
		}
	})

	t.Run("Auth Failure Is Fatal", func(t *testing.T) {
		provider := newSpotifyTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"status":401,"message":"invalid access token"}}`)
		})

		_, err := provider.FetchGenreTags(ctx, track)
		if KindOf(err) != KindFatal {
			t.Fatalf("expected Fatal, got %v", err)
		}
	})
}

func TestSpotifyFetchFeatures(t *testing.T) {
	ctx := context.Background()
	track := Track{Artist: "Deadmau5", Title: "Strobe"}

	provider := newSpotifyTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/search":
			fmt.Fprint(w, `{"tracks":{"items":[{"id":"track1","name":"Strobe","duration_ms":634000,"artists":[{"id":"artist1","name":"deadmau5"}]}],"limit":1,"total":1}}`)
		default:
			fmt.Fprint(w, `{"audio_features":[{"id":"track1","danceability":0.61,"energy":0.8,"key":11,"loudness":-7.2,"mode":1,"tempo":128.01,"time_signature":4}]}`)
		}
	})

	record, err := provider.FetchFeatures(ctx, track)
	if err != nil {
		t.Fatalf("expected features, got %v", err)
	}
	if record.TrackID != "track1" || record.ArtistID != "artist1" {
		t.Errorf("id mapping mismatch: %+v", record)
	}
	if record.Tempo != 128.01 || record.Key != 11 || record.TimeSignature != 4 {
		t.Errorf("feature mapping mismatch: %+v", record)
	}
	if record.DurationMS != 634000 {
		t.Errorf("expected duration 634000, got %d", record.DurationMS)
	}
}
