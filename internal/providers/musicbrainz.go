// MusicBrainz implementation of [Provider]
//
// Response types based on https://musicbrainz.org/doc/MusicBrainz_API/Search.
// MusicBrainz attaches community tags to artists; tag counts become occurrence
// weights. The API mandates a descriptive User-Agent with contact information.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const musicBrainzBaseURL = "https://musicbrainz.org/ws/2"

type musicBrainzTag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type musicBrainzArtist struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	Tags []musicBrainzTag `json:"tags"`
}

type musicBrainzArtistSearch struct {
	Artists []musicBrainzArtist `json:"artists"`
}

// MusicBrainzProvider implements [Provider] for the MusicBrainz artist search API.
type MusicBrainzProvider struct {
	userAgent  string
	baseURL    string
	httpClient *http.Client
}

// NewMusicBrainzProvider creates a MusicBrainz provider. The contact address
// is required: MusicBrainz blocks clients without an identifying User-Agent.
func NewMusicBrainzProvider(appName, appVersion, contact string) (*MusicBrainzProvider, error) {
	if contact == "" {
		return nil, fmt.Errorf("missing contact for MusicBrainz user agent")
	}
	if appName == "" {
		appName = "genrify"
	}
	if appVersion == "" {
		appVersion = "0.1.0"
	}
	return &MusicBrainzProvider{
		userAgent:  fmt.Sprintf("%s/%s ( %s )", appName, appVersion, contact),
		baseURL:    musicBrainzBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *MusicBrainzProvider) Name() string {
	return NameMusicBrainz
}

func (p *MusicBrainzProvider) SupportsFeatures() bool {
	return false
}

// FetchGenreTags searches for the track's artist and returns the artist's
// community tags with their counts.
func (p *MusicBrainzProvider) FetchGenreTags(ctx context.Context, track Track) (RawTagSet, error) {
	params := url.Values{}
	params.Set("query", fmt.Sprintf("artist:%q", track.Artist))
	params.Set("limit", "1")
	params.Set("fmt", "json")

	endpoint := fmt.Sprintf("%s/artist?%s", p.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, Transient(NameMusicBrainz, err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, Transient(NameMusicBrainz, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
		// MusicBrainz signals throttling with 503.
		return nil, RateLimited(NameMusicBrainz, retryAfterHint(resp), fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, Transient(NameMusicBrainz, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, Fatal(NameMusicBrainz, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, Transient(NameMusicBrainz, fmt.Errorf("status %d", resp.StatusCode))
	}

	var body musicBrainzArtistSearch
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, Transient(NameMusicBrainz, fmt.Errorf("failed to decode response: %w", err))
	}

	if len(body.Artists) == 0 || len(body.Artists[0].Tags) == 0 {
		return nil, NotFound(NameMusicBrainz)
	}

	tags := make(RawTagSet, len(body.Artists[0].Tags))
	for _, tag := range body.Artists[0].Tags {
		if tag.Name == "" {
			continue
		}
		weight := float64(tag.Count)
		if weight <= 0 {
			weight = 1
		}
		tags[tag.Name] = weight
	}
	return tags, nil
}

func (p *MusicBrainzProvider) FetchFeatures(ctx context.Context, track Track) (*FeatureRecord, error) {
	return nil, NotFound(NameMusicBrainz)
}

func (p *MusicBrainzProvider) FetchAnalysis(ctx context.Context, track Track) (*AnalysisRecord, error) {
	return nil, NotFound(NameMusicBrainz)
}
