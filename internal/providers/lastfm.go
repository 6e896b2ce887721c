// Last.fm implementation of [Provider]
//
// Response types based on https://www.last.fm/api/show/track.getTopTags
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const lastFMBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Last.fm API error codes that matter for classification.
const (
	lastFMErrInvalidParams   = 6  // track not found
	lastFMErrInvalidAPIKey   = 10
	lastFMErrOffline         = 11
	lastFMErrTempUnavailable = 16
	lastFMErrSuspendedKey    = 26
	lastFMErrRateLimited     = 29
)

type lastFMTag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type lastFMTopTags struct {
	TopTags struct {
		Tag []lastFMTag `json:"tag"`
	} `json:"toptags"`
	ErrorCode int    `json:"error"`
	Message   string `json:"message"`
}

// LastFMProvider implements [Provider] for the Last.fm track.getTopTags API.
// Genre tags come with per-tag listener counts, which become occurrence weights.
type LastFMProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewLastFMProvider creates a Last.fm provider with the given API key.
func NewLastFMProvider(apiKey string) (*LastFMProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing api_key for Last.fm")
	}
	return &LastFMProvider{
		apiKey:     apiKey,
		baseURL:    lastFMBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *LastFMProvider) Name() string {
	return NameLastFM
}

func (p *LastFMProvider) SupportsFeatures() bool {
	return false
}

// FetchGenreTags retrieves the track's top tags with listener counts.
func (p *LastFMProvider) FetchGenreTags(ctx context.Context, track Track) (RawTagSet, error) {
	params := url.Values{}
	params.Set("method", "track.gettoptags")
	params.Set("api_key", p.apiKey)
	params.Set("artist", track.Artist)
	params.Set("track", track.Title)
	params.Set("autocorrect", "1")
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, Transient(NameLastFM, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, Transient(NameLastFM, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, RateLimited(NameLastFM, retryAfterHint(resp), fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, Transient(NameLastFM, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, Fatal(NameLastFM, fmt.Errorf("status %d", resp.StatusCode))
	}

	var body lastFMTopTags
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, Transient(NameLastFM, fmt.Errorf("failed to decode response: %w", err))
	}

	if body.ErrorCode != 0 {
		return nil, p.classifyAPIError(body.ErrorCode, body.Message)
	}

	if len(body.TopTags.Tag) == 0 {
		return nil, NotFound(NameLastFM)
	}

	tags := make(RawTagSet, len(body.TopTags.Tag))
	for _, tag := range body.TopTags.Tag {
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

func (p *LastFMProvider) FetchFeatures(ctx context.Context, track Track) (*FeatureRecord, error) {
	return nil, NotFound(NameLastFM)
}

func (p *LastFMProvider) FetchAnalysis(ctx context.Context, track Track) (*AnalysisRecord, error) {
	return nil, NotFound(NameLastFM)
}

func (p *LastFMProvider) classifyAPIError(code int, message string) *ProviderError {
	err := fmt.Errorf("last.fm error %d: %s", code, message)
	switch code {
	case lastFMErrInvalidParams:
		return NotFound(NameLastFM)
	case lastFMErrInvalidAPIKey, lastFMErrSuspendedKey:
		return Fatal(NameLastFM, err)
	case lastFMErrRateLimited:
		return RateLimited(NameLastFM, 0, err)
	case lastFMErrOffline, lastFMErrTempUnavailable:
		return Transient(NameLastFM, err)
	default:
		return Transient(NameLastFM, err)
	}
}

// retryAfterHint parses the Retry-After header into a wait hint, zero if absent.
func retryAfterHint(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
