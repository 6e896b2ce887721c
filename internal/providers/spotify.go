// Spotify implementation of [Provider], built on the zmb3/spotify client with
// the client-credentials flow. Spotify attaches genres to artists, not tracks,
// so genre lookups search the artist and weight genres by rank.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

const spotifyMaxGenres = 5

// SpotifyProvider implements [Provider] for the Spotify Web API.
type SpotifyProvider struct {
	client *spotify.Client
}

// NewSpotifyProvider creates a Spotify provider using the client-credentials
// flow. The returned provider holds a long-lived client that refreshes its
// token transparently.
func NewSpotifyProvider(ctx context.Context, clientID, clientSecret string) (*SpotifyProvider, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("missing client_id or client_secret for Spotify")
	}

	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := config.Client(ctx)
	return &SpotifyProvider{client: spotify.New(httpClient)}, nil
}

// NewSpotifyProviderFromClient wraps an existing client. Used by tests.
func NewSpotifyProviderFromClient(client *spotify.Client) *SpotifyProvider {
	return &SpotifyProvider{client: client}
}

func (p *SpotifyProvider) Name() string {
	return NameSpotify
}

func (p *SpotifyProvider) SupportsFeatures() bool {
	return true
}

// FetchGenreTags searches for the track's artist and returns the artist's
// genres, rank-weighted so the first listed genre counts most.
func (p *SpotifyProvider) FetchGenreTags(ctx context.Context, track Track) (RawTagSet, error) {
	query := fmt.Sprintf("artist:%s", track.Artist)
	result, err := p.client.Search(ctx, query, spotify.SearchTypeArtist, spotify.Limit(1))
	if err != nil {
		return nil, classifySpotifyError(err)
	}

	if result.Artists == nil || len(result.Artists.Artists) == 0 {
		return nil, NotFound(NameSpotify)
	}

	genres := result.Artists.Artists[0].Genres
	if len(genres) > spotifyMaxGenres {
		genres = genres[:spotifyMaxGenres]
	}
	if len(genres) == 0 {
		return nil, NotFound(NameSpotify)
	}

	tags := make(RawTagSet, len(genres))
	for i, genre := range genres {
		tags[genre] = float64(len(genres) - i)
	}
	return tags, nil
}

// FetchFeatures resolves the track on Spotify and returns its audio features.
func (p *SpotifyProvider) FetchFeatures(ctx context.Context, track Track) (*FeatureRecord, error) {
	full, err := p.findTrack(ctx, track)
	if err != nil {
		return nil, err
	}

	features, err := p.client.GetAudioFeatures(ctx, full.ID)
	if err != nil {
		return nil, classifySpotifyError(err)
	}
	if len(features) == 0 || features[0] == nil {
		return nil, NotFound(NameSpotify)
	}

	f := features[0]
	record := &FeatureRecord{
		TrackID:          string(full.ID),
		DurationMS:       int(full.Duration),
		Danceability:     float64(f.Danceability),
		Energy:           float64(f.Energy),
		Key:              int(f.Key),
		Loudness:         float64(f.Loudness),
		Mode:             int(f.Mode),
		Speechiness:      float64(f.Speechiness),
		Acousticness:     float64(f.Acousticness),
		Instrumentalness: float64(f.Instrumentalness),
		Liveness:         float64(f.Liveness),
		Valence:          float64(f.Valence),
		Tempo:            float64(f.Tempo),
		TimeSignature:    int(f.TimeSignature),
	}
	if len(full.Artists) > 0 {
		record.ArtistID = string(full.Artists[0].ID)
	}
	return record, nil
}

// FetchAnalysis resolves the track and summarizes its structural analysis.
func (p *SpotifyProvider) FetchAnalysis(ctx context.Context, track Track) (*AnalysisRecord, error) {
	full, err := p.findTrack(ctx, track)
	if err != nil {
		return nil, err
	}

	analysis, err := p.client.GetAudioAnalysis(ctx, full.ID)
	if err != nil {
		return nil, classifySpotifyError(err)
	}

	return &AnalysisRecord{
		TrackID:       string(full.ID),
		Sections:      len(analysis.Sections),
		Segments:      len(analysis.Segments),
		Bars:          len(analysis.Bars),
		Beats:         len(analysis.Beats),
		Tempo:         analysis.Track.Tempo,
		Loudness:      analysis.Track.Loudness,
		Key:           int(analysis.Track.Key),
		Mode:          int(analysis.Track.Mode),
		TimeSignature: int(analysis.Track.TimeSignature),
	}, nil
}

func (p *SpotifyProvider) findTrack(ctx context.Context, track Track) (*spotify.FullTrack, error) {
	query := fmt.Sprintf("track:%s artist:%s", track.Title, track.Artist)
	result, err := p.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return nil, classifySpotifyError(err)
	}

	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return nil, NotFound(NameSpotify)
	}
	return &result.Tracks.Tracks[0], nil
}

func classifySpotifyError(err error) *ProviderError {
	var se spotify.Error
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusTooManyRequests:
			return RateLimited(NameSpotify, 0, err)
		case se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden:
			return Fatal(NameSpotify, err)
		case se.Status == http.StatusNotFound:
			return NotFound(NameSpotify)
		case se.Status >= 500:
			return Transient(NameSpotify, err)
		}
	}
	return Transient(NameSpotify, err)
}
