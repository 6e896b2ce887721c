// package providers defines the Provider interface for external music metadata
// sources (Last.fm, Spotify, MusicBrainz) and their shared data shapes.
//
// Each adapter owns its own response parsing and error mapping; provider-specific
// wire types never leak past this package boundary.
package providers

import (
	"context"
)

// Provider names used as identifiers in config, cache keys and reports.
const (
	NameLastFM      = "lastfm"
	NameSpotify     = "spotify"
	NameMusicBrainz = "musicbrainz"
)

// QueryKind distinguishes the cacheable query types a provider can answer.
type QueryKind string

const (
	QueryGenres   QueryKind = "genres"
	QueryFeatures QueryKind = "features"
	QueryAnalysis QueryKind = "analysis"
)

// Track identifies a playlist entry. Immutable once read from the playlist.
type Track struct {
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Album      string `json:"album,omitempty"`
	Year       string `json:"year,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
	Path       string `json:"path,omitempty"`
}

// RawTagSet maps a provider's free-text genre tags to occurrence weights.
// An empty set means the provider answered but had no tags for the track.
type RawTagSet map[string]float64

// FeatureRecord holds numeric audio features for a track.
type FeatureRecord struct {
	TrackID          string  `json:"track_id"`
	ArtistID         string  `json:"artist_id,omitempty"`
	DurationMS       int     `json:"duration_ms,omitempty"`
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Key              int     `json:"key"`
	Loudness         float64 `json:"loudness"`
	Mode             int     `json:"mode"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	TimeSignature    int     `json:"time_signature"`
}

// AnalysisRecord summarizes a track's structural analysis.
type AnalysisRecord struct {
	TrackID       string  `json:"track_id"`
	Sections      int     `json:"sections"`
	Segments      int     `json:"segments"`
	Bars          int     `json:"bars"`
	Beats         int     `json:"beats"`
	Tempo         float64 `json:"tempo"`
	Loudness      float64 `json:"loudness"`
	Key           int     `json:"key"`
	Mode          int     `json:"mode"`
	TimeSignature int     `json:"time_signature"`
}

// Provider is the capability set every external source exposes.
//
// FetchGenreTags returns the provider's tag set for the track, or a
// *ProviderError classifying the failure. Adapters never retry; the
// resilience controller decides retry vs. propagate.
type Provider interface {
	// Name returns the provider identifier (e.g. "lastfm").
	Name() string

	// FetchGenreTags retrieves free-text genre tags with occurrence weights.
	FetchGenreTags(ctx context.Context, track Track) (RawTagSet, error)

	// SupportsFeatures reports whether FetchFeatures and FetchAnalysis are usable.
	SupportsFeatures() bool

	// FetchFeatures retrieves numeric audio features for the track.
	FetchFeatures(ctx context.Context, track Track) (*FeatureRecord, error)

	// FetchAnalysis retrieves a structural analysis summary for the track.
	FetchAnalysis(ctx context.Context, track Track) (*AnalysisRecord, error)
}
