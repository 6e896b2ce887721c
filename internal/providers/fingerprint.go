package providers

import "genrify/internal/shared"

// Fingerprint returns the cache fingerprint for a provider query.
//
// Spotify and MusicBrainz tag artists rather than tracks, so their genre
// lookups dedupe per artist: every track by the same artist resolves to one
// cache entry. Last.fm tags tracks, and feature/analysis queries are always
// track-scoped.
func Fingerprint(provider string, kind QueryKind, track Track) string {
	if kind == QueryGenres && (provider == NameSpotify || provider == NameMusicBrainz) {
		return shared.NormalizeTrackKey(track.Artist, "")
	}
	return shared.NormalizeTrackKey(track.Artist, track.Title)
}
