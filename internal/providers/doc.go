// Package providers defines the [Provider] interface for external metadata
// sources and implements it for Last.fm, Spotify and MusicBrainz.
//
// # Provider Interface
//
// All sources expose the same capability set: genre tags with occurrence
// weights, and (where supported) numeric audio features and structural
// analysis. Callers never see provider wire formats; each adapter owns its
// own parsing.
//
// # Error Taxonomy
//
// Every failure is a [*ProviderError] with one of five kinds:
//   - [KindTransient] : network hiccup or 5xx, retryable
//   - [KindRateLimited] : throttled, retryable, may carry a wait hint
//   - [KindNotFound] : track has no data at this provider
//   - [KindFatal] : auth/config failure, disables the provider for the run
//   - [KindUnavailable] : synthetic, produced by an open circuit
//
// Adapters never retry. The resilience controller inspects the kind and
// decides retry vs. propagate vs. circuit-open.
//
// # Tag Scope
//
// Last.fm tags tracks; Spotify and MusicBrainz tag artists. [Fingerprint]
// encodes this so the lookup cache dedupes artist-level queries across all
// tracks by the same artist.
package providers
