package providers

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies provider failures for the resilience controller.
type ErrorKind int

const (
	// KindTransient marks a retryable failure (network hiccup, 5xx).
	KindTransient ErrorKind = iota
	// KindRateLimited marks a retryable failure with an optional wait hint.
	KindRateLimited
	// KindNotFound means the track has no data at this provider. Not an error
	// for the run, just an empty contribution.
	KindNotFound
	// KindFatal marks an auth/config failure that disables the provider for
	// the remainder of the run.
	KindFatal
	// KindUnavailable is synthetic, produced by an open circuit. Treated like
	// NotFound for voting but flagged for diagnostics.
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of String, for reading serialized records back.
func ParseKind(s string) (ErrorKind, bool) {
	switch s {
	case "transient":
		return KindTransient, true
	case "rate_limited":
		return KindRateLimited, true
	case "not_found":
		return KindNotFound, true
	case "fatal":
		return KindFatal, true
	case "unavailable":
		return KindUnavailable, true
	default:
		return KindTransient, false
	}
}

// Retryable reports whether the controller should retry this kind of failure.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// ProviderError is the normalized failure every adapter returns.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	RetryAfter time.Duration // wait hint for KindRateLimited, zero if none
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindTransient, Err: err}
}

// RateLimited wraps err as a rate-limit failure carrying the provider's wait hint.
func RateLimited(provider string, retryAfter time.Duration, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// NotFound reports that the provider has no data for the track.
func NotFound(provider string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindNotFound}
}

// Fatal wraps err as a run-disabling failure for this provider.
func Fatal(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindFatal, Err: err}
}

// Unavailable is the synthetic error surfaced while a provider's circuit is open.
func Unavailable(provider string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindUnavailable}
}

// AsProviderError extracts a *ProviderError from err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the error's kind, defaulting to KindTransient for
// unclassified errors so the controller errs on the side of retrying.
func KindOf(err error) ErrorKind {
	if pe, ok := AsProviderError(err); ok {
		return pe.Kind
	}
	return KindTransient
}
