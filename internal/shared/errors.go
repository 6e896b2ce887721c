package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Playlist and record errors
	ErrInvalidPlaylist = fmt.Errorf("invalid playlist")
	ErrEmptyPlaylist   = fmt.Errorf("playlist contains no tracks")
	ErrInvalidRecords  = fmt.Errorf("invalid record file")

	// Provider and run errors
	ErrNoProviders      = fmt.Errorf("no providers configured")
	ErrAllProvidersDown = fmt.Errorf("every configured provider failed fatally")
	ErrTaxonomy         = fmt.Errorf("invalid taxonomy data")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
