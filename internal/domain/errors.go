package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// ErrUpstream wraps failures of a live call to Discovery or the catalog.
	ErrUpstream = errors.New("upstream unavailable")

	// Discovery
	ErrNoEnvironments = errors.New("no environments found")
	ErrNoCollections  = errors.New("no collections found")
	ErrUnexpectedJSON = errors.New("unexpected JSON response")
	ErrMalformedCount = errors.New("malformed sentiment count")
)
