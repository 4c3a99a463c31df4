package domain

import "errors"

// Shared error vocabulary. Collaborators (provider, file sink) classify their
// failures into these so the queue engine branches on a closed set instead of
// inspecting raw responses.
var (
	// ErrNotFound means the provider answered but had no usable match.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized means the provider rejected the access token. Callers
	// should re-authenticate and retry instead of treating this as a miss.
	ErrUnauthorized = errors.New("provider rejected the access token")

	// ErrPermanentWrite marks filesystem failures retrying cannot fix.
	ErrPermanentWrite = errors.New("permanent write failure")
)
