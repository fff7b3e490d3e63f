package models

import "errors"

// Error taxonomy for the retrieval pipeline. Errors are wrapped with %w
// through the stack so callers can classify with errors.Is.
var (
	// ErrInvalidInput marks empty or oversized input, rejected before any
	// external call. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfigMismatch marks an existing collection whose dimension differs
	// from the configured embedder. Indicates a deployment error; never retried.
	ErrConfigMismatch = errors.New("collection config mismatch")

	// ErrDimensionMismatch marks a vector whose length differs from the
	// collection dimension. The offending entry is never persisted.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUnavailable marks a transient connectivity or provider failure.
	// Safe to retry with bounded backoff at the calling layer.
	ErrUnavailable = errors.New("service unavailable")

	// ErrCollectionMissing marks a search against a collection that has never
	// been written. Collections are created on first write, not on search.
	ErrCollectionMissing = errors.New("collection missing")

	// ErrEmbedding marks a permanent provider-side embedding failure
	// (auth error, content policy, malformed input).
	ErrEmbedding = errors.New("embedding failed")

	// ErrGeneration marks a permanent provider-side generation failure.
	ErrGeneration = errors.New("generation failed")

	// ErrNotFound marks a lookup for a document that is not in the registry.
	ErrNotFound = errors.New("not found")
)
