// Package embedding binds the alphalite core to external text-embedding
// services. Every binding implements Provider; wrappers add rate limiting
// and caching around any Provider.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrOffline indicates the provider cannot be reached (no network, no
	// credentials, or its circuit breaker is open).
	ErrOffline = errors.New("embedding provider offline")

	// ErrRateLimited indicates the call was refused by a local or remote
	// rate limit.
	ErrRateLimited = errors.New("embedding provider rate limited")

	// ErrMalformed indicates the provider answered with something that is
	// not a usable vector.
	ErrMalformed = errors.New("embedding provider returned a malformed response")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// dimension pinned for the store. It is a configuration error, not a
	// per-call failure.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider turns text into a fixed-length vector.
type Provider interface {
	// Embed returns the embedding of text. Errors wrap ErrOffline,
	// ErrRateLimited or ErrMalformed where the cause is known.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Available reports whether Embed is expected to succeed right now.
	// Callers use it to fail fast without waiting for a timeout.
	Available() bool

	// Model names the embedding model; vectors from different models are
	// not comparable.
	Model() string
}
