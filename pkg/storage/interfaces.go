// Package storage provides key-value persistence behind a common provider
// interface, with memory, Redis, DynamoDB, and PostgreSQL backends, and the
// history store that keeps execution history inside each backend's limits.
package storage

import (
	"context"
	"errors"
)

// Common errors
var (
	// ErrNotFound is returned when a key doesn't exist
	ErrNotFound = errors.New("key not found")

	// ErrQuotaExceeded is returned when a write exceeds the backend's
	// capacity. Providers wrap it so degradation handling is uniform.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Provider stores raw JSON values under string keys
type Provider interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a value under key, wrapping ErrQuotaExceeded when the
	// backend refuses the write for capacity reasons
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error

	// Keys returns all keys beginning with prefix, sorted
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the provider's resources
	Close() error
}
