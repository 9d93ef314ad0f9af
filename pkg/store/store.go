// Package store provides the namespaced key-value abstraction every engine
// component persists through. All venue state lives here under fixed key
// prefixes; nothing else in the process is shared between requests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned by Update when the optimistic write keeps losing
// to concurrent writers.
var ErrConflict = errors.New("store: too many concurrent updates")

// UpdateFunc transforms the current raw value of a key into its replacement.
// found is false when the key does not exist; cur is nil in that case.
// Returning an error aborts the update and surfaces the error unchanged.
type UpdateFunc func(cur []byte, found bool) ([]byte, error)

// Store is the venue KV contract. Values are JSON-encoded; Get reports
// found=false for missing keys rather than an error. A ttl of zero means
// no expiry.
//
// SetNX, IncrBy and Update exist so check-then-write sequences (vote
// dedup, skip tallies, hype increments, PIN set-once) stay correct across
// concurrent request-handling instances without any in-process locking.
type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// GetByPrefix returns the raw values of every key under prefix.
	GetByPrefix(ctx context.Context, prefix string) ([][]byte, error)
	// IncrBy atomically adds delta to an integer key, creating it at delta.
	// The ttl is applied only when the key is created.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	// Update applies fn to the key's current value under optimistic
	// concurrency control, retrying on conflict.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}
