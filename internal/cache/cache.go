// Package cache provides the response cache used by the relay: a key-value
// store holding serialized model answers under TTL-bounded keys.
//
// Redis is the production backend; Memory is an in-process fallback for
// cache-less deployments and tests. A miss is a normal outcome and is never
// reported as an error; ErrUnavailable signals that the backing store itself
// could not be reached.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be reached or
// rejects an operation. Callers on the chat path treat it as a miss.
var ErrUnavailable = errors.New("cache: store unavailable")

// Stats holds process-wide cache counters. Hit and miss counts reset on
// process restart; Keys is the live key count in the store's namespace.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Keys   int64 `json:"keys"`
}

// HitRate returns hits / (hits + misses), or 0 when no lookups happened.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache defines the interface for response cache backends.
type Cache interface {
	// Get returns the cached value for key. The second result reports
	// whether the key was present; a miss is not an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given TTL, overwriting any
	// existing entry and refreshing its expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes a single key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ClearAll removes every key in this application's namespace and
	// returns the number of entries removed.
	ClearAll(ctx context.Context) (int, error)

	// Stats returns hit/miss counters and the current key count.
	Stats(ctx context.Context) (Stats, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store connection.
	Close() error
}

// Normalize canonicalises a user query for key derivation: surrounding
// whitespace is stripped and the text is lowercased, so "What is Go?" and
// "  what is go?  " share a cache entry.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Key derives the deterministic cache key for a model/query pair: the hex
// SHA-256 digest of the model identifier and the normalized query. Identical
// normalized inputs always produce identical keys.
func Key(model, query string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte("\n"))
	h.Write([]byte(Normalize(query)))
	return hex.EncodeToString(h.Sum(nil))
}
