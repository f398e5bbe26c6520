// Package storage defines the key-value store boundary the core verifier
// packages depend on (access-key DB, HSM-log DB, revoked-devices DB,
// response-key DB) and two concrete backings: Redis and on-disk LevelDB.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when key has no value.
var ErrNotFound = errors.New("storage: key not found")

// KeyValueStore is the minimal capability the core depends on. The HSM-log
// DB additionally needs Keys+MGet to snapshot the whole (small) log on a
// cache miss; the revoked-devices DB needs only Exists. SetTTL is available
// for expiring writes, but the response-key bootstrap in cmd/accessd writes
// with Set, so the response key it stores has no expiry.
type KeyValueStore interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value at key with no expiry.
	Set(ctx context.Context, key string, value []byte) error
	// SetTTL stores value at key, expiring after ttl.
	SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Exists reports whether key has a value.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys returns every key matching pattern ("*" = all). RedisStore
	// accepts full glob patterns; MemStore and LevelDBStore only treat a
	// trailing "*" as a prefix match.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// MGet returns the value for each of keys, in order; a missing key
	// yields a nil slice at that position rather than an error.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
}
