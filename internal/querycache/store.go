// Package querycache stores serialized query results under semantic keys
// with a TTL, and maintains the bounded recent-queries list.
package querycache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a cached result set stays valid.
const DefaultTTL = time.Hour

// MaxRecent bounds the recent-queries list.
const MaxRecent = 10

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Store is the capability contract shared by cache backends. Distinct
// concrete types (Redis, in-memory) are selected at construction.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	UpdateTTL(ctx context.Context, key string, ttl time.Duration) error

	// PushRecent prepends query to the recent list, removing any prior
	// occurrence first and truncating to MaxRecent entries.
	PushRecent(ctx context.Context, query string) error
	// Recent returns up to limit queries, most recent first.
	Recent(ctx context.Context, limit int) ([]string, error)
}
