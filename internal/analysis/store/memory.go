package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/go-remix/internal/analysis"
)

// Memory keeps records in process.
type Memory struct {
	cache *cache.Cache
}

// NewMemory returns a memory store. A ttl of zero keeps records until the
// process exits.
func NewMemory(ttl time.Duration) *Memory {
	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiration, cleanup = ttl, 2*ttl
	}
	return &Memory{cache: cache.New(expiration, cleanup)}
}

// Get returns the cached record for digest.
func (m *Memory) Get(ctx context.Context, digest analysis.Digest) (*analysis.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, cancelled(err, "get")
	}
	v, found := m.cache.Get(digest.String())
	if !found {
		return nil, false, nil
	}
	rec, ok := v.(*analysis.Record)
	return rec, ok, nil
}

// Put caches rec under digest with the store's default expiry.
func (m *Memory) Put(ctx context.Context, digest analysis.Digest, rec *analysis.Record) error {
	if rec == nil {
		return invalidRecord("put")
	}
	if err := ctx.Err(); err != nil {
		return cancelled(err, "put")
	}
	m.cache.Set(digest.String(), rec, cache.DefaultExpiration)
	return nil
}

// Len returns the number of unexpired records.
func (m *Memory) Len() int { return m.cache.ItemCount() }

// Close drops every record.
func (m *Memory) Close() error {
	m.cache.Flush()
	return nil
}
