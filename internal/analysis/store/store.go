// Package store persists analysis records keyed by content digest.
//
// Backends are interchangeable: an in-process memory cache with optional
// expiry, a gorm backed SQL table (SQLite or MySQL) and a directory of JSON
// files. Writes for the same digest replace the previous record.
package store

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
	"github.com/tphakala/go-remix/internal/logging"
)

const componentStore = "analysis-store"

func logger() *slog.Logger { return logging.ServiceOrDefault(componentStore) }

// Store is a digest keyed record cache.
type Store interface {
	// Get returns the record for digest and whether it was found.
	Get(ctx context.Context, digest analysis.Digest) (*analysis.Record, bool, error)
	// Put stores rec under digest, replacing any previous record.
	Put(ctx context.Context, digest analysis.Digest, rec *analysis.Record) error
	// Close releases backend resources.
	Close() error
}

// Open builds the store selected by the cache settings.
func Open(settings *conf.Settings) (Store, error) {
	if settings == nil {
		return NewMemory(0), nil
	}
	c := settings.Cache
	switch strings.ToLower(c.Type) {
	case conf.CacheMemory, "":
		return NewMemory(c.TTL), nil
	case conf.CacheSQLite:
		return OpenSQLite(c.Path)
	case conf.CacheMySQL:
		return OpenMySQL(c.MySQL)
	case conf.CacheFile:
		return NewFile(c.Path)
	}
	return nil, errors.Newf("unknown cache type %q", c.Type).
		Component(componentStore).
		Category(errors.CategoryConfiguration).
		Context("cache_type", c.Type).
		Build()
}

func invalidRecord(op string) error {
	return errors.Newf("cannot store a nil analysis record").
		Component(componentStore).
		Category(errors.CategoryValidation).
		Context("operation", op).
		Build()
}

func cancelled(err error, op string) error {
	return errors.New(err).
		Component(componentStore).
		Category(errors.CategoryCancellation).
		Context("operation", op).
		Build()
}
