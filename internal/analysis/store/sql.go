package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
)

// analysisEntry is the table row for one cached record.
type analysisEntry struct {
	ID        uint   `gorm:"primaryKey"`
	Digest    string `gorm:"size:32;uniqueIndex;not null"`
	TrackID   string `gorm:"size:64;index"`
	Duration  float64
	Payload   []byte `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (analysisEntry) TableName() string { return "analysis_records" }

// SQL stores records in a relational table through gorm.
type SQL struct {
	db      *gorm.DB
	dialect string
}

// OpenSQLite opens or creates a SQLite cache at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQL, error) {
	if path == "" {
		return nil, errors.Newf("sqlite cache path is empty").
			Component(componentStore).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if !strings.HasPrefix(path, ":memory:") && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.New(err).
					Component(componentStore).
					Category(errors.CategoryFileIO).
					Context("operation", "create_cache_dir").
					Build()
			}
		}
	}
	// in-memory databases are per connection
	return openSQL(sqlite.Open(path), "sqlite", 1)
}

// OpenMySQL connects to the configured MySQL database.
func OpenMySQL(c conf.MySQLSettings) (*SQL, error) {
	if c.Host == "" || c.Database == "" {
		return nil, errors.Newf("mysql cache needs a host and database").
			Component(componentStore).
			Category(errors.CategoryConfiguration).
			Build()
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
	return openSQL(mysql.Open(dsn), "mysql", 0)
}

func openSQL(dialector gorm.Dialector, dialect string, maxOpenConns int) (*SQL, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(logger().With("dialect", dialect), slowQueryThreshold),
	})
	if err != nil {
		return nil, dbError(err, "open", dialect)
	}
	if maxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, dbError(err, "open", dialect)
		}
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.AutoMigrate(&analysisEntry{}); err != nil {
		return nil, dbError(err, "migrate", dialect)
	}
	logger().Info("analysis cache opened", "dialect", dialect)
	return &SQL{db: db, dialect: dialect}, nil
}

// Get returns the record stored for digest.
func (s *SQL) Get(ctx context.Context, digest analysis.Digest) (*analysis.Record, bool, error) {
	var entry analysisEntry
	err := s.db.WithContext(ctx).Where("digest = ?", digest.String()).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dbError(err, "get", s.dialect)
	}

	rec := &analysis.Record{}
	if err := json.Unmarshal(entry.Payload, rec); err != nil {
		return nil, false, errors.New(err).
			Component(componentStore).
			Category(errors.CategoryCache).
			Context("operation", "decode_record").
			Context("digest", entry.Digest).
			Build()
	}
	return rec, true, nil
}

// Put upserts rec under digest.
func (s *SQL) Put(ctx context.Context, digest analysis.Digest, rec *analysis.Record) error {
	if rec == nil {
		return invalidRecord("put")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.New(err).
			Component(componentStore).
			Category(errors.CategoryCache).
			Context("operation", "encode_record").
			Build()
	}

	entry := &analysisEntry{
		Digest:   digest.String(),
		TrackID:  rec.ID,
		Duration: rec.Duration(),
		Payload:  payload,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "digest"}},
			DoUpdates: clause.AssignmentColumns([]string{"track_id", "duration", "payload", "updated_at"}),
		}).
		Create(entry).Error
	if err != nil {
		return dbError(err, "put", s.dialect)
	}
	return nil
}

// Count returns the number of stored records.
func (s *SQL) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&analysisEntry{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count", s.dialect)
	}
	return n, nil
}

// Close closes the underlying connection pool.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError(err, "close", s.dialect)
	}
	return sqlDB.Close()
}

func dbError(err error, op, dialect string) error {
	return errors.New(err).
		Component(componentStore).
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Context("dialect", dialect).
		Build()
}
