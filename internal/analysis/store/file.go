package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/errors"
)

// File stores one JSON document per digest in a directory.
type File struct {
	dir string
}

// NewFile returns a file store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.Newf("file cache directory is empty").
			Component(componentStore).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fileError(err, "create_dir", dir)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(digest analysis.Digest) string {
	return filepath.Join(f.dir, digest.String()+".json")
}

// Get reads the record for digest.
func (f *File) Get(ctx context.Context, digest analysis.Digest) (*analysis.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, cancelled(err, "get")
	}
	path := f.path(digest)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fileError(err, "read", path)
	}

	rec := &analysis.Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		logger().Warn("discarding unreadable cache entry",
			"digest", digest.String(),
			"error", err)
		return nil, false, nil
	}
	return rec, true, nil
}

// Put writes rec through a temporary file so readers never see a partial
// document.
func (f *File) Put(ctx context.Context, digest analysis.Digest, rec *analysis.Record) error {
	if rec == nil {
		return invalidRecord("put")
	}
	if err := ctx.Err(); err != nil {
		return cancelled(err, "put")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.New(err).
			Component(componentStore).
			Category(errors.CategoryCache).
			Context("operation", "encode_record").
			Build()
	}

	tmp, err := os.CreateTemp(f.dir, digest.String()+".*.tmp")
	if err != nil {
		return fileError(err, "create_temp", f.dir)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fileError(err, "write", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return fileError(err, "close", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), f.path(digest)); err != nil {
		return fileError(err, "rename", f.path(digest))
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error { return nil }

func fileError(err error, op, path string) error {
	return errors.New(err).
		Component(componentStore).
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Context("operation", op).
		Build()
}
