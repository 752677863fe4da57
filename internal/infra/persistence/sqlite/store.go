// Package sqlite provides a SQLite-backed record store using the pure Go
// modernc driver. Each collection maps to a table of JSON documents.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"heritagestore/internal/infra/persistence/sqlstate"
	"heritagestore/pkg/domain"
)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "heritage_store.sqlite"

var _ domain.PersistentStore = (*Store)(nil)

// Store persists records to a SQLite file.
type Store struct {
	*sqlstate.Store
	path string
}

// Option configures NewStore.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger on the store.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewStore opens (creating if needed) the SQLite file at path and hydrates
// the in-memory mirror from it.
func NewStore(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite admits one writer at a time.
	db.SetMaxOpenConns(1)
	st, err := sqlstate.Open(ctx, db, sqlstate.SQLite, o.logger.With(zap.String("path", path)))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: st, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
