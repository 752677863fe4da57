// Package postgres provides a Postgres-backed record store. Each collection
// maps to a table of JSONB documents; reads are served from an in-memory
// mirror hydrated on open.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"go.uber.org/zap"

	"heritagestore/internal/infra/persistence/sqlstate"
	"heritagestore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when NewStore receives an empty DSN.
	DefaultDSN = "postgres://localhost/heritage?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists records to Postgres.
type Store struct {
	*sqlstate.Store
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

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to DefaultDSN), ensures the collection tables exist and hydrates the mirror.
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	st, err := sqlstate.Open(ctx, db, sqlstate.Postgres, o.logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: st}, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
