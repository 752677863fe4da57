package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"heritagestore/internal/config"
	"heritagestore/internal/infra/persistence/bolt"
	"heritagestore/internal/infra/persistence/memory"
	"heritagestore/internal/infra/persistence/postgres"
	"heritagestore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageBolt     StorageDriver = config.DriverBolt     // single bbolt file (default)
	StorageSQLite   StorageDriver = config.DriverSQLite   // embedded sqlite file
	StoragePostgres StorageDriver = config.DriverPostgres // PostgreSQL server
	StorageMemory   StorageDriver = config.DriverMemory   // in-memory only (tests / ephemeral)
)

// OpenPersistentStore opens the backend selected by cfg.Driver. An empty
// driver means bolt.
func OpenPersistentStore(ctx context.Context, cfg config.Storage, logger *zap.Logger) (PersistentStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageBolt
	}
	logger = logger.With(zap.String("driver", string(driver)))
	var (
		store PersistentStore
		err   error
	)
	switch driver {
	case StorageBolt:
		var bs *bolt.Store
		bs, err = bolt.Open(cfg.BoltPath, bolt.WithLogger(logger))
		store = bs
	case StorageSQLite:
		var ss *sqlite.Store
		ss, err = sqlite.NewStore(ctx, cfg.SQLitePath, sqlite.WithLogger(logger))
		store = ss
	case StoragePostgres:
		var ps *postgres.Store
		ps, err = postgres.NewStore(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
		store = ps
	case StorageMemory:
		store = memory.NewStore()
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return store, nil
}
