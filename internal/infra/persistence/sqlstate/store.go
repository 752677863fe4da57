// Package sqlstate implements the record store on top of database/sql. Each
// collection is a table of (id, payload) rows holding JSON documents; the
// title index is a single row in the indexes table. The sqlite and postgres
// drivers differ only in their Dialect.
package sqlstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"heritagestore/internal/infra/persistence/memory"
	"heritagestore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	Name        string
	PayloadType string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// SQLite uses positional "?" parameters and stores payloads as BLOBs.
var SQLite = Dialect{
	Name:        "sqlite",
	PayloadType: "BLOB",
	Placeholder: func(int) string { return "?" },
}

// Postgres uses numbered parameters and stores payloads as JSONB.
var Postgres = Dialect{
	Name:        "postgres",
	PayloadType: "JSONB",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

func (d Dialect) upsert(table string) string {
	return fmt.Sprintf(`INSERT INTO %s(id,payload) VALUES(%s,%s) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`,
		table, d.Placeholder(1), d.Placeholder(2))
}

// Store mirrors the database in memory and writes every put through in a
// single transaction before the change becomes visible.
type Store struct {
	*memory.Store
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
	writeMu sync.Mutex
}

// Open creates missing tables on db and hydrates the in-memory mirror. The
// store takes ownership of db and closes it on Close.
func Open(ctx context.Context, db *sql.DB, d Dialect, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := EnsureTables(ctx, db, d); err != nil {
		return nil, err
	}
	snap, err := Load(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snap)
	logger.Info("Record store opened", zap.String("dialect", d.Name), zap.Int("titles", len(snap.Titles)))
	return &Store{Store: mem, db: db, dialect: d, logger: logger}, nil
}

// EnsureTables creates one table per collection.
func EnsureTables(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, c := range domain.Collections() {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		payload %s NOT NULL
	)`, string(c), d.PayloadType)
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure %s table: %w", c, err)
		}
	}
	return nil
}

// Load reads every table into a snapshot.
func Load(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	snap := memory.Snapshot{
		Records: make(map[domain.Collection]map[string]domain.Record),
		Titles:  domain.TitleIndex{},
	}
	for _, c := range domain.Collections() {
		records, err := loadTable(ctx, db, c)
		if err != nil {
			return memory.Snapshot{}, err
		}
		if c != domain.CollectionIndexes {
			snap.Records[c] = records
			continue
		}
		if idx, ok := records[domain.TitleIndexKey].(domain.TitleIndex); ok {
			snap.Titles = idx
		}
	}
	return snap, nil
}

func loadTable(ctx context.Context, db *sql.DB, c domain.Collection) (map[string]domain.Record, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id, payload FROM %s`, string(c)))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", c, err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]domain.Record)
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c, err)
		}
		if len(payload) == 0 {
			continue
		}
		rec, err := domain.DecodeRecord(c, payload, json.Unmarshal)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", c, id, err)
		}
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", c, err)
	}
	return out, nil
}

// Put writes r under key and, for artifacts, the updated title index in the
// same transaction. The in-memory mirror changes only after commit.
func (s *Store) Put(ctx context.Context, c domain.Collection, key string, r domain.Record) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	m, err := s.Stage(c, key, r)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(m.Record)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c, key, err)
	}
	// The mirror holds the decoded value so reads match what a reopen returns.
	if m.Record, err = domain.DecodeRecord(c, payload, json.Unmarshal); err != nil {
		return fmt.Errorf("decode %s/%s: %w", c, key, err)
	}
	if err := s.persist(ctx, m, payload); err != nil {
		s.logger.Error("Failed to persist record",
			zap.String("collection", string(c)), zap.String("key", key), zap.Error(err))
		return err
	}
	s.Apply(m)
	return nil
}

func (s *Store) persist(ctx context.Context, m memory.Mutation, payload []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, s.dialect.upsert(string(m.Collection)), m.Key, payload); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", m.Collection, m.Key, err)
	}
	if m.TouchesIndex() {
		idx, err := json.Marshal(m.Titles)
		if err != nil {
			return fmt.Errorf("encode title index: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.dialect.upsert(string(domain.CollectionIndexes)), domain.TitleIndexKey, idx); err != nil {
			return fmt.Errorf("upsert title index: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Close releases the database handle. Later calls fail with domain.ErrClosed.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.Store.Close(); err != nil {
		return err
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.dialect.Name, err)
	}
	s.logger.Info("Record store closed", zap.String("dialect", s.dialect.Name))
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }
