// Package bolt persists records to a single bbolt file. Each collection owns a
// top-level bucket keyed by record id with CBOR values; the title index is a
// single CBOR map stored under "by_title" in the "indexes" bucket.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	bbolt "go.etcd.io/bbolt"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"heritagestore/internal/codec"
	"heritagestore/internal/infra/persistence/memory"
	"heritagestore/pkg/domain"
)

// DefaultPath is used when Open receives an empty path.
const DefaultPath = "heritage_store.db"

var (
	_ domain.PersistentStore = (*Store)(nil)
	_ prometheus.Collector   = (*Store)(nil)
)

// Store mirrors the bolt file in memory and writes every put through to disk
// before it becomes visible to readers.
type Store struct {
	*memory.Store
	db      *bbolt.DB
	path    string
	logger  *zap.Logger
	timeout time.Duration

	// writeMu serializes stage-persist-apply so index updates never interleave.
	writeMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger on the store.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds how long Open waits for the file lock.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// Open creates the bolt file if it does not exist, ensures every bucket is
// present and hydrates the in-memory mirror.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	s := &Store{
		Store:   memory.NewStore(),
		path:    path,
		logger:  zap.NewNop(),
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("unable to create directory %s: %w", path, err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, fmt.Errorf("unable to open boltdb file %s: %w", path, err)
	}
	s.db = db

	if err := s.initialize(); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	if err := s.load(); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	s.logger.Info("Record store opened", zap.String("path", path))
	return s, nil
}

func bucketName(c domain.Collection) []byte { return []byte(c) }

// initialize creates buckets that are missing.
func (s *Store) initialize() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, c := range domain.Collections() {
			b, err := tx.CreateBucketIfNotExists(bucketName(c))
			if err != nil {
				return fmt.Errorf("create bucket %s: %w", c, err)
			}
			if c != domain.CollectionIndexes || b.Get([]byte(domain.TitleIndexKey)) != nil {
				continue
			}
			if err := putTitles(tx, domain.TitleIndex{}); err != nil {
				return fmt.Errorf("create index %s: %w", domain.TitleIndexKey, err)
			}
		}
		return nil
	})
}

func (s *Store) load() error {
	snap := memory.Snapshot{
		Records: make(map[domain.Collection]map[string]domain.Record),
		Titles:  domain.TitleIndex{},
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, c := range domain.Collections() {
			if c == domain.CollectionIndexes {
				continue
			}
			records := make(map[string]domain.Record)
			if err := tx.Bucket(bucketName(c)).ForEach(func(k, v []byte) error {
				rec, err := codec.DecodeRecord(c, v)
				if err != nil {
					return fmt.Errorf("%s/%s: %w", c, k, err)
				}
				records[string(k)] = rec
				return nil
			}); err != nil {
				return err
			}
			snap.Records[c] = records
		}
		titles, err := readTitles(tx)
		if err != nil {
			return err
		}
		snap.Titles = titles
		return nil
	})
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	s.ImportState(snap)
	s.logger.Debug("Records hydrated", zap.Int("titles", len(snap.Titles)))
	return nil
}

// bbolt rejects empty keys, so the index is kept as one value rather than a
// nested bucket; an artifact with an empty title is indexed under "".
func readTitles(tx *bbolt.Tx) (domain.TitleIndex, error) {
	raw := tx.Bucket(bucketName(domain.CollectionIndexes)).Get([]byte(domain.TitleIndexKey))
	if raw == nil {
		return domain.TitleIndex{}, nil
	}
	titles := domain.TitleIndex{}
	if err := codec.Unmarshal(raw, &titles); err != nil {
		return nil, fmt.Errorf("decode %s: %w", domain.TitleIndexKey, err)
	}
	return titles, nil
}

func putTitles(tx *bbolt.Tx, titles domain.TitleIndex) error {
	data, err := codec.Marshal(titles)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketName(domain.CollectionIndexes)).Put([]byte(domain.TitleIndexKey), data)
}

// Put writes r under key and commits the bolt transaction before updating the
// in-memory mirror.
func (s *Store) Put(ctx context.Context, c domain.Collection, key string, r domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	m, err := s.Stage(c, key, r)
	if err != nil {
		return err
	}
	data, err := codec.Marshal(m.Record)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c, key, err)
	}
	// The mirror holds the decoded value so reads match what a reopen returns.
	if m.Record, err = codec.DecodeRecord(c, data); err != nil {
		return fmt.Errorf("decode %s/%s: %w", c, key, err)
	}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketName(c)).Put([]byte(key), data); err != nil {
			return err
		}
		if !m.TouchesIndex() {
			return nil
		}
		return putTitles(tx, m.Titles)
	}); err != nil {
		s.logger.Error("Failed to persist record",
			zap.String("collection", string(c)), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("persist %s/%s: %w", c, key, err)
	}
	s.Apply(m)
	return nil
}

// Close flushes and closes the bolt file. Later calls fail with domain.ErrClosed.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.Store.Close(); err != nil {
		return err
	}
	var err error
	if !s.db.NoSync {
		err = s.db.Sync()
	}
	if err = multierr.Append(err, s.db.Close()); err != nil {
		return fmt.Errorf("close boltdb: %w", err)
	}
	s.logger.Info("Record store closed", zap.String("path", s.path))
	return nil
}

// Path returns the bolt file location.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying bolt handle for inspection in tests and tooling.
func (s *Store) DB() *bbolt.DB { return s.db }
