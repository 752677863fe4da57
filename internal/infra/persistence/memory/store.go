// Package memory provides the in-memory record state that every persistent
// backend builds upon, and doubles as the ephemeral "memory" storage driver.
//
// Writes happen in two steps. Stage validates a put and computes its effect,
// including the title index change, without touching state. Apply commits a
// staged mutation. Durable backends persist the staged mutation between the
// two steps so the in-memory view never runs ahead of the backing medium.
package memory

import (
	"context"
	"sync"

	"heritagestore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

type state struct {
	records map[domain.Collection]map[string]domain.Record
	titles  domain.TitleIndex
}

func newState() state {
	st := state{
		records: make(map[domain.Collection]map[string]domain.Record),
		titles:  domain.TitleIndex{},
	}
	for _, c := range domain.Collections() {
		if c == domain.CollectionIndexes {
			continue
		}
		st.records[c] = make(map[string]domain.Record)
	}
	return st
}

// Snapshot is the complete state of a store, used to hydrate it from a backend.
type Snapshot struct {
	Records map[domain.Collection]map[string]domain.Record
	Titles  domain.TitleIndex
}

// Mutation is a validated put that has not been applied yet.
type Mutation struct {
	Collection domain.Collection
	Key        string
	Record     domain.Record
	// Before is the record previously stored under Key, nil when the key is new.
	Before domain.Record
	// Indexed is set for artifact puts, which always write the title index.
	Indexed bool
	// TitleSet is the case-folded title to point at Key. It may be empty.
	TitleSet string
	// DropsTitle reports that TitleDrop is a stale entry for Key to remove.
	DropsTitle bool
	TitleDrop  string
	// Titles is the full title index after the mutation is applied.
	Titles domain.TitleIndex
}

// Action reports whether the mutation creates or overwrites a key.
func (m Mutation) Action() domain.Action {
	if m.Before == nil {
		return domain.ActionCreate
	}
	return domain.ActionUpdate
}

// Change converts the mutation into the form consumed by rules.
func (m Mutation) Change() domain.Change {
	return domain.Change{
		Collection: m.Collection,
		Key:        m.Key,
		Action:     m.Action(),
		Before:     m.Before,
		After:      m.Record,
	}
}

// TouchesIndex reports whether applying the mutation changes the title index.
func (m Mutation) TouchesIndex() bool { return m.Indexed }

// Store holds records in memory, cloning on every read and write so callers
// never alias stored values.
type Store struct {
	mu     sync.RWMutex
	state  state
	closed bool
}

// NewStore constructs an empty store with every collection present.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Get returns the record stored under key. Unknown collections and missing
// keys are reported as absence.
func (s *Store) Get(c domain.Collection, key string) (domain.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, domain.ErrClosed
	}
	if c == domain.CollectionIndexes {
		if key != domain.TitleIndexKey {
			return nil, false, nil
		}
		return domain.CloneTitleIndex(s.state.titles), true, nil
	}
	rec, ok := s.state.records[c][key]
	if !ok {
		return nil, false, nil
	}
	return domain.CloneRecord(rec), true, nil
}

// List returns a copy of every record in c. The indexes collection yields a
// single entry holding the title index.
func (s *Store) List(c domain.Collection) (map[string]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrClosed
	}
	if c == domain.CollectionIndexes {
		return map[string]domain.Record{domain.TitleIndexKey: domain.CloneTitleIndex(s.state.titles)}, nil
	}
	bucket := s.state.records[c]
	out := make(map[string]domain.Record, len(bucket))
	for k, rec := range bucket {
		out[k] = domain.CloneRecord(rec)
	}
	return out, nil
}

// LookupTitle resolves an artifact id through the case-folded title index.
func (s *Store) LookupTitle(title string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, domain.ErrClosed
	}
	id, ok := s.state.titles[domain.Artifact{Title: title}.TitleKey()]
	return id, ok, nil
}

// Stage validates a put and computes its effect without applying it.
func (s *Store) Stage(c domain.Collection, key string, r domain.Record) (Mutation, error) {
	if err := domain.CheckPut(c, key, r); err != nil {
		return Mutation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Mutation{}, domain.ErrClosed
	}
	m := Mutation{Collection: c, Key: key, Record: domain.CloneRecord(r)}
	if before, ok := s.state.records[c][key]; ok {
		m.Before = domain.CloneRecord(before)
	}
	if c != domain.CollectionArtifacts {
		return m, nil
	}
	artifact := m.Record.(domain.Artifact)
	m.Indexed = true
	m.TitleSet = artifact.TitleKey()
	if prev, ok := m.Before.(domain.Artifact); ok {
		old := prev.TitleKey()
		if old != m.TitleSet && s.state.titles[old] == key {
			m.DropsTitle = true
			m.TitleDrop = old
		}
	}
	m.Titles = domain.CloneTitleIndex(s.state.titles)
	if m.DropsTitle {
		delete(m.Titles, m.TitleDrop)
	}
	m.Titles[m.TitleSet] = key
	return m, nil
}

// Apply commits a staged mutation. A mutation staged before Close is dropped.
func (s *Store) Apply(m Mutation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	bucket, ok := s.state.records[m.Collection]
	if !ok {
		return
	}
	bucket[m.Key] = domain.CloneRecord(m.Record)
	if !m.Indexed {
		return
	}
	if m.DropsTitle {
		delete(s.state.titles, m.TitleDrop)
	}
	s.state.titles[m.TitleSet] = m.Key
}

// Put stores r under key. The memory driver has nothing to flush, so the
// write is visible as soon as Put returns.
func (s *Store) Put(_ context.Context, c domain.Collection, key string, r domain.Record) error {
	m, err := s.Stage(c, key, r)
	if err != nil {
		return err
	}
	s.Apply(m)
	return nil
}

// Close marks the store closed. Later calls fail with domain.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrClosed
	}
	s.closed = true
	s.state = newState()
	return nil
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// ExportState returns a deep copy of the full state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Records: make(map[domain.Collection]map[string]domain.Record, len(s.state.records)),
		Titles:  domain.CloneTitleIndex(s.state.titles),
	}
	for c, bucket := range s.state.records {
		cp := make(map[string]domain.Record, len(bucket))
		for k, rec := range bucket {
			cp[k] = domain.CloneRecord(rec)
		}
		snap.Records[c] = cp
	}
	return snap
}

// ImportState replaces the full state with a copy of snap. Collections
// missing from snap come back empty; records whose type does not match
// their collection are skipped.
func (s *Store) ImportState(snap Snapshot) {
	st := newState()
	for c, bucket := range snap.Records {
		dst, ok := st.records[c]
		if !ok {
			continue
		}
		for k, rec := range bucket {
			if rec == nil || rec.Collection() != c {
				continue
			}
			dst[k] = domain.CloneRecord(rec)
		}
	}
	for k, v := range snap.Titles {
		st.titles[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}
