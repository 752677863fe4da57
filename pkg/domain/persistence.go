package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every store operation after Close.
	ErrClosed = errors.New("store: closed")
	// ErrUnknownCollection is returned for collection names outside Collections().
	ErrUnknownCollection = errors.New("store: unknown collection")
	// ErrCollectionMismatch is returned when a record is put into a collection
	// that does not hold its type.
	ErrCollectionMismatch = errors.New("store: record does not belong to collection")
	// ErrIndexReadOnly is returned for direct writes to the indexes collection.
	ErrIndexReadOnly = errors.New("store: indexes collection is maintained by the store")
	// ErrEmptyKey is returned when a record is put under an empty key.
	ErrEmptyKey = errors.New("store: empty key")
)

// RecordReader is the read side of a store. A missing key is reported through
// the boolean, never as an error; errors signal backend failure or a closed store.
type RecordReader interface {
	Get(c Collection, key string) (Record, bool, error)
	List(c Collection) (map[string]Record, error)
	LookupTitle(title string) (string, bool, error)
}

// PersistentStore is the durable record store. Put is write-through: it
// returns only after the change reached the backing medium.
type PersistentStore interface {
	RecordReader
	Put(ctx context.Context, c Collection, key string, r Record) error
	Close() error
}

// CheckPut validates that r may be stored under key in c.
func CheckPut(c Collection, key string, r Record) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	if c == CollectionIndexes {
		return ErrIndexReadOnly
	}
	if key == "" {
		return ErrEmptyKey
	}
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrCollectionMismatch)
	}
	if r.Collection() != c {
		return fmt.Errorf("%w: %T into %s", ErrCollectionMismatch, r, c)
	}
	return nil
}

// Lookup fetches a record and asserts its concrete type.
func Lookup[T Record](r RecordReader, c Collection, key string) (T, bool, error) {
	var zero T
	rec, ok, err := r.Get(c, key)
	if err != nil || !ok {
		return zero, false, err
	}
	typed, ok := rec.(T)
	if !ok {
		return zero, false, fmt.Errorf("%w: %s/%s holds %T", ErrCollectionMismatch, c, key, rec)
	}
	return typed, true, nil
}

// ListAs returns every record of c asserted to T, keyed by identifier.
func ListAs[T Record](r RecordReader, c Collection) (map[string]T, error) {
	all, err := r.List(c)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(all))
	for k, rec := range all {
		typed, ok := rec.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s holds %T", ErrCollectionMismatch, c, k, rec)
		}
		out[k] = typed
	}
	return out, nil
}
