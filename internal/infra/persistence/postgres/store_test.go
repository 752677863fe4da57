package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"heritagestore/internal/infra/persistence/postgres/testutil"
	"heritagestore/pkg/domain"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		if driver != defaultDriver {
			t.Fatalf("unexpected driver %q", driver)
		}
		if dsn != DefaultDSN {
			t.Fatalf("expected default DSN, got %q", dsn)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreCreatesCollectionTables(t *testing.T) {
	store, conn := openStub(t)
	t.Cleanup(func() { _ = store.Close() })
	if len(conn.Created) != len(domain.Collections()) {
		t.Fatalf("expected one table per collection, got %v", conn.Created)
	}
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "CREATE TABLE") && !strings.Contains(stmt, "JSONB") {
			t.Fatalf("expected JSONB payload column: %s", stmt)
		}
	}
}

func TestNewStoreHydratesExistingRows(t *testing.T) {
	db, conn := testutil.NewStubDB()
	art, _ := json.Marshal(domain.Artifact{ID: "a1", Title: "Vase"})
	idx, _ := json.Marshal(domain.TitleIndex{"vase": "a1"})
	conn.Seed(string(domain.CollectionArtifacts), "a1", art)
	conn.Seed(string(domain.CollectionIndexes), domain.TitleIndexKey, idx)

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore(context.Background(), "postgres://ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	got, ok, err := domain.Lookup[domain.Artifact](store, domain.CollectionArtifacts, "a1")
	if err != nil || !ok || got.Title != "Vase" {
		t.Fatalf("artifact not hydrated: %+v ok=%v err=%v", got, ok, err)
	}
	if id, ok, _ := store.LookupTitle("VASE"); !ok || id != "a1" {
		t.Fatalf("title index not hydrated")
	}
}

func TestPutWritesRecordAndIndexInOneTransaction(t *testing.T) {
	store, conn := openStub(t)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if err := store.Put(ctx, domain.CollectionArtifacts, "a1", domain.Artifact{ID: "a1", Title: "Mask"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if conn.Commits != 1 {
		t.Fatalf("expected a single commit, got %d", conn.Commits)
	}
	rows := conn.Rows(string(domain.CollectionIndexes))
	if len(rows) != 1 {
		t.Fatalf("expected index row, got %v", rows)
	}
	var idx domain.TitleIndex
	if err := json.Unmarshal(rows[0]["payload"].([]byte), &idx); err != nil {
		t.Fatalf("decode index: %v", err)
	}
	if idx["mask"] != "a1" {
		t.Fatalf("unexpected index %v", idx)
	}

	if err := store.Put(ctx, domain.CollectionPeople, "p1", domain.Person{ID: "p1", Name: "R"}); err != nil {
		t.Fatalf("put person: %v", err)
	}
	if got := len(conn.Rows(string(domain.CollectionIndexes))); got != 1 {
		t.Fatalf("non-artifact put should not touch the index, rows=%d", got)
	}
}

func TestPutFailureLeavesMirrorUnchanged(t *testing.T) {
	store, conn := openStub(t)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	conn.FailTables = map[string]bool{string(domain.CollectionIndexes): true}
	err := store.Put(ctx, domain.CollectionArtifacts, "a1", domain.Artifact{ID: "a1", Title: "Mask"})
	if err == nil {
		t.Fatalf("expected persist failure")
	}
	if _, ok, _ := store.Get(domain.CollectionArtifacts, "a1"); ok {
		t.Fatalf("failed put must not reach the mirror")
	}
	if rows := conn.Rows(string(domain.CollectionArtifacts)); len(rows) != 0 {
		t.Fatalf("rollback should discard artifact row, got %v", rows)
	}

	conn.FailTables = nil
	conn.FailCommit = true
	if err := store.Put(ctx, domain.CollectionPeople, "p1", domain.Person{ID: "p1"}); err == nil {
		t.Fatalf("expected commit failure")
	}
	if _, ok, _ := store.Get(domain.CollectionPeople, "p1"); ok {
		t.Fatalf("uncommitted put must not reach the mirror")
	}
}

func TestNewStoreErrors(t *testing.T) {
	ctx := context.Background()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("boom") })
	if _, err := NewStore(ctx, ""); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	if _, err := NewStore(ctx, ""); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
	restore()

	db, conn = testutil.NewStubDB()
	conn.FailTables = map[string]bool{string(domain.CollectionLoans): true}
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(ctx, ""); err == nil || !strings.Contains(err.Error(), "select loans") {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestCloseRejectsLaterCalls(t *testing.T) {
	store, _ := openStub(t)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Close(); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("second close: %v", err)
	}
	if _, err := store.List(domain.CollectionLoans); !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("list after close: %v", err)
	}
}
