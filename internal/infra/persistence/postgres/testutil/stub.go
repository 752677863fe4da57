// Package testutil provides an in-memory database/sql driver that understands
// the handful of statements the record store issues, so postgres store tests
// run without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var stubSeq atomic.Int64

// StubConn records statements and keeps table rows in memory.
type StubConn struct {
	mu sync.Mutex

	Execs   []string
	Created []string
	Tables  map[string][]map[string]any

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	RowsErr    error
	// FailTables makes inserts into and selects from the named tables fail.
	FailTables map[string]bool
	// Commits counts successful commits.
	Commits int
}

// NewStubDB registers a uniquely named driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Rows returns a copy of the rows stored in table.
func (c *StubConn) Rows(table string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.Tables[table]))
	for _, row := range c.Tables[table] {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// Seed stores a row directly, replacing any row with the same id.
func (c *StubConn) Seed(table, id string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(table, "id", map[string]any{"id": id, "payload": payload})
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. Rolling back restores the tables as
// they were when the transaction began.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	tx := &stubTx{conn: c}
	tx.snapshot()
	return tx, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	head := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(head, "CREATE TABLE"):
		c.Created = append(c.Created, parseCreate(query))
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(head, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if c.FailTables[table] {
			return nil, fmt.Errorf("exec fail for %s", table)
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("column/arg mismatch for %s", table)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = args[i].Value
		}
		conflict := parseConflict(query)
		if conflict == "" {
			c.Tables[table] = append(c.Tables[table], row)
		} else {
			c.upsertLocked(table, conflict, row)
		}
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) upsertLocked(table, key string, row map[string]any) {
	rows := c.Tables[table]
	for i, existing := range rows {
		if existing[key] == row[key] {
			rows[i] = row
			return
		}
	}
	c.Tables[table] = append(rows, row)
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, cols, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("query fail for %s", table)
	}
	values := make([][]driver.Value, 0, len(c.Tables[table]))
	for _, row := range c.Tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}, nil
}

type stubTx struct {
	conn   *StubConn
	backup map[string][]map[string]any
}

func (t *stubTx) snapshot() {
	t.backup = make(map[string][]map[string]any, len(t.conn.Tables))
	for k, rows := range t.conn.Tables {
		t.backup[k] = append([]map[string]any(nil), rows...)
	}
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.backup != nil {
		t.conn.Tables = t.backup
	}
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseCreate(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		if strings.EqualFold(f, "EXISTS") && i+1 < len(fields) {
			return strings.ToLower(strings.TrimSuffix(fields[i+1], "("))
		}
	}
	if len(fields) > 2 {
		return strings.ToLower(strings.TrimSuffix(fields[2], "("))
	}
	return ""
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	return table, splitColumns(rest[open+1 : closeIdx]), nil
}

// parseConflict returns the ON CONFLICT target column, or "" for a plain insert.
func parseConflict(query string) string {
	up := strings.ToUpper(query)
	idx := strings.Index(up, "ON CONFLICT")
	if idx == -1 {
		return ""
	}
	rest := query[idx+len("ON CONFLICT"):]
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx <= open {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(rest[open+1 : closeIdx]))
}

func parseSelect(query string) (string, []string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	const selectPrefix, fromToken = "select ", " from "
	if !strings.HasPrefix(lower, selectPrefix) {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, fromToken)
	if fromIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	table := strings.Fields(lower[fromIdx+len(fromToken):])
	if len(table) == 0 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	return table[0], splitColumns(lower[len(selectPrefix):fromIdx]), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
