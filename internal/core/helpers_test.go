package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"heritagestore/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	outcome string
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, err error, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, outcome: Outcome(err)})
}

func (c *captureMetricsRecorder) has(op, outcome string) bool {
	for _, call := range c.calls {
		if call.op == op && call.outcome == outcome {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logCall struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c.level == level && c.msg == msg {
			n++
		}
	}
	return n
}

func strPtr(s string) *string { return &s }

func mustRegister(t *testing.T, svc *Service, rec Record) Result {
	t.Helper()
	res, err := svc.Register(context.Background(), rec)
	if err != nil {
		t.Fatalf("register %s %s: %v", rec.Collection(), rec.RecordID(), err)
	}
	return res
}

func hasRule(res Result, rule string) bool {
	for _, v := range res.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

func newArtifact(id, title, material string) Artifact {
	a := Artifact{ID: id, Title: title, Creator: "Unknown Artist", DateCreated: "1784-01-01"}
	if material != "" {
		a.Material = strPtr(material)
	}
	return a
}

// fixedClock returns successive minutes from a fixed origin.
func fixedClock() Clock {
	var (
		mu sync.Mutex
		n  int
	)
	origin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return ClockFunc(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return origin.Add(time.Duration(n) * time.Minute)
	})
}

// blockingRule rejects every write into one collection.
type blockingRule struct {
	collection Collection
}

func (blockingRule) Name() string { return "block_collection" }

func (r blockingRule) Evaluate(_ context.Context, _ RecordReader, change Change) (Result, error) {
	if change.Collection != r.collection {
		return Result{}, nil
	}
	return Result{Violations: []Violation{{
		Rule:     "block_collection",
		Severity: SeverityBlock,
		Message:  fmt.Sprintf("%s is frozen", r.collection),
		Entity:   change.Collection,
		EntityID: change.Key,
	}}}, nil
}

var _ Rule = blockingRule{collection: domain.CollectionLoans}
