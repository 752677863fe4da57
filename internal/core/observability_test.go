package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"heritagestore/internal/blob"
	"heritagestore/pkg/domain"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "heritage_service_metrics_") {
		t.Fatalf("unexpected generated name %q", rec.Name())
	}
	ctx := context.Background()
	rec.Observe(ctx, "status", nil, 2*time.Millisecond)
	rec.Observe(ctx, "status", ErrNotFound{Collection: domain.CollectionArtifacts, ID: "x"}, time.Millisecond)
	rec.Observe(ctx, "register_loans", domain.ErrClosed, 5*time.Millisecond)
	rec.Observe(ctx, "", nil, time.Millisecond)

	snap := rec.Snapshot()
	status := snap.Operations["status"]
	if status.Kind != KindRead || status.Calls != 2 || status.TotalMS != 3 || status.MaxMS != 2 {
		t.Fatalf("unexpected status stats %+v", status)
	}
	if status.Outcomes[OutcomeOK] != 1 || status.Outcomes[OutcomeNotFound] != 1 {
		t.Fatalf("unexpected status outcomes %+v", status.Outcomes)
	}
	if loans := snap.Operations["register_loans"]; loans.Kind != KindWrite || loans.Outcomes[OutcomeClosed] != 1 {
		t.Fatalf("unexpected register stats %+v", loans)
	}
	if snap.Reads != 2 || snap.Writes != 1 {
		t.Fatalf("unexpected totals reads=%d writes=%d", snap.Reads, snap.Writes)
	}
	if _, ok := snap.Operations[""]; ok {
		t.Fatalf("empty operation names are ignored")
	}
	snap.Operations["status"].Outcomes[OutcomeOK] = 99
	if rec.Snapshot().Operations["status"].Outcomes[OutcomeOK] != 1 {
		t.Fatalf("snapshot aliases recorder state")
	}
	published := expvar.Get(rec.Name())
	if published == nil || !strings.Contains(published.String(), `"operations"`) {
		t.Fatalf("recorder not published: %v", published)
	}
}

func TestOutcomeAndKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{ErrNotFound{Collection: domain.CollectionLoans, ID: "l"}, OutcomeNotFound},
		{fmt.Errorf("head: %w", blob.ErrNotFound), OutcomeNotFound},
		{RuleViolationError{}, OutcomeBlocked},
		{fmt.Errorf("put: %w", domain.ErrClosed), OutcomeClosed},
		{blob.ErrExists, OutcomeConflict},
		{domain.ErrIndexReadOnly, OutcomeInvalid},
		{ErrNoBlobStore, OutcomeInvalid},
		{errors.New("disk full"), OutcomeError},
	}
	for _, tc := range cases {
		if got := Outcome(tc.err); got != tc.want {
			t.Errorf("Outcome(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
	for op, want := range map[string]string{
		"status":                      KindRead,
		"surrogate_preview":           KindRead,
		"query_artifacts_by_material": KindRead,
		"register_artifacts":          KindWrite,
		"ingest_surrogate":            KindWrite,
	} {
		if got := OperationKind(op); got != want {
			t.Errorf("OperationKind(%s) = %s, want %s", op, got, want)
		}
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := NewInMemoryService(WithTracer(tracer))
	mustRegister(t, svc, Person{ID: "p1", Name: "Arun"})
	_, _ = svc.Status(context.Background(), "missing")

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(entries))
	}
	if entries[0].Operation != "register_people" || entries[0].Kind != KindWrite || entries[0].Outcome != OutcomeOK {
		t.Fatalf("unexpected first span %+v", entries[0])
	}
	if entries[1].Kind != KindRead || entries[1].Outcome != OutcomeNotFound || !strings.Contains(entries[1].Error, "not found") {
		t.Fatalf("unexpected second span %+v", entries[1])
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 json lines, got %q", buf.String())
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil || decoded.Operation != "status" {
		t.Fatalf("decode line: %+v %v", decoded, err)
	}

	silent := NewJSONTracer(nil)
	_, span := silent.Start(context.Background(), "op")
	span.End(errors.New("boom"))
	if got := silent.Entries(); len(got) != 1 || got[0].Error != "boom" || got[0].Outcome != OutcomeError {
		t.Fatalf("nil writer tracer should still retain spans: %+v", got)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusMetricsRecorder(reg)
	svc := NewInMemoryService(WithMetricsRecorder(rec))
	mustRegister(t, svc, Person{ID: "p1", Name: "Arun"})
	mustRegister(t, svc, Person{ID: "p2", Name: "Bea"})
	_, _ = svc.Status(context.Background(), "missing")

	if got := promtest.ToFloat64(rec.operations.WithLabelValues("register_people", KindWrite, OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 successful registers, got %v", got)
	}
	if got := promtest.ToFloat64(rec.operations.WithLabelValues("status", KindRead, OutcomeNotFound)); got != 1 {
		t.Fatalf("expected 1 failed status, got %v", got)
	}
	if n := promtest.CollectAndCount(rec.durations); n != 2 {
		t.Fatalf("expected 2 histogram series, got %d", n)
	}
}

func TestLoggerAuditRecorderAndZapAdapter(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(obs))
	svc := NewInMemoryService(WithLogger(logger), WithAuditRecorder(LoggerAuditRecorder{Logger: logger}))

	mustRegister(t, svc, Person{ID: "p1", Name: "Arun"})
	_, _ = svc.Register(context.Background(), Person{})

	if n := logs.FilterMessage("audit").FilterLevelExact(zapcore.InfoLevel).Len(); n != 1 {
		t.Fatalf("expected 1 info audit line, got %d", n)
	}
	failed := logs.FilterMessage("audit").FilterLevelExact(zapcore.WarnLevel).All()
	if len(failed) != 1 || failed[0].ContextMap()["error"] != domain.ErrEmptyKey.Error() {
		t.Fatalf("unexpected failed audit lines %+v", failed)
	}
	if logs.FilterMessage("operation failed").Len() != 1 {
		t.Fatalf("expected the failure to be logged")
	}
	if logs.FilterMessage("operation completed").FilterField(zap.String("operation", "register_people")).Len() != 1 {
		t.Fatalf("expected a debug completion line")
	}

	if _, ok := NewZapLogger(nil).(noopLogger); !ok {
		t.Fatalf("nil zap logger should give the no-op logger")
	}
	LoggerAuditRecorder{}.Record(context.Background(), AuditEntry{})
}
