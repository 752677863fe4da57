package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"heritagestore/internal/blob"
	"heritagestore/pkg/domain"
)

// Clock supplies timestamps for audit entries.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// AuditStatus is the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one completed service write.
type AuditEntry struct {
	Timestamp  time.Time
	Operation  string
	Collection Collection
	Action     Action
	EntityID   string
	Status     AuditStatus
	Duration   time.Duration
	Error      string
}

// AuditRecorder receives an entry for every service write.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes the outcome and latency of every service operation.
// err is the operation's error, nil on success.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, err error, duration time.Duration)
}

// Operation outcomes reported by the metrics recorders and the JSON tracer.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeBlocked  = "blocked"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeClosed   = "closed"
	OutcomeError    = "error"
)

// Outcome classifies an operation error.
func Outcome(err error) string {
	var (
		missing ErrNotFound
		blocked RuleViolationError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &missing), errors.Is(err, blob.ErrNotFound):
		return OutcomeNotFound
	case errors.As(err, &blocked):
		return OutcomeBlocked
	case errors.Is(err, domain.ErrClosed):
		return OutcomeClosed
	case errors.Is(err, blob.ErrExists):
		return OutcomeConflict
	case errors.Is(err, domain.ErrCollectionMismatch),
		errors.Is(err, domain.ErrUnknownCollection),
		errors.Is(err, domain.ErrIndexReadOnly),
		errors.Is(err, domain.ErrEmptyKey),
		errors.Is(err, ErrNoBlobStore):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

// Operation kinds.
const (
	KindRead  = "read"
	KindWrite = "write"
)

// OperationKind reports whether a service operation only reads records.
// Status, preview and the query_* operations read; everything else writes.
func OperationKind(operation string) string {
	if operation == "status" || operation == "surrogate_preview" || strings.HasPrefix(operation, "query_") {
		return KindRead
	}
	return KindWrite
}

// Tracer starts a span around each service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan ends with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, error, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// LoggerAuditRecorder writes audit entries to a Logger at info level, or
// warn level for failures.
type LoggerAuditRecorder struct {
	Logger Logger
}

// Record implements AuditRecorder.
func (r LoggerAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	if r.Logger == nil {
		return
	}
	args := []any{
		"operation", entry.Operation,
		"collection", string(entry.Collection),
		"action", string(entry.Action),
		"id", entry.EntityID,
		"duration", entry.Duration,
	}
	if entry.Status == AuditStatusError {
		r.Logger.Warn("audit", append(args, "error", entry.Error)...)
		return
	}
	r.Logger.Info("audit", args...)
}
