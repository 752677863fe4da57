package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var expvarSeq uint64

// OperationStats aggregates every call of one service operation.
type OperationStats struct {
	Kind     string           `json:"kind"`
	Calls    int64            `json:"calls"`
	Outcomes map[string]int64 `json:"outcomes"`
	TotalMS  float64          `json:"total_ms"`
	MaxMS    float64          `json:"max_ms"`
}

// ExpvarMetricsSnapshot is a copy of everything an ExpvarMetricsRecorder has seen.
type ExpvarMetricsSnapshot struct {
	Operations map[string]OperationStats `json:"operations"`
	Reads      int64                     `json:"reads"`
	Writes     int64                     `json:"writes"`
	RecordedAt time.Time                 `json:"recorded_at"`
}

// ExpvarMetricsRecorder publishes per-operation call counts, outcomes and
// latency under one expvar name.
type ExpvarMetricsRecorder struct {
	name string

	mu     sync.Mutex
	ops    map[string]*OperationStats
	reads  int64
	writes int64
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated heritage_service_metrics_<n> name when name is empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("heritage_service_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]*OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := ExpvarMetricsSnapshot{
		Operations: make(map[string]OperationStats, len(r.ops)),
		Reads:      r.reads,
		Writes:     r.writes,
		RecordedAt: time.Now().UTC(),
	}
	for op, st := range r.ops {
		cp := *st
		cp.Outcomes = make(map[string]int64, len(st.Outcomes))
		for k, v := range st.Outcomes {
			cp.Outcomes[k] = v
		}
		snap.Operations[op] = cp
	}
	return snap
}

// Observe implements MetricsRecorder. Unnamed operations are ignored.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, err error, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	kind := OperationKind(operation)

	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ops[operation]
	if !ok {
		st = &OperationStats{Kind: kind, Outcomes: make(map[string]int64)}
		r.ops[operation] = st
	}
	st.Calls++
	st.Outcomes[Outcome(err)]++
	st.TotalMS += ms
	if ms > st.MaxMS {
		st.MaxMS = ms
	}
	if kind == KindRead {
		r.reads++
	} else {
		r.writes++
	}
}

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Kind       string    `json:"kind"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTraceTracer writes one JSON line per finished span and retains the
// spans for Entries.
type JSONTraceTracer struct {
	mu      sync.Mutex
	enc     *json.Encoder
	entries []JSONTraceEntry
}

// NewJSONTracer returns a tracer writing to w. With a nil writer spans are
// only retained.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns the finished spans in completion order.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Kind:       OperationKind(s.operation),
		Outcome:    Outcome(err),
		StartedAt:  s.started,
		DurationMS: float64(time.Since(s.started)) / float64(time.Millisecond),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.tracer.finish(entry)
}

// PrometheusMetricsRecorder exports operation counts by outcome and latency
// by operation.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the service collectors on reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heritage",
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by name, kind and outcome.",
		}, []string{"operation", "kind", "outcome"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "heritage",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
	}
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, err error, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, OperationKind(operation), Outcome(err)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}
