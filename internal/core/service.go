package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/blake3"

	"heritagestore/internal/blob"
	"heritagestore/internal/infra/persistence/memory"
	"heritagestore/pkg/domain"
)

// ErrNoBlobStore is returned by surrogate file operations when the service
// was built without a blob store.
var ErrNoBlobStore = errors.New("service: no blob store configured")

// ErrNotFound is returned when an operation needs a record that does not exist.
type ErrNotFound struct {
	Collection Collection
	ID         string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Collection, e.ID)
}

// Service layers registration helpers, rules, caching and observability over
// a PersistentStore.
type Service struct {
	store   PersistentStore
	engine  *RulesEngine
	blobs   blob.Store
	cache   *recordCache
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock      Clock
	logger     Logger
	audit      AuditRecorder
	metrics    MetricsRecorder
	tracer     Tracer
	engine     *RulesEngine
	blobs      blob.Store
	cacheSize  int
	cacheTTL   time.Duration
	registerer prometheus.Registerer
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
}

// WithClock overrides the clock used for audit timestamps.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder receives an entry per write.
func WithAuditRecorder(audit AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if audit != nil {
			o.audit = audit
		}
	}
}

// WithMetricsRecorder observes every operation.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer wraps every operation in a span.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithRulesEngine replaces the default advisory rules.
func WithRulesEngine(engine *RulesEngine) ServiceOption {
	return func(o *serviceOptions) { o.engine = engine }
}

// WithBlobStore enables surrogate file ingest and preview URLs.
func WithBlobStore(store blob.Store) ServiceOption {
	return func(o *serviceOptions) { o.blobs = store }
}

// WithCache enables the read cache. A non-positive size disables it.
func WithCache(size int, ttl time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// WithRegisterer registers the cache counters on reg.
func WithRegisterer(reg prometheus.Registerer) ServiceOption {
	return func(o *serviceOptions) { o.registerer = reg }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = NewDefaultRulesEngine()
	}
	svc := &Service{
		store:   store,
		engine:  o.engine,
		blobs:   o.blobs,
		clock:   o.clock,
		logger:  o.logger,
		audit:   o.audit,
		metrics: o.metrics,
		tracer:  o.tracer,
	}
	if o.cacheSize > 0 {
		svc.cache = newRecordCache(o.cacheSize, o.cacheTTL, o.registerer)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Close closes the underlying store.
func (s *Service) Close() error { return s.store.Close() }

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err, duration)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "duration", duration)
	}
	return err
}

// Register evaluates the rules for rec and stores it under its own id. A
// blocking violation returns RuleViolationError and nothing is written;
// warnings are logged and returned in the Result.
func (s *Service) Register(ctx context.Context, rec Record) (Result, error) {
	if rec == nil {
		return Result{}, fmt.Errorf("register: %w", domain.ErrCollectionMismatch)
	}
	var res Result
	op := "register_" + string(rec.Collection())
	err := s.run(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = s.put(ctx, op, rec.Collection(), rec.RecordID(), rec)
		return err
	})
	return res, err
}

func (s *Service) put(ctx context.Context, op string, c Collection, key string, rec Record) (Result, error) {
	start := time.Now()
	entry := AuditEntry{Operation: op, Collection: c, EntityID: key}
	res, err := s.putRecord(ctx, c, key, rec, &entry)
	entry.Timestamp = s.clock.Now()
	entry.Duration = time.Since(start)
	entry.Status = AuditStatusSuccess
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
	return res, err
}

func (s *Service) putRecord(ctx context.Context, c Collection, key string, rec Record, entry *AuditEntry) (Result, error) {
	if err := domain.CheckPut(c, key, rec); err != nil {
		return Result{}, err
	}
	before, existed, err := s.store.Get(c, key)
	if err != nil {
		return Result{}, err
	}
	change := Change{Collection: c, Key: key, Action: ActionCreate, After: domain.CloneRecord(rec)}
	if existed {
		change.Action = ActionUpdate
		change.Before = before
	}
	entry.Action = change.Action

	res, err := s.engine.Evaluate(ctx, s.store, change)
	if err != nil {
		return Result{}, err
	}
	if res.HasBlocking() {
		return res, RuleViolationError{Result: res}
	}
	if err := s.store.Put(ctx, c, key, rec); err != nil {
		return res, err
	}
	s.cache.invalidate(c, key)
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "rule", v.Rule, "severity", string(v.Severity),
			"collection", string(v.Entity), "id", v.EntityID, "message", v.Message)
	}
	return res, nil
}

// Get returns the record under id, served from the cache when enabled.
func (s *Service) Get(c Collection, id string) (Record, bool, error) {
	if rec, ok := s.cache.get(c, id); ok {
		return rec, true, nil
	}
	rec, ok, err := s.store.Get(c, id)
	if err != nil || !ok {
		return nil, false, err
	}
	s.cache.set(c, id, rec)
	return rec, true, nil
}

func lookup[T Record](s *Service, c Collection, id string) (T, bool, error) {
	var zero T
	rec, ok, err := s.Get(c, id)
	if err != nil || !ok {
		return zero, false, err
	}
	typed, ok := rec.(T)
	if !ok {
		return zero, false, fmt.Errorf("%w: %s/%s holds %T", domain.ErrCollectionMismatch, c, id, rec)
	}
	return typed, true, nil
}

// Artifact returns the artifact with the given id.
func (s *Service) Artifact(id string) (Artifact, bool, error) {
	return lookup[Artifact](s, domain.CollectionArtifacts, id)
}

// Loan returns the loan with the given id.
func (s *Service) Loan(id string) (Loan, bool, error) {
	return lookup[Loan](s, domain.CollectionLoans, id)
}

// Surrogate returns the digital surrogate with the given id.
func (s *Service) Surrogate(id string) (DigitalSurrogate, bool, error) {
	return lookup[DigitalSurrogate](s, domain.CollectionDigital, id)
}

// ArtifactByTitle resolves an artifact through the case-insensitive title index.
func (s *Service) ArtifactByTitle(title string) (Artifact, bool, error) {
	id, ok, err := s.store.LookupTitle(title)
	if err != nil || !ok {
		return Artifact{}, false, err
	}
	return s.Artifact(id)
}

// UpdateArtifact reads the artifact, applies mutator to a copy and stores the
// result. The id cannot be changed by the mutator.
func (s *Service) UpdateArtifact(ctx context.Context, id string, mutator func(*Artifact) error) (Artifact, Result, error) {
	var (
		updated Artifact
		res     Result
	)
	err := s.run(ctx, "update_artifact", func(ctx context.Context) error {
		var err error
		updated, res, err = s.updateArtifact(ctx, "update_artifact", id, mutator)
		return err
	})
	return updated, res, err
}

func (s *Service) updateArtifact(ctx context.Context, op, id string, mutator func(*Artifact) error) (Artifact, Result, error) {
	current, ok, err := domain.Lookup[Artifact](s.store, domain.CollectionArtifacts, id)
	if err != nil {
		return Artifact{}, Result{}, err
	}
	if !ok {
		return Artifact{}, Result{}, ErrNotFound{Collection: domain.CollectionArtifacts, ID: id}
	}
	next := domain.CloneArtifact(current)
	if err := mutator(&next); err != nil {
		return Artifact{}, Result{}, err
	}
	next.ID = id
	res, err := s.put(ctx, op, domain.CollectionArtifacts, id, next)
	if err != nil {
		return Artifact{}, res, err
	}
	return next, res, nil
}

// UpdateLoan reads the loan, applies mutator to a copy and stores the result.
func (s *Service) UpdateLoan(ctx context.Context, id string, mutator func(*Loan) error) (Loan, Result, error) {
	var (
		updated Loan
		res     Result
	)
	err := s.run(ctx, "update_loan", func(ctx context.Context) error {
		current, ok, err := domain.Lookup[Loan](s.store, domain.CollectionLoans, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound{Collection: domain.CollectionLoans, ID: id}
		}
		next := domain.CloneLoan(current)
		if err := mutator(&next); err != nil {
			return err
		}
		next.ID = id
		res, err = s.put(ctx, "update_loan", domain.CollectionLoans, id, next)
		if err != nil {
			return err
		}
		updated = next
		return nil
	})
	return updated, res, err
}

// AddArtifactVersion appends v to the artifact's versions, generating an id
// when v has none.
func (s *Service) AddArtifactVersion(ctx context.Context, artifactID string, v ArtifactVersion) (Artifact, Result, error) {
	if v.ID == "" {
		v.ID = domain.NewID("ver")
	}
	var (
		updated Artifact
		res     Result
	)
	err := s.run(ctx, "add_artifact_version", func(ctx context.Context) error {
		var err error
		updated, res, err = s.updateArtifact(ctx, "add_artifact_version", artifactID, func(a *Artifact) error {
			a.Versions = append(a.Versions, domain.CloneArtifactVersion(v))
			return nil
		})
		return err
	})
	return updated, res, err
}

// attach registers rec and appends its id to the artifact's reference list
// selected by refs. The artifact must exist.
func (s *Service) attach(ctx context.Context, op, artifactID string, rec Record, refs func(*Artifact) *[]string) (Result, error) {
	var res Result
	err := s.run(ctx, op, func(ctx context.Context) error {
		_, ok, err := s.store.Get(domain.CollectionArtifacts, artifactID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound{Collection: domain.CollectionArtifacts, ID: artifactID}
		}
		recRes, err := s.put(ctx, op, rec.Collection(), rec.RecordID(), rec)
		res.Merge(recRes)
		if err != nil {
			return err
		}
		_, artRes, err := s.updateArtifact(ctx, op, artifactID, func(a *Artifact) error {
			list := refs(a)
			for _, id := range *list {
				if id == rec.RecordID() {
					return nil
				}
			}
			*list = append(*list, rec.RecordID())
			return nil
		})
		res.Merge(artRes)
		return err
	})
	return res, err
}

// AttachLoan registers loan against the artifact and references it from the
// artifact's loan list.
func (s *Service) AttachLoan(ctx context.Context, artifactID string, loan Loan) (Loan, Result, error) {
	if loan.ID == "" {
		loan.ID = domain.NewID("loan")
	}
	loan.ArtifactID = artifactID
	res, err := s.attach(ctx, "attach_loan", artifactID, loan, func(a *Artifact) *[]string { return &a.Loans })
	return loan, res, err
}

// AttachConservation registers rec and references it from the artifact.
func (s *Service) AttachConservation(ctx context.Context, artifactID string, rec ConservationRecord) (ConservationRecord, Result, error) {
	if rec.ID == "" {
		rec.ID = domain.NewID("cons")
	}
	res, err := s.attach(ctx, "attach_conservation", artifactID, rec, func(a *Artifact) *[]string { return &a.ConservationRecords })
	return rec, res, err
}

// AttachSurrogate registers d and references it from the artifact. A
// surrogate with no origin is marked as derived from the artifact.
func (s *Service) AttachSurrogate(ctx context.Context, artifactID string, d DigitalSurrogate) (DigitalSurrogate, Result, error) {
	if d.ID == "" {
		d.ID = domain.NewID("dig")
	}
	if d.DerivedFromID == nil {
		origin := artifactID
		d.DerivedFromID = &origin
	}
	res, err := s.attach(ctx, "attach_surrogate", artifactID, d, func(a *Artifact) *[]string { return &a.DigitalSurrogates })
	return d, res, err
}

// Status resolves the display status of an artifact.
func (s *Service) Status(ctx context.Context, artifactID string) (ArtifactStatus, error) {
	var status ArtifactStatus
	err := s.run(ctx, "status", func(context.Context) error {
		a, ok, err := s.Artifact(artifactID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound{Collection: domain.CollectionArtifacts, ID: artifactID}
		}
		status, err = DisplayStatus(s.store, a)
		return err
	})
	return status, err
}

// ArtifactsByMaterial runs QueryArtifactsByMaterial against the store.
func (s *Service) ArtifactsByMaterial(ctx context.Context, substr string) ([]Artifact, error) {
	var out []Artifact
	err := s.run(ctx, "query_artifacts_by_material", func(context.Context) error {
		var err error
		out, err = QueryArtifactsByMaterial(s.store, substr)
		return err
	})
	return out, err
}

// ConservationByRestorer runs QueryConservationByRestorer against the store.
func (s *Service) ConservationByRestorer(ctx context.Context, restorerID string) ([]ConservationRecord, error) {
	var out []ConservationRecord
	err := s.run(ctx, "query_conservation_by_restorer", func(context.Context) error {
		var err error
		out, err = QueryConservationByRestorer(s.store, restorerID)
		return err
	})
	return out, err
}

// SurrogateBlobKey is where the file of surrogate d is kept.
func SurrogateBlobKey(d DigitalSurrogate) string {
	return "surrogates/" + d.ID + "/" + path.Base(d.FileRef)
}

// IngestSurrogate streams the surrogate's file into the blob store, records
// its size and blake3 checksum, and registers the surrogate.
func (s *Service) IngestSurrogate(ctx context.Context, d DigitalSurrogate, r io.Reader) (DigitalSurrogate, Result, error) {
	if d.ID == "" {
		d.ID = domain.NewID("dig")
	}
	var res Result
	err := s.run(ctx, "ingest_surrogate", func(ctx context.Context) error {
		if s.blobs == nil {
			return ErrNoBlobStore
		}
		hasher := blake3.New()
		info, err := s.blobs.Put(ctx, SurrogateBlobKey(d), io.TeeReader(r, hasher), blob.PutOptions{
			ContentType: mime.TypeByExtension("." + d.FileType),
			Metadata:    map[string]string{"surrogate_id": d.ID},
		})
		if err != nil {
			return fmt.Errorf("store surrogate file: %w", err)
		}
		d.SizeBytes = info.Size
		d.Checksum = "blake3:" + hex.EncodeToString(hasher.Sum(nil))
		res, err = s.put(ctx, "ingest_surrogate", domain.CollectionDigital, d.ID, d)
		return err
	})
	return d, res, err
}

// SurrogatePreview is the printable description of a surrogate plus a URL to
// its file when one was ingested.
type SurrogatePreview struct {
	SurrogateID string `json:"surrogate_id"`
	Text        string `json:"text"`
	URL         string `json:"url,omitempty"`
}

// SurrogatePreview describes the surrogate with the given id.
func (s *Service) SurrogatePreview(ctx context.Context, id string) (SurrogatePreview, error) {
	var preview SurrogatePreview
	err := s.run(ctx, "surrogate_preview", func(ctx context.Context) error {
		d, ok, err := s.Surrogate(id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound{Collection: domain.CollectionDigital, ID: id}
		}
		preview = SurrogatePreview{SurrogateID: d.ID, Text: d.PreviewInfo()}
		if s.blobs == nil {
			return nil
		}
		key := SurrogateBlobKey(d)
		if _, err := s.blobs.Head(ctx, key); err != nil {
			s.logger.Debug("surrogate file not stored", "key", key, "error", err)
			return nil
		}
		url, err := s.blobs.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: 15 * time.Minute})
		if err != nil && !errors.Is(err, blob.ErrUnsupported) {
			return fmt.Errorf("presign %s: %w", key, err)
		}
		preview.URL = url
		return nil
	})
	return preview, err
}
