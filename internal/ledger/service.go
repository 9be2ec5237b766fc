package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/digest"
	"sealedrecord/internal/platform/metrics"
	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
	"sealedrecord/pkg/platform/sentinel"
	"sealedrecord/pkg/requestcontext"
)

// Service owns the append path and its ordering guarantees. Appends to the
// same document are serialized by a per-document mutex; the store's
// conditional insert on (document_id, sequence) backstops the lock so a
// multi-instance deployment degrades to optimistic retries instead of
// forking the chain. Cross-document appends proceed in parallel.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu    sync.Mutex
	locks map[id.DocumentID]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("sealedrecord/ledger"),
		locks:  make(map[id.DocumentID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockFor returns the mutex serializing appends for one document. Lock
// entries are never reclaimed; a mutex per active document is cheap and
// reclamation would race with lock holders.
func (s *Service) lockFor(documentID id.DocumentID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[documentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[documentID] = l
	}
	return l
}

// Append validates, chains, and persists one event. On a lost race against
// the chain tail it retries once with a fresh tail read; a second conflict
// surfaces as CodeConflict, retryable by the caller.
func (s *Service) Append(ctx context.Context, documentID id.DocumentID, kind Kind, actor Actor, reqCtx capture.RequestContext, payload Payload) (Event, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Append", trace.WithAttributes(
		attribute.String("document_id", documentID.String()),
		attribute.String("event_kind", kind.String()),
	))
	defer span.End()

	if documentID.IsNil() {
		return Event{}, dErrors.New(dErrors.CodeInvalidInput, "document id is required")
	}
	if !kind.IsValid() {
		return Event{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown event kind %q", kind)
	}
	if !actor.Type.IsValid() {
		return Event{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown actor type %q", actor.Type)
	}
	if payload == nil {
		return Event{}, dErrors.New(dErrors.CodeInvalidInput, "payload is required")
	}
	if payload.PayloadKind() != kind {
		return Event{}, dErrors.Newf(dErrors.CodeInvalidInput, "payload does not match event kind %q", kind)
	}
	if err := payload.Validate(); err != nil {
		return Event{}, err
	}

	lock := s.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	event, err := s.appendLocked(ctx, documentID, kind, actor, reqCtx, payload)
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		// Another writer advanced the tail between our read and insert
		// (possible when a second instance shares the database). Re-read and
		// try once more before surfacing the conflict.
		if s.metrics != nil {
			s.metrics.IncAppendConflictRetried()
		}
		s.logger.WarnContext(ctx, "ledger append lost race on chain tail, retrying",
			"document_id", documentID.String(),
			"event_kind", kind.String(),
		)
		event, err = s.appendLocked(ctx, documentID, kind, actor, reqCtx, payload)
	}
	if err != nil {
		return Event{}, err
	}

	if s.metrics != nil {
		s.metrics.IncEventAppended(kind.String())
	}
	s.logger.InfoContext(ctx, "audit event appended",
		"document_id", documentID.String(),
		"event_kind", kind.String(),
		"sequence", event.Sequence,
		"request_id", requestcontext.RequestID(ctx),
	)
	return event, nil
}

func (s *Service) appendLocked(ctx context.Context, documentID id.DocumentID, kind Kind, actor Actor, reqCtx capture.RequestContext, payload Payload) (Event, error) {
	history, err := s.store.List(ctx, documentID)
	if err != nil {
		return Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "read ledger for "+documentID.String(), err)
	}

	timestamp := requestcontext.Now(ctx).Truncate(time.Microsecond)
	if err := validatePreconditions(history, kind, payload, timestamp); err != nil {
		return Event{}, err
	}

	previousHash := digest.Genesis
	sequence := int64(1)
	if n := len(history); n > 0 {
		previousHash = history[n-1].CurrentHash
		sequence = history[n-1].Sequence + 1
	}

	contextDigest, err := ContextDigestFor(reqCtx)
	if err != nil {
		return Event{}, err
	}

	event := Event{
		ID:            id.NewEventID(),
		DocumentID:    documentID,
		Sequence:      sequence,
		Kind:          kind,
		Actor:         actor,
		Context:       reqCtx,
		ContextDigest: contextDigest,
		Payload:       payload,
		Timestamp:     timestamp,
		PreviousHash:  previousHash,
	}
	event.CurrentHash, err = event.ComputeHash()
	if err != nil {
		return Event{}, err
	}

	if err := s.store.Append(ctx, event); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Event{}, dErrors.Newf(dErrors.CodeConflict,
				"concurrent append to document %s at sequence %d", documentID, sequence)
		}
		return Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "persist event for "+documentID.String(), err)
	}
	return event, nil
}

// List returns the full ordered event sequence for a document.
func (s *Service) List(ctx context.Context, documentID id.DocumentID) ([]Event, error) {
	events, err := s.store.List(ctx, documentID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "list ledger for "+documentID.String(), err)
	}
	return events, nil
}

// Latest returns the chain tail for a document.
func (s *Service) Latest(ctx context.Context, documentID id.DocumentID) (Event, error) {
	event, err := s.store.Latest(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Event{}, dErrors.Newf(dErrors.CodeNotFound, "document %s has no events", documentID)
		}
		return Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "load chain tail for "+documentID.String(), err)
	}
	return event, nil
}

// AnonymizeBefore applies retention policy to requester-context fields of
// events older than the cutoff. Hash fields are never touched; the chain
// stays verifiable because context is hashed through its recorded digest.
func (s *Service) AnonymizeBefore(ctx context.Context, documentID id.DocumentID, cutoff time.Time) (int, error) {
	n, err := s.store.AnonymizeContextBefore(ctx, documentID, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeUnavailable, "anonymize ledger context", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "retention anonymization applied",
			"document_id", documentID.String(),
			"events_rewritten", n,
		)
	}
	return n, nil
}
