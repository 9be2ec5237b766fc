package certificate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/digest"
	"sealedrecord/internal/document"
	"sealedrecord/internal/ledger"
	"sealedrecord/internal/platform/metrics"
	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
	"sealedrecord/pkg/platform/sentinel"
	"sealedrecord/pkg/requestcontext"
)

// Documents is the slice of the document service the builder reads from.
type Documents interface {
	Get(ctx context.Context, documentID id.DocumentID) (document.Document, []document.Signer, error)
}

// Ledger supplies the event trail and records certificate issuance.
type Ledger interface {
	Append(ctx context.Context, documentID id.DocumentID, kind ledger.Kind, actor ledger.Actor, reqCtx capture.RequestContext, payload ledger.Payload) (ledger.Event, error)
	List(ctx context.Context, documentID id.DocumentID) ([]ledger.Event, error)
}

// VerifyResult reports one verification attempt against a stored
// certificate.
type VerifyResult struct {
	Valid             bool
	RecomputedHash    string
	StoredHash        string
	VerificationCount int
}

// Service builds, verifies, and renders certificates of completion.
type Service struct {
	store     Store
	documents Documents
	ledger    Ledger
	cache     *RenderCache
	logger    *slog.Logger
	metrics   *metrics.Metrics
	building  singleflight.Group
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithRenderCache(c *RenderCache) Option {
	return func(s *Service) { s.cache = c }
}

func NewService(store Store, documents Documents, ledgerSvc Ledger, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		documents: documents,
		ledger:    ledgerSvc,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build issues the certificate for a completed document. Building is
// idempotent: a second call, concurrent or later, returns the certificate
// issued first.
func (s *Service) Build(ctx context.Context, documentID id.DocumentID, actor ledger.Actor, reqCtx capture.RequestContext) (Certificate, error) {
	v, err, _ := s.building.Do(documentID.String(), func() (any, error) {
		return s.build(ctx, documentID, actor, reqCtx)
	})
	if err != nil {
		return Certificate{}, err
	}
	return v.(Certificate), nil
}

func (s *Service) build(ctx context.Context, documentID id.DocumentID, actor ledger.Actor, reqCtx capture.RequestContext) (Certificate, error) {
	if existing, err := s.store.GetByDocument(ctx, documentID); err == nil {
		if err := s.ensureIssuanceRecorded(ctx, existing, actor, reqCtx); err != nil {
			return Certificate{}, err
		}
		return existing, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return Certificate{}, dErrors.Wrap(dErrors.CodeUnavailable, "look up certificate", err)
	}

	var (
		doc     document.Document
		signers []document.Signer
		events  []ledger.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doc, signers, err = s.documents.Get(gctx, documentID)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.ledger.List(gctx, documentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Certificate{}, err
	}

	if doc.Status != document.StatusCompleted {
		return Certificate{}, dErrors.Newf(dErrors.CodePrecondition, "document %s is %s, not completed", documentID, doc.Status)
	}

	now := requestcontext.Now(ctx)
	snap := BuildSnapshot(doc, signers, events, now)
	raw, err := json.Marshal(snap)
	if err != nil {
		return Certificate{}, dErrors.Wrap(dErrors.CodeInternal, "encode certificate snapshot", err)
	}
	hash, err := digest.Canonical(snap)
	if err != nil {
		return Certificate{}, err
	}

	cert := Certificate{
		ID:          id.NewCertificateID(),
		DocumentID:  documentID,
		Hash:        hash,
		Snapshot:    raw,
		GeneratedAt: now,
	}
	if err := s.store.Create(ctx, cert); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost the race to another builder; theirs is the certificate.
			existing, getErr := s.store.GetByDocument(ctx, documentID)
			if getErr != nil {
				return Certificate{}, dErrors.Wrap(dErrors.CodeUnavailable, "load winning certificate", getErr)
			}
			if err := s.ensureIssuanceRecorded(ctx, existing, actor, reqCtx); err != nil {
				return Certificate{}, err
			}
			return existing, nil
		}
		return Certificate{}, dErrors.Wrap(dErrors.CodeUnavailable, "persist certificate", err)
	}

	if _, err := s.ledger.Append(ctx, documentID, ledger.KindCertificateGenerated, actor, reqCtx, ledger.CertificateGenerated{
		CertificateID:   cert.ID.String(),
		CertificateHash: cert.Hash,
	}); err != nil {
		return Certificate{}, err
	}

	if s.metrics != nil {
		s.metrics.IncCertificateBuilt()
	}
	s.logger.InfoContext(ctx, "certificate built",
		"certificate_id", cert.ID.String(),
		"document_id", documentID.String(),
		"certificate_hash", cert.Hash,
	)
	return cert, nil
}

// ensureIssuanceRecorded appends certificate.generated for a certificate that
// already exists. A builder can persist the row and then fail the append;
// without this, later idempotent builds would return the certificate while
// the ledger never records its issuance.
func (s *Service) ensureIssuanceRecorded(ctx context.Context, cert Certificate, actor ledger.Actor, reqCtx capture.RequestContext) error {
	events, err := s.ledger.List(ctx, cert.DocumentID)
	if err != nil {
		return err
	}
	for _, event := range events {
		if event.Kind == ledger.KindCertificateGenerated {
			return nil
		}
	}
	_, err = s.ledger.Append(ctx, cert.DocumentID, ledger.KindCertificateGenerated, actor, reqCtx, ledger.CertificateGenerated{
		CertificateID:   cert.ID.String(),
		CertificateHash: cert.Hash,
	})
	return err
}

// Get returns a stored certificate.
func (s *Service) Get(ctx context.Context, certificateID id.CertificateID) (Certificate, error) {
	cert, err := s.store.Get(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Certificate{}, dErrors.Newf(dErrors.CodeNotFound, "certificate %s not found", certificateID)
		}
		return Certificate{}, dErrors.Wrap(dErrors.CodeUnavailable, "load certificate", err)
	}
	return cert, nil
}

// Verify recomputes the certificate hash from the stored snapshot and
// compares it to the sealed hash. The verification counter moves on every
// attempt, valid or not; the snapshot never does.
func (s *Service) Verify(ctx context.Context, certificateID id.CertificateID) (VerifyResult, error) {
	cert, err := s.Get(ctx, certificateID)
	if err != nil {
		return VerifyResult{}, err
	}

	var snap any
	if err := json.Unmarshal(cert.Snapshot, &snap); err != nil {
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeInternal, "decode certificate snapshot", err)
	}
	recomputed, err := digest.Canonical(snap)
	if err != nil {
		return VerifyResult{}, err
	}

	count, err := s.store.IncrementVerifications(ctx, certificateID)
	if err != nil {
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeUnavailable, "record verification attempt", err)
	}

	result := VerifyResult{
		Valid:             recomputed == cert.Hash,
		RecomputedHash:    recomputed,
		StoredHash:        cert.Hash,
		VerificationCount: count,
	}
	if !result.Valid {
		s.logger.ErrorContext(ctx, "certificate hash mismatch",
			"certificate_id", certificateID.String(),
			"stored_hash", cert.Hash,
			"recomputed_hash", recomputed,
		)
	}
	if s.metrics != nil {
		s.metrics.IncCertificateVerified(result.Valid)
	}
	return result, nil
}

// Rendered returns the text artifact for a certificate, from cache when
// possible.
func (s *Service) Rendered(ctx context.Context, cert Certificate) (string, error) {
	if rendered, ok := s.cache.Get(ctx, cert.Hash); ok {
		return rendered, nil
	}
	rendered, err := Render(cert)
	if err != nil {
		return "", err
	}
	s.cache.Set(ctx, cert.Hash, rendered)
	return rendered, nil
}
