package document

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/digest"
	"sealedrecord/internal/ledger"
	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
	"sealedrecord/pkg/email"
	"sealedrecord/pkg/platform/sentinel"
	"sealedrecord/pkg/requestcontext"
)

// Ledger is the slice of the audit ledger the document service drives.
// Every lifecycle transition lands there first; the projection rows in the
// document store follow only after the ledger accepted the event.
type Ledger interface {
	Append(ctx context.Context, documentID id.DocumentID, kind ledger.Kind, actor ledger.Actor, reqCtx capture.RequestContext, payload ledger.Payload) (ledger.Event, error)
	List(ctx context.Context, documentID id.DocumentID) ([]ledger.Event, error)
}

// Service owns document lifecycle and the document hash chain.
type Service struct {
	store  Store
	ledger Ledger
	logger *slog.Logger
}

func NewService(store Store, ledgerSvc Ledger, logger *slog.Logger) *Service {
	return &Service{store: store, ledger: ledgerSvc, logger: logger}
}

// Create registers an uploaded envelope. originalDigest is the digest of
// the uploaded bytes, computed once; it seeds the document hash chain.
func (s *Service) Create(ctx context.Context, title, originalDigest string, actor ledger.Actor, reqCtx capture.RequestContext) (Document, error) {
	doc := Document{
		ID:             id.NewDocumentID(),
		Title:          title,
		Status:         StatusDraft,
		OriginalDigest: originalDigest,
		CurrentDigest:  originalDigest,
		CreatedAt:      requestcontext.Now(ctx),
	}

	_, err := s.ledger.Append(ctx, doc.ID, ledger.KindDocumentCreated, actor, reqCtx, ledger.DocumentCreated{
		Title:          title,
		OriginalDigest: originalDigest,
	})
	if err != nil {
		return Document{}, err
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return Document{}, dErrors.Wrap(dErrors.CodeUnavailable, "persist document", err)
	}
	return doc, nil
}

// CreateFromReader is Create with the digest computed here, streaming.
func (s *Service) CreateFromReader(ctx context.Context, title string, r io.Reader, actor ledger.Actor, reqCtx capture.RequestContext) (Document, error) {
	originalDigest, err := digest.Stream(r)
	if err != nil {
		return Document{}, err
	}
	return s.Create(ctx, title, originalDigest, actor, reqCtx)
}

// Send announces the signer roster and moves the document to Sent. The
// roster is immutable afterwards. The returned event is the appended
// document.sent entry.
func (s *Service) Send(ctx context.Context, documentID id.DocumentID, refs []ledger.SignerRef, actor ledger.Actor, reqCtx capture.RequestContext) ([]Signer, ledger.Event, error) {
	doc, err := s.get(ctx, documentID)
	if err != nil {
		return nil, ledger.Event{}, err
	}
	if doc.Status != StatusDraft {
		return nil, ledger.Event{}, dErrors.Newf(dErrors.CodePrecondition, "document %s is %s, not draft", documentID, doc.Status)
	}

	// Roster entries without a display name get one derived from the email,
	// so certificates and signer lists never render blank parties.
	for i, ref := range refs {
		if ref.Name == "" {
			first, last := email.DeriveNameFromEmail(ref.Email)
			refs[i].Name = first + " " + last
		}
	}

	event, err := s.ledger.Append(ctx, documentID, ledger.KindDocumentSent, actor, reqCtx, ledger.DocumentSent{Signers: refs})
	if err != nil {
		return nil, ledger.Event{}, err
	}

	signers := make([]Signer, 0, len(refs))
	for _, ref := range refs {
		signers = append(signers, Signer{
			ID:         id.NewSignerID(),
			DocumentID: documentID,
			Name:       ref.Name,
			Email:      ref.Email,
			Role:       ref.Role,
			Position:   ref.Position,
			Status:     SignerPending,
		})
	}
	if err := s.store.AddSigners(ctx, signers); err != nil {
		return nil, ledger.Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "persist signers", err)
	}

	doc.Status = StatusSent
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, ledger.Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "update document status", err)
	}
	return signers, event, nil
}

// RecordView notes a signer opening the envelope.
func (s *Service) RecordView(ctx context.Context, documentID id.DocumentID, email string, reqCtx capture.RequestContext) (ledger.Event, error) {
	signer, err := s.getSigner(ctx, documentID, email)
	if err != nil {
		return ledger.Event{}, err
	}

	actor := ledger.Actor{Type: ledger.ActorSigner, ID: email}
	event, err := s.ledger.Append(ctx, documentID, ledger.KindDocumentViewed, actor, reqCtx, ledger.DocumentViewed{SignerEmail: email})
	if err != nil {
		return ledger.Event{}, err
	}

	if signer.Status == SignerPending {
		signer.Status = SignerViewed
		if err := s.store.UpdateSigner(ctx, signer); err != nil {
			return ledger.Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "update signer", err)
		}
	}
	return event, nil
}

// RecordConsent appends the signer's consent.given event and freezes the
// consent timestamp and requester context on the signer record.
func (s *Service) RecordConsent(ctx context.Context, documentID id.DocumentID, payload ledger.ConsentGiven, reqCtx capture.RequestContext) (ledger.Event, error) {
	signer, err := s.getSigner(ctx, documentID, payload.SignerEmail)
	if err != nil {
		return ledger.Event{}, err
	}

	actor := ledger.Actor{Type: ledger.ActorSigner, ID: payload.SignerEmail}
	event, err := s.ledger.Append(ctx, documentID, ledger.KindConsentGiven, actor, reqCtx, payload)
	if err != nil {
		return ledger.Event{}, err
	}

	signer.ConsentAt = event.Timestamp
	signer.ConsentContext = reqCtx
	if err := s.store.UpdateSigner(ctx, signer); err != nil {
		return ledger.Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "update signer consent", err)
	}
	return event, nil
}

// WithdrawConsent appends consent.withdrawn and marks the signer declined.
// The original consent entry stays in the ledger untouched.
func (s *Service) WithdrawConsent(ctx context.Context, documentID id.DocumentID, email, reason string, reqCtx capture.RequestContext) (ledger.Event, error) {
	signer, err := s.getSigner(ctx, documentID, email)
	if err != nil {
		return ledger.Event{}, err
	}

	actor := ledger.Actor{Type: ledger.ActorSigner, ID: email}
	event, err := s.ledger.Append(ctx, documentID, ledger.KindConsentWithdrawn, actor, reqCtx, ledger.ConsentWithdrawn{SignerEmail: email, Reason: reason})
	if err != nil {
		return ledger.Event{}, err
	}

	signer.Status = SignerDeclined
	if err := s.store.UpdateSigner(ctx, signer); err != nil {
		return ledger.Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "update signer", err)
	}
	return event, nil
}

// RecordSignature appends the signature.completed event, advances the
// document hash chain with the event's own ledger hash, and auto-raises
// document.completed when the roster is fully signed. The returned event is
// the signature.completed entry, even when completion was raised after it.
//
// The ledger enforces the consent precondition; if no consent.given precedes
// this call for the signer, nothing is appended and nothing here mutates.
func (s *Service) RecordSignature(ctx context.Context, documentID id.DocumentID, email string, reqCtx capture.RequestContext) (Document, ledger.Event, error) {
	doc, err := s.get(ctx, documentID)
	if err != nil {
		return Document{}, ledger.Event{}, err
	}
	signer, err := s.getSigner(ctx, documentID, email)
	if err != nil {
		return Document{}, ledger.Event{}, err
	}

	actor := ledger.Actor{Type: ledger.ActorSigner, ID: email}
	event, err := s.ledger.Append(ctx, documentID, ledger.KindSignatureCompleted, actor, reqCtx, ledger.SignatureCompleted{
		SignerEmail: email,
		Position:    signer.Position,
		// The lineage digest this signature chains onto.
		DocumentDigest: doc.CurrentDigest,
	})
	if err != nil {
		return Document{}, ledger.Event{}, err
	}

	advanced, err := Advance(doc.CurrentDigest, event.CurrentHash)
	if err != nil {
		return Document{}, ledger.Event{}, err
	}
	doc.CurrentDigest = advanced

	signer.Status = SignerSigned
	signer.SignedAt = event.Timestamp
	signer.SignedContext = reqCtx
	if err := s.store.UpdateSigner(ctx, signer); err != nil {
		return Document{}, ledger.Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "update signer", err)
	}
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return Document{}, ledger.Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "update document digest", err)
	}

	doc, err = s.maybeComplete(ctx, doc, reqCtx)
	if err != nil {
		return Document{}, ledger.Event{}, err
	}
	return doc, event, nil
}

// maybeComplete raises document.completed exactly once, when every required
// signer has signed.
func (s *Service) maybeComplete(ctx context.Context, doc Document, reqCtx capture.RequestContext) (Document, error) {
	signers, err := s.store.ListSigners(ctx, doc.ID)
	if err != nil {
		return Document{}, dErrors.Wrap(dErrors.CodeUnavailable, "list signers", err)
	}
	for _, signer := range signers {
		if signer.Required() && signer.Status != SignerSigned {
			return doc, nil
		}
	}

	actor := ledger.Actor{Type: ledger.ActorSystem, ID: "system"}
	event, err := s.ledger.Append(ctx, doc.ID, ledger.KindDocumentCompleted, actor, reqCtx, ledger.DocumentCompleted{
		FinalDigest: doc.CurrentDigest,
	})
	if err != nil {
		return Document{}, err
	}

	doc.Status = StatusCompleted
	doc.FinalDigest = doc.CurrentDigest
	doc.CompletedAt = event.Timestamp
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return Document{}, dErrors.Wrap(dErrors.CodeUnavailable, "freeze completed document", err)
	}
	s.logger.InfoContext(ctx, "document completed",
		"document_id", doc.ID.String(),
		"final_digest", doc.FinalDigest,
	)
	return doc, nil
}

// Decline records a signer's refusal and terminates the envelope for them.
func (s *Service) Decline(ctx context.Context, documentID id.DocumentID, email, reason string, reqCtx capture.RequestContext) (ledger.Event, error) {
	signer, err := s.getSigner(ctx, documentID, email)
	if err != nil {
		return ledger.Event{}, err
	}

	actor := ledger.Actor{Type: ledger.ActorSigner, ID: email}
	event, err := s.ledger.Append(ctx, documentID, ledger.KindSignerDeclined, actor, reqCtx, ledger.SignerDeclined{SignerEmail: email, Reason: reason})
	if err != nil {
		return ledger.Event{}, err
	}

	signer.Status = SignerDeclined
	if err := s.store.UpdateSigner(ctx, signer); err != nil {
		return ledger.Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "update signer", err)
	}
	return event, nil
}

// Void terminates the envelope before completion.
func (s *Service) Void(ctx context.Context, documentID id.DocumentID, reason string, actor ledger.Actor, reqCtx capture.RequestContext) (ledger.Event, error) {
	return s.terminate(ctx, documentID, ledger.KindDocumentVoided, ledger.DocumentVoided{Reason: reason}, StatusVoided, actor, reqCtx)
}

// Expire terminates an envelope whose signing window lapsed.
func (s *Service) Expire(ctx context.Context, documentID id.DocumentID, actor ledger.Actor, reqCtx capture.RequestContext) (ledger.Event, error) {
	payload := ledger.DocumentExpired{ExpiredAt: requestcontext.Now(ctx).Format("2006-01-02T15:04:05.999999Z07:00")}
	return s.terminate(ctx, documentID, ledger.KindDocumentExpired, payload, StatusExpired, actor, reqCtx)
}

func (s *Service) terminate(ctx context.Context, documentID id.DocumentID, kind ledger.Kind, payload ledger.Payload, status Status, actor ledger.Actor, reqCtx capture.RequestContext) (ledger.Event, error) {
	doc, err := s.get(ctx, documentID)
	if err != nil {
		return ledger.Event{}, err
	}
	if doc.Status.Terminal() {
		return ledger.Event{}, dErrors.Newf(dErrors.CodePrecondition, "document %s is already %s", documentID, doc.Status)
	}
	event, err := s.ledger.Append(ctx, documentID, kind, actor, reqCtx, payload)
	if err != nil {
		return ledger.Event{}, err
	}
	doc.Status = status
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return ledger.Event{}, dErrors.Wrap(dErrors.CodeUnavailable, "update document status", err)
	}
	return event, nil
}

// Finalize records the digest of the fully assembled signed artifact.
// Computed once; a later call with different bytes is an integrity fault,
// not an update.
func (s *Service) Finalize(ctx context.Context, documentID id.DocumentID, artifact io.Reader) (string, error) {
	doc, err := s.get(ctx, documentID)
	if err != nil {
		return "", err
	}
	if doc.Status != StatusCompleted {
		return "", dErrors.Newf(dErrors.CodePrecondition, "document %s is %s, not completed", documentID, doc.Status)
	}

	artifactDigest, err := Finalize(artifact)
	if err != nil {
		return "", err
	}
	if doc.ArtifactDigest != "" {
		if doc.ArtifactDigest != artifactDigest {
			return "", dErrors.Newf(dErrors.CodeIntegrity,
				"artifact digest mismatch for document %s: stored %s, computed %s",
				documentID, doc.ArtifactDigest, artifactDigest)
		}
		return artifactDigest, nil
	}

	doc.ArtifactDigest = artifactDigest
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return "", dErrors.Wrap(dErrors.CodeUnavailable, "record artifact digest", err)
	}
	return artifactDigest, nil
}

// CheckLineage verifies the document's current digest is derivable from the
// original digest and the recorded signature sequence. An underivable
// digest flags the document inconsistent; the flag is reported, never
// silently repaired.
func (s *Service) CheckLineage(ctx context.Context, documentID id.DocumentID) (LineageResult, error) {
	doc, err := s.get(ctx, documentID)
	if err != nil {
		return LineageResult{}, err
	}
	events, err := s.ledger.List(ctx, documentID)
	if err != nil {
		return LineageResult{}, err
	}

	result, err := DeriveLineage(doc.OriginalDigest, doc.CurrentDigest, events)
	if err != nil {
		return LineageResult{}, err
	}
	if !result.Consistent && !doc.Inconsistent {
		doc.Inconsistent = true
		if err := s.store.UpdateDocument(ctx, doc); err != nil {
			return result, dErrors.Wrap(dErrors.CodeUnavailable, "flag document inconsistent", err)
		}
		s.logger.ErrorContext(ctx, "document lineage mismatch",
			"document_id", documentID.String(),
			"derived_digest", result.DerivedDigest,
			"stored_digest", result.StoredDigest,
		)
	}
	return result, nil
}

// Get returns the document and its ordered signer list.
func (s *Service) Get(ctx context.Context, documentID id.DocumentID) (Document, []Signer, error) {
	doc, err := s.get(ctx, documentID)
	if err != nil {
		return Document{}, nil, err
	}
	signers, err := s.store.ListSigners(ctx, documentID)
	if err != nil {
		return Document{}, nil, dErrors.Wrap(dErrors.CodeUnavailable, "list signers", err)
	}
	return doc, signers, nil
}

func (s *Service) get(ctx context.Context, documentID id.DocumentID) (Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Document{}, dErrors.Newf(dErrors.CodeNotFound, "document %s not found", documentID)
		}
		return Document{}, dErrors.Wrap(dErrors.CodeUnavailable, "load document", err)
	}
	return doc, nil
}

func (s *Service) getSigner(ctx context.Context, documentID id.DocumentID, email string) (Signer, error) {
	signer, err := s.store.GetSigner(ctx, documentID, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Signer{}, dErrors.Newf(dErrors.CodeNotFound, "signer %s not found on document %s", email, documentID)
		}
		return Signer{}, dErrors.Wrap(dErrors.CodeUnavailable, "load signer", err)
	}
	return signer, nil
}
