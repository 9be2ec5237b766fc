// Package document tracks envelopes and their signers, and maintains the
// document hash chain that links every signature back to the original
// upload.
package document

import (
	"time"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/ledger"
	id "sealedrecord/pkg/domain"
)

// Status is the document lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusCompleted Status = "completed"
	StatusVoided    Status = "voided"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further lifecycle transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusVoided, StatusExpired:
		return true
	}
	return false
}

// Document is an envelope under signature.
//
// OriginalDigest is computed once at upload and never changes.
// CurrentDigest is the lineage digest: it starts equal to OriginalDigest and
// advances once per accepted signature, folding in the ledger event hash of
// that signature. FinalDigest is set exactly once, at completion, and equals
// the last CurrentDigest. ArtifactDigest fingerprints the fully assembled
// signed artifact supplied by the storage collaborator; it is recorded once
// by Finalize.
type Document struct {
	ID             id.DocumentID
	Title          string
	Status         Status
	OriginalDigest string
	CurrentDigest  string
	FinalDigest    string
	ArtifactDigest string
	// Inconsistent is set when a lineage check failed to derive
	// CurrentDigest from the recorded signature sequence. It is never
	// cleared automatically.
	Inconsistent bool
	CreatedAt    time.Time
	CompletedAt  time.Time
}

// SignerStatus is a signer's progress on the envelope.
type SignerStatus string

const (
	SignerPending  SignerStatus = "pending"
	SignerViewed   SignerStatus = "viewed"
	SignerSigned   SignerStatus = "signed"
	SignerDeclined SignerStatus = "declined"
)

// Signer is a party bound to a document. A signer whose status reached
// Signed is immutable; their consent and signature context stay frozen with
// the timestamps the ledger recorded.
type Signer struct {
	ID         id.SignerID
	DocumentID id.DocumentID
	Name       string
	Email      string
	Role       ledger.SignerRole
	Position   int
	Status     SignerStatus

	ConsentAt      time.Time
	ConsentContext capture.RequestContext
	SignedAt       time.Time
	SignedContext  capture.RequestContext
}

// Required reports whether the signer must sign before completion.
func (s Signer) Required() bool { return s.Role.Required() }
