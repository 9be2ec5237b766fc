// Package ledger implements the append-only, hash-chained audit trail kept
// per document. Every action taken against an envelope lands here as an
// immutable event; the chain makes retroactive edits detectable.
package ledger

import (
	"time"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/digest"
	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
)

// Kind is the closed set of audit event kinds. Unrecognized kinds are
// rejected at append time so canonicalization and certificate rendering stay
// exhaustive.
type Kind string

const (
	KindDocumentCreated      Kind = "document.created"
	KindDocumentSent         Kind = "document.sent"
	KindDocumentViewed       Kind = "document.viewed"
	KindConsentGiven         Kind = "consent.given"
	KindConsentWithdrawn     Kind = "consent.withdrawn"
	KindSignatureCompleted   Kind = "signature.completed"
	KindSignerDeclined       Kind = "signer.declined"
	KindDocumentCompleted    Kind = "document.completed"
	KindDocumentVoided       Kind = "document.voided"
	KindDocumentExpired      Kind = "document.expired"
	KindCertificateGenerated Kind = "certificate.generated"
	KindDeliveryRecorded     Kind = "delivery.recorded"
)

// validKinds is the single source of truth for the closed enum.
var validKinds = map[Kind]bool{
	KindDocumentCreated:      true,
	KindDocumentSent:         true,
	KindDocumentViewed:       true,
	KindConsentGiven:         true,
	KindConsentWithdrawn:     true,
	KindSignatureCompleted:   true,
	KindSignerDeclined:       true,
	KindDocumentCompleted:    true,
	KindDocumentVoided:       true,
	KindDocumentExpired:      true,
	KindCertificateGenerated: true,
	KindDeliveryRecorded:     true,
}

// IsValid reports whether k belongs to the closed enum.
func (k Kind) IsValid() bool { return validKinds[k] }

func (k Kind) String() string { return string(k) }

// ParseKind constructs a Kind from external input.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown event kind %q", s)
	}
	return k, nil
}

// Terminal reports whether the kind closes the document lifecycle.
func (k Kind) Terminal() bool {
	switch k {
	case KindDocumentCompleted, KindDocumentVoided, KindDocumentExpired:
		return true
	}
	return false
}

// ActorType classifies who caused an event.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSigner ActorType = "signer"
	ActorSystem ActorType = "system"
)

// IsValid reports whether a belongs to the closed actor set.
func (a ActorType) IsValid() bool {
	switch a {
	case ActorUser, ActorSigner, ActorSystem:
		return true
	}
	return false
}

// Actor identifies the party behind an event.
type Actor struct {
	Type ActorType `json:"type"`
	// ID is the actor's identity: a user id, a signer email, or "system".
	ID string `json:"id"`
}

// Event is one immutable ledger entry.
//
// CurrentHash = SHA-256(PreviousHash ‖ canonical(hashable fields)), and
// PreviousHash of event n equals CurrentHash of event n-1, or the genesis
// marker for the first event of a document.
//
// Context display fields are not hashed directly; ContextDigest (computed
// once at append) is. That lets retention enforcement anonymize the display
// fields without breaking the chain, while any edit to the recorded digest
// itself remains detectable.
type Event struct {
	ID            id.EventID
	DocumentID    id.DocumentID
	Sequence      int64
	Kind          Kind
	Actor         Actor
	Context       capture.RequestContext
	ContextDigest string
	Payload       Payload
	Timestamp     time.Time
	PreviousHash  string
	CurrentHash   string
}

// hashable is the canonical projection of an event that feeds the chain.
// CurrentHash is excluded by construction; Context appears only through its
// digest.
type hashable struct {
	DocumentID    string    `json:"document_id"`
	Sequence      int64     `json:"sequence"`
	Kind          Kind      `json:"kind"`
	ActorType     ActorType `json:"actor_type"`
	ActorID       string    `json:"actor_id"`
	ContextDigest string    `json:"context_digest"`
	Payload       Payload   `json:"payload"`
	Timestamp     string    `json:"timestamp"`
}

// ComputeHash derives the event's CurrentHash from its other fields.
func (e Event) ComputeHash() (string, error) {
	h := hashable{
		DocumentID:    e.DocumentID.String(),
		Sequence:      e.Sequence,
		Kind:          e.Kind,
		ActorType:     e.Actor.Type,
		ActorID:       e.Actor.ID,
		ContextDigest: e.ContextDigest,
		Payload:       e.Payload,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	return digest.Chain(e.PreviousHash, h)
}

// ContextDigestFor computes the digest recorded alongside a requester
// context at append time.
func ContextDigestFor(c capture.RequestContext) (string, error) {
	return digest.Canonical(c)
}
