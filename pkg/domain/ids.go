// Package domain holds typed identifiers shared across services.
//
// IDs are distinct types over uuid.UUID so a SignerID can never be passed
// where a DocumentID is expected. Construct via the Parse functions at trust
// boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "sealedrecord/pkg/domain-errors"
)

// DocumentID identifies an envelope under signature.
type DocumentID uuid.UUID

// SignerID identifies a party bound to a document.
type SignerID uuid.UUID

// EventID identifies a single audit ledger entry.
type EventID uuid.UUID

// CertificateID identifies a certificate of completion.
type CertificateID uuid.UUID

// NewDocumentID generates a fresh document identifier.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewSignerID generates a fresh signer identifier.
func NewSignerID() SignerID { return SignerID(uuid.New()) }

// NewEventID generates a fresh event identifier.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewCertificateID generates a fresh certificate identifier.
func NewCertificateID() CertificateID { return CertificateID(uuid.New()) }

func parseID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}

// ParseDocumentID constructs a DocumentID from external input.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseID(s, "document")
	return DocumentID(u), err
}

// ParseSignerID constructs a SignerID from external input.
func ParseSignerID(s string) (SignerID, error) {
	u, err := parseID(s, "signer")
	return SignerID(u), err
}

// ParseEventID constructs an EventID from external input.
func ParseEventID(s string) (EventID, error) {
	u, err := parseID(s, "event")
	return EventID(u), err
}

// ParseCertificateID constructs a CertificateID from external input.
func ParseCertificateID(s string) (CertificateID, error) {
	u, err := parseID(s, "certificate")
	return CertificateID(u), err
}

func (id DocumentID) String() string    { return uuid.UUID(id).String() }
func (id SignerID) String() string      { return uuid.UUID(id).String() }
func (id EventID) String() string       { return uuid.UUID(id).String() }
func (id CertificateID) String() string { return uuid.UUID(id).String() }

func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SignerID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
