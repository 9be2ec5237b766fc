package ledger

import (
	"bytes"
	"encoding/json"

	"sealedrecord/internal/digest"
	dErrors "sealedrecord/pkg/domain-errors"
)

// Payload is the kind-specific body of an event. The set of implementations
// is closed over the Kind enum; DecodePayload is the only way external input
// becomes a Payload, so every variant is validated before it can reach the
// chain.
type Payload interface {
	PayloadKind() Kind
	Validate() error
}

// DocumentCreated records the upload of an envelope. OriginalDigest is the
// digest of the uploaded bytes, computed once and immutable afterwards.
type DocumentCreated struct {
	Title          string `json:"title"`
	OriginalDigest string `json:"original_digest"`
}

func (DocumentCreated) PayloadKind() Kind { return KindDocumentCreated }

func (p DocumentCreated) Validate() error {
	if p.Title == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "document title is required")
	}
	if !digest.Valid(p.OriginalDigest) {
		return dErrors.New(dErrors.CodeInvalidInput, "original_digest must be a 64-char uppercase hex digest")
	}
	return nil
}

// SignerRole is a party's role on the envelope.
type SignerRole string

const (
	RoleSigner   SignerRole = "signer"
	RoleApprover SignerRole = "approver"
	RoleWitness  SignerRole = "witness"
	RoleCC       SignerRole = "cc"
)

// Required reports whether the role must sign before completion.
func (r SignerRole) Required() bool {
	switch r {
	case RoleSigner, RoleApprover, RoleWitness:
		return true
	}
	return false
}

func (r SignerRole) IsValid() bool {
	switch r {
	case RoleSigner, RoleApprover, RoleWitness, RoleCC:
		return true
	}
	return false
}

// SignerRef announces one party in a document.sent roster.
type SignerRef struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     SignerRole `json:"role"`
	Position int        `json:"position"`
}

// DocumentSent records the roster at the moment the envelope went out. The
// roster is the source of truth for the completion precondition: every
// required role listed here must produce a signature.completed event before
// document.completed is accepted.
type DocumentSent struct {
	Signers []SignerRef `json:"signers"`
}

func (DocumentSent) PayloadKind() Kind { return KindDocumentSent }

func (p DocumentSent) Validate() error {
	if len(p.Signers) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one signer is required")
	}
	seen := make(map[string]bool, len(p.Signers))
	for _, s := range p.Signers {
		if s.Email == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "signer email is required")
		}
		if !s.Role.IsValid() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "invalid signer role %q", s.Role)
		}
		if s.Position < 1 {
			return dErrors.New(dErrors.CodeInvalidInput, "signer position must be >= 1")
		}
		if seen[s.Email] {
			return dErrors.Newf(dErrors.CodeInvalidInput, "duplicate signer %s", s.Email)
		}
		seen[s.Email] = true
	}
	return nil
}

// DocumentViewed records a signer opening the envelope.
type DocumentViewed struct {
	SignerEmail string `json:"signer_email"`
}

func (DocumentViewed) PayloadKind() Kind { return KindDocumentViewed }

func (p DocumentViewed) Validate() error {
	if p.SignerEmail == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "signer_email is required")
	}
	return nil
}

// ConsentGiven proves a signer affirmatively accepted the electronic
// signature disclosure before signing. All acknowledgement flags must be true
// or the event is rejected; absence of a flag is a rejection, not a default.
type ConsentGiven struct {
	SignerEmail       string `json:"signer_email"`
	DisclosureVersion string `json:"disclosure_version"`
	// DisclosureDigest fingerprints the exact disclosure text shown.
	DisclosureDigest      string `json:"disclosure_digest"`
	AgreedToESignature    *bool  `json:"agreed_to_esignature"`
	AgreedToSystemReqs    *bool  `json:"agreed_to_system_requirements"`
	AgreedToPaperCopyInfo *bool  `json:"agreed_to_paper_copy"`
}

func (ConsentGiven) PayloadKind() Kind { return KindConsentGiven }

func (p ConsentGiven) Validate() error {
	if p.SignerEmail == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "signer_email is required")
	}
	if p.DisclosureVersion == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "disclosure_version is required")
	}
	if !digest.Valid(p.DisclosureDigest) {
		return dErrors.New(dErrors.CodeInvalidInput, "disclosure_digest must be a 64-char uppercase hex digest")
	}
	for _, clause := range []struct {
		name string
		flag *bool
	}{
		{"agreed_to_esignature", p.AgreedToESignature},
		{"agreed_to_system_requirements", p.AgreedToSystemReqs},
		{"agreed_to_paper_copy", p.AgreedToPaperCopyInfo},
	} {
		if clause.flag == nil {
			return dErrors.Newf(dErrors.CodeInvalidInput, "consent clause %s is missing", clause.name)
		}
		if !*clause.flag {
			return dErrors.Newf(dErrors.CodeInvalidInput, "consent clause %s was not accepted", clause.name)
		}
	}
	return nil
}

// ConsentWithdrawn marks a signer's withdrawal. The original consent.given
// entry is never deleted; documents completed before the withdrawal position
// are unaffected.
type ConsentWithdrawn struct {
	SignerEmail string `json:"signer_email"`
	Reason      string `json:"reason,omitempty"`
}

func (ConsentWithdrawn) PayloadKind() Kind { return KindConsentWithdrawn }

func (p ConsentWithdrawn) Validate() error {
	if p.SignerEmail == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "signer_email is required")
	}
	return nil
}

// SignatureCompleted records a signature being applied. DocumentDigest is
// the document hash chain state after this signature was folded in.
type SignatureCompleted struct {
	SignerEmail    string `json:"signer_email"`
	Position       int    `json:"position"`
	DocumentDigest string `json:"document_digest"`
}

func (SignatureCompleted) PayloadKind() Kind { return KindSignatureCompleted }

func (p SignatureCompleted) Validate() error {
	if p.SignerEmail == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "signer_email is required")
	}
	if p.Position < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "position must be >= 1")
	}
	if p.DocumentDigest != "" && !digest.Valid(p.DocumentDigest) {
		return dErrors.New(dErrors.CodeInvalidInput, "document_digest must be a 64-char uppercase hex digest")
	}
	return nil
}

// SignerDeclined records a signer refusing to sign. Terminal for the signer.
type SignerDeclined struct {
	SignerEmail string `json:"signer_email"`
	Reason      string `json:"reason,omitempty"`
}

func (SignerDeclined) PayloadKind() Kind { return KindSignerDeclined }

func (p SignerDeclined) Validate() error {
	if p.SignerEmail == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "signer_email is required")
	}
	return nil
}

// DocumentCompleted freezes the envelope. FinalDigest is the digest of the
// fully assembled signed artifact.
type DocumentCompleted struct {
	FinalDigest string `json:"final_digest"`
}

func (DocumentCompleted) PayloadKind() Kind { return KindDocumentCompleted }

func (p DocumentCompleted) Validate() error {
	if !digest.Valid(p.FinalDigest) {
		return dErrors.New(dErrors.CodeInvalidInput, "final_digest must be a 64-char uppercase hex digest")
	}
	return nil
}

// DocumentVoided terminates the envelope without completion.
type DocumentVoided struct {
	Reason string `json:"reason"`
}

func (DocumentVoided) PayloadKind() Kind { return KindDocumentVoided }

func (p DocumentVoided) Validate() error {
	if p.Reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "void reason is required")
	}
	return nil
}

// DocumentExpired terminates an envelope whose signing window lapsed.
type DocumentExpired struct {
	ExpiredAt string `json:"expired_at"`
}

func (DocumentExpired) PayloadKind() Kind { return KindDocumentExpired }

func (DocumentExpired) Validate() error { return nil }

// CertificateGenerated records issuance of the certificate of completion.
type CertificateGenerated struct {
	CertificateID   string `json:"certificate_id"`
	CertificateHash string `json:"certificate_hash"`
}

func (CertificateGenerated) PayloadKind() Kind { return KindCertificateGenerated }

func (p CertificateGenerated) Validate() error {
	if p.CertificateID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "certificate_id is required")
	}
	if !digest.Valid(p.CertificateHash) {
		return dErrors.New(dErrors.CodeInvalidInput, "certificate_hash must be a 64-char uppercase hex digest")
	}
	return nil
}

// DeliveryRecorded notes that the notification collaborator delivered the
// envelope to a recipient. The core records the fact; it does not deliver.
type DeliveryRecorded struct {
	RecipientEmail string `json:"recipient_email"`
	Channel        string `json:"channel"`
}

func (DeliveryRecorded) PayloadKind() Kind { return KindDeliveryRecorded }

func (p DeliveryRecorded) Validate() error {
	if p.RecipientEmail == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "recipient_email is required")
	}
	if p.Channel == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "channel is required")
	}
	return nil
}

// DecodePayload parses raw JSON into the payload variant for kind and
// validates it. Unknown kinds never reach this switch because ParseKind
// gates them, but the default arm keeps the compiler honest when the enum
// grows.
func DecodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindDocumentCreated:
		p, err = decodeInto[DocumentCreated](raw)
	case KindDocumentSent:
		p, err = decodeInto[DocumentSent](raw)
	case KindDocumentViewed:
		p, err = decodeInto[DocumentViewed](raw)
	case KindConsentGiven:
		p, err = decodeInto[ConsentGiven](raw)
	case KindConsentWithdrawn:
		p, err = decodeInto[ConsentWithdrawn](raw)
	case KindSignatureCompleted:
		p, err = decodeInto[SignatureCompleted](raw)
	case KindSignerDeclined:
		p, err = decodeInto[SignerDeclined](raw)
	case KindDocumentCompleted:
		p, err = decodeInto[DocumentCompleted](raw)
	case KindDocumentVoided:
		p, err = decodeInto[DocumentVoided](raw)
	case KindDocumentExpired:
		p, err = decodeInto[DocumentExpired](raw)
	case KindCertificateGenerated:
		p, err = decodeInto[CertificateGenerated](raw)
	case KindDeliveryRecorded:
		p, err = decodeInto[DeliveryRecorded](raw)
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown event kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeInto[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInvalidInput, "malformed event payload", err)
	}
	return v, nil
}
