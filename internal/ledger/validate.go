package ledger

import (
	"time"

	dErrors "sealedrecord/pkg/domain-errors"
)

// validatePreconditions enforces event-kind-specific business rules against
// the document's history before anything is hashed or persisted. A violation
// means nothing is appended: no partial state.
//
// The ledger is self-contained: the roster announced by document.sent is the
// source of truth for who must consent and sign, and the history itself
// answers ordering questions (consent before signature, completion before
// certificate).
func validatePreconditions(history []Event, kind Kind, payload Payload, at time.Time) error {
	if kind == KindDocumentCreated {
		if len(history) > 0 {
			return dErrors.New(dErrors.CodePrecondition, "document already created")
		}
		return nil
	}
	if len(history) == 0 {
		return dErrors.Newf(dErrors.CodePrecondition, "document has no ledger; %s requires document.created first", kind)
	}

	if terminalAt(history) && kind != KindCertificateGenerated {
		return dErrors.Newf(dErrors.CodePrecondition, "document is closed; %s not accepted", kind)
	}

	switch kind {
	case KindDocumentSent:
		if rosterOf(history) != nil {
			return dErrors.New(dErrors.CodePrecondition, "document already sent")
		}

	case KindDocumentViewed:
		p := payload.(DocumentViewed)
		return requireOnRoster(history, p.SignerEmail)

	case KindConsentGiven:
		p := payload.(ConsentGiven)
		if err := requireOnRoster(history, p.SignerEmail); err != nil {
			return err
		}
		if declinedAt(history, p.SignerEmail) {
			return dErrors.Newf(dErrors.CodePrecondition, "signer %s has declined", p.SignerEmail)
		}

	case KindConsentWithdrawn:
		p := payload.(ConsentWithdrawn)
		if consentEventFor(history, p.SignerEmail) == nil {
			return dErrors.Newf(dErrors.CodePrecondition, "no consent on record for %s", p.SignerEmail)
		}

	case KindSignatureCompleted:
		p := payload.(SignatureCompleted)
		if err := requireOnRoster(history, p.SignerEmail); err != nil {
			return err
		}
		if signedAt(history, p.SignerEmail) {
			return dErrors.Newf(dErrors.CodePrecondition, "signer %s already signed", p.SignerEmail)
		}
		if declinedAt(history, p.SignerEmail) {
			return dErrors.Newf(dErrors.CodePrecondition, "signer %s has declined", p.SignerEmail)
		}
		consent := consentEventFor(history, p.SignerEmail)
		if consent == nil {
			return dErrors.Newf(dErrors.CodePrecondition,
				"signature requires prior consent from %s", p.SignerEmail)
		}
		if !consent.Timestamp.Before(at) {
			return dErrors.Newf(dErrors.CodePrecondition,
				"consent timestamp for %s does not precede signature", p.SignerEmail)
		}

	case KindSignerDeclined:
		p := payload.(SignerDeclined)
		if err := requireOnRoster(history, p.SignerEmail); err != nil {
			return err
		}
		if signedAt(history, p.SignerEmail) {
			return dErrors.Newf(dErrors.CodePrecondition, "signer %s already signed", p.SignerEmail)
		}

	case KindDocumentCompleted:
		roster := rosterOf(history)
		if roster == nil {
			return dErrors.New(dErrors.CodePrecondition, "document was never sent")
		}
		for _, signer := range roster.Signers {
			if signer.Role.Required() && !signedAt(history, signer.Email) {
				return dErrors.Newf(dErrors.CodePrecondition,
					"required signer %s has not signed", signer.Email)
			}
		}

	case KindCertificateGenerated:
		if !completedAt(history) {
			return dErrors.New(dErrors.CodePrecondition, "certificate requires a completed document")
		}

	case KindDeliveryRecorded:
		// Delivery may be recorded at any open point of the lifecycle.
	}
	return nil
}

// rosterOf returns the signer roster announced by document.sent, or nil.
func rosterOf(history []Event) *DocumentSent {
	for i := range history {
		if p, ok := history[i].Payload.(DocumentSent); ok {
			return &p
		}
	}
	return nil
}

func requireOnRoster(history []Event, email string) error {
	roster := rosterOf(history)
	if roster == nil {
		return dErrors.New(dErrors.CodePrecondition, "document was never sent")
	}
	for _, s := range roster.Signers {
		if s.Email == email {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodePrecondition, "%s is not a signer on this document", email)
}

// consentEventFor returns the signer's consent.given event, unless a later
// consent.withdrawn event revoked it.
func consentEventFor(history []Event, email string) *Event {
	var consent *Event
	for i := range history {
		switch p := history[i].Payload.(type) {
		case ConsentGiven:
			if p.SignerEmail == email {
				consent = &history[i]
			}
		case ConsentWithdrawn:
			if p.SignerEmail == email {
				consent = nil
			}
		}
	}
	return consent
}

func signedAt(history []Event, email string) bool {
	for i := range history {
		if p, ok := history[i].Payload.(SignatureCompleted); ok && p.SignerEmail == email {
			return true
		}
	}
	return false
}

// declinedAt reports whether the signer declined or withdrew consent.
func declinedAt(history []Event, email string) bool {
	for i := range history {
		switch p := history[i].Payload.(type) {
		case SignerDeclined:
			if p.SignerEmail == email {
				return true
			}
		case ConsentWithdrawn:
			if p.SignerEmail == email {
				return true
			}
		}
	}
	return false
}

func completedAt(history []Event) bool {
	for i := range history {
		if history[i].Kind == KindDocumentCompleted {
			return true
		}
	}
	return false
}

func terminalAt(history []Event) bool {
	for i := range history {
		if history[i].Kind.Terminal() {
			return true
		}
	}
	return false
}
