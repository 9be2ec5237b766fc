// Package consent holds the ESIGN disclosure text shown to signers and the
// helpers that turn ledger consent events into reviewable records. The
// authoritative consent facts live in the audit ledger; this package only
// interprets them.
package consent

import (
	"time"

	"sealedrecord/internal/digest"
	"sealedrecord/internal/ledger"
	dErrors "sealedrecord/pkg/domain-errors"
)

// DisclosureVersion identifies the disclosure text a signer agreed to.
// Bump it whenever Disclosure changes.
const DisclosureVersion = "2025-03"

// Disclosure is the electronic records and signatures disclosure presented
// before any signing action. Signers must agree to it in full.
const Disclosure = `Electronic Records and Signatures Disclosure

By selecting "I agree", you consent to receive and sign records
electronically, you confirm that your hardware and software meet the system
requirements described below, and you acknowledge that you may request paper
copies of any signed record.

System requirements: a current web browser with JavaScript and cookies
enabled, and the ability to view and retain PDF documents.

You may withdraw this consent at any time before completing your signature.
Withdrawal does not affect records you have already signed.`

// StaleAfter is how long a consent may predate the signature before it is
// reported as stale. Stale consent is surfaced on the record, not rejected:
// the ledger only requires that consent precede the signature.
const StaleAfter = 24 * time.Hour

// DisclosureDigest returns the digest of the current disclosure text, for
// embedding in consent.given payloads.
func DisclosureDigest() string {
	return digest.Bytes([]byte(Disclosure))
}

// NewPayload builds a consent.given payload for the current disclosure with
// all three agreements affirmed.
func NewPayload(signerEmail string) ledger.ConsentGiven {
	agreed := true
	return ledger.ConsentGiven{
		SignerEmail:           signerEmail,
		DisclosureVersion:     DisclosureVersion,
		DisclosureDigest:      DisclosureDigest(),
		AgreedToESignature:    &agreed,
		AgreedToSystemReqs:    &agreed,
		AgreedToPaperCopyInfo: &agreed,
	}
}

// Record is the reviewable view of one signer's consent trail for a
// document, assembled from the ledger.
type Record struct {
	SignerEmail       string
	DisclosureVersion string
	DisclosureDigest  string
	GivenAt           time.Time
	Withdrawn         bool
	WithdrawnAt       time.Time
	// Stale means the consent predates the signature by more than
	// StaleAfter. Informational only.
	Stale    bool
	SignedAt time.Time
}

// RecordFor extracts the consent record for one signer from the document's
// event history. Returns CodeNotFound when the signer never consented.
func RecordFor(events []ledger.Event, signerEmail string) (Record, error) {
	var rec Record
	found := false
	for _, event := range events {
		switch p := event.Payload.(type) {
		case ledger.ConsentGiven:
			if p.SignerEmail != signerEmail {
				continue
			}
			rec = Record{
				SignerEmail:       p.SignerEmail,
				DisclosureVersion: p.DisclosureVersion,
				DisclosureDigest:  p.DisclosureDigest,
				GivenAt:           event.Timestamp,
			}
			found = true
		case ledger.ConsentWithdrawn:
			if !found || p.SignerEmail != signerEmail {
				continue
			}
			rec.Withdrawn = true
			rec.WithdrawnAt = event.Timestamp
		case ledger.SignatureCompleted:
			if !found || p.SignerEmail != signerEmail {
				continue
			}
			rec.SignedAt = event.Timestamp
			rec.Stale = event.Timestamp.Sub(rec.GivenAt) > StaleAfter
		}
	}
	if !found {
		return Record{}, dErrors.Newf(dErrors.CodeNotFound, "no consent recorded for %s", signerEmail)
	}
	return rec, nil
}

// Records returns the consent record for every signer who consented, in
// first-consent order.
func Records(events []ledger.Event) []Record {
	var order []string
	seen := map[string]bool{}
	for _, event := range events {
		if p, ok := event.Payload.(ledger.ConsentGiven); ok && !seen[p.SignerEmail] {
			seen[p.SignerEmail] = true
			order = append(order, p.SignerEmail)
		}
	}
	records := make([]Record, 0, len(order))
	for _, email := range order {
		rec, err := RecordFor(events, email)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}
