package document

import (
	"io"

	"sealedrecord/internal/digest"
	"sealedrecord/internal/ledger"
)

// Advance folds one accepted signature into the document lineage digest.
// The input is the ledger's own CurrentHash for that signature event, so the
// document chain and the audit chain are cryptographically linked rather
// than independent.
func Advance(currentDigest, signatureEventHash string) (string, error) {
	return digest.Chain(currentDigest, map[string]string{
		"signature_event_hash": signatureEventHash,
	})
}

// Finalize digests the fully assembled signed artifact. Streaming, constant
// memory; called once per document.
func Finalize(r io.Reader) (string, error) {
	return digest.Stream(r)
}

// LineageResult reports whether a document's current digest is derivable by
// replaying its signature sequence from the original digest.
type LineageResult struct {
	Consistent    bool   `json:"consistent"`
	DerivedDigest string `json:"derived_digest"`
	StoredDigest  string `json:"stored_digest"`
	Signatures    int    `json:"signatures"`
}

// DeriveLineage replays Advance over the signature events of a ledger and
// compares the result with the stored current digest. A mismatch is a
// detectable, reportable condition; callers flag the document inconsistent
// and never patch digests to match.
func DeriveLineage(originalDigest, storedCurrent string, events []ledger.Event) (LineageResult, error) {
	derived := originalDigest
	var signatures int
	for i := range events {
		if events[i].Kind != ledger.KindSignatureCompleted {
			continue
		}
		next, err := Advance(derived, events[i].CurrentHash)
		if err != nil {
			return LineageResult{}, err
		}
		derived = next
		signatures++
	}
	return LineageResult{
		Consistent:    derived == storedCurrent,
		DerivedDigest: derived,
		StoredDigest:  storedCurrent,
		Signatures:    signatures,
	}, nil
}
