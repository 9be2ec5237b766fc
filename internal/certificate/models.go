package certificate

import (
	"encoding/json"
	"time"

	"sealedrecord/internal/document"
	"sealedrecord/internal/ledger"
	id "sealedrecord/pkg/domain"
)

// Certificate is the certificate of completion: an immutable snapshot of the
// document, its signers, and the full event trail at build time, sealed by
// Hash. The snapshot never changes after issuance; only VerificationCount
// moves.
type Certificate struct {
	ID                id.CertificateID
	DocumentID        id.DocumentID
	Hash              string
	Snapshot          json.RawMessage
	GeneratedAt       time.Time
	VerificationCount int
}

// Snapshot is the hashed body of a certificate. Hash is computed over the
// canonical JSON of this structure, so it must never contain the hash
// itself.
type Snapshot struct {
	Document    DocumentBlock `json:"document"`
	Signers     []SignerBlock `json:"signers"`
	Events      []EventBlock  `json:"events"`
	GeneratedAt string        `json:"generated_at"`
}

type DocumentBlock struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	OriginalDigest string `json:"original_digest"`
	FinalDigest    string `json:"final_digest"`
	ArtifactDigest string `json:"artifact_digest,omitempty"`
	CompletedAt    string `json:"completed_at"`
}

type SignerBlock struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Position  int    `json:"position"`
	Status    string `json:"status"`
	ConsentAt string `json:"consent_at,omitempty"`
	SignedAt  string `json:"signed_at,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type EventBlock struct {
	Sequence    int64  `json:"sequence"`
	Kind        string `json:"kind"`
	ActorType   string `json:"actor_type"`
	ActorID     string `json:"actor_id"`
	Timestamp   string `json:"timestamp"`
	CurrentHash string `json:"current_hash"`
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// BuildSnapshot assembles the hashable snapshot from the gathered state.
// Signers are assumed ordered by position and events by sequence; the
// snapshot preserves both orders verbatim.
func BuildSnapshot(doc document.Document, signers []document.Signer, events []ledger.Event, generatedAt time.Time) Snapshot {
	snap := Snapshot{
		Document: DocumentBlock{
			ID:             doc.ID.String(),
			Title:          doc.Title,
			OriginalDigest: doc.OriginalDigest,
			FinalDigest:    doc.FinalDigest,
			ArtifactDigest: doc.ArtifactDigest,
			CompletedAt:    formatTime(doc.CompletedAt),
		},
		GeneratedAt: formatTime(generatedAt),
	}
	for _, signer := range signers {
		snap.Signers = append(snap.Signers, SignerBlock{
			Name:      signer.Name,
			Email:     signer.Email,
			Role:      string(signer.Role),
			Position:  signer.Position,
			Status:    string(signer.Status),
			ConsentAt: formatTime(signer.ConsentAt),
			SignedAt:  formatTime(signer.SignedAt),
			IPAddress: signer.SignedContext.IPAddress,
			UserAgent: signer.SignedContext.UserAgent,
		})
	}
	for _, event := range events {
		snap.Events = append(snap.Events, EventBlock{
			Sequence:    event.Sequence,
			Kind:        string(event.Kind),
			ActorType:   string(event.Actor.Type),
			ActorID:     event.Actor.ID,
			Timestamp:   formatTime(event.Timestamp),
			CurrentHash: event.CurrentHash,
		})
	}
	return snap
}
