package document

import (
	"context"

	id "sealedrecord/pkg/domain"
)

// Store persists the document and signer projections. The ledger remains
// the source of truth; these rows exist for fast reads and for the
// certificate snapshot.
type Store interface {
	CreateDocument(ctx context.Context, doc Document) error
	// GetDocument returns sentinel.ErrNotFound for unknown ids.
	GetDocument(ctx context.Context, documentID id.DocumentID) (Document, error)
	UpdateDocument(ctx context.Context, doc Document) error

	AddSigners(ctx context.Context, signers []Signer) error
	// ListSigners returns signers ordered by signing position.
	ListSigners(ctx context.Context, documentID id.DocumentID) ([]Signer, error)
	// GetSigner returns sentinel.ErrNotFound when the email is not on the
	// document's roster.
	GetSigner(ctx context.Context, documentID id.DocumentID, email string) (Signer, error)
	UpdateSigner(ctx context.Context, signer Signer) error
}
