package certificate

import (
	"context"

	id "sealedrecord/pkg/domain"
)

// Store persists certificates. One certificate per document: Create must
// fail with sentinel.ErrConflict on a second insert for the same document.
type Store interface {
	Create(ctx context.Context, cert Certificate) error
	Get(ctx context.Context, certificateID id.CertificateID) (Certificate, error)
	GetByDocument(ctx context.Context, documentID id.DocumentID) (Certificate, error)
	// IncrementVerifications bumps the counter and returns the new value.
	// The snapshot and hash are never touched.
	IncrementVerifications(ctx context.Context, certificateID id.CertificateID) (int, error)
}
