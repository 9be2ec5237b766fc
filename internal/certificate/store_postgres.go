package certificate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "sealedrecord/pkg/domain"
	"sealedrecord/pkg/platform/sentinel"
)

// Schema is the DDL for certificates. The unique document_id constraint is
// what makes Build idempotent across processes.
const Schema = `
CREATE TABLE IF NOT EXISTS certificates (
	id                  UUID PRIMARY KEY,
	document_id         UUID NOT NULL UNIQUE,
	hash                CHAR(64) NOT NULL,
	snapshot            JSONB NOT NULL,
	generated_at        TIMESTAMPTZ NOT NULL,
	verification_count  INT NOT NULL DEFAULT 0
);
`

// PostgresStore persists certificates in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure certificate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, cert Certificate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO certificates (id, document_id, hash, snapshot, generated_at, verification_count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.UUID(cert.ID), uuid.UUID(cert.DocumentID), cert.Hash,
		[]byte(cert.Snapshot), cert.GeneratedAt, cert.VerificationCount,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

const certificateColumns = `id, document_id, hash, snapshot, generated_at, verification_count`

func (s *PostgresStore) Get(ctx context.Context, certificateID id.CertificateID) (Certificate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+certificateColumns+` FROM certificates WHERE id = $1
	`, uuid.UUID(certificateID))
	return scanCertificate(row)
}

func (s *PostgresStore) GetByDocument(ctx context.Context, documentID id.DocumentID) (Certificate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+certificateColumns+` FROM certificates WHERE document_id = $1
	`, uuid.UUID(documentID))
	return scanCertificate(row)
}

func (s *PostgresStore) IncrementVerifications(ctx context.Context, certificateID id.CertificateID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE certificates
		SET verification_count = verification_count + 1
		WHERE id = $1
		RETURNING verification_count
	`, uuid.UUID(certificateID)).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("increment verification count: %w", err)
	}
	return count, nil
}

func scanCertificate(row *sql.Row) (Certificate, error) {
	var (
		cert     Certificate
		certID   uuid.UUID
		docID    uuid.UUID
		snapshot []byte
	)
	err := row.Scan(&certID, &docID, &cert.Hash, &snapshot, &cert.GeneratedAt, &cert.VerificationCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Certificate{}, sentinel.ErrNotFound
		}
		return Certificate{}, fmt.Errorf("scan certificate: %w", err)
	}
	cert.ID = id.CertificateID(certID)
	cert.DocumentID = id.DocumentID(docID)
	cert.Snapshot = snapshot
	cert.GeneratedAt = cert.GeneratedAt.UTC()
	return cert, nil
}
