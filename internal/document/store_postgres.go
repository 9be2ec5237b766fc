package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/ledger"
	id "sealedrecord/pkg/domain"
	"sealedrecord/pkg/platform/sentinel"
)

// Schema is the DDL for the document and signer projections.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id               UUID PRIMARY KEY,
	title            TEXT NOT NULL,
	status           TEXT NOT NULL,
	original_digest  CHAR(64) NOT NULL,
	current_digest   CHAR(64) NOT NULL,
	final_digest     CHAR(64),
	artifact_digest  CHAR(64),
	inconsistent     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS signers (
	id               UUID PRIMARY KEY,
	document_id      UUID NOT NULL REFERENCES documents (id),
	name             TEXT NOT NULL,
	email            TEXT NOT NULL,
	role             TEXT NOT NULL,
	position         INT NOT NULL,
	status           TEXT NOT NULL,
	consent_at       TIMESTAMPTZ,
	consent_context  JSONB,
	signed_at        TIMESTAMPTZ,
	signed_context   JSONB,
	UNIQUE (document_id, email)
);

CREATE INDEX IF NOT EXISTS idx_signers_document
	ON signers (document_id, position);
`

// PostgresStore persists documents and signers in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure document schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, title, status, original_digest, current_digest,
			 final_digest, artifact_digest, inconsistent, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(doc.ID), doc.Title, string(doc.Status),
		doc.OriginalDigest, doc.CurrentDigest,
		nullString(doc.FinalDigest), nullString(doc.ArtifactDigest),
		doc.Inconsistent, doc.CreatedAt, nullTime(doc.CompletedAt),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID id.DocumentID) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, status, original_digest, current_digest,
		       final_digest, artifact_digest, inconsistent, created_at, completed_at
		FROM documents
		WHERE id = $1
	`, uuid.UUID(documentID))

	var (
		doc            Document
		docID          uuid.UUID
		status         string
		finalDigest    sql.NullString
		artifactDigest sql.NullString
		completedAt    sql.NullTime
	)
	err := row.Scan(&docID, &doc.Title, &status, &doc.OriginalDigest, &doc.CurrentDigest,
		&finalDigest, &artifactDigest, &doc.Inconsistent, &doc.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, sentinel.ErrNotFound
		}
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	doc.ID = id.DocumentID(docID)
	doc.Status = Status(status)
	doc.FinalDigest = finalDigest.String
	doc.ArtifactDigest = artifactDigest.String
	doc.CreatedAt = doc.CreatedAt.UTC()
	if completedAt.Valid {
		doc.CompletedAt = completedAt.Time.UTC()
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc Document) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET
			status = $2, current_digest = $3, final_digest = $4,
			artifact_digest = $5, inconsistent = $6, completed_at = $7
		WHERE id = $1
	`,
		uuid.UUID(doc.ID), string(doc.Status), doc.CurrentDigest,
		nullString(doc.FinalDigest), nullString(doc.ArtifactDigest),
		doc.Inconsistent, nullTime(doc.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) AddSigners(ctx context.Context, signers []Signer) error {
	if len(signers) == 0 {
		return nil
	}
	for _, signer := range signers {
		consentCtx, signedCtx, err := marshalContexts(signer)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO signers
				(id, document_id, name, email, role, position, status,
				 consent_at, consent_context, signed_at, signed_context)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			uuid.UUID(signer.ID), uuid.UUID(signer.DocumentID),
			signer.Name, signer.Email, string(signer.Role), signer.Position, string(signer.Status),
			nullTime(signer.ConsentAt), consentCtx, nullTime(signer.SignedAt), signedCtx,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert signer: %w", err)
		}
	}
	return nil
}

const signerColumns = `
	id, document_id, name, email, role, position, status,
	consent_at, consent_context, signed_at, signed_context`

func (s *PostgresStore) ListSigners(ctx context.Context, documentID id.DocumentID) ([]Signer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+signerColumns+`
		FROM signers
		WHERE document_id = $1
		ORDER BY position ASC
	`, uuid.UUID(documentID))
	if err != nil {
		return nil, fmt.Errorf("list signers: %w", err)
	}
	defer rows.Close()

	var signers []Signer
	for rows.Next() {
		signer, err := scanSigner(rows)
		if err != nil {
			return nil, err
		}
		signers = append(signers, signer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signers: %w", err)
	}
	return signers, nil
}

func (s *PostgresStore) GetSigner(ctx context.Context, documentID id.DocumentID, email string) (Signer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+signerColumns+`
		FROM signers
		WHERE document_id = $1 AND email = $2
	`, uuid.UUID(documentID), email)
	signer, err := scanSigner(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Signer{}, sentinel.ErrNotFound
		}
		return Signer{}, err
	}
	return signer, nil
}

func (s *PostgresStore) UpdateSigner(ctx context.Context, signer Signer) error {
	consentCtx, signedCtx, err := marshalContexts(signer)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE signers SET
			status = $2, consent_at = $3, consent_context = $4,
			signed_at = $5, signed_context = $6
		WHERE id = $1
	`,
		uuid.UUID(signer.ID), string(signer.Status),
		nullTime(signer.ConsentAt), consentCtx, nullTime(signer.SignedAt), signedCtx,
	)
	if err != nil {
		return fmt.Errorf("update signer: %w", err)
	}
	return requireRow(result)
}

type signerScanner interface {
	Scan(dest ...any) error
}

func scanSigner(row signerScanner) (Signer, error) {
	var (
		signer     Signer
		signerID   uuid.UUID
		documentID uuid.UUID
		role       string
		status     string
		consentAt  sql.NullTime
		consentCtx []byte
		signedAt   sql.NullTime
		signedCtx  []byte
	)
	err := row.Scan(&signerID, &documentID, &signer.Name, &signer.Email,
		&role, &signer.Position, &status,
		&consentAt, &consentCtx, &signedAt, &signedCtx)
	if err != nil {
		return Signer{}, err
	}
	signer.ID = id.SignerID(signerID)
	signer.DocumentID = id.DocumentID(documentID)
	signer.Role = ledger.SignerRole(role)
	signer.Status = SignerStatus(status)
	if consentAt.Valid {
		signer.ConsentAt = consentAt.Time.UTC()
	}
	if signedAt.Valid {
		signer.SignedAt = signedAt.Time.UTC()
	}
	if err := unmarshalContext(consentCtx, &signer.ConsentContext); err != nil {
		return Signer{}, err
	}
	if err := unmarshalContext(signedCtx, &signer.SignedContext); err != nil {
		return Signer{}, err
	}
	return signer, nil
}

func marshalContexts(signer Signer) ([]byte, []byte, error) {
	var consentCtx, signedCtx []byte
	var err error
	if !signer.ConsentContext.IsZero() {
		if consentCtx, err = json.Marshal(signer.ConsentContext); err != nil {
			return nil, nil, fmt.Errorf("marshal consent context: %w", err)
		}
	}
	if !signer.SignedContext.IsZero() {
		if signedCtx, err = json.Marshal(signer.SignedContext); err != nil {
			return nil, nil, fmt.Errorf("marshal signed context: %w", err)
		}
	}
	return consentCtx, signedCtx, nil
}

func unmarshalContext(raw []byte, out *capture.RequestContext) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal signer context: %w", err)
	}
	return nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
