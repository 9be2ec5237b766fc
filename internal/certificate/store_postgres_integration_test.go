//go:build integration

package certificate_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sealedrecord/internal/certificate"
	"sealedrecord/internal/digest"
	id "sealedrecord/pkg/domain"
	"sealedrecord/pkg/platform/sentinel"
	"sealedrecord/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *certificate.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = certificate.NewPostgresStore(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "certificates"))
}

func (s *PostgresStoreSuite) newCertificate(documentID id.DocumentID) certificate.Certificate {
	snapshot, err := json.Marshal(map[string]any{"document": map[string]any{"title": "Service Agreement"}})
	s.Require().NoError(err)
	return certificate.Certificate{
		ID:          id.NewCertificateID(),
		DocumentID:  documentID,
		Hash:        digest.String("snapshot"),
		Snapshot:    snapshot,
		GeneratedAt: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *PostgresStoreSuite) TestCreateAndGet() {
	ctx := context.Background()
	cert := s.newCertificate(id.NewDocumentID())
	s.Require().NoError(s.store.Create(ctx, cert))

	loaded, err := s.store.Get(ctx, cert.ID)
	s.Require().NoError(err)
	s.Equal(cert.Hash, loaded.Hash)
	s.JSONEq(string(cert.Snapshot), string(loaded.Snapshot))
	s.Equal(cert.GeneratedAt, loaded.GeneratedAt)
	s.Equal(0, loaded.VerificationCount)

	byDoc, err := s.store.GetByDocument(ctx, cert.DocumentID)
	s.Require().NoError(err)
	s.Equal(cert.ID, byDoc.ID)

	_, err = s.store.Get(ctx, id.NewCertificateID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestOneCertificatePerDocument() {
	ctx := context.Background()
	documentID := id.NewDocumentID()
	s.Require().NoError(s.store.Create(ctx, s.newCertificate(documentID)))

	second := s.newCertificate(documentID)
	s.Require().ErrorIs(s.store.Create(ctx, second), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestIncrementVerifications() {
	ctx := context.Background()
	cert := s.newCertificate(id.NewDocumentID())
	s.Require().NoError(s.store.Create(ctx, cert))

	count, err := s.store.IncrementVerifications(ctx, cert.ID)
	s.Require().NoError(err)
	s.Equal(1, count)
	count, err = s.store.IncrementVerifications(ctx, cert.ID)
	s.Require().NoError(err)
	s.Equal(2, count)

	_, err = s.store.IncrementVerifications(ctx, id.NewCertificateID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
