package certificate

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/consent"
	"sealedrecord/internal/digest"
	"sealedrecord/internal/document"
	"sealedrecord/internal/ledger"
	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
	"sealedrecord/pkg/requestcontext"
)

var testCtx = capture.RequestContext{IPAddress: "203.0.113.7", UserAgent: "test-agent"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	docs   *document.Service
	ledger *ledger.Service
	certs  *Service
	store  *MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := discardLogger()
	ledgerSvc := ledger.NewService(ledger.NewMemoryStore(), logger)
	docSvc := document.NewService(document.NewMemoryStore(), ledgerSvc, logger)
	store := NewMemoryStore()
	return &fixture{
		docs:   docSvc,
		ledger: ledgerSvc,
		certs:  NewService(store, docSvc, ledgerSvc, logger),
		store:  store,
	}
}

// completedDocument runs a full single-signer ceremony to completion.
func (f *fixture) completedDocument(t *testing.T) id.DocumentID {
	t.Helper()
	base := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	at := func(offset time.Duration) context.Context {
		return requestcontext.WithTime(context.Background(), base.Add(offset))
	}
	owner := ledger.Actor{Type: ledger.ActorUser, ID: "owner-1"}

	doc, err := f.docs.Create(at(0), "Mutual NDA", digest.String("original"), owner, testCtx)
	require.NoError(t, err)

	_, _, err = f.docs.Send(at(time.Minute), doc.ID, []ledger.SignerRef{
		{Name: "Ana Ruiz", Email: "ana@example.com", Role: ledger.RoleSigner, Position: 1},
	}, owner, testCtx)
	require.NoError(t, err)

	_, err = f.docs.RecordConsent(at(2*time.Minute), doc.ID, consent.NewPayload("ana@example.com"), testCtx)
	require.NoError(t, err)

	signed, _, err := f.docs.RecordSignature(at(3*time.Minute), doc.ID, "ana@example.com", testCtx)
	require.NoError(t, err)
	require.Equal(t, document.StatusCompleted, signed.Status)

	return doc.ID
}

func TestService_Build(t *testing.T) {
	owner := ledger.Actor{Type: ledger.ActorUser, ID: "owner-1"}

	t.Run("builds for completed document", func(t *testing.T) {
		f := newFixture(t)
		docID := f.completedDocument(t)

		cert, err := f.certs.Build(context.Background(), docID, owner, testCtx)
		require.NoError(t, err)
		assert.True(t, digest.Valid(cert.Hash))
		assert.Equal(t, docID, cert.DocumentID)
		assert.NotEmpty(t, cert.Snapshot)

		// Issuance lands in the ledger.
		events, err := f.ledger.List(context.Background(), docID)
		require.NoError(t, err)
		last := events[len(events)-1]
		assert.Equal(t, ledger.KindCertificateGenerated, last.Kind)
	})

	t.Run("second build returns the first certificate", func(t *testing.T) {
		f := newFixture(t)
		docID := f.completedDocument(t)

		first, err := f.certs.Build(context.Background(), docID, owner, testCtx)
		require.NoError(t, err)
		second, err := f.certs.Build(context.Background(), docID, owner, testCtx)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Hash, second.Hash)

		// Exactly one certificate.generated event.
		events, err := f.ledger.List(context.Background(), docID)
		require.NoError(t, err)
		generated := 0
		for _, event := range events {
			if event.Kind == ledger.KindCertificateGenerated {
				generated++
			}
		}
		assert.Equal(t, 1, generated)
	})

	t.Run("records issuance on rebuild after a failed append", func(t *testing.T) {
		f := newFixture(t)
		docID := f.completedDocument(t)
		flaky := &flakyLedger{Service: f.ledger, failOnce: true}
		certs := NewService(f.store, f.docs, flaky, discardLogger())

		// The row persists, then the issuance append fails.
		_, err := certs.Build(context.Background(), docID, owner, testCtx)
		require.Error(t, err)

		// The rebuild returns the persisted certificate and backfills the
		// missing certificate.generated event.
		cert, err := certs.Build(context.Background(), docID, owner, testCtx)
		require.NoError(t, err)

		events, err := f.ledger.List(context.Background(), docID)
		require.NoError(t, err)
		var recorded []ledger.Event
		for _, event := range events {
			if event.Kind == ledger.KindCertificateGenerated {
				recorded = append(recorded, event)
			}
		}
		require.Len(t, recorded, 1)
		payload, ok := recorded[0].Payload.(ledger.CertificateGenerated)
		require.True(t, ok)
		assert.Equal(t, cert.ID.String(), payload.CertificateID)
		assert.Equal(t, cert.Hash, payload.CertificateHash)

		// A third build leaves the ledger alone.
		_, err = certs.Build(context.Background(), docID, owner, testCtx)
		require.NoError(t, err)
		after, err := f.ledger.List(context.Background(), docID)
		require.NoError(t, err)
		assert.Len(t, after, len(events))
	})

	t.Run("rejects incomplete document", func(t *testing.T) {
		f := newFixture(t)
		doc, err := f.docs.Create(context.Background(), "Draft", digest.String("original"), owner, testCtx)
		require.NoError(t, err)

		_, err = f.certs.Build(context.Background(), doc.ID, owner, testCtx)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})
}

func TestService_Verify(t *testing.T) {
	owner := ledger.Actor{Type: ledger.ActorUser, ID: "owner-1"}

	t.Run("intact certificate verifies and counts", func(t *testing.T) {
		f := newFixture(t)
		docID := f.completedDocument(t)
		cert, err := f.certs.Build(context.Background(), docID, owner, testCtx)
		require.NoError(t, err)

		first, err := f.certs.Verify(context.Background(), cert.ID)
		require.NoError(t, err)
		assert.True(t, first.Valid)
		assert.Equal(t, cert.Hash, first.RecomputedHash)
		assert.Equal(t, 1, first.VerificationCount)

		second, err := f.certs.Verify(context.Background(), cert.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, second.VerificationCount)
	})

	t.Run("tampered snapshot fails but still counts", func(t *testing.T) {
		f := newFixture(t)
		docID := f.completedDocument(t)
		cert, err := f.certs.Build(context.Background(), docID, owner, testCtx)
		require.NoError(t, err)

		f.store.tamper(cert.ID, func(c *Certificate) {
			c.Snapshot = []byte(`{"document":{"title":"Forged"},"signers":[],"events":[],"generated_at":""}`)
		})

		result, err := f.certs.Verify(context.Background(), cert.ID)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.NotEqual(t, result.StoredHash, result.RecomputedHash)
		assert.Equal(t, 1, result.VerificationCount)
	})

	t.Run("unknown certificate is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.certs.Verify(context.Background(), id.NewCertificateID())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestRender_Deterministic(t *testing.T) {
	f := newFixture(t)
	docID := f.completedDocument(t)
	owner := ledger.Actor{Type: ledger.ActorUser, ID: "owner-1"}
	cert, err := f.certs.Build(context.Background(), docID, owner, testCtx)
	require.NoError(t, err)

	first, err := Render(cert)
	require.NoError(t, err)
	second, err := Render(cert)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Block order is fixed.
	docIdx := indexOf(t, first, "DOCUMENT\n")
	signerIdx := indexOf(t, first, "SIGNERS\n")
	eventIdx := indexOf(t, first, "EVENT TRAIL\n")
	legalIdx := indexOf(t, first, "LEGAL NOTICE\n")
	assert.Less(t, docIdx, signerIdx)
	assert.Less(t, signerIdx, eventIdx)
	assert.Less(t, eventIdx, legalIdx)

	assert.Contains(t, first, "ana@example.com")
	assert.Contains(t, first, cert.Hash)
}

func TestURLSigner_RoundTrip(t *testing.T) {
	signer := NewURLSigner("https://verify.example.com", []byte("test-signing-key"), time.Hour)
	cert := Certificate{ID: id.NewCertificateID(), Hash: digest.String("snapshot")}
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

	url, err := signer.VerificationURL(cert, now)
	require.NoError(t, err)
	assert.Contains(t, url, cert.ID.String())

	_, token, found := strings.Cut(url, "?token=")
	require.True(t, found)
	certID, hash, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, certID)
	assert.Equal(t, cert.Hash, hash)

	_, _, err = signer.Parse("not-a-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

// flakyLedger fails the first certificate.generated append and delegates
// everything else.
type flakyLedger struct {
	*ledger.Service
	failOnce bool
}

func (l *flakyLedger) Append(ctx context.Context, documentID id.DocumentID, kind ledger.Kind, actor ledger.Actor, reqCtx capture.RequestContext, payload ledger.Payload) (ledger.Event, error) {
	if l.failOnce && kind == ledger.KindCertificateGenerated {
		l.failOnce = false
		return ledger.Event{}, dErrors.New(dErrors.CodeUnavailable, "ledger unavailable")
	}
	return l.Service.Append(ctx, documentID, kind, actor, reqCtx, payload)
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := strings.Index(haystack, needle)
	require.GreaterOrEqual(t, idx, 0, "missing %q", needle)
	return idx
}
