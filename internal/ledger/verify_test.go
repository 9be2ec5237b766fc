package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealedrecord/internal/digest"
	id "sealedrecord/pkg/domain"
)

// buildChain seeds a four-event chain: created, sent, consent, viewed.
func buildChain(t *testing.T, svc *Service) id.DocumentID {
	t.Helper()
	documentID := id.NewDocumentID()
	seedChain(t, svc, documentID, "ana@example.com")
	_, err := svc.Append(ctxAt(2*time.Minute), documentID, KindConsentGiven, testSigner, testReqCtx, consentPayload("ana@example.com"))
	require.NoError(t, err)
	_, err = svc.Append(ctxAt(3*time.Minute), documentID, KindDocumentViewed, testSigner, testReqCtx, DocumentViewed{
		SignerEmail: "ana@example.com",
	})
	require.NoError(t, err)
	return documentID
}

func TestVerifyIntegrity(t *testing.T) {
	t.Run("intact chain", func(t *testing.T) {
		svc, _ := newTestService(t)
		documentID := buildChain(t, svc)

		result, err := svc.VerifyIntegrity(context.Background(), documentID)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, 4, result.Events)
		assert.Empty(t, result.BrokenIndexes)
	})

	t.Run("empty chain is valid", func(t *testing.T) {
		svc, _ := newTestService(t)
		result, err := svc.VerifyIntegrity(context.Background(), id.NewDocumentID())
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, 0, result.Events)
	})

	t.Run("tampered payload breaks at the edited event", func(t *testing.T) {
		svc, store := newTestService(t)
		documentID := buildChain(t, svc)

		store.tamper(documentID, 1, func(e *Event) {
			p := e.Payload.(DocumentSent)
			p.Signers[0].Email = "mallory@example.com"
			e.Payload = p
		})

		result, err := svc.VerifyIntegrity(context.Background(), documentID)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, int64(2), result.FirstBrokenIndex)
	})

	t.Run("tampered hash breaks linkage downstream", func(t *testing.T) {
		svc, store := newTestService(t)
		documentID := buildChain(t, svc)

		store.tamper(documentID, 1, func(e *Event) {
			e.CurrentHash = digest.String("forged")
		})

		result, err := svc.VerifyIntegrityFull(context.Background(), documentID)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, int64(2), result.FirstBrokenIndex)
		// The edited event fails recomputation and its successor fails
		// linkage.
		assert.Contains(t, result.BrokenIndexes, int64(2))
		assert.Contains(t, result.BrokenIndexes, int64(3))
	})

	t.Run("fast scan stops at first break", func(t *testing.T) {
		svc, store := newTestService(t)
		documentID := buildChain(t, svc)

		store.tamper(documentID, 0, func(e *Event) {
			e.CurrentHash = digest.String("forged")
		})

		result, err := svc.VerifyIntegrity(context.Background(), documentID)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, int64(1), result.FirstBrokenIndex)
		assert.Len(t, result.BrokenIndexes, 1)
	})

	t.Run("cancelled context aborts the scan", func(t *testing.T) {
		svc, _ := newTestService(t)
		documentID := buildChain(t, svc)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.VerifyIntegrity(ctx, documentID)
		require.Error(t, err)
	})
}
