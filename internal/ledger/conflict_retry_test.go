package ledger_test

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/digest"
	"sealedrecord/internal/ledger"
	"sealedrecord/internal/ledger/mocks"
	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
	"sealedrecord/pkg/platform/sentinel"
	"sealedrecord/pkg/requestcontext"
)

// The per-document mutex serializes appends within one process; the store's
// conditional insert backstops it across processes. These tests drive the
// lost-race path through a mocked store, which a shared memory store cannot
// reproduce deterministically.

func tailEvent(t *testing.T, documentID id.DocumentID, previous ledger.Event, sequence int64, kind ledger.Kind, payload ledger.Payload, at time.Time) ledger.Event {
	t.Helper()
	previousHash := digest.Genesis
	if sequence > 1 {
		previousHash = previous.CurrentHash
	}
	event := ledger.Event{
		ID:           id.NewEventID(),
		DocumentID:   documentID,
		Sequence:     sequence,
		Kind:         kind,
		Actor:        ledger.Actor{Type: ledger.ActorUser, ID: "owner-1"},
		Payload:      payload,
		Timestamp:    at,
		PreviousHash: previousHash,
	}
	hash, err := event.ComputeHash()
	require.NoError(t, err)
	event.CurrentHash = hash
	return event
}

func sentHistory(t *testing.T, documentID id.DocumentID) []ledger.Event {
	t.Helper()
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	created := tailEvent(t, documentID, ledger.Event{}, 1, ledger.KindDocumentCreated, ledger.DocumentCreated{
		Title:          "NDA",
		OriginalDigest: "A3F2B8C19D4E5F6071829384A5B6C7D8E9F0A1B2C3D4E5F60718293A4B5C6D7E",
	}, base)
	sent := tailEvent(t, documentID, created, 2, ledger.KindDocumentSent, ledger.DocumentSent{
		Signers: []ledger.SignerRef{{Name: "Ana", Email: "ana@example.com", Role: ledger.RoleSigner, Position: 1}},
	}, base.Add(time.Minute))
	return []ledger.Event{created, sent}
}

func TestAppend_RetriesOnceOnLostRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := ledger.NewService(store, logger)

	documentID := id.NewDocumentID()
	history := sentHistory(t, documentID)
	// The other writer's view landed at sequence 3 between our read and insert.
	racedView := tailEvent(t, documentID, history[1], 3, ledger.KindDocumentViewed,
		ledger.DocumentViewed{SignerEmail: "ana@example.com"}, history[1].Timestamp.Add(time.Minute))

	gomock.InOrder(
		store.EXPECT().List(gomock.Any(), documentID).Return(history, nil),
		store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict),
		store.EXPECT().List(gomock.Any(), documentID).Return(append(history, racedView), nil),
		store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil),
	)

	ctx := requestcontext.WithTime(context.Background(), history[1].Timestamp.Add(2*time.Minute))
	event, err := svc.Append(ctx, documentID, ledger.KindDocumentViewed,
		ledger.Actor{Type: ledger.ActorSigner, ID: "ana@example.com"},
		capture.RequestContext{},
		ledger.DocumentViewed{SignerEmail: "ana@example.com"})
	require.NoError(t, err)

	// The retry re-read the tail and chained behind the winner.
	assert.Equal(t, int64(4), event.Sequence)
	assert.Equal(t, racedView.CurrentHash, event.PreviousHash)
}

func TestAppend_SecondConflictSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := ledger.NewService(store, logger)

	documentID := id.NewDocumentID()
	history := sentHistory(t, documentID)

	store.EXPECT().List(gomock.Any(), documentID).Return(history, nil).Times(2)
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict).Times(2)

	ctx := requestcontext.WithTime(context.Background(), history[1].Timestamp.Add(time.Minute))
	_, err := svc.Append(ctx, documentID, ledger.KindDocumentViewed,
		ledger.Actor{Type: ledger.ActorSigner, ID: "ana@example.com"},
		capture.RequestContext{},
		ledger.DocumentViewed{SignerEmail: "ana@example.com"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestAppend_StoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := ledger.NewService(store, logger)

	documentID := id.NewDocumentID()
	store.EXPECT().List(gomock.Any(), documentID).Return(nil, errors.New("connection refused"))

	_, err := svc.Append(context.Background(), documentID, ledger.KindDocumentCreated,
		ledger.Actor{Type: ledger.ActorUser, ID: "owner-1"},
		capture.RequestContext{},
		ledger.DocumentCreated{Title: "NDA", OriginalDigest: "A3F2B8C19D4E5F6071829384A5B6C7D8E9F0A1B2C3D4E5F60718293A4B5C6D7E"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}
