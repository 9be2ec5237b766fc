package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealedrecord/internal/digest"
	"sealedrecord/internal/ledger"
)

func TestAdvance(t *testing.T) {
	original := digest.String("original")
	eventHash := digest.String("signature-event")

	first, err := Advance(original, eventHash)
	require.NoError(t, err)
	assert.True(t, digest.Valid(first))
	assert.NotEqual(t, original, first)

	// Deterministic.
	again, err := Advance(original, eventHash)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// Order matters: folding a second signature moves the digest again.
	second, err := Advance(first, digest.String("another-event"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestFinalize(t *testing.T) {
	artifact := strings.Repeat("signed artifact bytes ", 1000)

	fromReader, err := Finalize(strings.NewReader(artifact))
	require.NoError(t, err)
	assert.Equal(t, digest.String(artifact), fromReader)
}

func TestDeriveLineage(t *testing.T) {
	original := digest.String("original")
	sigEvents := []ledger.Event{
		{Kind: ledger.KindDocumentCreated, CurrentHash: digest.String("e1")},
		{Kind: ledger.KindSignatureCompleted, CurrentHash: digest.String("e2")},
		{Kind: ledger.KindSignatureCompleted, CurrentHash: digest.String("e3")},
	}

	expected := original
	for _, hash := range []string{digest.String("e2"), digest.String("e3")} {
		var err error
		expected, err = Advance(expected, hash)
		require.NoError(t, err)
	}

	t.Run("consistent", func(t *testing.T) {
		result, err := DeriveLineage(original, expected, sigEvents)
		require.NoError(t, err)
		assert.True(t, result.Consistent)
		assert.Equal(t, 2, result.Signatures)
		assert.Equal(t, expected, result.DerivedDigest)
	})

	t.Run("mismatch reported, not repaired", func(t *testing.T) {
		forged := digest.String("forged")
		result, err := DeriveLineage(original, forged, sigEvents)
		require.NoError(t, err)
		assert.False(t, result.Consistent)
		assert.Equal(t, expected, result.DerivedDigest)
		assert.Equal(t, forged, result.StoredDigest)
	})

	t.Run("no signatures keeps original", func(t *testing.T) {
		result, err := DeriveLineage(original, original, sigEvents[:1])
		require.NoError(t, err)
		assert.True(t, result.Consistent)
		assert.Equal(t, 0, result.Signatures)
	})
}
