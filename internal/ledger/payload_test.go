package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "sealedrecord/pkg/domain-errors"
)

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("signature.completed")
	require.NoError(t, err)
	assert.Equal(t, KindSignatureCompleted, kind)

	for _, raw := range []string{"", "document.shredded", "SIGNATURE.COMPLETED"} {
		_, err := ParseKind(raw)
		require.Error(t, err, "kind %q", raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}

func TestKind_Terminal(t *testing.T) {
	assert.True(t, KindDocumentCompleted.Terminal())
	assert.True(t, KindDocumentVoided.Terminal())
	assert.True(t, KindDocumentExpired.Terminal())
	assert.False(t, KindDocumentSent.Terminal())
	assert.False(t, KindCertificateGenerated.Terminal())
}

func TestDecodePayload(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		payload, err := DecodePayload(KindDocumentViewed, []byte(`{"signer_email":"ana@example.com"}`))
		require.NoError(t, err)
		viewed, ok := payload.(DocumentViewed)
		require.True(t, ok)
		assert.Equal(t, "ana@example.com", viewed.SignerEmail)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		_, err := DecodePayload(KindDocumentViewed, []byte(`{"signer_email":"a@b.c","extra":true}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := DecodePayload(Kind("document.shredded"), []byte(`{}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("roster duplicates rejected", func(t *testing.T) {
		p := sentPayload("ana@example.com", "ana@example.com")
		err := p.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
