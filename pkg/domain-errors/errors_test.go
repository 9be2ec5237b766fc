package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	err := New(CodePrecondition, "consent missing")
	assert.True(t, HasCode(err, CodePrecondition))
	assert.False(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(errors.New("plain"), CodePrecondition))
}

func TestHasCode_Wrapped(t *testing.T) {
	inner := New(CodeConflict, "chain tail moved")
	outer := fmt.Errorf("append document abc: %w", inner)
	assert.True(t, HasCode(outer, CodeConflict))
	assert.Equal(t, CodeConflict, CodeOf(outer))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeUnavailable, "ledger store", cause)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, Retryable(err))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidInput, http.StatusBadRequest},
		{CodePrecondition, http.StatusUnprocessableEntity},
		{CodeConflict, http.StatusConflict},
		{CodeIntegrity, http.StatusConflict},
		{CodeNotFound, http.StatusNotFound},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
		{Code("something_else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHTTPStatus(tt.code), string(tt.code))
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(CodeConflict, "x")))
	assert.True(t, Retryable(New(CodeUnavailable, "x")))
	assert.False(t, Retryable(New(CodeIntegrity, "x")))
	assert.False(t, Retryable(New(CodePrecondition, "x")))
}
