package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealedrecord/internal/certificate"
	"sealedrecord/internal/consent"
	"sealedrecord/internal/digest"
	"sealedrecord/internal/document"
	"sealedrecord/internal/ledger"
	"sealedrecord/internal/platform/ratelimit"
	id "sealedrecord/pkg/domain"
	"sealedrecord/pkg/requestcontext"
)

type certFixture struct {
	*fixture
	certificates *certificate.Service
	urlSigner    *certificate.URLSigner
}

func newCertFixture(t *testing.T, limiter *ratelimit.Limiter) *certFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledgerSvc := ledger.NewService(ledger.NewMemoryStore(), logger)
	documents := document.NewService(document.NewMemoryStore(), ledgerSvc, logger)
	certificates := certificate.NewService(certificate.NewMemoryStore(), documents, ledgerSvc, logger)
	urlSigner := certificate.NewURLSigner("https://verify.example.com", []byte("test-key"), time.Hour)

	docHandler := NewDocumentHandler(documents, ledgerSvc, logger)
	certHandler := NewCertificateHandler(certificates, urlSigner, limiter, logger)
	return &certFixture{
		fixture: &fixture{
			router:    NewRouter(logger, nil, 5*time.Second, docHandler, certHandler),
			documents: documents,
			ledger:    ledgerSvc,
		},
		certificates: certificates,
		urlSigner:    urlSigner,
	}
}

// completedDocument drives a one-signer ceremony through the services so the
// certificate endpoints have something to build from.
func (f *certFixture) completedDocument(t *testing.T) document.Document {
	t.Helper()
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	at := func(offset time.Duration) context.Context {
		return requestcontext.WithTime(context.Background(), base.Add(offset))
	}

	doc, err := f.documents.Create(at(0), "Service Agreement", digest.String("original"), testOwner, testCtx)
	require.NoError(t, err)
	_, _, err = f.documents.Send(at(time.Minute), doc.ID,
		[]ledger.SignerRef{{Name: "Ana", Email: "ana@example.com", Role: ledger.RoleSigner, Position: 1}},
		testOwner, testCtx)
	require.NoError(t, err)
	_, err = f.documents.RecordConsent(at(2*time.Minute), doc.ID, consent.NewPayload("ana@example.com"), testCtx)
	require.NoError(t, err)
	completed, _, err := f.documents.RecordSignature(at(3*time.Minute), doc.ID, "ana@example.com", testCtx)
	require.NoError(t, err)
	require.Equal(t, document.StatusCompleted, completed.Status)
	return completed
}

func TestHandleBuildCertificate(t *testing.T) {
	f := newCertFixture(t, nil)
	doc := f.completedDocument(t)

	w := f.do(t, http.MethodPost, "/v1/documents/"+doc.ID.String()+"/certificate",
		map[string]any{"actor_id": "owner-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, doc.ID.String(), body["documentId"])
	assert.Len(t, body["certificateHash"], digest.HexLength)
	assert.Contains(t, body["verificationUrl"], "/verify?token=")

	// A second build returns the same certificate.
	w = f.do(t, http.MethodPost, "/v1/documents/"+doc.ID.String()+"/certificate",
		map[string]any{"actor_id": "owner-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, body["certificateId"], decodeBody(t, w)["certificateId"])
}

func TestHandleBuildCertificate_IncompleteDocument(t *testing.T) {
	f := newCertFixture(t, nil)
	doc := f.sentDocument(t, "ana@example.com")

	w := f.do(t, http.MethodPost, "/v1/documents/"+doc.ID.String()+"/certificate",
		map[string]any{"actor_id": "owner-1"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "precondition_failed", decodeBody(t, w)["error"])
}

func TestHandleGetCertificate(t *testing.T) {
	f := newCertFixture(t, nil)
	doc := f.completedDocument(t)

	w := f.do(t, http.MethodPost, "/v1/documents/"+doc.ID.String()+"/certificate",
		map[string]any{"actor_id": "owner-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	certID := decodeBody(t, w)["certificateId"].(string)

	w = f.do(t, http.MethodGet, "/v1/certificates/"+certID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	artifact, _ := body["artifact"].(string)
	assert.Contains(t, artifact, "CERTIFICATE OF COMPLETION")
	assert.Contains(t, artifact, "ana@example.com")

	w = f.do(t, http.MethodGet, "/v1/certificates/"+id.NewCertificateID().String(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleVerifyCertificate(t *testing.T) {
	f := newCertFixture(t, nil)
	doc := f.completedDocument(t)

	w := f.do(t, http.MethodPost, "/v1/documents/"+doc.ID.String()+"/certificate",
		map[string]any{"actor_id": "owner-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	certID := body["certificateId"].(string)
	verifyPath := "/v1/certificates/" + certID + "/verify"

	w = f.do(t, http.MethodPost, verifyPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	verdict := decodeBody(t, w)
	assert.Equal(t, true, verdict["valid"])
	assert.Equal(t, float64(1), verdict["verificationCount"])

	// The minted URL carries a token bound to this certificate.
	url := body["verificationUrl"].(string)
	_, token, found := strings.Cut(url, "?token=")
	require.True(t, found)
	w = f.do(t, http.MethodPost, verifyPath+"?token="+token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["valid"])

	// The same token is rejected against a different certificate id.
	w = f.do(t, http.MethodPost, "/v1/certificates/"+id.NewCertificateID().String()+"/verify?token="+token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decodeBody(t, w)["error"])

	// Garbage tokens never reach the verifier.
	w = f.do(t, http.MethodPost, verifyPath+"?token=not-a-jwt", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleVerifyCertificate_RateLimited(t *testing.T) {
	f := newCertFixture(t, ratelimit.New(nil, 2, time.Minute))
	doc := f.completedDocument(t)

	w := f.do(t, http.MethodPost, "/v1/documents/"+doc.ID.String()+"/certificate",
		map[string]any{"actor_id": "owner-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	verifyPath := "/v1/certificates/" + decodeBody(t, w)["certificateId"].(string) + "/verify"

	for i := 0; i < 2; i++ {
		w = f.do(t, http.MethodPost, verifyPath, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w = f.do(t, http.MethodPost, verifyPath, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Other endpoints stay unthrottled.
	w = f.do(t, http.MethodGet, "/v1/documents/"+doc.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
}
