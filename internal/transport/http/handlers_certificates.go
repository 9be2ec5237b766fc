package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/certificate"
	"sealedrecord/internal/ledger"
	"sealedrecord/internal/platform/ratelimit"
	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
	"sealedrecord/pkg/platform/httputil"
	"sealedrecord/pkg/requestcontext"
)

// CertificateHandler exposes certificate build, retrieval, and public
// verification.
type CertificateHandler struct {
	certificates *certificate.Service
	urlSigner    *certificate.URLSigner
	limiter      *ratelimit.Limiter
	logger       *slog.Logger
}

func NewCertificateHandler(certificates *certificate.Service, urlSigner *certificate.URLSigner, limiter *ratelimit.Limiter, logger *slog.Logger) *CertificateHandler {
	return &CertificateHandler{
		certificates: certificates,
		urlSigner:    urlSigner,
		limiter:      limiter,
		logger:       logger,
	}
}

func (h *CertificateHandler) Register(r chi.Router) {
	r.Post("/documents/{documentID}/certificate", h.HandleBuild)
	r.Get("/certificates/{certificateID}", h.HandleGet)
	if h.limiter != nil {
		r.With(h.limiter.Middleware).Post("/certificates/{certificateID}/verify", h.HandleVerify)
	} else {
		r.Post("/certificates/{certificateID}/verify", h.HandleVerify)
	}
}

type buildCertificateRequest struct {
	ActorID string `json:"actor_id"`
}

type certificateResponse struct {
	CertificateID     string `json:"certificateId"`
	DocumentID        string `json:"documentId"`
	CertificateHash   string `json:"certificateHash"`
	VerificationURL   string `json:"verificationUrl,omitempty"`
	VerificationCount int    `json:"verificationCount"`
	Artifact          string `json:"artifact,omitempty"`
}

// HandleBuild handles POST /v1/documents/{documentID}/certificate.
func (h *CertificateHandler) HandleBuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[buildCertificateRequest](w, r)
	if !ok {
		return
	}

	actor := ledger.Actor{Type: ledger.ActorUser, ID: req.ActorID}
	cert, err := h.certificates.Build(ctx, documentID, actor, capture.FromRequest(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "certificate build failed",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", documentID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := certificateResponse{
		CertificateID:     cert.ID.String(),
		DocumentID:        cert.DocumentID.String(),
		CertificateHash:   cert.Hash,
		VerificationCount: cert.VerificationCount,
	}
	if h.urlSigner != nil {
		url, err := h.urlSigner.VerificationURL(cert, requestcontext.Now(ctx))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		resp.VerificationURL = url
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

// HandleGet handles GET /v1/certificates/{certificateID}, returning the
// rendered artifact alongside the verification metadata.
func (h *CertificateHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certificateID, err := id.ParseCertificateID(chi.URLParam(r, "certificateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cert, err := h.certificates.Get(ctx, certificateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	artifact, err := h.certificates.Rendered(ctx, cert)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := certificateResponse{
		CertificateID:     cert.ID.String(),
		DocumentID:        cert.DocumentID.String(),
		CertificateHash:   cert.Hash,
		VerificationCount: cert.VerificationCount,
		Artifact:          artifact,
	}
	if h.urlSigner != nil {
		url, err := h.urlSigner.VerificationURL(cert, requestcontext.Now(ctx))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		resp.VerificationURL = url
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerify handles POST /v1/certificates/{certificateID}/verify. With a
// token query parameter the certificate id and hash binding are checked
// first, so shared links cannot be replayed against other certificates.
func (h *CertificateHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certificateID, err := id.ParseCertificateID(chi.URLParam(r, "certificateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if token := r.URL.Query().Get("token"); token != "" && h.urlSigner != nil {
		tokenCertID, _, err := h.urlSigner.Parse(token)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if tokenCertID != certificateID {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "token does not match certificate"))
			return
		}
	}

	result, err := h.certificates.Verify(ctx, certificateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":             result.Valid,
		"recomputedHash":    result.RecomputedHash,
		"storedHash":        result.StoredHash,
		"verificationCount": result.VerificationCount,
	})
}
