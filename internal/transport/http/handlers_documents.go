package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/consent"
	"sealedrecord/internal/document"
	"sealedrecord/internal/ledger"
	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
	"sealedrecord/pkg/platform/httputil"
	"sealedrecord/pkg/requestcontext"
)

// DocumentHandler exposes document lifecycle and ledger read endpoints.
type DocumentHandler struct {
	documents *document.Service
	ledger    *ledger.Service
	logger    *slog.Logger
}

func NewDocumentHandler(documents *document.Service, ledgerSvc *ledger.Service, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, ledger: ledgerSvc, logger: logger}
}

func (h *DocumentHandler) Register(r chi.Router) {
	r.Post("/documents", h.HandleCreate)
	r.Get("/documents/{documentID}", h.HandleGet)
	r.Post("/documents/{documentID}/events", h.HandleAppendEvent)
	r.Get("/documents/{documentID}/events", h.HandleListEvents)
	r.Get("/documents/{documentID}/export", h.HandleExport)
	r.Get("/documents/{documentID}/verify", h.HandleVerify)
	r.Get("/documents/{documentID}/consents", h.HandleListConsents)
	r.Post("/documents/{documentID}/retention/anonymize", h.HandleAnonymize)
}

type createDocumentRequest struct {
	Title          string `json:"title"`
	OriginalDigest string `json:"original_digest"`
	ActorID        string `json:"actor_id"`
}

type documentResponse struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Status         string           `json:"status"`
	OriginalDigest string           `json:"original_digest"`
	CurrentDigest  string           `json:"current_digest"`
	FinalDigest    string           `json:"final_digest,omitempty"`
	ArtifactDigest string           `json:"artifact_digest,omitempty"`
	Inconsistent   bool             `json:"inconsistent,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Signers        []signerResponse `json:"signers,omitempty"`
}

type signerResponse struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Position int    `json:"position"`
	Status   string `json:"status"`
}

func toDocumentResponse(doc document.Document, signers []document.Signer) documentResponse {
	resp := documentResponse{
		ID:             doc.ID.String(),
		Title:          doc.Title,
		Status:         string(doc.Status),
		OriginalDigest: doc.OriginalDigest,
		CurrentDigest:  doc.CurrentDigest,
		FinalDigest:    doc.FinalDigest,
		ArtifactDigest: doc.ArtifactDigest,
		Inconsistent:   doc.Inconsistent,
		CreatedAt:      doc.CreatedAt,
	}
	if !doc.CompletedAt.IsZero() {
		completedAt := doc.CompletedAt
		resp.CompletedAt = &completedAt
	}
	for _, signer := range signers {
		resp.Signers = append(resp.Signers, signerResponse{
			Name:     signer.Name,
			Email:    signer.Email,
			Role:     string(signer.Role),
			Position: signer.Position,
			Status:   string(signer.Status),
		})
	}
	return resp
}

// HandleCreate handles POST /v1/documents.
func (h *DocumentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[createDocumentRequest](w, r)
	if !ok {
		return
	}

	actor := ledger.Actor{Type: ledger.ActorUser, ID: req.ActorID}
	doc, err := h.documents.Create(ctx, req.Title, req.OriginalDigest, actor, capture.FromRequest(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "create document failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toDocumentResponse(doc, nil))
}

// HandleGet handles GET /v1/documents/{documentID}.
func (h *DocumentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, signers, err := h.documents.Get(ctx, documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(doc, signers))
}

// HandleListEvents handles GET /v1/documents/{documentID}/events.
func (h *DocumentHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.ledger.List(ctx, documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := make([]eventResponse, 0, len(events))
	for _, event := range events {
		resp = append(resp, toEventResponse(event))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": resp})
}

// HandleExport handles GET /v1/documents/{documentID}/export.
func (h *DocumentHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	export, err := h.ledger.ExportDelimited(ctx, documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail-`+documentID.String()+`.tsv"`)
	_, _ = w.Write([]byte(export))
}

// HandleVerify handles GET /v1/documents/{documentID}/verify. The full
// query flag reports every broken index instead of stopping at the first.
func (h *DocumentHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var result ledger.VerificationResult
	if r.URL.Query().Get("full") == "true" {
		result, err = h.ledger.VerifyIntegrityFull(ctx, documentID)
	} else {
		result, err = h.ledger.VerifyIntegrity(ctx, documentID)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	lineage, err := h.documents.CheckLineage(ctx, documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":              result.Valid && lineage.Consistent,
		"events":             result.Events,
		"first_broken_index": result.FirstBrokenIndex,
		"broken_indexes":     result.BrokenIndexes,
		"lineage_consistent": lineage.Consistent,
	})
}

// HandleListConsents handles GET /v1/documents/{documentID}/consents.
func (h *DocumentHandler) HandleListConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.ledger.List(ctx, documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	records := consent.Records(events)
	resp := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		entry := map[string]any{
			"signer_email":       rec.SignerEmail,
			"disclosure_version": rec.DisclosureVersion,
			"disclosure_digest":  rec.DisclosureDigest,
			"given_at":           rec.GivenAt,
			"withdrawn":          rec.Withdrawn,
			"stale":              rec.Stale,
		}
		if rec.Withdrawn {
			entry["withdrawn_at"] = rec.WithdrawnAt
		}
		resp = append(resp, entry)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consents": resp})
}

type anonymizeRequest struct {
	Before time.Time `json:"before"`
}

// HandleAnonymize handles POST /v1/documents/{documentID}/retention/anonymize.
func (h *DocumentHandler) HandleAnonymize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[anonymizeRequest](w, r)
	if !ok {
		return
	}
	if req.Before.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "before timestamp is required"))
		return
	}
	rewritten, err := h.ledger.AnonymizeBefore(ctx, documentID, req.Before)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events_rewritten": rewritten})
}
