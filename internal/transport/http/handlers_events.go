package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/ledger"
	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
	"sealedrecord/pkg/platform/httputil"
	"sealedrecord/pkg/requestcontext"
)

// appendEventRequest is the ingestion contract: collaborators submit the
// event kind plus its kind-specific payload and identify the acting party.
type appendEventRequest struct {
	Kind    string          `json:"kind"`
	ActorID string          `json:"actor_id"`
	Payload json.RawMessage `json:"payload"`
}

type eventResponse struct {
	ID            string          `json:"id"`
	DocumentID    string          `json:"document_id"`
	Sequence      int64           `json:"sequence"`
	Kind          string          `json:"kind"`
	ActorType     string          `json:"actor_type"`
	ActorID       string          `json:"actor_id"`
	ContextDigest string          `json:"context_digest"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
	PreviousHash  string          `json:"previous_hash"`
	CurrentHash   string          `json:"current_hash"`
}

func toEventResponse(event ledger.Event) eventResponse {
	payload, _ := json.Marshal(event.Payload)
	return eventResponse{
		ID:            event.ID.String(),
		DocumentID:    event.DocumentID.String(),
		Sequence:      event.Sequence,
		Kind:          string(event.Kind),
		ActorType:     string(event.Actor.Type),
		ActorID:       event.Actor.ID,
		ContextDigest: event.ContextDigest,
		Payload:       payload,
		Timestamp:     event.Timestamp,
		PreviousHash:  event.PreviousHash,
		CurrentHash:   event.CurrentHash,
	}
}

// HandleAppendEvent handles POST /v1/documents/{documentID}/events. Kinds
// with a projection go through the document service so signer and document
// rows track the ledger; purely informational kinds append directly.
// document.created and certificate.generated have dedicated endpoints and
// are rejected here.
func (h *DocumentHandler) HandleAppendEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[appendEventRequest](w, r)
	if !ok {
		return
	}
	kind, err := ledger.ParseKind(req.Kind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	payload, err := ledger.DecodePayload(kind, req.Payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	reqCtx := capture.FromRequest(r)
	event, err := h.dispatch(ctx, documentID, kind, req.ActorID, payload, reqCtx)
	if err != nil {
		h.logger.WarnContext(ctx, "event rejected",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", documentID.String(),
			"kind", string(kind),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toEventResponse(event))
}

// dispatch routes the submission and returns the event it appended. The
// response must describe the submitted event, not whatever the ledger tail
// happens to be: a signature can auto-raise document.completed behind it,
// and concurrent appenders can move the tail.
func (h *DocumentHandler) dispatch(ctx context.Context, documentID id.DocumentID, kind ledger.Kind, actorID string, payload ledger.Payload, reqCtx capture.RequestContext) (ledger.Event, error) {
	switch p := payload.(type) {
	case ledger.DocumentSent:
		actor := ledger.Actor{Type: ledger.ActorUser, ID: actorID}
		_, event, err := h.documents.Send(ctx, documentID, p.Signers, actor, reqCtx)
		return event, err
	case ledger.DocumentViewed:
		return h.documents.RecordView(ctx, documentID, p.SignerEmail, reqCtx)
	case ledger.ConsentGiven:
		return h.documents.RecordConsent(ctx, documentID, p, reqCtx)
	case ledger.ConsentWithdrawn:
		return h.documents.WithdrawConsent(ctx, documentID, p.SignerEmail, p.Reason, reqCtx)
	case ledger.SignatureCompleted:
		_, event, err := h.documents.RecordSignature(ctx, documentID, p.SignerEmail, reqCtx)
		return event, err
	case ledger.SignerDeclined:
		return h.documents.Decline(ctx, documentID, p.SignerEmail, p.Reason, reqCtx)
	case ledger.DocumentVoided:
		actor := ledger.Actor{Type: ledger.ActorUser, ID: actorID}
		return h.documents.Void(ctx, documentID, p.Reason, actor, reqCtx)
	case ledger.DocumentExpired:
		actor := ledger.Actor{Type: ledger.ActorSystem, ID: "system"}
		return h.documents.Expire(ctx, documentID, actor, reqCtx)
	case ledger.DeliveryRecorded:
		actor := ledger.Actor{Type: ledger.ActorSystem, ID: "system"}
		return h.ledger.Append(ctx, documentID, kind, actor, reqCtx, p)
	default:
		return ledger.Event{}, dErrors.Newf(dErrors.CodeInvalidInput, "kind %s is not accepted on this endpoint", kind)
	}
}
