// Package httputil holds the shared encode/decode helpers for HTTP
// handlers so every endpoint speaks the same error envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "sealedrecord/pkg/domain-errors"
)

// errorResponse is the wire envelope for failed requests.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status. Encoding failures are
// unrecoverable at this point; the status line is already gone.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to the shared error envelope. Internal faults keep
// their detail out of the response body.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := errorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.DomainError
		if errors.As(err, &de) {
			resp.ErrorDescription = de.Message
		}
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), resp)
}

// Decode reads a JSON body into T, rejecting unknown fields. Failures are
// written to w as invalid_input and reported through the returned bool.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "malformed request body", err))
		return v, false
	}
	return v, true
}
