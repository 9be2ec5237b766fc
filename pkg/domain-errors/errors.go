// Package domainerrors defines code-carrying errors shared by all services.
//
// Services construct these at validation and business-rule boundaries; stores
// return sentinel errors (pkg/platform/sentinel) which services translate here.
// Transport layers map codes to HTTP statuses with ToHTTPStatus and never
// inspect error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for callers and transports.
type Code string

const (
	// CodeInvalidInput marks malformed input: unknown event kinds, bad UUIDs,
	// missing consent flags. Rejected before any mutation.
	CodeInvalidInput Code = "invalid_input"
	// CodePrecondition marks a business-rule violation: signing without prior
	// consent, completing with pending signers. Rejected before any mutation.
	CodePrecondition Code = "precondition_failed"
	// CodeConflict marks a lost race on the ledger chain tail. Retryable.
	CodeConflict Code = "conflict"
	// CodeIntegrity marks a hash mismatch detected during verification.
	// Never retried and never repaired automatically.
	CodeIntegrity Code = "integrity_violation"
	// CodeNotFound marks a missing document, event, or certificate.
	CodeNotFound Code = "not_found"
	// CodeUnavailable marks a storage or transport failure. Retryable by the
	// caller's policy; the core does not retry persistence silently.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks an unexpected fault.
	CodeInternal Code = "internal"
)

// DomainError carries a code, a caller-facing message, and an optional cause.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, cause error) error {
	return &DomainError{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err (or anything it wraps) is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in the domain layer.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code to an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodePrecondition:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	case CodeIntegrity:
		// Integrity violations are reported, not hidden behind a 5xx.
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may safely retry the failed operation.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeConflict, CodeUnavailable:
		return true
	default:
		return false
	}
}
