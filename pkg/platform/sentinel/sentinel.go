package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors with the right
// code instead of matching on driver-specific error strings.
//
// These represent factual states about stored resources:
// - ErrNotFound: document, event, or certificate does not exist
// - ErrConflict: a unique constraint rejected the write (chain tail raced,
//   or a second certificate for the same document)
// - ErrInvalidState: entity in wrong lifecycle status for the operation
// - ErrUnavailable: backing store temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
