package ledger

import (
	"context"
	"time"

	id "sealedrecord/pkg/domain"
)

// Store persists ledger events. Implementations must be insert-only: events
// are never updated or deleted, with the single exception of
// AnonymizeContextBefore which rewrites requester-context display fields and
// nothing else.
//
// Append must reject a second event at the same (document, sequence) with
// sentinel.ErrConflict so the service can detect a lost race on the chain
// tail.
type Store interface {
	Append(ctx context.Context, event Event) error
	// Latest returns the chain tail, or sentinel.ErrNotFound when the
	// document has no events yet.
	Latest(ctx context.Context, documentID id.DocumentID) (Event, error)
	// List returns all events for a document in ascending sequence order,
	// taken as a consistent snapshot.
	List(ctx context.Context, documentID id.DocumentID) ([]Event, error)
	// AnonymizeContextBefore strips host-identifying requester context from
	// events older than the cutoff. Hash fields are untouched. Returns the
	// number of rewritten events.
	AnonymizeContextBefore(ctx context.Context, documentID id.DocumentID, cutoff time.Time) (int, error)
}
