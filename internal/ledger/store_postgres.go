package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"sealedrecord/internal/capture"
	id "sealedrecord/pkg/domain"
	"sealedrecord/pkg/platform/sentinel"
	"sealedrecord/pkg/platform/tx"
)

// Schema is the DDL for the ledger tables. audit_events is insert-only; the
// (document_id, sequence) unique constraint is what turns a lost append race
// into a detectable conflict. ledger_outbox rows are written in the same
// transaction as their event and drained by the outbox worker.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id              UUID PRIMARY KEY,
	document_id     UUID NOT NULL,
	sequence        BIGINT NOT NULL,
	kind            TEXT NOT NULL,
	actor_type      TEXT NOT NULL,
	actor_id        TEXT NOT NULL,
	context         JSONB NOT NULL,
	context_digest  CHAR(64) NOT NULL,
	payload         JSONB NOT NULL,
	occurred_at     TIMESTAMPTZ NOT NULL,
	previous_hash   CHAR(64) NOT NULL,
	current_hash    CHAR(64) NOT NULL,
	UNIQUE (document_id, sequence)
);

CREATE TABLE IF NOT EXISTS ledger_outbox (
	id            BIGSERIAL PRIMARY KEY,
	event_id      UUID NOT NULL,
	document_id   UUID NOT NULL,
	kind          TEXT NOT NULL,
	payload       JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	published_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_ledger_outbox_pending
	ON ledger_outbox (id) WHERE published_at IS NULL;
`

const uniqueViolation = "23505"

// PostgresStore persists ledger events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// outboxEnvelope is the message body mirrored to the outbox for downstream
// consumers. Hashes travel with it so consumers can verify linkage on their
// side.
type outboxEnvelope struct {
	EventID      string          `json:"event_id"`
	DocumentID   string          `json:"document_id"`
	Sequence     int64           `json:"sequence"`
	Kind         string          `json:"kind"`
	ActorType    string          `json:"actor_type"`
	ActorID      string          `json:"actor_id"`
	Payload      json.RawMessage `json:"payload"`
	OccurredAt   time.Time       `json:"occurred_at"`
	PreviousHash string          `json:"previous_hash"`
	CurrentHash  string          `json:"current_hash"`
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	contextJSON, err := json.Marshal(event.Context)
	if err != nil {
		return fmt.Errorf("marshal event context: %w", err)
	}
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	envelope, err := json.Marshal(outboxEnvelope{
		EventID:      event.ID.String(),
		DocumentID:   event.DocumentID.String(),
		Sequence:     event.Sequence,
		Kind:         string(event.Kind),
		ActorType:    string(event.Actor.Type),
		ActorID:      event.Actor.ID,
		Payload:      payloadJSON,
		OccurredAt:   event.Timestamp,
		PreviousHash: event.PreviousHash,
		CurrentHash:  event.CurrentHash,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox envelope: %w", err)
	}

	return tx.Within(ctx, s.db, func(ctx context.Context, q tx.Querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO audit_events
				(id, document_id, sequence, kind, actor_type, actor_id,
				 context, context_digest, payload, occurred_at, previous_hash, current_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			uuid.UUID(event.ID), uuid.UUID(event.DocumentID), event.Sequence,
			string(event.Kind), string(event.Actor.Type), event.Actor.ID,
			contextJSON, event.ContextDigest, payloadJSON,
			event.Timestamp, event.PreviousHash, event.CurrentHash,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert audit event: %w", err)
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO ledger_outbox (event_id, document_id, kind, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.UUID(event.ID), uuid.UUID(event.DocumentID), string(event.Kind), envelope, event.Timestamp)
		if err != nil {
			return fmt.Errorf("insert outbox row: %w", err)
		}
		return nil
	})
}

const eventColumns = `
	id, document_id, sequence, kind, actor_type, actor_id,
	context, context_digest, payload, occurred_at, previous_hash, current_hash`

func (s *PostgresStore) Latest(ctx context.Context, documentID id.DocumentID) (Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+eventColumns+`
		FROM audit_events
		WHERE document_id = $1
		ORDER BY sequence DESC
		LIMIT 1
	`, uuid.UUID(documentID))
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, sentinel.ErrNotFound
		}
		return Event{}, fmt.Errorf("load chain tail: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) List(ctx context.Context, documentID id.DocumentID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+eventColumns+`
		FROM audit_events
		WHERE document_id = $1
		ORDER BY sequence ASC
	`, uuid.UUID(documentID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// AnonymizeContextBefore rewrites the context display fields of events older
// than the cutoff. context_digest and the hash columns stay exactly as
// appended.
func (s *PostgresStore) AnonymizeContextBefore(ctx context.Context, documentID id.DocumentID, cutoff time.Time) (int, error) {
	rewritten := 0
	err := tx.Within(ctx, s.db, func(ctx context.Context, q tx.Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT id, context
			FROM audit_events
			WHERE document_id = $1 AND occurred_at < $2
			FOR UPDATE
		`, uuid.UUID(documentID), cutoff)
		if err != nil {
			return fmt.Errorf("select events for anonymization: %w", err)
		}
		defer rows.Close()

		type pending struct {
			eventID uuid.UUID
			context []byte
		}
		var targets []pending
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.eventID, &p.context); err != nil {
				return fmt.Errorf("scan event context: %w", err)
			}
			targets = append(targets, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate event contexts: %w", err)
		}

		for _, target := range targets {
			var reqCtx capture.RequestContext
			if err := json.Unmarshal(target.context, &reqCtx); err != nil {
				return fmt.Errorf("unmarshal event context: %w", err)
			}
			anonymized, err := json.Marshal(reqCtx.Anonymized())
			if err != nil {
				return fmt.Errorf("marshal anonymized context: %w", err)
			}
			if _, err := q.ExecContext(ctx, `
				UPDATE audit_events SET context = $1 WHERE id = $2
			`, anonymized, target.eventID); err != nil {
				return fmt.Errorf("anonymize event context: %w", err)
			}
			rewritten++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rewritten, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		event       Event
		eventID     uuid.UUID
		documentID  uuid.UUID
		kind        string
		actorType   string
		contextJSON []byte
		payloadJSON []byte
	)
	err := row.Scan(
		&eventID, &documentID, &event.Sequence, &kind, &actorType, &event.Actor.ID,
		&contextJSON, &event.ContextDigest, &payloadJSON,
		&event.Timestamp, &event.PreviousHash, &event.CurrentHash,
	)
	if err != nil {
		return Event{}, err
	}
	event.ID = id.EventID(eventID)
	event.DocumentID = id.DocumentID(documentID)
	event.Kind = Kind(kind)
	event.Actor.Type = ActorType(actorType)
	if err := json.Unmarshal(contextJSON, &event.Context); err != nil {
		return Event{}, fmt.Errorf("unmarshal event context: %w", err)
	}
	payload, err := DecodePayload(event.Kind, payloadJSON)
	if err != nil {
		return Event{}, fmt.Errorf("decode event payload: %w", err)
	}
	event.Payload = payload
	event.Timestamp = event.Timestamp.UTC()
	return event, nil
}
