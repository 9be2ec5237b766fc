package ledger

import (
	"context"
	"strconv"
	"strings"
	"time"

	"sealedrecord/internal/digest"
	id "sealedrecord/pkg/domain"
	dErrors "sealedrecord/pkg/domain-errors"
)

// exportColumns is the fixed header of the delimited export. External audit
// tooling depends on this layout staying put.
var exportColumns = []string{
	"sequence",
	"timestamp",
	"event_kind",
	"actor_type",
	"actor_id",
	"ip_address",
	"payload",
	"previous_hash",
	"current_hash",
}

// ExportDelimited renders the full ledger of a document as deterministic
// tab-separated text, ordered exactly as List orders it. Tabs, newlines, and
// backslashes inside values are escaped so the output stays one row per
// event. The scan honors cancellation at event boundaries.
func (s *Service) ExportDelimited(ctx context.Context, documentID id.DocumentID) (string, error) {
	events, err := s.store.List(ctx, documentID)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeUnavailable, "read ledger for export", err)
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(exportColumns, "\t"))
	sb.WriteByte('\n')

	for i := range events {
		select {
		case <-ctx.Done():
			return "", dErrors.Wrap(dErrors.CodeUnavailable, "export cancelled", ctx.Err())
		default:
		}

		e := events[i]
		payload, err := digest.Canonicalize(e.Payload)
		if err != nil {
			return "", err
		}
		row := []string{
			strconv.FormatInt(e.Sequence, 10),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.Kind.String(),
			string(e.Actor.Type),
			escapeField(e.Actor.ID),
			escapeField(e.Context.IPAddress),
			escapeField(string(payload)),
			e.PreviousHash,
			e.CurrentHash,
		}
		sb.WriteString(strings.Join(row, "\t"))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

var fieldEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"\t", "\\t",
	"\n", "\\n",
	"\r", "\\r",
)

func escapeField(s string) string {
	return fieldEscaper.Replace(s)
}
