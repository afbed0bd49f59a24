package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sitepulse/analytics-api/internal/domain"
	"github.com/sitepulse/analytics-api/internal/rollup"
)

type Writer struct {
	db *DB
}

func NewWriter(db *DB) *Writer { return &Writer{db: db} }

// eventKey derives a stable dedupe key so retried deliveries collapse into
// a single row via ON CONFLICT DO NOTHING. Hex SHA-256 keeps it fixed length.
func eventKey(ev domain.Event) string {
	composite := fmt.Sprintf("%s|%s|%s|%d", ev.Type, ev.Slug, ev.SessionID, ev.OccurredAt.UnixNano())
	sum := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(sum[:])
}

// StoreBatch persists one flushed batch: raw events (idempotently, with the
// derived domain in place of any raw contact attribute) and the per-batch
// rollups. Rollup rows are keyed (batch_id, slug); aggregation stays scoped
// to a single batch, so nothing is merged server-side.
func (w *Writer) StoreBatch(ctx context.Context, batchID string, events []domain.Event, rollups []rollup.Rollup) error {
	if _, err := w.InsertEvents(ctx, events); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	if err := w.InsertRollups(ctx, batchID, rollups); err != nil {
		return fmt.Errorf("insert rollups: %w", err)
	}
	return nil
}

// InsertEvents inserts events with ON CONFLICT DO NOTHING to enforce
// idempotency. The returned count is rows actually inserted.
func (w *Writer) InsertEvents(ctx context.Context, items []domain.Event) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	cols := []string{"event_key", "event_type", "slug", "session_id", "occurred_at", "identity_domain"}
	placeholders := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*len(cols))

	argi := 1
	for _, ev := range items {
		ph := make([]string, 0, len(cols))
		for _, v := range []any{
			eventKey(ev),
			string(ev.Type),
			ev.Slug,
			ev.SessionID,
			ev.OccurredAt,
			domain.DeriveDomain(ev.Identity).Domain,
		} {
			args = append(args, v)
			ph = append(ph, fmt.Sprintf("$%d", argi))
			argi++
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sql := "INSERT INTO events (" + strings.Join(cols, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" ON CONFLICT DO NOTHING"

	ct, err := w.db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// InsertRollups writes one row per (batch, slug).
func (w *Writer) InsertRollups(ctx context.Context, batchID string, items []rollup.Rollup) error {
	if len(items) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*5)

	argi := 1
	for _, r := range items {
		ph := make([]string, 0, 5)
		for _, v := range []any{batchID, r.Slug, r.TotalEvents, r.UniqueSessions, r.DomainAnalysis.Domain} {
			args = append(args, v)
			ph = append(ph, fmt.Sprintf("$%d", argi))
			argi++
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sql := "INSERT INTO rollups (batch_id, slug, total_events, unique_sessions, domain) VALUES " +
		strings.Join(placeholders, ",")

	_, err := w.db.Pool.Exec(ctx, sql, args...)
	return err
}
