package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StoreAuditRecord persists a per-interaction audit row, optionally carrying
// the OpenTelemetry trace/span id pair active when the call was made (§3).
func (s *Store) StoreAuditRecord(ctx context.Context, rec AuditRecord) error {
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	success := 0
	if rec.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, channel, sender_id, provider, model, tokens, processing_ms,
			success, trace_id, span_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Channel, rec.SenderID, nullableString(rec.Provider), nullableString(rec.Model),
		rec.Tokens, rec.ProcessingMs, success, nullableString(rec.TraceID), nullableString(rec.SpanID), rec.CreatedAt)
	return wrap("StoreAuditRecord", err)
}
