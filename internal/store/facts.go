package store

import (
	"context"
	"time"
)

// StoreFact upserts a (sender_id, key) fact, per the §3 unique constraint.
func (s *Store) StoreFact(ctx context.Context, senderID, key, value, sourceMessageID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (sender_id, key, value, source_message_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sender_id, key) DO UPDATE SET
			value = excluded.value,
			source_message_id = excluded.source_message_id,
			updated_at = excluded.updated_at
	`, senderID, key, value, nullableString(sourceMessageID), now, now)
	return wrap("StoreFact", err)
}

// GetFacts returns all facts recorded for a sender.
func (s *Store) GetFacts(ctx context.Context, senderID string) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_id, key, value, source_message_id, created_at, updated_at
		FROM facts WHERE sender_id = ?
	`, senderID)
	if err != nil {
		return nil, wrap("GetFacts", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var f Fact
		var src *string
		if err := rows.Scan(&f.SenderID, &f.Key, &f.Value, &src, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, wrap("GetFacts.scan", err)
		}
		if src != nil {
			f.SourceMessageID = *src
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
