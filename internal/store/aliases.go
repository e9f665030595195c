package store

import (
	"context"
	"time"
)

// CreateAlias records that aliasSenderID refers to the same person as
// canonicalSenderID. Re-pointing an existing alias overwrites it.
func (s *Store) CreateAlias(ctx context.Context, aliasSenderID, canonicalSenderID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_aliases (alias_sender_id, canonical_sender_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(alias_sender_id) DO UPDATE SET canonical_sender_id = excluded.canonical_sender_id
	`, aliasSenderID, canonicalSenderID, time.Now().UTC())
	return wrap("CreateAlias", err)
}

// FindCanonicalUser resolves senderID through the alias table. Senders with
// no recorded alias are their own canonical id.
func (s *Store) FindCanonicalUser(ctx context.Context, senderID string) (string, error) {
	var canonical string
	err := s.db.QueryRowContext(ctx,
		`SELECT canonical_sender_id FROM user_aliases WHERE alias_sender_id = ?`, senderID,
	).Scan(&canonical)
	if err != nil {
		return senderID, nil
	}
	return canonical, nil
}

// ResolveSenderID is the pipeline's entry-point identity step: it resolves
// senderID to its canonical form, a no-op chain lookup away from
// FindCanonicalUser in the common case where aliases are never chained.
func (s *Store) ResolveSenderID(ctx context.Context, channel, senderID string) (string, error) {
	return s.FindCanonicalUser(ctx, senderID)
}

// HasAnyConversation reports whether a sender has ever started a
// conversation, used by the pipeline's auto-alias heuristic to tell a
// brand-new sender from a returning one.
func (s *Store) HasAnyConversation(ctx context.Context, senderID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversations WHERE sender_id = ?`, senderID).Scan(&n)
	if err != nil {
		return false, wrap("HasAnyConversation", err)
	}
	return n > 0, nil
}

// SoleOtherSender returns the one other canonical sender id with any
// conversation history, if there is exactly one, for the pipeline's
// auto-alias heuristic (§4.1 step 1: "one physical human typically owns
// multiple channels" — a newly observed sender with exactly one existing
// user in the store is assumed to be that same person on a new channel).
func (s *Store) SoleOtherSender(ctx context.Context, exclude string) (string, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT sender_id FROM conversations WHERE sender_id != ? LIMIT 2`, exclude)
	if err != nil {
		return "", false, wrap("SoleOtherSender", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", false, wrap("SoleOtherSender.scan", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", false, wrap("SoleOtherSender.rows", err)
	}
	if len(ids) == 1 {
		return ids[0], true, nil
	}
	return "", false, nil
}
