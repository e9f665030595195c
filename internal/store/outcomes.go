package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StoreOutcome appends a reward record (§3). Outcomes are append-only
// working memory; no upsert.
func (s *Store) StoreOutcome(ctx context.Context, senderID, domain string, score int, lesson string, source OutcomeSource) (Outcome, error) {
	o := Outcome{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		SenderID:  senderID,
		Domain:    domain,
		Score:     score,
		Lesson:    lesson,
		Source:    source,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (id, timestamp, sender_id, domain, score, lesson, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.Timestamp, o.SenderID, o.Domain, o.Score, o.Lesson, string(o.Source))
	if err != nil {
		return Outcome{}, wrap("StoreOutcome", err)
	}
	return o, nil
}

// GetRecentOutcomesAll returns the last n outcomes for a sender across all
// domains, most recent first, for the context-build step's outcomes block
// (§4.1 step 6).
func (s *Store) GetRecentOutcomesAll(ctx context.Context, senderID string, n int) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, sender_id, domain, score, lesson, source
		FROM outcomes WHERE sender_id = ?
		ORDER BY timestamp DESC LIMIT ?
	`, senderID, n)
	if err != nil {
		return nil, wrap("GetRecentOutcomesAll", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var source string
		if err := rows.Scan(&o.ID, &o.Timestamp, &o.SenderID, &o.Domain, &o.Score, &o.Lesson, &source); err != nil {
			return nil, wrap("GetRecentOutcomesAll.scan", err)
		}
		o.Source = OutcomeSource(source)
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetRecentOutcomes returns the last n outcomes for a sender in a domain,
// most recent first.
func (s *Store) GetRecentOutcomes(ctx context.Context, senderID, domain string, n int) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, sender_id, domain, score, lesson, source
		FROM outcomes WHERE sender_id = ? AND domain = ?
		ORDER BY timestamp DESC LIMIT ?
	`, senderID, domain, n)
	if err != nil {
		return nil, wrap("GetRecentOutcomes", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var source string
		if err := rows.Scan(&o.ID, &o.Timestamp, &o.SenderID, &o.Domain, &o.Score, &o.Lesson, &source); err != nil {
			return nil, wrap("GetRecentOutcomes.scan", err)
		}
		o.Source = OutcomeSource(source)
		out = append(out, o)
	}
	return out, rows.Err()
}
