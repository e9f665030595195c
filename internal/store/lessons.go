package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StoreLesson upserts a long-term behavioral rule: an exact (sender, domain,
// rule) match bumps its occurrence counter instead of duplicating, and the
// total lessons kept per (sender, domain) is capped at MaxLessonsPerDomain,
// evicting the oldest by updated_at when the cap would be exceeded.
func (s *Store) StoreLesson(ctx context.Context, senderID, domain, rule string) (Lesson, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE lessons SET occurrences = occurrences + 1, updated_at = ?
		WHERE sender_id = ? AND domain = ? AND rule = ?
	`, now, senderID, domain, rule)
	if err != nil {
		return Lesson{}, wrap("StoreLesson.update", err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return s.getLesson(ctx, senderID, domain, rule)
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lessons WHERE sender_id = ? AND domain = ?`, senderID, domain,
	).Scan(&count); err != nil {
		return Lesson{}, wrap("StoreLesson.count", err)
	}
	if count >= MaxLessonsPerDomain {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM lessons WHERE id = (
				SELECT id FROM lessons WHERE sender_id = ? AND domain = ?
				ORDER BY updated_at ASC LIMIT 1
			)
		`, senderID, domain); err != nil {
			return Lesson{}, wrap("StoreLesson.evict", err)
		}
	}

	l := Lesson{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		Domain:      domain,
		Rule:        rule,
		Occurrences: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lessons (id, sender_id, domain, rule, occurrences, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.SenderID, l.Domain, l.Rule, l.Occurrences, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return Lesson{}, wrap("StoreLesson.insert", err)
	}
	return l, nil
}

func (s *Store) getLesson(ctx context.Context, senderID, domain, rule string) (Lesson, error) {
	var l Lesson
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sender_id, domain, rule, occurrences, created_at, updated_at
		FROM lessons WHERE sender_id = ? AND domain = ? AND rule = ?
	`, senderID, domain, rule).Scan(&l.ID, &l.SenderID, &l.Domain, &l.Rule, &l.Occurrences, &l.CreatedAt, &l.UpdatedAt)
	return l, wrap("getLesson", err)
}

// GetAllLessons returns every lesson recorded for a sender across all
// domains, most-reinforced first, for the context-build step's
// all-lessons-for-the-sender block (§4.1 step 6).
func (s *Store) GetAllLessons(ctx context.Context, senderID string) ([]Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, domain, rule, occurrences, created_at, updated_at
		FROM lessons WHERE sender_id = ?
		ORDER BY occurrences DESC
	`, senderID)
	if err != nil {
		return nil, wrap("GetAllLessons", err)
	}
	defer rows.Close()

	var out []Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.SenderID, &l.Domain, &l.Rule, &l.Occurrences, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, wrap("GetAllLessons.scan", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLessons returns all lessons recorded for a sender in a domain.
func (s *Store) GetLessons(ctx context.Context, senderID, domain string) ([]Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, domain, rule, occurrences, created_at, updated_at
		FROM lessons WHERE sender_id = ? AND domain = ?
		ORDER BY occurrences DESC
	`, senderID, domain)
	if err != nil {
		return nil, wrap("GetLessons", err)
	}
	defer rows.Close()

	var out []Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.SenderID, &l.Domain, &l.Rule, &l.Occurrences, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, wrap("GetLessons.scan", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
