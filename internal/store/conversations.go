package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// GetOrCreateConversation returns the sender's active conversation on this
// channel if its last_activity is within the idle window, otherwise opens a
// new one. A sender has at most one active conversation per channel (§3).
func (s *Store) GetOrCreateConversation(ctx context.Context, channel, senderID string) (Conversation, error) {
	var c Conversation
	var summary, project sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, channel, sender_id, started_at, updated_at, last_activity, status, summary, project
		FROM conversations
		WHERE channel = ? AND sender_id = ? AND status = ?
		ORDER BY last_activity DESC
		LIMIT 1
	`, channel, senderID, ConversationActive).Scan(
		&c.ID, &c.Channel, &c.SenderID, &c.StartedAt, &c.UpdatedAt, &c.LastActivity, &c.Status, &summary, &project,
	)
	now := time.Now().UTC()
	if err == nil {
		c.Summary = summary.String
		c.Project = project.String
		if now.Sub(c.LastActivity) <= s.idleTimeout {
			return c, nil
		}
		if err := s.CloseConversation(ctx, c.ID, c.Summary); err != nil {
			return Conversation{}, wrap("GetOrCreateConversation.close", err)
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, wrap("GetOrCreateConversation.lookup", err)
	}

	c = Conversation{
		ID:           uuid.NewString(),
		Channel:      channel,
		SenderID:     senderID,
		StartedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
		Status:       ConversationActive,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, channel, sender_id, started_at, updated_at, last_activity, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Channel, c.SenderID, c.StartedAt, c.UpdatedAt, c.LastActivity, c.Status)
	if err != nil {
		return Conversation{}, wrap("GetOrCreateConversation.insert", err)
	}
	return c, nil
}

// touchConversation bumps last_activity/updated_at, called after every
// appended message.
func (s *Store) touchConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_activity = ?, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), time.Now().UTC(), id,
	)
	return wrap("touchConversation", err)
}

// SetConversationProject tags a conversation with a project scope, used by
// PROJECT_ACTIVATE marker handling (§3 Project lifecycle: activating a
// project closes the current conversation so the next turn opens a fresh,
// project-tagged one).
func (s *Store) SetConversationProject(ctx context.Context, id, project string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET project = ?, updated_at = ? WHERE id = ?`,
		nullableString(project), time.Now().UTC(), id,
	)
	return wrap("SetConversationProject", err)
}

// CloseConversation marks a conversation closed with an optional summary.
func (s *Store) CloseConversation(ctx context.Context, id, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = ?, summary = ?, updated_at = ? WHERE id = ?
	`, ConversationClosed, nullableString(summary), time.Now().UTC(), id)
	return wrap("CloseConversation", err)
}

// FindIdleConversations returns active conversations whose last_activity is
// older than threshold, for the summarizer loop.
func (s *Store) FindIdleConversations(ctx context.Context, olderThan time.Time) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, sender_id, started_at, updated_at, last_activity, status, summary, project
		FROM conversations
		WHERE status = ? AND last_activity < ?
	`, ConversationActive, olderThan)
	if err != nil {
		return nil, wrap("FindIdleConversations", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var summary, project sql.NullString
		if err := rows.Scan(&c.ID, &c.Channel, &c.SenderID, &c.StartedAt, &c.UpdatedAt, &c.LastActivity, &c.Status, &summary, &project); err != nil {
			return nil, wrap("FindIdleConversations.scan", err)
		}
		c.Summary = summary.String
		c.Project = project.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetRecentSummaries returns the last n closed-conversation summaries for a
// sender, most recent first, for use as long-term context.
func (s *Store) GetRecentSummaries(ctx context.Context, senderID string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT summary FROM conversations
		WHERE sender_id = ? AND status = ? AND summary IS NOT NULL AND summary != ''
		ORDER BY updated_at DESC LIMIT ?
	`, senderID, ConversationClosed, n)
	if err != nil {
		return nil, wrap("GetRecentSummaries", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, wrap("GetRecentSummaries.scan", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
