package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppendMessage stores a turn and bumps the owning conversation's activity
// clock. The FTS5 shadow table is kept in sync by the messages_ai trigger.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, role MessageRole, content string) (Message, error) {
	m := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, string(m.Role), m.Content, m.CreatedAt)
	if err != nil {
		return Message{}, wrap("AppendMessage", err)
	}
	if err := s.touchConversation(ctx, conversationID); err != nil {
		return m, err
	}
	return m, nil
}

// RecentHistory returns up to the store's configured history window for a
// conversation, oldest first, matching the Context.History ordering
// invariant (§3).
func (s *Store) RecentHistory(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, conversationID, s.historyLimit)
	if err != nil {
		return nil, wrap("RecentHistory", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, wrap("RecentHistory.scan", err)
		}
		m.Role = MessageRole(role)
		out = append(out, m)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// SearchRecall runs a full-text search over all of a sender's messages
// across conversations, for the "Recall" half of ContextNeeds. Results are
// ranked by FTS5's built-in bm25 ordering.
func (s *Store) SearchRecall(ctx context.Context, senderID, query string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.role, m.content, m.created_at
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ? AND c.sender_id = ?
		ORDER BY rank
		LIMIT ?
	`, query, senderID, s.recallLimit)
	if err != nil {
		return nil, wrap("SearchRecall", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, wrap("SearchRecall.scan", err)
		}
		m.Role = MessageRole(role)
		out = append(out, m)
	}
	return out, rows.Err()
}
