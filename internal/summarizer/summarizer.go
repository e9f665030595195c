// Package summarizer closes idle conversations (§4.6): on a fixed
// interval it finds active conversations that have gone quiet, asks the
// provider for a short summary, closes them with that summary, and
// extracts any salient facts into the fact store. Runs at low priority —
// a failed summary just leaves the conversation open for the next pass.
//
// Grounded on the teacher's periodic-loop shape, generalized to drive
// store.FindIdleConversations/CloseConversation instead of the teacher's
// session-expiry sweep.
package summarizer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/providers"
	"github.com/nextlevelbuilder/omegagate/internal/store"
)

type Config struct {
	Interval      time.Duration
	IdleThreshold time.Duration
}

type Summarizer struct {
	cfg      Config
	store    *store.Store
	provider providers.Provider
}

func New(cfg Config, st *store.Store, provider providers.Provider) *Summarizer {
	return &Summarizer{cfg: cfg, store: st, provider: provider}
}

func (s *Summarizer) Run(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Summarizer) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.IdleThreshold)
	idle, err := s.store.FindIdleConversations(ctx, cutoff)
	if err != nil {
		slog.Error("summarizer: find idle conversations failed", "error", err)
		return
	}
	for _, conv := range idle {
		s.summarizeOne(ctx, conv)
	}
}

func (s *Summarizer) summarizeOne(ctx context.Context, conv store.Conversation) {
	history, err := s.store.RecentHistory(ctx, conv.ID)
	if err != nil {
		slog.Error("summarizer: load history failed", "conversation", conv.ID, "error", err)
		return
	}
	if len(history) == 0 {
		if err := s.store.CloseConversation(ctx, conv.ID, ""); err != nil {
			slog.Error("summarizer: close empty conversation failed", "conversation", conv.ID, "error", err)
		}
		return
	}

	var transcript strings.Builder
	for _, m := range history {
		transcript.WriteString(string(m.Role))
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}

	prompt := "Summarize this conversation in two or three sentences, then list any durable facts worth remembering about the user as JSON on a final line: {\"facts\": {\"key\": \"value\"}}. If there are no durable facts, use {\"facts\": {}}.\n\n" + transcript.String()
	resp, err := s.provider.Complete(ctx, providers.Context{Message: prompt}, nil)
	if err != nil {
		slog.Error("summarizer: provider call failed", "conversation", conv.ID, "error", err)
		return
	}

	summary, facts := splitSummaryAndFacts(resp.Text)
	if err := s.store.CloseConversation(ctx, conv.ID, summary); err != nil {
		slog.Error("summarizer: close conversation failed", "conversation", conv.ID, "error", err)
		return
	}
	for k, v := range facts {
		if err := s.store.StoreFact(ctx, conv.SenderID, k, v, ""); err != nil {
			slog.Warn("summarizer: store fact failed", "conversation", conv.ID, "key", k, "error", err)
		}
	}
}

// splitSummaryAndFacts pulls the trailing {"facts": {...}} JSON line off the
// model's response, returning the remaining text as the summary.
func splitSummaryAndFacts(text string) (string, map[string]string) {
	idx := strings.LastIndex(text, `{"facts"`)
	if idx < 0 {
		return strings.TrimSpace(text), nil
	}
	summary := strings.TrimSpace(text[:idx])
	var payload struct {
		Facts map[string]string `json:"facts"`
	}
	if err := json.Unmarshal([]byte(text[idx:]), &payload); err != nil {
		return strings.TrimSpace(text), nil
	}
	return summary, payload.Facts
}
