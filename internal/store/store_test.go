package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateConversationReusesActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, err := s.GetOrCreateConversation(ctx, "telegram", "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	c2, err := s.GetOrCreateConversation(ctx, "telegram", "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	if c1.ID != c2.ID {
		t.Errorf("expected the same active conversation to be reused, got %s and %s", c1.ID, c2.ID)
	}
}

func TestGetOrCreateConversationOpensNewAfterIdle(t *testing.T) {
	s := newTestStore(t)
	s.idleTimeout = time.Millisecond
	ctx := context.Background()

	c1, err := s.GetOrCreateConversation(ctx, "telegram", "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	c2, err := s.GetOrCreateConversation(ctx, "telegram", "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	if c1.ID == c2.ID {
		t.Error("expected a new conversation after the idle window elapsed")
	}
}

func TestAppendMessageAndRecentHistoryOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _ := s.GetOrCreateConversation(ctx, "telegram", "user-1")

	if _, err := s.AppendMessage(ctx, conv.ID, MessageRoleUser, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMessage(ctx, conv.ID, MessageRoleAssistant, "second"); err != nil {
		t.Fatal(err)
	}

	history, err := s.RecentHistory(ctx, conv.ID)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Content != "first" || history[1].Content != "second" {
		t.Errorf("expected oldest-first ordering, got %q then %q", history[0].Content, history[1].Content)
	}
}

func TestSearchRecallFindsAcrossConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv, _ := s.GetOrCreateConversation(ctx, "telegram", "user-1")
	if _, err := s.AppendMessage(ctx, conv.ID, MessageRoleUser, "my favorite color is teal"); err != nil {
		t.Fatal(err)
	}

	results, err := s.SearchRecall(ctx, "user-1", "teal")
	if err != nil {
		t.Fatalf("SearchRecall: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 recall hit, got %d", len(results))
	}
}

func TestStoreFactUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.StoreFact(ctx, "user-1", "preferred_language", "en", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreFact(ctx, "user-1", "preferred_language", "fr", ""); err != nil {
		t.Fatal(err)
	}
	facts, err := s.GetFacts(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].Value != "fr" {
		t.Errorf("expected a single upserted fact with value fr, got %+v", facts)
	}
}

func TestScheduleAndCancelTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.ScheduleTask(ctx, ScheduledTask{
		SenderID:    "user-1",
		Channel:     "telegram",
		ReplyTarget: "12345",
		Description: "water the plants",
		DueAt:       time.Now().Add(time.Hour),
		TaskType:    TaskReminder,
	})
	if err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}

	cancelled, err := s.CancelTask(ctx, task.ID[:8], "user-1")
	if err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if cancelled.ID != task.ID {
		t.Errorf("expected to cancel %s, got %s", task.ID, cancelled.ID)
	}

	pending, err := s.PendingTasksForSender(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending tasks after cancellation, got %d", len(pending))
	}
}

func TestDueTasksBeforeOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	late, _ := s.ScheduleTask(ctx, ScheduledTask{SenderID: "user-1", Channel: "telegram", ReplyTarget: "1", Description: "later", DueAt: now.Add(-time.Minute), TaskType: TaskReminder})
	early, _ := s.ScheduleTask(ctx, ScheduledTask{SenderID: "user-1", Channel: "telegram", ReplyTarget: "1", Description: "earlier", DueAt: now.Add(-time.Hour), TaskType: TaskReminder})

	due, err := s.DueTasksBefore(ctx, now)
	if err != nil {
		t.Fatalf("DueTasksBefore: %v", err)
	}
	if len(due) != 2 || due[0].ID != early.ID || due[1].ID != late.ID {
		t.Errorf("expected due-time ascending order [%s, %s], got %v", early.ID, late.ID, due)
	}
}

func TestStoreLessonDedupesAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.StoreLesson(ctx, "user-1", "cooking", "always preheat the oven"); err != nil {
		t.Fatal(err)
	}
	l, err := s.StoreLesson(ctx, "user-1", "cooking", "always preheat the oven")
	if err != nil {
		t.Fatal(err)
	}
	if l.Occurrences != 2 {
		t.Errorf("expected occurrences to bump to 2, got %d", l.Occurrences)
	}

	lessons, err := s.GetLessons(ctx, "user-1", "cooking")
	if err != nil {
		t.Fatal(err)
	}
	if len(lessons) != 1 {
		t.Errorf("expected a single deduplicated lesson, got %d", len(lessons))
	}
}

func TestFindIdleConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.GetOrCreateConversation(ctx, "telegram", "user-1"); err != nil {
		t.Fatal(err)
	}

	idle, err := s.FindIdleConversations(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("FindIdleConversations: %v", err)
	}
	if len(idle) != 1 {
		t.Errorf("expected 1 idle conversation when threshold is in the future, got %d", len(idle))
	}

	notIdle, err := s.FindIdleConversations(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(notIdle) != 0 {
		t.Errorf("expected 0 idle conversations when threshold is in the past, got %d", len(notIdle))
	}
}
