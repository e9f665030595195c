// Package store implements the gateway's durable memory: conversations,
// messages, facts, scheduled tasks, outcomes, and lessons, backed by SQLite
// via modernc.org/sqlite (pure Go, no cgo) — the teacher's already-present
// driver, promoted here from a secondary dependency to the sole store
// backend since this gateway has no multi-tenant "managed mode" to justify
// the teacher's primary Postgres store (§2b).
package store

import "time"

type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

type Conversation struct {
	ID           string
	Channel      string
	SenderID     string
	StartedAt    time.Time
	UpdatedAt    time.Time
	LastActivity time.Time
	Status       ConversationStatus
	Summary      string
	Project      string
}

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
}

type Fact struct {
	SenderID        string
	Key             string
	Value           string
	SourceMessageID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type TaskRepeat string

const (
	RepeatOnce     TaskRepeat = "once"
	RepeatDaily    TaskRepeat = "daily"
	RepeatWeekly   TaskRepeat = "weekly"
	RepeatMonthly  TaskRepeat = "monthly"
	RepeatWeekdays TaskRepeat = "weekdays"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskDelivered TaskStatus = "delivered"
	TaskCancelled TaskStatus = "cancelled"
	TaskFailed    TaskStatus = "failed"
)

type TaskType string

const (
	TaskReminder TaskType = "reminder"
	TaskAction   TaskType = "action"
)

type ScheduledTask struct {
	ID           string
	SenderID     string
	Channel      string
	ReplyTarget  string
	Description  string
	DueAt        time.Time
	Repeat       TaskRepeat
	Status       TaskStatus
	TaskType     TaskType
	ActionPrompt string
	RetryCount   int
	LastError    string
	Project      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OutcomeSource string

const (
	OutcomeSourceConversation OutcomeSource = "conversation"
	OutcomeSourceHeartbeat    OutcomeSource = "heartbeat"
)

type Outcome struct {
	ID        string
	Timestamp time.Time
	SenderID  string
	Domain    string
	Score     int
	Lesson    string
	Source    OutcomeSource
}

type Lesson struct {
	ID          string
	SenderID    string
	Domain      string
	Rule        string
	Occurrences int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MaxLessonsPerDomain caps stored lessons per (sender, domain) pair per §4.4.
const MaxLessonsPerDomain = 20

type AuditRecord struct {
	ID            string
	Channel       string
	SenderID      string
	Provider      string
	Model         string
	Tokens        int
	ProcessingMs  int64
	Success       bool
	TraceID       string
	SpanID        string
	CreatedAt     time.Time
}

// ContextNeeds controls which optional BuildContext queries run, so a
// pipeline turn that doesn't mention anything recall-worthy skips the FTS
// query and pending-task scan entirely.
type ContextNeeds struct {
	Recall       bool
	PendingTasks bool
}

// ContextBundle is everything BuildContext assembles for a pipeline turn.
type ContextBundle struct {
	Conversation    Conversation
	RecentHistory   []Message
	Facts           []Fact
	Lessons         []Lesson
	RecentSummaries []string
	RecentOutcomes  []Outcome
	RecentRecall    []Message
	PendingTasks    []ScheduledTask
}

// RecentOutcomesLimit bounds the outcomes BuildContext loads per §4.1 step 6.
const RecentOutcomesLimit = 15

// RecentSummariesLimit bounds the closed-conversation summaries BuildContext
// loads per §4.1 step 6.
const RecentSummariesLimit = 5
