// Package scheduler runs the background poll loop that delivers due
// reminders and executes due actions (§4.5).
//
// Grounded on the teacher's cron-lane dispatch in cmd/gateway_cron.go
// (route a due job through the provider, publish its result outbound),
// generalized from the teacher's job-queue model to this spec's
// store-backed ScheduledTask poll loop, and using the teacher's
// github.com/adhocore/gronx dependency for repeat-rule arithmetic instead
// of hand-rolled calendar math.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/omegagate/internal/apperror"
	"github.com/nextlevelbuilder/omegagate/internal/bus"
	"github.com/nextlevelbuilder/omegagate/internal/channels"
	"github.com/nextlevelbuilder/omegagate/internal/marker"
	"github.com/nextlevelbuilder/omegagate/internal/providers"
	"github.com/nextlevelbuilder/omegagate/internal/store"
)

// maxRetries caps the failed attempts of a reminder/action: the task stays
// pending after each earlier failure, and the maxRetries-th failure marks it
// terminally failed (§4.5 "bounded" retry count).
const maxRetries = 5

// TickEvent is broadcast after each poll, payload is the number of tasks
// that were due.
const TickEvent = "scheduler:tick"

// wakeSubscriberID is the bus subscriber id under which the scheduler listens
// for marker.TasksChangedEvent, to poll early instead of waiting out
// pollInterval.
const wakeSubscriberID = "scheduler-wake"

// Scheduler polls store.DueTasksBefore at a fixed interval and delivers or
// executes each due task.
type Scheduler struct {
	store        *store.Store
	channels     *channels.Registry
	actionProv   providers.Provider
	toolExec     providers.ToolExecutor
	pollInterval time.Duration
	grace        time.Duration
	events       bus.EventPublisher
	wake         chan struct{}
}

// New wires a Scheduler. events, if non-nil, is both subscribed to (a
// "tasks:changed" broadcast triggers an immediate poll instead of waiting
// for the next tick, so a reminder due moments from now isn't stuck behind
// pollInterval) and published to (TickEvent, after every poll).
func New(st *store.Store, chReg *channels.Registry, actionProv providers.Provider, toolExec providers.ToolExecutor, pollInterval time.Duration, events bus.EventPublisher) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 60 * time.Second
	}
	s := &Scheduler{
		store: st, channels: chReg, actionProv: actionProv, toolExec: toolExec,
		pollInterval: pollInterval, grace: 30 * time.Second,
		events: events, wake: make(chan struct{}, 1),
	}
	if events != nil {
		events.Subscribe(wakeSubscriberID, func(e bus.Event) {
			if e.Name != marker.TasksChangedEvent {
				return
			}
			select {
			case s.wake <- struct{}{}:
			default:
			}
		})
	}
	return s
}

// Run polls until ctx is cancelled and then returns. Polls run synchronously
// on this loop, so a poll already under way finishes (with the cancelled
// ctx) before Run returns; no separate grace deadline is applied.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if s.events != nil {
				s.events.Unsubscribe(wakeSubscriberID)
			}
			return
		case <-ticker.C:
			s.poll(ctx)
		case <-s.wake:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	due, err := s.store.DueTasksBefore(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("scheduler: poll query failed", "error", err)
		return
	}
	for _, task := range due {
		// Cancellation observed between polls: re-read status before acting.
		fresh, err := s.store.GetTask(ctx, task.ID)
		if err != nil || fresh.Status != store.TaskPending {
			continue
		}
		s.runTask(ctx, fresh)
	}
	if s.events != nil {
		s.events.Broadcast(bus.Event{Name: TickEvent, Payload: len(due)})
	}
}

func (s *Scheduler) runTask(ctx context.Context, task store.ScheduledTask) {
	if task.TaskType == store.TaskAction {
		s.runAction(ctx, task)
		return
	}
	s.runReminder(ctx, task)
}

func (s *Scheduler) runReminder(ctx context.Context, task store.ScheduledTask) {
	err := s.channels.Send(ctx, task.Channel, bus.OutgoingMessage{Text: task.Description, ReplyTarget: task.ReplyTarget})
	if err != nil {
		s.fail(ctx, task, err)
		return
	}
	s.complete(ctx, task)
}

// actionOutcomeHeader is the sentinel prefix a provider emits for an action
// task's result, e.g. "ACTION_OUTCOME: success | Paid the electricity bill".
var actionOutcomeHeader = "ACTION_OUTCOME:"

func (s *Scheduler) runAction(ctx context.Context, task store.ScheduledTask) {
	prompt := fmt.Sprintf("Scheduled action due: %s\n\n%s\n\nWhen finished, end your response with a line formatted exactly as:\nACTION_OUTCOME: success|failure | <one-line summary>", task.Description, task.ActionPrompt)
	resp, err := s.actionProv.Complete(ctx, providers.Context{
		Message:      prompt,
		ToolsEnabled: s.toolExec != nil,
	}, s.toolExec)
	if err != nil {
		s.fail(ctx, task, err)
		return
	}

	success, summary, ok := parseActionOutcome(resp.Text)
	if !ok {
		s.fail(ctx, task, fmt.Errorf("scheduler: action response missing %s sentinel", actionOutcomeHeader))
		return
	}

	if err := s.store.StoreAuditRecord(ctx, store.AuditRecord{
		Channel: task.Channel, SenderID: task.SenderID, Provider: s.actionProv.Name(),
		Success: success,
	}); err != nil {
		slog.Warn("scheduler: audit record write failed", "error", err)
	}

	if task.Channel != "" && task.ReplyTarget != "" {
		if err := s.channels.Send(ctx, task.Channel, bus.OutgoingMessage{Text: summary, ReplyTarget: task.ReplyTarget}); err != nil {
			slog.Warn("scheduler: action outcome delivery failed", "error", err)
		}
	}

	if !success {
		s.fail(ctx, task, fmt.Errorf("action reported failure: %s", summary))
		return
	}
	s.complete(ctx, task)
}

func parseActionOutcome(text string) (success bool, summary string, ok bool) {
	idx := strings.Index(text, actionOutcomeHeader)
	if idx < 0 {
		return false, "", false
	}
	rest := strings.TrimSpace(text[idx+len(actionOutcomeHeader):])
	parts := strings.SplitN(rest, "|", 2)
	if len(parts) != 2 {
		return false, "", false
	}
	status := strings.ToLower(strings.TrimSpace(parts[0]))
	return status == "success", strings.TrimSpace(parts[1]), true
}

func (s *Scheduler) complete(ctx context.Context, task store.ScheduledTask) {
	if task.Repeat == store.RepeatOnce || task.Repeat == "" {
		if err := s.store.CompleteTask(ctx, task.ID, nil); err != nil {
			slog.Error("scheduler: mark complete failed", "task", task.ID, "error", err)
		}
		return
	}
	next, err := nextOccurrence(task.Repeat, task.DueAt)
	if err != nil {
		slog.Error("scheduler: repeat-rule resolution failed", "task", task.ID, "repeat", task.Repeat, "error", err)
		if cerr := s.store.CompleteTask(ctx, task.ID, nil); cerr != nil {
			slog.Error("scheduler: mark complete failed", "task", task.ID, "error", cerr)
		}
		return
	}
	if err := s.store.CompleteTask(ctx, task.ID, &next); err != nil {
		slog.Error("scheduler: reschedule failed", "task", task.ID, "error", err)
	}
}

func (s *Scheduler) fail(ctx context.Context, task store.ScheduledTask, taskErr error) {
	slog.Warn("scheduler: task failed", "task", task.ID, "error", taskErr)
	retry := task.RetryCount + 1
	terminal := retry >= maxRetries
	if err := s.store.FailTask(ctx, task.ID, taskErr.Error(), retry, terminal); err != nil {
		slog.Error("scheduler: fail-task write failed", "task", task.ID, "error", apperror.New(apperror.KindStore, "FailTask", err))
	}
	if !terminal && task.TaskType == store.TaskAction {
		// Exponential backoff: push the due time out before the next poll picks it up again.
		backoff := time.Duration(1<<uint(retry)) * time.Minute
		next := time.Now().UTC().Add(backoff)
		if err := s.store.UpdateTask(ctx, task.ID, task.SenderID, map[string]string{"due_at": next.Format(time.RFC3339)}); err != nil {
			slog.Warn("scheduler: backoff reschedule failed", "task", task.ID, "error", err)
		}
	}
}

// nextOccurrence resolves a repeat rule into the next due time strictly
// after prev, expressed as a cron-equivalent expression and resolved via
// gronx.NextTickAfter so weekly/monthly stepping inherits correct calendar
// handling instead of hand-rolled date arithmetic.
func nextOccurrence(repeat store.TaskRepeat, prev time.Time) (time.Time, error) {
	expr, err := cronExpr(repeat, prev)
	if err != nil {
		return time.Time{}, err
	}
	return gronx.NextTickAfter(expr, prev, false)
}

func cronExpr(repeat store.TaskRepeat, ref time.Time) (string, error) {
	minute, hour, dom, dow := ref.Minute(), ref.Hour(), ref.Day(), int(ref.Weekday())
	switch repeat {
	case store.RepeatDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case store.RepeatWeekly:
		return fmt.Sprintf("%d %d * * %d", minute, hour, dow), nil
	case store.RepeatMonthly:
		return fmt.Sprintf("%d %d %d * *", minute, hour, dom), nil
	case store.RepeatWeekdays:
		return fmt.Sprintf("%d %d * * 1-5", minute, hour), nil
	default:
		return "", fmt.Errorf("scheduler: unsupported repeat rule %q", repeat)
	}
}
