package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScheduleTask inserts a new pending task (reminder or action).
func (s *Store) ScheduleTask(ctx context.Context, t ScheduledTask) (ScheduledTask, error) {
	now := time.Now().UTC()
	t.ID = uuid.NewString()
	if t.Repeat == "" {
		t.Repeat = RepeatOnce
	}
	t.Status = TaskPending
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (
			id, sender_id, channel, reply_target, description, due_at, repeat,
			status, task_type, action_prompt, retry_count, last_error, project,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.SenderID, t.Channel, t.ReplyTarget, t.Description, t.DueAt, string(t.Repeat),
		string(t.Status), string(t.TaskType), nullableString(t.ActionPrompt), t.RetryCount,
		nullableString(t.LastError), nullableString(t.Project), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return ScheduledTask{}, wrap("ScheduleTask", err)
	}
	return t, nil
}

// PendingTasksForSender returns a sender's pending tasks, for idempotency
// screening and CANCEL_TASK/UPDATE_TASK id-prefix resolution.
func (s *Store) PendingTasksForSender(ctx context.Context, senderID string) ([]ScheduledTask, error) {
	return s.queryTasks(ctx, `
		SELECT id, sender_id, channel, reply_target, description, due_at, repeat,
			status, task_type, action_prompt, retry_count, last_error, project, created_at, updated_at
		FROM scheduled_tasks WHERE sender_id = ? AND status = ?
	`, senderID, string(TaskPending))
}

// DueTasksBefore returns pending tasks due at or before now, in due-time
// order, for the scheduler's poll cycle (§4.5).
func (s *Store) DueTasksBefore(ctx context.Context, now time.Time) ([]ScheduledTask, error) {
	return s.queryTasks(ctx, `
		SELECT id, sender_id, channel, reply_target, description, due_at, repeat,
			status, task_type, action_prompt, retry_count, last_error, project, created_at, updated_at
		FROM scheduled_tasks WHERE status = ? AND due_at <= ?
		ORDER BY due_at ASC
	`, string(TaskPending), now)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...interface{}) ([]ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("queryTasks", err)
	}
	defer rows.Close()

	var out []ScheduledTask
	for rows.Next() {
		var t ScheduledTask
		var repeat, status, taskType string
		var actionPrompt, lastError, project *string
		if err := rows.Scan(&t.ID, &t.SenderID, &t.Channel, &t.ReplyTarget, &t.Description, &t.DueAt,
			&repeat, &status, &taskType, &actionPrompt, &t.RetryCount, &lastError, &project,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, wrap("queryTasks.scan", err)
		}
		t.Repeat, t.Status, t.TaskType = TaskRepeat(repeat), TaskStatus(status), TaskType(taskType)
		if actionPrompt != nil {
			t.ActionPrompt = *actionPrompt
		}
		if lastError != nil {
			t.LastError = *lastError
		}
		if project != nil {
			t.Project = *project
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTask fetches a single task by id, returning errNotFound if absent.
func (s *Store) GetTask(ctx context.Context, id string) (ScheduledTask, error) {
	tasks, err := s.queryTasks(ctx, `
		SELECT id, sender_id, channel, reply_target, description, due_at, repeat,
			status, task_type, action_prompt, retry_count, last_error, project, created_at, updated_at
		FROM scheduled_tasks WHERE id = ?
	`, id)
	if err != nil {
		return ScheduledTask{}, err
	}
	if len(tasks) == 0 {
		return ScheduledTask{}, wrap("GetTask", errNotFound)
	}
	return tasks[0], nil
}

// CompleteTask marks a task delivered, or reschedules it to the next
// occurrence (computed by the caller via the scheduler's repeat-rule
// resolution) when repeat != once.
func (s *Store) CompleteTask(ctx context.Context, id string, nextDueAt *time.Time) error {
	now := time.Now().UTC()
	if nextDueAt != nil {
		_, err := s.db.ExecContext(ctx, `
			UPDATE scheduled_tasks SET due_at = ?, retry_count = 0, last_error = NULL, updated_at = ?
			WHERE id = ?
		`, *nextDueAt, now, id)
		return wrap("CompleteTask.reschedule", err)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks SET status = ?, updated_at = ? WHERE id = ?
	`, string(TaskDelivered), now, id)
	return wrap("CompleteTask", err)
}

// FailTask records a failure and retry count; the caller decides (based on
// the returned retryCount vs. its cap) whether to leave it pending for
// another attempt or mark it terminally failed.
func (s *Store) FailTask(ctx context.Context, id string, taskErr string, retryCount int, terminal bool) error {
	status := string(TaskPending)
	if terminal {
		status = string(TaskFailed)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks SET status = ?, last_error = ?, retry_count = ?, updated_at = ?
		WHERE id = ?
	`, status, taskErr, retryCount, time.Now().UTC(), id)
	return wrap("FailTask", err)
}

// CancelTask cancels the sender's pending task whose id starts with
// idPrefix. Returns errNotFound if no pending task matches.
func (s *Store) CancelTask(ctx context.Context, idPrefix, senderID string) (ScheduledTask, error) {
	task, err := s.matchByPrefix(ctx, idPrefix, senderID)
	if err != nil {
		return ScheduledTask{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks SET status = ?, updated_at = ? WHERE id = ?
	`, string(TaskCancelled), time.Now().UTC(), task.ID)
	if err != nil {
		return ScheduledTask{}, wrap("CancelTask", err)
	}
	return task, nil
}

// UpdateTask mutates the named fields on the sender's pending task matching
// idPrefix. Recognized fields: description, due_at (RFC3339), repeat.
func (s *Store) UpdateTask(ctx context.Context, idPrefix, senderID string, fields map[string]string) (ScheduledTask, error) {
	task, err := s.matchByPrefix(ctx, idPrefix, senderID)
	if err != nil {
		return ScheduledTask{}, err
	}
	if v, ok := fields["description"]; ok {
		task.Description = v
	}
	if v, ok := fields["due_at"]; ok {
		if t, perr := time.Parse(time.RFC3339, v); perr == nil {
			task.DueAt = t
		}
	}
	if v, ok := fields["repeat"]; ok {
		task.Repeat = TaskRepeat(v)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks SET description = ?, due_at = ?, repeat = ?, updated_at = ? WHERE id = ?
	`, task.Description, task.DueAt, string(task.Repeat), time.Now().UTC(), task.ID)
	if err != nil {
		return ScheduledTask{}, wrap("UpdateTask", err)
	}
	return task, nil
}

func (s *Store) matchByPrefix(ctx context.Context, idPrefix, senderID string) (ScheduledTask, error) {
	pending, err := s.PendingTasksForSender(ctx, senderID)
	if err != nil {
		return ScheduledTask{}, err
	}
	for _, t := range pending {
		if strings.HasPrefix(t.ID, idPrefix) {
			return t, nil
		}
	}
	return ScheduledTask{}, wrap("matchByPrefix", errNotFound)
}
