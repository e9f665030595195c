package marker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/bus"
	"github.com/nextlevelbuilder/omegagate/internal/store"
)

// TasksChangedEvent is broadcast whenever a marker creates, cancels, or
// updates a scheduled task, so the scheduler can poll immediately instead of
// waiting out its interval for a reminder due in the next few seconds.
const TasksChangedEvent = "tasks:changed"

// HeartbeatChecklistFactKey is the Fact key the heartbeat loop reads to
// build its checklist block, appended to by HEARTBEAT_ADD.
const HeartbeatChecklistFactKey = "heartbeat_checklist"

// PreferredLanguageFactKey is the Fact key LANG_SWITCH updates.
const PreferredLanguageFactKey = "preferred_language"

// SkillUpdater appends a lesson line to a skill's on-disk definition (§4.8).
type SkillUpdater interface {
	AppendLesson(skillName, lesson string) error
}

// ProjectActivator switches the sender's active project and closes the
// current conversation, per §3's Project lifecycle rule.
type ProjectActivator interface {
	Activate(ctx context.Context, senderID, project string) error
}

// QRSource hands back the most recently published WhatsApp pairing QR
// payload, if any.
type QRSource interface {
	Latest() (string, bool)
}

// Dispatcher applies parsed marker lines against durable state and the
// pipeline's collaborators. Each marker is dispatched independently —
// §4.1's failure policy says one failed marker never suppresses the others.
type Dispatcher struct {
	store    *store.Store
	skills   SkillUpdater
	projects ProjectActivator
	qr       QRSource
	events   bus.EventPublisher
}

func NewDispatcher(st *store.Store, skills SkillUpdater, projects ProjectActivator, qr QRSource, events bus.EventPublisher) *Dispatcher {
	return &Dispatcher{store: st, skills: skills, projects: projects, qr: qr, events: events}
}

// notifyTasksChanged broadcasts TasksChangedEvent if an event publisher is
// configured. Safe to call unconditionally.
func (d *Dispatcher) notifyTasksChanged() {
	if d.events != nil {
		d.events.Broadcast(bus.Event{Name: TasksChangedEvent})
	}
}

// Dispatch applies each matched marker line in order. source distinguishes
// a conversation-turn REWARD from a heartbeat-turn one (§3 Outcome.Source).
func (d *Dispatcher) Dispatch(ctx context.Context, senderID, channel, replyTarget string, source store.OutcomeSource, lines []MarkerLine) []Result {
	results := make([]Result, 0, len(lines))
	for _, line := range lines {
		results = append(results, d.dispatchOne(ctx, senderID, channel, replyTarget, source, line))
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, senderID, channel, replyTarget string, source store.OutcomeSource, line MarkerLine) Result {
	switch line.Name {
	case Schedule:
		return d.schedule(ctx, senderID, channel, replyTarget, line, false)
	case ScheduleAction:
		return d.schedule(ctx, senderID, channel, replyTarget, line, true)
	case CancelTask:
		return d.cancelTask(ctx, senderID, line)
	case UpdateTask:
		return d.updateTask(ctx, senderID, line)
	case HeartbeatOK:
		return Result{Marker: line.Name, Status: StatusOK}
	case HeartbeatAdd:
		return d.heartbeatAdd(ctx, senderID, line)
	case SkillImprove:
		return d.skillImprove(line)
	case Reward:
		return d.reward(ctx, senderID, source, line)
	case Lesson:
		return d.lesson(ctx, senderID, line)
	case LangSwitch:
		return d.langSwitch(ctx, senderID, line)
	case ProjectActivate:
		return d.projectActivate(ctx, senderID, line)
	case WhatsAppQR:
		return d.whatsappQR(line)
	default:
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: fmt.Errorf("marker: no handler for %s", line.Name)}
	}
}

func (d *Dispatcher) schedule(ctx context.Context, senderID, channel, replyTarget string, line MarkerLine, action bool) Result {
	description, dueRaw := line.Fields[0], line.Fields[1]
	var repeatRaw, prompt string
	if action {
		if len(line.Fields) == 4 {
			repeatRaw, prompt = line.Fields[2], line.Fields[3]
		} else {
			prompt = line.Fields[2]
		}
	} else if len(line.Fields) == 3 {
		repeatRaw = line.Fields[2]
	}

	dueAt, err := time.Parse(time.RFC3339, dueRaw)
	if err != nil {
		return Result{Marker: line.Name, Status: StatusParseError, Err: fmt.Errorf("marker: invalid due_at %q: %w", dueRaw, err)}
	}
	repeat := store.TaskRepeat(repeatRaw)
	if repeat == "" {
		repeat = store.RepeatOnce
	}

	pending, err := d.store.PendingTasksForSender(ctx, senderID)
	if err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	var warning string
	for _, t := range pending {
		if Similar(t.Description, description) {
			warning = fmt.Sprintf("a similar pending task already exists: [%s] %s", ShortID(t.ID), t.Description)
			break
		}
	}

	taskType := store.TaskReminder
	if action {
		taskType = store.TaskAction
	}
	task, err := d.store.ScheduleTask(ctx, store.ScheduledTask{
		SenderID:     senderID,
		Channel:      channel,
		ReplyTarget:  replyTarget,
		Description:  description,
		DueAt:        dueAt.UTC(),
		Repeat:       repeat,
		TaskType:     taskType,
		ActionPrompt: prompt,
	})
	if err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	d.notifyTasksChanged()
	return Result{
		Marker:  line.Name,
		Status:  StatusOK,
		Fields:  line.Fields,
		Message: fmt.Sprintf("scheduled [%s] %s due %s", ShortID(task.ID), description, dueAt.Format(time.RFC3339)),
		Warning: warning,
	}
}

func (d *Dispatcher) cancelTask(ctx context.Context, senderID string, line MarkerLine) Result {
	task, err := d.store.CancelTask(ctx, line.Fields[0], senderID)
	if err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	d.notifyTasksChanged()
	return Result{Marker: line.Name, Status: StatusOK, Fields: line.Fields,
		Message: fmt.Sprintf("cancelled [%s] %s", ShortID(task.ID), task.Description)}
}

func (d *Dispatcher) updateTask(ctx context.Context, senderID string, line MarkerLine) Result {
	updates := make(map[string]string)
	for _, kv := range strings.Split(line.Fields[1], ",") {
		parts := strings.SplitN(strings.TrimSpace(kv), "=", 2)
		if len(parts) != 2 {
			continue
		}
		updates[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	task, err := d.store.UpdateTask(ctx, line.Fields[0], senderID, updates)
	if err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	d.notifyTasksChanged()
	return Result{Marker: line.Name, Status: StatusOK, Fields: line.Fields,
		Message: fmt.Sprintf("updated [%s] %s", ShortID(task.ID), task.Description)}
}

func (d *Dispatcher) heartbeatAdd(ctx context.Context, senderID string, line MarkerLine) Result {
	item := line.Fields[0]
	facts, err := d.store.GetFacts(ctx, senderID)
	if err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	existing := ""
	for _, f := range facts {
		if f.Key == HeartbeatChecklistFactKey {
			existing = f.Value
		}
	}
	updated := item
	if existing != "" {
		updated = existing + "\n" + item
	}
	if err := d.store.StoreFact(ctx, senderID, HeartbeatChecklistFactKey, updated, ""); err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	return Result{Marker: line.Name, Status: StatusOK, Fields: line.Fields, Message: "added to heartbeat checklist"}
}

func (d *Dispatcher) skillImprove(line MarkerLine) Result {
	name, lesson := line.Fields[0], line.Fields[1]
	if d.skills == nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: fmt.Errorf("marker: no skill updater configured")}
	}
	if err := d.skills.AppendLesson(name, lesson); err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	return Result{Marker: line.Name, Status: StatusOK, Fields: line.Fields, Message: fmt.Sprintf("updated skill %s", name)}
}

func (d *Dispatcher) reward(ctx context.Context, senderID string, source store.OutcomeSource, line MarkerLine) Result {
	score, err := strconv.Atoi(strings.TrimSpace(line.Fields[0]))
	if err != nil {
		return Result{Marker: line.Name, Status: StatusParseError, Err: fmt.Errorf("marker: invalid reward score %q: %w", line.Fields[0], err)}
	}
	domain, lesson := line.Fields[1], line.Fields[2]
	if _, err := d.store.StoreOutcome(ctx, senderID, domain, score, lesson, source); err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	return Result{Marker: line.Name, Status: StatusOK, Fields: line.Fields, Message: fmt.Sprintf("recorded outcome in %s", domain)}
}

func (d *Dispatcher) lesson(ctx context.Context, senderID string, line MarkerLine) Result {
	domain, rule := line.Fields[0], line.Fields[1]
	l, err := d.store.StoreLesson(ctx, senderID, domain, rule)
	if err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	return Result{Marker: line.Name, Status: StatusOK, Fields: line.Fields,
		Message: fmt.Sprintf("learned (%dx) in %s: %s", l.Occurrences, domain, rule)}
}

func (d *Dispatcher) langSwitch(ctx context.Context, senderID string, line MarkerLine) Result {
	lang := line.Fields[0]
	if err := d.store.StoreFact(ctx, senderID, PreferredLanguageFactKey, lang, ""); err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	return Result{Marker: line.Name, Status: StatusOK, Fields: line.Fields, Message: fmt.Sprintf("switched language to %s", lang)}
}

func (d *Dispatcher) projectActivate(ctx context.Context, senderID string, line MarkerLine) Result {
	project := line.Fields[0]
	if d.projects == nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: fmt.Errorf("marker: no project activator configured")}
	}
	if err := d.projects.Activate(ctx, senderID, project); err != nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: err}
	}
	return Result{Marker: line.Name, Status: StatusOK, Fields: line.Fields, Message: fmt.Sprintf("activated project %s", project)}
}

func (d *Dispatcher) whatsappQR(line MarkerLine) Result {
	if d.qr == nil {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: fmt.Errorf("marker: no pairing QR source configured")}
	}
	payload, ok := d.qr.Latest()
	if !ok {
		return Result{Marker: line.Name, Status: StatusDispatchError, Err: fmt.Errorf("marker: no pairing QR available yet")}
	}
	return Result{Marker: line.Name, Status: StatusOK, Message: payload}
}

// ShortID truncates an id to the 8-character prefix format the confirmation
// renderer and `/tasks`/`/cancel` commands use (§6.2).
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
