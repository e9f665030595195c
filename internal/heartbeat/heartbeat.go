// Package heartbeat runs the periodic check-in loop (§4.6): at a configured
// interval, optionally restricted to an active-hours window, it asks the
// provider for a check-in turn, processes any markers the response
// contains, and delivers whatever text remains after stripping
// HEARTBEAT_OK — but only when non-empty and a delivery target is configured.
//
// Grounded on the teacher's periodic-notification loop shape (ticker +
// ctx.Done select), generalized to add the active-hours gate and marker
// dispatch this spec requires.
package heartbeat

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/bus"
	"github.com/nextlevelbuilder/omegagate/internal/channels"
	"github.com/nextlevelbuilder/omegagate/internal/marker"
	"github.com/nextlevelbuilder/omegagate/internal/pipeline"
	"github.com/nextlevelbuilder/omegagate/internal/providers"
	"github.com/nextlevelbuilder/omegagate/internal/store"
)

// Config holds the heartbeat loop's tunables, mirroring config.HeartbeatConfig.
type Config struct {
	Interval    time.Duration
	ActiveStart string // "HH:MM", empty means always active
	ActiveEnd   string
	SenderID    string
	Channel     string
	ReplyTarget string
}

// ResultEvent is broadcast at the end of a tick that got a provider reply;
// payload is true when a check-in message was delivered, false when
// HEARTBEAT_OK suppressed it, the provider produced nothing to say, or no
// delivery target is configured. A tick that fails (facts load, provider
// call, delivery) or falls outside active hours broadcasts nothing.
const ResultEvent = "heartbeat:result"

// Heartbeat owns the single-sender check-in loop. The spec scopes a
// heartbeat to one operator sender; multi-sender heartbeats would mean
// running one Heartbeat per sender.
type Heartbeat struct {
	cfg      Config
	store    *store.Store
	channels *channels.Registry
	provider providers.Provider
	toolExec providers.ToolExecutor
	markers  *marker.Dispatcher
	events   bus.EventPublisher
}

func New(cfg Config, st *store.Store, chReg *channels.Registry, provider providers.Provider, toolExec providers.ToolExecutor, markers *marker.Dispatcher, events bus.EventPublisher) *Heartbeat {
	return &Heartbeat{cfg: cfg, store: st, channels: chReg, provider: provider, toolExec: toolExec, markers: markers, events: events}
}

func (h *Heartbeat) notifyResult(delivered bool) {
	if h.events != nil {
		h.events.Broadcast(bus.Event{Name: ResultEvent, Payload: delivered})
	}
}

func (h *Heartbeat) Run(ctx context.Context) {
	if h.cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.withinActiveHours(time.Now()) {
				h.tick(ctx)
			}
		}
	}
}

func (h *Heartbeat) tick(ctx context.Context) {
	facts, err := h.store.GetFacts(ctx, h.cfg.SenderID)
	if err != nil {
		slog.Error("heartbeat: load facts failed", "error", err)
		return
	}
	checklist := ""
	for _, f := range facts {
		if f.Key == marker.HeartbeatChecklistFactKey {
			checklist = f.Value
		}
	}

	prompt := "Perform your periodic check-in. Review anything pending and take any action warranted."
	if checklist != "" {
		prompt += "\n\nChecklist:\n" + checklist
	}

	resp, err := h.provider.Complete(ctx, providers.Context{
		Message:      prompt,
		ToolsEnabled: h.toolExec != nil,
	}, h.toolExec)
	if err != nil {
		slog.Error("heartbeat: provider call failed", "error", err)
		return
	}

	lines, parseErrors, stripped := marker.ExtractAndStrip(resp.Text)
	for _, pe := range parseErrors {
		slog.Warn("heartbeat: marker arity mismatch", "detail", pe)
	}
	if len(lines) > 0 && h.markers != nil {
		results := h.markers.Dispatch(ctx, h.cfg.SenderID, h.cfg.Channel, h.cfg.ReplyTarget, store.OutcomeSourceHeartbeat, lines)
		for _, r := range results {
			if !r.OK() {
				slog.Warn("heartbeat: marker dispatch failed", "marker", r.Marker, "error", r.Err)
			}
		}
	}

	clean := strings.TrimSpace(pipeline.SanitizeAssistantContent(stripped))
	if clean == "" {
		h.notifyResult(false)
		return
	}
	if h.cfg.Channel == "" || h.cfg.ReplyTarget == "" {
		slog.Info("heartbeat: produced text but no delivery target configured", "text", clean)
		h.notifyResult(false)
		return
	}
	meta := bus.OutgoingMetadata{Provider: h.provider.Name(), Model: resp.Model, Duration: time.Duration(resp.ElapsedMs) * time.Millisecond}
	if resp.Usage != nil {
		meta.TokenCount = resp.Usage.TotalTokens
	}
	for _, chunk := range channels.SplitMessage(clean, 0) {
		if err := h.channels.Send(ctx, h.cfg.Channel, bus.OutgoingMessage{Text: chunk, Metadata: meta, ReplyTarget: h.cfg.ReplyTarget}); err != nil {
			slog.Error("heartbeat: delivery failed", "error", err)
			return
		}
	}
	h.notifyResult(true)
}

// withinActiveHours reports whether now falls inside the configured
// active-hours window, supporting a midnight-wrapping range (e.g. 22:00 to
// 06:00). An unconfigured window means always active.
func (h *Heartbeat) withinActiveHours(now time.Time) bool {
	if h.cfg.ActiveStart == "" || h.cfg.ActiveEnd == "" {
		return true
	}
	start, ok1 := parseHHMM(h.cfg.ActiveStart)
	end, ok2 := parseHHMM(h.cfg.ActiveEnd)
	if !ok1 || !ok2 {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

func parseHHMM(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return h*60 + m, true
}
