// Package pipeline implements the thirteen-step message pipeline (§4.1):
// every inbound message, regardless of channel, passes through alias
// resolution, authorization, command interception, sanitization, a typing
// indicator, context assembly, skill matching, fast/complex routing, the
// provider call, marker processing, persistence, the reply itself, and
// finally a task-confirmation follow-up.
//
// Grounded on the teacher's request-handling entrypoint that strings
// together auth, history load, provider call and persistence in one
// sequence; generalized here into named steps matching §4.1 and split
// across this file and sanitize.go/sanitize_input.go/system_prompt.go.
package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/apperror"
	"github.com/nextlevelbuilder/omegagate/internal/bus"
	"github.com/nextlevelbuilder/omegagate/internal/channels"
	"github.com/nextlevelbuilder/omegagate/internal/i18n"
	"github.com/nextlevelbuilder/omegagate/internal/marker"
	"github.com/nextlevelbuilder/omegagate/internal/providers"
	"github.com/nextlevelbuilder/omegagate/internal/sandbox"
	"github.com/nextlevelbuilder/omegagate/internal/skills"
	"github.com/nextlevelbuilder/omegagate/internal/store"
	"github.com/nextlevelbuilder/omegagate/internal/tracing"
)

// CommandContext is handed to the slash-command handler (§6.2). No
// CommandHandler implementation exists in this repository; the gateway
// constructs the pipeline with a nil handler, so step 3 is skipped.
type CommandContext struct {
	Store       *store.Store
	Channel     string
	SenderID    string
	Text        string
	ReplyTarget string
}

// CommandHandler intercepts a leading-slash message before it reaches the
// model (§4.1 step 3). handled is false when the text isn't a recognized
// command, in which case the pipeline falls through to the model turn.
type CommandHandler interface {
	Handle(ctx context.Context, cmd CommandContext) (reply string, handled bool, err error)
}

// ProviderSet is the fast/complex pair the classify-and-route step (§4.1
// step 8) chooses between.
type ProviderSet struct {
	Fast    providers.Provider
	Complex providers.Provider
}

// Config bundles the gateway-level tunables the pipeline needs beyond its
// wired collaborators.
type Config struct {
	AuthEnabled  bool
	DenyMessage  string
	ChannelAllow map[string][]string // channel name -> allowlisted sender ids
	SystemPrompt string
	Workspace    string
	MaxReplyLen  int
}

// Pipeline owns every collaborator a message turn touches. One Pipeline is
// shared by all of the gateway dispatcher's per-sender workers.
type Pipeline struct {
	cfg      Config
	store    *store.Store
	guard    *sandbox.Guard
	channels *channels.Registry
	toolExec providers.ToolExecutor
	toolDefs []providers.ToolDefinition
	provs    ProviderSet
	markers  *marker.Dispatcher
	skills   *skills.Registry
	commands CommandHandler
}

func New(
	cfg Config,
	st *store.Store,
	guard *sandbox.Guard,
	chReg *channels.Registry,
	toolExec providers.ToolExecutor,
	toolDefs []providers.ToolDefinition,
	provs ProviderSet,
	markers *marker.Dispatcher,
	sk *skills.Registry,
	cmds CommandHandler,
) *Pipeline {
	return &Pipeline{
		cfg: cfg, store: st, guard: guard, channels: chReg,
		toolExec: toolExec, toolDefs: toolDefs, provs: provs,
		markers: markers, skills: sk, commands: cmds,
	}
}

// Process runs one inbound message through the full pipeline. The gateway
// dispatcher keys its queues by channel and raw sender id, so Process is
// never called twice concurrently for the same sender on the same channel;
// aliases of one canonical sender on different channels are not serialized
// against each other.
func (p *Pipeline) Process(ctx context.Context, msg bus.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "pipeline.process")
	defer span.End()
	start := time.Now()
	traceID, spanID := tracing.IDs(span)

	// Step 1: alias resolution.
	senderID, err := p.resolveSender(ctx, msg.Channel, msg.SenderID)
	if err != nil {
		return apperror.New(apperror.KindStore, "Process.resolveSender", err)
	}

	// Step 2: authorization.
	if !p.authorize(msg.Channel, senderID) {
		slog.Info("pipeline: denied unauthorized sender", "channel", msg.Channel, "sender", senderID)
		deny := p.cfg.DenyMessage
		if deny == "" {
			deny = i18n.T("auth_denied", i18n.English)
		}
		return p.reply(ctx, msg.Channel, msg.ReplyTarget, deny)
	}

	// Step 3: command interception.
	if strings.HasPrefix(strings.TrimSpace(msg.Text), "/") && p.commands != nil {
		reply, handled, err := p.commands.Handle(ctx, CommandContext{
			Store: p.store, Channel: msg.Channel, SenderID: senderID,
			Text: msg.Text, ReplyTarget: msg.ReplyTarget,
		})
		if err != nil {
			slog.Warn("pipeline: command handler error", "error", err)
		} else if handled {
			return p.reply(ctx, msg.Channel, msg.ReplyTarget, reply)
		}
	}

	// Step 4: sanitize the inbound text (neutralize, never reject).
	text := SanitizeUserText(msg.Text)

	// Step 5: typing indicator, kept alive until the provider call returns.
	typingDone := make(chan struct{})
	go p.typingLoop(ctx, msg.Channel, msg.ReplyTarget, typingDone)
	defer close(typingDone)

	// Step 6: context build.
	bundle, err := p.store.BuildContext(ctx, msg.Channel, senderID, text, detectNeeds(text))
	if err != nil {
		return apperror.New(apperror.KindStore, "Process.buildContext", err)
	}
	lang := p.preferredLang(bundle.Facts)
	if bundle.Conversation.Project == "" {
		if proj, ok := activeProject(bundle.Facts); ok {
			if err := p.store.SetConversationProject(ctx, bundle.Conversation.ID, proj); err == nil {
				bundle.Conversation.Project = proj
			}
		}
	}

	// Step 7: skill trigger matching.
	var skillMatches []skills.SkillMatch
	if p.skills != nil {
		skillMatches = p.skills.Match(text)
	}

	// Step 8: classify and route between the fast and complex provider.
	provider := p.provs.Fast
	if p.provs.Complex != nil && p.classifyComplex(ctx, text) {
		provider = p.provs.Complex
	}
	if provider == nil || !provider.IsAvailable() {
		slog.Warn("pipeline: no available provider", "channel", msg.Channel, "sender", senderID)
		return p.reply(ctx, msg.Channel, msg.ReplyTarget, i18n.T("provider_unavailable", lang))
	}

	pctx := p.buildProviderContext(bundle, skillMatches, text)

	resp, err := provider.Complete(ctx, pctx, p.toolExec)
	elapsed := time.Since(start)
	auditErr := p.store.StoreAuditRecord(ctx, store.AuditRecord{
		Channel: msg.Channel, SenderID: senderID,
		Provider:     provider.Name(),
		ProcessingMs: elapsed.Milliseconds(),
		Success:      err == nil,
		TraceID:      traceID,
		SpanID:       spanID,
	})
	if auditErr != nil {
		slog.Warn("pipeline: audit record write failed", "error", auditErr)
	}
	if err != nil {
		slog.Error("pipeline: provider call failed", "provider", provider.Name(), "error", err)
		return p.reply(ctx, msg.Channel, msg.ReplyTarget, i18n.T("provider_unavailable", lang))
	}
	meta := bus.OutgoingMetadata{
		Provider: resp.Provider,
		Model:    resp.Model,
		Duration: time.Duration(resp.ElapsedMs) * time.Millisecond,
	}
	if resp.Usage != nil {
		meta.TokenCount = resp.Usage.TotalTokens
	}

	// Step 9/10: marker extraction + response sanitization, applied to the
	// raw model text before anything is persisted or sent.
	lines, parseErrors, stripped := marker.ExtractAndStrip(resp.Text)
	for _, pe := range parseErrors {
		slog.Warn("pipeline: marker arity mismatch, left in place", "detail", pe)
	}
	clean := SanitizeAssistantContent(stripped)

	var results []marker.Result
	if len(lines) > 0 {
		results = p.markers.Dispatch(ctx, senderID, msg.Channel, msg.ReplyTarget, store.OutcomeSourceConversation, lines)
		for _, r := range results {
			if !r.OK() {
				slog.Warn("pipeline: marker dispatch failed", "marker", r.Marker, "error", r.Err)
			}
		}
	}

	// Step 11: persistence.
	if _, err := p.store.AppendMessage(ctx, bundle.Conversation.ID, store.MessageRoleUser, text); err != nil {
		slog.Error("pipeline: failed to persist user turn", "error", err)
	}
	if clean != "" && !IsSilentReply(clean) {
		if _, err := p.store.AppendMessage(ctx, bundle.Conversation.ID, store.MessageRoleAssistant, clean); err != nil {
			slog.Error("pipeline: failed to persist assistant turn", "error", err)
		}
	}

	// Step 12: reply.
	if clean != "" && !IsSilentReply(clean) {
		if err := p.replyWithMetadata(ctx, msg.Channel, msg.ReplyTarget, clean, meta); err != nil {
			return err
		}
	}

	// Step 13: task confirmation and QR pairing follow-ups.
	if confirmation := marker.BuildConfirmation(results); confirmation != "" {
		if err := p.reply(ctx, msg.Channel, msg.ReplyTarget, confirmation); err != nil {
			slog.Warn("pipeline: confirmation delivery failed", "error", err)
		}
	}
	if qr, ok := marker.ExtractQRPayload(results); ok {
		if err := p.reply(ctx, msg.Channel, msg.ReplyTarget, qr); err != nil {
			slog.Warn("pipeline: qr delivery failed", "error", err)
		}
	}

	return nil
}

// resolveSender implements §4.1 step 1: resolve through any existing alias,
// and when a brand-new sender shows up with exactly one other known user in
// the store, auto-link them under the assumption that one human owns
// multiple channels.
func (p *Pipeline) resolveSender(ctx context.Context, channel, senderID string) (string, error) {
	canonical, err := p.store.ResolveSenderID(ctx, channel, senderID)
	if err != nil {
		return "", err
	}
	if canonical != senderID {
		return canonical, nil
	}
	hasHistory, err := p.store.HasAnyConversation(ctx, senderID)
	if err != nil || hasHistory {
		return canonical, nil
	}
	sole, ok, err := p.store.SoleOtherSender(ctx, senderID)
	if err != nil || !ok {
		return canonical, nil
	}
	if err := p.store.CreateAlias(ctx, senderID, sole); err != nil {
		slog.Warn("pipeline: auto-alias failed", "sender", senderID, "canonical", sole, "error", err)
		return canonical, nil
	}
	slog.Info("pipeline: auto-aliased new sender", "sender", senderID, "canonical", sole)
	return sole, nil
}

func (p *Pipeline) authorize(channel, senderID string) bool {
	if !p.cfg.AuthEnabled {
		return true
	}
	for _, id := range p.cfg.ChannelAllow[channel] {
		if id == senderID {
			return true
		}
	}
	return false
}

func (p *Pipeline) classifyComplex(ctx context.Context, text string) bool {
	pctx := providers.Context{
		SystemPrompt: "Classify the difficulty of the following user message as exactly one word: SIMPLE or COMPLEX. Use COMPLEX for anything needing multi-step reasoning, tool use, or code; SIMPLE for greetings, small talk, and quick factual replies.",
		Message:      text,
	}
	resp, err := p.provs.Fast.Complete(ctx, pctx, nil)
	if err != nil || resp == nil {
		return false
	}
	return strings.Contains(strings.ToUpper(resp.Text), "COMPLEX")
}

func (p *Pipeline) preferredLang(facts []store.Fact) i18n.Lang {
	for _, f := range facts {
		if f.Key == marker.PreferredLanguageFactKey {
			return i18n.ParseLang(f.Value)
		}
	}
	return i18n.English
}

func activeProject(facts []store.Fact) (string, bool) {
	for _, f := range facts {
		if f.Key == skills.ActiveProjectFactKey && f.Value != "" {
			return f.Value, true
		}
	}
	return "", false
}

func (p *Pipeline) typingLoop(ctx context.Context, channel, target string, done <-chan struct{}) {
	ch, ok := p.channels.Get(channel)
	if !ok {
		return
	}
	_ = ch.SendTyping(ctx, target)
	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = ch.SendTyping(ctx, target)
		}
	}
}

// reply sends text through the named channel, splitting on the channel's
// length limit (§4.1 step 12, §8 testable property 7).
func (p *Pipeline) reply(ctx context.Context, channel, target, text string) error {
	return p.replyWithMetadata(ctx, channel, target, text, bus.OutgoingMetadata{})
}

// replyWithMetadata is reply plus provenance about the provider call that
// produced text (§3 OutgoingMessage.Metadata), carried on every chunk.
// Markers-only follow-ups (task confirmations, QR payloads) go through
// reply instead, since they weren't produced by a provider call.
func (p *Pipeline) replyWithMetadata(ctx context.Context, channel, target, text string, meta bus.OutgoingMetadata) error {
	if text == "" {
		return nil
	}
	maxLen := p.cfg.MaxReplyLen
	for _, chunk := range channels.SplitMessage(text, maxLen) {
		if err := p.channels.Send(ctx, channel, bus.OutgoingMessage{Text: chunk, Metadata: meta, ReplyTarget: target}); err != nil {
			return apperror.New(apperror.KindChannel, "Process.reply", err)
		}
	}
	return nil
}

// detectNeeds implements the keyword heuristic that decides whether
// BuildContext's optional recall and pending-tasks queries are worth their
// cost for this turn (§4.1 step 6).
var recallKeywords = regexp.MustCompile(`(?i)\b(remember|recall|said|told|mentioned|earlier|before|last time|previously)\b`)
var taskKeywords = regexp.MustCompile(`(?i)\b(remind|reminder|task|schedule|cancel|due|pending|todo)\b`)

func detectNeeds(text string) store.ContextNeeds {
	return store.ContextNeeds{
		Recall:       recallKeywords.MatchString(text),
		PendingTasks: taskKeywords.MatchString(text),
	}
}
