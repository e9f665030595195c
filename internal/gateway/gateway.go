package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/bus"
	"github.com/nextlevelbuilder/omegagate/internal/channels"
	"github.com/nextlevelbuilder/omegagate/internal/channels/telegram"
	"github.com/nextlevelbuilder/omegagate/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/omegagate/internal/config"
	"github.com/nextlevelbuilder/omegagate/internal/heartbeat"
	"github.com/nextlevelbuilder/omegagate/internal/marker"
	"github.com/nextlevelbuilder/omegagate/internal/mcp"
	"github.com/nextlevelbuilder/omegagate/internal/pipeline"
	"github.com/nextlevelbuilder/omegagate/internal/providers"
	"github.com/nextlevelbuilder/omegagate/internal/sandbox"
	"github.com/nextlevelbuilder/omegagate/internal/scheduler"
	"github.com/nextlevelbuilder/omegagate/internal/skills"
	"github.com/nextlevelbuilder/omegagate/internal/store"
	"github.com/nextlevelbuilder/omegagate/internal/summarizer"
	"github.com/nextlevelbuilder/omegagate/internal/tools"
	"github.com/nextlevelbuilder/omegagate/internal/tracing"
	"github.com/nextlevelbuilder/omegagate/internal/workspace"
)

// operatorSenderID is the single-operator id the heartbeat loop and
// workspace maintainer address; this gateway has no multi-tenant concept
// (§2b), so there is exactly one "self" sender the background loops
// address by this fixed key rather than discovering one from traffic.
const operatorSenderID = "operator"

// Gateway owns every subsystem's lifetime: it is constructed once from
// config and torn down once on shutdown.
type Gateway struct {
	cfg      *config.Config
	store    *store.Store
	guard    *sandbox.Guard
	channels *channels.Registry
	skills   *skills.Registry
	mcp      *mcp.Manager
	qr       *whatsapp.QRStream
	pipeline *pipeline.Pipeline
	dispatch *Dispatcher
	scheduler *scheduler.Scheduler
	heartbeat *heartbeat.Heartbeat
	summarizer *summarizer.Summarizer
	workspace *workspace.Maintainer
	shutdownTracing func(context.Context) error
}

// New wires every subsystem from cfg. No background loop is started yet —
// call Run to start serving.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	dataDir := config.ExpandHome(cfg.Gateway.DataDir)
	workspaceDir := filepath.Join(dataDir, "workspace")
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return nil, fmt.Errorf("gateway: create workspace dir: %w", err)
	}

	dbPath := cfg.Memory.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "gateway.db")
	}
	st, err := store.Open(ctx, store.Config{
		Path:         dbPath,
		IdleTimeout:  time.Duration(cfg.Memory.IdleTimeoutMinutes) * time.Minute,
		HistoryLimit: cfg.Memory.MaxContextMessages,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: open store: %w", err)
	}

	guard := sandbox.New(sandbox.Config{DataDir: dataDir, ConfigPath: cfg.Path()})

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(tools.NewBashTool(cfg.Sandbox.Workspace, guard))
	toolRegistry.Register(tools.NewReadTool(guard))
	toolRegistry.Register(tools.NewWriteTool(guard))
	toolRegistry.Register(tools.NewEditTool(guard))
	toolExec := tools.NewExecutor(toolRegistry)

	mcpManager := mcp.NewManager(toolRegistry)

	skillsDir := filepath.Join(dataDir, "skills")
	projectsDir := filepath.Join(dataDir, "projects")
	skillsReg := skills.NewRegistry(skillsDir, projectsDir, st)
	if err := skillsReg.Load(); err != nil {
		slog.Warn("gateway: initial skills load failed", "error", err)
	}
	mcpManager.Connect(ctx, skillsReg.AllMCPServers())

	chReg := channels.NewRegistry()
	var qr *whatsapp.QRStream
	allowlist := make(map[string][]string)
	for name, cc := range cfg.Channels {
		if !cc.Enabled {
			continue
		}
		allowlist[name] = cc.Allowlist
		switch name {
		case "telegram":
			ch, err := telegram.New(telegram.Config{Token: cc.ResolveToken(), Allowlist: cc.Allowlist})
			if err != nil {
				return nil, fmt.Errorf("gateway: telegram channel: %w", err)
			}
			chReg.Register(ch)
		case "whatsapp":
			ch, err := whatsapp.New(whatsapp.Config{
				BridgeURL:   cc.Token,
				SessionPath: filepath.Join(dataDir, "whatsapp_session"),
			})
			if err != nil {
				return nil, fmt.Errorf("gateway: whatsapp channel: %w", err)
			}
			qr = whatsapp.NewQRStream()
			ch.SetQRStream(qr)
			chReg.Register(ch)
		default:
			slog.Warn("gateway: unknown channel kind, skipping", "channel", name)
		}
	}

	fastProvider, err := buildProvider(cfg, cfg.Routing.FastProvider, cfg.Sandbox.Workspace)
	if err != nil {
		return nil, err
	}
	if fastProvider == nil {
		return nil, fmt.Errorf("gateway: routing.fast_provider must name a configured provider")
	}
	complexProvider, err := buildProvider(cfg, cfg.Routing.ComplexProvider, cfg.Sandbox.Workspace)
	if err != nil {
		return nil, err
	}
	actionProvider := complexProvider
	if actionProvider == nil {
		actionProvider = fastProvider
	}

	var qrSource marker.QRSource
	if qr != nil {
		qrSource = qr
	}
	events := bus.New()
	events.Subscribe("gateway-audit", func(e bus.Event) {
		slog.Info("gateway: background event", "name", e.Name, "payload", e.Payload)
	})
	markerDispatcher := marker.NewDispatcher(st, skillsReg, skillsReg, qrSource, events)

	pl := pipeline.New(
		pipeline.Config{
			AuthEnabled:  cfg.Auth.Enabled,
			DenyMessage:  cfg.Auth.DenyMessage,
			ChannelAllow: allowlist,
			Workspace:    cfg.Sandbox.Workspace,
		},
		st, guard, chReg, toolExec, toolRegistry.Definitions(),
		pipeline.ProviderSet{Fast: fastProvider, Complex: complexProvider},
		markerDispatcher, skillsReg, nil,
	)

	dispatcher := NewDispatcher(pl)

	sched := scheduler.New(st, chReg, actionProvider, toolExec, time.Duration(cfg.Scheduler.PollIntervalSecs)*time.Second, events)

	hb := heartbeat.New(heartbeat.Config{
		Interval:    time.Duration(cfg.Heartbeat.IntervalMinutes) * time.Minute,
		ActiveStart: cfg.Heartbeat.ActiveStart,
		ActiveEnd:   cfg.Heartbeat.ActiveEnd,
		SenderID:    operatorSenderID,
		Channel:     cfg.Heartbeat.Channel,
		ReplyTarget: cfg.Heartbeat.ReplyTarget,
	}, st, chReg, fastProvider, toolExec, markerDispatcher, events)

	summ := summarizer.New(summarizer.Config{
		Interval:      time.Duration(cfg.Summarizer.IntervalMinutes) * time.Minute,
		IdleThreshold: time.Duration(cfg.Summarizer.IdleThresholdMinutes) * time.Minute,
	}, st, fastProvider)

	ws := workspace.New(workspaceDir, operatorSenderID, st, time.Duration(cfg.Summarizer.IntervalMinutes)*time.Minute)

	return &Gateway{
		cfg: cfg, store: st, guard: guard, channels: chReg, skills: skillsReg, mcp: mcpManager,
		qr: qr, pipeline: pl, dispatch: dispatcher, scheduler: sched, heartbeat: hb,
		summarizer: summ, workspace: ws, shutdownTracing: tracing.Init(),
	}, nil
}

func buildProvider(cfg *config.Config, name string, workspaceDir string) (providers.Provider, error) {
	if name == "" {
		return nil, nil
	}
	pc, ok := cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("gateway: routing references undefined provider %q", name)
	}
	switch pc.Kind {
	case "openai":
		return providers.NewOpenAIProvider(pc.ResolveAPIKey(), pc.BaseURL, pc.Model), nil
	case "anthropic":
		return providers.NewAnthropicProvider(pc.ResolveAPIKey(), pc.BaseURL, pc.Model), nil
	case "cli":
		timeout := time.Duration(pc.TimeoutSec) * time.Second
		return providers.NewCLIProvider(pc.Command, pc.Args, workspaceDir, timeout), nil
	default:
		return nil, fmt.Errorf("gateway: unknown provider kind %q for %q", pc.Kind, name)
	}
}

// Run starts every channel, the dispatcher, and every background loop, and
// blocks until ctx is cancelled, then shuts everything down within a grace
// deadline (§5).
func (g *Gateway) Run(ctx context.Context) error {
	in, err := g.channels.StartAll(ctx)
	if err != nil {
		return fmt.Errorf("gateway: start channels: %w", err)
	}

	go g.skills.Watch(ctx)
	go g.scheduler.Run(ctx)
	go g.heartbeat.Run(ctx)
	go g.summarizer.Run(ctx)
	go g.workspace.Run(ctx)

	g.dispatch.Run(ctx, in)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	g.channels.StopAll(shutdownCtx)
	g.mcp.Shutdown()
	if g.shutdownTracing != nil {
		_ = g.shutdownTracing(shutdownCtx)
	}
	return nil
}
