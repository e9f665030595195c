// Package tools implements the gateway's built-in agentic tools (§4.7): bash,
// read, write, edit. read, write and edit are checked against the sandbox's
// code-layer blocklist (internal/sandbox) before touching the filesystem; bash
// is screened against its deny patterns instead and runs through the
// OS-enforced layer via sandbox.Guard.Wrap.
//
// Grounded on the teacher's internal/tools/shell.go (ExecTool, defaultDenyPatterns)
// and internal/tools/filesystem.go (resolvePath/isPathInside symlink-escape
// checks), trimmed from a Docker-sandbox-routed, approval-gated tool set down to
// the four-tool, blocklist-enforced set this spec describes.
package tools

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/omegagate/internal/providers"
)

// Tool is a single built-in tool's execution contract.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry holds the built-in tool set plus any MCP-bridged tools merged in
// at startup (internal/mcp).
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Unregister(name string) {
	delete(r.tools, name)
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the tool schema list handed to providers.Context.Tools.
func (r *Registry) Definitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Executor adapts a Registry to providers.ToolExecutor, dispatching each
// ToolCall by name.
type Executor struct {
	Registry *Registry
}

func NewExecutor(reg *Registry) *Executor {
	return &Executor{Registry: reg}
}

func (e *Executor) Execute(ctx context.Context, call providers.ToolCall) providers.ToolResult {
	t, ok := e.Registry.Get(call.Name)
	if !ok {
		return providers.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("unknown tool %q", call.Name), IsError: true}
	}
	res := t.Execute(ctx, call.Arguments)
	return providers.ToolResult{ToolCallID: call.ID, Content: res.Content, IsError: res.IsError}
}

var _ providers.ToolExecutor = (*Executor)(nil)
