package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/omegagate/internal/tools"
)

const bridgeCallTimeout = 60 * time.Second

// BridgeTool adapts a single remote MCP tool into the local tools.Tool
// interface, namespaced "<server>__<tool>" to avoid collisions across
// servers declared by different skills.
type BridgeTool struct {
	server    string
	original  mcpgo.Tool
	client    *mcpclient.Client
	connected *atomic.Bool
}

func NewBridgeTool(server string, original mcpgo.Tool, client *mcpclient.Client, connected *atomic.Bool) *BridgeTool {
	return &BridgeTool{server: server, original: original, client: client, connected: connected}
}

func (b *BridgeTool) Name() string        { return b.server + "__" + b.original.Name }
func (b *BridgeTool) OriginalName() string { return b.original.Name }
func (b *BridgeTool) Description() string { return b.original.Description }

func (b *BridgeTool) Parameters() map[string]interface{} {
	raw, err := json.Marshal(b.original.InputSchema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return schema
}

func (b *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if b.connected != nil && !b.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("mcp server %s is disconnected", b.server))
	}
	ctx, cancel := context.WithTimeout(ctx, bridgeCallTimeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.original.Name
	req.Params.Arguments = args

	result, err := b.client.CallTool(ctx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("mcp call %s: %v", b.Name(), err))
	}

	var out string
	for _, c := range result.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			out += tc.Text
		}
	}
	if result.IsError {
		return tools.ErrorResult(out)
	}
	return tools.NewResult(out)
}

var _ tools.Tool = (*BridgeTool)(nil)
