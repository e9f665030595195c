package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/apperror"
)

// AnthropicProvider talks to the Anthropic Messages API: system prompt as a
// top-level field (not a message), stop_reason:"tool_use", and content-block
// arrays carrying tool_use/tool_result blocks instead of OpenAI's flat
// tool_calls list. Grounded on the teacher's internal/providers/anthropic.go
// and anthropic_request.go request shaping; adapted to non-streaming since
// this gateway's Non-goals exclude streaming token output, so the block
// accumulator from anthropic_stream.go collapses to a single decode pass.
type AnthropicProvider struct {
	apiKey        string
	baseURL       string
	model         string
	apiVersion    string
	httpClient    *http.Client
	maxIterations int
	retry         RetryConfig
}

func NewAnthropicProvider(apiKey, baseURL, model string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &AnthropicProvider{
		apiKey:        apiKey,
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         model,
		apiVersion:    "2023-06-01",
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		maxIterations: 12,
		retry:         DefaultRetryConfig(),
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) RequiresAPIKey() bool { return true }
func (p *AnthropicProvider) IsAvailable() bool    { return p.apiKey != "" }

type anthBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthMessage struct {
	Role    string      `json:"role"`
	Content []anthBlock `json:"content"`
}

type anthTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []anthMessage `json:"messages"`
	Tools     []anthTool    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens"`
}

type anthResponse struct {
	Content    []anthBlock `json:"content"`
	StopReason string      `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func buildAnthTools(defs []ToolDefinition) []anthTool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]anthTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, anthTool{Name: d.Name, Description: d.Description, InputSchema: d.Parameters})
	}
	return out
}

func (p *AnthropicProvider) Complete(ctx context.Context, pctx Context, exec ToolExecutor) (*Response, error) {
	if err := pctx.Validate(); err != nil {
		return nil, apperror.New(apperror.KindProvider, "anthropic.Complete", err)
	}
	start := time.Now()
	model := p.model
	if pctx.Model != "" {
		model = pctx.Model
	}

	messages := make([]anthMessage, 0, len(pctx.History)+1)
	for _, h := range pctx.History {
		messages = append(messages, anthMessage{
			Role:    string(h.Role),
			Content: []anthBlock{{Type: "text", Text: h.Content}},
		})
	}
	messages = append(messages, anthMessage{
		Role:    string(RoleUser),
		Content: []anthBlock{{Type: "text", Text: pctx.Message}},
	})

	var tools []anthTool
	if pctx.ToolsEnabled && pctx.Workspace != "" {
		tools = buildAnthTools(pctx.Tools)
	}

	var usage Usage
	for iter := 0; iter < p.maxIterations; iter++ {
		var parsed anthResponse
		err := RetryDo(ctx, p.retry, func() error {
			resp, callErr := p.post(ctx, anthRequest{
				Model:     model,
				System:    pctx.SystemPrompt,
				Messages:  messages,
				Tools:     tools,
				MaxTokens: 4096,
			})
			if callErr != nil {
				return callErr
			}
			parsed = *resp
			return nil
		})
		if err != nil {
			return nil, apperror.New(apperror.KindProvider, "anthropic.Complete", err)
		}
		usage.PromptTokens += parsed.Usage.InputTokens
		usage.CompletionTokens += parsed.Usage.OutputTokens
		usage.TotalTokens += parsed.Usage.InputTokens + parsed.Usage.OutputTokens

		if parsed.StopReason != "tool_use" {
			var text strings.Builder
			for _, b := range parsed.Content {
				if b.Type == "text" {
					text.WriteString(b.Text)
				}
			}
			return &Response{
				Text:      text.String(),
				Provider:  p.Name(),
				Model:     model,
				Usage:     &usage,
				ElapsedMs: time.Since(start).Milliseconds(),
			}, nil
		}

		messages = append(messages, anthMessage{Role: string(RoleAssistant), Content: parsed.Content})
		var resultBlocks []anthBlock
		for _, b := range parsed.Content {
			if b.Type != "tool_use" {
				continue
			}
			var args map[string]interface{}
			_ = json.Unmarshal(b.Input, &args)
			result := exec.Execute(ctx, ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
			resultBlocks = append(resultBlocks, anthBlock{
				Type:      "tool_result",
				ToolUseID: b.ID,
				Content:   result.Content,
				IsError:   result.IsError,
			})
		}
		messages = append(messages, anthMessage{Role: string(RoleUser), Content: resultBlocks})
	}
	return nil, apperror.New(apperror.KindProvider, "anthropic.Complete", fmt.Errorf("exhausted %d tool-loop iterations", p.maxIterations))
}

func (p *AnthropicProvider) post(ctx context.Context, reqBody anthRequest) (*anthResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", p.apiVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	var parsed anthResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &parsed, nil
}
