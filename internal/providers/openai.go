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

// OpenAIProvider talks to any OpenAI-compatible chat-completions endpoint:
// system prompt as a leading role:"system" message, finish_reason:"tool_calls",
// and role:"tool"+tool_call_id result turns. Request/response shaping and
// retry-with-backoff are grounded on the teacher's internal/providers/openai.go.
type OpenAIProvider struct {
	apiKey        string
	baseURL       string
	model         string
	httpClient    *http.Client
	maxIterations int
	retry         RetryConfig
}

// NewOpenAIProvider constructs an OpenAI-compatible provider. baseURL defaults
// to the public API when empty, so the same type serves self-hosted
// OpenAI-compatible gateways (vLLM, LiteLLM, etc).
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		apiKey:        apiKey,
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         model,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		maxIterations: 12,
		retry:         DefaultRetryConfig(),
	}
}

func (p *OpenAIProvider) Name() string          { return "openai" }
func (p *OpenAIProvider) RequiresAPIKey() bool  { return true }
func (p *OpenAIProvider) IsAvailable() bool     { return p.apiKey != "" }

type oaMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []oaToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type oaRequest struct {
	Model    string      `json:"model"`
	Messages []oaMessage `json:"messages"`
	Tools    []oaTool    `json:"tools,omitempty"`
}

type oaChoice struct {
	Message      oaMessage `json:"message"`
	FinishReason string    `json:"finish_reason"`
}

type oaResponse struct {
	Choices []oaChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func buildOATools(defs []ToolDefinition) []oaTool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]oaTool, 0, len(defs))
	for _, d := range defs {
		var t oaTool
		t.Type = "function"
		t.Function.Name = d.Name
		t.Function.Description = d.Description
		t.Function.Parameters = d.Parameters
		out = append(out, t)
	}
	return out
}

// Complete runs the agentic loop (§4.2): POST non-streaming, detect tool
// calls via finish_reason=="tool_calls", dispatch each via exec, append the
// assistant tool-call turn and matching tool-result turns, and repeat until
// the model returns plain text or maxIterations is reached.
func (p *OpenAIProvider) Complete(ctx context.Context, pctx Context, exec ToolExecutor) (*Response, error) {
	if err := pctx.Validate(); err != nil {
		return nil, apperror.New(apperror.KindProvider, "openai.Complete", err)
	}
	start := time.Now()
	model := p.model
	if pctx.Model != "" {
		model = pctx.Model
	}

	messages := make([]oaMessage, 0, len(pctx.History)+2)
	if pctx.SystemPrompt != "" {
		messages = append(messages, oaMessage{Role: "system", Content: pctx.SystemPrompt})
	}
	for _, h := range pctx.History {
		messages = append(messages, oaMessage{Role: string(h.Role), Content: h.Content})
	}
	messages = append(messages, oaMessage{Role: "user", Content: pctx.Message})

	var tools []oaTool
	if pctx.ToolsEnabled && pctx.Workspace != "" {
		tools = buildOATools(pctx.Tools)
	}

	var usage Usage
	for iter := 0; iter < p.maxIterations; iter++ {
		var parsed oaResponse
		err := RetryDo(ctx, p.retry, func() error {
			resp, callErr := p.post(ctx, oaRequest{Model: model, Messages: messages, Tools: tools})
			if callErr != nil {
				return callErr
			}
			parsed = *resp
			return nil
		})
		if err != nil {
			return nil, apperror.New(apperror.KindProvider, "openai.Complete", err)
		}
		if parsed.Usage.TotalTokens > 0 {
			usage.PromptTokens += parsed.Usage.PromptTokens
			usage.CompletionTokens += parsed.Usage.CompletionTokens
			usage.TotalTokens += parsed.Usage.TotalTokens
		}
		if len(parsed.Choices) == 0 {
			return nil, apperror.New(apperror.KindProvider, "openai.Complete", fmt.Errorf("no choices returned"))
		}
		choice := parsed.Choices[0]

		if choice.FinishReason != "tool_calls" || len(choice.Message.ToolCalls) == 0 {
			return &Response{
				Text:      choice.Message.Content,
				Provider:  p.Name(),
				Model:     model,
				Usage:     &usage,
				ElapsedMs: time.Since(start).Milliseconds(),
			}, nil
		}

		messages = append(messages, choice.Message)
		for _, tc := range choice.Message.ToolCalls {
			var args map[string]interface{}
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			result := exec.Execute(ctx, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
			messages = append(messages, oaMessage{
				Role:       "tool",
				Content:    result.Content,
				ToolCallID: tc.ID,
			})
		}
	}
	return nil, apperror.New(apperror.KindProvider, "openai.Complete", fmt.Errorf("exhausted %d tool-loop iterations", p.maxIterations))
}

func (p *OpenAIProvider) post(ctx context.Context, reqBody oaRequest) (*oaResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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
	var parsed oaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &parsed, nil
}
