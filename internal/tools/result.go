package tools

// Result is a tool's execution outcome, surfaced back to the agentic loop
// as a providers.ToolResult.
type Result struct {
	Content string
	IsError bool
}

func NewResult(content string) *Result       { return &Result{Content: content} }
func ErrorResult(message string) *Result     { return &Result{Content: message, IsError: true} }
