package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/omegagate/internal/sandbox"
)

const readMaxChars = 50000

// ReadTool reads a UTF-8 file, blocked by the sandbox's code-layer read
// blocklist. Grounded on the teacher's internal/tools/filesystem.go
// ReadFileTool, trimmed of its workspace-allowlist resolvePath in favor of
// the spec's blocklist check.
type ReadTool struct {
	guard *sandbox.Guard
}

func NewReadTool(guard *sandbox.Guard) *ReadTool { return &ReadTool{guard: guard} }

func (t *ReadTool) Name() string        { return "read" }
func (t *ReadTool) Description() string { return "Read a UTF-8 text file" }
func (t *ReadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"file_path": map[string]interface{}{"type": "string"}},
		"required":   []string{"file_path"},
	}
}

func (t *ReadTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["file_path"].(string)
	if path == "" {
		return ErrorResult("file_path is required")
	}
	if err := t.guard.CheckRead(path); err != nil {
		return ErrorResult("read denied: " + err.Error())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	content := string(data)
	if len(content) > readMaxChars {
		content = content[:readMaxChars] + "\n... (truncated)"
	}
	return NewResult(content)
}

// WriteTool overwrites (creating parents) a file, blocked by the sandbox's
// code-layer write blocklist.
type WriteTool struct {
	guard *sandbox.Guard
}

func NewWriteTool(guard *sandbox.Guard) *WriteTool { return &WriteTool{guard: guard} }

func (t *WriteTool) Name() string        { return "write" }
func (t *WriteTool) Description() string { return "Write content to a file, creating it if necessary" }
func (t *WriteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{"type": "string"},
			"content":   map[string]interface{}{"type": "string"},
		},
		"required": []string{"file_path", "content"},
	}
}

func (t *WriteTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["file_path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return ErrorResult("file_path is required")
	}
	if err := t.guard.CheckWrite(path); err != nil {
		return ErrorResult("write denied: " + err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult(err.Error())
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ErrorResult(err.Error())
	}
	return NewResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

// EditTool replaces the first occurrence of old_string with new_string.
type EditTool struct {
	guard *sandbox.Guard
}

func NewEditTool(guard *sandbox.Guard) *EditTool { return &EditTool{guard: guard} }

func (t *EditTool) Name() string        { return "edit" }
func (t *EditTool) Description() string { return "Replace the first occurrence of a string in a file" }
func (t *EditTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path":  map[string]interface{}{"type": "string"},
			"old_string": map[string]interface{}{"type": "string"},
			"new_string": map[string]interface{}{"type": "string"},
		},
		"required": []string{"file_path", "old_string", "new_string"},
	}
}

func (t *EditTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["file_path"].(string)
	oldStr, _ := args["old_string"].(string)
	newStr, _ := args["new_string"].(string)
	if path == "" || oldStr == "" {
		return ErrorResult("file_path and old_string are required")
	}
	if err := t.guard.CheckWrite(path); err != nil {
		return ErrorResult("edit denied: " + err.Error())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	content := string(data)
	if !strings.Contains(content, oldStr) {
		return ErrorResult("old_string not found in file")
	}
	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return ErrorResult(err.Error())
	}
	return NewResult(fmt.Sprintf("edited %s", path))
}
