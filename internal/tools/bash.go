package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/sandbox"
)

const (
	bashTimeout    = 120 * time.Second
	bashMaxOutput  = 30000
)

// denyPatterns blocks a well-known set of destructive, exfiltrating, or
// privilege-escalating shell idioms before a command ever reaches the
// sandbox's OS-enforced layer. Trimmed from the teacher's defaultDenyPatterns
// (internal/tools/shell.go) to the subset relevant to a single-box, non-
// containerized deployment.
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\brm\s+.*--recursive`),
	regexp.MustCompile(`\b(mkfs|diskpart)\b|\bformat\s`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`/dev/tcp/`),
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[el]\b`),
	regexp.MustCompile(`\bsocat\b`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bLD_PRELOAD\s*=`),
	regexp.MustCompile(`/var/run/docker\.sock`),
	regexp.MustCompile(`\bcrontab\b`),
	regexp.MustCompile(`\bkill\s+-9\s`),
}

// BashTool executes a shell command in the gateway workspace through the
// sandbox's OS-enforced wrapper.
type BashTool struct {
	workspace string
	guard     *sandbox.Guard
}

func NewBashTool(workspace string, guard *sandbox.Guard) *BashTool {
	return &BashTool{workspace: workspace, guard: guard}
}

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Description() string { return "Execute a shell command in the workspace directory" }
func (t *BashTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string", "description": "The shell command to execute"},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}
	for _, pattern := range denyPatterns {
		if pattern.MatchString(command) {
			return ErrorResult("command denied by safety policy")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, bashTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = t.workspace
	if t.guard != nil {
		t.guard.Wrap(cmd)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := out.String()
	if len(output) > bashMaxOutput {
		output = output[:bashMaxOutput] + "\n... (truncated)"
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ErrorResult(fmt.Sprintf("command timed out after %s", bashTimeout))
		}
		if output == "" {
			output = err.Error()
		}
		return ErrorResult(output)
	}
	if output == "" {
		output = "(command completed with no output)"
	}
	return NewResult(output)
}
