package providers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/apperror"
)

// nestedSessionEnvVar is stripped from the child's environment so a spawned
// CLI provider never detects it is already inside an agent session and
// recurses. Named after the convention the teacher's own tool layer guards
// against for its exec tool.
const nestedSessionEnvVar = "OMEGAGATE_SESSION_ACTIVE"

// turnCapMarker is the substring a subprocess CLI prints when it hits its own
// internal turn limit mid-task; seeing it triggers an auto-resume re-invoke.
const turnCapMarker = "[turn limit reached]"

// CLIProvider wraps a local LLM CLI binary as a Provider. It spawns a
// short-lived process per call with stdin-free arguments, a working
// directory equal to the workspace, the nested-session env var stripped, a
// configurable timeout, and auto-resume when the output indicates the
// conversation hit its turn cap. Grounded on the os/exec conventions in the
// teacher's internal/tools/shell.go ExecTool (context-bounded
// exec.CommandContext, combined stdout+stderr capture) — no teacher provider
// is subprocess-based, so this component generalizes that pattern to a CLI
// LLM backend rather than an arbitrary shell command.
type CLIProvider struct {
	binary            string
	baseArgs          []string
	workspace         string
	timeout           time.Duration
	maxResumeAttempts int
}

// NewCLIProvider constructs a subprocess provider. binary is resolved via
// PATH lookup at IsAvailable() time; baseArgs are appended before the
// per-call prompt argument (e.g. []string{"--print", "--model", "haiku"}).
func NewCLIProvider(binary string, baseArgs []string, workspace string, timeout time.Duration) *CLIProvider {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &CLIProvider{
		binary:            binary,
		baseArgs:          baseArgs,
		workspace:         workspace,
		timeout:           timeout,
		maxResumeAttempts: 3,
	}
}

func (p *CLIProvider) Name() string         { return "cli:" + p.binary }
func (p *CLIProvider) RequiresAPIKey() bool { return false }

func (p *CLIProvider) IsAvailable() bool {
	_, err := exec.LookPath(p.binary)
	return err == nil
}

// Complete spawns the CLI once per turn with the fully rendered prompt as its
// single argument. Unlike the HTTP providers, tool dispatch happens inside
// the CLI process itself (it has its own tool loop), so exec is accepted for
// interface symmetry but unused; the ToolExecutor abstraction is for
// HTTP-style providers only.
func (p *CLIProvider) Complete(ctx context.Context, pctx Context, exec ToolExecutor) (*Response, error) {
	if err := pctx.Validate(); err != nil {
		return nil, apperror.New(apperror.KindProvider, "cli.Complete", err)
	}
	start := time.Now()
	prompt := renderCLIPrompt(pctx)

	var output string
	var err error
	for attempt := 0; attempt < p.maxResumeAttempts; attempt++ {
		output, err = p.run(ctx, prompt)
		if err != nil {
			return nil, apperror.New(apperror.KindProvider, "cli.Complete", err)
		}
		if !strings.Contains(output, turnCapMarker) {
			break
		}
		prompt = "continue"
	}

	return &Response{
		Text:      strings.TrimSuffix(output, turnCapMarker),
		Provider:  p.Name(),
		Model:     p.binary,
		ElapsedMs: time.Since(start).Milliseconds(),
	}, nil
}

func renderCLIPrompt(pctx Context) string {
	var b strings.Builder
	if pctx.SystemPrompt != "" {
		b.WriteString(pctx.SystemPrompt)
		b.WriteString("\n\n")
	}
	for _, h := range pctx.History {
		fmt.Fprintf(&b, "%s: %s\n", h.Role, h.Content)
	}
	b.WriteString(pctx.Message)
	return b.String()
}

func (p *CLIProvider) run(ctx context.Context, prompt string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := append(append([]string{}, p.baseArgs...), prompt)
	cmd := exec.CommandContext(runCtx, p.binary, args...)
	cmd.Dir = p.workspace
	cmd.Env = stripEnvVar(os.Environ(), nestedSessionEnvVar)
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("cli provider timed out after %s", p.timeout)
		}
		if stderr.Len() > 0 {
			return "", fmt.Errorf("cli provider failed: %s", stderr.String())
		}
		return "", fmt.Errorf("cli provider failed: %w", err)
	}
	return stdout.String(), nil
}

func stripEnvVar(env []string, name string) []string {
	out := make([]string, 0, len(env))
	prefix := name + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
