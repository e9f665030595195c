package sandbox

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"

	"github.com/nextlevelbuilder/omegagate/internal/apperror"
)

// Config carries the paths the sandbox protects. It is always active; unlike
// the teacher's Docker-based sandbox.Config there is no "off" mode, per this
// gateway's Non-goal excluding container isolation in favor of a lighter
// always-on blocklist.
type Config struct {
	DataDir    string
	ConfigPath string
}

// Guard is the code-layer enforcement point every tool checks before
// touching the filesystem, plus the OS-layer subprocess wrapper for the
// shell tool.
type Guard struct {
	cfg Config
}

func New(cfg Config) *Guard {
	return &Guard{cfg: cfg}
}

// CheckWrite returns an apperror.KindSandbox error if path may not be
// written to.
func (g *Guard) CheckWrite(path string) error {
	if IsWriteBlocked(path, g.cfg.DataDir) {
		return apperror.New(apperror.KindSandbox, "Guard.CheckWrite", fmt.Errorf("write to %s is blocked", path))
	}
	return nil
}

// CheckRead returns an apperror.KindSandbox error if path may not be read.
func (g *Guard) CheckRead(path string) error {
	if IsReadBlocked(path, g.cfg.DataDir, g.cfg.ConfigPath) {
		return apperror.New(apperror.KindSandbox, "Guard.CheckRead", fmt.Errorf("read from %s is blocked", path))
	}
	return nil
}

// Wrap applies the OS-enforced layer to cmd in place, logging a warning on
// every call if the current platform has no enforcement primitive wired up.
func (g *Guard) Wrap(cmd *exec.Cmd) {
	WrapCommand(cmd, g.cfg.DataDir, g.cfg.ConfigPath)
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		slog.Warn("sandbox: no OS-enforced layer on this platform, relying on code-layer blocklist only", "os", runtime.GOOS)
	}
}
