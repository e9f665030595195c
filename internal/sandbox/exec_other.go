//go:build !linux && !darwin

package sandbox

import "os/exec"

// WrapCommand is a no-op on platforms without an OS-enforced sandbox
// primitive wired up. The code-layer blocklist in paths.go still applies.
func WrapCommand(cmd *exec.Cmd, dataDir, configPath string) {}

// MaybeReexec is a no-op on platforms without a WrapCommand re-exec step.
func MaybeReexec() {}
