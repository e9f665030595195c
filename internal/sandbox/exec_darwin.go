//go:build darwin

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// sandboxProfileTemplate is a minimal sandbox-exec profile that allows
// everything by default, including network access; the deny rules that
// writeProfile fills in block writes to the blocked directories and reads of
// the data directory and config file. sandbox-exec is deprecated but remains the only
// process-level sandbox primitive macOS ships without a third-party kernel
// extension, and the teacher's own Docker-based sandbox never had to solve
// this, so this profile is written fresh for this gateway.
const sandboxProfileTemplate = `(version 1)
(allow default)
%s
`

// WrapCommand rewrites cmd to run under sandbox-exec with a generated
// profile denying writes and reads under the blocked directories/files. If
// sandbox-exec is unavailable the command is left unwrapped and the
// code-layer blocklist is the sole enforcement point.
func WrapCommand(cmd *exec.Cmd, dataDir, configPath string) {
	profilePath, err := writeProfile(dataDir, configPath)
	if err != nil {
		return
	}
	if _, lookErr := exec.LookPath("sandbox-exec"); lookErr != nil {
		return
	}
	orig := append([]string{cmd.Path}, cmd.Args[1:]...)
	cmd.Path, _ = exec.LookPath("sandbox-exec")
	cmd.Args = append([]string{"sandbox-exec", "-f", profilePath}, orig...)
}

// MaybeReexec is a no-op on macOS: WrapCommand's sandbox-exec rewrap needs
// no corresponding self-reexec step in this process.
func MaybeReexec() {}

// writeProfile mirrors paths.go's IsWriteBlocked/IsReadBlocked logic as
// sandbox-exec deny rules: writes are denied under the blocked directories
// plus the exact config file path, reads are denied under {data_dir}/data/
// plus that same config file path.
func writeProfile(dataDir, configPath string) (string, error) {
	var denies strings.Builder
	for _, dir := range blockedWritePrefixes(dataDir) {
		fmt.Fprintf(&denies, "(deny file-write* (subpath %q))\n", dir)
	}
	if configPath != "" {
		fmt.Fprintf(&denies, "(deny file-write* (literal %q))\n", configPath)
	} else if dataDir != "" {
		fmt.Fprintf(&denies, "(deny file-write* (literal %q))\n", filepath.Join(dataDir, "config.toml"))
	}
	for _, dir := range blockedReadPrefixes(dataDir) {
		fmt.Fprintf(&denies, "(deny file-read* (subpath %q))\n", dir)
	}
	if configPath != "" {
		fmt.Fprintf(&denies, "(deny file-read* (literal %q))\n", configPath)
	} else if dataDir != "" {
		fmt.Fprintf(&denies, "(deny file-read* (literal %q))\n", filepath.Join(dataDir, "config.toml"))
	}
	content := fmt.Sprintf(sandboxProfileTemplate, denies.String())
	path := filepath.Join(os.TempDir(), "omegagate-sandbox.sb")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
