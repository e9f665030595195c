//go:build linux

package sandbox

import (
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// landlockReexecArg marks a child invocation of our own binary as a Landlock
// pre-exec step rather than a normal subcommand. landlockBlockedEnv carries
// the blocked directory list across the exec boundary, since Go's os/exec
// has no hook to run arbitrary code in the child between fork and exec.
const (
	landlockReexecArg = "__omegagate_landlock_reexec__"
	landlockBlockedEnv = "OMEGAGATE_LANDLOCK_BLOCKED"
)

// WrapCommand applies the Linux OS-enforced layer: it rewrites cmd to run
// through a re-exec of this same binary, which installs a Landlock ruleset
// restricting filesystem writes to everything outside the blocked set and
// then execs the real target — mirroring the macOS WrapCommand's rewrap
// through sandbox-exec. Landlock failures (old kernel, disabled at build
// time) are non-fatal: the code-layer blocklist in paths.go still applies,
// so the command still runs, just with one less layer of defense.
func WrapCommand(cmd *exec.Cmd, dataDir, configPath string) {
	blocked := blockedWritePrefixes(dataDir)
	if configPath != "" {
		blocked = append(blocked, configPath)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGKILL,
	}

	self, err := os.Executable()
	if err != nil {
		return
	}
	orig := append([]string{cmd.Path}, cmd.Args[1:]...)
	cmd.Path = self
	cmd.Args = append([]string{self, landlockReexecArg}, orig...)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, landlockBlockedEnv+"="+strings.Join(blocked, string(os.PathListSeparator)))
}

// MaybeReexec checks whether the current process was invoked as a Landlock
// pre-exec step (by WrapCommand, above). If so, it installs the ruleset and
// execs the real target in place of this process, never returning. Call
// this as the very first thing in main, before any command parsing.
func MaybeReexec() {
	if len(os.Args) < 3 || os.Args[1] != landlockReexecArg {
		return
	}
	blocked := strings.Split(os.Getenv(landlockBlockedEnv), string(os.PathListSeparator))
	_ = restrictSelf(blocked) // best-effort: fall through to exec either way

	target := os.Args[2]
	args := os.Args[2:]
	if err := syscall.Exec(target, args, os.Environ()); err != nil {
		os.Exit(127)
	}
}

// restrictSelf installs a Landlock ruleset in the CURRENT process, blocking
// write access to the given absolute directory prefixes. Intended to be
// called by a short-lived child process (our own "bash" tool's exec helper)
// immediately after fork, before exec'ing the user's command.
func restrictSelf(blockedDirs []string) error {
	abi, err := unix.LandlockGetABIVersion()
	if err != nil || abi < 1 {
		return err
	}
	ruleset, err := unix.LandlockNewRuleset(
		&unix.LandlockRulesetAttr{
			AccessFs: unix.LANDLOCK_ACCESS_FS_WRITE_FILE | unix.LANDLOCK_ACCESS_FS_REMOVE_FILE,
		},
		0,
	)
	if err != nil {
		return err
	}
	defer unix.Close(ruleset)

	for _, dir := range blockedDirs {
		fd, err := unix.Open(dir, unix.O_PATH, 0)
		if err != nil {
			continue
		}
		_ = unix.LandlockAddPathBeneathRule(ruleset, fd, &unix.LandlockPathBeneathAttr{
			ParentFd:      fd,
			AllowedAccess: 0,
		})
		unix.Close(fd)
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return err
	}
	return unix.LandlockRestrictSelf(ruleset, 0)
}
