// Package sandbox implements the gateway's always-on, dual-layer filesystem
// sandbox (§4.7): a code-layer blocklist shared by every tool and provider,
// and an OS-layer subprocess wrapper (Landlock on Linux, sandbox-exec on
// macOS) for defense in depth.
//
// The code-layer path checks are grounded on the teacher's
// internal/tools/filesystem.go resolvePath/isPathInside/symlink-escape
// machinery, generalized from an allowlist ("stay inside workspace") to a
// blocklist ("stay outside the blocked set") per this gateway's rationale:
// provider autonomy needs to reach /usr/local and $HOME, dangerous paths are
// few and well known, and a blocklist survives user-added directories
// without reconfiguration.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"
)

// systemBinDirs are always write-blocked regardless of data_dir.
var systemBinDirs = []string{"/bin", "/sbin", "/usr/bin", "/usr/sbin", "/usr/local/bin", "/usr/local/sbin"}

// canonicalize resolves path to an absolute, symlink-resolved form on a
// best-effort basis. Relative paths are joined against the current working
// directory; if resolution fails (path or its parent doesn't exist), the
// cleaned absolute form is returned so the caller still has something
// component-comparable.
func canonicalize(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, true
	}
	// Path (or a component) doesn't exist yet — walk up to the deepest
	// existing ancestor and resolve that, so writes to new files under a
	// blocked directory are still caught.
	dir := filepath.Dir(abs)
	for {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			rel, relErr := filepath.Rel(dir, abs)
			if relErr != nil {
				return abs, true
			}
			return filepath.Join(real, rel), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return abs, true
}

// isUnder reports whether child is component-wise inside or equal to parent.
// This is deliberately not a string-prefix check: "/binaries" must not match
// the blocked directory "/bin".
func isUnder(child, parent string) bool {
	child = filepath.Clean(child)
	parent = filepath.Clean(parent)
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// blockedWritePrefixes returns the always-blocked write roots for a given
// data_dir, as given (not canonicalized): system binary directories plus the
// data_dir's data/ subdirectory. {data_dir}/config.toml is checked separately
// by IsWriteBlocked.
func blockedWritePrefixes(dataDir string) []string {
	prefixes := make([]string, 0, len(systemBinDirs)+2)
	prefixes = append(prefixes, systemBinDirs...)
	if dataDir != "" {
		prefixes = append(prefixes, filepath.Join(dataDir, "data"))
	}
	return prefixes
}

// blockedReadPrefixes returns the always-blocked read roots for a given
// data_dir, as given (not canonicalized): the data_dir's data/ subdirectory. The config
// file is checked separately (by exact path, not prefix) since it's a single
// file, not a directory tree — see IsReadBlocked.
func blockedReadPrefixes(dataDir string) []string {
	if dataDir == "" {
		return nil
	}
	return []string{filepath.Join(dataDir, "data")}
}

// IsWriteBlocked reports whether path is disallowed for writes: system
// binary directories, {data_dir}/data/, or {data_dir}/config.toml. Relative
// paths fail closed (treated as blocked) since they cannot be safely
// canonicalized against an unknown base.
func IsWriteBlocked(path, dataDir string) bool {
	if !filepath.IsAbs(path) {
		return true
	}
	real, ok := canonicalize(path)
	if !ok {
		return true
	}
	if dataDir != "" {
		cfgPath, ok := canonicalize(filepath.Join(dataDir, "config.toml"))
		if ok && real == cfgPath {
			return true
		}
	}
	for _, prefix := range blockedWritePrefixes(dataDir) {
		canon, ok := canonicalize(prefix)
		if !ok {
			canon = filepath.Clean(prefix)
		}
		if isUnder(real, canon) {
			return true
		}
	}
	return false
}

// IsReadBlocked reports whether path is disallowed for reads: {data_dir}/data/
// and the configured config file path(s). Relative paths fail closed.
func IsReadBlocked(path, dataDir, configPath string) bool {
	if !filepath.IsAbs(path) {
		return true
	}
	real, ok := canonicalize(path)
	if !ok {
		return true
	}
	if dataDir != "" {
		dataSub, ok := canonicalize(filepath.Join(dataDir, "data"))
		if ok && isUnder(real, dataSub) {
			return true
		}
	}
	candidates := []string{configPath}
	if dataDir != "" {
		candidates = append(candidates, filepath.Join(dataDir, "config.toml"))
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		canon, ok := canonicalize(c)
		if !ok {
			canon = filepath.Clean(c)
		}
		if real == canon {
			return true
		}
	}
	return false
}

// EnsureDataDirs creates the workspace/data/skills/projects layout described
// in §6.3, if not already present.
func EnsureDataDirs(dataDir string) error {
	for _, sub := range []string{"data", "workspace", "skills", "projects"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}
