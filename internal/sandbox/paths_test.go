package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsWriteBlockedSystemDirs(t *testing.T) {
	cases := []struct {
		path    string
		blocked bool
	}{
		{"/bin/sh", true},
		{"/usr/local/bin/foo", true},
		{"/binaries/not-blocked", false},
		{"/tmp/some/new/file.txt", false},
	}
	for _, c := range cases {
		got := IsWriteBlocked(c.path, "")
		if got != c.blocked {
			t.Errorf("IsWriteBlocked(%q) = %v, want %v", c.path, got, c.blocked)
		}
	}
}

func TestIsWriteBlockedRelativeFailsClosed(t *testing.T) {
	if !IsWriteBlocked("relative/path.txt", "") {
		t.Error("relative path should fail closed as blocked")
	}
}

func TestIsWriteBlockedDataDir(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	blockedPath := filepath.Join(dataDir, "data", "memory.db")
	if !IsWriteBlocked(blockedPath, dataDir) {
		t.Errorf("write under %s should be blocked", filepath.Join(dataDir, "data"))
	}
	cfgPath := filepath.Join(dataDir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte("x=1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !IsWriteBlocked(cfgPath, dataDir) {
		t.Error("write to config.toml should be blocked")
	}
	allowedPath := filepath.Join(dataDir, "workspace", "notes.txt")
	if IsWriteBlocked(allowedPath, dataDir) {
		t.Error("write under workspace should not be blocked")
	}
}

func TestIsReadBlockedDataDir(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if !IsReadBlocked(filepath.Join(dataDir, "data", "memory.db"), dataDir, "") {
		t.Error("read from data/ should be blocked")
	}
	if IsReadBlocked(filepath.Join(dataDir, "workspace", "notes.txt"), dataDir, "") {
		t.Error("read from workspace should not be blocked")
	}
}

func TestIsUnderDoesNotMatchSiblingPrefix(t *testing.T) {
	if isUnder("/binaries/foo", "/bin") {
		t.Error("/binaries/foo must not be considered under /bin")
	}
	if !isUnder("/bin/sh", "/bin") {
		t.Error("/bin/sh must be considered under /bin")
	}
	if !isUnder("/bin", "/bin") {
		t.Error("/bin must be considered under itself")
	}
}

func TestEnsureDataDirs(t *testing.T) {
	dataDir := t.TempDir()
	if err := EnsureDataDirs(dataDir); err != nil {
		t.Fatalf("EnsureDataDirs: %v", err)
	}
	for _, sub := range []string{"data", "workspace", "skills", "projects"} {
		if info, err := os.Stat(filepath.Join(dataDir, sub)); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", sub)
		}
	}
}
