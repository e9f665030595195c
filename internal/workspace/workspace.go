// Package workspace maintains WORKSPACE.md, a plain-text context file
// summarizing a sender's recent lessons and outcomes so tools that read the
// workspace directory (or a human inspecting it) see an up-to-date picture
// without querying the store directly (§4.9).
//
// Grounded on the teacher's internal/bootstrap/seed.go template-seeding
// idiom, trimmed to file-refresh only: this spec has no DB-backed virtual
// filesystem to route through, just a single on-disk file kept current.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/store"
)

const fileName = "WORKSPACE.md"

// Maintainer periodically rewrites WORKSPACE.md for one sender.
type Maintainer struct {
	dir      string
	senderID string
	store    *store.Store
	interval time.Duration
}

func New(workspaceDir, senderID string, st *store.Store, interval time.Duration) *Maintainer {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Maintainer{dir: workspaceDir, senderID: senderID, store: st, interval: interval}
}

func (m *Maintainer) Run(ctx context.Context) {
	m.refresh(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *Maintainer) refresh(ctx context.Context) {
	lessons, err := m.store.GetAllLessons(ctx, m.senderID)
	if err != nil {
		slog.Warn("workspace: load lessons failed", "error", err)
		return
	}
	outcomes, err := m.store.GetRecentOutcomesAll(ctx, m.senderID, store.RecentOutcomesLimit)
	if err != nil {
		slog.Warn("workspace: load outcomes failed", "error", err)
		return
	}

	content := render(lessons, outcomes)
	path := filepath.Join(m.dir, fileName)
	existing, _ := os.ReadFile(path)
	if string(existing) == content {
		return
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		slog.Warn("workspace: ensure dir failed", "error", err)
		return
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		slog.Warn("workspace: write failed", "error", err)
	}
}

func render(lessons []store.Lesson, outcomes []store.Outcome) string {
	var b strings.Builder
	b.WriteString("# Workspace context\n\nAutomatically maintained. Do not edit by hand — changes are overwritten on the next refresh.\n\n")

	b.WriteString("## Lessons\n\n")
	if len(lessons) == 0 {
		b.WriteString("None yet.\n\n")
	} else {
		for _, l := range lessons {
			fmt.Fprintf(&b, "- [%s] (seen %dx) %s\n", l.Domain, l.Occurrences, l.Rule)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recent outcomes\n\n")
	if len(outcomes) == 0 {
		b.WriteString("None yet.\n")
	} else {
		for _, o := range outcomes {
			fmt.Fprintf(&b, "- %s [%s] score %d (%s): %s\n", o.Timestamp.Format("2006-01-02"), o.Domain, o.Score, o.Source, o.Lesson)
		}
	}
	return b.String()
}
