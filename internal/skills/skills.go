// Package skills loads Skill and Project definitions (§3, §4.8) from
// {data_dir}/skills/{name}/SKILL.md and {data_dir}/projects/{name}/ROLE.md,
// matches skills against message text to activate their declared MCP
// servers for that request, and hot-reloads both directories via fsnotify.
//
// Grounded on the teacher's skills.NewWatcher debounce-then-reload loop
// shape, generalized to also watch the projects directory; the on-disk
// format (a small "key: value" header, a "---" separator, then free-text
// prompt body) is designed fresh since no teacher file defines a skill file
// format, matching the instructions' allowance for enrichment when the spec
// needs something the teacher doesn't have.
package skills

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/omegagate/internal/mcp"
	"github.com/nextlevelbuilder/omegagate/internal/store"
)

// ActiveProjectFactKey is the Fact key tracking a sender's currently
// activated project, read by the pipeline's context-build step.
const ActiveProjectFactKey = "active_project"

type Skill struct {
	Name          string
	Description   string
	RequiredTools []string
	Trigger       *regexp.Regexp
	MCPServers    []mcp.ServerSpec
	Prompt        string
	path          string
}

// SkillMatch is one skill that matched a message's text, carrying just
// enough for the pipeline's context-build and MCP-activation steps.
type SkillMatch struct {
	Name       string
	MCPServers []string
	Prompt     string
}

type Project struct {
	Name string
	Role string
}

// Registry holds the currently-loaded skills and projects, safe for
// concurrent reads from pipeline tasks while Watch reloads it in the
// background.
type Registry struct {
	skillsDir   string
	projectsDir string
	store       *store.Store

	mu       sync.RWMutex
	skills   map[string]*Skill
	projects map[string]*Project
}

func NewRegistry(skillsDir, projectsDir string, st *store.Store) *Registry {
	return &Registry{
		skillsDir:   skillsDir,
		projectsDir: projectsDir,
		store:       st,
		skills:      make(map[string]*Skill),
		projects:    make(map[string]*Project),
	}
}

// Load performs a full rescan of both directories.
func (r *Registry) Load() error {
	if err := r.loadSkills(); err != nil {
		return err
	}
	return r.loadProjects()
}

func (r *Registry) loadSkills() error {
	entries, err := os.ReadDir(r.skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("skills: read dir: %w", err)
	}
	loaded := make(map[string]*Skill)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(r.skillsDir, e.Name(), "SKILL.md")
		sk, err := parseSkillFile(e.Name(), path)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("skills: skip invalid skill", "name", e.Name(), "error", err)
			}
			continue
		}
		loaded[e.Name()] = sk
	}
	r.mu.Lock()
	r.skills = loaded
	r.mu.Unlock()
	return nil
}

func (r *Registry) loadProjects() error {
	entries, err := os.ReadDir(r.projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("skills: read projects dir: %w", err)
	}
	loaded := make(map[string]*Project)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(r.projectsDir, e.Name(), "ROLE.md"))
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("skills: skip invalid project", "name", e.Name(), "error", err)
			}
			continue
		}
		loaded[e.Name()] = &Project{Name: e.Name(), Role: string(content)}
	}
	r.mu.Lock()
	r.projects = loaded
	r.mu.Unlock()
	return nil
}

func parseSkillFile(name, path string) (*Skill, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sk := &Skill{Name: name, path: path}
	var header []string
	var body strings.Builder
	inBody := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !inBody {
			if strings.TrimSpace(line) == "---" {
				inBody = true
				continue
			}
			header = append(header, line)
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !inBody {
		body.Reset()
		body.WriteString(strings.Join(header, "\n"))
		header = nil
	}

	for _, line := range header {
		key, val, ok := splitHeaderLine(line)
		if !ok {
			continue
		}
		switch key {
		case "description":
			sk.Description = val
		case "trigger":
			re, err := regexp.Compile(val)
			if err != nil {
				return nil, fmt.Errorf("invalid trigger regex: %w", err)
			}
			sk.Trigger = re
		case "tools":
			for _, t := range strings.Split(val, ",") {
				if t = strings.TrimSpace(t); t != "" {
					sk.RequiredTools = append(sk.RequiredTools, t)
				}
			}
		case "mcp":
			for _, decl := range strings.Split(val, ",") {
				if spec, ok := parseMCPDecl(decl); ok {
					sk.MCPServers = append(sk.MCPServers, spec)
				}
			}
		}
	}
	sk.Prompt = strings.TrimSpace(body.String())
	return sk, nil
}

func splitHeaderLine(line string) (key, val string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// parseMCPDecl parses "name=command arg1 arg2" into an mcp.ServerSpec.
func parseMCPDecl(decl string) (mcp.ServerSpec, bool) {
	decl = strings.TrimSpace(decl)
	eq := strings.Index(decl, "=")
	if eq < 0 {
		return mcp.ServerSpec{}, false
	}
	name := strings.TrimSpace(decl[:eq])
	fields := strings.Fields(decl[eq+1:])
	if name == "" || len(fields) == 0 {
		return mcp.ServerSpec{}, false
	}
	return mcp.ServerSpec{Name: name, Command: fields[0], Args: fields[1:]}, true
}

// Match returns the skills whose trigger regex matches text, for the
// pipeline's skill-trigger step (§4.1 step 7).
func (r *Registry) Match(text string) []SkillMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []SkillMatch
	for _, sk := range r.skills {
		if sk.Trigger == nil || !sk.Trigger.MatchString(text) {
			continue
		}
		names := make([]string, len(sk.MCPServers))
		for i, s := range sk.MCPServers {
			names[i] = s.Name
		}
		matches = append(matches, SkillMatch{Name: sk.Name, MCPServers: names, Prompt: sk.Prompt})
	}
	return matches
}

// AllMCPServers returns the union of every loaded skill's declared MCP
// servers, deduplicated by name, for startup connection.
func (r *Registry) AllMCPServers() []mcp.ServerSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []mcp.ServerSpec
	for _, sk := range r.skills {
		for _, s := range sk.MCPServers {
			if !seen[s.Name] {
				seen[s.Name] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// ProjectRole returns the named project's ROLE.md content.
func (r *Registry) ProjectRole(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[name]
	if !ok {
		return "", false
	}
	return p.Role, true
}

// AppendLesson implements marker.SkillUpdater: it appends a lesson line to
// the matching skill's SKILL.md file on disk and updates the in-memory copy
// in place (the fsnotify watcher will also pick up the on-disk change and
// reload, but updating here avoids a race with the debounce window).
func (r *Registry) AppendLesson(skillName, lesson string) error {
	r.mu.RLock()
	sk, ok := r.skills[skillName]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("skills: unknown skill %q", skillName)
	}

	f, err := os.OpenFile(sk.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("skills: open %s: %w", sk.path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "\n- %s\n", lesson); err != nil {
		return fmt.Errorf("skills: append lesson: %w", err)
	}

	r.mu.Lock()
	sk.Prompt = strings.TrimSpace(sk.Prompt + "\n- " + lesson)
	r.mu.Unlock()
	return nil
}

// Activate implements marker.ProjectActivator: it records the sender's new
// active project as a fact (read back by the pipeline's context-build
// step) and closes their current conversation so the next turn opens a
// fresh, project-tagged one (§3 Project lifecycle).
func (r *Registry) Activate(ctx context.Context, senderID, project string) error {
	r.mu.RLock()
	_, ok := r.projects[project]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("skills: unknown project %q", project)
	}
	if err := r.store.StoreFact(ctx, senderID, ActiveProjectFactKey, project, ""); err != nil {
		return err
	}
	active, err := r.store.FindIdleConversations(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, c := range active {
		if c.SenderID != senderID {
			continue
		}
		if err := r.store.CloseConversation(ctx, c.ID, c.Summary); err != nil {
			return err
		}
	}
	return nil
}

// Watch runs fsnotify watches over the skills and projects directory trees,
// debouncing bursts of events into a single reload, until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("skills: new watcher: %w", err)
	}
	defer watcher.Close()

	if err := r.addWatches(watcher); err != nil {
		return err
	}

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !pending {
				pending = true
				debounce.Reset(500 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("skills: watcher error", "error", err)
		case <-debounce.C:
			pending = false
			if err := r.Load(); err != nil {
				slog.Warn("skills: reload failed", "error", err)
			} else {
				slog.Info("skills: reloaded")
				if err := r.addWatches(watcher); err != nil {
					slog.Warn("skills: failed to add watches for new directories", "error", err)
				}
			}
		}
	}
}

func (r *Registry) addWatches(watcher *fsnotify.Watcher) error {
	for _, root := range []string{r.skillsDir, r.projectsDir} {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("skills: ensure dir %s: %w", root, err)
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			return watcher.Add(path)
		})
		if err != nil {
			return fmt.Errorf("skills: watch %s: %w", root, err)
		}
	}
	return nil
}
