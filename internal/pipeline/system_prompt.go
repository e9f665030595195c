package pipeline

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/omegagate/internal/marker"
	"github.com/nextlevelbuilder/omegagate/internal/providers"
	"github.com/nextlevelbuilder/omegagate/internal/skills"
	"github.com/nextlevelbuilder/omegagate/internal/store"
)

// buildProviderContext assembles the provider Context for one turn (§4.1
// step 6): bundled system prompt + sandbox constraint text + project role +
// facts + summaries/outcomes/lessons + recall + pending tasks + skill
// prompts + heartbeat checklist, followed by history and the current
// message.
func (p *Pipeline) buildProviderContext(bundle store.ContextBundle, matches []skills.SkillMatch, text string) providers.Context {
	var sections []string
	if p.cfg.SystemPrompt != "" {
		sections = append(sections, p.cfg.SystemPrompt)
	}
	if p.guard != nil {
		sections = append(sections, sandboxConstraintText(p.cfg.Workspace))
	}
	if bundle.Conversation.Project != "" && p.skills != nil {
		if role, ok := p.skills.ProjectRole(bundle.Conversation.Project); ok {
			sections = append(sections, "Active project: "+bundle.Conversation.Project+"\n"+role)
		}
	}
	if block := factsBlock(bundle.Facts); block != "" {
		sections = append(sections, block)
	}
	if block := summariesOutcomesLessonsBlock(bundle); block != "" {
		sections = append(sections, block)
	}
	if block := recallBlock(bundle.RecentRecall); block != "" {
		sections = append(sections, block)
	}
	if block := pendingTasksBlock(bundle.PendingTasks); block != "" {
		sections = append(sections, block)
	}
	if block := skillPromptBlock(matches); block != "" {
		sections = append(sections, block)
	}
	if block := heartbeatChecklistBlock(bundle.Facts); block != "" {
		sections = append(sections, block)
	}

	history := make([]providers.HistoryEntry, 0, len(bundle.RecentHistory))
	for _, m := range bundle.RecentHistory {
		role := providers.RoleUser
		if m.Role == store.MessageRoleAssistant {
			role = providers.RoleAssistant
		}
		history = append(history, providers.HistoryEntry{Role: role, Content: m.Content})
	}

	mcpServers := make([]string, 0, len(matches))
	seen := map[string]bool{}
	for _, m := range matches {
		for _, s := range m.MCPServers {
			if !seen[s] {
				seen[s] = true
				mcpServers = append(mcpServers, s)
			}
		}
	}

	var toolDefs []providers.ToolDefinition
	if p.toolExec != nil {
		toolDefs = p.toolDefs
	}

	return providers.Context{
		SystemPrompt: strings.Join(sections, "\n\n"),
		History:      history,
		Message:      text,
		MCPServers:   mcpServers,
		Tools:        toolDefs,
		ToolsEnabled: p.toolExec != nil,
		Workspace:    p.cfg.Workspace,
	}
}

func sandboxConstraintText(workspace string) string {
	return fmt.Sprintf("Tool file access is sandboxed: writes to system binary directories and to the gateway's data directory and config file are denied, as are reads of the data directory and config file. The working directory is %s.", workspace)
}

func factsBlock(facts []store.Fact) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known facts about this user:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func summariesOutcomesLessonsBlock(bundle store.ContextBundle) string {
	var b strings.Builder
	if len(bundle.RecentSummaries) > 0 {
		b.WriteString("Recent conversation summaries:\n")
		for _, s := range bundle.RecentSummaries {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if len(bundle.RecentOutcomes) > 0 {
		b.WriteString("Recent outcomes:\n")
		for _, o := range bundle.RecentOutcomes {
			fmt.Fprintf(&b, "- [%s] score %d: %s\n", o.Domain, o.Score, o.Lesson)
		}
	}
	if len(bundle.Lessons) > 0 {
		b.WriteString("Learned lessons:\n")
		for _, l := range bundle.Lessons {
			fmt.Fprintf(&b, "- [%s] (seen %dx) %s\n", l.Domain, l.Occurrences, l.Rule)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func recallBlock(recall []store.Message) string {
	if len(recall) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Related prior messages:\n")
	for _, m := range recall {
		fmt.Fprintf(&b, "- (%s) %s\n", m.Role, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func pendingTasksBlock(tasks []store.ScheduledTask) string {
	if len(tasks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Pending scheduled tasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "- [%s] %s due %s (%s)\n", shortID(t.ID), t.Description, t.DueAt.Format("2006-01-02 15:04"), t.Repeat)
	}
	return strings.TrimRight(b.String(), "\n")
}

func skillPromptBlock(matches []skills.SkillMatch) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range matches {
		if m.Prompt == "" {
			continue
		}
		fmt.Fprintf(&b, "# Skill: %s\n%s\n\n", m.Name, m.Prompt)
	}
	return strings.TrimRight(b.String(), "\n")
}

func heartbeatChecklistBlock(facts []store.Fact) string {
	for _, f := range facts {
		if f.Key == marker.HeartbeatChecklistFactKey && f.Value != "" {
			return "Heartbeat checklist:\n" + f.Value
		}
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
