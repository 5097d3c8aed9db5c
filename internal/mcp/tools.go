package mcp

import "strings"

const (
	defaultSoftCap = 20
	hardToolCap    = 100
)

// toolKeywords maps trigger words in user text to tool relevance. A tool
// matches a keyword when its full name or description contains it.
var toolKeywords = []string{
	"email", "mail", "inbox",
	"calendar", "event", "meeting", "schedule",
	"sheet", "spreadsheet",
	"notion", "github", "slack", "drive",
	"file", "folder", "doc", "document",
	"search", "web", "browse",
	"weather", "task", "note", "reminder",
}

// ToolsForQuery selects the tools to offer the model for one user message.
// Core-server tools always ride along; keyword hits pull in every matching
// tool; the remainder fills up to the soft cap. Order of first inclusion
// is kept and the result never exceeds the hard cap.
func (m *Manager) ToolsForQuery(userText string) []Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(userText)
	seen := make(map[string]struct{}, len(m.tools))
	var out []Tool
	add := func(t Tool) {
		if _, ok := seen[t.FullName]; ok {
			return
		}
		seen[t.FullName] = struct{}{}
		out = append(out, t)
	}

	for _, t := range m.tools {
		if _, ok := m.coreServers[t.Server]; ok {
			add(t)
		}
	}

	for _, kw := range toolKeywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		for _, t := range m.tools {
			if strings.Contains(strings.ToLower(t.FullName), kw) ||
				strings.Contains(strings.ToLower(t.Description), kw) {
				add(t)
			}
		}
	}

	for _, t := range m.tools {
		if len(out) >= m.softCap {
			break
		}
		add(t)
	}

	if len(out) > hardToolCap {
		out = out[:hardToolCap]
	}
	return out
}
