package ui

import "strings"

type helpEntry struct {
	key  string
	desc string
}

// helpEntries lists every binding handled by Model.handleKey.
var helpEntries = []helpEntry{
	{"↑/k ↓/j", "move selection"},
	{"g/G", "first / last server"},
	{"enter/spc", "toggle enabled"},
	{"/", "filter servers"},
	{"esc", "clear filter"},
	{"r", "reload from disk"},
	{"t", "switch light/dark theme"},
	{"?", "show/hide this help"},
	{"q", "quit"},
}

// barEntries is the short form shown on the last line.
var barEntries = []helpEntry{
	{"enter", "toggle"},
	{"/", "filter"},
	{"r", "reload"},
	{"t", "theme"},
	{"?", "help"},
	{"q", "quit"},
}

func (m *Model) renderHelpBar() string {
	if m.filtering {
		return HelpKeyStyle.Render("enter") + HelpDescStyle.Render(" apply  ") +
			HelpKeyStyle.Render("esc") + HelpDescStyle.Render(" clear")
	}
	parts := make([]string, 0, len(barEntries))
	for _, e := range barEntries {
		parts = append(parts, HelpKeyStyle.Render(e.key)+HelpDescStyle.Render(" "+e.desc))
	}
	return strings.Join(parts, HelpDescStyle.Render("  "))
}
