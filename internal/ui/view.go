package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/mcpconfig"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	// rowHeight is the number of lines one server row occupies.
	rowHeight = 2
)

// Section headers, shown before each scope's rows.
var sectionTitles = map[mcpconfig.Scope]string{
	mcpconfig.ScopeGlobal: "// GLOBAL CONFIG",
	mcpconfig.ScopeLocal:  "// LOCAL CONFIG",
}

const (
	emptyTitle      = "// NO MCP SERVERS FOUND"
	malformedMarker = " [MALFORMED]"
)

func (m *Model) size() (int, int) {
	w, h := m.width, m.height
	if w <= 0 {
		w = defaultWidth
	}
	if h <= 0 {
		h = defaultHeight
	}
	return w, h
}

func (m *Model) footerHeight() int {
	n := 2 // status + help
	if m.filtering || m.filter.Value() != "" {
		n++
	}
	if m.showHelp {
		n += len(helpEntries)
	}
	return n
}

func (m *Model) bodyHeight() int {
	_, h := m.size()
	body := h - 2 - m.footerHeight()
	if body < rowHeight {
		return rowHeight
	}
	return body
}

func (m *Model) pageRows() int {
	if n := m.bodyHeight() / rowHeight; n > 1 {
		return n
	}
	return 1
}

// View renders the whole screen.
func (m *Model) View() string {
	themeMu.RLock()
	defer themeMu.RUnlock()

	w, _ := m.size()
	var b strings.Builder
	b.WriteString(m.renderHeader(w))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(ColorBorder).Render(strings.Repeat("─", w)))
	b.WriteString("\n")
	b.WriteString(m.renderBody(w))
	b.WriteString("\n")
	b.WriteString(m.renderFooter(w))
	return b.String()
}

func (m *Model) renderHeader(width int) string {
	title := IndicatorStyle.Render("●") + " " + TitleStyle.Render("MCP MANAGER")

	// The button names the theme it switches to.
	label := "DARK"
	if currentTheme == ThemeDark {
		label = "LIGHT"
	}
	button := ThemeButtonStyle.Render(label)

	inner := width - 4
	gap := inner - lipgloss.Width(title) - lipgloss.Width(button)
	if gap < 1 {
		gap = 1
	}
	return HeaderStyle.Width(width).Render(title + strings.Repeat(" ", gap) + button)
}

func (m *Model) renderBody(width int) string {
	height := m.bodyHeight()
	lines, selStart, selEnd := m.bodyLines(width)

	if selStart >= 0 {
		if selStart < m.offset {
			m.offset = selStart
		}
		if selEnd >= m.offset+height {
			m.offset = selEnd - height + 1
		}
	}
	if m.offset > len(lines)-height {
		m.offset = len(lines) - height
	}
	if m.offset < 0 {
		m.offset = 0
	}

	end := m.offset + height
	if end > len(lines) {
		end = len(lines)
	}
	window := lines[m.offset:end]
	for len(window) < height {
		window = append(window, "")
	}
	return strings.Join(window, "\n")
}

// bodyLines renders every visible line and reports which lines belong to
// the selected row (-1 when nothing is selected).
func (m *Model) bodyLines(width int) (lines []string, selStart, selEnd int) {
	selStart, selEnd = -1, -1
	paths := m.core.Paths()

	if len(m.entries) == 0 && !m.anyMalformed() {
		lines = append(lines, "", SectionStyle.Render(emptyTitle), "")
		lines = append(lines, MetaStyle.Render("Checked paths:"))
		for _, scope := range mcpconfig.Scopes {
			lines = append(lines, EmptyPathStyle.Render(paths[scope]))
		}
		return lines, selStart, selEnd
	}

	if len(m.entries) > 0 && len(m.visible) == 0 {
		msg := fmt.Sprintf("// NO MATCHES FOR %q", m.filter.Value())
		return []string{"", SectionStyle.Render(msg)}, selStart, selEnd
	}

	pos := 0
	for _, scope := range mcpconfig.Scopes {
		broken := m.malformed(scope)
		start := pos
		for pos < len(m.visible) && m.entries[m.visible[pos]].Scope == scope {
			pos++
		}
		if start == pos && !broken {
			continue
		}

		title := sectionTitles[scope]
		if broken {
			title += malformedMarker
		}
		lines = append(lines, "", SectionStyle.Render(title))
		if broken {
			note := runewidth.Truncate("cannot parse "+paths[scope], width-2, "…")
			lines = append(lines, StatusErrorStyle.Render(note))
		}

		for i := start; i < pos; i++ {
			selected := i == m.cursor
			if selected {
				selStart = len(lines)
			}
			lines = append(lines, strings.Split(renderRow(m.entries[m.visible[i]], width, selected), "\n")...)
			if selected {
				selEnd = len(lines) - 1
			}
		}
	}
	return lines, selStart, selEnd
}

func (m *Model) anyMalformed() bool {
	for _, scope := range mcpconfig.Scopes {
		if m.malformed(scope) {
			return true
		}
	}
	return false
}

// MetaLine is the second line of a row, e.g. "TYPE: STDIO :: npx server".
func MetaLine(row mcpconfig.ServerView) string {
	meta := "TYPE: " + strings.ToUpper(row.Type)
	if row.CommandPreview != "" {
		meta += " :: " + row.CommandPreview
	}
	return meta
}

func renderRow(row mcpconfig.ServerView, width int, selected bool) string {
	style := RowStyle
	if selected {
		style = RowSelectedStyle
	}
	// border (1) + horizontal padding (2+2)
	inner := width - 5
	if inner < 20 {
		inner = 20
	}

	toggle := SwitchOffStyle.Render("OFF")
	if row.Enabled {
		toggle = SwitchOnStyle.Render("ON")
	}

	name := runewidth.Truncate(strings.ToUpper(row.Name), inner-lipgloss.Width(toggle)-1, "…")
	gap := inner - runewidth.StringWidth(name) - lipgloss.Width(toggle)
	if gap < 1 {
		gap = 1
	}
	first := NameStyle.Render(name) + strings.Repeat(" ", gap) + toggle
	second := MetaStyle.Render(runewidth.Truncate(MetaLine(row), inner, "…"))

	return style.Width(width - 1).Render(first + "\n" + second)
}

func (m *Model) renderFooter(width int) string {
	var lines []string

	if m.filtering || m.filter.Value() != "" {
		lines = append(lines, FilterPromptStyle.Render("/ ")+m.filter.View())
	}

	left := "SYS.STATUS: " + strings.ToUpper(m.status)
	statusStyle := StatusBarStyle
	if m.statusErr {
		statusStyle = StatusErrorStyle
	}
	right := "v" + m.version
	left = runewidth.Truncate(left, width-len(right)-1, "…")
	gap := width - runewidth.StringWidth(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	lines = append(lines, statusStyle.Render(left)+strings.Repeat(" ", gap)+StatusBarStyle.Render(right))

	if m.showHelp {
		for _, h := range helpEntries {
			lines = append(lines, HelpKeyStyle.Render(fmt.Sprintf("%-10s", h.key))+HelpDescStyle.Render(h.desc))
		}
	}
	lines = append(lines, m.renderHelpBar())
	return strings.Join(lines, "\n")
}
