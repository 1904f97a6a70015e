package ui

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/engine"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/logging"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/mcpconfig"
)

// coreTimeout bounds every call into the core from a tea.Cmd.
const coreTimeout = 5 * time.Second

// Core is the part of the engine the TUI drives.
type Core interface {
	ReloadAll(ctx context.Context) (mcpconfig.Counts, error)
	ListEntries(ctx context.Context) ([]mcpconfig.ServerView, error)
	Toggle(ctx context.Context, scope mcpconfig.Scope, name string) (engine.Result, error)
	LoadStatuses(ctx context.Context) (map[mcpconfig.Scope]engine.ScopeLoad, error)
	Paths() map[mcpconfig.Scope]string
}

// StatusMsg carries an engine status event into the program.
type StatusMsg engine.Status

type entriesMsg struct {
	entries []mcpconfig.ServerView
	loads   map[mcpconfig.Scope]engine.ScopeLoad
	err     error
}

type toggledMsg struct {
	key    string
	result engine.Result
	err    error
}

type loadedMsg struct {
	counts mcpconfig.Counts
	loads  map[mcpconfig.Scope]engine.ScopeLoad
	err    error
}

// Model is the root bubbletea model: a scrollable list of server rows
// grouped by scope, with a fuzzy filter and a status bar.
type Model struct {
	core    Core
	version string
	log     *slog.Logger

	entries []mcpconfig.ServerView
	loads   map[mcpconfig.Scope]engine.ScopeLoad
	// visible holds indices into entries, in entry order.
	visible []int
	cursor  int
	offset  int

	filter    textinput.Model
	filtering bool

	status    string
	statusErr bool
	showHelp  bool

	width  int
	height int
}

// New creates the model. Call Init (via tea.NewProgram) to load.
func New(core Core, version string) *Model {
	ti := textinput.New()
	ti.Placeholder = "filter servers..."
	ti.Prompt = ""
	ti.CharLimit = 64
	ti.Width = 30

	return &Model{
		core:    core,
		version: version,
		log:     logging.ForComponent(logging.CompUI),
		filter:  ti,
		status:  "booting",
	}
}

// Init loads both configs.
func (m *Model) Init() tea.Cmd {
	return m.reloadCmd()
}

func (m *Model) reloadCmd() tea.Cmd {
	core := m.core
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), coreTimeout)
		defer cancel()
		counts, err := core.ReloadAll(ctx)
		if err != nil {
			return loadedMsg{err: err}
		}
		loads, err := core.LoadStatuses(ctx)
		return loadedMsg{counts: counts, loads: loads, err: err}
	}
}

func (m *Model) listCmd() tea.Cmd {
	core := m.core
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), coreTimeout)
		defer cancel()
		entries, err := core.ListEntries(ctx)
		if err != nil {
			return entriesMsg{err: err}
		}
		loads, err := core.LoadStatuses(ctx)
		return entriesMsg{entries: entries, loads: loads, err: err}
	}
}

func (m *Model) toggleCmd(row mcpconfig.ServerView) tea.Cmd {
	core := m.core
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), coreTimeout)
		defer cancel()
		res, err := core.Toggle(ctx, row.Scope, row.Name)
		return toggledMsg{key: row.Key(), result: res, err: err}
	}
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case loadedMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		// Same summary the engine emits, so either arrival order ends on it.
		st := engine.Summary(engine.StatusLoaded, msg.counts, msg.loads)
		m.setStatus(st.Message, st.Kind.IsError())
		m.loads = msg.loads
		return m, m.listCmd()

	case entriesMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		m.loads = msg.loads
		m.setEntries(msg.entries)
		return m, nil

	case toggledMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		m.setStatus(msg.result.Message, !msg.result.OK && msg.result.Message != engine.MsgNothingToToggle)
		return m, m.listCmd()

	case StatusMsg:
		m.setStatus(msg.Message, msg.Kind.IsError())
		switch msg.Kind {
		case engine.StatusLoaded, engine.StatusReloaded, engine.StatusMalformed:
			return m, m.listCmd()
		}
		return m, nil
	}

	// Cursor blink and similar input plumbing.
	if m.filtering {
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "esc":
			m.filtering = false
			m.filter.Blur()
			m.filter.SetValue("")
			m.applyFilter()
			return m, nil
		case "enter":
			m.filtering = false
			m.filter.Blur()
			return m, nil
		case "up", "down":
			m.moveCursor(msg.String())
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k", "down", "j", "home", "g", "end", "G", "pgup", "pgdown":
		m.moveCursor(msg.String())
	case "enter", " ":
		if row, ok := m.Selected(); ok {
			m.log.Debug("toggle_requested", slog.String("key", row.Key()))
			return m, m.toggleCmd(row)
		}
		m.setStatus(engine.MsgNothingToToggle, false)
	case "r":
		return m, m.reloadCmd()
	case "t":
		theme := ToggleTheme()
		m.log.Debug("theme_toggled", slog.String("theme", string(theme)))
	case "/":
		m.filtering = true
		m.filter.Focus()
		return m, textinput.Blink
	case "esc":
		if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.applyFilter()
		}
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m *Model) moveCursor(key string) {
	switch key {
	case "up", "k":
		m.cursor--
	case "down", "j":
		m.cursor++
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = len(m.visible) - 1
	case "pgup":
		m.cursor -= m.pageRows()
	case "pgdown":
		m.cursor += m.pageRows()
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

// setEntries replaces the list and keeps the cursor on the same server when
// it still exists.
func (m *Model) setEntries(entries []mcpconfig.ServerView) {
	selected, hadSelection := m.Selected()
	m.entries = entries
	m.applyFilter()
	if !hadSelection {
		return
	}
	for i, idx := range m.visible {
		if m.entries[idx].Key() == selected.Key() {
			m.cursor = i
			return
		}
	}
}

type entrySource []mcpconfig.ServerView

func (s entrySource) String(i int) string {
	return string(s[i].Scope) + " " + s[i].Name + " " + s[i].Type
}

func (s entrySource) Len() int { return len(s) }

// applyFilter recomputes visible rows. Matches keep document order so the
// scope sections stay intact.
func (m *Model) applyFilter() {
	query := strings.TrimSpace(m.filter.Value())
	m.visible = m.visible[:0]
	if query == "" {
		for i := range m.entries {
			m.visible = append(m.visible, i)
		}
	} else {
		for _, match := range fuzzy.FindFrom(query, entrySource(m.entries)) {
			m.visible = append(m.visible, match.Index)
		}
		sort.Ints(m.visible)
	}
	m.clampCursor()
}

// Selected returns the row under the cursor.
func (m *Model) Selected() (mcpconfig.ServerView, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return mcpconfig.ServerView{}, false
	}
	return m.entries[m.visible[m.cursor]], true
}

// VisibleEntries returns the rows the filter currently shows.
func (m *Model) VisibleEntries() []mcpconfig.ServerView {
	out := make([]mcpconfig.ServerView, len(m.visible))
	for i, idx := range m.visible {
		out[i] = m.entries[idx]
	}
	return out
}

// Status returns the status bar text.
func (m *Model) Status() string {
	return m.status
}

// StatusIsError reports whether the status bar shows a failure.
func (m *Model) StatusIsError() bool {
	return m.statusErr
}

func (m *Model) malformed(scope mcpconfig.Scope) bool {
	return m.loads[scope].Status == mcpconfig.StatusMalformed
}
