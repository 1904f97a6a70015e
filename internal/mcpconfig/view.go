package mcpconfig

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// commandPreviewWidth is the display width of ServerView.CommandPreview.
const commandPreviewWidth = 50

// ServerView is one row of the flattened entry list.
type ServerView struct {
	Scope          Scope    `json:"scope"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Command        []string `json:"command,omitempty"`
	CommandPreview string   `json:"command_preview,omitempty"`
	Enabled        bool     `json:"enabled"`
}

// Key identifies the row across both scopes.
func (v ServerView) Key() string {
	return string(v.Scope) + ":" + v.Name
}

// Entries projects both documents, global first, each in document order.
func (r *Registry) Entries() []ServerView {
	var out []ServerView
	for _, scope := range Scopes {
		doc := r.scopes[scope].doc
		for _, name := range doc.Names() {
			entry, _ := doc.Entry(name)
			cmd := entry.Command()
			out = append(out, ServerView{
				Scope:          scope,
				Name:           name,
				Type:           entry.Type(),
				Command:        cmd,
				CommandPreview: CommandPreview(cmd),
				Enabled:        entry.Enabled(),
			})
		}
	}
	return out
}

// CommandPreview joins a command line and truncates it for display.
func CommandPreview(cmd []string) string {
	return runewidth.Truncate(strings.Join(cmd, " "), commandPreviewWidth, "...")
}
