package mcpconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"
)

// diffContext is the number of unchanged lines around each hunk.
const diffContext = 3

// Preview is what saving one changed flag would write, relative to the file
// currently on disk.
type Preview struct {
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
	// Diff is a unified diff, empty when the file would not change.
	Diff    string `json:"diff"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// Changed reports whether saving would modify the file.
func (p Preview) Changed() bool {
	return p.Diff != ""
}

// PreviewEnabled renders the scope with name's flag set to value and diffs
// it against the file on disk. The in-memory document is left as it was.
// The bool result is false when no such entry exists.
func (r *Registry) PreviewEnabled(scope Scope, name string, value bool) (Preview, bool, error) {
	entry, ok := r.Entry(scope, name)
	if !ok {
		return Preview{}, false, nil
	}
	st := r.scopes[scope]
	path := st.store.Path()

	prior := entry.EnabledState()
	entry.setEnabled(value)
	after, err := st.doc.Encode()
	entry.restore(prior)
	if err != nil {
		return Preview{}, true, fmt.Errorf("encoding %s: %w", scope, err)
	}

	before, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Preview{}, true, fmt.Errorf("reading %s: %w", path, err)
	}

	unified, err := UnifiedDiff(path, before, after)
	if err != nil {
		return Preview{}, true, err
	}
	added, removed, err := DiffStats(unified)
	if err != nil {
		return Preview{}, true, err
	}
	return Preview{Path: path, Enabled: value, Diff: unified, Added: added, Removed: removed}, true, nil
}

// UnifiedDiff returns the unified diff from before to after, or "" when
// they are identical.
func UnifiedDiff(path string, before, after []byte) (string, error) {
	if bytes.Equal(before, after) {
		return "", nil
	}
	var a, b []string
	if len(before) > 0 {
		a = difflib.SplitLines(string(before))
	}
	if len(after) > 0 {
		b = difflib.SplitLines(string(after))
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: path,
		ToFile:   path,
		Context:  diffContext,
	})
	if err != nil {
		return "", fmt.Errorf("diffing %s: %w", path, err)
	}
	return out, nil
}

// DiffStats counts the added and removed lines of a single-file unified
// diff.
func DiffStats(unified string) (added, removed int, err error) {
	if strings.TrimSpace(unified) == "" {
		return 0, 0, nil
	}
	fd, err := diff.ParseFileDiff([]byte(unified))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse diff: %w", err)
	}
	for _, h := range fd.Hunks {
		for _, line := range strings.Split(string(h.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				added++
			case strings.HasPrefix(line, "-"):
				removed++
			}
		}
	}
	return added, removed, nil
}
