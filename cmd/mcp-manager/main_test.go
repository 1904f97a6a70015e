package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/engine"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/history"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/mcpconfig"
)

// TestMain points the config and state directories at a scratch location so
// tests never touch the user's real preferences, locks or history.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "mcp-manager-test")
	if err != nil {
		panic(err)
	}
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	os.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	os.Unsetenv("MCP_MANAGER_DEBUG")

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

const globalDoc = `{
  "$schema": "https://opencode.ai/config.json",
  "theme": "dark",
  "mcp": {
    "fs": {"type": "local", "command": ["npx", "fs-server"]},
    "github": {"type": "remote", "url": "https://example.com/mcp", "enabled": false}
  }
}`

const localDoc = `{"mcp": {"postgres": {"type": "local", "command": ["pg-mcp"], "enabled": true}}}`

type cliEnv struct {
	dir    string
	global string
	local  string
	prefs  string
}

func newCLIEnv(t *testing.T, prefs string) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	e := &cliEnv{
		dir:    dir,
		global: filepath.Join(dir, "home", "opencode.json"),
		local:  filepath.Join(dir, "project", "opencode.json"),
		prefs:  filepath.Join(dir, "config.toml"),
	}
	if prefs == "" {
		prefs = fmt.Sprintf("[history]\npath = '%s'\n", filepath.Join(dir, "history.db"))
	}
	require.NoError(t, os.WriteFile(e.prefs, []byte(prefs), 0o644))
	return e
}

func (e *cliEnv) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (e *cliEnv) run(args ...string) (string, string, error) {
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--global", e.global, "--local", e.local, "--config", e.prefs}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func readEnabled(t *testing.T, path, name string) (any, bool) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		MCP map[string]map[string]any `json:"mcp"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	v, ok := doc.MCP[name]["enabled"]
	return v, ok
}

func TestListMissingFiles(t *testing.T) {
	e := newCLIEnv(t, "")

	out, _, err := e.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "No MCP servers found")
	assert.Contains(t, out, e.global)
	assert.Contains(t, out, e.local)
}

func TestListTable(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, e.global, globalDoc)
	e.write(t, e.local, localDoc)

	out, _, err := e.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "SCOPE")
	assert.Regexp(t, `global\s+fs\s+local\s+ON\s+npx fs-server`, out)
	assert.Regexp(t, `global\s+github\s+remote\s+OFF`, out)
	assert.Regexp(t, `local\s+postgres\s+local\s+ON\s+pg-mcp`, out)
}

func TestListJSON(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, e.global, globalDoc)
	e.write(t, e.local, localDoc)

	out, _, err := e.run("list", "--json")
	require.NoError(t, err)

	var entries []mcpconfig.ServerView
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "fs", entries[0].Name)
	assert.True(t, entries[0].Enabled, "missing enabled means on")
	assert.Equal(t, []string{"npx", "fs-server"}, entries[0].Command)
	assert.False(t, entries[1].Enabled)
	assert.Equal(t, mcpconfig.ScopeLocal, entries[2].Scope)
}

func TestToggleWritesFile(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, e.global, globalDoc)

	out, _, err := e.run("toggle", "global", "fs")
	require.NoError(t, err)
	assert.Equal(t, "global/fs: OFF (saved to global)\n", out)

	v, ok := readEnabled(t, e.global, "fs")
	require.True(t, ok)
	assert.Equal(t, false, v)

	data, err := os.ReadFile(e.global)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"$schema": "https://opencode.ai/config.json"`)
	assert.Contains(t, string(data), `"url": "https://example.com/mcp"`)

	out, _, err = e.run("toggle", "GLOBAL", "fs")
	require.NoError(t, err)
	assert.Equal(t, "global/fs: ON (saved to global)\n", out)
}

func TestEnableDisable(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, e.global, globalDoc)

	out, _, err := e.run("enable", "global", "github")
	require.NoError(t, err)
	assert.Contains(t, out, "global/github: ON")
	v, _ := readEnabled(t, e.global, "github")
	assert.Equal(t, true, v)

	// Setting the current value still writes it explicitly.
	_, _, err = e.run("disable", "global", "fs")
	require.NoError(t, err)
	_, _, err = e.run("disable", "global", "fs")
	require.NoError(t, err)
	v, ok := readEnabled(t, e.global, "fs")
	require.True(t, ok)
	assert.Equal(t, false, v)
}

func TestToggleMissingServer(t *testing.T) {
	e := newCLIEnv(t, "")

	_, _, err := e.run("toggle", "local", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to toggle")

	_, statErr := os.Stat(e.local)
	assert.True(t, os.IsNotExist(statErr))
}

func TestToggleBadArguments(t *testing.T) {
	e := newCLIEnv(t, "")

	_, _, err := e.run("toggle", "project", "fs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scope")

	_, _, err = e.run("toggle", "global")
	require.Error(t, err)
}

func TestMalformedFileWarns(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, e.global, globalDoc)
	e.write(t, e.local, `{"mcp": {`)

	out, errOut, err := e.run("list")
	require.NoError(t, err)
	assert.Contains(t, errOut, "local config is malformed")
	assert.Contains(t, out, "github")
	assert.NotContains(t, out, "postgres")
}

func TestHistoryRecordsToggles(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, e.global, globalDoc)

	out, _, err := e.run("history")
	require.NoError(t, err)
	assert.Contains(t, out, "No changes recorded yet.")

	_, _, err = e.run("toggle", "global", "fs")
	require.NoError(t, err)
	_, _, err = e.run("enable", "global", "github")
	require.NoError(t, err)

	out, _, err = e.run("history", "--json", "--limit", "5")
	require.NoError(t, err)
	var events []history.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "github", events[0].Name, "newest first")
	assert.True(t, events[0].Enabled)
	assert.Equal(t, "fs", events[1].Name)
	assert.False(t, events[1].Enabled)
	assert.True(t, events[1].OK)
	assert.Equal(t, e.global, events[1].Path)

	out, _, err = e.run("history", "-n", "1")
	require.NoError(t, err)
	assert.Regexp(t, `global\s+github\s+ON\s+saved`, out)
	assert.NotContains(t, out, " fs ")
}

func TestHistoryDisabled(t *testing.T) {
	e := newCLIEnv(t, "[history]\nenabled = false\n")

	_, _, err := e.run("history")
	require.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestInvalidPreferencesFallBack(t *testing.T) {
	e := newCLIEnv(t, "theme = [")
	e.write(t, e.global, globalDoc)

	_, errOut, err := e.run("list")
	require.NoError(t, err)
	assert.Contains(t, errOut, "using defaults")
}

func TestPaths(t *testing.T) {
	e := newCLIEnv(t, "")

	out, _, err := e.run("paths")
	require.NoError(t, err)
	assert.Regexp(t, `global\s+`+regexp.QuoteMeta(e.global), out)
	assert.Regexp(t, `local\s+`+regexp.QuoteMeta(e.local), out)
	assert.Regexp(t, `preferences\s+`+regexp.QuoteMeta(e.prefs), out)
	assert.Contains(t, out, filepath.Join(e.dir, "history.db"))
}

func TestVersion(t *testing.T) {
	e := newCLIEnv(t, "")

	out, _, err := e.run("version")
	require.NoError(t, err)
	assert.Equal(t, "opencode-mcp-manager v"+Version+"\n", out)

	out, _, err = e.run("--version")
	require.NoError(t, err)
	assert.Equal(t, "opencode-mcp-manager v"+Version+"\n", out)
}

func TestRootWithoutTerminal(t *testing.T) {
	e := newCLIEnv(t, "")

	_, _, err := e.run()
	require.ErrorIs(t, err, ErrNoTerminal)
}

func TestToggleDryRun(t *testing.T) {
	e := newCLIEnv(t, "")
	e.write(t, e.global, globalDoc)

	out, _, err := e.run("toggle", "--dry-run", "global", "fs")
	require.NoError(t, err)
	assert.Contains(t, out, "--- "+e.global)
	assert.Regexp(t, `(?m)^\+\s+"enabled": false`, out)
	assert.Contains(t, out, "global/fs: OFF would change "+e.global)

	data, err := os.ReadFile(e.global)
	require.NoError(t, err)
	assert.Equal(t, globalDoc, string(data), "dry run must not write")

	out, _, err = e.run("history")
	require.NoError(t, err)
	assert.Contains(t, out, "No changes recorded yet.")

	_, _, err = e.run("disable", "--dry-run", "local", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to toggle")
}

func TestWarningSkipsSaveFailures(t *testing.T) {
	tests := []struct {
		st   engine.Status
		want string
		ok   bool
	}{
		{engine.Status{Kind: engine.StatusMalformed, Message: "local config is malformed: bad"}, "warning: local config is malformed: bad", true},
		{engine.Status{Kind: engine.StatusSaveFailed, Message: "failed to save local: denied"}, "", false},
		{engine.Status{Kind: engine.StatusSaved, Message: "saved to local"}, "", false},
		{engine.Status{Kind: engine.StatusLoaded, Message: "1 server(s) loaded"}, "", false},
	}
	for _, tt := range tests {
		got, ok := warning(tt.st)
		assert.Equal(t, tt.ok, ok, tt.st.Kind.String())
		assert.Equal(t, tt.want, got, tt.st.Kind.String())
	}
}
