package mcpconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStore_LoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opencode.json")
	res := NewStore(path, "").Load()

	assert.Equal(t, StatusMissing, res.Status)
	assert.NoError(t, res.Err)
	assert.True(t, res.ModTime.IsZero())
	assert.Equal(t, 0, res.Document.Len())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "load must not create the file")
}

func TestStore_LoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opencode.json")
	writeFile(t, path, `{"mcp": {"svc": `)

	res := NewStore(path, "").Load()
	assert.Equal(t, StatusMalformed, res.Status)
	assert.Error(t, res.Err)
	assert.False(t, res.ModTime.IsZero(), "broken files keep their mtime so they are not reloaded every tick")
	assert.Equal(t, 0, res.Document.Len())
}

func TestStore_LoadDirectoryIsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opencode.json")
	require.NoError(t, os.Mkdir(path, 0o755))

	res := NewStore(path, "").Load()
	assert.Equal(t, StatusMalformed, res.Status)
	assert.Error(t, res.Err)
}

func TestStore_LoadSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opencode.json")
	writeFile(t, path, sampleDoc)
	store := NewStore(path, "")

	first := store.Load()
	require.Equal(t, StatusOK, first.Status)

	modTime, err := store.Save(first.Document)
	require.NoError(t, err)
	assert.False(t, modTime.IsZero())

	second := store.Load()
	require.Equal(t, StatusOK, second.Status)
	assert.True(t, modTime.Equal(second.ModTime))

	a, err := first.Document.Encode()
	require.NoError(t, err)
	b, err := second.Document.Encode()
	require.NoError(t, err)
	assert.Equal(t, structural(t, []byte(sampleDoc)), structural(t, b))
	assert.Equal(t, string(a), string(b))
}

func TestStore_SaveCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "opencode", "opencode.json")
	lockDir := filepath.Join(t.TempDir(), "locks")
	store := NewStore(path, lockDir)

	doc, err := ParseDocument([]byte(`{"mcp": {"svc": {"type": "stdio"}}}`))
	require.NoError(t, err)
	_, err = store.Save(doc)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"mcp\": {\n    \"svc\": {\n      \"type\": \"stdio\"\n    }\n  }\n}\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestStore_SaveKeepsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opencode.json")
	writeFile(t, path, `{"mcp": {}}`)
	require.NoError(t, os.Chmod(path, 0o600))

	store := NewStore(path, "")
	_, err := store.Save(store.Load().Document)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_SaveFollowsSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.json")
	link := filepath.Join(dir, "opencode.json")
	writeFile(t, real, `{"mcp": {"svc": {}}}`)
	require.NoError(t, os.Symlink(real, link))

	store := NewStore(link, "")
	res := store.Load()
	require.True(t, res.Document.SetEnabled("svc", false))
	_, err := store.Save(res.Document)
	require.NoError(t, err)

	fi, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink, "link must survive the save")

	data, err := os.ReadFile(real)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"enabled": false`)
}

func TestStore_SaveFailureLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opencode.json")
	// A non-empty directory in the way makes the final rename fail.
	writeFile(t, filepath.Join(path, "keep"), "x")

	_, err := NewStore(path, "").Save(NewDocument())
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "opencode.json", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(path, "keep"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestStore_SaveParentIsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "blocker"), "")

	_, err := NewStore(filepath.Join(dir, "blocker", "opencode.json"), "").Save(NewDocument())
	assert.Error(t, err)
}

func TestStore_SaveTimesOutOnHeldLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opencode.json")
	lockDir := filepath.Join(dir, "locks")
	require.NoError(t, os.MkdirAll(lockDir, 0o755))

	store := NewStore(path, lockDir)
	store.lockTimeout = 100 * time.Millisecond

	held := flock.New(filepath.Join(lockDir, lockName(path)))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	_, err = store.Save(NewDocument())
	assert.ErrorIs(t, err, ErrLockTimeout)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLockName_StableAndDistinct(t *testing.T) {
	assert.Equal(t, lockName("/a/opencode.json"), lockName("/a/opencode.json"))
	assert.NotEqual(t, lockName("/a/opencode.json"), lockName("/b/opencode.json"))
}
