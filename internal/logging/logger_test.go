package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerBeforeInitDiscards(t *testing.T) {
	Shutdown()
	require.NotNil(t, Logger())
	ForComponent(CompStore).Info("ignored")
}

func TestInitWritesComponentLogs(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "debug"})
	t.Cleanup(Shutdown)

	ForComponent(CompEngine).Info("toggle_applied", slog.String("scope", "local"))
	Shutdown()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `"component":"engine"`)
	assert.Contains(t, line, `"msg":"toggle_applied"`)
	assert.Contains(t, line, `"scope":"local"`)
}

func TestInitTextFormatAndLevel(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "warn", Format: "text"})
	t.Cleanup(Shutdown)

	log := ForComponent(CompStore)
	log.Info("below_threshold")
	log.Warn("config_malformed")
	Shutdown()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	out := string(data)
	assert.False(t, strings.Contains(out, "below_threshold"))
	assert.Contains(t, out, "msg=config_malformed")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		want  slog.Level
	}{
		{"", false, slog.LevelInfo},
		{"debug", false, slog.LevelDebug},
		{"warn", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"error", true, slog.LevelDebug},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.level, tt.debug), "level=%q debug=%v", tt.level, tt.debug)
	}
}
