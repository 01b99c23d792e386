package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rustbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "rust-analyzer", cfg.Analyzer.Command)
	assert.Equal(t, 5, cfg.Analyzer.MaxDecodeErrors)
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Navigation)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Refactor)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.Project)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
analyzer:
  command: /opt/ra/rust-analyzer
  args: ["--log-file", "/tmp/ra.log"]
  workspace: /src/acme
timeouts:
  refactor: 45s
log:
  level: debug
  development: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/ra/rust-analyzer", cfg.Analyzer.Command)
	assert.Equal(t, []string{"--log-file", "/tmp/ra.log"}, cfg.Analyzer.Args)
	assert.Equal(t, "/src/acme", cfg.Analyzer.Workspace)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.Refactor)
	// Untouched values keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Navigation)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"empty command":   "analyzer:\n  command: \"\"\n",
		"bad log level":   "log:\n  level: loud\n",
		"zero timeout":    "timeouts:\n  project: 0s\n",
		"bad decode cap":  "analyzer:\n  max_decode_errors: 0\n",
		"unparseable":     "analyzer: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
