package cargo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `[package]
name = "acme"
version = "0.3.1"
edition = "2021"

[dependencies]
serde = { version = "1", features = ["derive"] }
tokio = { version = "1", features = ["full"], optional = true }
anyhow = "1.0"
local-util = { path = "../util" }

[dev-dependencies]
tempfile = "3"

[build-dependencies]
cc = "1"

[features]
default = ["net"]
net = ["dep:tokio"]
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Cargo.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "acme", m.Package.Name)
	assert.Equal(t, "0.3.1", m.Package.Version)
	assert.Equal(t, "2021", m.Package.Edition)

	serde := m.Dependencies["serde"]
	assert.Equal(t, "1", serde.Version)
	assert.Equal(t, []string{"derive"}, serde.Features)

	assert.Equal(t, "1.0", m.Dependencies["anyhow"].Version)
	assert.Equal(t, "../util", m.Dependencies["local-util"].Path)
	assert.True(t, m.Dependencies["tokio"].Optional)
	assert.Equal(t, "3", m.DevDependencies["tempfile"].Version)
}

func TestLoadManifestErrors(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "Cargo.toml"))
	assert.Error(t, err)

	_, err = LoadManifest(writeManifest(t, "[package\nname ="))
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, sampleManifest))
	require.NoError(t, err)

	r := Summarize(m)
	assert.Equal(t, "acme", r.Name)
	require.Len(t, r.Dependencies, 6)

	// Sorted by kind then name: normal deps first.
	assert.Equal(t, "anyhow", r.Dependencies[0].Name)
	assert.Equal(t, "local-util", r.Dependencies[1].Name)
	assert.Equal(t, "path:../util", r.Dependencies[1].Source)
	assert.Equal(t, "dev", r.Dependencies[4].Kind)
	assert.Equal(t, "build", r.Dependencies[5].Kind)

	assert.Equal(t, []string{"default", "net"}, r.Features)
}

func TestSummarizeWorkspace(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, "[workspace]\nmembers = [\"core\", \"cli\"]\n"))
	require.NoError(t, err)

	r := Summarize(m)
	assert.Empty(t, r.Name)
	assert.Equal(t, []string{"core", "cli"}, r.Workspace)
}
