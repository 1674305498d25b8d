package gateway

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shell-manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifestFile(t *testing.T) {
	path := writeManifest(t, `{
		"version": 3,
		"shell": "/index.html",
		"assets": ["/", "/index.html", "/app.css", "/app.js", "/manifest.webmanifest"]
	}`)

	m, err := LoadManifestFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Version)
	assert.Equal(t, "/index.html", m.Shell)
	assert.Len(t, m.Assets, 5)
}

func TestLoadManifestFile_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"version": 3,`,
		"missing version":  `{"shell": "/index.html", "assets": ["/index.html"]}`,
		"missing shell":    `{"version": 1, "assets": ["/index.html"]}`,
		"empty assets":     `{"version": 1, "shell": "/index.html", "assets": []}`,
		"shell not listed": `{"version": 1, "shell": "/index.html", "assets": ["/app.css"]}`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadManifestFile(writeManifest(t, content))
			assert.Error(t, err)
		})
	}
}

func TestGenerationNames(t *testing.T) {
	gen := NewGeneration(7)
	assert.Equal(t, "shell-v7", gen.Name)

	parsed, err := ParseGeneration("shell-v7")
	require.NoError(t, err)
	assert.Equal(t, gen, parsed)

	for _, bad := range []string{"", "shell", "shell-v", "shell-vX", ".staging-abc"} {
		_, err := ParseGeneration(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}
