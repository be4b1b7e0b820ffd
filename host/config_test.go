package host

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeFile(t, "servers.json", `{
		"mcpServers": {
			"files": {
				"command": "file-server",
				"args": ["--root", "/tmp"],
				"env": {"LOG_LEVEL": "debug"}
			}
		}
	}`)

	configs, err := LoadConfig(path)
	require.NoError(t, err)
	require.Contains(t, configs, "files")
	assert.Equal(t, "file-server", configs["files"].Command)
	assert.Equal(t, []string{"--root", "/tmp"}, configs["files"].Args)
	assert.Equal(t, "debug", configs["files"].Env["LOG_LEVEL"])
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, "servers.yaml", `
mcpServers:
  search:
    command: search-server
    args:
      - "--index"
      - main
`)

	configs, err := LoadConfig(path)
	require.NoError(t, err)
	require.Contains(t, configs, "search")
	assert.Equal(t, "search-server", configs["search"].Command)
	assert.Equal(t, []string{"--index", "main"}, configs["search"].Args)
}

func TestLoadConfigRejectsMissingCommand(t *testing.T) {
	path := writeFile(t, "servers.json", `{"mcpServers": {"bad": {"args": ["-x"]}}}`)
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "bad")
}

func TestLoadConfigRejectsEmpty(t *testing.T) {
	path := writeFile(t, "servers.json", `{"mcpServers": {}}`)
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "no servers")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestConfigFromMap(t *testing.T) {
	configs, err := ConfigFromMap(map[string]interface{}{
		"mcpServers": map[string]interface{}{
			"alpha": map[string]interface{}{
				"command": "alpha-server",
				"args":    []interface{}{"-v"},
				"env":     map[string]interface{}{"MODE": "test"},
			},
		},
	})
	require.NoError(t, err)
	require.Contains(t, configs, "alpha")
	assert.Equal(t, "alpha-server", configs["alpha"].Command)
	assert.Equal(t, []string{"-v"}, configs["alpha"].Args)
	assert.Equal(t, "test", configs["alpha"].Env["MODE"])
}
