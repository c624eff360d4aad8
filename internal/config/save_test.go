package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveServer_CreatesNewFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	err := SaveServer(configPath, ServerConfig{BaseURL: "https://refs.example.com", Timeout: 10 * time.Second})
	require.NoError(t, err)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "base_url: https://refs.example.com")
	assert.Contains(t, string(data), "timeout: 10s")
	assert.NotContains(t, string(data), "ws_url")
}

func TestSaveServer_PreservesOtherConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	initial := `# my settings
model: openai # preferred
server:
  base_url: http://old
history:
  limit: 7
`
	require.NoError(t, os.WriteFile(configPath, []byte(initial), 0o600))

	require.NoError(t, SaveServer(configPath, ServerConfig{BaseURL: "http://new:8000"}))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, "# my settings")
	assert.Contains(t, s, "# preferred")
	assert.Contains(t, s, "base_url: http://new:8000")
	assert.NotContains(t, s, "http://old")

	cfg, _, err := Load(configPath)
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.Model)
	require.Equal(t, 7, cfg.History.Limit)
	require.Equal(t, "http://new:8000", cfg.Server.BaseURL)
}

func TestSaveServer_RejectsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.Error(t, SaveServer(configPath, ServerConfig{}))
	_, err := os.Stat(configPath)
	require.True(t, os.IsNotExist(err))
}

func TestSaveModel_AppendsKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("history:\n  limit: 3\n"), 0o600))

	require.NoError(t, SaveModel(configPath, "gemini"))
	cfg, _, err := Load(configPath)
	require.NoError(t, err)
	require.Equal(t, "gemini", cfg.Model)
	require.Equal(t, 3, cfg.History.Limit)

	require.Error(t, SaveModel(configPath, ""))
}

func TestSaveHistoryLimit(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveHistoryLimit(configPath, 25))

	cfg, _, err := Load(configPath)
	require.NoError(t, err)
	require.Equal(t, 25, cfg.History.Limit)

	require.Error(t, SaveHistoryLimit(configPath, -1))
}

func TestSave_RejectsNonMappingFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("- a\n- b\n"), 0o600))
	require.Error(t, SaveModel(configPath, "x"))
}

func TestSave_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveModel(configPath, "x"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
