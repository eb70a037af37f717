package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_MissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 8844, cfg.Server.Port)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.ProjectsDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoader_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "loom.json")

	content := `{
		"server": {"host": "0.0.0.0", "port": 9000},
		"claude": {"binary": "/usr/local/bin/claude", "timeout_seconds": 60},
		"jobs": {"workers": 2},
		"data_dir": "` + dir + `"
	}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := NewLoader(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/usr/local/bin/claude", cfg.Claude.Binary)
	assert.Equal(t, 60, cfg.Claude.TimeoutSeconds)
	assert.Equal(t, 2, cfg.Jobs.Workers)

	// Unset fields keep their defaults
	assert.Equal(t, 16, cfg.Jobs.MaxQueuePerThread)

	// Derived paths follow data_dir
	assert.Equal(t, filepath.Join(dir, "projects"), cfg.ProjectsDir)
	assert.Equal(t, filepath.Join(dir, "loom.log"), cfg.Logging.File)
}

func TestLoader_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "loom.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0644))

	_, err := NewLoader(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_SaveRoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "sub", "loom.json")
	loader := NewLoader(configPath)

	cfg := DefaultConfig()
	cfg.Server.Port = 9123
	cfg.Jobs.Workers = 8
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 9123, loaded.Server.Port)
	assert.Equal(t, 8, loaded.Jobs.Workers)
}
