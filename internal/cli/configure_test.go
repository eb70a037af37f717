package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/loom/internal/config"
)

func TestConfigure_WritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.json")

	origCfgFile := cfgFile
	cfgFile = path
	defer func() { cfgFile = origCfgFile }()

	output := &bytes.Buffer{}
	cmd := GetRootCmd()
	cmd.SetOut(output)
	cmd.SetArgs([]string{"configure"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, output.String(), "Configuration saved")
	assert.FileExists(t, path)

	// The written file round-trips through the loader
	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Server.Port, cfg.Server.Port)
	assert.Equal(t, "claude", cfg.Claude.Binary)
}

func TestConfigure_PreservesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"port":9999}}`), 0644))

	origCfgFile := cfgFile
	cfgFile = path
	defer func() { cfgFile = origCfgFile }()

	cmd := GetRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"configure"})
	require.NoError(t, cmd.Execute())

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}
