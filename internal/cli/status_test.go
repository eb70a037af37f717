package cli

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Stopped(t *testing.T) {
	// Reserve a port and release it so nothing is listening there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	dir := t.TempDir()
	path := filepath.Join(dir, "loom.json")
	body := fmt.Sprintf(`{"server":{"host":"127.0.0.1","port":%d},"data_dir":%q}`, port, dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	origCfgFile := cfgFile
	cfgFile = path
	defer func() { cfgFile = origCfgFile }()

	output := &bytes.Buffer{}
	cmd := GetRootCmd()
	cmd.SetOut(output)
	cmd.SetArgs([]string{"status"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, output.String(), "Status: stopped")
}
