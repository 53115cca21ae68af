package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnit(t *testing.T) {
	unit := Unit(UnitOptions{
		Executable: "/usr/local/bin/vstab",
		ConfigPath: "/etc/vstab/config.yaml",
		SocketPath: "/run/vstab.sock",
	})

	assert.Contains(t, unit, "ExecStart=/usr/local/bin/vstab daemon --config /etc/vstab/config.yaml --daemon-socket /run/vstab.sock\n")
	assert.Contains(t, unit, "WantedBy=multi-user.target")
	assert.NotContains(t, unit, "/path/to")
}

func TestWriteAndRemoveUnit(t *testing.T) {
	old := unitDir
	unitDir = filepath.Join(t.TempDir(), "system")
	t.Cleanup(func() { unitDir = old })

	require.NoError(t, writeUnit("first"))
	require.NoError(t, writeUnit("second"))

	b, err := os.ReadFile(unitPath())
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))

	require.NoError(t, removeUnit())
	_, err = os.Stat(unitPath())
	assert.True(t, os.IsNotExist(err))

	// Removing twice is fine.
	assert.NoError(t, removeUnit())
}
