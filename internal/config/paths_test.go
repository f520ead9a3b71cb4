package config

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// xdgHome points the XDG variables at a temp dir and returns it. Other
// platforms ignore them, so callers skip there.
func xdgHome(t *testing.T) string {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on linux")
	}
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))
	return base
}

func TestPaths_XDGLayout(t *testing.T) {
	base := xdgHome(t)

	state := filepath.Join(base, "state", appName)
	assert.Equal(t, filepath.Join(base, "config", appName), GetLoaderDir())
	assert.Equal(t, state, GetStateDir())
	assert.Equal(t, filepath.Join(state, "logs"), GetLogsDir())
	assert.Equal(t, filepath.Join(state, "history.db"), GetHistoryPath())
	assert.NotEqual(t, GetLoaderDir(), GetStateDir())
}

func TestPaths_NonLinuxSharesConfigDir(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Skip("linux keeps state apart from config")
	}
	assert.Equal(t, GetLoaderDir(), GetStateDir())
	assert.Contains(t, GetLoaderDir(), appName)
}

func TestEnsureDirs(t *testing.T) {
	xdgHome(t)

	require.NoError(t, EnsureDirs())
	for _, dir := range []string{GetLoaderDir(), GetStateDir(), GetLogsDir()} {
		assert.DirExists(t, dir)
	}
	// Idempotent.
	require.NoError(t, EnsureDirs())
}
