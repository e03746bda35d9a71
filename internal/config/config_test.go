package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("LATTICE_MODEL", "")
	t.Setenv("LATTICE_PORT", "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, 500*time.Millisecond, time.Duration(cfg.SteerGracePeriod))
}

func TestLoad_ProjectConfigWithComments(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	content := `{
		// project overrides
		"model": "anthropic/claude-opus-4-20250514",
		"port": 9191,
		"steerGracePeriod": "250ms"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lattice.jsonc"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "anthropic/claude-opus-4-20250514", cfg.Model)
	assert.Equal(t, 9191, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.SteerGracePeriod))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lattice.json"), []byte(`{"port": 9000}`), 0644))
	t.Setenv("LATTICE_PORT", "7001")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Port)
}

func TestLoad_CorruptFileSkipped(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lattice.json"), []byte(`{not json`), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}
