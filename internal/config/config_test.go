package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Tools.Compiler)
	assert.Equal(t, ".obfus/cache", cfg.Cache.Dir)
	assert.True(t, cfg.Cache.Enabled)
	assert.GreaterOrEqual(t, cfg.Run.Concurrency, 1)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "text", cfg.Logger.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OBFUS_TOOLS_COMPILER", "/opt/gcc/bin/gcc")
	t.Setenv("OBFUS_LOGGER_LEVEL", "debug")
	t.Setenv("OBFUS_CACHE_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/opt/gcc/bin/gcc", cfg.Tools.Compiler)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obfus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  strip: /usr/local/bin/strip
run:
  concurrency: 2
logger:
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/strip", cfg.Tools.Strip)
	assert.Equal(t, 2, cfg.Run.Concurrency)
	assert.Equal(t, "json", cfg.Logger.Format)
	// Unset keys keep their defaults.
	assert.Equal(t, ".obfus/cache", cfg.Cache.Dir)
}

func TestLoadMissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	t.Run("bad level", func(t *testing.T) {
		t.Setenv("OBFUS_LOGGER_LEVEL", "chatty")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("bad format", func(t *testing.T) {
		t.Setenv("OBFUS_LOGGER_FORMAT", "xml")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("bad concurrency", func(t *testing.T) {
		t.Setenv("OBFUS_RUN_CONCURRENCY", "0")
		_, err := Load("")
		assert.Error(t, err)
	})
}
