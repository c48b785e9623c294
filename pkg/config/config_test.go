package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := loadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.NotEmpty(t, cfg.StoreRoot)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	want := &Config{
		StoreRoot:        "/data/panini-store",
		GrammarCacheSize: 64,
		LogLevel:         "debug",
	}
	require.NoError(t, saveTo(path, want))

	got, err := loadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/panini-store", got.StoreRoot)
	assert.Equal(t, 64, got.GrammarCacheSize)
	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, CurrentVersion, got.Version)
}

func TestEnvOverridesStoreRoot(t *testing.T) {
	t.Setenv("PANINI_STORE_ROOT", "/env/store")
	cfg, err := loadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/env/store", cfg.StoreRoot)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, saveTo(path, &Config{}))

	// Corrupt it.
	require.NoError(t, os.WriteFile(path, []byte("store_root: [unclosed"), 0o644))
	_, err := loadFrom(path)
	assert.Error(t, err)
}
