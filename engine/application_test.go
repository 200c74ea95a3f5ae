package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "ember.toml"))
	require.NoError(t, err)

	assert.Equal(t, "Ember", cfg.Window.Title)
	assert.Equal(t, uint32(1280), cfg.Window.Width)
	assert.Equal(t, uint32(720), cfg.Window.Height)
	assert.Equal(t, "vulkan", cfg.Renderer.Backend)
	assert.True(t, cfg.Renderer.VSync)
	assert.Equal(t, uint32(8192), cfg.Streams.MaxSprites)
	assert.Equal(t, "assets", cfg.Assets.Root)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.toml")
	content := `
[window]
title = "Demo"
width = 1920
height = 1080

[renderer]
vsync = false
block_mib = 64

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Demo", cfg.Window.Title)
	assert.Equal(t, uint32(1920), cfg.Window.Width)
	assert.False(t, cfg.Renderer.VSync)
	assert.Equal(t, uint32(64), cfg.Renderer.BlockMiB)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, "vulkan", cfg.Renderer.Backend)
	assert.Equal(t, uint32(4096), cfg.Streams.MaxGlyphs)
}

func TestLoadConfigMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.toml")
	require.NoError(t, os.WriteFile(path, []byte("[window\ntitle ="), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ember.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nbackend = \"metal\"\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
}

func TestConfigValidateRejectsZeroSizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window.Width = 0
	assert.Error(t, cfg.validate())

	cfg = DefaultConfig()
	cfg.Streams.MaxSprites = 0
	assert.Error(t, cfg.validate())
}
