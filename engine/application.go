package engine

import (
	"os"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/ember-engine/ember/engine/core"
)

// Config is the application configuration loaded from ember.toml. Every
// field has a working default so the file is optional.
type Config struct {
	Window struct {
		Title  string `toml:"title"`
		Width  uint32 `toml:"width"`
		Height uint32 `toml:"height"`
	} `toml:"window"`

	Renderer struct {
		// Backend selects the compiled-in device implementation; only
		// "vulkan" exists today and anything else is a boot error.
		Backend    string `toml:"backend"`
		VSync      bool   `toml:"vsync"`
		Validation bool   `toml:"validation"`
		// BlockMiB overrides the device-memory block size, zero keeps
		// the allocator default.
		BlockMiB uint32 `toml:"block_mib"`
	} `toml:"renderer"`

	Streams struct {
		MaxSprites uint32 `toml:"max_sprites"`
		MaxGlyphs  uint32 `toml:"max_glyphs"`
	} `toml:"streams"`

	Assets struct {
		Root string `toml:"root"`
	} `toml:"assets"`

	Logging struct {
		Level string `toml:"level"`
	} `toml:"logging"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Window.Title = "Ember"
	cfg.Window.Width = 1280
	cfg.Window.Height = 720
	cfg.Renderer.Backend = "vulkan"
	cfg.Renderer.VSync = true
	cfg.Streams.MaxSprites = 8192
	cfg.Streams.MaxGlyphs = 4096
	cfg.Assets.Root = "assets"
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig reads a TOML config file over the defaults. A missing file
// is not an error; a malformed one is, because silently half-applied
// settings are worse than a failed boot.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogInfo("no config at %q, using defaults", path)
			return cfg, nil
		}
		return nil, cerrors.Wrapf(err, "reading config %q", path)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, cerrors.Wrapf(err, "parsing config %q", path)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Renderer.Backend != "vulkan" {
		return cerrors.Newf("config: unknown renderer backend %q", c.Renderer.Backend)
	}
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return cerrors.Newf("config: window size %dx%d is not drawable", c.Window.Width, c.Window.Height)
	}
	if c.Streams.MaxSprites == 0 || c.Streams.MaxGlyphs == 0 {
		return cerrors.New("config: stream capacities must be non-zero")
	}
	return nil
}
