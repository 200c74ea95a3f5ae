// Package engine is the application shell: it boots the platform
// window, the rendering hardware layer and the asset and texture
// systems from one config, then drives the frame loop until the window
// closes or the game asks to quit.
package engine

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/ember-engine/ember/engine/assets"
	"github.com/ember-engine/ember/engine/core"
	"github.com/ember-engine/ember/engine/platform"
	"github.com/ember-engine/ember/engine/rhi"
	"github.com/ember-engine/ember/engine/rhi/vulkan"
	"github.com/ember-engine/ember/engine/systems"
)

type Stage uint8

const (
	StageUninitialized Stage = iota
	StageInitialized
	StageRunning
	StageShuttingDown
)

// Engine owns the subsystem graph. Construction order is the teardown
// order reversed: platform, device, hardware layer, assets, textures.
type Engine struct {
	stage Stage
	cfg   *Config
	game  *Game

	bus      *core.EventBus
	platform *platform.Platform
	rhi      *rhi.RHI
	assets   *assets.Manager
	textures *systems.TextureSystem

	clock   *core.Clock
	metrics *core.Metrics

	running   bool
	showStats bool
}

// New boots every subsystem. On failure the already-started ones are
// shut down before returning.
func New(game *Game, cfg *Config) (*Engine, error) {
	if game == nil {
		return nil, cerrors.New("engine: nil game")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	core.LogSetLevel(cfg.Logging.Level)

	e := &Engine{
		cfg:     cfg,
		game:    game,
		bus:     core.NewEventBus(),
		clock:   core.NewClock(),
		metrics: core.NewMetrics(),
	}

	e.platform = platform.New(e.bus)
	if err := e.platform.Startup(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height); err != nil {
		return nil, cerrors.Wrap(err, "starting platform layer")
	}

	device, err := vulkan.New(e.platform, &vulkan.Config{
		ApplicationName: cfg.Window.Title,
		Debug:           cfg.Renderer.Validation,
	})
	if err != nil {
		e.platform.Shutdown()
		return nil, cerrors.Wrap(err, "creating vulkan device")
	}

	// The window manager may hand out a framebuffer that differs from
	// the requested size; the swapchain must match the real one.
	fbWidth, fbHeight := e.platform.FramebufferSize()
	r, err := rhi.New(device, e.bus, &rhi.Config{
		ApplicationName: cfg.Window.Title,
		Width:           fbWidth,
		Height:          fbHeight,
		VSync:           cfg.Renderer.VSync,
		BlockSize:       uint64(cfg.Renderer.BlockMiB) * 1024 * 1024,
	})
	if err != nil {
		device.Destroy()
		e.platform.Shutdown()
		return nil, cerrors.Wrap(err, "initializing hardware layer")
	}
	e.rhi = r

	am, err := assets.NewManager(cfg.Assets.Root, e.bus)
	if err != nil {
		e.rhi.Shutdown()
		e.platform.Shutdown()
		return nil, cerrors.Wrap(err, "starting asset manager")
	}
	e.assets = am

	textures, err := systems.NewTextureSystem(e.rhi, e.assets, e.bus)
	if err != nil {
		e.assets.Shutdown()
		e.rhi.Shutdown()
		e.platform.Shutdown()
		return nil, cerrors.Wrap(err, "starting texture system")
	}
	e.textures = textures

	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onQuit)
	e.bus.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.bus.Register(core.EVENT_CODE_SWAPCHAIN_RECREATED, e, e.onSwapchainRecreated)
	e.bus.Register(core.EVENT_CODE_DEBUG_TOGGLE, e, e.onDebugToggle)

	e.stage = StageInitialized
	return e, nil
}

// Run executes the game's initialize callback and enters the frame
// loop: pump window events, pump asset changes, begin frame (or skip),
// record, end frame, update. Returns when the window closes or a quit
// event fires.
func (e *Engine) Run() error {
	if e.stage != StageInitialized {
		return cerrors.New("engine: Run called before initialization")
	}

	if e.game.FnInitialize != nil {
		if err := e.game.FnInitialize(e); err != nil {
			return cerrors.Wrap(err, "game initialization")
		}
	}

	e.stage = StageRunning
	e.running = true
	e.clock.Start()
	e.clock.Update()
	lastTime := e.clock.Elapsed()

	for e.running && !e.platform.ShouldClose() {
		e.platform.PumpMessages()
		e.assets.Pump()

		e.clock.Update()
		now := e.clock.Elapsed()
		delta := now - lastTime
		lastTime = now

		if e.game.FnUpdate != nil {
			if err := e.game.FnUpdate(e, delta); err != nil {
				return cerrors.Wrap(err, "game update")
			}
		}

		cb, ok, err := e.rhi.BeginFrame()
		if err != nil {
			return cerrors.Wrap(err, "beginning frame")
		}
		if !ok {
			// Minimized; nothing to draw until the window comes back.
			continue
		}

		if e.game.FnRender != nil {
			if err := e.game.FnRender(e, cb, delta); err != nil {
				return cerrors.Wrap(err, "game render")
			}
		}

		if err := e.rhi.EndFrame(); err != nil {
			return cerrors.Wrap(err, "ending frame")
		}

		e.metrics.Update(delta)
	}

	return nil
}

// Quit stops the frame loop after the current iteration.
func (e *Engine) Quit() {
	e.running = false
}

func (e *Engine) onQuit(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	core.LogInfo("quit requested")
	e.running = false
	return true
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	width := uint32(context.Data.U16[0])
	height := uint32(context.Data.U16[1])
	e.rhi.OnResized(width, height)
	return false
}

func (e *Engine) onSwapchainRecreated(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	if e.game.FnOnResize != nil {
		width := uint32(context.Data.U16[0])
		height := uint32(context.Data.U16[1])
		if err := e.game.FnOnResize(e, width, height); err != nil {
			core.LogError("game resize handler: %v", err)
		}
	}
	return false
}

func (e *Engine) onDebugToggle(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	e.showStats = !e.showStats
	if e.showStats {
		fps, frameTime := e.metrics.Frame()
		core.LogInfo("frame: %.1f fps, %.2f ms", fps, frameTime)
		core.LogInfo("allocator: %s", e.rhi.Allocator().BuildStatsString(true))
	}
	return true
}

// Shutdown tears everything down in reverse construction order. The
// game's shutdown callback runs first, while GPU resources can still be
// destroyed.
func (e *Engine) Shutdown() {
	e.stage = StageShuttingDown
	if e.game.FnShutdown != nil {
		if err := e.game.FnShutdown(e); err != nil {
			core.LogError("game shutdown: %v", err)
		}
	}
	if e.textures != nil {
		e.textures.Shutdown()
		e.textures = nil
	}
	if e.assets != nil {
		e.assets.Shutdown()
		e.assets = nil
	}
	if e.rhi != nil {
		e.rhi.Shutdown()
		e.rhi = nil
	}
	if e.platform != nil {
		e.platform.Shutdown()
		e.platform = nil
	}
	e.bus.Shutdown()
	core.LogInfo("engine shut down")
}

// Config returns the loaded configuration.
func (e *Engine) Config() *Config {
	return e.cfg
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *core.EventBus {
	return e.bus
}

// RHI returns the rendering hardware context.
func (e *Engine) RHI() *rhi.RHI {
	return e.rhi
}

// Assets returns the asset manager.
func (e *Engine) Assets() *assets.Manager {
	return e.assets
}

// Textures returns the texture cache.
func (e *Engine) Textures() *systems.TextureSystem {
	return e.textures
}

// Metrics returns the frame metrics accumulator.
func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}
