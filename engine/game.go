package engine

import (
	"github.com/ember-engine/ember/engine/rhi"
)

// Game is the application the engine drives. Callbacks are optional;
// nil ones are skipped.
type Game struct {
	State interface{}

	// FnInitialize runs once after every subsystem is up, before the
	// first frame. GPU resources are created here.
	FnInitialize func(e *Engine) error
	// FnUpdate runs once per loop iteration, before rendering.
	FnUpdate func(e *Engine, deltaTime float64) error
	// FnRender records draw commands into the open main pass. It is not
	// called on skipped (minimized) frames.
	FnRender func(e *Engine, cb rhi.CommandBuffer, deltaTime float64) error
	// FnOnResize fires after the swapchain was rebuilt at a new size.
	FnOnResize func(e *Engine, width, height uint32) error
	// FnShutdown runs before the engine tears its subsystems down.
	FnShutdown func(e *Engine) error
}
