// Package platform owns the GLFW window: surface creation for the
// renderer, pixel-size queries for swapchain recreation, and the resize
// and close callbacks feeding the event bus. Input handling beyond
// closing the window is out of scope for this layer.
package platform

import (
	"runtime"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/ember-engine/ember/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread.
	runtime.LockOSThread()
}

type Platform struct {
	window *glfw.Window
	bus    *core.EventBus
}

func New(bus *core.EventBus) *Platform {
	return &Platform{bus: bus}
}

// Startup initializes GLFW and creates a visible, resizable window with
// no client API, as Vulkan requires.
func (p *Platform) Startup(title string, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return cerrors.New("platform: glfw reports no Vulkan loader")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.True)

	window, err := glfw.CreateWindow(int(width), int(height), title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return err
	}
	p.window = window

	p.window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		context := core.EventContext{}
		context.Data.U16[0] = uint16(width)
		context.Data.U16[1] = uint16(height)
		p.bus.Fire(core.EVENT_CODE_RESIZED, p, context)
	})
	p.window.SetCloseCallback(func(w *glfw.Window) {
		p.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
	})
	p.window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			p.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
		case glfw.KeyF3:
			p.bus.Fire(core.EVENT_CODE_DEBUG_TOGGLE, p, core.EventContext{})
		}
	})

	return nil
}

// PumpMessages processes pending window events. Must run every frame on
// the driving thread.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// ShouldClose reports whether the window was asked to close.
func (p *Platform) ShouldClose() bool {
	return p.window.ShouldClose()
}

// FramebufferSize returns the client area in pixels. Zero during
// minimization.
func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// ProcAddr returns the loader's vkGetInstanceProcAddr pointer.
func (p *Platform) ProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// InstanceExtensions lists the instance extensions the window system
// needs for surface creation.
func (p *Platform) InstanceExtensions() []string {
	return p.window.GetRequiredInstanceExtensions()
}

// CreateSurface creates a window surface on the given Vulkan instance
// and returns the raw handle.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	return p.window.CreateWindowSurface(instance, nil)
}

// Shutdown destroys the window and terminates GLFW.
func (p *Platform) Shutdown() {
	if p.window != nil {
		p.window.Destroy()
		p.window = nil
	}
	glfw.Terminate()
}
