package rhi

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/ember-engine/ember/engine/core"
)

// Config carries the knobs the hardware layer needs at startup. Zero
// values pick the documented defaults.
type Config struct {
	ApplicationName string
	Width           uint32
	Height          uint32
	VSync           bool

	// BlockSize overrides the allocator's device-memory block size.
	BlockSize uint64
}

// RHI is the rendering-hardware context: one device, one allocator, one
// frame controller and one default descriptor pool. Everything hangs off
// this struct; there is no package-level state.
type RHI struct {
	device    Device
	allocator *DeviceAllocator
	frames    *FrameController

	defaultPool *DescriptorPool
	bus         *core.EventBus
}

// New wires the context together over an already initialized device. On
// failure every partially created piece is torn down before returning.
func New(device Device, bus *core.EventBus, cfg *Config) (*RHI, error) {
	if device == nil {
		return nil, cerrors.New("rhi: nil device")
	}
	if bus == nil {
		return nil, cerrors.New("rhi: nil event bus")
	}

	r := &RHI{
		device:    device,
		allocator: NewDeviceAllocator(device, cfg.BlockSize),
		bus:       bus,
	}

	pool, err := r.CreateDescriptorPool([]DescriptorPoolSize{
		{Type: DescriptorUniformBuffer, Count: defaultPoolUniformCount},
		{Type: DescriptorCombinedImageSampler, Count: defaultPoolSamplerCount},
	}, defaultPoolMaxSets)
	if err != nil {
		r.allocator.Release()
		return nil, cerrors.Wrap(err, "creating default descriptor pool")
	}
	r.defaultPool = pool

	frames, err := newFrameController(r, bus, cfg.Width, cfg.Height, cfg.VSync)
	if err != nil {
		r.DestroyDescriptorPool(r.defaultPool)
		r.allocator.Release()
		return nil, cerrors.Wrap(err, "creating frame controller")
	}
	r.frames = frames

	caps := device.Caps()
	core.LogInfo("rhi initialized on %q", caps.Name)
	core.LogDebug("min uniform alignment %d, depth format %d, max push constants %d bytes",
		caps.MinUniformBufferAlignment, caps.DepthFormat, caps.MaxPushConstantSize)
	return r, nil
}

// BeginFrame starts the next frame. See FrameController.BeginFrame for
// the skip/retry semantics.
func (r *RHI) BeginFrame() (CommandBuffer, bool, error) {
	return r.frames.BeginFrame()
}

// EndFrame submits and presents the current frame.
func (r *RHI) EndFrame() error {
	return r.frames.EndFrame()
}

// OnResized forwards the window's new pixel size to the frame
// controller.
func (r *RHI) OnResized(width, height uint32) {
	r.frames.OnResized(width, height)
}

// WaitIdle blocks until the device has finished all submitted work.
func (r *RHI) WaitIdle() error {
	return r.device.WaitIdle()
}

// Device exposes the backend for subsystems that need raw handles.
func (r *RHI) Device() Device {
	return r.device
}

// Allocator exposes the device-memory allocator.
func (r *RHI) Allocator() *DeviceAllocator {
	return r.allocator
}

// Frames exposes the frame controller.
func (r *RHI) Frames() *FrameController {
	return r.frames
}

// Caps returns the device capability summary.
func (r *RHI) Caps() *DeviceCaps {
	return r.device.Caps()
}

// Shutdown tears the context down: device idle first, then the frame
// objects, the default pool, the allocator's blocks and finally the
// device itself.
func (r *RHI) Shutdown() {
	if err := r.device.WaitIdle(); err != nil {
		core.LogError("device wait before shutdown failed: %v", err)
	}
	if r.frames != nil {
		r.frames.destroy()
		r.frames = nil
	}
	if r.defaultPool != nil {
		r.DestroyDescriptorPool(r.defaultPool)
		r.defaultPool = nil
	}
	r.allocator.Release()
	r.device.Destroy()
	core.LogInfo("rhi shut down")
}
