package rhi

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/ember-engine/ember/engine/core"
)

// MaxFramesInFlight bounds how many frames the CPU may prepare ahead of
// the GPU. Each in-flight frame owns a full sync set.
const MaxFramesInFlight = 2

// Acquire retries after an in-place swapchain rebuild before giving up.
const maxAcquireAttempts = 3

type frameState int

const (
	frameIdle frameState = iota
	frameAcquiring
	frameRecording
	frameSubmitted
	framePresented
)

// frameSyncSet is the per-frame-in-flight triple: the semaphore the
// acquired image signals, the semaphore the finished draw signals, and
// the fence bounding CPU reuse of this slot.
type frameSyncSet struct {
	imageAvailable SemaphoreHandle
	drawFinished   SemaphoreHandle
	inFlight       FenceHandle
}

// FrameController owns the swapchain, the main render pass with its
// framebuffers and depth attachment, and the frame-in-flight protocol:
// acquire, submit, present, and in-place recreation on resize or
// out-of-date surfaces.
type FrameController struct {
	rhi *RHI
	bus *core.EventBus

	syncs          [MaxFramesInFlight]frameSyncSet
	imagesInFlight []FenceHandle

	frameIndex uint32
	imageIndex uint32
	state      frameState

	swapchain    *SwapchainInfo
	mainPass     *RenderPass
	framebuffers []FramebufferHandle
	depth        *Texture

	width  uint32
	height uint32
	vsync  bool

	// sizeGeneration advances on every resize request (and on a failed
	// present); the swapchain is rebuilt when it runs ahead of
	// lastSizeGeneration.
	sizeGeneration     uint64
	lastSizeGeneration uint64
	recreating         bool

	clear ClearValues

	currentCB CommandBuffer
}

func newFrameController(r *RHI, bus *core.EventBus, width, height uint32, vsync bool) (*FrameController, error) {
	fc := &FrameController{
		rhi:    r,
		bus:    bus,
		width:  width,
		height: height,
		vsync:  vsync,
		clear: ClearValues{
			Color: [4]float32{0.0, 0.0, 0.2, 1.0},
			Depth: 1.0,
		},
	}

	if err := fc.createSwapchainObjects(); err != nil {
		return nil, err
	}

	for i := 0; i < MaxFramesInFlight; i++ {
		imageAvailable, err := r.device.CreateSemaphore()
		if err != nil {
			return nil, cerrors.Wrap(err, "creating image-available semaphore")
		}
		drawFinished, err := r.device.CreateSemaphore()
		if err != nil {
			return nil, cerrors.Wrap(err, "creating draw-finished semaphore")
		}
		// Created signaled so the very first frame does not wait forever.
		fence, err := r.device.CreateFence(true)
		if err != nil {
			return nil, cerrors.Wrap(err, "creating in-flight fence")
		}
		fc.syncs[i] = frameSyncSet{
			imageAvailable: imageAvailable,
			drawFinished:   drawFinished,
			inFlight:       fence,
		}
	}

	return fc, nil
}

// createSwapchainObjects builds the swapchain, the main pass (first time
// only), the depth attachment and one framebuffer per swapchain image at
// the controller's cached size.
func (fc *FrameController) createSwapchainObjects() error {
	info, err := fc.rhi.device.CreateSwapchain(fc.width, fc.height, fc.vsync)
	if err != nil {
		return cerrors.Wrap(err, "creating swapchain")
	}
	fc.swapchain = info
	// The surface may clamp the requested extent.
	fc.width = info.Width
	fc.height = info.Height

	if fc.mainPass == nil {
		pass, err := fc.rhi.CreateRenderPass(&RenderPassDesc{
			Name:         "main",
			ColorFormat:  info.Format,
			DepthFormat:  fc.rhi.device.Caps().DepthFormat,
			ClearFlags:   RenderPassClearColour | RenderPassClearDepth | RenderPassClearStencil,
			PresentAfter: true,
		})
		if err != nil {
			return err
		}
		fc.mainPass = pass
	}

	depth, err := fc.rhi.CreateDepthTexture("swapchain.depth", fc.width, fc.height)
	if err != nil {
		return err
	}
	fc.depth = depth

	fc.framebuffers = make([]FramebufferHandle, info.ImageCount)
	for i := uint32(0); i < info.ImageCount; i++ {
		fb, err := fc.rhi.device.CreateFramebuffer(
			fc.mainPass.handle,
			[]ImageHandle{info.Images[i], depth.Image()},
			fc.width, fc.height)
		if err != nil {
			return cerrors.Wrapf(err, "creating framebuffer %d", i)
		}
		fc.framebuffers[i] = fb
	}

	fc.imagesInFlight = make([]FenceHandle, info.ImageCount)
	return nil
}

func (fc *FrameController) destroySwapchainObjects() {
	for _, fb := range fc.framebuffers {
		fc.rhi.device.DestroyFramebuffer(fb)
	}
	fc.framebuffers = nil
	fc.rhi.DestroyTexture(fc.depth)
	fc.depth = nil
	fc.rhi.device.DestroySwapchain()
	fc.swapchain = nil
}

// OnResized records the window's new pixel size. The swapchain is
// rebuilt lazily at the next BeginFrame.
func (fc *FrameController) OnResized(width, height uint32) {
	fc.width = width
	fc.height = height
	fc.sizeGeneration++
	core.LogDebug("framebuffer resized: w/h/gen: %d/%d/%d", width, height, fc.sizeGeneration)
}

// SetClearColor sets the main pass clear colour for subsequent frames.
func (fc *FrameController) SetClearColor(r, g, b, a float32) {
	fc.clear.Color = [4]float32{r, g, b, a}
}

// BeginFrame waits for the current slot's fence, rebuilds the swapchain
// if a resize or failed present demands it, acquires the next image and
// opens the main pass on the slot's command buffer. ok=false with a nil
// error means the frame must be skipped (minimized window); the caller
// must not call EndFrame for a skipped frame.
func (fc *FrameController) BeginFrame() (cb CommandBuffer, ok bool, err error) {
	if fc.state != frameIdle {
		return nil, false, ErrFrameActive
	}
	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		// A zero-area framebuffer cannot be rendered to; skip the frame
		// and let the platform layer report a real size later.
		if fc.width == 0 || fc.height == 0 {
			return nil, false, nil
		}

		sync := &fc.syncs[fc.frameIndex]
		if err := fc.rhi.device.WaitForFence(sync.inFlight); err != nil {
			return nil, false, cerrors.Wrap(err, "waiting for in-flight fence")
		}

		if fc.sizeGeneration != fc.lastSizeGeneration {
			if err := fc.recreateSwapchain(); err != nil {
				return nil, false, err
			}
			continue
		}

		fc.state = frameAcquiring
		imageIndex, status, err := fc.rhi.device.AcquireNextImage(sync.imageAvailable)
		if err != nil {
			fc.state = frameIdle
			return nil, false, cerrors.Wrap(err, "acquiring swapchain image")
		}
		if status == SwapchainOutOfDate || status == SwapchainSuboptimal {
			fc.state = frameIdle
			if err := fc.recreateSwapchain(); err != nil {
				return nil, false, err
			}
			continue
		}
		fc.imageIndex = imageIndex

		// If a previous frame is still rendering to this image, wait on
		// its fence before reuse.
		if prev := fc.imagesInFlight[imageIndex]; prev != nil {
			if err := fc.rhi.device.WaitForFence(prev); err != nil {
				fc.state = frameIdle
				return nil, false, cerrors.Wrap(err, "waiting for image fence")
			}
		}
		fc.imagesInFlight[imageIndex] = sync.inFlight

		// Only reset once this frame is certain to submit, otherwise the
		// next wait on this slot would never return.
		if err := fc.rhi.device.ResetFence(sync.inFlight); err != nil {
			fc.state = frameIdle
			return nil, false, cerrors.Wrap(err, "resetting in-flight fence")
		}

		cb, err := fc.rhi.device.FrameCommandBuffer(fc.frameIndex)
		if err != nil {
			fc.state = frameIdle
			return nil, false, cerrors.Wrap(err, "beginning frame command buffer")
		}

		cb.BeginRenderPass(fc.mainPass.handle, fc.framebuffers[imageIndex], fc.width, fc.height, fc.clear)
		cb.SetViewport(0, 0, float32(fc.width), float32(fc.height))
		cb.SetScissor(0, 0, fc.width, fc.height)

		fc.currentCB = cb
		fc.state = frameRecording
		return cb, true, nil
	}
	return nil, false, cerrors.New("rhi: failed to acquire a swapchain image after recreation")
}

// EndFrame closes the main pass, submits the slot's command buffer and
// presents. Out-of-date or suboptimal presents are intercepted: they
// schedule a recreation for the next BeginFrame instead of surfacing an
// error. The frame-in-flight index advances afterwards.
func (fc *FrameController) EndFrame() error {
	if fc.state != frameRecording {
		return ErrFrameNotActive
	}
	sync := &fc.syncs[fc.frameIndex]

	fc.currentCB.EndRenderPass()

	if err := fc.rhi.device.SubmitFrame(fc.frameIndex, sync.imageAvailable, sync.drawFinished, sync.inFlight); err != nil {
		fc.state = frameIdle
		return cerrors.Wrap(err, "submitting frame")
	}
	fc.state = frameSubmitted

	status, err := fc.rhi.device.Present(sync.drawFinished, fc.imageIndex)
	if err != nil {
		fc.state = frameIdle
		return cerrors.Wrap(err, "presenting frame")
	}
	fc.state = framePresented

	if status == SwapchainOutOfDate || status == SwapchainSuboptimal {
		fc.sizeGeneration++
		core.LogDebug("present reported stale swapchain, scheduling recreation")
	}

	fc.currentCB = nil
	fc.frameIndex = (fc.frameIndex + 1) % MaxFramesInFlight
	fc.state = frameIdle
	return nil
}

// recreateSwapchain destroys and rebuilds the swapchain-sized objects in
// place, then broadcasts the new dimensions so dependent resources can
// resize themselves.
func (fc *FrameController) recreateSwapchain() error {
	if fc.recreating {
		return nil
	}
	fc.recreating = true
	defer func() { fc.recreating = false }()

	if err := fc.rhi.device.WaitIdle(); err != nil {
		return cerrors.Wrap(err, "waiting for device before swapchain recreation")
	}

	fc.destroySwapchainObjects()
	if err := fc.createSwapchainObjects(); err != nil {
		return err
	}
	fc.lastSizeGeneration = fc.sizeGeneration

	core.LogInfo("swapchain recreated: %dx%d, %d images", fc.width, fc.height, fc.swapchain.ImageCount)

	context := core.EventContext{}
	context.Data.U16[0] = uint16(fc.width)
	context.Data.U16[1] = uint16(fc.height)
	fc.bus.Fire(core.EVENT_CODE_SWAPCHAIN_RECREATED, fc, context)
	return nil
}

// FrameIndex returns the current frame-in-flight slot, cycling 0..N-1.
func (fc *FrameController) FrameIndex() uint32 {
	return fc.frameIndex
}

// MainRenderPass returns the pass every on-screen pipeline is built
// against.
func (fc *FrameController) MainRenderPass() *RenderPass {
	return fc.mainPass
}

// Extent returns the current swapchain pixel size.
func (fc *FrameController) Extent() (uint32, uint32) {
	return fc.width, fc.height
}

// SurfaceFormat returns the swapchain's colour format.
func (fc *FrameController) SurfaceFormat() Format {
	return fc.swapchain.Format
}

func (fc *FrameController) destroy() {
	for i := range fc.syncs {
		if fc.syncs[i].imageAvailable != nil {
			fc.rhi.device.DestroySemaphore(fc.syncs[i].imageAvailable)
		}
		if fc.syncs[i].drawFinished != nil {
			fc.rhi.device.DestroySemaphore(fc.syncs[i].drawFinished)
		}
		if fc.syncs[i].inFlight != nil {
			fc.rhi.device.DestroyFence(fc.syncs[i].inFlight)
		}
		fc.syncs[i] = frameSyncSet{}
	}
	fc.destroySwapchainObjects()
	if fc.mainPass != nil {
		fc.rhi.DestroyRenderPass(fc.mainPass)
		fc.mainPass = nil
	}
}
