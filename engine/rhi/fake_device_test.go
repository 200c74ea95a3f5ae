package rhi

import (
	cerrors "github.com/cockroachdb/errors"
)

// The fake device backs every test in this package. It models the two
// memory types the frontend cares about (0 device-local, 1 host-visible
// coherent), backs memory objects with real byte slices so mapped writes
// and copies can be asserted, and signals fences synchronously at
// submit. Waiting on an unsignaled fence is an error: with synchronous
// submits such a fence can never signal, so any wait on one is a
// protocol violation in the caller.

type fakeMemory struct {
	bytes     []byte
	typeIndex uint32
	freed     bool
}

type fakeBuffer struct {
	size        uint64
	usage       BufferUsage
	memory      *fakeMemory
	boundOffset uint64
	destroyed   bool
}

func (b *fakeBuffer) contents() []byte {
	return b.memory.bytes[b.boundOffset : b.boundOffset+b.size]
}

type fakeImage struct {
	desc        ImageDesc
	memory      *fakeMemory
	boundOffset uint64
	viewCreated bool
	uploaded    bool
	pixels      []byte
	destroyed   bool
}

type fakeSampler struct {
	desc      SamplerDesc
	destroyed bool
}

type fakeRenderPass struct{ desc RenderPassDesc }
type fakeFramebuffer struct{ attachments []ImageHandle }
type fakeDescriptorLayout struct{ bindings []DescriptorBinding }
type fakeDescriptorPool struct{ destroyed bool }
type fakeDescriptorSet struct{ pool *fakeDescriptorPool }
type fakePipelineLayout struct{ pushRanges []PushConstantRange }
type fakePipeline struct{ desc PipelineDesc }
type fakeSemaphore struct{ destroyed bool }

type fakeFence struct {
	signaled  bool
	destroyed bool
}

type fakeDrawIndexed struct {
	indexCount    uint32
	instanceCount uint32
	firstIndex    uint32
	vertexOffset  int32
	firstInstance uint32
}

type fakeCommandBuffer struct {
	slot uint32

	passDepth    int
	boundVertex  BufferHandle
	boundIndex   BufferHandle
	vertexBinds  int
	indexBinds   int
	draws        []fakeDrawIndexed
	viewportSets int
	scissorSets  int
}

func (cb *fakeCommandBuffer) reset() {
	cb.passDepth = 0
	cb.boundVertex = nil
	cb.boundIndex = nil
	cb.vertexBinds = 0
	cb.indexBinds = 0
	cb.draws = nil
	cb.viewportSets = 0
	cb.scissorSets = 0
}

func (cb *fakeCommandBuffer) BeginRenderPass(pass RenderPassHandle, framebuffer FramebufferHandle, width, height uint32, clear ClearValues) {
	cb.passDepth++
}

func (cb *fakeCommandBuffer) EndRenderPass() {
	cb.passDepth--
}

func (cb *fakeCommandBuffer) BindPipeline(pipeline PipelineHandle) {}

func (cb *fakeCommandBuffer) BindDescriptorSet(layout PipelineLayoutHandle, setIndex uint32, set DescriptorSetHandle, dynamicOffsets []uint32) {
}

func (cb *fakeCommandBuffer) BindVertexBuffer(buffer BufferHandle, offset uint64) {
	cb.boundVertex = buffer
	cb.vertexBinds++
}

func (cb *fakeCommandBuffer) BindIndexBuffer(buffer BufferHandle, offset uint64, use32Bit bool) {
	cb.boundIndex = buffer
	cb.indexBinds++
}

func (cb *fakeCommandBuffer) PushConstants(layout PipelineLayoutHandle, stages ShaderStageFlags, offset uint32, data []byte) {
}

func (cb *fakeCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {}

func (cb *fakeCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	cb.draws = append(cb.draws, fakeDrawIndexed{
		indexCount:    indexCount,
		instanceCount: instanceCount,
		firstIndex:    firstIndex,
		vertexOffset:  vertexOffset,
		firstInstance: firstInstance,
	})
}

func (cb *fakeCommandBuffer) SetViewport(x, y, width, height float32) {
	cb.viewportSets++
}

func (cb *fakeCommandBuffer) SetScissor(x, y int32, width, height uint32) {
	cb.scissorSets++
}

type fakeDevice struct {
	caps DeviceCaps

	// Failure injection for rollback tests. Each fires on every call
	// until cleared.
	failFindMemory bool
	failAllocate   error
	failBuffer     error
	failImage      error
	failImageView  error
	failSampler    error
	failUpload     error

	bufferAlignment uint64
	imageAlignment  uint64

	memories []*fakeMemory
	buffers  []*fakeBuffer
	images   []*fakeImage
	samplers []*fakeSampler

	mapCalls  int
	copyCalls int

	swapchainLive     bool
	swapchainCreates  int
	swapchainDestroys int
	lastSwapchainW    uint32
	lastSwapchainH    uint32
	swapchainImages   []ImageHandle
	nextImage         uint32

	framebuffersCreated  int
	framebuffersDestroys int

	semaphoresCreated   int
	semaphoresDestroyed int
	fencesCreated       int
	fencesDestroyed     int

	frameCBs [MaxFramesInFlight]*fakeCommandBuffer

	lastWrites       []DescriptorWrite
	lastPipelineDesc *PipelineDesc

	submits       int
	presents      int
	waitIdleCalls int
	destroyed     bool

	acquireStatuses []SwapchainStatus
	presentStatuses []SwapchainStatus
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		caps: DeviceCaps{
			Name:                      "fake device",
			MinUniformBufferAlignment: 256,
			DepthFormat:               FormatD32Sfloat,
			MaxPushConstantSize:       128,
			MaxSamplerAnisotropy:      16,
		},
		bufferAlignment: 16,
		imageAlignment:  4096,
	}
}

func (d *fakeDevice) liveBuffers() int {
	live := 0
	for _, b := range d.buffers {
		if !b.destroyed {
			live++
		}
	}
	return live
}

func (d *fakeDevice) liveImages() int {
	live := 0
	for _, img := range d.images {
		if !img.destroyed {
			live++
		}
	}
	return live
}

func (d *fakeDevice) liveMemories() int {
	live := 0
	for _, m := range d.memories {
		if !m.freed {
			live++
		}
	}
	return live
}

func (d *fakeDevice) Caps() *DeviceCaps {
	return &d.caps
}

func (d *fakeDevice) FindMemoryIndex(typeBits uint32, flags MemoryPropertyFlags) (uint32, error) {
	if d.failFindMemory {
		return 0, ErrNoSuitableMemoryType
	}
	index := uint32(0)
	if flags&MemoryHostVisible != 0 {
		index = 1
	}
	if typeBits&(1<<index) == 0 {
		return 0, ErrNoSuitableMemoryType
	}
	return index, nil
}

func (d *fakeDevice) AllocateMemory(size uint64, memoryTypeIndex uint32) (MemoryHandle, error) {
	if d.failAllocate != nil {
		return nil, d.failAllocate
	}
	m := &fakeMemory{
		bytes:     make([]byte, size),
		typeIndex: memoryTypeIndex,
	}
	d.memories = append(d.memories, m)
	return m, nil
}

func (d *fakeDevice) FreeMemory(memory MemoryHandle) {
	memory.(*fakeMemory).freed = true
}

func (d *fakeDevice) MapMemory(memory MemoryHandle, size uint64) ([]byte, error) {
	d.mapCalls++
	return memory.(*fakeMemory).bytes[:size], nil
}

func (d *fakeDevice) CreateBuffer(size uint64, usage BufferUsage) (BufferHandle, *MemoryRequirements, error) {
	if d.failBuffer != nil {
		return nil, nil, d.failBuffer
	}
	b := &fakeBuffer{size: size, usage: usage}
	d.buffers = append(d.buffers, b)
	return b, &MemoryRequirements{
		Size:           size,
		Alignment:      d.bufferAlignment,
		MemoryTypeBits: 0b11,
	}, nil
}

func (d *fakeDevice) BindBufferMemory(buffer BufferHandle, memory MemoryHandle, offset uint64) error {
	b := buffer.(*fakeBuffer)
	b.memory = memory.(*fakeMemory)
	b.boundOffset = offset
	return nil
}

func (d *fakeDevice) DestroyBuffer(buffer BufferHandle) {
	buffer.(*fakeBuffer).destroyed = true
}

func (d *fakeDevice) CopyBuffer(src BufferHandle, srcOffset uint64, dst BufferHandle, dstOffset uint64, size uint64) error {
	d.copyCalls++
	from := src.(*fakeBuffer)
	to := dst.(*fakeBuffer)
	copy(
		to.memory.bytes[to.boundOffset+dstOffset:to.boundOffset+dstOffset+size],
		from.memory.bytes[from.boundOffset+srcOffset:from.boundOffset+srcOffset+size],
	)
	return nil
}

func (d *fakeDevice) CreateImage(desc *ImageDesc) (ImageHandle, *MemoryRequirements, error) {
	if d.failImage != nil {
		return nil, nil, d.failImage
	}
	img := &fakeImage{desc: *desc}
	d.images = append(d.images, img)
	return img, &MemoryRequirements{
		Size:           uint64(desc.Width) * uint64(desc.Height) * 4,
		Alignment:      d.imageAlignment,
		MemoryTypeBits: 0b01,
	}, nil
}

func (d *fakeDevice) BindImageMemory(image ImageHandle, memory MemoryHandle, offset uint64) error {
	img := image.(*fakeImage)
	img.memory = memory.(*fakeMemory)
	img.boundOffset = offset
	return nil
}

func (d *fakeDevice) CreateImageView(image ImageHandle) error {
	if d.failImageView != nil {
		return d.failImageView
	}
	image.(*fakeImage).viewCreated = true
	return nil
}

func (d *fakeDevice) DestroyImage(image ImageHandle) {
	image.(*fakeImage).destroyed = true
}

func (d *fakeDevice) UploadImage(image ImageHandle, staging BufferHandle, stagingOffset uint64) error {
	if d.failUpload != nil {
		return d.failUpload
	}
	img := image.(*fakeImage)
	src := staging.(*fakeBuffer)
	img.uploaded = true
	img.pixels = append([]byte(nil), src.contents()[stagingOffset:]...)
	return nil
}

func (d *fakeDevice) CreateSampler(desc *SamplerDesc) (SamplerHandle, error) {
	if d.failSampler != nil {
		return nil, d.failSampler
	}
	s := &fakeSampler{desc: *desc}
	d.samplers = append(d.samplers, s)
	return s, nil
}

func (d *fakeDevice) DestroySampler(sampler SamplerHandle) {
	sampler.(*fakeSampler).destroyed = true
}

func (d *fakeDevice) CreateRenderPass(desc *RenderPassDesc) (RenderPassHandle, error) {
	return &fakeRenderPass{desc: *desc}, nil
}

func (d *fakeDevice) DestroyRenderPass(pass RenderPassHandle) {}

func (d *fakeDevice) CreateFramebuffer(pass RenderPassHandle, attachments []ImageHandle, width, height uint32) (FramebufferHandle, error) {
	d.framebuffersCreated++
	return &fakeFramebuffer{attachments: attachments}, nil
}

func (d *fakeDevice) DestroyFramebuffer(framebuffer FramebufferHandle) {
	d.framebuffersDestroys++
}

func (d *fakeDevice) CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorLayoutHandle, error) {
	return &fakeDescriptorLayout{bindings: bindings}, nil
}

func (d *fakeDevice) DestroyDescriptorSetLayout(layout DescriptorLayoutHandle) {}

func (d *fakeDevice) CreateDescriptorPool(sizes []DescriptorPoolSize, maxSets uint32) (DescriptorPoolHandle, error) {
	return &fakeDescriptorPool{}, nil
}

func (d *fakeDevice) DestroyDescriptorPool(pool DescriptorPoolHandle) {
	pool.(*fakeDescriptorPool).destroyed = true
}

func (d *fakeDevice) AllocateDescriptorSet(pool DescriptorPoolHandle, layout DescriptorLayoutHandle) (DescriptorSetHandle, error) {
	return &fakeDescriptorSet{pool: pool.(*fakeDescriptorPool)}, nil
}

func (d *fakeDevice) UpdateDescriptorSet(set DescriptorSetHandle, writes []DescriptorWrite) error {
	d.lastWrites = writes
	return nil
}

func (d *fakeDevice) CreatePipelineLayout(layouts []DescriptorLayoutHandle, pushRanges []PushConstantRange) (PipelineLayoutHandle, error) {
	return &fakePipelineLayout{pushRanges: pushRanges}, nil
}

func (d *fakeDevice) DestroyPipelineLayout(layout PipelineLayoutHandle) {}

func (d *fakeDevice) CreateGraphicsPipeline(desc *PipelineDesc) (PipelineHandle, error) {
	d.lastPipelineDesc = desc
	return &fakePipeline{desc: *desc}, nil
}

func (d *fakeDevice) DestroyPipeline(pipeline PipelineHandle) {}

func (d *fakeDevice) CreateSemaphore() (SemaphoreHandle, error) {
	d.semaphoresCreated++
	return &fakeSemaphore{}, nil
}

func (d *fakeDevice) DestroySemaphore(semaphore SemaphoreHandle) {
	semaphore.(*fakeSemaphore).destroyed = true
	d.semaphoresDestroyed++
}

func (d *fakeDevice) CreateFence(signaled bool) (FenceHandle, error) {
	d.fencesCreated++
	return &fakeFence{signaled: signaled}, nil
}

func (d *fakeDevice) DestroyFence(fence FenceHandle) {
	fence.(*fakeFence).destroyed = true
	d.fencesDestroyed++
}

func (d *fakeDevice) WaitForFence(fence FenceHandle) error {
	if !fence.(*fakeFence).signaled {
		return cerrors.New("fake: waiting on a fence that can never signal")
	}
	return nil
}

func (d *fakeDevice) ResetFence(fence FenceHandle) error {
	fence.(*fakeFence).signaled = false
	return nil
}

func (d *fakeDevice) CreateSwapchain(width, height uint32, vsync bool) (*SwapchainInfo, error) {
	if d.swapchainLive {
		return nil, cerrors.New("fake: swapchain created while previous one is live")
	}
	d.swapchainLive = true
	d.swapchainCreates++
	d.lastSwapchainW = width
	d.lastSwapchainH = height
	d.nextImage = 0

	const imageCount = 3
	d.swapchainImages = make([]ImageHandle, imageCount)
	for i := range d.swapchainImages {
		d.swapchainImages[i] = &fakeImage{desc: ImageDesc{Width: width, Height: height}}
	}
	return &SwapchainInfo{
		Format:     FormatB8G8R8A8Srgb,
		Width:      width,
		Height:     height,
		ImageCount: imageCount,
		Images:     d.swapchainImages,
	}, nil
}

func (d *fakeDevice) DestroySwapchain() {
	d.swapchainLive = false
	d.swapchainDestroys++
}

func (d *fakeDevice) AcquireNextImage(imageAvailable SemaphoreHandle) (uint32, SwapchainStatus, error) {
	if len(d.acquireStatuses) > 0 {
		status := d.acquireStatuses[0]
		d.acquireStatuses = d.acquireStatuses[1:]
		if status != SwapchainOK {
			return 0, status, nil
		}
	}
	index := d.nextImage
	d.nextImage = (d.nextImage + 1) % uint32(len(d.swapchainImages))
	return index, SwapchainOK, nil
}

func (d *fakeDevice) FrameCommandBuffer(slot uint32) (CommandBuffer, error) {
	if d.frameCBs[slot] == nil {
		d.frameCBs[slot] = &fakeCommandBuffer{slot: slot}
	}
	d.frameCBs[slot].reset()
	return d.frameCBs[slot], nil
}

func (d *fakeDevice) SubmitFrame(slot uint32, imageAvailable, drawFinished SemaphoreHandle, fence FenceHandle) error {
	fence.(*fakeFence).signaled = true
	d.submits++
	return nil
}

func (d *fakeDevice) Present(drawFinished SemaphoreHandle, imageIndex uint32) (SwapchainStatus, error) {
	d.presents++
	if len(d.presentStatuses) > 0 {
		status := d.presentStatuses[0]
		d.presentStatuses = d.presentStatuses[1:]
		return status, nil
	}
	return SwapchainOK, nil
}

func (d *fakeDevice) WaitIdle() error {
	d.waitIdleCalls++
	return nil
}

func (d *fakeDevice) Destroy() {
	d.destroyed = true
}
