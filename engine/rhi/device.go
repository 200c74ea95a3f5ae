package rhi

// Backend object handles. Each backend returns its own concrete types and
// receives them back on every call; the frontend never inspects them.
type (
	MemoryHandle           interface{}
	BufferHandle           interface{}
	ImageHandle            interface{}
	SamplerHandle          interface{}
	RenderPassHandle       interface{}
	FramebufferHandle      interface{}
	DescriptorLayoutHandle interface{}
	DescriptorPoolHandle   interface{}
	DescriptorSetHandle    interface{}
	PipelineLayoutHandle   interface{}
	PipelineHandle         interface{}
	SemaphoreHandle        interface{}
	FenceHandle            interface{}
)

// MemoryPropertyFlags select the kind of device memory a resource lives in.
type MemoryPropertyFlags uint32

const (
	MemoryDeviceLocal MemoryPropertyFlags = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
)

// BufferUsage is a bitmask of the ways a buffer may be used.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

// Format identifies an image pixel format. The frontend only names the
// formats it creates resources in; swapchain and depth formats are chosen
// by the backend and reported through DeviceCaps/SwapchainInfo.
type Format int

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatD32Sfloat
	FormatD24UnormS8Uint
)

// ImageUsage is a bitmask of the ways an image may be used.
type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

// ImageAspect selects which aspect of an image a view exposes.
type ImageAspect int

const (
	ImageAspectColor ImageAspect = iota
	ImageAspectDepth
)

// ShaderStageFlags is a bitmask of pipeline shader stages.
type ShaderStageFlags uint32

const (
	ShaderStageVertex ShaderStageFlags = 1 << iota
	ShaderStageFragment
)

// DescriptorType identifies what a descriptor binding refers to.
type DescriptorType int

const (
	DescriptorUniformBuffer DescriptorType = iota
	DescriptorCombinedImageSampler
)

// Topology selects the primitive assembly mode of a pipeline.
type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyLineList
)

// CullMode selects back-face culling for a pipeline.
type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeBack
)

// BlendMode selects the colour blend equation of a pipeline.
type BlendMode int

const (
	BlendNone BlendMode = iota
	BlendAlpha
	BlendAdditive
)

// Filter selects sampler min/mag filtering.
type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

// AddressMode selects sampler wrap behaviour.
type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
)

// SwapchainStatus is the presentation engine's verdict on an acquire or
// present. OutOfDate and Suboptimal are not errors; the frame controller
// intercepts them and rebuilds the swapchain.
type SwapchainStatus int

const (
	SwapchainOK SwapchainStatus = iota
	SwapchainSuboptimal
	SwapchainOutOfDate
)

// MemoryRequirements is what the backend reports for a created resource
// before memory is bound to it.
type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

// DeviceCaps is queried once at device creation and cached.
type DeviceCaps struct {
	Name                      string
	MinUniformBufferAlignment uint64
	DepthFormat               Format
	MaxPushConstantSize       uint32
	MaxSamplerAnisotropy      float32
}

// SwapchainInfo describes the currently live swapchain.
type SwapchainInfo struct {
	Format     Format
	Width      uint32
	Height     uint32
	ImageCount uint32
	// Images are the backend handles of the presentation images, used as
	// framebuffer colour attachments.
	Images []ImageHandle
}

// ImageDesc describes an image to create.
type ImageDesc struct {
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    Format
	Usage     ImageUsage
	Aspect    ImageAspect
}

// SamplerDesc describes a sampler to create.
type SamplerDesc struct {
	MinFilter  Filter
	MagFilter  Filter
	AddressU   AddressMode
	AddressV   AddressMode
	MaxLod     float32
	Anisotropy bool
}

// RenderPassClearFlags selects which attachments a pass clears on load.
type RenderPassClearFlags uint8

const (
	RenderPassClearColour RenderPassClearFlags = 1 << iota
	RenderPassClearDepth
	RenderPassClearStencil
)

// RenderPassDesc describes a render pass. DepthFormat FormatUnknown means
// the pass has no depth attachment. PresentAfter selects the final colour
// layout: presentation source when true, shader-readable otherwise.
type RenderPassDesc struct {
	Name         string
	ColorFormat  Format
	DepthFormat  Format
	ClearFlags   RenderPassClearFlags
	PresentAfter bool
}

// DescriptorBinding declares one binding slot of a set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStageFlags
}

// DescriptorPoolSize declares how many descriptors of one type a pool holds.
type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

// BufferBinding points a descriptor write at a buffer range.
type BufferBinding struct {
	Buffer BufferHandle
	Offset uint64
	Range  uint64
}

// ImageBinding points a descriptor write at a sampled image.
type ImageBinding struct {
	Image   ImageHandle
	Sampler SamplerHandle
}

// DescriptorWrite updates one binding of a descriptor set. Exactly one of
// Buffer/Image must be set, matching the binding's declared type.
type DescriptorWrite struct {
	Binding uint32
	Type    DescriptorType
	Buffer  *BufferBinding
	Image   *ImageBinding
}

// PushConstantRange declares a push constant window of a pipeline layout.
type PushConstantRange struct {
	Stages ShaderStageFlags
	Offset uint32
	Size   uint32
}

// ShaderStageDesc is one compiled shader stage of a pipeline. Code is an
// opaque bytecode blob produced by an external compiler.
type ShaderStageDesc struct {
	Stage      ShaderStageFlags
	Code       []byte
	EntryPoint string
}

// PipelineDesc describes a graphics pipeline. Viewport, scissor and line
// width are always dynamic so one pipeline serves any render-target size.
type PipelineDesc struct {
	Name         string
	Stages       []ShaderStageDesc
	Layout       PipelineLayoutHandle
	RenderPass   RenderPassHandle
	VertexLayout *VertexLayout
	Topology     Topology
	CullMode     CullMode
	DepthTest    bool
	DepthWrite   bool
	Blend        BlendMode
}

// ClearValues are the per-frame clear colours of the main pass.
type ClearValues struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// CommandBuffer records GPU commands for one frame (or one single-use
// upload). Recording happens on the driving thread only.
type CommandBuffer interface {
	BeginRenderPass(pass RenderPassHandle, framebuffer FramebufferHandle, width, height uint32, clear ClearValues)
	EndRenderPass()
	BindPipeline(pipeline PipelineHandle)
	BindDescriptorSet(layout PipelineLayoutHandle, setIndex uint32, set DescriptorSetHandle, dynamicOffsets []uint32)
	BindVertexBuffer(buffer BufferHandle, offset uint64)
	BindIndexBuffer(buffer BufferHandle, offset uint64, use32Bit bool)
	PushConstants(layout PipelineLayoutHandle, stages ShaderStageFlags, offset uint32, data []byte)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	SetViewport(x, y, width, height float32)
	SetScissor(x, y int32, width, height uint32)
}

// Device is the backend contract. Exactly one implementation is compiled
// in (rhi/vulkan) and selected once at startup by the config's backend
// tag; the frontend owns all policy and drives the backend through this
// interface from a single thread.
type Device interface {
	Caps() *DeviceCaps

	// FindMemoryIndex picks a memory type from typeBits with the given
	// properties. Returns ErrNoSuitableMemoryType if none matches.
	FindMemoryIndex(typeBits uint32, flags MemoryPropertyFlags) (uint32, error)

	AllocateMemory(size uint64, memoryTypeIndex uint32) (MemoryHandle, error)
	FreeMemory(memory MemoryHandle)
	// MapMemory maps the whole memory object and returns its bytes. The
	// mapping stays valid until FreeMemory.
	MapMemory(memory MemoryHandle, size uint64) ([]byte, error)

	CreateBuffer(size uint64, usage BufferUsage) (BufferHandle, *MemoryRequirements, error)
	BindBufferMemory(buffer BufferHandle, memory MemoryHandle, offset uint64) error
	DestroyBuffer(buffer BufferHandle)
	// CopyBuffer records and synchronously submits a one-shot transfer.
	CopyBuffer(src BufferHandle, srcOffset uint64, dst BufferHandle, dstOffset uint64, size uint64) error

	CreateImage(desc *ImageDesc) (ImageHandle, *MemoryRequirements, error)
	BindImageMemory(image ImageHandle, memory MemoryHandle, offset uint64) error
	CreateImageView(image ImageHandle) error
	DestroyImage(image ImageHandle)
	// UploadImage copies staged pixel bytes into mip 0 and blits the
	// remaining mip chain, transitioning each level as it goes. Leaves
	// the whole image shader-readable.
	UploadImage(image ImageHandle, staging BufferHandle, stagingOffset uint64) error

	CreateSampler(desc *SamplerDesc) (SamplerHandle, error)
	DestroySampler(sampler SamplerHandle)

	CreateRenderPass(desc *RenderPassDesc) (RenderPassHandle, error)
	DestroyRenderPass(pass RenderPassHandle)
	CreateFramebuffer(pass RenderPassHandle, attachments []ImageHandle, width, height uint32) (FramebufferHandle, error)
	DestroyFramebuffer(framebuffer FramebufferHandle)

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorLayoutHandle, error)
	DestroyDescriptorSetLayout(layout DescriptorLayoutHandle)
	CreateDescriptorPool(sizes []DescriptorPoolSize, maxSets uint32) (DescriptorPoolHandle, error)
	DestroyDescriptorPool(pool DescriptorPoolHandle)
	AllocateDescriptorSet(pool DescriptorPoolHandle, layout DescriptorLayoutHandle) (DescriptorSetHandle, error)
	UpdateDescriptorSet(set DescriptorSetHandle, writes []DescriptorWrite) error

	CreatePipelineLayout(layouts []DescriptorLayoutHandle, pushRanges []PushConstantRange) (PipelineLayoutHandle, error)
	DestroyPipelineLayout(layout PipelineLayoutHandle)
	CreateGraphicsPipeline(desc *PipelineDesc) (PipelineHandle, error)
	DestroyPipeline(pipeline PipelineHandle)

	CreateSemaphore() (SemaphoreHandle, error)
	DestroySemaphore(semaphore SemaphoreHandle)
	CreateFence(signaled bool) (FenceHandle, error)
	DestroyFence(fence FenceHandle)
	// WaitForFence blocks until the fence signals. The wait is unbounded;
	// a stuck GPU is not a recoverable case.
	WaitForFence(fence FenceHandle) error
	ResetFence(fence FenceHandle) error

	CreateSwapchain(width, height uint32, vsync bool) (*SwapchainInfo, error)
	DestroySwapchain()
	// AcquireNextImage hands out the next presentation image, signalling
	// imageAvailable when it is ready to be rendered to.
	AcquireNextImage(imageAvailable SemaphoreHandle) (uint32, SwapchainStatus, error)
	// FrameCommandBuffer returns slot's long-lived command buffer, reset
	// and ready for recording.
	FrameCommandBuffer(slot uint32) (CommandBuffer, error)
	// SubmitFrame submits slot's command buffer: waits imageAvailable,
	// signals drawFinished and fence.
	SubmitFrame(slot uint32, imageAvailable, drawFinished SemaphoreHandle, fence FenceHandle) error
	Present(drawFinished SemaphoreHandle, imageIndex uint32) (SwapchainStatus, error)

	WaitIdle() error
	Destroy()
}
