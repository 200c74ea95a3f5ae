package rhi

import (
	"github.com/chewxy/math32"
	cerrors "github.com/cockroachdb/errors"
)

// Texture is a sampled GPU image with its sub-allocation, view and
// sampler. Generation is bumped every time the pixel contents are
// replaced so descriptor owners can notice staleness.
type Texture struct {
	Name       string
	Width      uint32
	Height     uint32
	MipLevels  uint32
	Format     Format
	Generation uint32

	image   ImageHandle
	alloc   *Allocation
	sampler SamplerHandle
}

// TextureDesc describes a sampled texture created from decoded pixels.
type TextureDesc struct {
	Name         string
	Width        uint32
	Height       uint32
	Format       Format
	GenerateMips bool
	Filter       Filter
	Address      AddressMode
}

// Image exposes the backend image handle for descriptor writes and
// framebuffer attachment.
func (t *Texture) Image() ImageHandle {
	return t.image
}

// Sampler exposes the backend sampler handle. Nil for attachment-only
// textures.
func (t *Texture) Sampler() SamplerHandle {
	return t.sampler
}

// CalcMipLevels returns the full mip chain length for an image extent:
// floor(log2(max(w,h))) + 1.
func CalcMipLevels(width, height uint32) uint32 {
	longest := float32(width)
	if height > width {
		longest = float32(height)
	}
	return uint32(math32.Floor(math32.Log2(longest))) + 1
}

// CreateTexture creates a device-local image, uploads pixels through a
// staging buffer and blits the remaining mip chain, then creates the
// sampler. Every already created sub-resource is destroyed if a later
// step fails, so a failed composite leaves no dangling backend objects.
func (r *RHI) CreateTexture(desc *TextureDesc, pixels []byte) (*Texture, error) {
	mipLevels := uint32(1)
	if desc.GenerateMips {
		mipLevels = CalcMipLevels(desc.Width, desc.Height)
	}

	usage := ImageUsageSampled | ImageUsageTransferDst
	if mipLevels > 1 {
		// Each mip is blitted from the one above it.
		usage |= ImageUsageTransferSrc
	}

	imageDesc := &ImageDesc{
		Width:     desc.Width,
		Height:    desc.Height,
		MipLevels: mipLevels,
		Format:    desc.Format,
		Usage:     usage,
		Aspect:    ImageAspectColor,
	}

	image, alloc, err := r.createBoundImage(desc.Name, imageDesc)
	if err != nil {
		return nil, err
	}

	staging, err := r.CreateBuffer(&BufferDesc{
		Name:          desc.Name + ".staging",
		Size:          uint64(len(pixels)),
		Usage:         BufferUsageTransferSrc,
		Memory:        MemoryHostVisible | MemoryHostCoherent,
		PersistentMap: true,
	})
	if err != nil {
		r.device.DestroyImage(image)
		r.allocator.Free(alloc)
		return nil, cerrors.Wrapf(err, "creating staging buffer for texture %q", desc.Name)
	}
	copy(staging.mapped, pixels)

	err = r.device.UploadImage(image, staging.handle, 0)
	r.DestroyBuffer(staging)
	if err != nil {
		r.device.DestroyImage(image)
		r.allocator.Free(alloc)
		return nil, cerrors.Wrapf(err, "uploading texture %q", desc.Name)
	}

	sampler, err := r.device.CreateSampler(&SamplerDesc{
		MinFilter:  desc.Filter,
		MagFilter:  desc.Filter,
		AddressU:   desc.Address,
		AddressV:   desc.Address,
		MaxLod:     float32(mipLevels),
		Anisotropy: mipLevels > 1,
	})
	if err != nil {
		r.device.DestroyImage(image)
		r.allocator.Free(alloc)
		return nil, cerrors.Wrapf(err, "creating sampler for texture %q", desc.Name)
	}

	return &Texture{
		Name:       desc.Name,
		Width:      desc.Width,
		Height:     desc.Height,
		MipLevels:  mipLevels,
		Format:     desc.Format,
		Generation: 0,
		image:      image,
		alloc:      alloc,
		sampler:    sampler,
	}, nil
}

// CreateRenderTarget creates a colour texture usable both as a pass
// attachment and as a sampled input of a later pass. No pixel upload;
// the owning pass leaves it shader-readable when it ends.
func (r *RHI) CreateRenderTarget(name string, width, height uint32, format Format) (*Texture, error) {
	imageDesc := &ImageDesc{
		Width:     width,
		Height:    height,
		MipLevels: 1,
		Format:    format,
		Usage:     ImageUsageColorAttachment | ImageUsageSampled,
		Aspect:    ImageAspectColor,
	}
	image, alloc, err := r.createBoundImage(name, imageDesc)
	if err != nil {
		return nil, err
	}
	sampler, err := r.device.CreateSampler(&SamplerDesc{
		MinFilter: FilterLinear,
		MagFilter: FilterLinear,
		AddressU:  AddressClampToEdge,
		AddressV:  AddressClampToEdge,
		MaxLod:    1,
	})
	if err != nil {
		r.device.DestroyImage(image)
		r.allocator.Free(alloc)
		return nil, cerrors.Wrapf(err, "creating sampler for render target %q", name)
	}
	return &Texture{
		Name:      name,
		Width:     width,
		Height:    height,
		MipLevels: 1,
		Format:    format,
		image:     image,
		alloc:     alloc,
		sampler:   sampler,
	}, nil
}

// CreateDepthTexture creates the swapchain-sized depth-stencil attachment
// in the device's detected depth format. No sampler, no pixel upload.
func (r *RHI) CreateDepthTexture(name string, width, height uint32) (*Texture, error) {
	imageDesc := &ImageDesc{
		Width:     width,
		Height:    height,
		MipLevels: 1,
		Format:    r.device.Caps().DepthFormat,
		Usage:     ImageUsageDepthStencilAttachment,
		Aspect:    ImageAspectDepth,
	}
	image, alloc, err := r.createBoundImage(name, imageDesc)
	if err != nil {
		return nil, err
	}
	return &Texture{
		Name:      name,
		Width:     width,
		Height:    height,
		MipLevels: 1,
		Format:    imageDesc.Format,
		image:     image,
		alloc:     alloc,
	}, nil
}

// createBoundImage creates an image, allocates for it with the backend's
// required alignment (images do not take the 256-byte buffer default),
// binds, and creates the view. Cleans up on every failure path.
func (r *RHI) createBoundImage(name string, desc *ImageDesc) (ImageHandle, *Allocation, error) {
	image, req, err := r.device.CreateImage(desc)
	if err != nil {
		return nil, nil, cerrors.Wrapf(err, "creating image %q", name)
	}

	typeIndex, err := r.device.FindMemoryIndex(req.MemoryTypeBits, MemoryDeviceLocal)
	if err != nil {
		r.device.DestroyImage(image)
		return nil, nil, cerrors.Wrapf(err, "selecting memory for image %q", name)
	}

	alloc, err := r.allocator.Allocate(req.Size, typeIndex, req.Alignment)
	if err != nil {
		r.device.DestroyImage(image)
		return nil, nil, cerrors.Wrapf(err, "allocating memory for image %q", name)
	}

	if err := r.device.BindImageMemory(image, alloc.Memory(), alloc.Offset); err != nil {
		r.device.DestroyImage(image)
		r.allocator.Free(alloc)
		return nil, nil, cerrors.Wrapf(err, "binding memory for image %q", name)
	}

	if err := r.device.CreateImageView(image); err != nil {
		r.device.DestroyImage(image)
		r.allocator.Free(alloc)
		return nil, nil, cerrors.Wrapf(err, "creating view for image %q", name)
	}

	return image, alloc, nil
}

// DestroyTexture releases the sampler and image. The memory sub-range
// stays with the block per the allocator contract.
func (r *RHI) DestroyTexture(t *Texture) {
	if t == nil || t.image == nil {
		return
	}
	if t.sampler != nil {
		r.device.DestroySampler(t.sampler)
		t.sampler = nil
	}
	r.device.DestroyImage(t.image)
	r.allocator.Free(t.alloc)
	t.image = nil
}
