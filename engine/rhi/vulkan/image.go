package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/rhi"
)

// imageHandle carries the image, its view and enough of the creation
// desc to drive uploads and framebuffer attachment. Swapchain images set
// owned=false: the view is ours, the image belongs to the presentation
// engine.
type imageHandle struct {
	image     vk.Image
	view      vk.ImageView
	format    vk.Format
	aspect    vk.ImageAspectFlags
	width     uint32
	height    uint32
	mipLevels uint32
	owned     bool
}

// CreateImage creates an unbound optimally tiled 2D image and reports
// its memory requirements.
func (d *Device) CreateImage(desc *rhi.ImageDesc) (rhi.ImageHandle, *rhi.MemoryRequirements, error) {
	format := convertFormat(desc.Format)
	mipLevels := desc.MipLevels
	if mipLevels == 0 {
		mipLevels = 1
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     mipLevels,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         convertImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if res := vk.CreateImage(d.logical, &createInfo, d.allocator, &image); res != vk.Success {
		return nil, nil, fmt.Errorf("vulkan: vkCreateImage %dx%d failed with %s",
			desc.Width, desc.Height, resultString(res))
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, image, &req)
	req.Deref()

	return &imageHandle{
			image:     image,
			format:    format,
			aspect:    convertAspect(desc.Aspect, format),
			width:     desc.Width,
			height:    desc.Height,
			mipLevels: mipLevels,
			owned:     true,
		}, &rhi.MemoryRequirements{
			Size:           uint64(req.Size),
			Alignment:      uint64(req.Alignment),
			MemoryTypeBits: req.MemoryTypeBits,
		}, nil
}

// BindImageMemory binds a sub-range of a memory block to the image.
func (d *Device) BindImageMemory(image rhi.ImageHandle, memory rhi.MemoryHandle, offset uint64) error {
	im := image.(*imageHandle)
	m := memory.(*memoryHandle)
	if res := vk.BindImageMemory(d.logical, im.image, m.memory, vk.DeviceSize(offset)); res != vk.Success {
		return fmt.Errorf("vulkan: vkBindImageMemory at offset %d failed with %s", offset, resultString(res))
	}
	return nil
}

// CreateImageView creates the image's whole-chain view. Must run after
// memory is bound.
func (d *Device) CreateImageView(image rhi.ImageHandle) error {
	im := image.(*imageHandle)
	view, err := d.createView(im.image, im.format, im.aspect, im.mipLevels)
	if err != nil {
		return err
	}
	im.view = view
	return nil
}

func (d *Device) createView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlags, mipLevels uint32) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.logical, &viewInfo, d.allocator, &view); res != vk.Success {
		return vk.NullImageView, fmt.Errorf("vulkan: vkCreateImageView failed with %s", resultString(res))
	}
	return view, nil
}

// DestroyImage releases the view and, for owned images, the image
// itself. Swapchain images stay with the swapchain.
func (d *Device) DestroyImage(image rhi.ImageHandle) {
	im, ok := image.(*imageHandle)
	if !ok || im == nil {
		return
	}
	if im.view != vk.NullImageView {
		vk.DestroyImageView(d.logical, im.view, d.allocator)
		im.view = vk.NullImageView
	}
	if im.owned && im.image != vk.NullImage {
		vk.DestroyImage(d.logical, im.image, d.allocator)
	}
	im.image = vk.NullImage
}

// UploadImage copies staged pixels into mip 0 and blits the remaining
// chain, one level at a time. Hardware blit needs every level in an
// explicit layout, so each level walks
// undefined -> transfer-dst -> transfer-src -> shader-read-only as the
// chain proceeds. Synchronous, like every upload path.
func (d *Device) UploadImage(image rhi.ImageHandle, staging rhi.BufferHandle, stagingOffset uint64) error {
	im := image.(*imageHandle)
	buf := staging.(*bufferHandle)

	return d.withSingleUseCommands(func(cmd vk.CommandBuffer) error {
		allMips := vk.ImageSubresourceRange{
			AspectMask:     im.aspect,
			BaseMipLevel:   0,
			LevelCount:     im.mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		}

		// Whole chain to transfer-dst for the copy.
		d.imageBarrier(cmd, im.image, allMips,
			0, vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit))

		vk.CmdCopyBufferToImage(cmd, buf.buffer, im.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			BufferOffset: vk.DeviceSize(stagingOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: im.aspect,
				MipLevel:   0,
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: im.width, Height: im.height, Depth: 1},
		}})

		mipWidth := int32(im.width)
		mipHeight := int32(im.height)
		for level := uint32(1); level < im.mipLevels; level++ {
			srcLevel := vk.ImageSubresourceRange{
				AspectMask:     im.aspect,
				BaseMipLevel:   level - 1,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			}

			// The level above becomes the blit source.
			d.imageBarrier(cmd, im.image, srcLevel,
				vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessTransferReadBit),
				vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal,
				vk.PipelineStageFlags(vk.PipelineStageTransferBit),
				vk.PipelineStageFlags(vk.PipelineStageTransferBit))

			dstWidth := mipWidth / 2
			if dstWidth < 1 {
				dstWidth = 1
			}
			dstHeight := mipHeight / 2
			if dstHeight < 1 {
				dstHeight = 1
			}

			vk.CmdBlitImage(cmd,
				im.image, vk.ImageLayoutTransferSrcOptimal,
				im.image, vk.ImageLayoutTransferDstOptimal,
				1, []vk.ImageBlit{{
					SrcSubresource: vk.ImageSubresourceLayers{
						AspectMask: im.aspect,
						MipLevel:   level - 1,
						LayerCount: 1,
					},
					SrcOffsets: [2]vk.Offset3D{{}, {X: mipWidth, Y: mipHeight, Z: 1}},
					DstSubresource: vk.ImageSubresourceLayers{
						AspectMask: im.aspect,
						MipLevel:   level,
						LayerCount: 1,
					},
					DstOffsets: [2]vk.Offset3D{{}, {X: dstWidth, Y: dstHeight, Z: 1}},
				}},
				vk.FilterLinear)

			// The source level is final; make it shader-readable.
			d.imageBarrier(cmd, im.image, srcLevel,
				vk.AccessFlags(vk.AccessTransferReadBit), vk.AccessFlags(vk.AccessShaderReadBit),
				vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
				vk.PipelineStageFlags(vk.PipelineStageTransferBit),
				vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit))

			mipWidth = dstWidth
			mipHeight = dstHeight
		}

		// The last level was only ever a blit destination (or, with a
		// single level, the copy destination).
		lastLevel := vk.ImageSubresourceRange{
			AspectMask:     im.aspect,
			BaseMipLevel:   im.mipLevels - 1,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		}
		d.imageBarrier(cmd, im.image, lastLevel,
			vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit),
			vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit))
		return nil
	})
}

func (d *Device) imageBarrier(cmd vk.CommandBuffer, image vk.Image, subresource vk.ImageSubresourceRange,
	srcAccess, dstAccess vk.AccessFlags, oldLayout, newLayout vk.ImageLayout,
	srcStage, dstStage vk.PipelineStageFlags) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange:    subresource,
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

type samplerHandle struct {
	sampler vk.Sampler
}

// CreateSampler creates a sampler from the desc. Anisotropy uses the
// device's maximum when requested.
func (d *Device) CreateSampler(desc *rhi.SamplerDesc) (rhi.SamplerHandle, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    convertFilter(desc.MagFilter),
		MinFilter:    convertFilter(desc.MinFilter),
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: convertAddressMode(desc.AddressU),
		AddressModeV: convertAddressMode(desc.AddressV),
		AddressModeW: convertAddressMode(desc.AddressV),
		MinLod:       0,
		MaxLod:       desc.MaxLod,
		BorderColor:  vk.BorderColorIntOpaqueBlack,
	}
	if desc.Anisotropy {
		createInfo.AnisotropyEnable = vk.True
		createInfo.MaxAnisotropy = d.caps.MaxSamplerAnisotropy
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(d.logical, &createInfo, d.allocator, &sampler); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateSampler failed with %s", resultString(res))
	}
	return &samplerHandle{sampler: sampler}, nil
}

// DestroySampler releases the sampler.
func (d *Device) DestroySampler(sampler rhi.SamplerHandle) {
	s, ok := sampler.(*samplerHandle)
	if !ok || s == nil || s.sampler == vk.NullSampler {
		return
	}
	vk.DestroySampler(d.logical, s.sampler, d.allocator)
	s.sampler = vk.NullSampler
}
