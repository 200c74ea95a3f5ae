package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/core"
	emath "github.com/ember-engine/ember/engine/math"
	"github.com/ember-engine/ember/engine/rhi"
)

// swapchainSupport is the surface's capability snapshot, re-queried
// before every swapchain (re)creation because the current extent moves
// with the window.
type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func querySwapchainSupport(pd vk.PhysicalDevice, surface vk.Surface) (*swapchainSupport, error) {
	support := &swapchainSupport{}

	if res := vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &support.capabilities); res != vk.Success {
		return nil, fmt.Errorf("vulkan: querying surface capabilities failed with %s", resultString(res))
	}
	support.capabilities.Deref()
	support.capabilities.CurrentExtent.Deref()
	support.capabilities.MinImageExtent.Deref()
	support.capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil); res != vk.Success {
		return nil, fmt.Errorf("vulkan: querying surface formats failed with %s", resultString(res))
	}
	if formatCount > 0 {
		support.formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, support.formats); res != vk.Success {
			return nil, fmt.Errorf("vulkan: querying surface formats failed with %s", resultString(res))
		}
		for i := range support.formats {
			support.formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil); res != vk.Success {
		return nil, fmt.Errorf("vulkan: querying present modes failed with %s", resultString(res))
	}
	if modeCount > 0 {
		support.presentModes = make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, support.presentModes); res != vk.Success {
			return nil, fmt.Errorf("vulkan: querying present modes failed with %s", resultString(res))
		}
	}

	return support, nil
}

// swapchainState is the live swapchain with the per-image view handles
// the frontend attaches framebuffers to.
type swapchainState struct {
	handle vk.Swapchain
	format vk.SurfaceFormat
	extent vk.Extent2D
	images []*imageHandle
}

// CreateSwapchain builds a swapchain at the requested size, clamped to
// the surface's limits. Prefers B8G8R8A8 sRGB and, unless vsync forces
// FIFO, the mailbox present mode.
func (d *Device) CreateSwapchain(width, height uint32, vsync bool) (*rhi.SwapchainInfo, error) {
	if d.swapchain != nil {
		return nil, fmt.Errorf("vulkan: swapchain already exists, destroy it first")
	}

	support, err := querySwapchainSupport(d.physical, d.surface)
	if err != nil {
		return nil, err
	}
	if len(support.formats) == 0 || len(support.presentModes) == 0 {
		return nil, fmt.Errorf("vulkan: surface reports no formats or present modes")
	}

	surfaceFormat := support.formats[0]
	for _, format := range support.formats {
		if format.Format == vk.FormatB8g8r8a8Srgb && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			surfaceFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	if !vsync {
		for _, mode := range support.presentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if support.capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = support.capabilities.CurrentExtent
	}
	min := support.capabilities.MinImageExtent
	max := support.capabilities.MaxImageExtent
	extent.Width = emath.Clamp(extent.Width, min.Width, max.Width)
	extent.Height = emath.Clamp(extent.Height, min.Height, max.Height)

	imageCount := support.capabilities.MinImageCount + 1
	if support.capabilities.MaxImageCount > 0 && imageCount > support.capabilities.MaxImageCount {
		imageCount = support.capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if d.graphicsQueueIndex != d.presentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			uint32(d.graphicsQueueIndex),
			uint32(d.presentQueueIndex),
		}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(d.logical, &createInfo, d.allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateSwapchainKHR failed with %s", resultString(res))
	}

	sc := &swapchainState{
		handle: handle,
		format: surfaceFormat,
		extent: extent,
	}

	var actualCount uint32
	if res := vk.GetSwapchainImages(d.logical, handle, &actualCount, nil); res != vk.Success {
		sc.destroy(d)
		return nil, fmt.Errorf("vulkan: querying swapchain images failed with %s", resultString(res))
	}
	images := make([]vk.Image, actualCount)
	if res := vk.GetSwapchainImages(d.logical, handle, &actualCount, images); res != vk.Success {
		sc.destroy(d)
		return nil, fmt.Errorf("vulkan: querying swapchain images failed with %s", resultString(res))
	}

	sc.images = make([]*imageHandle, actualCount)
	for i, img := range images {
		view, err := d.createView(img, surfaceFormat.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit), 1)
		if err != nil {
			sc.destroy(d)
			return nil, fmt.Errorf("vulkan: creating swapchain image view %d: %w", i, err)
		}
		sc.images[i] = &imageHandle{
			image:     img,
			view:      view,
			format:    surfaceFormat.Format,
			aspect:    vk.ImageAspectFlags(vk.ImageAspectColorBit),
			width:     extent.Width,
			height:    extent.Height,
			mipLevels: 1,
			owned:     false,
		}
	}
	d.swapchain = sc

	info := &rhi.SwapchainInfo{
		Format:     convertSurfaceFormat(surfaceFormat.Format),
		Width:      extent.Width,
		Height:     extent.Height,
		ImageCount: actualCount,
		Images:     make([]rhi.ImageHandle, actualCount),
	}
	for i, im := range sc.images {
		info.Images[i] = im
	}
	core.LogDebug("swapchain created: %dx%d, %d images, present mode %d",
		extent.Width, extent.Height, actualCount, presentMode)
	return info, nil
}

// DestroySwapchain releases the image views and the swapchain. The
// images themselves belong to the presentation engine.
func (d *Device) DestroySwapchain() {
	if d.swapchain == nil {
		return
	}
	d.swapchain.destroy(d)
	d.swapchain = nil
}

func (sc *swapchainState) destroy(d *Device) {
	for _, im := range sc.images {
		if im.view != vk.NullImageView {
			vk.DestroyImageView(d.logical, im.view, d.allocator)
			im.view = vk.NullImageView
		}
	}
	sc.images = nil
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.logical, sc.handle, d.allocator)
		sc.handle = vk.NullSwapchain
	}
}

// AcquireNextImage hands out the next presentation image. Out-of-date
// and suboptimal surfaces are status codes, not errors; the frontend
// decides whether to rebuild.
func (d *Device) AcquireNextImage(imageAvailable rhi.SemaphoreHandle) (uint32, rhi.SwapchainStatus, error) {
	sem := imageAvailable.(*semaphoreHandle)
	var imageIndex uint32
	res := vk.AcquireNextImage(d.logical, d.swapchain.handle, math.MaxUint64, sem.semaphore, vk.NullFence, &imageIndex)
	switch res {
	case vk.Success:
		return imageIndex, rhi.SwapchainOK, nil
	case vk.Suboptimal:
		return imageIndex, rhi.SwapchainSuboptimal, nil
	case vk.ErrorOutOfDate:
		return 0, rhi.SwapchainOutOfDate, nil
	default:
		return 0, rhi.SwapchainOK, fmt.Errorf("vulkan: vkAcquireNextImageKHR failed with %s", resultString(res))
	}
}

// Present queues the image for presentation after drawFinished signals.
func (d *Device) Present(drawFinished rhi.SemaphoreHandle, imageIndex uint32) (rhi.SwapchainStatus, error) {
	sem := drawFinished.(*semaphoreHandle)
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sem.semaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchain.handle},
		PImageIndices:      []uint32{imageIndex},
	}
	res := vk.QueuePresent(d.presentQueue, &presentInfo)
	switch res {
	case vk.Success:
		return rhi.SwapchainOK, nil
	case vk.Suboptimal:
		return rhi.SwapchainSuboptimal, nil
	case vk.ErrorOutOfDate:
		return rhi.SwapchainOutOfDate, nil
	default:
		return rhi.SwapchainOK, fmt.Errorf("vulkan: vkQueuePresentKHR failed with %s", resultString(res))
	}
}
