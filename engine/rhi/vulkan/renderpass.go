package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/rhi"
)

type renderPassHandle struct {
	pass     vk.RenderPass
	hasDepth bool
	clear    rhi.RenderPassClearFlags
}

type framebufferHandle struct {
	framebuffer vk.Framebuffer
}

// CreateRenderPass builds a single-subpass render pass: one colour
// attachment, an optional depth-stencil attachment, and an external
// dependency covering colour output.
func (d *Device) CreateRenderPass(desc *rhi.RenderPassDesc) (rhi.RenderPassHandle, error) {
	colorLoad := vk.AttachmentLoadOpLoad
	if desc.ClearFlags&rhi.RenderPassClearColour != 0 {
		colorLoad = vk.AttachmentLoadOpClear
	}
	finalLayout := vk.ImageLayoutShaderReadOnlyOptimal
	if desc.PresentAfter {
		finalLayout = vk.ImageLayoutPresentSrc
	}

	attachments := []vk.AttachmentDescription{{
		Format:         convertFormat(desc.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         colorLoad,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    finalLayout,
	}}

	colorRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorRef,
	}

	hasDepth := desc.DepthFormat != rhi.FormatUnknown
	if hasDepth {
		depthLoad := vk.AttachmentLoadOpLoad
		if desc.ClearFlags&rhi.RenderPassClearDepth != 0 {
			depthLoad = vk.AttachmentLoadOpClear
		}
		stencilLoad := vk.AttachmentLoadOpDontCare
		if desc.ClearFlags&rhi.RenderPassClearStencil != 0 {
			stencilLoad = vk.AttachmentLoadOpClear
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         convertFormat(desc.DepthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         depthLoad,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  stencilLoad,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var pass vk.RenderPass
	if res := vk.CreateRenderPass(d.logical, &createInfo, d.allocator, &pass); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateRenderPass %q failed with %s", desc.Name, resultString(res))
	}
	return &renderPassHandle{pass: pass, hasDepth: hasDepth, clear: desc.ClearFlags}, nil
}

// DestroyRenderPass releases the pass.
func (d *Device) DestroyRenderPass(pass rhi.RenderPassHandle) {
	p, ok := pass.(*renderPassHandle)
	if !ok || p == nil || p.pass == vk.NullRenderPass {
		return
	}
	vk.DestroyRenderPass(d.logical, p.pass, d.allocator)
	p.pass = vk.NullRenderPass
}

// CreateFramebuffer builds a framebuffer over the attachments' views in
// declaration order.
func (d *Device) CreateFramebuffer(pass rhi.RenderPassHandle, attachments []rhi.ImageHandle, width, height uint32) (rhi.FramebufferHandle, error) {
	p := pass.(*renderPassHandle)
	views := make([]vk.ImageView, len(attachments))
	for i, a := range attachments {
		im := a.(*imageHandle)
		if im.view == vk.NullImageView {
			return nil, fmt.Errorf("vulkan: framebuffer attachment %d has no view", i)
		}
		views[i] = im.view
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      p.pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(d.logical, &createInfo, d.allocator, &framebuffer); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateFramebuffer %dx%d failed with %s", width, height, resultString(res))
	}
	return &framebufferHandle{framebuffer: framebuffer}, nil
}

// DestroyFramebuffer releases the framebuffer.
func (d *Device) DestroyFramebuffer(framebuffer rhi.FramebufferHandle) {
	fb, ok := framebuffer.(*framebufferHandle)
	if !ok || fb == nil || fb.framebuffer == vk.NullFramebuffer {
		return
	}
	vk.DestroyFramebuffer(d.logical, fb.framebuffer, d.allocator)
	fb.framebuffer = vk.NullFramebuffer
}
