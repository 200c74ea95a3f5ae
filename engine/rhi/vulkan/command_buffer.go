package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/rhi"
)

// commandBuffer records into one frame slot's long-lived primary
// command buffer. It implements rhi.CommandBuffer; recording happens on
// the driving thread only.
type commandBuffer struct {
	handle vk.CommandBuffer
}

// FrameCommandBuffer resets slot's command buffer and opens it for
// recording.
func (d *Device) FrameCommandBuffer(slot uint32) (rhi.CommandBuffer, error) {
	handle := d.frameCBs[slot%rhi.MaxFramesInFlight]
	if res := vk.ResetCommandBuffer(handle, 0); res != vk.Success {
		return nil, fmt.Errorf("vulkan: resetting frame command buffer failed with %s", resultString(res))
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if res := vk.BeginCommandBuffer(handle, &beginInfo); res != vk.Success {
		return nil, fmt.Errorf("vulkan: beginning frame command buffer failed with %s", resultString(res))
	}
	return &commandBuffer{handle: handle}, nil
}

// SubmitFrame closes slot's command buffer and submits it on the
// graphics queue: waits imageAvailable at colour output, signals
// drawFinished and the slot's fence.
func (d *Device) SubmitFrame(slot uint32, imageAvailable, drawFinished rhi.SemaphoreHandle, fence rhi.FenceHandle) error {
	handle := d.frameCBs[slot%rhi.MaxFramesInFlight]
	if res := vk.EndCommandBuffer(handle); res != vk.Success {
		return fmt.Errorf("vulkan: ending frame command buffer failed with %s", resultString(res))
	}

	wait := imageAvailable.(*semaphoreHandle)
	signal := drawFinished.(*semaphoreHandle)
	f := fence.(*fenceHandle)

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait.semaphore},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signal.semaphore},
	}
	if res := vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, f.fence); res != vk.Success {
		return fmt.Errorf("vulkan: vkQueueSubmit failed with %s", resultString(res))
	}
	return nil
}

func (cb *commandBuffer) BeginRenderPass(pass rhi.RenderPassHandle, framebuffer rhi.FramebufferHandle, width, height uint32, clear rhi.ClearValues) {
	p := pass.(*renderPassHandle)
	fb := framebuffer.(*framebufferHandle)

	var clearValues []vk.ClearValue
	if p.clear&rhi.RenderPassClearColour != 0 {
		var cv vk.ClearValue
		cv.SetColor(clear.Color[:])
		clearValues = append(clearValues, cv)
	}
	if p.hasDepth && p.clear&(rhi.RenderPassClearDepth|rhi.RenderPassClearStencil) != 0 {
		var dv vk.ClearValue
		dv.SetDepthStencil(clear.Depth, clear.Stencil)
		clearValues = append(clearValues, dv)
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  p.pass,
		Framebuffer: fb.framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{},
			Extent: vk.Extent2D{Width: width, Height: height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cb.handle, &beginInfo, vk.SubpassContentsInline)
}

func (cb *commandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(cb.handle)
}

func (cb *commandBuffer) BindPipeline(pipeline rhi.PipelineHandle) {
	p := pipeline.(*pipelineHandle)
	vk.CmdBindPipeline(cb.handle, vk.PipelineBindPointGraphics, p.pipeline)
}

func (cb *commandBuffer) BindDescriptorSet(layout rhi.PipelineLayoutHandle, setIndex uint32, set rhi.DescriptorSetHandle, dynamicOffsets []uint32) {
	l := layout.(*pipelineLayoutHandle)
	s := set.(*descriptorSetHandle)
	vk.CmdBindDescriptorSets(cb.handle, vk.PipelineBindPointGraphics, l.layout,
		setIndex, 1, []vk.DescriptorSet{s.set},
		uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (cb *commandBuffer) BindVertexBuffer(buffer rhi.BufferHandle, offset uint64) {
	b := buffer.(*bufferHandle)
	vk.CmdBindVertexBuffers(cb.handle, 0, 1, []vk.Buffer{b.buffer}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (cb *commandBuffer) BindIndexBuffer(buffer rhi.BufferHandle, offset uint64, use32Bit bool) {
	b := buffer.(*bufferHandle)
	indexType := vk.IndexTypeUint16
	if use32Bit {
		indexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(cb.handle, b.buffer, vk.DeviceSize(offset), indexType)
}

func (cb *commandBuffer) PushConstants(layout rhi.PipelineLayoutHandle, stages rhi.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	l := layout.(*pipelineLayoutHandle)
	vk.CmdPushConstants(cb.handle, l.layout, convertShaderStages(stages),
		offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (cb *commandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(cb.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (cb *commandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(cb.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (cb *commandBuffer) SetViewport(x, y, width, height float32) {
	// Flipped Y so clip space matches the engine's right-handed
	// convention without per-shader adjustments.
	vk.CmdSetViewport(cb.handle, 0, 1, []vk.Viewport{{
		X:        x,
		Y:        y + height,
		Width:    width,
		Height:   -height,
		MinDepth: 0,
		MaxDepth: 1,
	}})
}

func (cb *commandBuffer) SetScissor(x, y int32, width, height uint32) {
	vk.CmdSetScissor(cb.handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}
