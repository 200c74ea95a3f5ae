package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/rhi"
)

type bufferHandle struct {
	buffer vk.Buffer
	size   uint64
}

// CreateBuffer creates an unbound buffer and reports its memory
// requirements so the frontend can sub-allocate for it.
func (d *Device) CreateBuffer(size uint64, usage rhi.BufferUsage) (rhi.BufferHandle, *rhi.MemoryRequirements, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       convertBufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if res := vk.CreateBuffer(d.logical, &createInfo, d.allocator, &buffer); res != vk.Success {
		return nil, nil, fmt.Errorf("vulkan: vkCreateBuffer of %d bytes failed with %s", size, resultString(res))
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, buffer, &req)
	req.Deref()

	return &bufferHandle{buffer: buffer, size: size}, &rhi.MemoryRequirements{
		Size:           uint64(req.Size),
		Alignment:      uint64(req.Alignment),
		MemoryTypeBits: req.MemoryTypeBits,
	}, nil
}

// BindBufferMemory binds a sub-range of a memory block to the buffer.
func (d *Device) BindBufferMemory(buffer rhi.BufferHandle, memory rhi.MemoryHandle, offset uint64) error {
	b := buffer.(*bufferHandle)
	m := memory.(*memoryHandle)
	if res := vk.BindBufferMemory(d.logical, b.buffer, m.memory, vk.DeviceSize(offset)); res != vk.Success {
		return fmt.Errorf("vulkan: vkBindBufferMemory at offset %d failed with %s", offset, resultString(res))
	}
	return nil
}

// DestroyBuffer releases the buffer handle. Its memory belongs to the
// allocator's block and is not touched.
func (d *Device) DestroyBuffer(buffer rhi.BufferHandle) {
	b, ok := buffer.(*bufferHandle)
	if !ok || b == nil || b.buffer == vk.NullBuffer {
		return
	}
	vk.DestroyBuffer(d.logical, b.buffer, d.allocator)
	b.buffer = vk.NullBuffer
}

// CopyBuffer records and synchronously submits a one-shot transfer from
// src to dst. Uploads are not pipelined; the queue-idle wait keeps the
// staging buffer's lifetime trivial.
func (d *Device) CopyBuffer(src rhi.BufferHandle, srcOffset uint64, dst rhi.BufferHandle, dstOffset uint64, size uint64) error {
	s := src.(*bufferHandle)
	t := dst.(*bufferHandle)
	return d.withSingleUseCommands(func(cmd vk.CommandBuffer) error {
		vk.CmdCopyBuffer(cmd, s.buffer, t.buffer, 1, []vk.BufferCopy{{
			SrcOffset: vk.DeviceSize(srcOffset),
			DstOffset: vk.DeviceSize(dstOffset),
			Size:      vk.DeviceSize(size),
		}})
		return nil
	})
}

// withSingleUseCommands allocates a one-shot command buffer, records into
// it, submits on the graphics queue and waits for queue idle before
// freeing it.
func (d *Device) withSingleUseCommands(record func(cmd vk.CommandBuffer) error) error {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.logical, &allocInfo, cbs); res != vk.Success {
		return fmt.Errorf("vulkan: allocating single-use command buffer failed with %s", resultString(res))
	}
	cmd := cbs[0]
	defer vk.FreeCommandBuffers(d.logical, d.commandPool, 1, cbs)

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		return fmt.Errorf("vulkan: beginning single-use command buffer failed with %s", resultString(res))
	}

	if err := record(cmd); err != nil {
		return err
	}

	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return fmt.Errorf("vulkan: ending single-use command buffer failed with %s", resultString(res))
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cbs,
	}
	if res := vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return fmt.Errorf("vulkan: submitting single-use commands failed with %s", resultString(res))
	}
	if res := vk.QueueWaitIdle(d.graphicsQueue); res != vk.Success {
		return fmt.Errorf("vulkan: waiting for single-use commands failed with %s", resultString(res))
	}
	return nil
}
