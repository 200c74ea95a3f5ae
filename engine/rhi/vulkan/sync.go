package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/rhi"
)

type semaphoreHandle struct {
	semaphore vk.Semaphore
}

type fenceHandle struct {
	fence vk.Fence
}

// CreateSemaphore creates a binary semaphore.
func (d *Device) CreateSemaphore() (rhi.SemaphoreHandle, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(d.logical, &createInfo, d.allocator, &semaphore); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateSemaphore failed with %s", resultString(res))
	}
	return &semaphoreHandle{semaphore: semaphore}, nil
}

// DestroySemaphore releases the semaphore.
func (d *Device) DestroySemaphore(semaphore rhi.SemaphoreHandle) {
	s, ok := semaphore.(*semaphoreHandle)
	if !ok || s == nil || s.semaphore == vk.NullSemaphore {
		return
	}
	vk.DestroySemaphore(d.logical, s.semaphore, d.allocator)
	s.semaphore = vk.NullSemaphore
}

// CreateFence creates a fence, signaled when requested so the first
// wait on a fresh frame slot returns immediately.
func (d *Device) CreateFence(signaled bool) (rhi.FenceHandle, error) {
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if res := vk.CreateFence(d.logical, &createInfo, d.allocator, &fence); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateFence failed with %s", resultString(res))
	}
	return &fenceHandle{fence: fence}, nil
}

// DestroyFence releases the fence.
func (d *Device) DestroyFence(fence rhi.FenceHandle) {
	f, ok := fence.(*fenceHandle)
	if !ok || f == nil || f.fence == vk.NullFence {
		return
	}
	vk.DestroyFence(d.logical, f.fence, d.allocator)
	f.fence = vk.NullFence
}

// WaitForFence blocks until the fence signals. The timeout is the
// maximum representable one: a stuck GPU is not a recoverable case.
func (d *Device) WaitForFence(fence rhi.FenceHandle) error {
	f := fence.(*fenceHandle)
	res := vk.WaitForFences(d.logical, 1, []vk.Fence{f.fence}, vk.True, math.MaxUint64)
	if res != vk.Success {
		return fmt.Errorf("vulkan: vkWaitForFences failed with %s", resultString(res))
	}
	return nil
}

// ResetFence returns the fence to the unsignaled state.
func (d *Device) ResetFence(fence rhi.FenceHandle) error {
	f := fence.(*fenceHandle)
	if res := vk.ResetFences(d.logical, 1, []vk.Fence{f.fence}); res != vk.Success {
		return fmt.Errorf("vulkan: vkResetFences failed with %s", resultString(res))
	}
	return nil
}
