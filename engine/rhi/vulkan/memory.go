package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/rhi"
)

// memoryHandle is one vkAllocateMemory result. The rhi allocator treats
// it as an opaque block and sub-allocates inside it.
type memoryHandle struct {
	memory vk.DeviceMemory
	size   uint64
	mapped unsafe.Pointer
}

// FindMemoryIndex picks the first memory type allowed by typeBits whose
// property flags contain every requested flag.
func (d *Device) FindMemoryIndex(typeBits uint32, flags rhi.MemoryPropertyFlags) (uint32, error) {
	required := convertMemoryProperties(flags)
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		if d.memory.MemoryTypes[i].PropertyFlags&required == required {
			return i, nil
		}
	}
	return 0, rhi.ErrNoSuitableMemoryType
}

// AllocateMemory allocates one device-memory object. Called only by the
// rhi allocator, once per block.
func (d *Device) AllocateMemory(size uint64, memoryTypeIndex uint32) (rhi.MemoryHandle, error) {
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryTypeIndex,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.logical, &allocInfo, d.allocator, &memory); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkAllocateMemory of %d bytes (type %d) failed with %s",
			size, memoryTypeIndex, resultString(res))
	}
	return &memoryHandle{memory: memory, size: size}, nil
}

// FreeMemory releases one block. Mapped blocks are implicitly unmapped
// by the driver.
func (d *Device) FreeMemory(memory rhi.MemoryHandle) {
	h, ok := memory.(*memoryHandle)
	if !ok || h == nil || h.memory == vk.NullDeviceMemory {
		return
	}
	vk.FreeMemory(d.logical, h.memory, d.allocator)
	h.memory = vk.NullDeviceMemory
	h.mapped = nil
}

// MapMemory maps the whole block and returns its bytes. Idempotent: a
// second call returns the same mapping.
func (d *Device) MapMemory(memory rhi.MemoryHandle, size uint64) ([]byte, error) {
	h, ok := memory.(*memoryHandle)
	if !ok || h == nil {
		return nil, fmt.Errorf("vulkan: MapMemory on a foreign handle")
	}
	if h.mapped == nil {
		var data unsafe.Pointer
		if res := vk.MapMemory(d.logical, h.memory, 0, vk.DeviceSize(size), 0, &data); res != vk.Success {
			return nil, fmt.Errorf("vulkan: vkMapMemory failed with %s", resultString(res))
		}
		h.mapped = data
	}
	return unsafe.Slice((*byte)(h.mapped), size), nil
}
