package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/ember-engine/ember/engine/rhi"
)

type descriptorLayoutHandle struct {
	layout vk.DescriptorSetLayout
}

type descriptorPoolHandle struct {
	pool vk.DescriptorPool
}

type descriptorSetHandle struct {
	set vk.DescriptorSet
}

// CreateDescriptorSetLayout builds a set layout from the binding
// declarations.
func (d *Device) CreateDescriptorSetLayout(bindings []rhi.DescriptorBinding) (rhi.DescriptorLayoutHandle, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  convertDescriptorType(b.Type),
			DescriptorCount: count,
			StageFlags:      convertShaderStages(b.Stages),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.logical, &createInfo, d.allocator, &layout); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateDescriptorSetLayout failed with %s", resultString(res))
	}
	return &descriptorLayoutHandle{layout: layout}, nil
}

// DestroyDescriptorSetLayout releases the layout.
func (d *Device) DestroyDescriptorSetLayout(layout rhi.DescriptorLayoutHandle) {
	l, ok := layout.(*descriptorLayoutHandle)
	if !ok || l == nil || l.layout == vk.NullDescriptorSetLayout {
		return
	}
	vk.DestroyDescriptorSetLayout(d.logical, l.layout, d.allocator)
	l.layout = vk.NullDescriptorSetLayout
}

// CreateDescriptorPool creates a pool with free-descriptor-set support
// so long-lived subsystems can return sets individually.
func (d *Device) CreateDescriptorPool(sizes []rhi.DescriptorPoolSize, maxSets uint32) (rhi.DescriptorPoolHandle, error) {
	vkSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		vkSizes[i] = vk.DescriptorPoolSize{
			Type:            convertDescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(vkSizes)),
		PPoolSizes:    vkSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.logical, &createInfo, d.allocator, &pool); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkCreateDescriptorPool failed with %s", resultString(res))
	}
	return &descriptorPoolHandle{pool: pool}, nil
}

// DestroyDescriptorPool releases the pool and every set allocated from it.
func (d *Device) DestroyDescriptorPool(pool rhi.DescriptorPoolHandle) {
	p, ok := pool.(*descriptorPoolHandle)
	if !ok || p == nil || p.pool == vk.NullDescriptorPool {
		return
	}
	vk.DestroyDescriptorPool(d.logical, p.pool, d.allocator)
	p.pool = vk.NullDescriptorPool
}

// AllocateDescriptorSet allocates one set of the given layout from pool.
func (d *Device) AllocateDescriptorSet(pool rhi.DescriptorPoolHandle, layout rhi.DescriptorLayoutHandle) (rhi.DescriptorSetHandle, error) {
	p := pool.(*descriptorPoolHandle)
	l := layout.(*descriptorLayoutHandle)
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l.layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(d.logical, &allocInfo, &set); res != vk.Success {
		return nil, fmt.Errorf("vulkan: vkAllocateDescriptorSets failed with %s", resultString(res))
	}
	return &descriptorSetHandle{set: set}, nil
}

// UpdateDescriptorSet writes buffer and image bindings into the set. The
// frontend has already validated the writes against the declaration.
func (d *Device) UpdateDescriptorSet(set rhi.DescriptorSetHandle, writes []rhi.DescriptorWrite) error {
	s := set.(*descriptorSetHandle)
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.set,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  convertDescriptorType(w.Type),
		}
		switch w.Type {
		case rhi.DescriptorUniformBuffer:
			buf := w.Buffer.Buffer.(*bufferHandle)
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.buffer,
				Offset: vk.DeviceSize(w.Buffer.Offset),
				Range:  vk.DeviceSize(w.Buffer.Range),
			}}
		case rhi.DescriptorCombinedImageSampler:
			im := w.Image.Image.(*imageHandle)
			sampler := w.Image.Sampler.(*samplerHandle)
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     sampler.sampler,
				ImageView:   im.view,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		default:
			return fmt.Errorf("vulkan: unhandled descriptor type %d", w.Type)
		}
		vkWrites = append(vkWrites, write)
	}
	vk.UpdateDescriptorSets(d.logical, uint32(len(vkWrites)), vkWrites, 0, nil)
	return nil
}
