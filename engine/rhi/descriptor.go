package rhi

import (
	cerrors "github.com/cockroachdb/errors"
)

// Default pool sizing. One pool on the context serves every subsystem;
// clients needing isolation can create their own.
const (
	defaultPoolUniformCount = 1024
	defaultPoolSamplerCount = 1024
	defaultPoolMaxSets      = 1024
)

// DescriptorSetLayout pairs the backend handle with the declared bindings
// so set updates can be validated against the declaration.
type DescriptorSetLayout struct {
	handle   DescriptorLayoutHandle
	bindings []DescriptorBinding
}

// Handle exposes the backend handle for pipeline layout creation.
func (l *DescriptorSetLayout) Handle() DescriptorLayoutHandle {
	return l.handle
}

// DescriptorPool is a pool descriptor sets are allocated from.
type DescriptorPool struct {
	handle DescriptorPoolHandle
}

// DescriptorSet is an allocated set bound during command recording.
type DescriptorSet struct {
	handle DescriptorSetHandle
	layout *DescriptorSetLayout
}

// Handle exposes the backend handle for command recording.
func (s *DescriptorSet) Handle() DescriptorSetHandle {
	return s.handle
}

// CreateDescriptorSetLayout registers a set layout from its binding
// declarations.
func (r *RHI) CreateDescriptorSetLayout(bindings []DescriptorBinding) (*DescriptorSetLayout, error) {
	if len(bindings) == 0 {
		return nil, cerrors.New("rhi: descriptor set layout has no bindings")
	}
	handle, err := r.device.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return nil, cerrors.Wrap(err, "creating descriptor set layout")
	}
	return &DescriptorSetLayout{
		handle:   handle,
		bindings: append([]DescriptorBinding(nil), bindings...),
	}, nil
}

// DestroyDescriptorSetLayout releases the layout. Sets allocated against
// it must not be used afterwards.
func (r *RHI) DestroyDescriptorSetLayout(layout *DescriptorSetLayout) {
	if layout == nil || layout.handle == nil {
		return
	}
	r.device.DestroyDescriptorSetLayout(layout.handle)
	layout.handle = nil
}

// CreateDescriptorPool creates a dedicated pool.
func (r *RHI) CreateDescriptorPool(sizes []DescriptorPoolSize, maxSets uint32) (*DescriptorPool, error) {
	handle, err := r.device.CreateDescriptorPool(sizes, maxSets)
	if err != nil {
		return nil, cerrors.Wrap(err, "creating descriptor pool")
	}
	return &DescriptorPool{handle: handle}, nil
}

// DestroyDescriptorPool releases the pool and implicitly every set
// allocated from it.
func (r *RHI) DestroyDescriptorPool(pool *DescriptorPool) {
	if pool == nil || pool.handle == nil {
		return
	}
	r.device.DestroyDescriptorPool(pool.handle)
	pool.handle = nil
}

// AllocateDescriptorSet allocates a set of the given layout. A nil pool
// selects the context's default pool.
func (r *RHI) AllocateDescriptorSet(pool *DescriptorPool, layout *DescriptorSetLayout) (*DescriptorSet, error) {
	if pool == nil {
		pool = r.defaultPool
	}
	handle, err := r.device.AllocateDescriptorSet(pool.handle, layout.handle)
	if err != nil {
		return nil, cerrors.Wrap(err, "allocating descriptor set")
	}
	return &DescriptorSet{handle: handle, layout: layout}, nil
}

// UpdateDescriptorSet points the set's bindings at concrete resources.
// Writes are validated against the layout declaration before touching
// the device: unknown binding indices, type mismatches and missing
// resource references are caller bugs reported as errors.
func (r *RHI) UpdateDescriptorSet(set *DescriptorSet, writes []DescriptorWrite) error {
	for _, w := range writes {
		binding, found := set.layout.bindingAt(w.Binding)
		if !found {
			return cerrors.Newf("rhi: descriptor write targets undeclared binding %d", w.Binding)
		}
		if binding.Type != w.Type {
			return cerrors.Newf("rhi: descriptor write type %d does not match binding %d type %d",
				w.Type, w.Binding, binding.Type)
		}
		switch w.Type {
		case DescriptorUniformBuffer:
			if w.Buffer == nil || w.Buffer.Buffer == nil {
				return cerrors.Newf("rhi: uniform write for binding %d carries no buffer", w.Binding)
			}
		case DescriptorCombinedImageSampler:
			if w.Image == nil || w.Image.Image == nil || w.Image.Sampler == nil {
				return cerrors.Newf("rhi: sampler write for binding %d carries no image/sampler", w.Binding)
			}
		}
	}
	if err := r.device.UpdateDescriptorSet(set.handle, writes); err != nil {
		return cerrors.Wrap(err, "updating descriptor set")
	}
	return nil
}

func (l *DescriptorSetLayout) bindingAt(index uint32) (DescriptorBinding, bool) {
	for _, b := range l.bindings {
		if b.Binding == index {
			return b, true
		}
	}
	return DescriptorBinding{}, false
}
