package rhi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout(t *testing.T, r *RHI) *DescriptorSetLayout {
	t.Helper()
	layout, err := r.CreateDescriptorSetLayout([]DescriptorBinding{
		{Binding: 0, Type: DescriptorUniformBuffer, Count: 1, Stages: ShaderStageVertex},
		{Binding: 1, Type: DescriptorCombinedImageSampler, Count: 1, Stages: ShaderStageFragment},
	})
	require.NoError(t, err)
	return layout
}

func TestCreateDescriptorSetLayoutRequiresBindings(t *testing.T) {
	r, _ := newTestContext(t)

	_, err := r.CreateDescriptorSetLayout(nil)
	require.Error(t, err)
}

func TestAllocateFromDefaultPool(t *testing.T) {
	r, _ := newTestContext(t)
	layout := testLayout(t, r)

	set, err := r.AllocateDescriptorSet(nil, layout)
	require.NoError(t, err)

	assert.Same(t, r.defaultPool.handle.(*fakeDescriptorPool), set.handle.(*fakeDescriptorSet).pool,
		"nil pool selects the context default")
}

func TestAllocateFromDedicatedPool(t *testing.T) {
	r, _ := newTestContext(t)
	layout := testLayout(t, r)

	pool, err := r.CreateDescriptorPool([]DescriptorPoolSize{
		{Type: DescriptorUniformBuffer, Count: 8},
	}, 8)
	require.NoError(t, err)

	set, err := r.AllocateDescriptorSet(pool, layout)
	require.NoError(t, err)
	assert.Same(t, pool.handle.(*fakeDescriptorPool), set.handle.(*fakeDescriptorSet).pool)
}

func TestUpdateDescriptorSetValidWrites(t *testing.T) {
	r, device := newTestContext(t)
	layout := testLayout(t, r)

	set, err := r.AllocateDescriptorSet(nil, layout)
	require.NoError(t, err)

	buf, err := r.CreateUniformBuffer("test.globals", 256)
	require.NoError(t, err)
	tex, err := r.CreateTexture(&TextureDesc{
		Name: "test.tex", Width: 4, Height: 4, Format: FormatR8G8B8A8Unorm,
	}, checkerPixels(4, 4))
	require.NoError(t, err)

	writes := []DescriptorWrite{
		{Binding: 0, Type: DescriptorUniformBuffer, Buffer: &BufferBinding{Buffer: buf.Handle(), Range: 256}},
		{Binding: 1, Type: DescriptorCombinedImageSampler, Image: &ImageBinding{Image: tex.Image(), Sampler: tex.Sampler()}},
	}
	require.NoError(t, r.UpdateDescriptorSet(set, writes))
	assert.Equal(t, writes, device.lastWrites, "validated writes reach the backend unchanged")
}

func TestUpdateDescriptorSetRejectsBadWrites(t *testing.T) {
	r, device := newTestContext(t)
	layout := testLayout(t, r)

	set, err := r.AllocateDescriptorSet(nil, layout)
	require.NoError(t, err)

	buf, err := r.CreateUniformBuffer("test.globals", 256)
	require.NoError(t, err)

	cases := []struct {
		name  string
		write DescriptorWrite
	}{
		{
			name:  "undeclared binding",
			write: DescriptorWrite{Binding: 7, Type: DescriptorUniformBuffer, Buffer: &BufferBinding{Buffer: buf.Handle()}},
		},
		{
			name:  "type mismatch",
			write: DescriptorWrite{Binding: 1, Type: DescriptorUniformBuffer, Buffer: &BufferBinding{Buffer: buf.Handle()}},
		},
		{
			name:  "uniform write without buffer",
			write: DescriptorWrite{Binding: 0, Type: DescriptorUniformBuffer},
		},
		{
			name:  "sampler write without image",
			write: DescriptorWrite{Binding: 1, Type: DescriptorCombinedImageSampler},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			device.lastWrites = nil
			err := r.UpdateDescriptorSet(set, []DescriptorWrite{tc.write})
			require.Error(t, err)
			assert.Nil(t, device.lastWrites, "invalid writes never reach the backend")
		})
	}
}
