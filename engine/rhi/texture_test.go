package rhi

import (
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcMipLevels(t *testing.T) {
	cases := []struct {
		width, height uint32
		want          uint32
	}{
		{1, 1, 1},
		{2, 2, 2},
		{4, 4, 3},
		{256, 256, 9},
		{1024, 512, 11},
		{512, 1024, 11},
		{255, 128, 8},
		{1920, 1080, 11},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CalcMipLevels(tc.width, tc.height),
			"CalcMipLevels(%d, %d)", tc.width, tc.height)
	}
}

func checkerPixels(width, height uint32) []byte {
	return make([]byte, width*height*4)
}

func TestCreateTextureWithMips(t *testing.T) {
	r, device := newTestContext(t)
	liveBuffersBefore := device.liveBuffers()

	tex, err := r.CreateTexture(&TextureDesc{
		Name:         "test.checker",
		Width:        256,
		Height:       256,
		Format:       FormatR8G8B8A8Unorm,
		GenerateMips: true,
		Filter:       FilterLinear,
		Address:      AddressRepeat,
	}, checkerPixels(256, 256))
	require.NoError(t, err)

	assert.EqualValues(t, 9, tex.MipLevels)

	img := tex.image.(*fakeImage)
	assert.EqualValues(t, 9, img.desc.MipLevels)
	assert.NotZero(t, img.desc.Usage&ImageUsageTransferSrc, "mip blits read back from the image")
	assert.NotZero(t, img.desc.Usage&ImageUsageTransferDst)
	assert.NotZero(t, img.desc.Usage&ImageUsageSampled)
	assert.True(t, img.viewCreated)
	assert.True(t, img.uploaded)
	assert.Len(t, img.pixels, 256*256*4)

	sampler := tex.sampler.(*fakeSampler)
	assert.EqualValues(t, 9, sampler.desc.MaxLod)
	assert.True(t, sampler.desc.Anisotropy)

	assert.Equal(t, liveBuffersBefore, device.liveBuffers(), "staging buffer is destroyed after upload")
}

func TestCreateTextureWithoutMips(t *testing.T) {
	r, _ := newTestContext(t)

	tex, err := r.CreateTexture(&TextureDesc{
		Name:    "test.flat",
		Width:   64,
		Height:  32,
		Format:  FormatR8G8B8A8Srgb,
		Filter:  FilterNearest,
		Address: AddressClampToEdge,
	}, checkerPixels(64, 32))
	require.NoError(t, err)

	assert.EqualValues(t, 1, tex.MipLevels)

	img := tex.image.(*fakeImage)
	assert.Zero(t, img.desc.Usage&ImageUsageTransferSrc, "no mips, no blit source")

	sampler := tex.sampler.(*fakeSampler)
	assert.False(t, sampler.desc.Anisotropy)
}

func TestCreateTextureRespectsImageAlignment(t *testing.T) {
	r, device := newTestContext(t)
	device.imageAlignment = 4096

	tex, err := r.CreateTexture(&TextureDesc{
		Name:   "test.aligned",
		Width:  16,
		Height: 16,
		Format: FormatR8G8B8A8Unorm,
	}, checkerPixels(16, 16))
	require.NoError(t, err)

	assert.Zero(t, tex.alloc.Offset%4096, "image takes the backend's required alignment")
}

func TestCreateTextureRollsBackOnUploadFailure(t *testing.T) {
	r, device := newTestContext(t)
	imagesBefore := device.liveImages()
	buffersBefore := device.liveBuffers()

	device.failUpload = cerrors.New("transfer queue lost")
	_, err := r.CreateTexture(&TextureDesc{
		Name:   "test.doomed",
		Width:  16,
		Height: 16,
		Format: FormatR8G8B8A8Unorm,
	}, checkerPixels(16, 16))
	require.Error(t, err)

	assert.Equal(t, imagesBefore, device.liveImages(), "failed upload destroys the image")
	assert.Equal(t, buffersBefore, device.liveBuffers(), "failed upload destroys the staging buffer")
}

func TestCreateTextureRollsBackOnSamplerFailure(t *testing.T) {
	r, device := newTestContext(t)
	imagesBefore := device.liveImages()

	device.failSampler = cerrors.New("sampler pool exhausted")
	_, err := r.CreateTexture(&TextureDesc{
		Name:   "test.doomed",
		Width:  16,
		Height: 16,
		Format: FormatR8G8B8A8Unorm,
	}, checkerPixels(16, 16))
	require.Error(t, err)

	assert.Equal(t, imagesBefore, device.liveImages())
}

func TestCreateTextureRollsBackOnViewFailure(t *testing.T) {
	r, device := newTestContext(t)
	imagesBefore := device.liveImages()

	device.failImageView = cerrors.New("view creation failed")
	_, err := r.CreateTexture(&TextureDesc{
		Name:   "test.doomed",
		Width:  16,
		Height: 16,
		Format: FormatR8G8B8A8Unorm,
	}, checkerPixels(16, 16))
	require.Error(t, err)

	assert.Equal(t, imagesBefore, device.liveImages())
}

func TestCreateDepthTexture(t *testing.T) {
	r, _ := newTestContext(t)

	depth, err := r.CreateDepthTexture("test.depth", 800, 600)
	require.NoError(t, err)

	assert.Equal(t, FormatD32Sfloat, depth.Format)
	assert.Nil(t, depth.Sampler())
	assert.EqualValues(t, 1, depth.MipLevels)

	img := depth.image.(*fakeImage)
	assert.Equal(t, ImageAspectDepth, img.desc.Aspect)
	assert.NotZero(t, img.desc.Usage&ImageUsageDepthStencilAttachment)
	assert.False(t, img.uploaded)
}

func TestDestroyTexture(t *testing.T) {
	r, _ := newTestContext(t)

	tex, err := r.CreateTexture(&TextureDesc{
		Name:   "test.gone",
		Width:  16,
		Height: 16,
		Format: FormatR8G8B8A8Unorm,
	}, checkerPixels(16, 16))
	require.NoError(t, err)
	img := tex.image.(*fakeImage)
	sampler := tex.sampler.(*fakeSampler)

	r.DestroyTexture(tex)
	assert.True(t, img.destroyed)
	assert.True(t, sampler.destroyed)

	r.DestroyTexture(tex)
	r.DestroyTexture(nil)
}
