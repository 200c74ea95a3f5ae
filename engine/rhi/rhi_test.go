package rhi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-engine/ember/engine/core"
)

// newTestContext builds an RHI over the fake device with a block size
// small enough that the fake's byte-backed memory stays cheap.
func newTestContext(t *testing.T) (*RHI, *fakeDevice) {
	t.Helper()
	device := newFakeDevice()
	r, err := New(device, core.NewEventBus(), &Config{
		Width:     800,
		Height:    600,
		BlockSize: 8 << 20,
	})
	require.NoError(t, err)
	return r, device
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, core.NewEventBus(), &Config{Width: 1, Height: 1})
	require.Error(t, err)

	_, err = New(newFakeDevice(), nil, &Config{Width: 1, Height: 1})
	require.Error(t, err)
}

func TestNewBuildsSwapchainObjects(t *testing.T) {
	r, device := newTestContext(t)

	assert.Equal(t, 1, device.swapchainCreates)
	assert.EqualValues(t, 800, device.lastSwapchainW)
	assert.EqualValues(t, 600, device.lastSwapchainH)
	assert.Equal(t, 3, device.framebuffersCreated, "one framebuffer per swapchain image")
	assert.Equal(t, 2*MaxFramesInFlight, device.semaphoresCreated)
	assert.Equal(t, MaxFramesInFlight, device.fencesCreated)

	w, h := r.Frames().Extent()
	assert.EqualValues(t, 800, w)
	assert.EqualValues(t, 600, h)
	assert.Equal(t, FormatB8G8R8A8Srgb, r.Frames().SurfaceFormat())
	require.NotNil(t, r.Frames().MainRenderPass())
	assert.True(t, r.Frames().MainRenderPass().HasDepth())
}

func TestShutdownTearsEverythingDown(t *testing.T) {
	r, device := newTestContext(t)

	r.Shutdown()

	assert.True(t, device.destroyed)
	assert.GreaterOrEqual(t, device.waitIdleCalls, 1)
	assert.Equal(t, 1, device.swapchainDestroys)
	assert.Equal(t, 2*MaxFramesInFlight, device.semaphoresDestroyed)
	assert.Equal(t, MaxFramesInFlight, device.fencesDestroyed)
	assert.Equal(t, 0, device.liveMemories(), "allocator blocks released")
}
