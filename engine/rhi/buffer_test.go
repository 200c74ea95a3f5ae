package rhi

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBufferHostVisible(t *testing.T) {
	r, _ := newTestContext(t)

	buf, err := r.CreateBuffer(&BufferDesc{
		Name:          "test.host",
		Size:          512,
		Usage:         BufferUsageVertex,
		Memory:        MemoryHostVisible | MemoryHostCoherent,
		PersistentMap: true,
	})
	require.NoError(t, err)

	assert.True(t, buf.IsHostVisible())
	require.NotNil(t, buf.Bytes())
	assert.Len(t, buf.Bytes(), 512)
}

func TestCreateBufferElementSizing(t *testing.T) {
	r, _ := newTestContext(t)

	buf, err := r.CreateBuffer(&BufferDesc{
		Name:         "test.elements",
		ElementSize:  48,
		ElementCount: 100,
		Usage:        BufferUsageVertex,
		Memory:       MemoryDeviceLocal,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4800, buf.Size)

	_, err = r.CreateBuffer(&BufferDesc{Name: "test.empty", Usage: BufferUsageVertex, Memory: MemoryDeviceLocal})
	require.Error(t, err)
}

func TestCreateBufferAlignment(t *testing.T) {
	r, device := newTestContext(t)

	// Backend asks for less than the default: the 256-byte default wins.
	device.bufferAlignment = 16
	small, err := r.CreateUniformBuffer("test.small", 10)
	require.NoError(t, err)
	assert.Zero(t, small.alloc.Offset%DefaultAlignment)

	second, err := r.CreateUniformBuffer("test.second", 10)
	require.NoError(t, err)
	assert.Zero(t, second.alloc.Offset%DefaultAlignment)
	assert.EqualValues(t, DefaultAlignment, second.alloc.Offset-small.alloc.Offset)

	// Backend asks for more: its requirement wins.
	device.bufferAlignment = 1024
	third, err := r.CreateUniformBuffer("test.third", 10)
	require.NoError(t, err)
	assert.Zero(t, third.alloc.Offset%1024)
}

func TestPersistentMapRequiresHostVisible(t *testing.T) {
	r, _ := newTestContext(t)

	_, err := r.CreateBuffer(&BufferDesc{
		Name:          "test.bad",
		Size:          64,
		Usage:         BufferUsageVertex,
		Memory:        MemoryDeviceLocal,
		PersistentMap: true,
	})
	require.Error(t, err)
}

func TestCreateBufferRollsBackOnFailure(t *testing.T) {
	r, device := newTestContext(t)
	before := device.liveBuffers()

	device.failFindMemory = true
	_, err := r.CreateBuffer(&BufferDesc{
		Name:   "test.doomed",
		Size:   64,
		Usage:  BufferUsageVertex,
		Memory: MemoryDeviceLocal,
	})
	require.ErrorIs(t, err, ErrNoSuitableMemoryType)
	assert.Equal(t, before, device.liveBuffers(), "failed composite leaves no backend buffer behind")
}

func TestUploadHostVisibleWritesThroughMapping(t *testing.T) {
	r, device := newTestContext(t)

	buf, err := r.CreateVertexBuffer("test.vertices", 4, 64, MemoryHostVisible|MemoryHostCoherent)
	require.NoError(t, err)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, r.UploadToBuffer(buf, 16, payload))

	raw := buf.handle.(*fakeBuffer).contents()
	assert.Equal(t, payload, raw[16:24])
	assert.Equal(t, 0, device.copyCalls, "host-visible uploads never stage")
}

func TestUploadDeviceLocalGoesThroughStaging(t *testing.T) {
	r, device := newTestContext(t)

	buf, err := r.CreateVertexBuffer("test.vertices", 4, 64, MemoryDeviceLocal)
	require.NoError(t, err)
	assert.NotZero(t, buf.usage&BufferUsageTransferDst, "device-local vertex buffers accept transfers")

	liveBefore := device.liveBuffers()
	payload := []byte{9, 8, 7, 6, 5, 4, 3, 2}
	require.NoError(t, r.UploadToBuffer(buf, 0, payload))

	assert.Equal(t, 1, device.copyCalls)
	assert.Equal(t, liveBefore, device.liveBuffers(), "staging buffer is destroyed after the copy")

	raw := buf.handle.(*fakeBuffer).contents()
	assert.Equal(t, payload, raw[:8])
}

func TestUploadOverrunRejected(t *testing.T) {
	r, _ := newTestContext(t)

	buf, err := r.CreateUniformBuffer("test.uniform", 64)
	require.NoError(t, err)

	err = r.UploadToBuffer(buf, 60, []byte{1, 2, 3, 4, 5})
	require.Error(t, err)
}

func TestWriteStruct(t *testing.T) {
	r, _ := newTestContext(t)

	buf, err := r.CreateUniformBuffer("test.uniform", 64)
	require.NoError(t, err)

	type globals struct {
		Scale  float32
		Offset [2]float32
	}
	value := globals{Scale: 2, Offset: [2]float32{3, 4}}
	require.NoError(t, WriteStruct(buf, 4, &value))

	bytes := buf.Bytes()
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(bytes[4:8])))
	assert.Equal(t, float32(3), math.Float32frombits(binary.LittleEndian.Uint32(bytes[8:12])))
	assert.Equal(t, float32(4), math.Float32frombits(binary.LittleEndian.Uint32(bytes[12:16])))

	assert.Error(t, WriteStruct(buf, 60, &value), "write past the end is rejected")
}

func TestDestroyBufferIsIdempotent(t *testing.T) {
	r, _ := newTestContext(t)

	buf, err := r.CreateUniformBuffer("test.uniform", 64)
	require.NoError(t, err)

	r.DestroyBuffer(buf)
	r.DestroyBuffer(buf)
	r.DestroyBuffer(nil)
}
