package rhi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamVertex struct {
	X, Y float32
}

var quadVertices = []streamVertex{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
var quadIndices = []uint32{0, 1, 2, 2, 3, 0}

func storedIndices(s *Stream[streamVertex], slot uint32, count int) []uint32 {
	bytes := s.indexBuffers[slot].Bytes()
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(bytes[i*4:])
	}
	return out
}

func TestStreamPushAndFlush(t *testing.T) {
	r, _ := newTestContext(t)
	s, err := NewStream[streamVertex](r, "test", 8, 12)
	require.NoError(t, err)

	cb := &fakeCommandBuffer{}
	s.BeginFrame(0)
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))
	s.Flush(cb)

	require.Len(t, cb.draws, 1)
	assert.Equal(t, fakeDrawIndexed{indexCount: 6, instanceCount: 1}, cb.draws[0])
	assert.Equal(t, 1, cb.vertexBinds)
	assert.Equal(t, 1, cb.indexBinds)
	assert.Same(t, s.vertexBuffers[0].handle.(*fakeBuffer), cb.boundVertex)
	assert.Same(t, s.indexBuffers[0].handle.(*fakeBuffer), cb.boundIndex)
}

func TestStreamBatchesStartWhereLastEnded(t *testing.T) {
	r, _ := newTestContext(t)
	s, err := NewStream[streamVertex](r, "test", 8, 12)
	require.NoError(t, err)

	cb := &fakeCommandBuffer{}
	s.BeginFrame(0)
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))
	s.Flush(cb)
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))
	s.Flush(cb)

	require.Len(t, cb.draws, 2)
	assert.EqualValues(t, 0, cb.draws[0].firstIndex)
	assert.EqualValues(t, 6, cb.draws[1].firstIndex, "second batch draws the region after the first")
}

func TestStreamForcedFlushAtCapacity(t *testing.T) {
	r, _ := newTestContext(t)
	// Capacity of exactly one quad.
	s, err := NewStream[streamVertex](r, "test", 4, 6)
	require.NoError(t, err)

	cb := &fakeCommandBuffer{}
	s.BeginFrame(0)
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))
	require.Empty(t, cb.draws, "a fitting push draws nothing")

	// The second quad cannot fit: the pending one is flushed and the
	// write wraps to the start before the retry.
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))
	require.Len(t, cb.draws, 1)
	assert.EqualValues(t, 6, cb.draws[0].indexCount)
	assert.EqualValues(t, 0, cb.draws[0].firstIndex)

	cur := s.cursors[0]
	assert.EqualValues(t, 4, cur.vertexCursor, "retried quad landed at the wrapped start")
	assert.EqualValues(t, 0, cur.vertexOffset)

	s.Flush(cb)
	require.Len(t, cb.draws, 2)
	assert.EqualValues(t, 6, cb.draws[1].indexCount)
	assert.EqualValues(t, 0, cb.draws[1].firstIndex)
}

func TestStreamRebasesIndices(t *testing.T) {
	r, _ := newTestContext(t)
	s, err := NewStream[streamVertex](r, "test", 8, 12)
	require.NoError(t, err)

	cb := &fakeCommandBuffer{}
	s.BeginFrame(0)
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))

	want := []uint32{0, 1, 2, 2, 3, 0, 4, 5, 6, 6, 7, 4}
	assert.Equal(t, want, storedIndices(s, 0, 12),
		"relative indices are rebased against each primitive's first vertex")
}

func TestStreamPrimitiveTooLarge(t *testing.T) {
	r, _ := newTestContext(t)
	s, err := NewStream[streamVertex](r, "test", 4, 6)
	require.NoError(t, err)

	cb := &fakeCommandBuffer{}
	s.BeginFrame(0)

	fiveVerts := make([]streamVertex, 5)
	err = s.Push(cb, fiveVerts, []uint32{0, 1, 2})
	require.ErrorIs(t, err, ErrPrimitiveTooLarge)

	sevenIndices := []uint32{0, 1, 2, 0, 2, 3, 0}
	err = s.Push(cb, quadVertices, sevenIndices)
	require.ErrorIs(t, err, ErrPrimitiveTooLarge)

	require.Empty(t, cb.draws, "rejected pushes never draw")
}

func TestStreamEmptyPushAndFlush(t *testing.T) {
	r, _ := newTestContext(t)
	s, err := NewStream[streamVertex](r, "test", 4, 6)
	require.NoError(t, err)

	cb := &fakeCommandBuffer{}
	s.BeginFrame(0)
	require.NoError(t, s.Push(cb, nil, nil))
	s.Flush(cb)

	assert.Empty(t, cb.draws)
	assert.Zero(t, cb.vertexBinds)
	assert.Zero(t, cb.indexBinds)
}

func TestStreamPerSlotCursors(t *testing.T) {
	r, _ := newTestContext(t)
	s, err := NewStream[streamVertex](r, "test", 8, 12)
	require.NoError(t, err)

	cb := &fakeCommandBuffer{}
	s.BeginFrame(0)
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))
	s.Flush(cb)

	// The other slot starts fresh; slot 0 keeps its offset for the next
	// frame so in-flight reads are not overwritten.
	s.BeginFrame(1)
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))
	assert.EqualValues(t, 4, s.cursors[1].vertexCursor)
	assert.EqualValues(t, 0, s.cursors[1].vertexOffset)
	assert.EqualValues(t, 4, s.cursors[0].vertexOffset)

	s.BeginFrame(0)
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))
	s.Flush(cb)

	require.Len(t, cb.draws, 2)
	assert.EqualValues(t, 6, cb.draws[1].firstIndex, "slot 0 resumes past its previous frame's region")
}

func TestStreamEnsureCapacity(t *testing.T) {
	r, device := newTestContext(t)
	s, err := NewStream[streamVertex](r, "test", 4, 6)
	require.NoError(t, err)

	waitsBefore := device.waitIdleCalls
	require.NoError(t, s.EnsureCapacity(4, 6))
	assert.Equal(t, waitsBefore, device.waitIdleCalls, "a fitting request is free")

	buffersBefore := device.liveBuffers()
	require.NoError(t, s.EnsureCapacity(16, 24))
	assert.Equal(t, waitsBefore+1, device.waitIdleCalls, "growth stalls behind device idle")
	assert.EqualValues(t, 32, s.VertexCapacity(), "growth doubles past the requested need")
	assert.EqualValues(t, 48, s.IndexCapacity())
	assert.Equal(t, buffersBefore, device.liveBuffers(), "old pairs destroyed, new pairs created")

	// Cursors were reset with the rebuilt buffers.
	cb := &fakeCommandBuffer{}
	s.BeginFrame(0)
	require.NoError(t, s.Push(cb, quadVertices, quadIndices))
	s.Flush(cb)
	require.Len(t, cb.draws, 1)
	assert.EqualValues(t, 0, cb.draws[0].firstIndex)
}

func TestStreamDestroy(t *testing.T) {
	r, device := newTestContext(t)

	buffersBefore := device.liveBuffers()
	s, err := NewStream[streamVertex](r, "test", 4, 6)
	require.NoError(t, err)
	assert.Equal(t, buffersBefore+2*MaxFramesInFlight, device.liveBuffers())

	s.Destroy()
	assert.Equal(t, buffersBefore, device.liveBuffers())
}
