package rhi

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"

	"github.com/ember-engine/ember/engine/core"
)

// streamCursor is one frame-in-flight slot's write state, in elements.
// offset is where the region handed to the GPU for this slot's previous
// frame ended; it is carried into the next frame's start so in-flight
// reads and new writes never alias. Invariant: offset <= cursor.
type streamCursor struct {
	vertexOffset uint32
	vertexCursor uint32
	indexOffset  uint32
	indexCursor  uint32
}

// Stream is the persistent-mapped ring-buffer streaming pattern for
// per-frame dynamic geometry. Every dynamic-geometry system instantiates
// it with its own vertex record: one mapped vertex/index buffer pair per
// frame-in-flight, a write cursor, and a flush that turns the written
// region into a single indexed draw.
//
// A push whose primitive would overflow the fixed capacity forces a
// flush and wraps, because an indexed draw cannot span the buffer end
// mid-primitive. Capacity is therefore sized generously; clients with
// genuinely unbounded counts call EnsureCapacity and accept the
// device-idle stall of a rebuild.
type Stream[V any] struct {
	name string
	rhi  *RHI

	vertexBuffers [MaxFramesInFlight]*Buffer
	indexBuffers  [MaxFramesInFlight]*Buffer

	maxVertices uint32
	maxIndices  uint32
	vertexSize  uint32

	slot    uint32
	cursors [MaxFramesInFlight]streamCursor
}

// NewStream creates the per-slot buffer pairs, persistently mapped in
// host-visible coherent memory.
func NewStream[V any](r *RHI, name string, maxVertices, maxIndices uint32) (*Stream[V], error) {
	if maxVertices == 0 || maxIndices == 0 {
		return nil, cerrors.Newf("rhi: stream %q has zero capacity", name)
	}
	var zero V
	s := &Stream[V]{
		name:        name,
		rhi:         r,
		maxVertices: maxVertices,
		maxIndices:  maxIndices,
		vertexSize:  uint32(unsafe.Sizeof(zero)),
	}
	if err := s.createBuffers(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *Stream[V]) createBuffers() error {
	for i := 0; i < MaxFramesInFlight; i++ {
		vb, err := s.rhi.CreateBuffer(&BufferDesc{
			Name:          s.name + ".vertices",
			ElementSize:   uint64(s.vertexSize),
			ElementCount:  uint64(s.maxVertices),
			Usage:         BufferUsageVertex,
			Memory:        MemoryHostVisible | MemoryHostCoherent,
			PersistentMap: true,
		})
		if err != nil {
			return cerrors.Wrapf(err, "creating stream %q vertex buffer %d", s.name, i)
		}
		s.vertexBuffers[i] = vb

		ib, err := s.rhi.CreateBuffer(&BufferDesc{
			Name:          s.name + ".indices",
			ElementSize:   4,
			ElementCount:  uint64(s.maxIndices),
			Usage:         BufferUsageIndex,
			Memory:        MemoryHostVisible | MemoryHostCoherent,
			PersistentMap: true,
		})
		if err != nil {
			return cerrors.Wrapf(err, "creating stream %q index buffer %d", s.name, i)
		}
		s.indexBuffers[i] = ib
	}
	return nil
}

// BeginFrame points the stream at the given frame-in-flight slot and
// reserves this frame's region right after the slot's previous one.
func (s *Stream[V]) BeginFrame(slot uint32) {
	s.slot = slot % MaxFramesInFlight
	cur := &s.cursors[s.slot]
	cur.vertexCursor = cur.vertexOffset
	cur.indexCursor = cur.indexOffset
}

// Push appends one primitive: its vertices and its indices relative to
// those vertices. If the primitive would overflow the remaining capacity
// the pending region is flushed as a draw on cb and the write wraps to
// the buffer start before the push is retried. A primitive that cannot
// fit even an empty buffer fails with ErrPrimitiveTooLarge.
func (s *Stream[V]) Push(cb CommandBuffer, vertices []V, indices []uint32) error {
	vCount := uint32(len(vertices))
	iCount := uint32(len(indices))
	if vCount == 0 || iCount == 0 {
		return nil
	}
	if vCount > s.maxVertices || iCount > s.maxIndices {
		return cerrors.Wrapf(ErrPrimitiveTooLarge,
			"stream %q: primitive of %d vertices/%d indices, capacity %d/%d",
			s.name, vCount, iCount, s.maxVertices, s.maxIndices)
	}

	cur := &s.cursors[s.slot]
	if cur.vertexCursor+vCount > s.maxVertices || cur.indexCursor+iCount > s.maxIndices {
		// Wrapping mid-primitive would split its index range across the
		// buffer end, which one indexed draw cannot express.
		s.flush(cb, true)
		cur = &s.cursors[s.slot]
	}

	vb := s.vertexBuffers[s.slot].Bytes()
	base := uint64(cur.vertexCursor) * uint64(s.vertexSize)
	src := unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), uintptr(vCount)*uintptr(s.vertexSize))
	copy(vb[base:], src)

	ib := s.indexBuffers[s.slot].Bytes()
	indexDst := unsafe.Slice((*uint32)(unsafe.Pointer(&ib[0])), s.maxIndices)
	for i, idx := range indices {
		indexDst[cur.indexCursor+uint32(i)] = cur.vertexCursor + idx
	}

	cur.vertexCursor += vCount
	cur.indexCursor += iCount
	return nil
}

// Flush issues one indexed draw over everything pushed since the last
// flush, then starts the next batch where this one ended. Empty regions
// draw nothing.
func (s *Stream[V]) Flush(cb CommandBuffer) {
	s.flush(cb, false)
}

func (s *Stream[V]) flush(cb CommandBuffer, wrap bool) {
	cur := &s.cursors[s.slot]
	indexCount := cur.indexCursor - cur.indexOffset
	if indexCount > 0 {
		cb.BindVertexBuffer(s.vertexBuffers[s.slot].Handle(), 0)
		cb.BindIndexBuffer(s.indexBuffers[s.slot].Handle(), 0, true)
		cb.DrawIndexed(indexCount, 1, cur.indexOffset, 0, 0)
	}

	if wrap {
		cur.vertexOffset = 0
		cur.indexOffset = 0
	} else {
		cur.vertexOffset = cur.vertexCursor % s.maxVertices
		cur.indexOffset = cur.indexCursor % s.maxIndices
	}
	cur.vertexCursor = cur.vertexOffset
	cur.indexCursor = cur.indexOffset
}

// EnsureCapacity grows the stream to hold at least vertexCount and
// indexCount elements per frame. Growth tears the buffers down behind a
// full device-idle wait and doubles past the need, so it is a rare
// one-off stall, not a per-frame cost.
func (s *Stream[V]) EnsureCapacity(vertexCount, indexCount uint32) error {
	if vertexCount <= s.maxVertices && indexCount <= s.maxIndices {
		return nil
	}

	newMaxVertices := s.maxVertices * 2
	if vertexCount*2 > newMaxVertices {
		newMaxVertices = vertexCount * 2
	}
	newMaxIndices := s.maxIndices * 2
	if indexCount*2 > newMaxIndices {
		newMaxIndices = indexCount * 2
	}

	if err := s.rhi.device.WaitIdle(); err != nil {
		return cerrors.Wrapf(err, "waiting for device before growing stream %q", s.name)
	}
	for i := 0; i < MaxFramesInFlight; i++ {
		s.rhi.DestroyBuffer(s.vertexBuffers[i])
		s.rhi.DestroyBuffer(s.indexBuffers[i])
		s.cursors[i] = streamCursor{}
	}

	core.LogInfo("stream %q growing: %d/%d -> %d/%d vertices/indices",
		s.name, s.maxVertices, s.maxIndices, newMaxVertices, newMaxIndices)
	s.maxVertices = newMaxVertices
	s.maxIndices = newMaxIndices
	return s.createBuffers()
}

// VertexCapacity returns the per-frame vertex capacity in elements.
func (s *Stream[V]) VertexCapacity() uint32 {
	return s.maxVertices
}

// IndexCapacity returns the per-frame index capacity in elements.
func (s *Stream[V]) IndexCapacity() uint32 {
	return s.maxIndices
}

// Destroy releases the buffer pairs.
func (s *Stream[V]) Destroy() {
	for i := 0; i < MaxFramesInFlight; i++ {
		if s.vertexBuffers[i] != nil {
			s.rhi.DestroyBuffer(s.vertexBuffers[i])
			s.vertexBuffers[i] = nil
		}
		if s.indexBuffers[i] != nil {
			s.rhi.DestroyBuffer(s.indexBuffers[i])
			s.indexBuffers[i] = nil
		}
	}
}
