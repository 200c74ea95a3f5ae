package rhi

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
)

// Buffer is a GPU buffer plus the sub-allocation backing it. Buffers are
// created during subsystem init or asset load and destroyed explicitly
// before device teardown; destruction leaks the sub-range inside the
// originating block until the allocator's shutdown release, which is the
// allocator's documented contract.
type Buffer struct {
	Name         string
	Size         uint64
	ElementSize  uint64
	ElementCount uint64

	handle BufferHandle
	alloc  *Allocation
	usage  BufferUsage
	memory MemoryPropertyFlags
	mapped []byte
}

// BufferDesc describes a buffer to create. Size may be given directly or
// as ElementSize*ElementCount. PersistentMap requires MemoryHostVisible
// and maps the allocation for the buffer's whole lifetime.
type BufferDesc struct {
	Name          string
	Size          uint64
	ElementSize   uint64
	ElementCount  uint64
	Usage         BufferUsage
	Memory        MemoryPropertyFlags
	PersistentMap bool
}

// Handle exposes the backend handle for command recording.
func (b *Buffer) Handle() BufferHandle {
	return b.handle
}

// Bytes returns the persistently mapped contents. Nil for unmapped
// buffers.
func (b *Buffer) Bytes() []byte {
	return b.mapped
}

// IsHostVisible reports whether the CPU can write the buffer directly.
func (b *Buffer) IsHostVisible() bool {
	return b.memory&MemoryHostVisible != 0
}

// CreateBuffer creates a buffer, binds allocator-provided memory to it
// and optionally maps it persistently. On any mid-composite failure the
// already created backend objects are destroyed before returning.
func (r *RHI) CreateBuffer(desc *BufferDesc) (*Buffer, error) {
	size := desc.Size
	if size == 0 {
		size = desc.ElementSize * desc.ElementCount
	}
	if size == 0 {
		return nil, cerrors.Newf("rhi: buffer %q has zero size", desc.Name)
	}

	handle, req, err := r.device.CreateBuffer(size, desc.Usage)
	if err != nil {
		return nil, cerrors.Wrapf(err, "creating buffer %q", desc.Name)
	}

	typeIndex, err := r.device.FindMemoryIndex(req.MemoryTypeBits, desc.Memory)
	if err != nil {
		r.device.DestroyBuffer(handle)
		return nil, cerrors.Wrapf(err, "selecting memory for buffer %q", desc.Name)
	}

	// Buffers take the 256-byte default unless the backend demands more.
	alignment := DefaultAlignment
	if req.Alignment > alignment {
		alignment = req.Alignment
	}
	alloc, err := r.allocator.Allocate(req.Size, typeIndex, alignment)
	if err != nil {
		r.device.DestroyBuffer(handle)
		return nil, cerrors.Wrapf(err, "allocating memory for buffer %q", desc.Name)
	}

	if err := r.device.BindBufferMemory(handle, alloc.Memory(), alloc.Offset); err != nil {
		r.device.DestroyBuffer(handle)
		r.allocator.Free(alloc)
		return nil, cerrors.Wrapf(err, "binding memory for buffer %q", desc.Name)
	}

	buf := &Buffer{
		Name:         desc.Name,
		Size:         size,
		ElementSize:  desc.ElementSize,
		ElementCount: desc.ElementCount,
		handle:       handle,
		alloc:        alloc,
		usage:        desc.Usage,
		memory:       desc.Memory,
	}

	if desc.PersistentMap {
		if desc.Memory&MemoryHostVisible == 0 {
			r.DestroyBuffer(buf)
			return nil, cerrors.Newf("rhi: buffer %q requests persistent map without host-visible memory", desc.Name)
		}
		mapped, err := r.allocator.Map(alloc)
		if err != nil {
			r.DestroyBuffer(buf)
			return nil, cerrors.Wrapf(err, "mapping buffer %q", desc.Name)
		}
		buf.mapped = mapped
	}

	return buf, nil
}

// CreateVertexBuffer creates a vertex buffer of elementCount elements.
// Device-local buffers are additionally flagged as transfer destinations
// for the staging upload path.
func (r *RHI) CreateVertexBuffer(name string, elementSize, elementCount uint64, memory MemoryPropertyFlags) (*Buffer, error) {
	return r.CreateBuffer(&BufferDesc{
		Name:          name,
		ElementSize:   elementSize,
		ElementCount:  elementCount,
		Usage:         vertexUsage(memory),
		Memory:        memory,
		PersistentMap: memory&MemoryHostVisible != 0,
	})
}

// CreateIndexBuffer creates an index buffer of elementCount indices.
func (r *RHI) CreateIndexBuffer(name string, elementSize, elementCount uint64, memory MemoryPropertyFlags) (*Buffer, error) {
	usage := BufferUsageIndex
	if memory&MemoryDeviceLocal != 0 {
		usage |= BufferUsageTransferDst
	}
	return r.CreateBuffer(&BufferDesc{
		Name:          name,
		ElementSize:   elementSize,
		ElementCount:  elementCount,
		Usage:         usage,
		Memory:        memory,
		PersistentMap: memory&MemoryHostVisible != 0,
	})
}

// CreateUniformBuffer creates a host-visible, host-coherent, persistently
// mapped uniform buffer. Per-frame uniform data is written straight
// through the mapping; coherent memory needs no explicit flush.
func (r *RHI) CreateUniformBuffer(name string, size uint64) (*Buffer, error) {
	return r.CreateBuffer(&BufferDesc{
		Name:          name,
		Size:          size,
		Usage:         BufferUsageUniform,
		Memory:        MemoryHostVisible | MemoryHostCoherent,
		PersistentMap: true,
	})
}

func vertexUsage(memory MemoryPropertyFlags) BufferUsage {
	usage := BufferUsageVertex
	if memory&MemoryDeviceLocal != 0 {
		usage |= BufferUsageTransferDst
	}
	return usage
}

// UploadToBuffer writes data into dst at offset. Host-visible buffers are
// written through their mapping; device-local buffers go through a
// temporary staging buffer and a one-shot transfer that waits for queue
// idle, so the staging buffer can be released immediately. Staging
// buffers are never persistent.
func (r *RHI) UploadToBuffer(dst *Buffer, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > dst.Size {
		return cerrors.Newf("rhi: upload of %d bytes at %d overruns buffer %q (%d bytes)",
			len(data), offset, dst.Name, dst.Size)
	}

	if dst.IsHostVisible() {
		mapped := dst.mapped
		if mapped == nil {
			var err error
			mapped, err = r.allocator.Map(dst.alloc)
			if err != nil {
				return cerrors.Wrapf(err, "mapping buffer %q for upload", dst.Name)
			}
		}
		copy(mapped[offset:], data)
		return nil
	}

	staging, err := r.CreateBuffer(&BufferDesc{
		Name:          dst.Name + ".staging",
		Size:          uint64(len(data)),
		Usage:         BufferUsageTransferSrc,
		Memory:        MemoryHostVisible | MemoryHostCoherent,
		PersistentMap: true,
	})
	if err != nil {
		return cerrors.Wrapf(err, "creating staging buffer for %q", dst.Name)
	}
	defer r.DestroyBuffer(staging)

	copy(staging.mapped, data)

	if err := r.device.CopyBuffer(staging.handle, 0, dst.handle, offset, uint64(len(data))); err != nil {
		return cerrors.Wrapf(err, "copying staging into buffer %q", dst.Name)
	}
	return nil
}

// WriteStruct copies one plain-data value into a mapped buffer at offset.
// The buffer must be persistently mapped.
func WriteStruct[T any](dst *Buffer, offset uint64, value *T) error {
	size := uint64(unsafe.Sizeof(*value))
	if dst.mapped == nil {
		return cerrors.Newf("rhi: buffer %q is not mapped", dst.Name)
	}
	if offset+size > uint64(len(dst.mapped)) {
		return cerrors.Newf("rhi: write of %d bytes at %d overruns buffer %q", size, offset, dst.Name)
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(value)), size)
	copy(dst.mapped[offset:], src)
	return nil
}

// DestroyBuffer releases the backend handle. The memory sub-range is not
// reclaimed; see the allocator's Free contract.
func (r *RHI) DestroyBuffer(b *Buffer) {
	if b == nil || b.handle == nil {
		return
	}
	r.device.DestroyBuffer(b.handle)
	r.allocator.Free(b.alloc)
	b.handle = nil
	b.mapped = nil
}
