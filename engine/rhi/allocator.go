package rhi

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/ember-engine/ember/engine/core"
)

const (
	// DefaultBlockSize is the size of every device memory block the
	// allocator carves allocations from.
	DefaultBlockSize uint64 = 128 * 1024 * 1024

	// DefaultAlignment is applied when a caller does not request one. It
	// covers the minimum uniform-buffer offset alignment of every
	// desktop device in circulation.
	DefaultAlignment uint64 = 256
)

// memoryBlock is one large device allocation for a single memory type.
// Blocks are never split or individually returned; they are freed en
// masse by Release.
type memoryBlock struct {
	handle          MemoryHandle
	typeIndex       uint32
	size            uint64
	cursor          uint64
	allocationCount int
	// mapped is the whole-block persistent mapping, nil until the first
	// Map call that touches this block.
	mapped []byte
}

// Allocation is a sub-range of a memory block handed to one resource. It
// is a view: it does not own the block, and destroying the resource never
// reclaims the range. Offset is aligned to the request's alignment.
type Allocation struct {
	block  *memoryBlock
	Offset uint64
	Size   uint64
}

// Memory returns the backend handle of the owning block, for binding.
func (a *Allocation) Memory() MemoryHandle {
	return a.block.handle
}

// DeviceAllocator bump-allocates sub-ranges of GPU memory from
// per-memory-type lists of fixed-size blocks. It requests a new block from
// the device when no existing block of the type has room. There is no
// free list and no per-allocation release: memory is reclaimed only by
// Release at shutdown.
type DeviceAllocator struct {
	device    Device
	blockSize uint64
	blocks    map[uint32][]*memoryBlock
}

// NewDeviceAllocator creates an allocator over device. A blockSize of 0
// selects DefaultBlockSize.
func NewDeviceAllocator(device Device, blockSize uint64) *DeviceAllocator {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	return &DeviceAllocator{
		device:    device,
		blockSize: blockSize,
		blocks:    make(map[uint32][]*memoryBlock),
	}
}

// BlockSize returns the fixed size of the allocator's blocks.
func (a *DeviceAllocator) BlockSize() uint64 {
	return a.blockSize
}

// Allocate hands out an aligned sub-range of a block with the given
// memory type index. An alignment of 0 selects DefaultAlignment.
// Requests larger than the block size fail with ErrAllocationTooLarge;
// a full block list is handled by transparently allocating a new block.
func (a *DeviceAllocator) Allocate(size uint64, typeIndex uint32, alignment uint64) (*Allocation, error) {
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	if err := CheckPow2(alignment, "alignment"); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, cerrors.New("rhi: zero-size allocation")
	}
	if size > a.blockSize {
		return nil, cerrors.Wrapf(ErrAllocationTooLarge, "requested %d bytes, block size %d", size, a.blockSize)
	}

	for _, block := range a.blocks[typeIndex] {
		offset := AlignUp(block.cursor, alignment)
		if offset+size <= block.size {
			block.cursor = offset + size
			block.allocationCount++
			return &Allocation{block: block, Offset: offset, Size: size}, nil
		}
	}

	block, err := a.allocateBlock(typeIndex)
	if err != nil {
		return nil, err
	}
	block.cursor = size
	block.allocationCount = 1
	return &Allocation{block: block, Offset: 0, Size: size}, nil
}

func (a *DeviceAllocator) allocateBlock(typeIndex uint32) (*memoryBlock, error) {
	handle, err := a.device.AllocateMemory(a.blockSize, typeIndex)
	if err != nil {
		return nil, cerrors.Wrapf(err, "allocating %d byte block for memory type %d", a.blockSize, typeIndex)
	}
	block := &memoryBlock{
		handle:    handle,
		typeIndex: typeIndex,
		size:      a.blockSize,
	}
	a.blocks[typeIndex] = append(a.blocks[typeIndex], block)
	core.LogDebug("allocated device memory block %d for type %d (%d MiB)",
		len(a.blocks[typeIndex])-1, typeIndex, a.blockSize/(1024*1024))
	return block, nil
}

// Free releases nothing. Individual allocations live for the block's
// lifetime; the sub-range is reclaimed only when Release tears the whole
// block down. Callers still invoke it on resource destruction so the
// contract reads symmetrically.
func (a *DeviceAllocator) Free(alloc *Allocation) {
	_ = alloc
}

// Map returns the allocation's bytes through the owning block's
// persistent mapping, establishing the mapping on first use. The mapping
// stays live until Release.
func (a *DeviceAllocator) Map(alloc *Allocation) ([]byte, error) {
	block := alloc.block
	if block.mapped == nil {
		mapped, err := a.device.MapMemory(block.handle, block.size)
		if err != nil {
			return nil, cerrors.Wrapf(err, "mapping %d byte block of memory type %d", block.size, block.typeIndex)
		}
		block.mapped = mapped
	}
	return block.mapped[alloc.Offset : alloc.Offset+alloc.Size], nil
}

// Release frees every block back to the device and resets the allocator.
// All outstanding Allocations are invalid afterwards.
func (a *DeviceAllocator) Release() {
	for typeIndex, blocks := range a.blocks {
		for _, block := range blocks {
			a.device.FreeMemory(block.handle)
			block.mapped = nil
		}
		delete(a.blocks, typeIndex)
	}
}
