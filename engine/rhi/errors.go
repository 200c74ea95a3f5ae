package rhi

import "github.com/pkg/errors"

// Sentinel errors callers are expected to test for.
var (
	// ErrAllocationTooLarge is returned when a single allocation request
	// exceeds the allocator's block size. Larger-than-block allocations
	// are unsupported.
	ErrAllocationTooLarge = errors.New("rhi: allocation exceeds device memory block size")

	// ErrNoSuitableMemoryType is returned when no device memory type
	// satisfies the requested property flags.
	ErrNoSuitableMemoryType = errors.New("rhi: no suitable memory type found")

	// ErrPrimitiveTooLarge is returned when a single pushed primitive can
	// never fit a stream's capacity, even after a flush.
	ErrPrimitiveTooLarge = errors.New("rhi: primitive exceeds stream capacity")

	// ErrFrameNotActive is returned when frame-scoped work is attempted
	// outside BeginFrame/EndFrame.
	ErrFrameNotActive = errors.New("rhi: no frame in progress")

	// ErrFrameActive is returned when BeginFrame is called while the
	// previous frame has not ended.
	ErrFrameActive = errors.New("rhi: frame already in progress")
)
