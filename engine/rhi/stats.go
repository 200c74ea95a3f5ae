package rhi

import (
	"math"
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Statistics is the coarse allocation accounting of the device allocator,
// per memory type or totalled.
type Statistics struct {
	BlockCount      int
	AllocationCount int
	BlockBytes      uint64
	AllocationBytes uint64
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.AllocationCount = 0
	s.BlockBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.AllocationCount += other.AllocationCount
	s.BlockBytes += other.BlockBytes
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics adds min/max allocation sizes and unused-range
// accounting. For a bump allocator the unused range of a block is its
// tail past the cursor.
type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	AllocationSizeMin  uint64
	AllocationSizeMax  uint64
	UnusedRangeSizeMin uint64
	UnusedRangeSizeMax uint64
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.AllocationSizeMin = math.MaxUint64
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxUint64
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddAllocation(size uint64) {
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}
	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddUnusedRange(size uint64) {
	s.UnusedRangeCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}
	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount

	if other.UnusedRangeSizeMin < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = other.UnusedRangeSizeMin
	}
	if other.UnusedRangeSizeMax > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = other.UnusedRangeSizeMax
	}
	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}
	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}

// Stats totals the allocator's accounting across every memory type.
func (a *DeviceAllocator) Stats() Statistics {
	var total Statistics
	for _, blocks := range a.blocks {
		for _, b := range blocks {
			total.BlockCount++
			total.BlockBytes += b.size
			total.AllocationCount += b.allocationCount
			total.AllocationBytes += b.cursor
		}
	}
	return total
}

// DetailedStats returns per-memory-type detailed accounting.
func (a *DeviceAllocator) DetailedStats() map[uint32]DetailedStatistics {
	out := make(map[uint32]DetailedStatistics, len(a.blocks))
	for typeIndex, blocks := range a.blocks {
		var s DetailedStatistics
		s.Clear()
		for _, b := range blocks {
			s.BlockCount++
			s.BlockBytes += b.size
			s.AllocationCount += b.allocationCount
			s.AllocationBytes += b.cursor
			if b.cursor < b.size {
				s.AddUnusedRange(b.size - b.cursor)
			}
		}
		out[typeIndex] = s
	}
	return out
}

// BuildStatsString renders the allocator state as JSON. With detailedMap
// each block additionally reports its free tail range.
func (a *DeviceAllocator) BuildStatsString(detailedMap bool) string {
	writer := jwriter.NewWriter()

	root := writer.Object()

	total := a.Stats()
	totalObj := root.Name("Total").Object()
	writeStatistics(&totalObj, &total)
	totalObj.End()

	typesObj := root.Name("MemoryTypes").Object()
	for typeIndex, blocks := range a.blocks {
		typeObj := typesObj.Name(strconv.Itoa(int(typeIndex))).Object()
		blocksObj := typeObj.Name("Blocks").Object()
		for i, b := range blocks {
			blockObj := blocksObj.Name(strconv.Itoa(i)).Object()
			blockObj.Name("TotalBytes").Int(int(b.size))
			blockObj.Name("UsedBytes").Int(int(b.cursor))
			blockObj.Name("Allocations").Int(b.allocationCount)
			blockObj.Name("Mapped").Bool(b.mapped != nil)
			if detailedMap {
				subArr := blockObj.Name("Suballocations").Array()
				if b.cursor < b.size {
					freeObj := subArr.Object()
					freeObj.Name("Offset").Int(int(b.cursor))
					freeObj.Name("Size").Int(int(b.size - b.cursor))
					freeObj.Name("Type").String("FREE")
					freeObj.End()
				}
				subArr.End()
			}
			blockObj.End()
		}
		blocksObj.End()
		typeObj.End()
	}
	typesObj.End()

	root.End()

	return string(writer.Bytes())
}

func writeStatistics(json *jwriter.ObjectState, s *Statistics) {
	json.Name("BlockCount").Int(s.BlockCount)
	json.Name("AllocationCount").Int(s.AllocationCount)
	json.Name("BlockBytes").Int(int(s.BlockBytes))
	json.Name("AllocationBytes").Int(int(s.AllocationBytes))
}
