package heaputils

import "math"

// Statistics is a summary of the memory owned by one generation (or the whole heap): how many
// storage segments back it, how many bytes those segments reserve, and how many live cells (and
// live cell bytes) they hold.
type Statistics struct {
	SegmentCount int
	CellCount    int
	SegmentBytes int
	CellBytes    int
}

func (s *Statistics) Clear() {
	s.SegmentCount = 0
	s.CellCount = 0
	s.SegmentBytes = 0
	s.CellBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.SegmentCount += other.SegmentCount
	s.CellCount += other.CellCount
	s.SegmentBytes += other.SegmentBytes
	s.CellBytes += other.CellBytes
}

// DetailedStatistics extends Statistics with per-cell size extremes and free-range information.
// Collecting it requires a full walk of the generation's segments, so it is intended for
// diagnostics rather than hot paths.
type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	CellSizeMin        int
	CellSizeMax        int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.CellSizeMin = math.MaxInt
	s.CellSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddCell(size int) {
	s.CellCount++
	s.CellBytes += size

	if size < s.CellSizeMin {
		s.CellSizeMin = size
	}

	if size > s.CellSizeMax {
		s.CellSizeMax = size
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

	if other.CellSizeMin < s.CellSizeMin {
		s.CellSizeMin = other.CellSizeMin
	}

	if other.CellSizeMax > s.CellSizeMax {
		s.CellSizeMax = other.CellSizeMax
	}
}
