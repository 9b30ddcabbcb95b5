package genheap

import (
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/quartzvm/heap/gccell"
	"github.com/quartzvm/heap/heaputils"
	"github.com/quartzvm/heap/storage"
)

// GenerationStats summarizes one generation: segment and live-cell counts plus the byte limit
// the generation is allowed to grow to (0 for provider-limited).
type GenerationStats struct {
	heaputils.Statistics
	BudgetBytes int
}

// HeapStatistics is a read-only snapshot of the heap for diagnostics and telemetry.
type HeapStatistics struct {
	Young GenerationStats
	Old   GenerationStats

	Collections int
	Provider    storage.Stats
}

// Stats returns a snapshot of the heap's current occupancy. Old-generation cell counters
// reflect cells live as of the last collection plus allocations since.
func (h *Heap) Stats() HeapStatistics {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	return HeapStatistics{
		Young:       h.generationStats(&h.young, h.youngBudget),
		Old:         h.generationStats(&h.old, h.oldLimit),
		Collections: h.collections,
		Provider:    h.provider.Stats(),
	}
}

func (h *Heap) generationStats(gen *generation, budget int) GenerationStats {
	return GenerationStats{
		Statistics: heaputils.Statistics{
			SegmentCount: len(gen.segments),
			SegmentBytes: gen.segmentBytes(h.segmentSize),
			CellCount:    gen.cellCount,
			CellBytes:    gen.cellBytes,
		},
		BudgetBytes: budget,
	}
}

// DetailedStats walks every segment and aggregates per-cell size extremes and unused ranges.
// The walk visits every cell header, so this is a diagnostic, not a hot-path query. In the old
// generation, dead cells whose segment has not yet emptied are still counted: their storage is
// genuinely occupied until the segment is reclaimed.
func (h *Heap) DetailedStats() heaputils.DetailedStatistics {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	var stats heaputils.DetailedStatistics
	stats.Clear()

	for _, gen := range []*generation{&h.young, &h.old} {
		for _, s := range gen.segments {
			stats.SegmentCount++
			stats.SegmentBytes += s.Size()

			for ptr := s.LowLim(); uintptr(ptr) < uintptr(s.Level()); {
				size := gccell.SizeOf(ptr)
				stats.AddCell(size)
				ptr = unsafe.Add(ptr, cellStride(size))
			}
			if s.Available() > 0 {
				stats.AddUnusedRange(s.Available())
			}
		}
	}

	return stats
}

// PrintStatsJSON streams the Stats snapshot into writer as a single JSON object.
func (h *Heap) PrintStatsJSON(writer *jwriter.Writer) {
	stats := h.Stats()

	objState := writer.Object()
	defer objState.End()

	objState.Name("Collections").Int(stats.Collections)
	printGenerationJSON(objState.Name("YoungGeneration").Object(), stats.Young)
	printGenerationJSON(objState.Name("OldGeneration").Object(), stats.Old)

	providerState := objState.Name("Provider").Object()
	providerState.Name("SegmentCount").Int(stats.Provider.SegmentCount)
	providerState.Name("SegmentBytes").Int(stats.Provider.SegmentBytes)
	providerState.Name("PeakSegmentBytes").Int(stats.Provider.PeakSegmentBytes)
	providerState.End()
}

func printGenerationJSON(json jwriter.ObjectState, stats GenerationStats) {
	defer json.End()

	json.Name("Segments").Int(stats.SegmentCount)
	json.Name("SegmentBytes").Int(stats.SegmentBytes)
	json.Name("Cells").Int(stats.CellCount)
	json.Name("CellBytes").Int(stats.CellBytes)
	json.Name("BudgetBytes").Int(stats.BudgetBytes)
}
