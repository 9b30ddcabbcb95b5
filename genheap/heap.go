package genheap

import (
	"context"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"

	"github.com/quartzvm/heap/gccell"
	"github.com/quartzvm/heap/heaputils"
	"github.com/quartzvm/heap/internal/utils"
	"github.com/quartzvm/heap/storage"
)

type genTag uint8

const (
	genYoung genTag = iota
	genOld
	// genFromSpace marks young segments being evacuated during the current collection. A cell
	// address classified into from-space is stale and must be forwarded.
	genFromSpace
)

type segmentRecord struct {
	segment *storage.Segment
	gen     genTag
}

// A generation owns an ordered set of segments; the last one is the active bump-allocation
// target. Cell counters track live cells between collections.
type generation struct {
	segments  []*storage.Segment
	cellCount int
	cellBytes int
}

func (g *generation) active() *storage.Segment {
	if len(g.segments) == 0 {
		return nil
	}
	return g.segments[len(g.segments)-1]
}

func (g *generation) segmentBytes(segmentSize int) int {
	return len(g.segments) * segmentSize
}

// Heap is a complete generational heap: a young generation that bump-allocates and evacuates
// survivors, an old generation for long-lived cells, and the root-scope stack native callers
// use to keep references valid across collections. All allocation and collection for one heap
// happens on one logical thread of control; unless created with
// HeapCreateExternallySynchronized, every operation serializes on an internal mutex.
type Heap struct {
	logger   *slog.Logger
	mutex    utils.OptionalMutex
	provider storage.StorageProvider

	segmentSize int

	young generation
	old   generation
	// segments classifies an arbitrary cell address: mask the address down to its segment base
	// with storage.Start, then look the base up here to learn which generation owns it.
	segments *swiss.Map[uintptr, segmentRecord]

	youngBudget        int
	oldLimit           int
	promotionThreshold int
	globalRoots        func(visit RootVisitor)

	scopes      []*Scope
	collections int
	destroyed   bool
}

func (h *Heap) checkUsable() {
	if h.destroyed {
		panic(cerrors.New("heap used after Destroy"))
	}
}

func (h *Heap) addSegment(s *storage.Segment, gen genTag) {
	h.segments.Put(uintptr(s.LowLim()), segmentRecord{segment: s, gen: gen})
}

func (h *Heap) dropSegment(s *storage.Segment) {
	h.segments.Delete(uintptr(s.LowLim()))
}

func (h *Heap) lookup(cell unsafe.Pointer) (segmentRecord, bool) {
	base := storage.Start(cell, h.segmentSize)
	return h.segments.Get(uintptr(base))
}

// cellStride is the number of segment bytes one cell of the given size consumes: the size
// rounded up to the cell alignment, plus the debug corruption margin when one is configured.
func cellStride(size int) int {
	return heaputils.AlignUp(size, gccell.CellAlign) + heaputils.DebugMargin
}

// IsLive reports whether ptr currently addresses a live cell allocation in this heap: it lies
// inside the allocated prefix of a segment owned by one of the generations. Addresses inside
// released or evacuated segments report false, which makes this usable as the post-collection
// liveness query for cells that lost their last root.
func (h *Heap) IsLive(ptr unsafe.Pointer) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	record, ok := h.lookup(ptr)
	if !ok || record.gen == genFromSpace {
		return false
	}
	return uintptr(ptr) >= uintptr(record.segment.LowLim()) && uintptr(ptr) < uintptr(record.segment.Level())
}

// CollectionCount returns how many collections the heap has completed.
func (h *Heap) CollectionCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.collections
}

// ForEachRoot invokes fn once for every live root slot across all currently open scopes, in an
// unspecified order. Only completeness may be relied upon; collection correctness never depends
// on enumeration order. nil slots are skipped.
func (h *Heap) ForEachRoot(fn func(cell unsafe.Pointer)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	for _, scope := range h.scopes {
		for _, cell := range scope.slots {
			if cell != nil {
				fn(cell)
			}
		}
	}
}

// visitRoots is the collector's mutating enumeration: every root slot, scope-held and global,
// is passed by address so relocation can rewrite it. Caller holds the heap mutex.
func (h *Heap) visitRoots(visit RootVisitor) {
	for _, scope := range h.scopes {
		for i := range scope.slots {
			if scope.slots[i] != nil {
				visit(&scope.slots[i])
			}
		}
	}

	if h.globalRoots != nil {
		h.globalRoots(visit)
	}
}

// Destroy releases every segment back to the storage provider and makes the heap unusable. Any
// scope still open is a caller bug; it is logged and its handles become invalid.
func (h *Heap) Destroy() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	if len(h.scopes) != 0 {
		h.logger.LogAttrs(context.Background(), slog.LevelError,
			"destroying a heap with open root scopes",
			slog.Int("openScopes", len(h.scopes)))
	}
	for _, scope := range h.scopes {
		scope.heap = nil
		scope.slots = nil
	}
	h.scopes = nil

	for _, s := range h.young.segments {
		h.provider.Release(s)
	}
	for _, s := range h.old.segments {
		h.provider.Release(s)
	}
	h.young = generation{}
	h.old = generation{}
	h.segments = swiss.NewMap[uintptr, segmentRecord](1)
	h.destroyed = true
}

// CheckCorruption walks every live cell in both generations and verifies the debug margin
// written after it is intact. It only detects anything when the module is built with the
// debug_heap_utils tag; without it, margins are zero bytes wide and the walk trivially passes.
func (h *Heap) CheckCorruption() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	if heaputils.DebugMargin == 0 {
		return nil
	}

	for _, gen := range []*generation{&h.young, &h.old} {
		for _, s := range gen.segments {
			err := checkSegmentCorruption(s)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func checkSegmentCorruption(s *storage.Segment) error {
	for ptr := s.LowLim(); uintptr(ptr) < uintptr(s.Level()); {
		size := gccell.SizeOf(ptr)
		if !heaputils.ValidateMagicValue(ptr, heaputils.AlignUp(size, gccell.CellAlign)) {
			return cerrors.Newf("corruption detected after the %s cell at %p", gccell.KindOf(ptr), ptr)
		}
		ptr = unsafe.Add(ptr, cellStride(size))
	}
	return nil
}
