package genheap

import (
	"context"
	"time"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/quartzvm/heap/gccell"
	"github.com/quartzvm/heap/heaputils"
)

// Collect forces a full stop-the-world collection. Allocation failure triggers one
// automatically; this entry point exists for embedders that want to collect at a quiescent
// moment of their own choosing, and for tests.
func (h *Heap) Collect() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	h.collectLocked("requested")
}

// collectLocked runs one full collection. The caller holds the heap mutex; nothing else may
// touch the heap until it returns.
//
// The young generation is collected by evacuation: its segments become from-space, every
// reachable young cell is copied out (to fresh young segments, or to the old generation once
// its survival count reaches the promotion threshold), and a forwarding word left in the old
// header redirects later visits. The old generation is collected in place: reachable cells are
// marked, and segments with no marked cells are released afterward. Every root slot and every
// traced reference field is rewritten through visit, so no stale address survives the cycle.
func (h *Heap) collectLocked(reason string) {
	start := time.Now()

	fromSpace := h.young.segments
	for _, s := range fromSpace {
		h.addSegment(s, genFromSpace)
	}
	h.young = generation{}

	promotedCells := 0
	promotedBytes := 0

	worklist := make([]unsafe.Pointer, 0, 256)

	var visit RootVisitor
	visit = func(root *unsafe.Pointer) {
		ref := *root
		if ref == nil {
			return
		}

		record, ok := h.lookup(ref)
		if !ok {
			// A traced reference outside the heap means the object graph is already corrupt;
			// continuing would spread the damage.
			panic(cerrors.Newf("traced reference %p does not belong to any heap segment", ref))
		}

		switch record.gen {
		case genFromSpace:
			if gccell.IsForwarded(ref) {
				*root = gccell.ForwardingTarget(ref)
				return
			}

			size := gccell.SizeOf(ref)
			survivals := gccell.SurvivalCount(ref) + 1

			promote := survivals >= h.promotionThreshold
			var target unsafe.Pointer
			if !promote {
				target = h.genAlloc(&h.young, genYoung, h.youngBudget, cellStride(size))
				// Survivors that overflow the young budget promote early rather than failing
				// the collection.
				promote = target == nil
			}
			if promote {
				target = h.genAlloc(&h.old, genOld, h.oldLimit, cellStride(size))
				if target == nil {
					// At the old generation's limit, survivors stay young rather than failing
					// the collection.
					target = h.genAlloc(&h.young, genYoung, h.youngBudget, cellStride(size))
					promote = false
				}
			}
			if target == nil {
				err := cerrors.Wrapf(ErrHeapExhausted, "no space to evacuate a %d byte %s cell", size, gccell.KindOf(ref))
				h.logger.LogAttrs(context.Background(), slog.LevelError,
					"collection could not evacuate a reachable cell; the heap cannot continue",
					slog.Any("error", err))
				panic(err)
			}

			copy(unsafe.Slice((*byte)(target), size), unsafe.Slice((*byte)(ref), size))
			gccell.SetSurvivalCount(target, survivals)
			// Freshly promoted cells carry a mark so this cycle's old-generation sweep keeps
			// them; young copies must start unmarked.
			gccell.SetMarked(target, promote)
			heaputils.WriteMagicValue(target, heaputils.AlignUp(size, gccell.CellAlign))

			if promote {
				promotedCells++
				promotedBytes += size
			} else {
				h.young.cellCount++
				h.young.cellBytes += size
			}

			gccell.Forward(ref, target)
			worklist = append(worklist, target)
			*root = target

		case genOld:
			if !gccell.Marked(ref) {
				gccell.SetMarked(ref, true)
				worklist = append(worklist, ref)
			}

		case genYoung:
			// Already an evacuated copy; nothing to do. Slots are visited once each, so this
			// only happens for references the embedder updated itself mid-enumeration.
		}
	}

	h.visitRoots(visit)

	for len(worklist) > 0 {
		cell := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		h.scanCell(cell, visit)
	}

	for _, s := range fromSpace {
		h.dropSegment(s)
		h.provider.Release(s)
	}

	h.sweepOld()
	h.collections++

	h.logger.LogAttrs(context.Background(), slog.LevelInfo, "collection complete",
		slog.String("reason", reason),
		slog.Duration("duration", time.Since(start)),
		slog.Int("youngSurvivors", h.young.cellCount),
		slog.Int("promotedCells", promotedCells),
		slog.Int("promotedBytes", promotedBytes),
		slog.Int("oldCells", h.old.cellCount),
		slog.Int("youngSegments", len(h.young.segments)),
		slog.Int("oldSegments", len(h.old.segments)))
}

// scanCell rewrites every reference field the cell's metadata describes. A kind with no
// descriptor at this point is unrecoverable: the cell was allocated somehow, but tracing it
// would silently drop its referents.
func (h *Heap) scanCell(cell unsafe.Pointer, visit RootVisitor) {
	md, err := gccell.Describe(gccell.KindOf(cell))
	if err != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelError,
			"cell with unregistered kind reached the tracer",
			slog.Any("error", err))
		panic(err)
	}

	for _, offset := range md.PointerOffsets {
		slot := (*unsafe.Pointer)(unsafe.Add(cell, offset))
		if *slot != nil {
			visit(slot)
		}
	}
}

// sweepOld releases old-generation segments with no marked cells, clears the mark bits of the
// survivors, rebuilds the live-cell counters, and advises the unused tail of each kept segment
// back to the OS. Dead cells inside a kept segment keep their bytes until the whole segment
// empties; old-generation reclamation is per segment, not per cell.
func (h *Heap) sweepOld() {
	kept := h.old.segments[:0]
	liveCells := 0
	liveBytes := 0

	for _, s := range h.old.segments {
		segmentLive := 0
		segmentBytes := 0
		for ptr := s.LowLim(); uintptr(ptr) < uintptr(s.Level()); {
			size := gccell.SizeOf(ptr)
			if gccell.Marked(ptr) {
				gccell.SetMarked(ptr, false)
				segmentLive++
				segmentBytes += size
			}
			ptr = unsafe.Add(ptr, cellStride(size))
		}

		if segmentLive == 0 {
			h.dropSegment(s)
			h.provider.Release(s)
			continue
		}

		kept = append(kept, s)
		liveCells += segmentLive
		liveBytes += segmentBytes
		_ = s.MarkUnused(s.Level(), s.HiLim())
	}

	h.old.segments = kept
	h.old.cellCount = liveCells
	h.old.cellBytes = liveBytes
}
