package genheap

import (
	"context"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/quartzvm/heap/gccell"
	"github.com/quartzvm/heap/heaputils"
)

// Allocate reserves size bytes in the young generation, initializes the cell header for kind in
// place, and returns the cell. The payload past the header is zeroed; the object model
// constructs its fields in place. The returned address is only stable until the next potential
// collection point: callers keeping the cell across one must hold it through a Handle.
//
// On young-generation exhaustion a collection runs and the request is retried once; a second
// failure returns an error matching ErrHeapExhausted. Allocating a kind with no registered
// metadata is a programming error and panics.
func (h *Heap) Allocate(kind gccell.CellKind, size int) (unsafe.Pointer, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	if err := h.checkRequest(kind, size); err != nil {
		return nil, err
	}

	mem := h.genAlloc(&h.young, genYoung, h.youngBudget, cellStride(size))
	if mem == nil {
		h.collectLocked("young generation exhausted")
		mem = h.genAlloc(&h.young, genYoung, h.youngBudget, cellStride(size))
	}
	if mem == nil {
		return nil, h.exhausted(kind, size)
	}

	return h.finishAlloc(&h.young, mem, kind, size), nil
}

// AllocateLongLived reserves size bytes directly in the old generation, bypassing the young
// generation entirely. It is for cells known at construction time to be long-lived, such as
// runtime-internal singletons, and avoids the cost of promoting them later. The header and
// failure behavior match Allocate.
func (h *Heap) AllocateLongLived(kind gccell.CellKind, size int) (unsafe.Pointer, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	if err := h.checkRequest(kind, size); err != nil {
		return nil, err
	}

	mem := h.genAlloc(&h.old, genOld, h.oldLimit, cellStride(size))
	if mem == nil {
		h.collectLocked("old generation exhausted")
		mem = h.genAlloc(&h.old, genOld, h.oldLimit, cellStride(size))
	}
	if mem == nil {
		return nil, h.exhausted(kind, size)
	}

	return h.finishAlloc(&h.old, mem, kind, size), nil
}

// checkRequest validates an allocation request up front, before any segment space is consumed.
// A missing descriptor panics: letting it surface later, during a trace, would mean the
// collector had already under-traced the cell.
func (h *Heap) checkRequest(kind gccell.CellKind, size int) error {
	md, err := gccell.Describe(kind)
	if err != nil {
		panic(err)
	}
	if md.FixedSize && size != md.CellSize {
		panic(cerrors.Newf("kind %s is fixed at %d bytes but was requested with %d", kind, md.CellSize, size))
	}
	if size < md.CellSize {
		panic(cerrors.Newf("kind %s requires at least %d bytes but was requested with %d", kind, md.CellSize, size))
	}

	if cellStride(size) > h.segmentSize {
		return cerrors.Wrapf(ErrCellTooLarge, "%d bytes requested of a %d byte segment", size, h.segmentSize)
	}
	return nil
}

func (h *Heap) finishAlloc(gen *generation, mem unsafe.Pointer, kind gccell.CellKind, size int) unsafe.Pointer {
	cell := gccell.Construct(mem, kind, size)
	heaputils.WriteMagicValue(cell, heaputils.AlignUp(size, gccell.CellAlign))

	gen.cellCount++
	gen.cellBytes += size
	return cell
}

func (h *Heap) exhausted(kind gccell.CellKind, size int) error {
	err := cerrors.Wrapf(ErrHeapExhausted, "allocating %d bytes for kind %s", size, kind)
	h.logger.LogAttrs(context.Background(), slog.LevelError,
		"allocation failed after a full collection",
		slog.String("kind", kind.String()),
		slog.Int("size", size),
		slog.Int("youngBudget", h.youngBudget),
		slog.Int("oldLimit", h.oldLimit))
	return err
}

// genAlloc bump-allocates stride bytes from the generation's active segment, acquiring a new
// segment from the provider when the active one is exhausted and the generation's byte limit
// permits. limit 0 means limited only by the provider. Returns nil when no space can be
// obtained; the caller decides whether that triggers a collection or a failure.
func (h *Heap) genAlloc(gen *generation, tag genTag, limit int, stride int) unsafe.Pointer {
	if active := gen.active(); active != nil {
		if ptr := active.Alloc(stride); ptr != nil {
			return ptr
		}
	}

	if limit != 0 && gen.segmentBytes(h.segmentSize)+h.segmentSize > limit {
		return nil
	}

	segment, err := h.provider.Allocate()
	if err != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelDebug,
			"storage provider refused a segment",
			slog.Any("error", err))
		return nil
	}

	gen.segments = append(gen.segments, segment)
	h.addSegment(segment, tag)
	return segment.Alloc(stride)
}
