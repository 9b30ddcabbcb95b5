package storage

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"

	"github.com/quartzvm/heap/heaputils"
)

// BumpAlign is the alignment of every address handed out by Segment.Alloc.
const BumpAlign = 8

// Segment is a fixed-size block of virtual memory whose base address is aligned to its size.
// It is the unit of heap growth. While live it is exclusively owned by one generation, which
// bump-allocates from it through Alloc.
//
// Because the size is a power of two and the base is size-aligned, every address inside
// [LowLim, HiLim) maps back to its owning segment by masking low bits; see Start.
type Segment struct {
	base unsafe.Pointer
	size int

	// level is the offset of the next free byte; bump allocation only moves it forward, and
	// Reset rewinds it to zero.
	level int
}

func newSegment(base unsafe.Pointer, size int) *Segment {
	heaputils.DebugCheckPow2(size, "segment size")
	if !heaputils.IsPointerAligned(base, uint(size)) {
		panic(cerrors.Newf("segment base %p is not aligned to the segment size %d", base, size))
	}

	return &Segment{
		base: base,
		size: size,
	}
}

// Start returns the base address of the segment that would contain ptr, assuming all segments
// are segmentSize bytes and aligned to segmentSize. For the first address past a segment's end
// this returns the next segment's base, not the containing one.
func Start(ptr unsafe.Pointer, segmentSize int) unsafe.Pointer {
	return heaputils.AlignPointerDown(ptr, uint(segmentSize))
}

// End returns the first address after the segment that would contain ptr, under the same
// assumptions as Start.
func End(ptr unsafe.Pointer, segmentSize int) unsafe.Pointer {
	return unsafe.Add(Start(ptr, segmentSize), segmentSize)
}

// Offset returns ptr's offset from the base of the segment that would contain it, under the
// same assumptions as Start.
func Offset(ptr unsafe.Pointer, segmentSize int) int {
	return int(uintptr(ptr) & (uintptr(segmentSize) - 1))
}

// LowLim returns the first usable address in the segment.
func (s *Segment) LowLim() unsafe.Pointer { return s.base }

// HiLim returns the first address after the segment. It is not a usable address within the
// segment.
func (s *Segment) HiLim() unsafe.Pointer { return unsafe.Add(s.base, s.size) }

// Size returns the segment's size in bytes.
func (s *Segment) Size() int { return s.size }

// Level returns the current bump pointer: the address the next allocation would return.
func (s *Segment) Level() unsafe.Pointer { return unsafe.Add(s.base, s.level) }

// Used returns the number of bytes consumed by bump allocation so far.
func (s *Segment) Used() int { return s.level }

// Available returns the number of bytes remaining for bump allocation.
func (s *Segment) Available() int { return s.size - s.level }

// Contains returns whether ptr falls inside [LowLim, HiLim).
func (s *Segment) Contains(ptr unsafe.Pointer) bool {
	return uintptr(ptr) >= uintptr(s.base) && uintptr(ptr) < uintptr(s.base)+uintptr(s.size)
}

// Alloc reserves size bytes (rounded up to BumpAlign) from the segment and returns the start of
// the zeroed reservation, or nil if the bump pointer would exceed the segment's limit. The
// segment never hands the same byte out twice until Reset is called.
func (s *Segment) Alloc(size int) unsafe.Pointer {
	size = heaputils.AlignUp(size, BumpAlign)
	if size > s.size-s.level {
		return nil
	}

	ptr := unsafe.Add(s.base, s.level)
	s.level += size

	// Segments are reused after Reset, so the reservation must be zeroed here rather than
	// relying on fresh mappings. The loop compiles to a memclr intrinsic.
	mem := unsafe.Slice((*byte)(ptr), size)
	for i := range mem {
		mem[i] = 0
	}

	return ptr
}

// Reset rewinds the bump pointer, abandoning every allocation made from the segment. The
// backing pages are left in place; call MarkUnused to shrink the resident footprint as well.
func (s *Segment) Reset() {
	s.level = 0
}

// MarkUnused advises the operating system that the physical pages backing [start, end) may be
// reclaimed, without releasing the address range itself. The range must lie inside the segment
// and is shrunk inward to page boundaries; advising is a best-effort optimization and an empty
// or zero-page range is not an error.
func (s *Segment) MarkUnused(start, end unsafe.Pointer) error {
	if uintptr(start) < uintptr(s.base) || uintptr(start) > uintptr(end) || uintptr(end) > uintptr(s.HiLim()) {
		return cerrors.Newf("range [%p, %p) is not inside segment [%p, %p)", start, end, s.LowLim(), s.HiLim())
	}

	pageSize := uint(osPageSize())
	start = heaputils.AlignPointerUp(start, pageSize)
	end = heaputils.AlignPointerDown(end, pageSize)
	if uintptr(start) >= uintptr(end) {
		return nil
	}

	return adviseUnused(start, int(uintptr(end)-uintptr(start)))
}
