package gccell

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
)

const (
	// HeaderSize is the number of bytes at the start of every cell occupied by the header. The
	// registered pointer offsets of a kind must all be at or after this offset.
	HeaderSize = 16
	// CellAlign is the alignment of every cell and of every reference field inside a cell.
	CellAlign = 8
)

// The header is two machine words. The meta word packs the kind tag with collector state; the
// second word holds the cell's size in bytes, or the relocation target while the cell is
// forwarded. Kind and size are set exactly once by Construct; only the collector touches the
// remaining bits.
type header struct {
	meta      uint64
	sizeOrFwd uint64
}

const (
	kindMask      uint64 = 0xFFFFFFFF
	flagMarked    uint64 = 1 << 32
	flagForwarded uint64 = 1 << 33
	flagVariable  uint64 = 1 << 34

	survivalShift        = 40
	survivalMask  uint64 = 0xFF << survivalShift
)

func hdr(cell unsafe.Pointer) *header {
	return (*header)(cell)
}

// Construct initializes a cell header in caller-provided raw memory. It does not allocate and
// does not root the new cell: from this point on, reachability is solely a function of being
// referenced from a root or from an already-reachable cell's described fields.
//
// The kind must have been registered. For fixed-size kinds, size must equal the registered
// size; for variable-size kinds the per-instance size is recorded in the header, since the
// shared per-kind metadata cannot encode it. Violations are programming errors and panic.
func Construct(mem unsafe.Pointer, kind CellKind, size int) unsafe.Pointer {
	md, err := Describe(kind)
	if err != nil {
		panic(err)
	}
	if size < HeaderSize {
		panic(cerrors.Newf("cell size %d for kind %s is smaller than the header", size, kind))
	}
	if md.FixedSize && size != md.CellSize {
		panic(cerrors.Newf("kind %s is fixed at %d bytes but was constructed with %d", kind, md.CellSize, size))
	}

	h := hdr(mem)
	h.meta = uint64(kind)
	if !md.FixedSize {
		h.meta |= flagVariable
	}
	h.sizeOrFwd = uint64(size)
	return mem
}

// KindOf returns the kind tag recorded in the cell's header.
func KindOf(cell unsafe.Pointer) CellKind {
	return CellKind(hdr(cell).meta & kindMask)
}

// SizeOf returns the cell's true in-memory footprint in bytes. It must not be called on a
// forwarded cell, whose size word has been overwritten with the relocation target.
func SizeOf(cell unsafe.Pointer) int {
	h := hdr(cell)
	if h.meta&flagForwarded != 0 {
		panic(cerrors.Newf("SizeOf called on a forwarded cell of kind %s", KindOf(cell)))
	}
	return int(h.sizeOrFwd)
}

// HasVariableSize returns whether the cell was constructed under a variable-size kind.
func HasVariableSize(cell unsafe.Pointer) bool {
	return hdr(cell).meta&flagVariable != 0
}

// Marked returns the collector's mark bit. Outside a collection the bit is always clear.
func Marked(cell unsafe.Pointer) bool {
	return hdr(cell).meta&flagMarked != 0
}

// SetMarked sets or clears the collector's mark bit.
func SetMarked(cell unsafe.Pointer, marked bool) {
	if marked {
		hdr(cell).meta |= flagMarked
	} else {
		hdr(cell).meta &^= flagMarked
	}
}

// IsForwarded returns whether the cell has been relocated during the current collection.
func IsForwarded(cell unsafe.Pointer) bool {
	return hdr(cell).meta&flagForwarded != 0
}

// Forward records target as the cell's relocation address, repurposing the size word. The cell's
// payload is dead once forwarded; only the header remains meaningful, and only until the
// containing segment is released at the end of the collection.
func Forward(cell, target unsafe.Pointer) {
	h := hdr(cell)
	h.meta |= flagForwarded
	h.sizeOrFwd = uint64(uintptr(target))
}

// ForwardingTarget returns the relocation address recorded by Forward.
func ForwardingTarget(cell unsafe.Pointer) unsafe.Pointer {
	h := hdr(cell)
	if h.meta&flagForwarded == 0 {
		panic(cerrors.Newf("ForwardingTarget called on a cell of kind %s that was not forwarded", KindOf(cell)))
	}
	return unsafe.Pointer(uintptr(h.sizeOrFwd))
}

// SurvivalCount returns how many young-generation collections the cell has survived.
func SurvivalCount(cell unsafe.Pointer) int {
	return int((hdr(cell).meta & survivalMask) >> survivalShift)
}

// SetSurvivalCount records the cell's survival count, saturating at 255.
func SetSurvivalCount(cell unsafe.Pointer, count int) {
	if count > 255 {
		count = 255
	}
	h := hdr(cell)
	h.meta = (h.meta &^ survivalMask) | uint64(count)<<survivalShift
}
