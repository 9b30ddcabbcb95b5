package heaputils

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// AlignPointerUp rounds ptr up to the next multiple of alignment. alignment must be a power of two.
func AlignPointerUp(ptr unsafe.Pointer, alignment uint) unsafe.Pointer {
	raw := uintptr(ptr)
	aligned := (raw + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)
	return unsafe.Add(ptr, aligned-raw)
}

// AlignPointerDown rounds ptr down to the previous multiple of alignment. alignment must be a
// power of two.
func AlignPointerDown(ptr unsafe.Pointer, alignment uint) unsafe.Pointer {
	raw := uintptr(ptr)
	return unsafe.Add(ptr, raw&^(uintptr(alignment)-1)-raw)
}

// IsPointerAligned returns whether ptr is a multiple of alignment. alignment must be a power
// of two.
func IsPointerAligned(ptr unsafe.Pointer, alignment uint) bool {
	return uintptr(ptr)&(uintptr(alignment)-1) == 0
}
