//go:build unix

package storage

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/quartzvm/heap/heaputils"
)

// mapAligned obtains a size-aligned mapping of size bytes by over-requesting 2*size and trimming
// to the aligned sub-range. The excess on either side is unmapped before returning, so only
// [base, base+size) stays reserved.
func mapAligned(size int) (unsafe.Pointer, error) {
	raw, err := unix.MmapPtr(-1, 0, nil, uintptr(2*size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, cerrors.Mark(cerrors.Wrapf(err, "anonymous mapping of %d bytes failed", 2*size), heaputils.OutOfMemoryError)
	}

	base := heaputils.AlignPointerUp(raw, uint(size))

	if prefix := uintptr(base) - uintptr(raw); prefix > 0 {
		_ = unix.MunmapPtr(raw, prefix)
	}
	end := unsafe.Add(base, size)
	if suffix := uintptr(raw) + uintptr(2*size) - uintptr(end); suffix > 0 {
		_ = unix.MunmapPtr(end, suffix)
	}

	return base, nil
}

func unmapRange(base unsafe.Pointer, size int) {
	_ = unix.MunmapPtr(base, uintptr(size))
}
