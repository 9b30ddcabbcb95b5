//go:build linux

package storage

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// RegionFootprint returns the number of resident physical pages backing [start, end). The range
// is shrunk inward to page boundaries. It exists so tests can verify page-accounting round
// trips; on platforms without mincore it returns ErrFootprintUnsupported.
func RegionFootprint(start, end unsafe.Pointer) (int, error) {
	pageSize := uintptr(osPageSize())
	lo := (uintptr(start) + pageSize - 1) &^ (pageSize - 1)
	hi := uintptr(end) &^ (pageSize - 1)
	if lo >= hi {
		return 0, nil
	}

	length := hi - lo
	vec := make([]byte, length/pageSize)
	if _, _, errno := unix.Syscall(unix.SYS_MINCORE, lo, length, uintptr(unsafe.Pointer(&vec[0]))); errno != 0 {
		return 0, cerrors.Wrapf(errno, "mincore of %d bytes at %#x failed", length, lo)
	}

	resident := 0
	for _, v := range vec {
		if v&1 != 0 {
			resident++
		}
	}
	return resident, nil
}
