//go:build unix

package storage

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// adviseUnused tells the OS the physical pages backing [start, start+length) may be reclaimed.
// start and length must be page-aligned. The address range stays reserved and reads as zero
// after the advice takes effect.
func adviseUnused(start unsafe.Pointer, length int) error {
	err := unix.Madvise(unsafe.Slice((*byte)(start), length), unix.MADV_DONTNEED)
	if err != nil {
		return cerrors.Wrapf(err, "madvise of %d bytes at %p failed", length, start)
	}
	return nil
}
