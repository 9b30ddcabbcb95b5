//go:build !unix

package storage

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
)

func mapAligned(size int) (unsafe.Pointer, error) {
	return nil, cerrors.New("aligned virtual-memory mappings are not supported on this platform; use NewBufferProvider")
}

func unmapRange(base unsafe.Pointer, size int) {
}
