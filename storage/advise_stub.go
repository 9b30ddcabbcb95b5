//go:build !unix

package storage

import "unsafe"

// adviseUnused is advisory, so platforms without madvise simply keep the pages resident.
func adviseUnused(start unsafe.Pointer, length int) error {
	return nil
}
