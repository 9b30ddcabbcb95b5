//go:build !linux

package storage

import "unsafe"

// RegionFootprint returns the number of resident physical pages backing [start, end). The range
// is shrunk inward to page boundaries. It exists so tests can verify page-accounting round
// trips; on platforms without mincore it returns ErrFootprintUnsupported.
func RegionFootprint(start, end unsafe.Pointer) (int, error) {
	return 0, ErrFootprintUnsupported
}
