package storage

import (
	"os"

	cerrors "github.com/cockroachdb/errors"

	"github.com/quartzvm/heap/heaputils"
)

func osPageSize() int {
	return os.Getpagesize()
}

// MmapProvider allocates segments from anonymous virtual-memory mappings. Because the OS cannot
// be asked for an aligned mapping directly, each segment is carved out of a mapping of twice the
// segment size: the aligned sub-range is kept and the slop on either side is unmapped
// immediately.
type MmapProvider struct {
	segmentSize int
	stats       Stats
}

var _ StorageProvider = (*MmapProvider)(nil)

// NewMmapProvider creates a provider whose segments are segmentSize bytes. segmentSize must be a
// power of two and a multiple of the OS page size.
func NewMmapProvider(segmentSize int) (*MmapProvider, error) {
	err := heaputils.CheckPow2(segmentSize, "segmentSize")
	if err != nil {
		return nil, err
	}
	if segmentSize < osPageSize() {
		return nil, cerrors.Newf("segmentSize %d is smaller than the OS page size %d", segmentSize, osPageSize())
	}

	return &MmapProvider{segmentSize: segmentSize}, nil
}

func (p *MmapProvider) Allocate() (*Segment, error) {
	base, err := mapAligned(p.segmentSize)
	if err != nil {
		return nil, err
	}

	p.stats.recordAllocate(p.segmentSize)
	return newSegment(base, p.segmentSize), nil
}

func (p *MmapProvider) Release(segment *Segment) {
	unmapRange(segment.LowLim(), segment.Size())
	p.stats.recordRelease(segment.Size())
}

func (p *MmapProvider) SegmentSize() int { return p.segmentSize }

func (p *MmapProvider) Stats() Stats { return p.stats }
