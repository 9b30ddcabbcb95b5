package storage

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"

	"github.com/quartzvm/heap/heaputils"
)

// BufferProvider allocates segments out of ordinary Go-heap buffers instead of raw mappings. It
// works on every platform and needs no OS support, at the cost of reserving up to twice the
// segment size per segment to satisfy the alignment invariant. MarkUnused on its segments is a
// no-op on platforms without madvise.
type BufferProvider struct {
	segmentSize int
	stats       Stats

	// buffers pins the backing array of each outstanding segment, keyed by the segment base.
	// Without this the Go collector would reclaim the buffer out from under the raw pointers
	// the segment hands out.
	buffers map[uintptr][]byte
}

var _ StorageProvider = (*BufferProvider)(nil)

// NewBufferProvider creates a provider whose segments are segmentSize bytes, carved out of
// Go-allocated buffers. segmentSize must be a power of two.
func NewBufferProvider(segmentSize int) (*BufferProvider, error) {
	err := heaputils.CheckPow2(segmentSize, "segmentSize")
	if err != nil {
		return nil, err
	}
	if segmentSize < BumpAlign {
		return nil, cerrors.Newf("segmentSize %d is smaller than the minimum alignment %d", segmentSize, BumpAlign)
	}

	return &BufferProvider{
		segmentSize: segmentSize,
		buffers:     make(map[uintptr][]byte),
	}, nil
}

func (p *BufferProvider) Allocate() (*Segment, error) {
	// Over-allocate so an aligned sub-range always exists, then keep the whole buffer pinned.
	buf := make([]byte, 2*p.segmentSize)
	base := heaputils.AlignPointerUp(unsafe.Pointer(unsafe.SliceData(buf)), uint(p.segmentSize))

	p.buffers[uintptr(base)] = buf
	p.stats.recordAllocate(p.segmentSize)
	return newSegment(base, p.segmentSize), nil
}

func (p *BufferProvider) Release(segment *Segment) {
	base := uintptr(segment.LowLim())
	if _, ok := p.buffers[base]; !ok {
		panic(cerrors.Newf("segment at %#x was not allocated by this provider", base))
	}

	delete(p.buffers, base)
	p.stats.recordRelease(segment.Size())
}

func (p *BufferProvider) SegmentSize() int { return p.segmentSize }

func (p *BufferProvider) Stats() Stats { return p.stats }
