package storage

import (
	"github.com/pkg/errors"

	"github.com/quartzvm/heap/heaputils"
)

// ErrProviderExhausted is returned from StorageProvider.Allocate when the provider's own ceiling
// has been reached. It matches heaputils.OutOfMemoryError, so callers above the provider see it
// as an ordinary recoverable out-of-memory condition.
var ErrProviderExhausted error = errors.Wrap(heaputils.OutOfMemoryError, "storage provider ceiling reached")

// ErrFootprintUnsupported is returned from RegionFootprint on platforms without resident-page
// accounting.
var ErrFootprintUnsupported error = errors.New("resident footprint accounting is not supported on this platform")

// Stats is a read-only snapshot of a provider's outstanding reservations. It is introspection
// for diagnostics and telemetry, not a control surface.
type Stats struct {
	// SegmentCount is the number of segments currently allocated and not yet released
	SegmentCount int
	// SegmentBytes is the number of bytes reserved by outstanding segments
	SegmentBytes int
	// PeakSegmentBytes is the high-water mark of SegmentBytes over the provider's lifetime
	PeakSegmentBytes int
}

// StorageProvider creates and destroys the fixed-size, fixed-alignment segments that a heap
// grows by. Implementations abstract the operating system's virtual memory primitives.
type StorageProvider interface {
	// Allocate returns a new segment whose base address is aligned to SegmentSize. Allocation
	// failure is a recoverable condition: the returned error matches heaputils.OutOfMemoryError
	// and the caller is expected to attempt a collection before treating it as terminal.
	Allocate() (*Segment, error)
	// Release returns a segment to the provider, destroying it. The segment must have been
	// returned from Allocate on this provider and must not be used afterward.
	Release(segment *Segment)
	// SegmentSize returns the fixed size in bytes of every segment this provider creates. It is
	// always a power of two, so the segment containing an address is recoverable by masking the
	// address's low bits.
	SegmentSize() int
	// Stats returns a snapshot of the provider's outstanding reservations.
	Stats() Stats
}

func (s *Stats) recordAllocate(bytes int) {
	s.SegmentCount++
	s.SegmentBytes += bytes
	if s.SegmentBytes > s.PeakSegmentBytes {
		s.PeakSegmentBytes = s.SegmentBytes
	}
}

func (s *Stats) recordRelease(bytes int) {
	s.SegmentCount--
	s.SegmentBytes -= bytes
}
