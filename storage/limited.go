package storage

import cerrors "github.com/cockroachdb/errors"

// LimitedStorageProvider wraps another provider and enforces a maximum number of outstanding
// bytes. Once the ceiling is reached, Allocate fails deterministically with
// ErrProviderExhausted until enough segments are released. It exists to make out-of-memory
// paths reproducible in tests.
type LimitedStorageProvider struct {
	delegate StorageProvider
	limit    int

	outstanding int
}

var _ StorageProvider = (*LimitedStorageProvider)(nil)

// NewLimitedStorageProvider wraps delegate with a ceiling of limit outstanding bytes. A limit
// of 0 fails every allocation.
func NewLimitedStorageProvider(delegate StorageProvider, limit int) *LimitedStorageProvider {
	return &LimitedStorageProvider{
		delegate: delegate,
		limit:    limit,
	}
}

func (p *LimitedStorageProvider) Allocate() (*Segment, error) {
	segmentSize := p.delegate.SegmentSize()
	if p.outstanding+segmentSize > p.limit {
		return nil, cerrors.Wrapf(ErrProviderExhausted,
			"%d bytes outstanding of a %d byte ceiling", p.outstanding, p.limit)
	}

	segment, err := p.delegate.Allocate()
	if err != nil {
		return nil, err
	}

	p.outstanding += segmentSize
	return segment, nil
}

func (p *LimitedStorageProvider) Release(segment *Segment) {
	p.outstanding -= segment.Size()
	p.delegate.Release(segment)
}

func (p *LimitedStorageProvider) SegmentSize() int { return p.delegate.SegmentSize() }

func (p *LimitedStorageProvider) Stats() Stats { return p.delegate.Stats() }
