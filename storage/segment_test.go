package storage

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

const testSegmentSize = 1 << 20

func testProvider(t *testing.T) *BufferProvider {
	t.Helper()

	provider, err := NewBufferProvider(testSegmentSize)
	require.NoError(t, err)
	return provider
}

func TestSegmentStart(t *testing.T) {
	provider := testProvider(t)
	segment, err := provider.Allocate()
	require.NoError(t, err)
	defer provider.Release(segment)

	lo := segment.LowLim()
	hi := segment.HiLim()

	require.Equal(t, lo, Start(lo, testSegmentSize))
	require.Equal(t, lo, Start(unsafe.Add(lo, segment.Size()/2), testSegmentSize))
	require.Equal(t, lo, Start(unsafe.Add(hi, -1), testSegmentSize))

	// hi is the first address in the segment following this one (if such a segment existed).
	require.Equal(t, hi, Start(hi, testSegmentSize))
}

func TestSegmentEnd(t *testing.T) {
	provider := testProvider(t)
	segment, err := provider.Allocate()
	require.NoError(t, err)
	defer provider.Release(segment)

	lo := segment.LowLim()
	hi := segment.HiLim()

	require.Equal(t, hi, End(lo, testSegmentSize))
	require.Equal(t, hi, End(unsafe.Add(lo, segment.Size()/2), testSegmentSize))
	require.Equal(t, hi, End(unsafe.Add(hi, -1), testSegmentSize))

	require.Equal(t, unsafe.Add(hi, testSegmentSize), End(hi, testSegmentSize))
}

func TestSegmentOffset(t *testing.T) {
	provider := testProvider(t)
	segment, err := provider.Allocate()
	require.NoError(t, err)
	defer provider.Release(segment)

	lo := segment.LowLim()
	hi := segment.HiLim()
	size := segment.Size()

	require.Equal(t, 0, Offset(lo, testSegmentSize))
	require.Equal(t, size/2, Offset(unsafe.Add(lo, size/2), testSegmentSize))
	require.Equal(t, size-1, Offset(unsafe.Add(hi, -1), testSegmentSize))

	require.Equal(t, 0, Offset(hi, testSegmentSize))
}

func TestSegmentContainment(t *testing.T) {
	provider := testProvider(t)
	segment, err := provider.Allocate()
	require.NoError(t, err)
	defer provider.Release(segment)

	// Boundaries
	require.False(t, segment.Contains(unsafe.Add(segment.LowLim(), -1)))
	require.True(t, segment.Contains(segment.LowLim()))
	require.True(t, segment.Contains(unsafe.Add(segment.HiLim(), -1)))
	require.False(t, segment.Contains(segment.HiLim()))

	// Interior
	require.True(t, segment.Contains(unsafe.Add(segment.LowLim(), segment.Size()/2)))
}

func TestSegmentBumpAllocation(t *testing.T) {
	provider := testProvider(t)
	segment, err := provider.Allocate()
	require.NoError(t, err)
	defer provider.Release(segment)

	first := segment.Alloc(24)
	require.NotNil(t, first)
	require.Equal(t, segment.LowLim(), first)
	// 24 rounds up to 32
	require.Equal(t, 32, segment.Used())

	second := segment.Alloc(8)
	require.NotNil(t, second)
	require.Equal(t, unsafe.Add(segment.LowLim(), 32), second)
	require.Equal(t, 40, segment.Used())
	require.Equal(t, testSegmentSize-40, segment.Available())

	// The remainder of the segment is one allocation away from exhaustion.
	require.NotNil(t, segment.Alloc(segment.Available()))
	require.Nil(t, segment.Alloc(1))
}

func TestSegmentAllocZeroesReusedMemory(t *testing.T) {
	provider := testProvider(t)
	segment, err := provider.Allocate()
	require.NoError(t, err)
	defer provider.Release(segment)

	mem := segment.Alloc(64)
	require.NotNil(t, mem)
	for i := 0; i < 64; i++ {
		*(*byte)(unsafe.Add(mem, i)) = 0xAB
	}

	segment.Reset()
	require.Equal(t, 0, segment.Used())

	mem = segment.Alloc(64)
	require.NotNil(t, mem)
	for i := 0; i < 64; i++ {
		require.Equal(t, byte(0), *(*byte)(unsafe.Add(mem, i)))
	}
}

func TestSegmentMarkUnusedRejectsOutsideRange(t *testing.T) {
	provider := testProvider(t)
	segment, err := provider.Allocate()
	require.NoError(t, err)
	defer provider.Release(segment)

	err = segment.MarkUnused(segment.LowLim(), unsafe.Add(segment.HiLim(), 1))
	require.Error(t, err)

	err = segment.MarkUnused(unsafe.Add(segment.LowLim(), -1), segment.HiLim())
	require.Error(t, err)

	// Sub-page ranges shrink to nothing and are not an error.
	require.NoError(t, segment.MarkUnused(segment.LowLim(), unsafe.Add(segment.LowLim(), 1)))
}

func TestSegmentMarkUnusedEmptyTail(t *testing.T) {
	provider := testProvider(t)
	segment, err := provider.Allocate()
	require.NoError(t, err)
	defer provider.Release(segment)

	// A completely full segment has an empty tail starting at HiLim.
	require.NotNil(t, segment.Alloc(segment.Size()))
	require.Equal(t, segment.HiLim(), segment.Level())
	require.NoError(t, segment.MarkUnused(segment.Level(), segment.HiLim()))
}

func TestBufferProviderAlignment(t *testing.T) {
	provider := testProvider(t)

	var segments []*Segment
	for i := 0; i < 8; i++ {
		segment, err := provider.Allocate()
		require.NoError(t, err)
		require.Equal(t, uintptr(0), uintptr(segment.LowLim())%uintptr(testSegmentSize))
		segments = append(segments, segment)
	}

	for _, segment := range segments {
		provider.Release(segment)
	}
	require.Equal(t, 0, provider.Stats().SegmentCount)
}

func TestBufferProviderStats(t *testing.T) {
	provider := testProvider(t)

	first, err := provider.Allocate()
	require.NoError(t, err)
	second, err := provider.Allocate()
	require.NoError(t, err)

	stats := provider.Stats()
	require.Equal(t, 2, stats.SegmentCount)
	require.Equal(t, 2*testSegmentSize, stats.SegmentBytes)
	require.Equal(t, 2*testSegmentSize, stats.PeakSegmentBytes)

	provider.Release(first)
	stats = provider.Stats()
	require.Equal(t, 1, stats.SegmentCount)
	require.Equal(t, testSegmentSize, stats.SegmentBytes)
	require.Equal(t, 2*testSegmentSize, stats.PeakSegmentBytes)

	provider.Release(second)
}

func TestProviderRejectsBadSegmentSize(t *testing.T) {
	badSizes := map[string]int{
		"Zero":        0,
		"NotPow2":     testSegmentSize + 1,
		"BelowAlign":  4,
		"NegativeIsh": 3,
	}

	for name, size := range badSizes {
		t.Run(name, func(t *testing.T) {
			_, err := NewBufferProvider(size)
			require.Error(t, err)
		})
	}
}
