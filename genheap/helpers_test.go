package genheap

import (
	"io"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/quartzvm/heap/gccell"
	"github.com/quartzvm/heap/storage"
)

// Test cell kinds: a pair holding two references, a leaf holding one integer, and an
// uninitialized variable-size cell for filling segments.
const (
	testKindPair  = gccell.CellKind(0x201)
	testKindLeaf  = gccell.CellKind(0x202)
	testKindEmpty = gccell.CellKind(0x203)
)

const (
	pairSize = gccell.HeaderSize + 16
	leafSize = gccell.HeaderSize + 8

	pairLeftOffset  = gccell.HeaderSize
	pairRightOffset = gccell.HeaderSize + 8
	leafValueOffset = gccell.HeaderSize
)

func init() {
	gccell.RegisterKind(testKindPair, "TestPair", pairSize, func(b *gccell.Builder) {
		b.AddPointer(pairLeftOffset)
		b.AddPointer(pairRightOffset)
	})
	gccell.RegisterKind(testKindLeaf, "TestLeaf", leafSize, nil)
	gccell.RegisterKind(testKindEmpty, "TestEmpty", gccell.HeaderSize, func(b *gccell.Builder) {
		b.SetVariableSize()
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard))
}

func newTestHeap(t *testing.T, segmentSize int, options CreateOptions) (*Heap, *storage.BufferProvider) {
	t.Helper()

	provider, err := storage.NewBufferProvider(segmentSize)
	require.NoError(t, err)

	heap, err := New(testLogger(), provider, options)
	require.NoError(t, err)
	return heap, provider
}

func allocLeaf(t *testing.T, heap *Heap, value uint64) unsafe.Pointer {
	t.Helper()

	cell, err := heap.Allocate(testKindLeaf, leafSize)
	require.NoError(t, err)
	setLeafValue(cell, value)
	return cell
}

func leafValue(cell unsafe.Pointer) uint64 {
	return *(*uint64)(unsafe.Add(cell, leafValueOffset))
}

func setLeafValue(cell unsafe.Pointer, value uint64) {
	*(*uint64)(unsafe.Add(cell, leafValueOffset)) = value
}

func pairLeft(cell unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Add(cell, pairLeftOffset))
}

func pairRight(cell unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Add(cell, pairRightOffset))
}

func setPairLeft(cell, target unsafe.Pointer) {
	*(*unsafe.Pointer)(unsafe.Add(cell, pairLeftOffset)) = target
}

func setPairRight(cell, target unsafe.Pointer) {
	*(*unsafe.Pointer)(unsafe.Add(cell, pairRightOffset)) = target
}
