package genheap

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"

	"github.com/quartzvm/heap/storage"
)

const (
	// defaultYoungGenSegments is the young-generation budget, in segments, used when
	// CreateOptions.YoungGenBytes is 0.
	defaultYoungGenSegments = 4
	// defaultPromotionThreshold is the number of young-generation collections a cell must
	// survive before being promoted, used when CreateOptions.PromotionThreshold is 0.
	defaultPromotionThreshold = 2
)

// RootVisitor is handed to the GlobalRoots callback during root enumeration. The callback must
// invoke it once for every runtime-internal singleton reference that is not reachable through
// any open scope; the collector may rewrite the referenced slot in place.
type RootVisitor func(root *unsafe.Pointer)

// CreateOptions contains optional settings when creating a heap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags

	// YoungGenBytes bounds the size of the young generation: once bump allocation has consumed
	// this many bytes of segments, the next allocation triggers a collection instead of
	// acquiring another segment. It is rounded up to a whole number of segments. 0 selects a
	// default of a few segments.
	YoungGenBytes int

	// OldGenBytes bounds the total size of the old generation before allocation into it becomes
	// a fatal failure. 0 means the old generation is limited only by the storage provider.
	OldGenBytes int

	// PromotionThreshold is the number of young-generation collections a cell must survive
	// before being copied into the old generation. Lower values reduce copy cost per collection
	// at the price of faster old-generation growth. 0 selects the default.
	PromotionThreshold int

	// GlobalRoots is an optional callback enumerating runtime-internal singleton references
	// that must be treated as roots but live outside every scope (a global object, a predefined
	// string table). It is called once per collection.
	GlobalRoots func(visit RootVisitor)
}

// New creates a heap that allocates segments from the provided StorageProvider. Multiple heaps
// over distinct providers are fully independent; all state lives on the returned Heap, and
// Destroy releases every segment back to the provider.
//
// logger - Destination for collection and failure diagnostics. nil falls back to slog.Default()
//
// provider - Source of storage segments. The segment size must be a power of two large enough
// to hold every cell the consumer will allocate
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, provider storage.StorageProvider, options CreateOptions) (*Heap, error) {
	if provider == nil {
		return nil, cerrors.New("a heap requires a storage provider")
	}
	if logger == nil {
		logger = slog.Default()
	}

	segmentSize := provider.SegmentSize()

	youngBudget := options.YoungGenBytes
	if youngBudget == 0 {
		youngBudget = defaultYoungGenSegments * segmentSize
	}
	youngBudget = roundUpToSegments(youngBudget, segmentSize)

	oldLimit := options.OldGenBytes
	if oldLimit != 0 {
		oldLimit = roundUpToSegments(oldLimit, segmentSize)
	}

	promotionThreshold := options.PromotionThreshold
	if promotionThreshold == 0 {
		promotionThreshold = defaultPromotionThreshold
	}

	heap := &Heap{
		logger:      logger,
		provider:    provider,
		segmentSize: segmentSize,
		segments:    swiss.NewMap[uintptr, segmentRecord](16),

		youngBudget:        youngBudget,
		oldLimit:           oldLimit,
		promotionThreshold: promotionThreshold,
		globalRoots:        options.GlobalRoots,
	}
	heap.mutex.UseMutex = options.Flags&HeapCreateExternallySynchronized == 0

	return heap, nil
}

func roundUpToSegments(bytes, segmentSize int) int {
	segments := (bytes + segmentSize - 1) / segmentSize
	if segments < 1 {
		segments = 1
	}
	return segments * segmentSize
}
