package genheap

import (
	"github.com/pkg/errors"

	"github.com/quartzvm/heap/heaputils"
)

// ErrHeapExhausted is returned when an allocation fails even after a full collection. It is the
// only fatal condition in this subsystem: the heap's metadata is still consistent, but no
// further allocation of the failed size can succeed without releasing roots or raising limits.
// It matches heaputils.OutOfMemoryError.
var ErrHeapExhausted error = errors.Wrap(heaputils.OutOfMemoryError, "heap exhausted")

// ErrCellTooLarge is returned when a requested cell cannot fit in a single storage segment and
// so can never be allocated, regardless of collection. It matches heaputils.OutOfMemoryError.
var ErrCellTooLarge error = errors.Wrap(heaputils.OutOfMemoryError, "cell larger than a storage segment")
