package heaputils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// OutOfMemoryError is the base error for every recoverable allocation failure in this module. Errors
// that wrap it (provider ceilings, exhausted generations) indicate that memory could not be obtained
// but that the heap itself is still in a consistent state. Callers are expected to attempt a
// collection before treating any error matching this value as terminal.
var OutOfMemoryError error = errors.New("out of memory")
