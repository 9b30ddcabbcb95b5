package genheap

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

const (
	// HeapCreateExternallySynchronized ensures that this heap and all objects created from it will
	// not be synchronized internally. The consumer must guarantee the heap is used from only one
	// thread at a time or is synchronized by some other mechanism, but performance may improve
	// because internal mutexes are not used. Concurrent allocation or concurrent scope open/close
	// on an unsynchronized heap corrupts the root stack's LIFO invariant.
	HeapCreateExternallySynchronized CreateFlags = 1 << iota
)

func (f CreateFlags) String() string {
	if f&HeapCreateExternallySynchronized != 0 {
		return "HeapCreateExternallySynchronized"
	}
	return ""
}
