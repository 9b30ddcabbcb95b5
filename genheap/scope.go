package genheap

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
)

// Scope is one frame of the root-scope stack: an ordered, growable sequence of slots that the
// collector treats as roots. Native code opens a scope on entry to a call that touches the
// heap, parks every heap reference it wants to keep across a potential collection point in a
// Handle, and closes the scope on exit.
//
// Scopes nest in strict LIFO order. A scope may only be closed after every scope opened after
// it has been closed; violating this is a programming error and panics.
type Scope struct {
	heap  *Heap
	depth int
	slots []unsafe.Pointer
}

// Marker is an O(1) snapshot of a scope's slot count, used to release every handle created
// after a point in bulk. It is the mechanism for bounding loops that would otherwise grow the
// root table by one handle per iteration.
type Marker struct {
	scope *Scope
	count int
}

// Handle is an indirect, scope-owned reference to a cell. The collector rewrites the owning
// slot when the cell moves, so the cell reached through Get is always current. A Handle is
// valid only until its scope is closed or flushed past it; using it afterward panics.
type Handle struct {
	scope *Scope
	slot  int
}

// OpenScope pushes a new root scope. The caller must close it with CloseScope, after closing
// every scope opened later.
func (h *Heap) OpenScope() *Scope {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	scope := &Scope{
		heap:  h,
		depth: len(h.scopes),
	}
	h.scopes = append(h.scopes, scope)
	return scope
}

// CloseScope pops the scope, invalidating every Handle it owns. The scope must be the most
// recently opened one still open.
func (h *Heap) CloseScope(scope *Scope) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkUsable()

	if scope == nil || scope.heap != h {
		panic(cerrors.New("closing a scope that does not belong to this heap"))
	}
	if len(h.scopes) == 0 || h.scopes[len(h.scopes)-1] != scope {
		panic(cerrors.Newf("scope at depth %d closed out of LIFO order (%d scopes open)", scope.depth, len(h.scopes)))
	}

	h.scopes = h.scopes[:len(h.scopes)-1]
	scope.heap = nil
	scope.slots = nil
}

// Mark snapshots the scope's current slot count.
func (s *Scope) Mark() Marker {
	s.checkOpen()
	s.heap.mutex.Lock()
	defer s.heap.mutex.Unlock()

	return Marker{
		scope: s,
		count: len(s.slots),
	}
}

// FlushToMarker truncates the scope back to the slot count captured by marker, invalidating
// every Handle created after it. Markers follow the same LIFO discipline as scopes: a marker
// may not be flushed after an earlier marker in the same scope already was.
func (s *Scope) FlushToMarker(marker Marker) {
	s.checkOpen()
	s.heap.mutex.Lock()
	defer s.heap.mutex.Unlock()

	if marker.scope != s {
		panic(cerrors.New("marker flushed on a scope that did not create it"))
	}
	if marker.count > len(s.slots) {
		panic(cerrors.Newf("marker at %d slots flushed out of LIFO order (%d slots live)", marker.count, len(s.slots)))
	}

	s.slots = s.slots[:marker.count]
}

// NewHandle appends a slot holding cell and returns a Handle for it. Amortized O(1): the
// backing storage grows geometrically. cell may be nil.
func (s *Scope) NewHandle(cell unsafe.Pointer) Handle {
	s.checkOpen()
	s.heap.mutex.Lock()
	defer s.heap.mutex.Unlock()

	s.slots = append(s.slots, cell)
	return Handle{
		scope: s,
		slot:  len(s.slots) - 1,
	}
}

// NumSlots returns the number of live slots in the scope.
func (s *Scope) NumSlots() int {
	s.checkOpen()
	s.heap.mutex.Lock()
	defer s.heap.mutex.Unlock()

	return len(s.slots)
}

func (s *Scope) checkOpen() {
	if s == nil || s.heap == nil {
		panic(cerrors.New("root scope used after close"))
	}
}

// Get returns the cell the handle currently refers to. After a collection this may be a
// different address than was stored, but it is always the same cell.
func (h Handle) Get() unsafe.Pointer {
	h.checkValid()
	h.scope.heap.mutex.Lock()
	defer h.scope.heap.mutex.Unlock()

	return h.scope.slots[h.slot]
}

// Set retargets the handle's slot at a different cell (or nil).
func (h Handle) Set(cell unsafe.Pointer) {
	h.checkValid()
	h.scope.heap.mutex.Lock()
	defer h.scope.heap.mutex.Unlock()

	h.scope.slots[h.slot] = cell
}

func (h Handle) checkValid() {
	if h.scope == nil || h.scope.heap == nil {
		panic(cerrors.New("handle used after its scope was closed"))
	}
	if h.slot >= len(h.scope.slots) {
		panic(cerrors.Newf("handle for slot %d used after its scope was flushed to %d slots", h.slot, len(h.scope.slots)))
	}
}
