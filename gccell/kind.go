package gccell

import "fmt"

// CellKind is the tag identifying a cell's layout. Kinds form a closed enumeration owned by the
// object model: each one must be registered exactly once via RegisterKind before the first cell
// of that kind is allocated.
type CellKind uint32

// KindInvalid is never a valid registered kind; a zero header word can therefore never be
// mistaken for a live cell.
const KindInvalid CellKind = 0

func (k CellKind) String() string {
	if name := registeredName(k); name != "" {
		return name
	}
	return fmt.Sprintf("CellKind(%d)", uint32(k))
}
