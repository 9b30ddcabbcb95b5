package gccell

import (
	"sort"
	"sync"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
)

// ErrMetadataMissing is returned from Describe for a kind that was never registered. Allocating
// or tracing a cell of such a kind is a programming error in the object model: the collector
// would silently under-trace it, which corrupts memory, so the allocation and trace paths treat
// this error as fatal instead of recovering.
var ErrMetadataMissing error = errors.New("no metadata registered for cell kind")

// Metadata is the shared, immutable descriptor for one cell kind. It enumerates every
// cell-relative offset at which a reference to another heap cell lives; the descriptor is the
// correctness contract between object-model authors and the collector, and an offset omitted
// here will not keep its referent alive.
//
// One Metadata is built lazily the first time Describe sees the kind and is shared for the
// process lifetime. Callers must not mutate it.
type Metadata struct {
	Kind CellKind
	Name string

	// FixedSize indicates that every instance of the kind is exactly CellSize bytes. Cells of
	// variable-size kinds record their true footprint in their own header instead, and CellSize
	// is the minimum footprint.
	FixedSize bool
	CellSize  int

	// PointerOffsets holds the cell-relative byte offsets of every reference field, in
	// ascending order. Each referenced slot is a single word holding either nil or a cell
	// address.
	PointerOffsets []int
}

// Builder accumulates the reference-field layout of a kind. The build callback registered with
// RegisterKind receives one and calls AddPointer for every reference field; layout mistakes are
// reported when the descriptor is first built.
type Builder struct {
	meta Metadata
}

// AddPointer declares that the word at cell-relative byte offset holds a reference to another
// heap cell (or nil).
func (b *Builder) AddPointer(offset int) {
	b.meta.PointerOffsets = append(b.meta.PointerOffsets, offset)
}

// SetVariableSize declares that instances of the kind record their own footprint in their
// header rather than sharing the registered size. The registered size becomes the minimum
// footprint.
func (b *Builder) SetVariableSize() {
	b.meta.FixedSize = false
}

type registration struct {
	name  string
	size  int
	build func(*Builder)
}

var registry = struct {
	mutex sync.RWMutex
	kinds map[CellKind]*registration
	built map[CellKind]*Metadata
}{
	kinds: map[CellKind]*registration{},
	built: map[CellKind]*Metadata{},
}

// RegisterKind declares a cell kind before any instance of it is allocated. size is the static
// footprint in bytes (header included); build receives a Builder and declares every reference
// field, or may be nil for kinds with no reference fields. Registering KindInvalid or
// registering the same kind twice panics.
func RegisterKind(kind CellKind, name string, size int, build func(*Builder)) {
	if kind == KindInvalid {
		panic(cerrors.New("KindInvalid cannot be registered"))
	}
	if size < HeaderSize {
		panic(cerrors.Newf("kind %s registered with size %d, smaller than the header", name, size))
	}

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	if existing, ok := registry.kinds[kind]; ok {
		panic(cerrors.Newf("kind %d registered twice: %s and %s", uint32(kind), existing.name, name))
	}
	registry.kinds[kind] = &registration{
		name:  name,
		size:  size,
		build: build,
	}
}

// Describe returns the shared descriptor for kind, building and caching it on first use. The
// returned Metadata is immutable. Unregistered kinds produce an error matching
// ErrMetadataMissing.
func Describe(kind CellKind) (*Metadata, error) {
	registry.mutex.RLock()
	md, ok := registry.built[kind]
	registry.mutex.RUnlock()
	if ok {
		return md, nil
	}

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	// Raced with another first use.
	if md, ok = registry.built[kind]; ok {
		return md, nil
	}

	reg, ok := registry.kinds[kind]
	if !ok {
		return nil, cerrors.Wrapf(ErrMetadataMissing, "kind %d", uint32(kind))
	}

	md, err := buildMetadata(kind, reg)
	if err != nil {
		return nil, err
	}
	registry.built[kind] = md
	return md, nil
}

func buildMetadata(kind CellKind, reg *registration) (*Metadata, error) {
	builder := &Builder{
		meta: Metadata{
			Kind:      kind,
			Name:      reg.name,
			FixedSize: true,
			CellSize:  reg.size,
		},
	}
	if reg.build != nil {
		reg.build(builder)
	}

	md := builder.meta
	sort.Ints(md.PointerOffsets)
	for i, offset := range md.PointerOffsets {
		if offset < HeaderSize {
			return nil, cerrors.Newf("kind %s declares a pointer inside the header, at offset %d", reg.name, offset)
		}
		if offset%CellAlign != 0 {
			return nil, cerrors.Newf("kind %s declares a misaligned pointer at offset %d", reg.name, offset)
		}
		if offset+CellAlign > reg.size {
			return nil, cerrors.Newf("kind %s declares a pointer at offset %d, past its size %d", reg.name, offset, reg.size)
		}
		if i > 0 && md.PointerOffsets[i-1] == offset {
			return nil, cerrors.Newf("kind %s declares the pointer at offset %d twice", reg.name, offset)
		}
	}

	return &md, nil
}

func registeredName(kind CellKind) string {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	if reg, ok := registry.kinds[kind]; ok {
		return reg.name
	}
	return ""
}
