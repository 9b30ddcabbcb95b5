package gccell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	kindPair   CellKind = 0x101
	kindScalar CellKind = 0x102
	kindBlob   CellKind = 0x103
)

func init() {
	RegisterKind(kindPair, "Pair", 32, func(b *Builder) {
		// Registered out of order on purpose; Describe must sort.
		b.AddPointer(24)
		b.AddPointer(16)
	})
	RegisterKind(kindScalar, "Scalar", 24, nil)
	RegisterKind(kindBlob, "Blob", HeaderSize, func(b *Builder) {
		b.SetVariableSize()
	})
}

func TestDescribeBuildsOnceAndCaches(t *testing.T) {
	md, err := Describe(kindPair)
	require.NoError(t, err)
	require.Equal(t, "Pair", md.Name)
	require.True(t, md.FixedSize)
	require.Equal(t, 32, md.CellSize)
	require.Equal(t, []int{16, 24}, md.PointerOffsets)

	again, err := Describe(kindPair)
	require.NoError(t, err)
	require.Same(t, md, again)
}

func TestDescribeMissingKind(t *testing.T) {
	_, err := Describe(CellKind(0xDEAD))
	require.ErrorIs(t, err, ErrMetadataMissing)
}

func TestDescribeVariableSize(t *testing.T) {
	md, err := Describe(kindBlob)
	require.NoError(t, err)
	require.False(t, md.FixedSize)
	require.Equal(t, HeaderSize, md.CellSize)
	require.Empty(t, md.PointerOffsets)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "Pair", kindPair.String())
	require.Equal(t, "CellKind(57005)", CellKind(0xDEAD).String())
}

func TestRegisterKindRejectsDuplicates(t *testing.T) {
	require.Panics(t, func() {
		RegisterKind(kindPair, "PairAgain", 32, nil)
	})
	require.Panics(t, func() {
		RegisterKind(KindInvalid, "Invalid", 32, nil)
	})
	require.Panics(t, func() {
		RegisterKind(CellKind(0x1FF), "TooSmall", HeaderSize-8, nil)
	})
}

func TestBuilderValidation(t *testing.T) {
	badLayouts := map[string]struct {
		Kind   CellKind
		Size   int
		Offset int
	}{
		"Pointer Inside Header": {
			Kind:   CellKind(0x110),
			Size:   32,
			Offset: 8,
		},
		"Misaligned Pointer": {
			Kind:   CellKind(0x111),
			Size:   32,
			Offset: 20,
		},
		"Pointer Past Cell End": {
			Kind:   CellKind(0x112),
			Size:   24,
			Offset: 24,
		},
	}

	for name, layout := range badLayouts {
		t.Run(name, func(t *testing.T) {
			offset := layout.Offset
			RegisterKind(layout.Kind, name, layout.Size, func(b *Builder) {
				b.AddPointer(offset)
			})

			_, err := Describe(layout.Kind)
			require.Error(t, err)
		})
	}
}

func TestBuilderRejectsDuplicateOffset(t *testing.T) {
	RegisterKind(CellKind(0x113), "DoubleOffset", 32, func(b *Builder) {
		b.AddPointer(16)
		b.AddPointer(16)
	})

	_, err := Describe(CellKind(0x113))
	require.Error(t, err)
}
