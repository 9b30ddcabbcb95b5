package genheap

import (
	"encoding/json"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
)

func TestStatsSnapshot(t *testing.T) {
	heap, provider := newTestHeap(t, 1<<20, CreateOptions{YoungGenBytes: 4 << 20})
	defer heap.Destroy()

	scope := heap.OpenScope()
	defer heap.CloseScope(scope)

	scope.NewHandle(allocLeaf(t, heap, 1))
	scope.NewHandle(allocLeaf(t, heap, 2))

	longLived, err := heap.AllocateLongLived(testKindLeaf, leafSize)
	require.NoError(t, err)
	scope.NewHandle(longLived)

	stats := heap.Stats()
	require.Equal(t, 2, stats.Young.CellCount)
	require.Equal(t, 1, stats.Young.SegmentCount)
	require.Equal(t, 4<<20, stats.Young.BudgetBytes)
	require.Equal(t, 1, stats.Old.CellCount)
	require.Equal(t, 0, stats.Collections)

	require.Equal(t, provider.Stats(), stats.Provider)
	require.Equal(t, 2, stats.Provider.SegmentCount)

	heap.Collect()
	stats = heap.Stats()
	require.Equal(t, 1, stats.Collections)
	require.Equal(t, 2, stats.Young.CellCount)
	require.Equal(t, 1, stats.Old.CellCount)
}

func TestDetailedStats(t *testing.T) {
	heap, _ := newTestHeap(t, 1<<20, CreateOptions{})
	defer heap.Destroy()

	scope := heap.OpenScope()
	defer heap.CloseScope(scope)

	scope.NewHandle(allocLeaf(t, heap, 1))

	big, err := heap.Allocate(testKindEmpty, 256)
	require.NoError(t, err)
	scope.NewHandle(big)

	detailed := heap.DetailedStats()
	require.Equal(t, 2, detailed.CellCount)
	require.Equal(t, leafSize, detailed.CellSizeMin)
	require.Equal(t, 256, detailed.CellSizeMax)
	require.Equal(t, 1, detailed.SegmentCount)
	require.Equal(t, 1, detailed.UnusedRangeCount)
	require.Greater(t, detailed.UnusedRangeSizeMax, 0)
}

func TestPrintStatsJSON(t *testing.T) {
	heap, _ := newTestHeap(t, 1<<20, CreateOptions{})
	defer heap.Destroy()

	scope := heap.OpenScope()
	defer heap.CloseScope(scope)

	scope.NewHandle(allocLeaf(t, heap, 1))
	heap.Collect()

	writer := jwriter.NewWriter()
	heap.PrintStatsJSON(&writer)
	require.NoError(t, writer.Error())

	out := writer.Bytes()
	require.True(t, json.Valid(out))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Contains(t, decoded, "YoungGeneration")
	require.Contains(t, decoded, "OldGeneration")
	require.Contains(t, decoded, "Provider")
	require.Equal(t, float64(1), decoded["Collections"])

	young, ok := decoded["YoungGeneration"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(1), young["Cells"])
}
