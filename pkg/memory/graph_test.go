package memory

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/reasonctl/pkg/coordinate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCoord(node string) coordinate.Coordinate {
	return coordinate.Coordinate{
		Pillar:   "PL1",
		Sector:   "5415",
		Branch:   "branch-1",
		Node:     node,
		Temporal: "2026-08-01",
	}
}

func TestSetThenGetReturnsValue(t *testing.T) {
	g := New()
	c := testCoord("node-1")

	g.Set(c, "hello", nil, "")

	got, ok := g.Get(c, "")
	require.True(t, ok)
	assert.Equal(t, "hello", got.Value)
}

func TestGetMissingCoordinate(t *testing.T) {
	g := New()
	_, ok := g.Get(testCoord("nope"), "")
	assert.False(t, ok)
}

func TestSetTwiceAppendsPatchHistoryNotNewCell(t *testing.T) {
	g := New()
	c := testCoord("node-2")

	first := g.Set(c, "v1", nil, "")
	second := g.Set(c, "v2", nil, "")

	assert.Equal(t, first.CellID, second.CellID)
	assert.Equal(t, "v2", second.Value)
}

func TestForkWiresParentAndLineage(t *testing.T) {
	g := New()
	c := testCoord("node-3")

	parent := g.Set(c, "original", nil, "")
	child, ok := g.Fork(c, "revised", nil, "correction")
	require.True(t, ok)

	assert.Equal(t, parent.CellID, child.ParentCellID)
	assert.Equal(t, []string{parent.CellID}, child.Lineage)
	assert.Equal(t, "correction", child.Meta["fork_reason"])

	// Scenario D: get after fork returns the new value under the same coordinate.
	live, ok := g.Get(c, "")
	require.True(t, ok)
	assert.Equal(t, "revised", live.Value)
	assert.Equal(t, child.CellID, live.CellID)
}

func TestForkMissingCellFails(t *testing.T) {
	g := New()
	_, ok := g.Fork(testCoord("ghost"), "x", nil, "reason")
	assert.False(t, ok)
}

func TestPatchLogOrdersSetBeforeFork(t *testing.T) {
	g := New()
	c := testCoord("node-4")
	since := time.Now().Add(-time.Minute)

	g.Patch(c, "v1", nil, "")
	g.Fork(c, "v2", nil, "drift-detected")

	entries := g.PatchLogSince(since)
	require.Len(t, entries, 2)
	assert.Equal(t, "edit", entries[0].Type)
	assert.Equal(t, "fork", entries[1].Type)
	assert.Equal(t, "drift-detected", entries[1].Reason)
}

func TestPatchLogSinceExcludesOlderEntries(t *testing.T) {
	g := New()
	c := testCoord("node-5")
	g.Patch(c, "v1", nil, "")

	future := time.Now().Add(time.Hour)
	entries := g.PatchLogSince(future)
	assert.Empty(t, entries)
}

func TestFindByPersonaIndexesAcrossForks(t *testing.T) {
	g := New()
	c := testCoord("node-6")
	meta := map[string]any{"persona": "analyst-1"}

	g.Set(c, "v1", meta, "")
	g.Fork(c, "v2", meta, "update")

	cells := g.FindByPersona("analyst-1")
	assert.Len(t, cells, 2)
}

func TestGetFiltersByPersonaMismatch(t *testing.T) {
	g := New()
	c := testCoord("node-7")
	g.Set(c, "v1", map[string]any{"persona": "analyst-1"}, "")

	_, ok := g.Get(c, "analyst-2")
	assert.False(t, ok)
}

func TestDecayAccumulatesEntropy(t *testing.T) {
	g := New()
	c := testCoord("node-8")
	g.Set(c, "v1", nil, "")

	require.True(t, g.Decay(c, 0.1))
	require.True(t, g.Decay(c, 0.2))

	got, _ := g.Get(c, "")
	assert.InDelta(t, 0.3, got.Meta["entropy"].(float64), 1e-9)
	assert.Len(t, got.EntropyLog, 2)
}

func TestDecayMissingCellReturnsFalse(t *testing.T) {
	g := New()
	assert.False(t, g.Decay(testCoord("ghost"), 0.1))
}

func TestStatsSnapshotCountsOccupancy(t *testing.T) {
	g := New()
	c1 := testCoord("node-9")
	c2 := testCoord("node-10")

	g.Patch(c1, "v1", map[string]any{"persona": "p1"}, "")
	g.Patch(c2, "v1", map[string]any{"persona": "p2"}, "")
	g.Fork(c1, "v2", nil, "reason")
	g.Decay(c2, 0.5)

	stats := g.StatsSnapshot()
	assert.Equal(t, 2, stats.NCells)
	assert.Equal(t, 2, stats.NPersonas)
	assert.Equal(t, 1, stats.NForks)
	assert.Equal(t, 2, stats.NPatches)
	assert.Equal(t, 1, stats.NDecays)
}

func TestLineageTraversesThroughForks(t *testing.T) {
	g := New()
	c := testCoord("node-11")

	root := g.Set(c, "v1", nil, "")
	mid, _ := g.Fork(c, "v2", nil, "r1")
	leaf, _ := g.Fork(c, "v3", nil, "r2")

	chain, ok := g.Lineage(leaf.CellID)
	require.True(t, ok)
	require.Len(t, chain, 3)
	assert.Equal(t, root.CellID, chain[0].CellID)
	assert.Equal(t, mid.CellID, chain[1].CellID)
	assert.Equal(t, leaf.CellID, chain[2].CellID)
}

func TestDeleteRemovesLiveCellAndPersonaIndex(t *testing.T) {
	g := New()
	c := testCoord("node-12")
	g.Set(c, "v1", map[string]any{"persona": "p1"}, "")

	require.True(t, g.Delete(c))
	_, ok := g.Get(c, "")
	assert.False(t, ok)
	assert.Empty(t, g.FindByPersona("p1"))
}

func TestSnapshotIsolatesCallerFromInternalMutation(t *testing.T) {
	g := New()
	c := testCoord("node-13")
	snap := g.Set(c, "v1", nil, "")

	g.Patch(c, "v2", nil, "")

	assert.Equal(t, "v1", snap.Value)
}
