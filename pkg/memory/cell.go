// Package memory implements the content-addressed MemoryGraph: a
// coordinate-indexed key/value store with patch history, fork lineage and
// persona indexing, as specified in spec.md §3 and §4.1.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/codeready-toolchain/reasonctl/pkg/coordinate"
)

// PatchRecord is one entry in a cell's append-only patch history.
type PatchRecord struct {
	Timestamp time.Time
	Type      string // "edit" or "fork"
	OldValue  any
	NewValue  any
	Meta      map[string]any
}

// EntropyRecord is one entry in a cell's entropy log.
type EntropyRecord struct {
	Timestamp time.Time
	Type      string
	Delta     float64
}

// Cell owns a coordinate, a value and its metadata, lineage and patch
// history. See spec.md §3 "MemoryCell" for the invariants this type upholds:
// CellID is derived from (coordinate, CreatedAt) and is globally unique;
// LastModified >= CreatedAt; every Lineage entry denotes a real prior cell;
// a fork cell's ParentCellID equals the last Lineage entry.
type Cell struct {
	Coordinate   coordinate.Coordinate
	Value        any
	Meta         map[string]any
	CreatedAt    time.Time
	LastModified time.Time
	CellID       string
	ParentCellID string   // empty for a root cell
	Lineage      []string // ordered ancestor cell-ids, oldest first
	Forks        []string // child fork cell-ids spawned from this cell

	PatchHistory []PatchRecord
	EntropyLog   []EntropyRecord
}

func generateCellID(coord coordinate.Coordinate, createdAt time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", coord.Encode(), createdAt.UnixNano())))
	return hex.EncodeToString(sum[:])
}

func newCell(coord coordinate.Coordinate, value any, meta map[string]any) *Cell {
	now := time.Now()
	return &Cell{
		Coordinate:   coord,
		Value:        value,
		Meta:         cloneMeta(meta),
		CreatedAt:    now,
		LastModified: now,
		CellID:       generateCellID(coord, now),
	}
}

func cloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// patch mutates the cell's value/metadata in place and appends a patch
// history entry. Not exported: callers go through MemoryGraph so the
// persona index and patch log stay consistent.
func (c *Cell) patch(value any, meta map[string]any) {
	old := c.Value
	c.Value = value
	for k, v := range meta {
		c.Meta[k] = v
	}
	c.LastModified = time.Now()
	c.PatchHistory = append(c.PatchHistory, PatchRecord{
		Timestamp: c.LastModified,
		Type:      "edit",
		OldValue:  old,
		NewValue:  value,
		Meta:      cloneMeta(meta),
	})
}

// decay increments the cell's entropy metadata and appends an entropy log
// entry, per spec.md §4.1 "decay".
func (c *Cell) decay(delta float64) {
	current, _ := c.Meta["entropy"].(float64)
	c.Meta["entropy"] = current + delta
	c.LastModified = time.Now()
	c.EntropyLog = append(c.EntropyLog, EntropyRecord{
		Timestamp: time.Now(),
		Type:      "decay",
		Delta:     delta,
	})
}

// fork creates a child cell superseding this one at the same coordinate,
// wiring lineage per spec.md §3's fork invariant.
func (c *Cell) fork(newValue any, meta map[string]any, reason string) *Cell {
	child := newCell(c.Coordinate, newValue, meta)
	child.ParentCellID = c.CellID
	child.Lineage = append(append([]string{}, c.Lineage...), c.CellID)
	child.Meta["fork_reason"] = reason
	c.Forks = append(c.Forks, child.CellID)
	return child
}

// Snapshot returns a value copy safe to hand to callers outside the graph's
// lock (shallow-copies slices so the caller cannot mutate internal state).
func (c *Cell) Snapshot() Cell {
	cp := *c
	cp.Meta = cloneMeta(c.Meta)
	cp.Lineage = append([]string{}, c.Lineage...)
	cp.Forks = append([]string{}, c.Forks...)
	cp.PatchHistory = append([]PatchRecord{}, c.PatchHistory...)
	cp.EntropyLog = append([]EntropyRecord{}, c.EntropyLog...)
	return cp
}
