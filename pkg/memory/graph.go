package memory

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/reasonctl/pkg/coordinate"
)

// PatchLogEntry is one chronological entry in the graph's global patch log,
// spanning both edits and forks.
type PatchLogEntry struct {
	Timestamp  time.Time
	Type       string // "edit" or "fork"
	Coordinate coordinate.Coordinate
	CellID     string
	ForkOf     string // parent cell id, set only for Type == "fork"
	Persona    string
	Meta       map[string]any
	Reason     string
}

// Stats summarizes graph occupancy, per spec.md §4.1 "stats()".
type Stats struct {
	NCells    int
	NPersonas int
	NForks    int
	NPatches  int
	NDecays   int
}

// Graph is the process-global, coordinate-indexed memory store. All
// operations are externally atomic: a reader never observes a partially
// mutated cell (spec.md §4.1 "Concurrency contract"). A single
// sync.RWMutex guards the primary map, persona index and patch log
// together, following the shared-resource policy in spec.md §5 and the
// single-lock pattern tarsy uses for its in-process session map
// (pkg/session/manager.go). The lock is not reentrant: each exported
// method takes it once and shares unexported helpers such as setLocked.
type Graph struct {
	mu sync.RWMutex

	cells        map[string]*Cell           // coordinate-hash -> live cell
	personaIndex map[string]map[string]bool // persona -> set of cell-ids
	cellsByID    map[string]*Cell           // cell-id -> cell, including superseded forks (for lineage traversal)
	patchLog     []PatchLogEntry

	nForks  int
	nDecays int
}

// New creates an empty MemoryGraph.
func New() *Graph {
	return &Graph{
		cells:        make(map[string]*Cell),
		personaIndex: make(map[string]map[string]bool),
		cellsByID:    make(map[string]*Cell),
	}
}

func personaOf(meta map[string]any, persona string) string {
	if persona != "" {
		return persona
	}
	if p, ok := meta["persona"].(string); ok {
		return p
	}
	return ""
}

func (g *Graph) indexPersona(persona, cellID string) {
	if persona == "" {
		return
	}
	set, ok := g.personaIndex[persona]
	if !ok {
		set = make(map[string]bool)
		g.personaIndex[persona] = set
	}
	set[cellID] = true
}

// Get returns the live cell at coord. If persona is non-empty, the cell is
// only returned when its metadata persona matches (spec.md §4.1 "get").
func (g *Graph) Get(coord coordinate.Coordinate, persona string) (Cell, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cell, ok := g.cells[coord.Hash()]
	if !ok {
		return Cell{}, false
	}
	if persona != "" {
		if cp, _ := cell.Meta["persona"].(string); cp != persona {
			return Cell{}, false
		}
	}
	return cell.Snapshot(), true
}

// Set creates a cell at coord, or patches it in place if one already
// exists, recording an "edit" patch (spec.md §4.1 "set").
func (g *Graph) Set(coord coordinate.Coordinate, value any, meta map[string]any, persona string) Cell {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setLocked(coord, value, meta, persona).Snapshot()
}

func (g *Graph) setLocked(coord coordinate.Coordinate, value any, meta map[string]any, persona string) *Cell {
	key := coord.Hash()
	cell, exists := g.cells[key]
	if exists {
		cell.patch(value, meta)
	} else {
		cell = newCell(coord, value, meta)
		g.cells[key] = cell
		g.cellsByID[cell.CellID] = cell
	}
	g.indexPersona(personaOf(meta, persona), cell.CellID)
	return cell
}

// Patch is identical to Set but additionally appends to the global patch
// log (spec.md §4.1 "patch").
func (g *Graph) Patch(coord coordinate.Coordinate, value any, meta map[string]any, persona string) Cell {
	g.mu.Lock()
	defer g.mu.Unlock()

	cell := g.setLocked(coord, value, meta, persona)
	g.patchLog = append(g.patchLog, PatchLogEntry{
		Timestamp:  time.Now(),
		Type:       "edit",
		Coordinate: coord,
		CellID:     cell.CellID,
		Persona:    personaOf(meta, persona),
		Meta:       cloneMeta(meta),
	})
	return cell.Snapshot()
}

// Fork creates a child cell superseding the live cell at coord, returning
// false if no cell exists there yet (spec.md §4.1 "fork").
func (g *Graph) Fork(coord coordinate.Coordinate, newValue any, meta map[string]any, reason string) (Cell, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := coord.Hash()
	parent, ok := g.cells[key]
	if !ok {
		return Cell{}, false
	}
	child := parent.fork(newValue, meta, reason)
	g.cells[key] = child
	g.cellsByID[child.CellID] = child
	g.nForks++

	g.indexPersona(personaOf(child.Meta, ""), child.CellID)

	g.patchLog = append(g.patchLog, PatchLogEntry{
		Timestamp:  time.Now(),
		Type:       "fork",
		Coordinate: coord,
		CellID:     child.CellID,
		ForkOf:     parent.CellID,
		Persona:    personaOf(child.Meta, ""),
		Meta:       cloneMeta(meta),
		Reason:     reason,
	})
	return child.Snapshot(), true
}

// Decay increments the cell's entropy metadata and logs the change. A no-op
// (false) if no cell exists at coord.
func (g *Graph) Decay(coord coordinate.Coordinate, delta float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	cell, ok := g.cells[coord.Hash()]
	if !ok {
		return false
	}
	cell.decay(delta)
	g.nDecays++
	return true
}

// Delete removes the live cell at coord and its persona-index entries.
// Delete is optional per spec.md §9; when present it decrements
// stats().NCells and leaves lineage/patch-log history untouched (prior
// entries referencing the cell-id remain valid audit trail).
func (g *Graph) Delete(coord coordinate.Coordinate) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := coord.Hash()
	cell, ok := g.cells[key]
	if !ok {
		return false
	}
	delete(g.cells, key)
	for persona, set := range g.personaIndex {
		delete(set, cell.CellID)
		if len(set) == 0 {
			delete(g.personaIndex, persona)
		}
	}
	return true
}

// FindByPersona returns all live-or-historical cells indexed under persona.
// O(k) in the persona's cell count, per spec.md §4.1.
func (g *Graph) FindByPersona(persona string) []Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := g.personaIndex[persona]
	out := make([]Cell, 0, len(ids))
	for id := range ids {
		if cell, ok := g.cellsByID[id]; ok {
			out = append(out, cell.Snapshot())
		}
	}
	return out
}

// Lineage returns the ancestor chain for a cell-id, oldest first, followed
// by the cell itself — a lineage-traversal query for cells no longer
// reachable by coordinate after a fork (spec.md §4.1, §9 open question).
func (g *Graph) Lineage(cellID string) ([]Cell, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cell, ok := g.cellsByID[cellID]
	if !ok {
		return nil, false
	}
	out := make([]Cell, 0, len(cell.Lineage)+1)
	for _, ancestorID := range cell.Lineage {
		if ancestor, ok := g.cellsByID[ancestorID]; ok {
			out = append(out, ancestor.Snapshot())
		}
	}
	out = append(out, cell.Snapshot())
	return out, true
}

// PatchLogSince returns patch-log entries with Timestamp >= since, in
// chronological order (spec.md §4.1 "patch_log_since").
func (g *Graph) PatchLogSince(since time.Time) []PatchLogEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]PatchLogEntry, 0)
	for _, entry := range g.patchLog {
		if !entry.Timestamp.Before(since) {
			out = append(out, entry)
		}
	}
	return out
}

// StatsSnapshot reports graph occupancy (spec.md §4.1 "stats()").
func (g *Graph) StatsSnapshot() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nPatches := 0
	for _, e := range g.patchLog {
		if e.Type == "edit" {
			nPatches++
		}
	}
	return Stats{
		NCells:    len(g.cells),
		NPersonas: len(g.personaIndex),
		NForks:    g.nForks,
		NPatches:  nPatches,
		NDecays:   g.nDecays,
	}
}
