// Package audit implements the append-only audit trail: every memory
// patch, fork, agent decision, escalation, containment trigger and
// compliance violation is recorded here for later replay. Each entry
// carries a SHA-256 hash of its own canonical content; entries are not
// chained to the hash of the entry before them.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of events the audit log accepts, mirroring
// the original logger's literal event-type union.
type EventType string

const (
	EventSimulationStart     EventType = "simulation_start"
	EventSimulationEnd       EventType = "simulation_end"
	EventSimulationPass      EventType = "simulation_pass"
	EventMemoryPatch         EventType = "memory_patch"
	EventFork                EventType = "fork"
	EventAgentDecision       EventType = "agent_decision"
	EventEscalation          EventType = "escalation"
	EventContainmentTrigger  EventType = "containment_trigger"
	EventComplianceViolation EventType = "compliance_violation"
	EventCertificate         EventType = "cert"
	EventContainmentReset    EventType = "containment_reset"
)

// Entry is one append-only audit record.
type Entry struct {
	EntryID      string
	EntryHash    string
	Timestamp    time.Time
	EventType    EventType
	Stage        *int
	Details      map[string]any
	SimulationID string
	Persona      string
	Confidence   *float64
	ForkedFrom   string
	Certificate  map[string]any
}

// canonicalJSON marshals v as sorted-key JSON, matching json.dumps(...,
// sort_keys=True) so hashes are stable regardless of map iteration order.
func canonicalJSON(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(intermediate, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

func marshalSorted(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte("{")
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte("[")
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			ib, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ib...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(val)
	}
}

func entryHash(e Entry) string {
	payload := map[string]any{
		"timestamp":     e.Timestamp.UnixNano(),
		"event_type":    e.EventType,
		"stage":         e.Stage,
		"simulation_id": e.SimulationID,
		"persona":       e.Persona,
		"details":       e.Details,
		"forked_from":   e.ForkedFrom,
	}
	data, err := canonicalJSON(payload)
	if err != nil {
		data = []byte(e.EntryID)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LogInput carries the optional fields a caller can set when appending
// an entry.
type LogInput struct {
	EventType    EventType
	Stage        *int
	Details      map[string]any
	SimulationID string
	Persona      string
	Confidence   *float64
	ForkedFrom   string
	Certificate  map[string]any
}

// Log is the process-wide append-only audit trail. A single mutex guards
// both the slice and the id index, and reads take a snapshot of the
// matching slice under lock before filtering/sorting outside it —
// the same snapshot-then-release pattern tarsy's ConnectionManager uses
// before it serves subscribers.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	byID    map[string]*Entry
}

// NewLog returns an empty audit log.
func NewLog() *Log {
	return &Log{byID: make(map[string]*Entry)}
}

// Append records a new entry and returns it (with its id/hash populated).
func (l *Log) Append(in LogInput) Entry {
	e := Entry{
		EntryID:      uuid.New().String(),
		Timestamp:    time.Now(),
		EventType:    in.EventType,
		Stage:        in.Stage,
		Details:      in.Details,
		SimulationID: in.SimulationID,
		Persona:      in.Persona,
		Confidence:   in.Confidence,
		ForkedFrom:   in.ForkedFrom,
		Certificate:  in.Certificate,
	}
	e.EntryHash = entryHash(e)

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.byID[e.EntryID] = &l.entries[len(l.entries)-1]
	l.mu.Unlock()

	return e
}

// Query is the filter/sort/paginate request for Query.
type Query struct {
	EventType    EventType
	Stage        *int
	SimulationID string
	Persona      string
	AfterTS      time.Time
	BeforeTS     time.Time
	Limit        int
	Offset       int
}

// Query returns entries matching q, oldest first, paginated.
func (l *Log) Query(q Query) []Entry {
	l.mu.Lock()
	snapshot := make([]Entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()

	filtered := make([]Entry, 0, len(snapshot))
	for _, e := range snapshot {
		if q.EventType != "" && e.EventType != q.EventType {
			continue
		}
		if q.Stage != nil && (e.Stage == nil || *e.Stage != *q.Stage) {
			continue
		}
		if q.SimulationID != "" && e.SimulationID != q.SimulationID {
			continue
		}
		if q.Persona != "" && e.Persona != q.Persona {
			continue
		}
		if !q.AfterTS.IsZero() && e.Timestamp.Before(q.AfterTS) {
			continue
		}
		if !q.BeforeTS.IsZero() && !e.Timestamp.Before(q.BeforeTS) {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Timestamp.Before(filtered[j].Timestamp) })

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	start := q.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end]
}

// GetByID returns a single entry by id.
func (l *Log) GetByID(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Bundle is a point-in-time snapshot of matching entries, suitable for
// export or external publication.
type Bundle struct {
	BundleID     string
	GeneratedAt  time.Time
	SimulationID string
	SinceTS      time.Time
	Count        int
	Entries      []Entry
}

// SnapshotBundle returns all entries for simulationID (all simulations if
// empty) since sinceTS.
func (l *Log) SnapshotBundle(simulationID string, sinceTS time.Time) Bundle {
	entries := l.Query(Query{SimulationID: simulationID, AfterTS: sinceTS, Limit: 1 << 30})
	return Bundle{
		BundleID:     uuid.New().String(),
		GeneratedAt:  time.Now(),
		SimulationID: simulationID,
		SinceTS:      sinceTS,
		Count:        len(entries),
		Entries:      entries,
	}
}

// ClearAll removes every entry.
func (l *Log) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.byID = make(map[string]*Entry)
}

// ClearSimulation removes all entries for simulationID, returning the
// count removed.
func (l *Log) ClearSimulation(simulationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := make([]Entry, 0, len(l.entries))
	removed := 0
	for _, e := range l.entries {
		if e.SimulationID == simulationID {
			delete(l.byID, e.EntryID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	// byID holds pointers into the old backing array; rebuild after compaction.
	l.byID = make(map[string]*Entry, len(l.entries))
	for i := range l.entries {
		l.byID[l.entries[i].EntryID] = &l.entries[i]
	}
	return removed
}
