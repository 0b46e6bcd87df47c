// Package sessionstore implements the in-process SessionStore: session
// lifecycle, LayerState commits and trace steps, per spec.md §4.9 and §3.
package sessionstore

import "time"

// Status is a session's lifecycle state.
type Status string

const (
	StatusReady     Status = "READY"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusEscalated Status = "ESCALATED"
	StatusContained Status = "CONTAINED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether status is one the executor must not advance
// past (spec.md §3 "once status in {COMPLETED, CONTAINED, FAILED}, the
// session is immutable except for post-hoc annotation").
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusContained || s == StatusFailed
}

// LayerStatus is a single LayerState's terminal/non-terminal status.
type LayerStatus string

const (
	LayerReady     LayerStatus = "READY"
	LayerRunning   LayerStatus = "RUNNING"
	LayerCompleted LayerStatus = "COMPLETED"
	LayerEscalated LayerStatus = "ESCALATED"
	LayerContained LayerStatus = "CONTAINED"
	LayerFailed    LayerStatus = "FAILED"
)

// DeriveLayerStatus implements spec.md §4.8.a: if the stage raised, FAILED;
// else if confidence < 0.5 or escalate, ESCALATED; else COMPLETED.
// Containment is never derived here — only the executor can set it, once
// the ComplianceEngine actually triggers.
func DeriveLayerStatus(stageErr error, confidence float64, escalate bool) LayerStatus {
	switch {
	case stageErr != nil:
		return LayerFailed
	case confidence < 0.5 || escalate:
		return LayerEscalated
	default:
		return LayerCompleted
	}
}

// ConfidenceInfo is a LayerState's confidence score plus its delta from
// the previous stage and the stage's reported entropy.
type ConfidenceInfo struct {
	Score   float64
	Delta   float64
	Entropy float64
}

// PatchRef and ForkRef mirror pkg/stage.Patch/Fork without importing pkg/stage,
// so sessionstore stays a leaf package the executor and API layer both depend on.
type PatchRef struct {
	Coordinate string
	CellID     string
	Reason     string
}

type ForkRef struct {
	Coordinate   string
	CellID       string
	ParentCellID string
	Reason       string
}

// LayerState is the committed record of one stage's execution within a
// session (spec.md §3 "LayerState").
type LayerState struct {
	Stage       int
	StageName   string
	Status      LayerStatus
	TraceSteps  []TraceStep
	Agents      []string
	Confidence  ConfidenceInfo
	Forked      bool
	Escalated   bool
	Patches     []PatchRef
	Forks       []ForkRef
	Output      map[string]any
	StartedAt   time.Time
	CompletedAt time.Time
}

// EventKind is TraceStep's closed event vocabulary (spec.md §3/§6).
type EventKind string

const (
	EventStageStarted   EventKind = "stage_started"
	EventStageOutput    EventKind = "stage_output"
	EventStageEscalated EventKind = "stage_escalated"
	EventStageFailed    EventKind = "stage_failed"
	EventAgentAction    EventKind = "agent_action"
	EventMemoryPatch    EventKind = "memory_patch"
	EventMemoryFork     EventKind = "memory_fork"
	EventCompliance     EventKind = "compliance_check"
)

// TraceStep is one entry in a LayerState's ordered trace (spec.md §3).
type TraceStep struct {
	ID                 string
	Timestamp          time.Time
	Stage              int
	StageName          string
	EventKind          EventKind
	Message            string
	ConfidenceSnapshot float64
	InputSnapshot      map[string]any
	OutputSnapshot     map[string]any
	Agent              string
	Persona            string
}

// Session is the top-level record the PipelineExecutor drives forward one
// stage at a time (spec.md §3 "Session").
type Session struct {
	ID           string
	RunID        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	UserID       string
	Status       Status
	CurrentStage int
	InputQuery   string
	Layers       []LayerState
	State        map[string]any
	FinalOutput  map[string]any
	Error        string
}

// Clone returns a deep-enough copy for safe external reads: the session
// struct plus its Layers slice are copied so a caller mutating the clone
// cannot corrupt the stored session (mirrors tarsy's Session.Clone).
func (s Session) Clone() Session {
	layers := make([]LayerState, len(s.Layers))
	copy(layers, s.Layers)

	state := make(map[string]any, len(s.State))
	for k, v := range s.State {
		state[k] = v
	}

	clone := s
	clone.Layers = layers
	clone.State = state
	return clone
}
