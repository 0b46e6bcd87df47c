// Package stage implements the StageRegistry and the Stage contract: the
// fixed capability set {stage_number, stage_name, thresholds, process} that
// lets the PipelineExecutor treat ten narratively distinct stages uniformly,
// per spec.md §4.7.
package stage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/codeready-toolchain/reasonctl/pkg/agentmgr"
	"github.com/codeready-toolchain/reasonctl/pkg/memory"
)

// Meta is the metadata every stage declares about itself.
type Meta struct {
	Number              int
	Name                string
	ConfidenceThreshold float64
	EntropyThreshold    float64
	MaxProcessingTimeMS int
	RequiresAgents      bool
	RequiresMemory      bool
	SafetyCritical      bool
}

// Patch records a memory mutation a stage already applied to the shared
// MemoryGraph — the executor commits it to the LayerState but does not
// re-apply it (spec.md §4.8.f).
type Patch struct {
	Coordinate string
	CellID     string
	Reason     string
}

// Fork records a fork a stage emitted. The core executor does not
// re-execute forks; they are data for upstream consumers (spec.md §4.8
// "Fork handling").
type Fork struct {
	Coordinate   string
	CellID       string
	ParentCellID string
	Reason       string
}

// Result is what a stage returns to the executor. A stage is pure with
// respect to input/state — any MemoryGraph or AgentManager side effects
// are already applied by the time Result is returned, and are only
// reported here for audit/trace purposes.
type Result struct {
	Output           map[string]any
	Confidence       float64
	Entropy          float64
	Escalate         bool
	Patches          []Patch
	Forks            []Fork
	AgentsSpawned    []string
	Metadata         map[string]any
	ProcessingTimeMS int64
	Trace            map[string]any
}

// Stage is the contract every stage implementation satisfies. Process must
// not mutate the caller's session directly; it returns a Result and the
// executor commits it (spec.md §4.7).
type Stage interface {
	Meta() Meta
	Process(ctx context.Context, input, state map[string]any, mem *memory.Graph, agents *agentmgr.Manager) (Result, error)
}

// Registry is the fixed stage-number -> stage mapping new stages register
// into at startup, per the "Dynamic dispatch" redesign note in spec.md §9:
// no reflection, no dynamic loading — a documented capability set instead.
type Registry struct {
	mu     sync.RWMutex
	stages map[int]Stage
}

// NewRegistry returns an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[int]Stage)}
}

// Register adds or replaces the stage at its declared Meta().Number.
func (r *Registry) Register(s Stage) error {
	n := s.Meta().Number
	if n < 1 || n > 10 {
		return fmt.Errorf("stage: number %d out of the 1..10 range", n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[n] = s
	return nil
}

// Get resolves the stage registered for number, or false if absent — the
// executor skips with a warning in that case (spec.md §4.8.4.b).
func (r *Registry) Get(number int) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[number]
	return s, ok
}

// Numbers lists the registered stage numbers in ascending order.
func (r *Registry) Numbers() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.stages))
	for n := range r.stages {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
