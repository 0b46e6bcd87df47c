// Package pipeline implements the PipelineExecutor: the per-session stage
// loop, escalation/completion/containment policy and pause/resume/contain
// control surface, per spec.md §4.8.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/reasonctl/pkg/agentmgr"
	"github.com/codeready-toolchain/reasonctl/pkg/audit"
	"github.com/codeready-toolchain/reasonctl/pkg/compliance"
	"github.com/codeready-toolchain/reasonctl/pkg/hub"
	"github.com/codeready-toolchain/reasonctl/pkg/memory"
	"github.com/codeready-toolchain/reasonctl/pkg/sessionstore"
	"github.com/codeready-toolchain/reasonctl/pkg/stage"
)

// GlobalConfidenceThreshold is the completion bar a non-escalating stage
// must clear (spec.md §4.8.h).
const GlobalConfidenceThreshold = 0.995

// DefaultMaxStages is the configured stage ceiling (spec.md §4.7: stage
// numbers run 1..10).
const DefaultMaxStages = 10

// DefaultSessionBudget is the per-session wall-clock budget checked before
// each stage (spec.md §5 "max_simulation_time", default 300s).
const DefaultSessionBudget = 300 * time.Second

// RunResult is what Run/Step hand back to the caller.
type RunResult struct {
	RunID       string
	Session     sessionstore.Session
	FinalOutput map[string]any
}

// Executor drives sessions through the stage registry, committing
// LayerStates, running compliance checks and broadcasting progress. A
// cancel-function registry mirrors tarsy's WorkerPool session registry so
// an explicit pause/contain can interrupt a session between stages without
// the executor needing to know about transport-level cancellation.
type Executor struct {
	stages     *stage.Registry
	sessions   *sessionstore.Store
	mem        *memory.Graph
	agents     *agentmgr.Manager
	auditLog   *audit.Log
	compliance *compliance.Engine
	hub        *hub.Hub
	log        *slog.Logger
	maxStages  int
	budget     time.Duration

	mu         sync.Mutex
	cancelByID map[string]context.CancelFunc
}

// Config bundles the shared singletons an Executor wires against.
type Config struct {
	Stages     *stage.Registry
	Sessions   *sessionstore.Store
	Memory     *memory.Graph
	Agents     *agentmgr.Manager
	AuditLog   *audit.Log
	Compliance *compliance.Engine
	Hub        *hub.Hub
	Log        *slog.Logger
	MaxStages  int
	Budget     time.Duration
}

// New builds an Executor wired against the process-wide singletons.
func New(cfg Config) *Executor {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.MaxStages <= 0 || cfg.MaxStages > DefaultMaxStages {
		cfg.MaxStages = DefaultMaxStages
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultSessionBudget
	}
	return &Executor{
		stages:     cfg.Stages,
		sessions:   cfg.Sessions,
		mem:        cfg.Memory,
		agents:     cfg.Agents,
		auditLog:   cfg.AuditLog,
		compliance: cfg.Compliance,
		hub:        cfg.Hub,
		log:        cfg.Log,
		maxStages:  cfg.MaxStages,
		budget:     cfg.Budget,
		cancelByID: make(map[string]context.CancelFunc),
	}
}

func (e *Executor) broadcast(sessionID string, typ hub.MessageType, data any) {
	if e.hub == nil {
		return
	}
	e.hub.BroadcastSession(sessionID, hub.Envelope{Type: typ, Data: data})
}

// Run executes run(query, user-id?, max_stages?) end to end, per spec.md
// §4.8. It returns once the session reaches a terminal status.
func (e *Executor) Run(ctx context.Context, query, userID string, maxStages int) (RunResult, error) {
	if maxStages <= 0 || maxStages > e.maxStages {
		maxStages = e.maxStages
	}

	sess := e.sessions.Create(query, userID)
	sess.Status = sessionstore.StatusRunning
	sess.State = map[string]any{
		"start_time": time.Now(),
		"session_id": sess.ID,
		"run_id":     sess.RunID,
		"orig_query": query,
		"axes":       []float64{},
	}
	if err := e.sessions.Update(sess); err != nil {
		return RunResult{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelByID[sess.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancelByID, sess.ID)
		e.mu.Unlock()
		cancel()
	}()

	e.broadcast(sess.ID, hub.MessageSimulationStarted, map[string]any{"query": query})

	input := map[string]any{"query": query}
	startTime, _ := sess.State["start_time"].(time.Time)

	for stageNum := 1; stageNum <= maxStages; stageNum++ {
		sess, _ = e.sessions.Get(sess.ID)
		if sess.Status == sessionstore.StatusPaused {
			// Executor's next scheduled call simply no-ops until resumed
			// (spec.md §5 "Explicit /pause"). Run() itself does not poll
			// for resume — callers drive re-entry via Step().
			break
		}
		if sess.Status.Terminal() {
			break
		}

		if time.Since(startTime) > e.budget {
			sess.Status = sessionstore.StatusFailed
			sess.Error = "session budget exceeded"
			_ = e.sessions.Update(sess)
			break
		}

		result, ok, err := e.runStage(runCtx, &sess, stageNum, input)
		if err != nil {
			return RunResult{}, err
		}
		if !ok {
			continue // stage not registered: skip with a warning already logged
		}

		if sess.Status.Terminal() {
			break // containment or a stage-raised failure already finalized the session
		}
		if !result.Escalate && result.Confidence >= GlobalConfidenceThreshold {
			sess.Status = sessionstore.StatusCompleted
			sess.FinalOutput = result.Output
			_ = e.sessions.Update(sess)
			break
		}

		input = result.Output
	}

	sess, _ = e.sessions.Get(sess.ID)
	if !sess.Status.Terminal() {
		if sess.FinalOutput != nil {
			sess.Status = sessionstore.StatusCompleted
		} else {
			sess.Status = sessionstore.StatusFailed
		}
		_ = e.sessions.Update(sess)
	}

	e.broadcast(sess.ID, hub.MessageSimulationCompleted, map[string]any{"status": sess.Status})
	return RunResult{RunID: sess.RunID, Session: sess, FinalOutput: sess.FinalOutput}, nil
}

// runStage executes one stage and commits its LayerState, mutating *sess
// in place and persisting it. ok is false when the stage number has no
// registered implementation (spec.md §4.8.4.b "skip with a warning").
func (e *Executor) runStage(ctx context.Context, sess *sessionstore.Session, stageNum int, input map[string]any) (stage.Result, bool, error) {
	st, ok := e.stages.Get(stageNum)
	if !ok {
		e.log.Warn("pipeline: no stage registered, skipping", "stage", stageNum)
		return stage.Result{}, false, nil
	}
	meta := st.Meta()

	e.broadcast(sess.ID, hub.MessageStageStarted, map[string]any{"stage": stageNum, "name": meta.Name})

	var agents *agentmgr.Manager
	if meta.RequiresAgents {
		agents = e.agents
	}
	var mem *memory.Graph
	if meta.RequiresMemory {
		mem = e.mem
	}

	started := time.Now()
	result, stageErr := st.Process(ctx, input, sess.State, mem, agents)

	layerStatus := sessionstore.DeriveLayerStatus(stageErr, result.Confidence, result.Escalate)
	if stageErr != nil {
		result = stage.Result{Confidence: 0.1, Escalate: true, Trace: map[string]any{"message": stageErr.Error()}}
	}

	eventKind := sessionstore.EventStageOutput
	switch {
	case stageErr != nil:
		eventKind = sessionstore.EventStageFailed
	case result.Escalate:
		eventKind = sessionstore.EventStageEscalated
	}
	persona, _ := sess.State["persona"].(string)
	message, _ := result.Trace["message"].(string)
	traceStep := sessionstore.TraceStep{
		ID:                 uuid.New().String(),
		Timestamp:          time.Now(),
		Stage:              stageNum,
		StageName:          meta.Name,
		EventKind:          eventKind,
		Message:            message,
		ConfidenceSnapshot: result.Confidence,
		OutputSnapshot:     result.Output,
		Persona:            persona,
	}

	var delta float64
	if n := len(sess.Layers); n > 0 {
		delta = result.Confidence - sess.Layers[n-1].Confidence.Score
	}

	layer := sessionstore.LayerState{
		Stage:      stageNum,
		StageName:  meta.Name,
		Status:     layerStatus,
		TraceSteps: []sessionstore.TraceStep{traceStep},
		Agents:     result.AgentsSpawned,
		Confidence: sessionstore.ConfidenceInfo{
			Score:   result.Confidence,
			Delta:   delta,
			Entropy: result.Entropy,
		},
		Escalated:   result.Escalate,
		Forked:      len(result.Forks) > 0,
		Patches:     toPatchRefs(result.Patches),
		Forks:       toForkRefs(result.Forks),
		Output:      result.Output,
		StartedAt:   started,
		CompletedAt: time.Now(),
	}
	sess.Layers = append(sess.Layers, layer)
	sess.CurrentStage = stageNum

	e.broadcast(sess.ID, hub.MessageStageCompleted, map[string]any{"stage": stageNum, "confidence": result.Confidence})
	if result.Escalate {
		e.broadcast(sess.ID, hub.MessageStageEscalated, map[string]any{"stage": stageNum})
	}
	for _, f := range layer.Forks {
		e.broadcast(sess.ID, hub.MessageMemoryForked, map[string]any{"stage": stageNum, "cell_id": f.CellID})
	}

	confidence := result.Confidence
	cert := e.compliance.CheckAndLog(compliance.CheckInput{
		Stage:      stageNum,
		Details:    flattenForCompliance(result.Output),
		Confidence: &confidence,
	})
	if cert != nil {
		sess.Status = sessionstore.StatusContained
		layer.Status = sessionstore.LayerContained
		sess.Layers[len(sess.Layers)-1] = layer
		e.broadcast(sess.ID, hub.MessageContainmentTriggered, map[string]any{"stage": stageNum, "certificate": cert.AsMap()})
	}

	if agents != nil {
		for _, id := range result.AgentsSpawned {
			agents.Deactivate(id)
		}
	}

	if err := e.sessions.Update(*sess); err != nil {
		return result, true, fmt.Errorf("pipeline: commit stage %d: %w", stageNum, err)
	}
	return result, true, nil
}

func toPatchRefs(patches []stage.Patch) []sessionstore.PatchRef {
	out := make([]sessionstore.PatchRef, len(patches))
	for i, p := range patches {
		out[i] = sessionstore.PatchRef{Coordinate: p.Coordinate, CellID: p.CellID, Reason: p.Reason}
	}
	return out
}

func toForkRefs(forks []stage.Fork) []sessionstore.ForkRef {
	out := make([]sessionstore.ForkRef, len(forks))
	for i, f := range forks {
		out[i] = sessionstore.ForkRef{Coordinate: f.Coordinate, CellID: f.CellID, ParentCellID: f.ParentCellID, Reason: f.Reason}
	}
	return out
}

// flattenForCompliance lets ComplianceEngine rules look at a stage's
// top-level output fields without the pipeline needing to know which
// fields any given rule cares about.
func flattenForCompliance(output map[string]any) map[string]any {
	if output == nil {
		return map[string]any{}
	}
	return output
}

// Pause transitions a RUNNING session to PAUSED. The executor's next
// scheduled stage call checks status and no-ops (spec.md §5).
func (e *Executor) Pause(sessionID string) error {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("pipeline: session %q not found", sessionID)
	}
	if sess.Status.Terminal() {
		return fmt.Errorf("pipeline: cannot pause a terminal session")
	}
	sess.Status = sessionstore.StatusPaused
	return e.sessions.Update(sess)
}

// Resume transitions a PAUSED session back to RUNNING; the caller drives
// re-entry with Step.
func (e *Executor) Resume(sessionID string) error {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("pipeline: session %q not found", sessionID)
	}
	if sess.Status != sessionstore.StatusPaused {
		return fmt.Errorf("pipeline: session %q is not paused", sessionID)
	}
	sess.Status = sessionstore.StatusRunning
	return e.sessions.Update(sess)
}

// Contain forces CONTAINED status, short-circuits subsequent stages and
// emits CONTAINMENT_TRIGGERED (spec.md §5 "Explicit /contain").
func (e *Executor) Contain(sessionID, reason string) error {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("pipeline: session %q not found", sessionID)
	}
	if sess.Status.Terminal() {
		return fmt.Errorf("pipeline: session %q already terminal", sessionID)
	}
	sess.Status = sessionstore.StatusContained
	if err := e.sessions.Update(sess); err != nil {
		return err
	}

	e.mu.Lock()
	if cancel, ok := e.cancelByID[sessionID]; ok {
		cancel()
	}
	e.mu.Unlock()

	stageNum := sess.CurrentStage
	e.auditLog.Append(audit.LogInput{
		EventType:    audit.EventContainmentTrigger,
		Stage:        &stageNum,
		SimulationID: sessionID,
		Details:      map[string]any{"reason": reason, "source": "manual"},
	})
	e.broadcast(sessionID, hub.MessageContainmentTriggered, map[string]any{"reason": reason, "source": "manual"})
	return nil
}

// Step advances a paused session by exactly one stage (spec.md §4.8
// "Re-entry/stepping"). Stepping backward or past the configured stage
// ceiling, or stepping a terminal session, is an error.
func (e *Executor) Step(ctx context.Context, sessionID string) (stage.Result, error) {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return stage.Result{}, fmt.Errorf("pipeline: session %q not found", sessionID)
	}
	if sess.Status.Terminal() {
		return stage.Result{}, fmt.Errorf("pipeline: session %q is terminal", sessionID)
	}
	next := sess.CurrentStage + 1
	if next > e.maxStages {
		return stage.Result{}, fmt.Errorf("pipeline: cannot step past stage %d", e.maxStages)
	}

	sess.Status = sessionstore.StatusRunning
	if err := e.sessions.Update(sess); err != nil {
		return stage.Result{}, err
	}

	var input map[string]any
	if len(sess.Layers) > 0 {
		input = sess.Layers[len(sess.Layers)-1].Output
	} else {
		input = map[string]any{"query": sess.InputQuery}
	}

	result, ok2, err := e.runStage(ctx, &sess, next, input)
	if err != nil {
		return stage.Result{}, err
	}
	if !ok2 {
		return stage.Result{}, fmt.Errorf("pipeline: no stage registered for %d", next)
	}

	if sess.Status == sessionstore.StatusRunning {
		if !result.Escalate && result.Confidence >= GlobalConfidenceThreshold {
			sess.Status = sessionstore.StatusCompleted
			sess.FinalOutput = result.Output
		} else {
			sess.Status = sessionstore.StatusPaused
		}
		_ = e.sessions.Update(sess)
	}
	return result, nil
}
