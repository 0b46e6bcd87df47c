package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/reasonctl/pkg/agentmgr"
	"github.com/codeready-toolchain/reasonctl/pkg/llmprovider"
	"github.com/codeready-toolchain/reasonctl/pkg/memory"
	"github.com/codeready-toolchain/reasonctl/pkg/plugin"
)

// elapsedMS is the millisecond wall-clock elapsed since start, reported
// by every builtin stage as StageResult.processing_time_ms.
func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// base carries the fields every builtin stage shares: its declared Meta and
// a handle to the KA registry it may consult per the stage-to-KA mapping.
// Embedding it keeps each stage's own file focused on what makes it
// different rather than repeating Meta()/boilerplate ten times.
type base struct {
	meta Meta
	ka   *plugin.Registry
}

func (b base) Meta() Meta { return b.meta }

func escalateOn(confidence float64, threshold float64) bool {
	return confidence < threshold
}

// patchOutput writes a stage's output into the shared MemoryGraph under a
// stage-scoped coordinate and reports it as a Patch, per spec.md §4.8.f
// ("apply patches to MemoryGraph already done by the stage").
func patchOutput(mem *memory.Graph, stageNumber int, state map[string]any, output map[string]any) []Patch {
	if mem == nil {
		return nil
	}
	persona := personaOf(state)
	coord := stageCoordinate(stageNumber, sessionIDOf(state), persona)
	cell := mem.Patch(coord, output, map[string]any{"stage": stageNumber}, persona)
	return []Patch{{Coordinate: coord.Encode(), CellID: cell.CellID, Reason: fmt.Sprintf("stage %d output", stageNumber)}}
}

// ────────────────────────────────────────────────────────────
// Stage 1 — Simulation Entry Layer: query parsing, axis anchoring.
// ────────────────────────────────────────────────────────────

// queryAnalyzerStage is stage 1's default implementation — named distinctly
// from the base struct because it owns an extra dependency (llm) the other
// nine stages don't: an optional LLM provider tried before the KA/heuristic
// fallback chain, per the "stage 1 degrades gracefully, never blocks
// startup on LLM availability" decision.
type queryAnalyzerStage struct {
	base
	llm llmprovider.Provider
}

// NewQueryAnalyzerStage builds stage 1. llm may be nil, in which case the
// stage falls through to its KA mapping and finally a length heuristic.
func NewQueryAnalyzerStage(ka *plugin.Registry, llm llmprovider.Provider) Stage {
	return queryAnalyzerStage{
		base: base{meta: Meta{
			Number: 1, Name: "Simulation Entry", ConfidenceThreshold: 0.75, EntropyThreshold: 0.5,
			MaxProcessingTimeMS: 5000, RequiresMemory: true,
		}, ka: ka},
		llm: llm,
	}
}

func newStage1(ka *plugin.Registry) Stage { return NewQueryAnalyzerStage(ka, nil) }

func (s queryAnalyzerStage) Process(ctx context.Context, input, state map[string]any, mem *memory.Graph, _ *agentmgr.Manager) (Result, error) {
	started := time.Now()
	query, _ := input["query"].(string)

	var confidence, entropy float64
	var analyzed any

	if s.llm != nil {
		resp, err := s.llm.Generate(ctx, llmprovider.Request{SessionID: sessionIDOf(state), Prompt: query})
		if err == nil {
			confidence = resp.Confidence
			analyzed = resp.Text
		}
	}
	if confidence == 0 {
		kaResult := bestKAResult(s.ka, s.meta.Number, map[string]any{"query": query}, state)
		confidence, entropy, analyzed = kaResult.Confidence, kaResult.Entropy, kaResult.Output
	}
	if confidence == 0 {
		// Neither an LLM provider nor a KA is configured: fall back to a
		// length heuristic so the pipeline still has a usable signal.
		confidence = 0.6
		if len(query) > 20 {
			confidence = 0.8
		}
	}

	output := map[string]any{
		"query":      query,
		"normalized": query,
		"analysis":   analyzed,
	}
	return Result{
		Output:           output,
		Confidence:       confidence,
		Entropy:          entropy,
		Escalate:         escalateOn(confidence, s.meta.ConfidenceThreshold),
		Patches:          patchOutput(mem, s.meta.Number, state, output),
		Metadata:         map[string]any{"used_llm": s.llm != nil},
		ProcessingTimeMS: elapsedMS(started),
		Trace:            map[string]any{"message": "query parsed and anchored"},
	}, nil
}

// ────────────────────────────────────────────────────────────
// Stage 2 — Memory/Database Layer: knowledge graph retrieval.
// ────────────────────────────────────────────────────────────

type stage2Memory struct{ base }

func newStage2(ka *plugin.Registry) Stage {
	return stage2Memory{base{meta: Meta{
		Number: 2, Name: "Memory Retrieval", ConfidenceThreshold: 0.7, EntropyThreshold: 0.5,
		MaxProcessingTimeMS: 5000, RequiresMemory: true,
	}, ka: ka}}
}

func (s stage2Memory) Process(_ context.Context, input, state map[string]any, mem *memory.Graph, _ *agentmgr.Manager) (Result, error) {
	started := time.Now()
	persona := personaOf(state)
	related := mem.FindByPersona(persona)

	kaResult := bestKAResult(s.ka, s.meta.Number, map[string]any{"related_count": len(related)}, state)
	confidence := kaResult.Confidence
	if confidence == 0 {
		confidence = 0.65 + 0.05*float64(min(len(related), 6))
	}

	output := map[string]any{"retrieved_cells": len(related), "persona": persona, "prior": input}
	return Result{
		Output:           output,
		Confidence:       confidence,
		Entropy:          kaResult.Entropy,
		Escalate:         escalateOn(confidence, s.meta.ConfidenceThreshold),
		Patches:          patchOutput(mem, s.meta.Number, state, output),
		Metadata:         map[string]any{"related_count": len(related)},
		ProcessingTimeMS: elapsedMS(started),
		Trace:            map[string]any{"message": fmt.Sprintf("retrieved %d related cells", len(related))},
	}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ────────────────────────────────────────────────────────────
// Stage 3 — Research Agents Layer: spawns and coordinates research agents.
// ────────────────────────────────────────────────────────────

type stage3Research struct{ base }

func newStage3(ka *plugin.Registry) Stage {
	return stage3Research{base{meta: Meta{
		Number: 3, Name: "Research Agents", ConfidenceThreshold: 0.8, EntropyThreshold: 0.5,
		MaxProcessingTimeMS: 15000, RequiresAgents: true, RequiresMemory: true,
	}, ka: ka}}
}

func (s stage3Research) Process(ctx context.Context, input, state map[string]any, mem *memory.Graph, agents *agentmgr.Manager) (Result, error) {
	started := time.Now()
	query, _ := input["query"].(string)
	var axes []float64
	var ids []string
	var teamResult agentmgr.TeamResult
	if agents != nil {
		ids = agents.SpawnResearch(3, axes, nil)
		teamID := agents.CreateTeam(ids, "stage-3-research")
		var err error
		teamResult, err = agents.RunTeam(ctx, teamID, query)
		if err != nil {
			return Result{}, fmt.Errorf("stage 3 research team: %w", err)
		}
	}

	confidence := teamResult.Consensus.TeamConfidence
	if confidence == 0 {
		confidence = bestKAResult(s.ka, s.meta.Number, map[string]any{"query": query}, state).Confidence
	}

	output := map[string]any{"team_result": teamResult, "prior": input}
	return Result{
		Output:           output,
		Confidence:       confidence,
		Entropy:          1 - teamResult.Consensus.ConsensusStrength,
		Escalate:         escalateOn(confidence, s.meta.ConfidenceThreshold),
		Patches:          patchOutput(mem, s.meta.Number, state, output),
		AgentsSpawned:    ids,
		Metadata:         map[string]any{"agreement_level": teamResult.Consensus.AgreementLevel},
		ProcessingTimeMS: elapsedMS(started),
		Trace:            map[string]any{"message": fmt.Sprintf("research team agreement: %s", teamResult.Consensus.AgreementLevel)},
	}, nil
}

// ────────────────────────────────────────────────────────────
// Stage 4 — Point-of-View Engine: stakeholder perspective triangulation.
// ────────────────────────────────────────────────────────────

type stage4POV struct{ base }

func newStage4(ka *plugin.Registry) Stage {
	return stage4POV{base{meta: Meta{
		Number: 4, Name: "Point-of-View Engine", ConfidenceThreshold: 0.8, EntropyThreshold: 0.55,
		MaxProcessingTimeMS: 15000, RequiresAgents: true, RequiresMemory: true,
	}, ka: ka}}
}

var defaultStakeholders = []string{"regulator", "end_user", "operator", "adversary"}

func (s stage4POV) Process(ctx context.Context, input, state map[string]any, mem *memory.Graph, agents *agentmgr.Manager) (Result, error) {
	started := time.Now()
	query, _ := input["query"].(string)
	var ids []string
	var teamResult agentmgr.TeamResult
	if agents != nil {
		ids = agents.SpawnPOV(defaultStakeholders, nil)
		teamID := agents.CreateTeam(ids, "stage-4-pov")
		var err error
		teamResult, err = agents.RunTeam(ctx, teamID, query)
		if err != nil {
			return Result{}, fmt.Errorf("stage 4 pov team: %w", err)
		}
	}

	confidence := teamResult.Consensus.TeamConfidence
	if confidence == 0 {
		confidence = bestKAResult(s.ka, s.meta.Number, map[string]any{"query": query}, state).Confidence
	}

	output := map[string]any{"pov_team_result": teamResult, "prior": input}
	return Result{
		Output:           output,
		Confidence:       confidence,
		Entropy:          1 - teamResult.Consensus.ConsensusStrength,
		Escalate:         escalateOn(confidence, s.meta.ConfidenceThreshold) || teamResult.Consensus.AgreementLevel == "low",
		Patches:          patchOutput(mem, s.meta.Number, state, output),
		AgentsSpawned:    ids,
		Metadata:         map[string]any{"stakeholders": defaultStakeholders},
		ProcessingTimeMS: elapsedMS(started),
		Trace:            map[string]any{"message": "stakeholder perspectives triangulated"},
	}, nil
}

// ────────────────────────────────────────────────────────────
// Stage 5 — Gatekeeper/Team Management: consensus gating before escalation.
// ────────────────────────────────────────────────────────────

type stage5Gatekeeper struct{ base }

func newStage5(ka *plugin.Registry) Stage {
	return stage5Gatekeeper{base{meta: Meta{
		Number: 5, Name: "Gatekeeper / Team Management", ConfidenceThreshold: 0.998, EntropyThreshold: 0.4,
		MaxProcessingTimeMS: 10000, RequiresAgents: true, RequiresMemory: true, SafetyCritical: true,
	}, ka: ka}}
}

func (s stage5Gatekeeper) Process(_ context.Context, input, state map[string]any, mem *memory.Graph, agents *agentmgr.Manager) (Result, error) {
	started := time.Now()
	prevConfidence, _ := input["confidence"].(float64)
	kaResult := bestKAResult(s.ka, s.meta.Number, map[string]any{"prev_confidence": prevConfidence}, state)

	confidence := kaResult.Confidence
	if confidence == 0 {
		confidence = prevConfidence
	}

	var activeAgents int
	if agents != nil {
		activeAgents = len(agents.ActiveAgents())
	}

	output := map[string]any{"gatekeeper_decision": "proceed", "active_agents": activeAgents, "prior": input}
	return Result{
		Output:           output,
		Confidence:       confidence,
		Entropy:          kaResult.Entropy,
		Escalate:         escalateOn(confidence, s.meta.ConfidenceThreshold),
		Patches:          patchOutput(mem, s.meta.Number, state, output),
		Metadata:         map[string]any{"active_agents": activeAgents},
		ProcessingTimeMS: elapsedMS(started),
		Trace:            map[string]any{"message": "gatekeeper reviewed team state"},
	}, nil
}

// ────────────────────────────────────────────────────────────
// Stage 6 — Advanced Reasoning & Synthesis.
// ────────────────────────────────────────────────────────────

type stage6Reasoning struct{ base }

func newStage6(ka *plugin.Registry) Stage {
	return stage6Reasoning{base{meta: Meta{
		Number: 6, Name: "Advanced Reasoning & Synthesis", ConfidenceThreshold: 0.998, EntropyThreshold: 0.4,
		MaxProcessingTimeMS: 15000, RequiresMemory: true, SafetyCritical: true,
	}, ka: ka}}
}

func (s stage6Reasoning) Process(_ context.Context, input, state map[string]any, mem *memory.Graph, _ *agentmgr.Manager) (Result, error) {
	started := time.Now()
	kaResult := bestKAResult(s.ka, s.meta.Number, input, state)
	confidence := kaResult.Confidence
	if confidence == 0 {
		confidence = 0.97
	}

	output := map[string]any{"synthesis": kaResult.Output, "prior": input}
	return Result{
		Output:           output,
		Confidence:       confidence,
		Entropy:          kaResult.Entropy,
		Escalate:         escalateOn(confidence, s.meta.ConfidenceThreshold),
		Patches:          patchOutput(mem, s.meta.Number, state, output),
		ProcessingTimeMS: elapsedMS(started),
		Trace:            map[string]any{"message": "advanced synthesis completed"},
	}, nil
}

// ────────────────────────────────────────────────────────────
// Stage 7 — Quantum Reasoning & Parallel Processing: explores parallel
// hypothesis branches via fan-out KA calls rather than priority order.
// ────────────────────────────────────────────────────────────

type stage7Quantum struct{ base }

func newStage7(ka *plugin.Registry) Stage {
	return stage7Quantum{base{meta: Meta{
		Number: 7, Name: "Quantum Reasoning & Parallel Processing", ConfidenceThreshold: 0.998, EntropyThreshold: 0.35,
		MaxProcessingTimeMS: 20000, RequiresMemory: true, SafetyCritical: true,
	}, ka: ka}}
}

func (s stage7Quantum) Process(_ context.Context, input, state map[string]any, mem *memory.Graph, _ *agentmgr.Manager) (Result, error) {
	started := time.Now()
	var branches []plugin.Result
	if s.ka != nil {
		for _, name := range plugin.KAsForStage(s.meta.Number, 0) {
			branches = append(branches, s.ka.Call(name, input, state))
		}
	}

	var sumConfidence, maxEntropy float64
	for _, b := range branches {
		sumConfidence += b.Confidence
		if b.Entropy > maxEntropy {
			maxEntropy = b.Entropy
		}
	}
	confidence := 0.97
	if len(branches) > 0 {
		confidence = sumConfidence / float64(len(branches))
	}

	output := map[string]any{"branches_explored": len(branches), "prior": input}
	return Result{
		Output:           output,
		Confidence:       confidence,
		Entropy:          maxEntropy,
		Escalate:         escalateOn(confidence, s.meta.ConfidenceThreshold),
		Patches:          patchOutput(mem, s.meta.Number, state, output),
		Metadata:         map[string]any{"branches_explored": len(branches)},
		ProcessingTimeMS: elapsedMS(started),
		Trace:            map[string]any{"message": fmt.Sprintf("explored %d parallel hypothesis branches", len(branches))},
	}, nil
}

// ────────────────────────────────────────────────────────────
// Stage 8 — Societal Impact & Ethics.
// ────────────────────────────────────────────────────────────

type stage8Ethics struct{ base }

func newStage8(ka *plugin.Registry) Stage {
	return stage8Ethics{base{meta: Meta{
		Number: 8, Name: "Societal Impact & Ethics", ConfidenceThreshold: 0.999, EntropyThreshold: 0.3,
		MaxProcessingTimeMS: 15000, RequiresMemory: true, SafetyCritical: true,
	}, ka: ka}}
}

func (s stage8Ethics) Process(_ context.Context, input, state map[string]any, mem *memory.Graph, _ *agentmgr.Manager) (Result, error) {
	started := time.Now()
	kaResult := bestKAResult(s.ka, s.meta.Number, input, state)
	confidence := kaResult.Confidence
	if confidence == 0 {
		confidence = 0.995
	}

	ethicallyApproved := true
	if v, ok := kaResult.Output.(map[string]any); ok {
		if approved, ok := v["ethically_approved"].(bool); ok {
			ethicallyApproved = approved
		}
	}

	output := map[string]any{"ethically_approved": ethicallyApproved, "prior": input}
	return Result{
		Output:           output,
		Confidence:       confidence,
		Entropy:          kaResult.Entropy,
		Escalate:         escalateOn(confidence, s.meta.ConfidenceThreshold) || !ethicallyApproved,
		Patches:          patchOutput(mem, s.meta.Number, state, output),
		Metadata:         map[string]any{"ethically_approved": ethicallyApproved},
		ProcessingTimeMS: elapsedMS(started),
		Trace:            map[string]any{"message": "societal impact and ethics review complete"},
	}, nil
}

// ────────────────────────────────────────────────────────────
// Stage 9 — Meta-Analysis & System Verification.
// ────────────────────────────────────────────────────────────

type stage9MetaVerification struct{ base }

func newStage9(ka *plugin.Registry) Stage {
	return stage9MetaVerification{base{meta: Meta{
		Number: 9, Name: "Meta-Analysis & System Verification", ConfidenceThreshold: 0.9995, EntropyThreshold: 0.2,
		MaxProcessingTimeMS: 20000, RequiresMemory: true, SafetyCritical: true,
	}, ka: ka}}
}

func (s stage9MetaVerification) Process(_ context.Context, input, state map[string]any, mem *memory.Graph, _ *agentmgr.Manager) (Result, error) {
	started := time.Now()
	kaResult := bestKAResult(s.ka, s.meta.Number, input, state)
	confidence := kaResult.Confidence
	if confidence == 0 {
		confidence = 0.9996
	}

	systemVerified := true
	if v, ok := kaResult.Output.(map[string]any); ok {
		if verified, ok := v["system_verified"].(bool); ok {
			systemVerified = verified
		}
	}

	output := map[string]any{"system_verified": systemVerified, "prior": input}
	return Result{
		Output:           output,
		Confidence:       confidence,
		Entropy:          kaResult.Entropy,
		Escalate:         escalateOn(confidence, s.meta.ConfidenceThreshold) || !systemVerified,
		Patches:          patchOutput(mem, s.meta.Number, state, output),
		Metadata:         map[string]any{"system_verified": systemVerified},
		ProcessingTimeMS: elapsedMS(started),
		Trace:            map[string]any{"message": "system verification pass"},
	}, nil
}

// ────────────────────────────────────────────────────────────
// Stage 10 — Emergence & Containment Management: final stage, AGI
// emergence detection and containment-relevant signal surfacing. Note
// this stage does not itself mint containment certificates — that's the
// ComplianceEngine's job off the Details this stage's output feeds it.
// ────────────────────────────────────────────────────────────

type stage10Emergence struct{ base }

func newStage10(ka *plugin.Registry) Stage {
	return stage10Emergence{base{meta: Meta{
		Number: 10, Name: "Emergence & Containment Management", ConfidenceThreshold: 1.0, EntropyThreshold: 0.1,
		MaxProcessingTimeMS: 20000, RequiresMemory: true, SafetyCritical: true,
	}, ka: ka}}
}

func (s stage10Emergence) Process(_ context.Context, input, state map[string]any, mem *memory.Graph, _ *agentmgr.Manager) (Result, error) {
	started := time.Now()
	kaResult := bestKAResult(s.ka, s.meta.Number, input, state)
	confidence := kaResult.Confidence
	if confidence == 0 {
		confidence = 1.0
	}

	output := map[string]any{"final_assessment": kaResult.Output, "prior": input}
	return Result{
		Output:           output,
		Confidence:       confidence,
		Entropy:          kaResult.Entropy,
		Escalate:         escalateOn(confidence, s.meta.ConfidenceThreshold),
		Patches:          patchOutput(mem, s.meta.Number, state, output),
		ProcessingTimeMS: elapsedMS(started),
		Trace:            map[string]any{"message": "emergence and containment review complete"},
	}, nil
}

// NewDefaultRegistry returns a Registry with all ten builtin stages
// registered, each wired to ka for its mapped KAs per plugin.KAsForStage.
// ka and llm may both be nil — every stage degrades to a rule-based
// fallback (llm only affects stage 1).
func NewDefaultRegistry(ka *plugin.Registry, llm llmprovider.Provider) *Registry {
	r := NewRegistry()
	for _, s := range []Stage{
		NewQueryAnalyzerStage(ka, llm), newStage2(ka), newStage3(ka), newStage4(ka), newStage5(ka),
		newStage6(ka), newStage7(ka), newStage8(ka), newStage9(ka), newStage10(ka),
	} {
		_ = r.Register(s)
	}
	return r
}
