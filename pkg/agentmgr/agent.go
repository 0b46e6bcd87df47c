// Package agentmgr spawns and coordinates research and point-of-view
// sub-agents and computes team consensus over their results.
package agentmgr

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two sub-agent roles a stage can spawn.
type Kind string

const (
	KindResearch Kind = "research"
	KindPOV      Kind = "pov"
)

var researchPersonas = []string{
	"domain_expert", "critical_thinker", "creative_reasoner",
	"safety_analyst", "synthesizer", "qa_expert",
}

// TraceEntry is one entry in an agent's activity log.
type TraceEntry struct {
	Timestamp time.Time
	Event     string
	Data      map[string]any
}

// Agent is a spawned sub-agent: either a research agent producing a
// reasoned answer, or a POV agent producing a stakeholder perspective.
type Agent struct {
	mu sync.Mutex

	ID              string
	Kind            Kind
	Persona         string
	Specialization  string // research agents only
	StakeholderType string // pov agents only
	Axes            []float64
	CreatedAt       time.Time
	Active          bool
	Trace           []TraceEntry
}

func (a *Agent) logTrace(event string, data map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Trace = append(a.Trace, TraceEntry{Timestamp: time.Now(), Event: event, Data: data})
}

func (a *Agent) deactivate() {
	a.mu.Lock()
	a.Active = false
	a.mu.Unlock()
	a.logTrace("deactivated", map[string]any{"reason": "manual_deactivation"})
}

// snapshot returns a race-free copy of the trace for external reads.
func (a *Agent) snapshotTrace() []TraceEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TraceEntry, len(a.Trace))
	copy(out, a.Trace)
	return out
}

func (a *Agent) isActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Active
}

// Result is the uniform output of Process for either agent kind.
type Result struct {
	AgentID         string
	Persona         string
	Kind            Kind
	Answer          string
	Reasoning       string
	Specialization  string
	StakeholderType string
	Concerns        []string
	Priorities      []string
	Confidence      float64
}

// Process runs this agent against a query, producing a deterministic,
// persona-conditioned result. The branching on persona/stakeholder type
// mirrors the reference agent's canned-response style: this is a
// rule-based stand-in for an LLM-backed agent, not the final word on
// reasoning quality.
func (a *Agent) Process(query string) Result {
	a.logTrace(string(a.Kind)+"_start", map[string]any{"query": query})

	var result Result
	if a.Kind == KindPOV {
		result = a.processPOV(query)
	} else {
		result = a.processResearch(query)
	}

	a.logTrace(string(a.Kind)+"_complete", map[string]any{"confidence": result.Confidence})
	return result
}

func (a *Agent) processResearch(query string) Result {
	lower := strings.ToLower(query)
	var confidence float64
	var reasoning, answer string

	switch a.Persona {
	case "domain_expert":
		confidence = 0.9
		reasoning = fmt.Sprintf("domain expertise applied to analyze %q", query)
		answer = fmt.Sprintf("expert analysis suggests: %s requires specialized consideration", lower)
	case "critical_thinker":
		confidence = 0.75
		reasoning = fmt.Sprintf("critical analysis reveals potential issues with %q", query)
		answer = fmt.Sprintf("critical evaluation indicates: %s rests on assumptions needing validation", lower)
	case "creative_reasoner":
		confidence = 0.7
		reasoning = fmt.Sprintf("creative approaches explored for %q", query)
		answer = fmt.Sprintf("alternative perspective: %s suggests unconventional methodologies", lower)
	case "safety_analyst":
		confidence = 0.85
		reasoning = fmt.Sprintf("safety assessment conducted for %q", query)
		answer = fmt.Sprintf("safety analysis shows: %s carries acceptable risk with proper precautions", lower)
	default:
		confidence = 0.8
		reasoning = fmt.Sprintf("general research conducted on %q", query)
		answer = fmt.Sprintf("research indicates: standard approaches apply to %s", lower)
	}

	return Result{
		AgentID:        a.ID,
		Persona:        a.Persona,
		Kind:           KindResearch,
		Answer:         answer,
		Reasoning:      reasoning,
		Specialization: a.Specialization,
		Confidence:     confidence,
	}
}

var povConcerns = map[string][]string{
	"users":      {"usability", "privacy", "cost"},
	"developers": {"feasibility", "resources", "technical_debt"},
	"regulators": {"compliance", "safety", "fairness"},
	"investors":  {"profitability", "risk", "market_impact"},
}

var povPriorities = map[string][]string{
	"users":      {"value", "ease_of_use", "reliability"},
	"developers": {"maintainability", "performance", "scalability"},
	"regulators": {"public_safety", "fair_competition", "transparency"},
	"investors":  {"ROI", "growth_potential", "risk_mitigation"},
}

func (a *Agent) processPOV(query string) Result {
	concerns, ok := povConcerns[a.StakeholderType]
	if !ok {
		concerns = []string{"impact", "risk"}
	}
	priorities, ok := povPriorities[a.StakeholderType]
	if !ok {
		priorities = []string{"benefit", "sustainability"}
	}

	return Result{
		AgentID:         a.ID,
		Persona:         a.Persona,
		Kind:            KindPOV,
		Answer:          fmt.Sprintf("from the %s perspective: %s has direct bearing on their stated concerns", a.StakeholderType, query),
		StakeholderType: a.StakeholderType,
		Concerns:        concerns,
		Priorities:      priorities,
		Confidence:      0.8,
	}
}

func newAgentID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String()[:8])
}
