package agentmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Team groups agents spawned for a single collaborative pass.
type Team struct {
	ID        string
	AgentIDs  []string
	CreatedAt time.Time
}

// Consensus summarizes agreement across a team's results, per the
// reference agent manager's consensus formula: mean confidence, and a
// variance-based consensus strength clamped at zero.
type Consensus struct {
	TeamConfidence     float64
	ConsensusStrength  float64
	ConfidenceVariance float64
	AgentCount         int
	AgreementLevel     string // "high" | "medium" | "low"
}

// TeamResult is the output of running a team collaboratively.
type TeamResult struct {
	TeamID       string
	AgentResults []Result
	Consensus    Consensus
}

// Stats reports manager-wide occupancy for the stats() operation.
type Stats struct {
	TotalAgents         int
	ActiveAgents        int
	InactiveAgents      int
	Teams               int
	PersonaDistribution map[string]int
}

// Manager spawns, tracks and coordinates sub-agents. A single mutex
// guards both the agent and team maps, mirroring the session store's
// single-lock-over-an-in-process-map pattern; team execution itself
// fans out with errgroup so individual agent failures never abort the
// whole team.
type Manager struct {
	mu     sync.Mutex
	agents map[string]*Agent
	teams  map[string]*Team
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		agents: make(map[string]*Agent),
		teams:  make(map[string]*Team),
	}
}

// SpawnResearch spawns count research agents cycling through the fixed
// persona list and the supplied specializations (cycled if shorter than
// count; defaults to "general" when nil).
func (m *Manager) SpawnResearch(count int, axes []float64, specializations []string) []string {
	if len(specializations) == 0 {
		specializations = []string{"general"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		a := &Agent{
			ID:             newAgentID("research"),
			Kind:           KindResearch,
			Persona:        researchPersonas[i%len(researchPersonas)],
			Specialization: specializations[i%len(specializations)],
			Axes:           append([]float64{}, axes...),
			CreatedAt:      time.Now(),
			Active:         true,
		}
		m.agents[a.ID] = a
		ids = append(ids, a.ID)
	}
	return ids
}

// SpawnPOV spawns one POV agent per stakeholder type.
func (m *Manager) SpawnPOV(stakeholderTypes []string, axes []float64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(stakeholderTypes))
	for _, st := range stakeholderTypes {
		a := &Agent{
			ID:              newAgentID("pov_" + st),
			Kind:            KindPOV,
			Persona:         st + "_representative",
			StakeholderType: st,
			Axes:            append([]float64{}, axes...),
			CreatedAt:       time.Now(),
			Active:          true,
		}
		m.agents[a.ID] = a
		ids = append(ids, a.ID)
	}
	return ids
}

// CreateTeam groups existing agent ids into a named team. Unknown ids
// are silently dropped, matching the reference manager's tolerance of
// stale references.
func (m *Manager) CreateTeam(agentIDs []string, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	teamID := name
	if teamID == "" {
		teamID = newAgentID("team")
	}

	members := make([]string, 0, len(agentIDs))
	for _, id := range agentIDs {
		if _, ok := m.agents[id]; ok {
			members = append(members, id)
		}
	}

	m.teams[teamID] = &Team{ID: teamID, AgentIDs: members, CreatedAt: time.Now()}
	return teamID
}

// RunTeam runs every active member of teamID against query concurrently
// and returns their results plus the computed consensus. An individual
// agent failing (context cancellation, panic) is excluded from the
// result set rather than failing the whole team, matching the
// reference team's best-effort collection.
func (m *Manager) RunTeam(ctx context.Context, teamID, query string) (TeamResult, error) {
	m.mu.Lock()
	team, ok := m.teams[teamID]
	if !ok {
		m.mu.Unlock()
		return TeamResult{}, fmt.Errorf("agentmgr: team %q not found", teamID)
	}
	members := make([]*Agent, 0, len(team.AgentIDs))
	for _, id := range team.AgentIDs {
		if a, ok := m.agents[id]; ok && a.isActive() {
			members = append(members, a)
		}
	}
	m.mu.Unlock()

	results := make([]Result, len(members))
	ok_ := make([]bool, len(members))

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range members {
		i, agent := i, agent
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = nil // swallow: this agent is simply excluded from results
				}
			}()
			select {
			case <-gctx.Done():
				return nil
			default:
			}
			results[i] = agent.Process(query)
			ok_[i] = true
			return nil
		})
	}
	_ = g.Wait() // errors are never returned by the goroutines above; best-effort collection only

	collected := make([]Result, 0, len(results))
	for i, v := range ok_ {
		if v {
			collected = append(collected, results[i])
		}
	}

	return TeamResult{
		TeamID:       teamID,
		AgentResults: collected,
		Consensus:    computeConsensus(collected),
	}, nil
}

func computeConsensus(results []Result) Consensus {
	if len(results) == 0 {
		return Consensus{AgreementLevel: "low"}
	}

	sum := 0.0
	for _, r := range results {
		sum += r.Confidence
	}
	mean := sum / float64(len(results))

	variance := 0.0
	for _, r := range results {
		d := r.Confidence - mean
		variance += d * d
	}
	variance /= float64(len(results))

	strength := 1.0 - variance
	if strength < 0 {
		strength = 0
	}

	level := "low"
	switch {
	case strength > 0.8:
		level = "high"
	case strength > 0.5:
		level = "medium"
	}

	return Consensus{
		TeamConfidence:     mean,
		ConsensusStrength:  strength,
		ConfidenceVariance: variance,
		AgentCount:         len(results),
		AgreementLevel:     level,
	}
}

// Get returns an agent by id.
func (m *Manager) Get(id string) (*Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	return a, ok
}

// Deactivate marks an agent inactive; returns false if the id is unknown.
func (m *Manager) Deactivate(id string) bool {
	m.mu.Lock()
	a, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	a.deactivate()
	return true
}

// ActiveAgents returns all currently active agents.
func (m *Manager) ActiveAgents() []*Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		if a.isActive() {
			out = append(out, a)
		}
	}
	return out
}

// CleanupInactive drops inactive agents from the manager, returning the
// number removed.
func (m *Manager) CleanupInactive() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, a := range m.agents {
		if !a.isActive() {
			delete(m.agents, id)
			removed++
		}
	}
	return removed
}

// StatsSnapshot reports manager-wide agent/team occupancy.
func (m *Manager) StatsSnapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	personas := make(map[string]int)
	for _, a := range m.agents {
		personas[a.Persona]++
		if a.isActive() {
			active++
		}
	}

	return Stats{
		TotalAgents:         len(m.agents),
		ActiveAgents:        active,
		InactiveAgents:      len(m.agents) - active,
		Teams:               len(m.teams),
		PersonaDistribution: personas,
	}
}
