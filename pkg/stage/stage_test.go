package stage

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/reasonctl/pkg/agentmgr"
	"github.com/codeready-toolchain/reasonctl/pkg/llmprovider"
	"github.com/codeready-toolchain/reasonctl/pkg/memory"
	"github.com/codeready-toolchain/reasonctl/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	s := newStage1(nil)
	require.NoError(t, r.Register(s))

	got, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Simulation Entry", got.Meta().Name)
}

func TestRegistryGetMissingStageFails(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get(4)
	assert.False(t, ok)
}

func TestRegistryRejectsOutOfRangeNumber(t *testing.T) {
	r := NewRegistry()
	bad := queryAnalyzerStage{base: base{meta: Meta{Number: 11}}}
	assert.Error(t, r.Register(bad))
}

func TestNewDefaultRegistryRegistersAllTenStages(t *testing.T) {
	r := NewDefaultRegistry(nil, nil)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, r.Numbers())
}

func TestStage1FallsBackWithoutKA(t *testing.T) {
	s := newStage1(nil)
	mem := memory.New()
	res, err := s.Process(context.Background(), map[string]any{"query": "what is the capital of somewhere far longer than twenty chars"},
		map[string]any{"session_id": "s1", "persona": "p1"}, mem, nil)
	require.NoError(t, err)
	assert.Greater(t, res.Confidence, 0.0)
	assert.Len(t, res.Patches, 1)
}

func TestStage1EscalatesBelowThreshold(t *testing.T) {
	ka := plugin.NewRegistry(nil)
	require.NoError(t, ka.Register(plugin.Meta{Name: "query_analyzer_ka"}, func(map[string]any, map[string]any) plugin.Result {
		return plugin.Result{Confidence: 0.1, Entropy: 0.9}
	}))
	s := newStage1(ka)
	res, err := s.Process(context.Background(), map[string]any{"query": "x"}, map[string]any{"session_id": "s1"}, memory.New(), nil)
	require.NoError(t, err)
	assert.True(t, res.Escalate)
}

func TestStage1PrefersLLMProviderOverKA(t *testing.T) {
	ka := plugin.NewRegistry(nil)
	require.NoError(t, ka.Register(plugin.Meta{Name: "query_analyzer_ka"}, func(map[string]any, map[string]any) plugin.Result {
		return plugin.Result{Confidence: 0.1}
	}))
	s := NewQueryAnalyzerStage(ka, llmprovider.NewFallback())
	res, err := s.Process(context.Background(), map[string]any{"query": "a detailed enough question"}, map[string]any{}, memory.New(), nil)
	require.NoError(t, err)
	assert.Greater(t, res.Confidence, 0.1)
}

func TestStage3SpawnsResearchTeamAndReportsConsensus(t *testing.T) {
	s := newStage3(nil)
	mgr := agentmgr.NewManager()
	res, err := s.Process(context.Background(), map[string]any{"query": "investigate"}, map[string]any{"session_id": "s1"}, memory.New(), mgr)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Trace)
	assert.Len(t, mgr.ActiveAgents(), 3)
}

func TestStage4SpawnsPOVTeam(t *testing.T) {
	s := newStage4(nil)
	mgr := agentmgr.NewManager()
	res, err := s.Process(context.Background(), map[string]any{"query": "assess"}, map[string]any{"session_id": "s1"}, memory.New(), mgr)
	require.NoError(t, err)
	assert.Len(t, mgr.ActiveAgents(), len(defaultStakeholders))
	assert.NotZero(t, res.Confidence)
}

func TestStage8EscalatesWhenEthicallyDenied(t *testing.T) {
	ka := plugin.NewRegistry(nil)
	require.NoError(t, ka.Register(plugin.Meta{Name: "quantum_superposition_ka"}, func(map[string]any, map[string]any) plugin.Result {
		return plugin.Result{Confidence: 0.9999, Output: map[string]any{"ethically_approved": false}}
	}))
	s := newStage8(ka)
	res, err := s.Process(context.Background(), map[string]any{}, map[string]any{}, memory.New(), nil)
	require.NoError(t, err)
	assert.True(t, res.Escalate)
	assert.Equal(t, false, res.Output["ethically_approved"])
}

func TestStage9EscalatesWhenSystemUnverified(t *testing.T) {
	ka := plugin.NewRegistry(nil)
	require.NoError(t, ka.Register(plugin.Meta{Name: "reality_synthesis_ka"}, func(map[string]any, map[string]any) plugin.Result {
		return plugin.Result{Confidence: 0.9999, Output: map[string]any{"system_verified": false}}
	}))
	s := newStage9(ka)
	res, err := s.Process(context.Background(), map[string]any{}, map[string]any{}, memory.New(), nil)
	require.NoError(t, err)
	assert.True(t, res.Escalate)
}

func TestStage7AveragesParallelBranchConfidence(t *testing.T) {
	ka := plugin.NewRegistry(nil)
	names := plugin.KAsForStage(7, 0)
	require.NotEmpty(t, names)
	for _, n := range names {
		require.NoError(t, ka.Register(plugin.Meta{Name: n}, func(map[string]any, map[string]any) plugin.Result {
			return plugin.Result{Confidence: 1.0, Entropy: 0.1}
		}))
	}
	s := newStage7(ka)
	res, err := s.Process(context.Background(), map[string]any{}, map[string]any{}, memory.New(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Confidence, 0.001)
}

func TestStage10DefaultsToPerfectConfidenceWithoutKA(t *testing.T) {
	s := newStage10(nil)
	res, err := s.Process(context.Background(), map[string]any{}, map[string]any{}, memory.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Confidence)
	assert.False(t, res.Escalate)
}

func TestPatchOutputNoopWithoutMemory(t *testing.T) {
	assert.Nil(t, patchOutput(nil, 1, map[string]any{}, map[string]any{}))
}
