package pipeline

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/reasonctl/pkg/agentmgr"
	"github.com/codeready-toolchain/reasonctl/pkg/audit"
	"github.com/codeready-toolchain/reasonctl/pkg/compliance"
	"github.com/codeready-toolchain/reasonctl/pkg/memory"
	"github.com/codeready-toolchain/reasonctl/pkg/sessionstore"
	"github.com/codeready-toolchain/reasonctl/pkg/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStage is a minimal test double implementing stage.Stage so pipeline
// tests don't depend on pkg/stage's builtin heuristics.
type stubStage struct {
	meta       stage.Meta
	confidence float64
	escalate   bool
	raises     bool
	output     map[string]any
}

func (s stubStage) Meta() stage.Meta { return s.meta }

func (s stubStage) Process(context.Context, map[string]any, map[string]any, *memory.Graph, *agentmgr.Manager) (stage.Result, error) {
	if s.raises {
		return stage.Result{}, assert.AnError
	}
	out := s.output
	if out == nil {
		out = map[string]any{"stage": s.meta.Number}
	}
	return stage.Result{Output: out, Confidence: s.confidence, Escalate: s.escalate}, nil
}

func newExecutor(stages *stage.Registry) *Executor {
	return New(Config{
		Stages:     stages,
		Sessions:   sessionstore.New(),
		Memory:     memory.New(),
		Agents:     agentmgr.NewManager(),
		AuditLog:   audit.NewLog(),
		Compliance: compliance.NewEngine(audit.NewLog(), nil, 2),
	})
}

func TestRunCompletesWhenFirstStageClearsThreshold(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 1, Name: "one"}, confidence: 0.999}))

	e := newExecutor(reg)
	result, err := e.Run(context.Background(), "2+2?", "", 0)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusCompleted, result.Session.Status)
	assert.NotNil(t, result.FinalOutput)
	require.Len(t, result.Session.Layers, 1)
}

func TestRunEscalatesThroughMultipleStages(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 1, Name: "one"}, confidence: 0.6, escalate: true}))
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 2, Name: "two"}, confidence: 0.999}))

	e := newExecutor(reg)
	result, err := e.Run(context.Background(), "q", "", 0)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusCompleted, result.Session.Status)
	require.Len(t, result.Session.Layers, 2)
	assert.True(t, result.Session.Layers[0].Escalated)
}

func TestRunFailsWhenNoStageEverCompletes(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 1, Name: "one"}, confidence: 0.5, escalate: true}))

	e := New(Config{
		Stages:     reg,
		Sessions:   sessionstore.New(),
		Memory:     memory.New(),
		Agents:     agentmgr.NewManager(),
		AuditLog:   audit.NewLog(),
		Compliance: compliance.NewEngine(audit.NewLog(), nil, 2),
		MaxStages:  1,
	})
	result, err := e.Run(context.Background(), "q", "", 0)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusFailed, result.Session.Status)
}

func TestRunSkipsUnregisteredStageNumbers(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 2, Name: "two"}, confidence: 0.999}))

	e := New(Config{
		Stages:     reg,
		Sessions:   sessionstore.New(),
		Memory:     memory.New(),
		Agents:     agentmgr.NewManager(),
		AuditLog:   audit.NewLog(),
		Compliance: compliance.NewEngine(audit.NewLog(), nil, 2),
		MaxStages:  2,
	})
	result, err := e.Run(context.Background(), "q", "", 0)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusCompleted, result.Session.Status)
	require.Len(t, result.Session.Layers, 1)
	assert.Equal(t, 2, result.Session.Layers[0].Stage)
}

func TestRunCommitsLayerAsFailedWhenStageRaises(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 1, Name: "one"}, raises: true}))
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 2, Name: "two"}, confidence: 0.999}))

	e := newExecutor(reg)
	result, err := e.Run(context.Background(), "q", "", 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Session.Layers), 1)
	assert.Equal(t, sessionstore.LayerFailed, result.Session.Layers[0].Status)
}

func TestRunTriggersContainmentAndStopsEarly(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register(stubStage{
		meta: stage.Meta{Number: 8, Name: "ethics"}, confidence: 0.6,
		output: map[string]any{"ethically_approved": false},
	}))
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 9, Name: "meta"}, confidence: 0.999}))

	e := New(Config{
		Stages:     reg,
		Sessions:   sessionstore.New(),
		Memory:     memory.New(),
		Agents:     agentmgr.NewManager(),
		AuditLog:   audit.NewLog(),
		Compliance: compliance.NewEngine(audit.NewLog(), nil, 2),
		MaxStages:  10,
	})
	result, err := e.Run(context.Background(), "q", "", 0)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusContained, result.Session.Status)
	// Only stage 8 ran; stage 9 never executed because containment broke the loop.
	for _, l := range result.Session.Layers {
		assert.NotEqual(t, 9, l.Stage)
	}
}

func TestPauseThenStepAdvancesOneStage(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 1, Name: "one"}, confidence: 0.5, escalate: true}))
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 2, Name: "two"}, confidence: 0.999}))

	e := New(Config{
		Stages:     reg,
		Sessions:   sessionstore.New(),
		Memory:     memory.New(),
		Agents:     agentmgr.NewManager(),
		AuditLog:   audit.NewLog(),
		Compliance: compliance.NewEngine(audit.NewLog(), nil, 2),
		MaxStages:  1, // force the Run loop to stop after stage 1 so we can step manually
	})
	result, err := e.Run(context.Background(), "q", "", 0)
	require.NoError(t, err)
	require.Equal(t, sessionstore.StatusFailed, result.Session.Status)

	// Manually reopen for stepping (simulating an operator resume after
	// raising the stage ceiling).
	sess, _ := e.sessions.Get(result.Session.ID)
	sess.Status = sessionstore.StatusPaused
	require.NoError(t, e.sessions.Update(sess))
	e.maxStages = 2

	stepResult, err := e.Step(context.Background(), result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.999, stepResult.Confidence)

	final, _ := e.sessions.Get(result.Session.ID)
	assert.Equal(t, sessionstore.StatusCompleted, final.Status)
}

func TestStepPastMaxStagesIsDisallowed(t *testing.T) {
	reg := stage.NewRegistry()
	require.NoError(t, reg.Register(stubStage{meta: stage.Meta{Number: 1, Name: "one"}, confidence: 0.999}))

	e := New(Config{
		Stages: reg, Sessions: sessionstore.New(), Memory: memory.New(), Agents: agentmgr.NewManager(),
		AuditLog: audit.NewLog(), Compliance: compliance.NewEngine(audit.NewLog(), nil, 2), MaxStages: 1,
	})
	sess := e.sessions.Create("q", "")
	sess.CurrentStage = 1
	require.NoError(t, e.sessions.Update(sess))

	_, err := e.Step(context.Background(), sess.ID)
	assert.Error(t, err)
}

func TestStepOnTerminalSessionFails(t *testing.T) {
	e := newExecutor(stage.NewRegistry())
	sess := e.sessions.Create("q", "")
	sess.Status = sessionstore.StatusCompleted
	require.NoError(t, e.sessions.Update(sess))

	_, err := e.Step(context.Background(), sess.ID)
	assert.Error(t, err)
}

func TestContainForcesContainedStatus(t *testing.T) {
	e := newExecutor(stage.NewRegistry())
	sess := e.sessions.Create("q", "")
	sess.Status = sessionstore.StatusRunning
	require.NoError(t, e.sessions.Update(sess))

	require.NoError(t, e.Contain(sess.ID, "operator override"))

	got, _ := e.sessions.Get(sess.ID)
	assert.Equal(t, sessionstore.StatusContained, got.Status)
}

func TestContainOnUnknownSessionFails(t *testing.T) {
	e := newExecutor(stage.NewRegistry())
	assert.Error(t, e.Contain("nope", "x"))
}

func TestPauseResumeRoundTrip(t *testing.T) {
	e := newExecutor(stage.NewRegistry())
	sess := e.sessions.Create("q", "")
	sess.Status = sessionstore.StatusRunning
	require.NoError(t, e.sessions.Update(sess))

	require.NoError(t, e.Pause(sess.ID))
	paused, _ := e.sessions.Get(sess.ID)
	assert.Equal(t, sessionstore.StatusPaused, paused.Status)

	require.NoError(t, e.Resume(sess.ID))
	resumed, _ := e.sessions.Get(sess.ID)
	assert.Equal(t, sessionstore.StatusRunning, resumed.Status)
}

func TestResumeNonPausedSessionFails(t *testing.T) {
	e := newExecutor(stage.NewRegistry())
	sess := e.sessions.Create("q", "")
	sess.Status = sessionstore.StatusRunning
	require.NoError(t, e.sessions.Update(sess))

	assert.Error(t, e.Resume(sess.ID))
}
