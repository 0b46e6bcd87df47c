package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallDispatchesToRegisteredRunner(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Meta{Name: "EchoKA"}, func(in, _ map[string]any) Result {
		return Result{Output: in["q"], Confidence: 1, Entropy: 0, Trace: "ok"}
	}))

	got := r.Call("EchoKA", map[string]any{"q": "hi"}, nil)
	assert.Equal(t, "hi", got.Output)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestCallUnknownNameReturnsCannedFailure(t *testing.T) {
	r := NewRegistry(nil)
	got := r.Call("NoSuchKA", nil, nil)
	assert.Nil(t, got.Output)
	assert.Equal(t, 0.0, got.Confidence)
	assert.Equal(t, 1.0, got.Entropy)
	assert.Contains(t, got.Trace, "not found")
}

func TestCallRecoversFromPanic(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Meta{Name: "BoomKA"}, func(_, _ map[string]any) Result {
		panic("kaboom")
	}))

	got := r.Call("BoomKA", nil, nil)
	assert.Equal(t, 0.0, got.Confidence)
	assert.Equal(t, 1.0, got.Entropy)
	assert.Contains(t, got.Trace, "BoomKA crashed")
	assert.Contains(t, got.Trace, "kaboom")
}

func TestNamesSortedAndMetaLookup(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Meta{Name: "Zeta"}, func(_, _ map[string]any) Result { return Result{} }))
	require.NoError(t, r.Register(Meta{Name: "Alpha", Version: "2.0"}, func(_, _ map[string]any) Result { return Result{} }))

	assert.Equal(t, []string{"Alpha", "Zeta"}, r.Names())

	meta, ok := r.GetMeta("Alpha")
	require.True(t, ok)
	assert.Equal(t, "2.0", meta.Version)

	_, ok = r.GetMeta("Missing")
	assert.False(t, ok)
}

func TestReplaceAllSwapsAtomically(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Meta{Name: "Old"}, func(_, _ map[string]any) Result { return Result{} }))

	r.ReplaceAll(
		map[string]Meta{"New": {Name: "New"}},
		map[string]Runner{"New": func(_, _ map[string]any) Result { return Result{Confidence: 1} }},
	)

	assert.Equal(t, []string{"New"}, r.Names())
	got := r.Call("Old", nil, nil)
	assert.Contains(t, got.Trace, "not found")
}

func TestKAsForStageOrdersByPriority(t *testing.T) {
	names := KAsForStage(5, 0)
	require.NotEmpty(t, names)
	assert.Equal(t, "gatekeeper_ka", names[0]) // priority 20, highest in stage 5
}

func TestKAsForStageRespectsLimit(t *testing.T) {
	names := KAsForStage(10, 2)
	assert.Len(t, names, 2)
	assert.Equal(t, "containment_protocol_ka", names[0]) // priority 25, highest overall
}

func TestKAsForStageUnknownStageEmpty(t *testing.T) {
	assert.Empty(t, KAsForStage(99, 0))
}
