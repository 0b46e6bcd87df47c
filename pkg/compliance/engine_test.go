package compliance

import (
	"testing"

	"github.com/codeready-toolchain/reasonctl/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(audit.NewLog(), nil, 2)
}

func confidenceOf(v float64) *float64 { return &v }

func TestConfidenceBelowDefaultThresholdViolates(t *testing.T) {
	e := newTestEngine()
	cert := e.CheckAndLog(CheckInput{Stage: 2, Confidence: confidenceOf(0.9), Details: map[string]any{}})
	assert.Nil(t, cert) // one violation, below containment threshold
	assert.Len(t, e.Violations("", nil, nil), 1)
}

func TestConfidenceAboveThresholdNoViolation(t *testing.T) {
	e := newTestEngine()
	e.CheckAndLog(CheckInput{Stage: 2, Confidence: confidenceOf(0.999), Details: map[string]any{}})
	assert.Empty(t, e.Violations("", nil, nil))
}

func TestStage10RequiresPerfectConfidence(t *testing.T) {
	e := newTestEngine()
	e.CheckAndLog(CheckInput{Stage: 10, Confidence: confidenceOf(0.9999), Details: map[string]any{}})
	violations := e.Violations("", nil, nil)
	require.Len(t, violations, 1)
	assert.Equal(t, "confidence_below_threshold", violations[0].Type)
}

func TestAGISafetyIndicatorTriggersCritical(t *testing.T) {
	e := newTestEngine()
	e.CheckAndLog(CheckInput{Stage: 6, Details: map[string]any{"self_modification_detected": true}})
	violations := e.Violations(SeverityCritical, nil, nil)
	require.Len(t, violations, 1)
	assert.Equal(t, "agi_safety_violation", violations[0].Type)
}

func TestAGISafetyImmediatelyTriggersContainment(t *testing.T) {
	e := newTestEngine()
	cert := e.CheckAndLog(CheckInput{Stage: 6, Details: map[string]any{"self_modification_detected": true}})
	require.NotNil(t, cert)
	assert.True(t, e.ComplianceStatus().ContainmentTriggered)
}

func TestEthicalDenialTriggersContainment(t *testing.T) {
	e := newTestEngine()
	cert := e.CheckAndLog(CheckInput{Stage: 8, Details: map[string]any{"ethically_approved": false}})
	require.NotNil(t, cert)
}

func TestSystemVerificationOnlyAppliesAtStage9(t *testing.T) {
	e := newTestEngine()
	e.CheckAndLog(CheckInput{Stage: 3, Details: map[string]any{"system_verified": false}})
	assert.Empty(t, e.Violations("", nil, nil))

	cert := e.CheckAndLog(CheckInput{Stage: 9, Details: map[string]any{"system_verified": false}})
	require.NotNil(t, cert)
}

func TestAccumulatedCriticalViolationsTriggerContainment(t *testing.T) {
	e := newTestEngine()
	cert1 := e.CheckAndLog(CheckInput{Stage: 2, Confidence: confidenceOf(0.1), Details: map[string]any{}})
	assert.Nil(t, cert1)
	cert2 := e.CheckAndLog(CheckInput{Stage: 2, Confidence: confidenceOf(0.1), Details: map[string]any{}})
	assert.NotNil(t, cert2) // 2nd critical violation reaches the threshold of 2
}

func TestContainmentOnlyTriggersOnce(t *testing.T) {
	e := newTestEngine()
	e.CheckAndLog(CheckInput{Stage: 6, Details: map[string]any{"self_modification_detected": true}})
	cert2 := e.CheckAndLog(CheckInput{Stage: 6, Details: map[string]any{"goal_divergence_detected": true}})
	assert.Nil(t, cert2)
}

func TestResolveMarksViolationResolved(t *testing.T) {
	e := newTestEngine()
	e.CheckAndLog(CheckInput{Stage: 2, Confidence: confidenceOf(0.1), Details: map[string]any{}})
	v := e.Violations("", nil, nil)[0]

	assert.True(t, e.Resolve(v.ID, "false positive"))
	resolved := true
	assert.Len(t, e.Violations("", nil, &resolved), 1)
}

func TestResolveUnknownIDReturnsFalse(t *testing.T) {
	e := newTestEngine()
	assert.False(t, e.Resolve("nope", ""))
}

func TestRemoveRuleDisablesFutureChecks(t *testing.T) {
	e := newTestEngine()
	require.True(t, e.RemoveRule("confidence_threshold"))
	e.CheckAndLog(CheckInput{Stage: 2, Confidence: confidenceOf(0.0), Details: map[string]any{}})
	assert.Empty(t, e.Violations("", nil, nil))
}

func TestPanickingCustomRuleTreatedAsNoViolation(t *testing.T) {
	e := newTestEngine()
	e.AddRule(panicRule{})
	assert.NotPanics(t, func() {
		e.CheckAndLog(CheckInput{Stage: 1, Details: map[string]any{}})
	})
}

type panicRule struct{}

func (panicRule) ID() string   { return "panics" }
func (panicRule) Name() string { return "Panics" }
func (panicRule) Check(CheckInput) *Violation {
	panic("boom")
}

func TestResetContainmentClearsFlag(t *testing.T) {
	e := newTestEngine()
	e.CheckAndLog(CheckInput{Stage: 6, Details: map[string]any{"self_modification_detected": true}})
	require.True(t, e.ComplianceStatus().ContainmentTriggered)

	e.ResetContainment("manual override")
	assert.False(t, e.ComplianceStatus().ContainmentTriggered)
}

func TestComplianceStatusStateTransitions(t *testing.T) {
	e := newTestEngine()
	assert.Equal(t, "compliant", e.ComplianceStatus().State)

	e.CheckAndLog(CheckInput{Stage: 6, Details: map[string]any{"self_modification_detected": true}})
	assert.Equal(t, "contained", e.ComplianceStatus().State)
}
