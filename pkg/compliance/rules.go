package compliance

import "fmt"

// ConfidenceThresholdRule enforces a minimum confidence per stage, with
// stricter floors for stages that sit later in the escalation chain —
// stages 8-10 are safety-critical, stage 5 is the gatekeeper.
type ConfidenceThresholdRule struct {
	MinConfidence float64
	StageFloor    map[int]float64
}

// NewConfidenceThresholdRule returns the default threshold ladder: 0.995
// baseline, 0.998 at the gatekeeper stage, 0.999 at the ethics stage,
// 0.9995 at verification, 1.0 at containment.
func NewConfidenceThresholdRule() *ConfidenceThresholdRule {
	return &ConfidenceThresholdRule{
		MinConfidence: 0.995,
		StageFloor: map[int]float64{
			5:  0.998,
			8:  0.999,
			9:  0.9995,
			10: 1.0,
		},
	}
}

func (r *ConfidenceThresholdRule) ID() string   { return "confidence_threshold" }
func (r *ConfidenceThresholdRule) Name() string { return "Confidence Threshold Rule" }

func (r *ConfidenceThresholdRule) Check(in CheckInput) *Violation {
	if in.Confidence == nil {
		return nil
	}

	threshold := r.MinConfidence
	if floor, ok := r.StageFloor[in.Stage]; ok && floor > threshold {
		threshold = floor
	}
	switch {
	case in.Stage >= 8:
		threshold = maxFloat(threshold, 0.999)
	case in.Stage >= 5:
		threshold = maxFloat(threshold, 0.998)
	}

	if *in.Confidence < threshold {
		v := newViolation(
			"confidence_below_threshold",
			SeverityCritical,
			fmt.Sprintf("confidence %.4f below required threshold %.4f", *in.Confidence, threshold),
			in.Stage,
			map[string]any{
				"confidence": *in.Confidence,
				"threshold":  threshold,
				"shortfall":  threshold - *in.Confidence,
			},
		)
		return &v
	}
	return nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// AGISafetyRule scans stage details for the fixed set of AGI-safety
// indicators, including the nested emergence/meta-insight/quantum paths
// the original rule checks explicitly.
type AGISafetyRule struct {
	Indicators []string
}

func NewAGISafetyRule() *AGISafetyRule {
	return &AGISafetyRule{
		Indicators: []string{
			"self_modification_detected",
			"recursive_improvement_detected",
			"goal_divergence_detected",
			"emergence_indicators_present",
			"paradigm_shift_detected",
			"quantum_decoherence_detected",
		},
	}
}

func (r *AGISafetyRule) ID() string   { return "agi_safety" }
func (r *AGISafetyRule) Name() string { return "AGI Safety Rule" }

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func nestedFlag(details map[string]any, container, key string) bool {
	nested, ok := details[container].(map[string]any)
	if !ok {
		return false
	}
	return truthy(nested[key])
}

func (r *AGISafetyRule) Check(in CheckInput) *Violation {
	var detected []string
	for _, indicator := range r.Indicators {
		if truthy(in.Details[indicator]) {
			detected = append(detected, indicator)
		}
	}
	if nestedFlag(in.Details, "emergence_analysis", "emergence_detected") {
		detected = append(detected, "emergence_detected")
	}
	if nestedFlag(in.Details, "meta_insights", "paradigm_instability_detected") {
		detected = append(detected, "paradigm_instability")
	}
	if nestedFlag(in.Details, "quantum_answer", "decoherence_detected") {
		detected = append(detected, "quantum_decoherence")
	}

	if len(detected) == 0 {
		return nil
	}

	description := "AGI safety indicators detected: " + joinComma(detected)
	v := newViolation("agi_safety_violation", SeverityCritical, description, in.Stage, map[string]any{
		"indicators":           detected,
		"indicator_count":      len(detected),
		"requires_containment": len(detected) > 1,
	})
	return &v
}

func joinComma(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// EthicalComplianceRule checks for a denied ethical approval or a
// critical-level ethical risk assessment.
type EthicalComplianceRule struct{}

func (r *EthicalComplianceRule) ID() string   { return "ethical_compliance" }
func (r *EthicalComplianceRule) Name() string { return "Ethical Compliance Rule" }

func (r *EthicalComplianceRule) Check(in CheckInput) *Violation {
	if approved, ok := in.Details["ethically_approved"].(bool); ok && !approved {
		decision, _ := in.Details["ethical_decision"].(map[string]any)
		reason := "unknown reason"
		if decision != nil {
			if r, ok := decision["reason"].(string); ok {
				reason = r
			}
		}
		v := newViolation("ethical_approval_denied", SeverityCritical,
			"ethical approval denied: "+reason, in.Stage, map[string]any{
				"ethical_decision": decision,
				"ethical_risks":    in.Details["ethical_risks"],
				"requires_review":  true,
			})
		return &v
	}

	if risks, ok := in.Details["ethical_risks"].(map[string]any); ok {
		if level, _ := risks["risk_level"].(string); level == "critical" {
			v := newViolation("critical_ethical_risk", SeverityCritical,
				"critical ethical risks identified", in.Stage, map[string]any{
					"risk_level":          level,
					"critical_concerns":   risks["critical_concerns"],
					"requires_mitigation": true,
				})
			return &v
		}
	}
	return nil
}

// MemoryIntegrityRule flags excessive patch/fork volume or an explicit
// corruption flag in a stage's details.
type MemoryIntegrityRule struct {
	MaxPatchesPerStage int
	MaxForksPerStage   int
}

func NewMemoryIntegrityRule() *MemoryIntegrityRule {
	return &MemoryIntegrityRule{MaxPatchesPerStage: 10, MaxForksPerStage: 5}
}

func (r *MemoryIntegrityRule) ID() string   { return "memory_integrity" }
func (r *MemoryIntegrityRule) Name() string { return "Memory Integrity Rule" }

func countOf(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case float64:
		return int(val)
	case []any:
		return len(val)
	default:
		return 0
	}
}

func (r *MemoryIntegrityRule) Check(in CheckInput) *Violation {
	var violations []string

	patches := countOf(in.Details["patches_applied"])
	if patches > r.MaxPatchesPerStage {
		violations = append(violations, fmt.Sprintf("excessive patches: %d > %d", patches, r.MaxPatchesPerStage))
	}

	forksRaw, _ := in.Details["forks"].([]any)
	if len(forksRaw) > r.MaxForksPerStage {
		violations = append(violations, fmt.Sprintf("excessive forks: %d > %d", len(forksRaw), r.MaxForksPerStage))
	}

	if truthy(in.Details["memory_corruption_detected"]) {
		violations = append(violations, "memory corruption detected")
	}

	if len(violations) == 0 {
		return nil
	}

	v := newViolation("memory_integrity_violation", SeverityHigh, joinSemicolon(violations), in.Stage, map[string]any{
		"patches":    patches,
		"forks":      len(forksRaw),
		"violations": violations,
	})
	return &v
}

func joinSemicolon(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += "; "
		}
		out += s
	}
	return out
}

// SystemVerificationRule applies only at stage 9 (the verification
// stage): a failed system_verified flag is a critical violation.
type SystemVerificationRule struct{}

func (r *SystemVerificationRule) ID() string   { return "system_verification" }
func (r *SystemVerificationRule) Name() string { return "System Verification Rule" }

func (r *SystemVerificationRule) Check(in CheckInput) *Violation {
	if in.Stage != 9 {
		return nil
	}
	verified, ok := in.Details["system_verified"].(bool)
	if !ok || verified {
		return nil
	}
	decision, _ := in.Details["verification_decision"].(map[string]any)
	reason := "unknown reason"
	if decision != nil {
		if r, ok := decision["reason"].(string); ok {
			reason = r
		}
	}
	v := newViolation("system_verification_failed", SeverityCritical,
		"system verification failed: "+reason, in.Stage, map[string]any{
			"verification_decision": decision,
			"quality_assurance":     in.Details["quality_assurance"],
			"requires_containment":  true,
		})
	return &v
}
