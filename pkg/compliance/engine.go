package compliance

import (
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/reasonctl/pkg/audit"
)

// immediateContainmentTriggers are violation types that trip containment
// on their own, regardless of the accumulative threshold.
var immediateContainmentTriggers = map[string]bool{
	"agi_safety_violation":       true,
	"ethical_approval_denied":    true,
	"system_verification_failed": true,
}

// Status summarizes the engine's overall compliance posture.
type Status struct {
	State                string // "compliant" | "warning" | "critical" | "contained"
	ContainmentTriggered bool
	TotalViolations      int
	UnresolvedViolations int
	CriticalViolations   int
	ActiveRules          int
	LastCheck            time.Time
}

type enabledRule struct {
	rule    Rule
	enabled bool
}

// Engine evaluates every enabled rule against each stage result and
// decides when accumulated or immediate violations require containment.
// A single mutex guards rules and the violation history together, since
// containment decisions must see a consistent view of both.
type Engine struct {
	mu                   sync.Mutex
	rules                []enabledRule
	violations           []Violation
	containmentTriggered bool
	containmentThreshold int
	auditLog             *audit.Log
	log                  *slog.Logger
}

// NewEngine wires the five default rules and returns a ready engine.
// containmentThreshold is the configured accumulated-violation bar
// (config.Config.ContainmentThreshold); a value below 1 falls back to 2.
func NewEngine(auditLog *audit.Log, log *slog.Logger, containmentThreshold int) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if containmentThreshold < 1 {
		containmentThreshold = 2
	}
	e := &Engine{
		containmentThreshold: containmentThreshold,
		auditLog:             auditLog,
		log:                  log,
	}
	e.AddRule(NewConfidenceThresholdRule())
	e.AddRule(NewAGISafetyRule())
	e.AddRule(&EthicalComplianceRule{})
	e.AddRule(NewMemoryIntegrityRule())
	e.AddRule(&SystemVerificationRule{})
	return e
}

// AddRule registers a custom rule, enabled by default.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, enabledRule{rule: r, enabled: true})
}

// RemoveRule drops a rule by id, returning false if it wasn't found.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, er := range e.rules {
		if er.rule.ID() == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// safeCheck runs a rule's Check, treating a panic as "no violation" —
// a misbehaving custom rule must never crash stage processing.
func (e *Engine) safeCheck(r Rule, in CheckInput) (v *Violation) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("compliance rule panicked, treating as no violation", "rule", r.ID(), "panic", rec)
			v = nil
		}
	}()
	return r.Check(in)
}

// CheckAndLog runs every enabled rule against in, logs any violations to
// the audit trail, and returns a containment certificate if this check
// triggers containment (nil otherwise, including if containment was
// already triggered earlier).
func (e *Engine) CheckAndLog(in CheckInput) *audit.Certificate {
	e.mu.Lock()
	rulesSnapshot := make([]enabledRule, len(e.rules))
	copy(rulesSnapshot, e.rules)
	e.mu.Unlock()

	var newViolations []Violation
	for _, er := range rulesSnapshot {
		if !er.enabled {
			continue
		}
		v := e.safeCheck(er.rule, in)
		if v == nil {
			continue
		}
		newViolations = append(newViolations, *v)

		e.log.Warn("compliance violation", "type", v.Type, "stage", v.Stage, "description", v.Description)
		stage := v.Stage
		e.auditLog.Append(audit.LogInput{
			EventType: audit.EventComplianceViolation,
			Stage:     &stage,
			Details:   v.asDetails(),
			Persona:   in.Persona,
		})
	}

	e.mu.Lock()
	e.violations = append(e.violations, newViolations...)
	allViolations := append([]Violation{}, e.violations...)
	e.mu.Unlock()

	if len(newViolations) == 0 {
		return nil
	}

	if e.shouldTriggerContainment(newViolations, allViolations) {
		return e.triggerContainment(in.Stage, newViolations, in.Persona)
	}
	return nil
}

func (v Violation) asDetails() map[string]any {
	return map[string]any{
		"id":          v.ID,
		"type":        v.Type,
		"severity":    v.Severity,
		"description": v.Description,
		"stage":       v.Stage,
		"details":     v.Details,
	}
}

func (e *Engine) shouldTriggerContainment(newViolations, history []Violation) bool {
	criticalCount := 0
	for _, v := range newViolations {
		if v.Severity == SeverityCritical {
			criticalCount++
		}
		if immediateContainmentTriggers[v.Type] {
			return true
		}
	}
	if criticalCount >= e.containmentThreshold {
		return true
	}

	// Accumulative trigger: critical violations among the last 10 overall.
	window := history
	if len(window) > 10 {
		window = window[len(window)-10:]
	}
	totalCritical := 0
	for _, v := range window {
		if v.Severity == SeverityCritical {
			totalCritical++
		}
	}
	return totalCritical >= e.containmentThreshold
}

func (e *Engine) triggerContainment(stage int, violations []Violation, persona string) *audit.Certificate {
	e.mu.Lock()
	if e.containmentTriggered {
		e.mu.Unlock()
		return nil
	}
	e.containmentTriggered = true
	totalViolations := len(e.violations)
	e.mu.Unlock()

	containmentInfo := map[string]any{
		"trigger_stage":      stage,
		"trigger_violations": violations,
		"total_violations":   totalViolations,
		"reason":             "compliance violations exceeded threshold",
	}

	cert := audit.MakeCertificate("containment_trigger", &stage, containmentInfo, "", persona)

	e.log.Error("CONTAINMENT TRIGGERED", "stage", stage)
	zero := 0.0
	e.auditLog.Append(audit.LogInput{
		EventType:   audit.EventContainmentTrigger,
		Stage:       &stage,
		Details:     containmentInfo,
		Persona:     persona,
		Confidence:  &zero,
		Certificate: cert.AsMap(),
	})

	return &cert
}

// Violations returns violations matching the given optional filters
// (empty string / nil pointer means "no filter" for that field).
func (e *Engine) Violations(severity Severity, stage *int, resolved *bool) []Violation {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Violation, 0, len(e.violations))
	for _, v := range e.violations {
		if severity != "" && v.Severity != severity {
			continue
		}
		if stage != nil && v.Stage != *stage {
			continue
		}
		if resolved != nil && v.Resolved != *resolved {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Resolve marks a violation resolved, returning false if the id is
// unknown.
func (e *Engine) Resolve(violationID, note string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.violations {
		if e.violations[i].ID == violationID {
			e.violations[i].Resolved = true
			e.violations[i].ResolvedNote = note
			e.violations[i].ResolvedAt = time.Now()
			return true
		}
	}
	return false
}

// ComplianceStatus reports the engine's overall posture.
func (e *Engine) ComplianceStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	unresolved, critical, activeRules := 0, 0, 0
	for _, v := range e.violations {
		if !v.Resolved {
			unresolved++
			if v.Severity == SeverityCritical {
				critical++
			}
		}
	}
	for _, r := range e.rules {
		if r.enabled {
			activeRules++
		}
	}

	state := "compliant"
	switch {
	case e.containmentTriggered:
		state = "contained"
	case critical > 0:
		state = "critical"
	case unresolved > 5:
		state = "warning"
	}

	return Status{
		State:                state,
		ContainmentTriggered: e.containmentTriggered,
		TotalViolations:      len(e.violations),
		UnresolvedViolations: unresolved,
		CriticalViolations:   critical,
		ActiveRules:          activeRules,
		LastCheck:            time.Now(),
	}
}

// ResetContainment clears the containment flag. Callers must treat this
// as an operator override of last resort — it does not clear the
// underlying violation history.
func (e *Engine) ResetContainment(reason string) {
	e.mu.Lock()
	wasTriggered := e.containmentTriggered
	violationCount := len(e.violations)
	e.containmentTriggered = false
	e.mu.Unlock()

	if !wasTriggered {
		return
	}
	e.log.Warn("containment reset", "reason", reason)
	zero := 0
	e.auditLog.Append(audit.LogInput{
		EventType: audit.EventContainmentReset,
		Stage:     &zero,
		Details: map[string]any{
			"reason":              reason,
			"previous_violations": violationCount,
		},
	})
}
