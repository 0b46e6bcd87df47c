// Package compliance implements the ComplianceEngine: the chain of
// confidence, safety, ethics, memory-integrity and verification rules
// each stage result is checked against, plus the containment decision
// and certificate minting that follow a critical violation.
package compliance

import (
	"time"

	"github.com/google/uuid"
)

// Severity is the fixed severity vocabulary a rule assigns to the
// violations it raises.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Violation is a single rule breach, carrying enough context to audit
// and later resolve it.
type Violation struct {
	ID           string
	Type         string
	Severity     Severity
	Description  string
	Stage        int
	Details      map[string]any
	Timestamp    time.Time
	Resolved     bool
	ResolvedNote string
	ResolvedAt   time.Time
}

func newViolation(vtype string, severity Severity, description string, stage int, details map[string]any) Violation {
	return Violation{
		ID:          uuid.New().String(),
		Type:        vtype,
		Severity:    severity,
		Description: description,
		Stage:       stage,
		Details:     details,
		Timestamp:   time.Now(),
	}
}

// CheckInput is what a rule evaluates: a stage's declared details plus
// optional confidence and persona.
type CheckInput struct {
	Stage      int
	Details    map[string]any
	Confidence *float64
	Persona    string
}

// Rule is a single compliance check. Check returns nil when the rule is
// satisfied.
type Rule interface {
	ID() string
	Name() string
	Check(in CheckInput) *Violation
}
