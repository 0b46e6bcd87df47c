package config

import "fmt"

// Validator validates configuration comprehensively with clear error
// messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast — stops at
// the first error).
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateStages(); err != nil {
		return fmt.Errorf("stage validation failed: %w", err)
	}
	if err := v.validateCompliance(); err != nil {
		return fmt.Errorf("compliance validation failed: %w", err)
	}
	if err := v.validatePlugin(); err != nil {
		return fmt.Errorf("plugin validation failed: %w", err)
	}
	if err := v.validateHub(); err != nil {
		return fmt.Errorf("hub validation failed: %w", err)
	}
	if err := v.validatePipeline(); err != nil {
		return fmt.Errorf("pipeline validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateServer() error {
	if v.cfg.ServerAddr == "" {
		return NewValidationError("server", "addr", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateStages() error {
	for n, sc := range v.cfg.StageOverrides {
		if n < 1 || n > 10 {
			return NewValidationError("stages", fmt.Sprintf("%d", n), fmt.Errorf("%w: stage number must be 1..10", ErrInvalidValue))
		}
		if sc.ConfidenceThreshold != nil && (*sc.ConfidenceThreshold < 0 || *sc.ConfidenceThreshold > 1) {
			return NewValidationError("stages", fmt.Sprintf("%d.confidence_threshold", n), fmt.Errorf("%w: must be within [0,1]", ErrInvalidValue))
		}
		if sc.EntropyThreshold != nil && (*sc.EntropyThreshold < 0 || *sc.EntropyThreshold > 1) {
			return NewValidationError("stages", fmt.Sprintf("%d.entropy_threshold", n), fmt.Errorf("%w: must be within [0,1]", ErrInvalidValue))
		}
		if sc.MaxProcessingTimeMS != nil && *sc.MaxProcessingTimeMS < 1 {
			return NewValidationError("stages", fmt.Sprintf("%d.max_processing_time_ms", n), fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}
	return nil
}

func (v *Validator) validateCompliance() error {
	if v.cfg.ContainmentThreshold < 1 {
		return NewValidationError("compliance", "containment_threshold", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validatePlugin() error {
	if v.cfg.PluginDirectory == "" {
		return NewValidationError("plugin", "directory", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateHub() error {
	if v.cfg.HubWriteTimeout <= 0 {
		return NewValidationError("hub", "write_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if v.cfg.HubStaleMaxAge <= 0 {
		return NewValidationError("hub", "stale_max_age", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validatePipeline() error {
	if v.cfg.PipelineMaxStages < 1 || v.cfg.PipelineMaxStages > 10 {
		return NewValidationError("pipeline", "max_stages", fmt.Errorf("%w: must be within 1..10, got %d", ErrInvalidValue, v.cfg.PipelineMaxStages))
	}
	if v.cfg.SessionBudget <= 0 {
		return NewValidationError("pipeline", "session_budget", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}
