package config

// Defaults contains system-wide default configurations. These values
// are used when config.yaml doesn't specify its own values.
type Defaults struct {
	// PipelineMaxStages caps how many of the 10 stages Run executes.
	PipelineMaxStages *int `yaml:"pipeline_max_stages,omitempty" validate:"omitempty,min=1,max=10"`

	// SessionBudget bounds total wall-clock time for one Run, as a
	// Go duration string (e.g. "300s").
	SessionBudget string `yaml:"session_budget,omitempty"`

	// ContainmentThreshold is the violation count ComplianceEngine
	// escalates to containment at.
	ContainmentThreshold *int `yaml:"containment_threshold,omitempty" validate:"omitempty,min=1"`

	// PluginDirectory is where pkg/plugin looks for KA manifests.
	PluginDirectory string `yaml:"plugin_directory,omitempty"`
}
