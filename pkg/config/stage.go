package config

// StageConfig overrides one built-in stage's declared thresholds,
// keyed by stage number (1..10) in YAML. Fields left nil keep the
// stage's own compiled-in default (pkg/stage.Meta).
type StageConfig struct {
	ConfidenceThreshold *float64 `yaml:"confidence_threshold,omitempty" validate:"omitempty,min=0,max=1"`
	EntropyThreshold    *float64 `yaml:"entropy_threshold,omitempty" validate:"omitempty,min=0,max=1"`
	MaxProcessingTimeMS *int     `yaml:"max_processing_time_ms,omitempty" validate:"omitempty,min=1"`
}

// ComplianceConfig overrides ComplianceEngine defaults.
type ComplianceConfig struct {
	ContainmentThreshold *int `yaml:"containment_threshold,omitempty" validate:"omitempty,min=1"`
}

// PluginConfig configures the KA manifest directory and hot-reload.
type PluginConfig struct {
	Directory   string `yaml:"directory,omitempty"`
	WatchReload *bool  `yaml:"watch_reload,omitempty"`
}

// HubConfig configures the WebSocketHub.
type HubConfig struct {
	WriteTimeout string `yaml:"write_timeout,omitempty"`
	StaleMaxAge  string `yaml:"stale_max_age,omitempty"`
}

// PipelineConfig configures the PipelineExecutor.
type PipelineConfig struct {
	MaxStages     *int   `yaml:"max_stages,omitempty"`
	SessionBudget string `yaml:"session_budget,omitempty"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// AuditConfig configures optional external audit bundle publishing.
type AuditConfig struct {
	NATSURLEnv string `yaml:"nats_url_env,omitempty"`
}
