package config

import "time"

// Config is the fully resolved, validated configuration the orchestrator
// wires its singletons from. Returned by Initialize().
type Config struct {
	configDir string // Configuration directory path (for reference)

	Defaults *Defaults

	ServerAddr           string
	StageOverrides       map[int]StageConfig
	ContainmentThreshold int
	PluginDirectory      string
	PluginWatchReload    bool
	HubWriteTimeout      time.Duration
	HubStaleMaxAge       time.Duration
	PipelineMaxStages    int
	SessionBudget        time.Duration
	NATSURL              string // resolved from the env var named by Audit.NATSURLEnv; "" disables publishing
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ConfigStats contains statistics about loaded configuration, surfaced
// in startup logs.
type ConfigStats struct {
	StageOverrides int
	PluginWatch    bool
	MaxStages      int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		StageOverrides: len(c.StageOverrides),
		PluginWatch:    c.PluginWatchReload,
		MaxStages:      c.PipelineMaxStages,
	}
}

// StageThreshold resolves stage n's confidence threshold, preferring a
// user override over the stage's own compiled-in default.
func (c *Config) StageThreshold(n int, builtin float64) float64 {
	if sc, ok := c.StageOverrides[n]; ok && sc.ConfidenceThreshold != nil {
		return *sc.ConfidenceThreshold
	}
	return builtin
}

// StageEntropyThreshold resolves stage n's entropy threshold, preferring
// a user override over the stage's own compiled-in default.
func (c *Config) StageEntropyThreshold(n int, builtin float64) float64 {
	if sc, ok := c.StageOverrides[n]; ok && sc.EntropyThreshold != nil {
		return *sc.EntropyThreshold
	}
	return builtin
}
