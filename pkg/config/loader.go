package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// YAMLConfig is the shape of config.yaml on disk.
type YAMLConfig struct {
	Server     *ServerConfig       `yaml:"server"`
	Stages     map[int]StageConfig `yaml:"stages"`
	Compliance *ComplianceConfig   `yaml:"compliance"`
	Plugin     *PluginConfig       `yaml:"plugin"`
	Hub        *HubConfig          `yaml:"hub"`
	Pipeline   *PipelineConfig     `yaml:"pipeline"`
	Audit      *AuditConfig        `yaml:"audit"`
	Defaults   *Defaults           `yaml:"defaults"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load config.yaml from configDir (missing file is not an error)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined stage threshold overrides
//  5. Apply built-in defaults to unset scalar fields via mergo
//  6. Resolve durations and the audit NATS URL
//  7. Validate all configuration
//  8. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"stage_overrides", stats.StageOverrides,
		"plugin_watch", stats.PluginWatch,
		"max_stages", stats.MaxStages)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	user, err := loader.loadConfigYAML()
	if err != nil {
		return nil, err
	}

	builtin := builtinYAML()

	merged := builtin
	if err := mergo.Merge(&merged, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	// mergo treats a non-empty map as "set" and skips the merge of its
	// individual keys, so stage overrides get keyed merge semantics by
	// hand rather than via mergo's blanket map overwrite.
	merged.Stages = mergeStageOverrides(builtin.Stages, user.Stages)

	defaults := merged.Defaults
	if defaults == nil {
		defaults = &Defaults{}
	}

	writeTimeout, err := time.ParseDuration(merged.Hub.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("hub.write_timeout: %w", err)
	}
	staleMaxAge, err := time.ParseDuration(merged.Hub.StaleMaxAge)
	if err != nil {
		return nil, fmt.Errorf("hub.stale_max_age: %w", err)
	}
	sessionBudget, err := time.ParseDuration(merged.Pipeline.SessionBudget)
	if err != nil {
		return nil, fmt.Errorf("pipeline.session_budget: %w", err)
	}

	maxStages := *merged.Pipeline.MaxStages
	if defaults.PipelineMaxStages != nil {
		maxStages = *defaults.PipelineMaxStages
	}

	containmentThreshold := *merged.Compliance.ContainmentThreshold
	if defaults.ContainmentThreshold != nil {
		containmentThreshold = *defaults.ContainmentThreshold
	}

	pluginDir := merged.Plugin.Directory
	if defaults.PluginDirectory != "" {
		pluginDir = defaults.PluginDirectory
	}

	// mergo never copies a false bool over a true one, so an explicit
	// user watch_reload is read from the user config directly.
	watchReload := true
	if user.Plugin != nil && user.Plugin.WatchReload != nil {
		watchReload = *user.Plugin.WatchReload
	} else if merged.Plugin.WatchReload != nil {
		watchReload = *merged.Plugin.WatchReload
	}

	natsURL := ""
	if merged.Audit != nil && merged.Audit.NATSURLEnv != "" {
		natsURL = os.Getenv(merged.Audit.NATSURLEnv)
	}

	return &Config{
		configDir:            configDir,
		Defaults:             defaults,
		ServerAddr:           merged.Server.Addr,
		StageOverrides:       merged.Stages,
		ContainmentThreshold: containmentThreshold,
		PluginDirectory:      pluginDir,
		PluginWatchReload:    watchReload,
		HubWriteTimeout:      writeTimeout,
		HubStaleMaxAge:       staleMaxAge,
		PipelineMaxStages:    maxStages,
		SessionBudget:        sessionBudget,
		NATSURL:              natsURL,
	}, nil
}

// builtinYAML returns the built-in configuration applied before any
// config.yaml values are merged on top.
func builtinYAML() YAMLConfig {
	trueVal := true
	ten := 10
	two := 2
	return YAMLConfig{
		Server:     &ServerConfig{Addr: ":8080"},
		Stages:     map[int]StageConfig{},
		Compliance: &ComplianceConfig{ContainmentThreshold: &two},
		Plugin:     &PluginConfig{Directory: "./plugins", WatchReload: &trueVal},
		Hub:        &HubConfig{WriteTimeout: "5s", StaleMaxAge: "10m"},
		Pipeline:   &PipelineConfig{MaxStages: &ten, SessionBudget: "300s"},
		Audit:      &AuditConfig{NATSURLEnv: "REASONCTL_NATS_URL"},
	}
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadConfigYAML() (YAMLConfig, error) {
	var cfg YAMLConfig
	path := filepath.Join(l.configDir, "config.yaml")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, NewLoadError("config.yaml", err)
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, NewLoadError("config.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	if cfg.Stages == nil {
		cfg.Stages = map[int]StageConfig{}
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	v := NewValidator(cfg)
	return v.ValidateAll()
}
