package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAppliesBuiltinDefaultsWhenNoYAMLPresent(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, 10, cfg.PipelineMaxStages)
	assert.Equal(t, 2, cfg.ContainmentThreshold)
	assert.Equal(t, "./plugins", cfg.PluginDirectory)
	assert.True(t, cfg.PluginWatchReload)
}

func TestInitializeMergesUserYAMLOverBuiltins(t *testing.T) {
	dir := t.TempDir()
	writeConfigYAML(t, dir, `
server:
  addr: ":9090"
plugin:
  directory: "/var/lib/reasonctl/plugins"
  watch_reload: false
stages:
  5:
    confidence_threshold: 0.9
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "/var/lib/reasonctl/plugins", cfg.PluginDirectory)
	assert.False(t, cfg.PluginWatchReload)
	assert.Equal(t, 0.9, cfg.StageThreshold(5, 0.5))
	assert.Equal(t, 0.5, cfg.StageThreshold(6, 0.5))
}

func TestInitializeRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfigYAML(t, dir, "server: [this is not valid: yaml")

	_, err := Initialize(context.Background(), dir)
	assert.Error(t, err)
}

func TestInitializeRejectsOutOfRangeMaxStages(t *testing.T) {
	dir := t.TempDir()
	writeConfigYAML(t, dir, `
pipeline:
  max_stages: 20
`)

	_, err := Initialize(context.Background(), dir)
	assert.Error(t, err)
}

func TestInitializeRejectsBadStageNumber(t *testing.T) {
	dir := t.TempDir()
	writeConfigYAML(t, dir, `
stages:
  42:
    confidence_threshold: 0.5
`)

	_, err := Initialize(context.Background(), dir)
	assert.Error(t, err)
}

func TestInitializeResolvesNATSURLFromNamedEnvVar(t *testing.T) {
	dir := t.TempDir()
	writeConfigYAML(t, dir, `
audit:
  nats_url_env: "MY_NATS_URL"
`)
	t.Setenv("MY_NATS_URL", "nats://localhost:4222")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
}

func TestDefaultsOverrideContainmentThresholdAndMaxStages(t *testing.T) {
	dir := t.TempDir()
	writeConfigYAML(t, dir, `
defaults:
  containment_threshold: 5
  pipeline_max_stages: 3
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ContainmentThreshold)
	assert.Equal(t, 3, cfg.PipelineMaxStages)
}

func TestStageThresholdFallsBackToBuiltinWithoutOverride(t *testing.T) {
	cfg := &Config{StageOverrides: map[int]StageConfig{}}
	assert.Equal(t, 0.75, cfg.StageThreshold(1, 0.75))
}

func writeConfigYAML(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
}
