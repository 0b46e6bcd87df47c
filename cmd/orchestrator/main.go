// reasonctl orchestrator server - drives the multi-stage reasoning
// pipeline and exposes it over the HTTP/WebSocket API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/codeready-toolchain/reasonctl/pkg/agentmgr"
	"github.com/codeready-toolchain/reasonctl/pkg/api"
	"github.com/codeready-toolchain/reasonctl/pkg/audit"
	"github.com/codeready-toolchain/reasonctl/pkg/compliance"
	"github.com/codeready-toolchain/reasonctl/pkg/config"
	"github.com/codeready-toolchain/reasonctl/pkg/hub"
	"github.com/codeready-toolchain/reasonctl/pkg/llmprovider"
	"github.com/codeready-toolchain/reasonctl/pkg/memory"
	"github.com/codeready-toolchain/reasonctl/pkg/pipeline"
	"github.com/codeready-toolchain/reasonctl/pkg/plugin"
	"github.com/codeready-toolchain/reasonctl/pkg/sessionstore"
	"github.com/codeready-toolchain/reasonctl/pkg/stage"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ginMode := getEnv("GIN_MODE", "debug")
	gin.SetMode(ginMode)

	logger := slog.Default()

	ctx := context.Background()
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	log.Printf("Configuration loaded from %s: %+v", cfg.ConfigDir(), cfg.Stats())

	sessions := sessionstore.New()
	mem := memory.New()
	auditLog := audit.NewLog()
	complianceEngine := compliance.NewEngine(auditLog, logger, cfg.ContainmentThreshold)

	ka := plugin.NewRegistry(logger)
	kaLoader := plugin.NewLoader(cfg.PluginDirectory, plugin.Builtins(), ka, logger)
	if err := kaLoader.Load(); err != nil {
		log.Fatalf("Failed to load KA plugin manifests: %v", err)
	}
	if cfg.PluginWatchReload {
		if err := kaLoader.Watch(); err != nil {
			log.Printf("Warning: KA plugin directory watch failed: %v", err)
		}
		defer kaLoader.Close()
	}

	wsHub := hub.New(logger, cfg.HubWriteTimeout)
	agents := agentmgr.NewManager()

	bundlePublisher, err := audit.NewBundlePublisher(cfg.NATSURL, "reasonctl.audit.bundles", logger)
	if err != nil {
		log.Fatalf("Failed to start audit bundle publisher: %v", err)
	}
	defer bundlePublisher.Close()

	var lastBundlePublish time.Time
	cronEngine := cron.New()
	sweepSchedule := fmt.Sprintf("@every %s", cfg.HubStaleMaxAge)
	if _, err := cronEngine.AddFunc(sweepSchedule, func() {
		n := wsHub.CleanupStale(cfg.HubStaleMaxAge)
		if n > 0 {
			logger.Info("hub: swept stale connections", "count", n)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule hub stale sweep: %v", err)
	}
	if _, err := cronEngine.AddFunc("@every 1m", func() {
		n := agents.CleanupInactive()
		if n > 0 {
			logger.Info("agentmgr: swept inactive agents", "count", n)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule agent cleanup sweep: %v", err)
	}
	if _, err := cronEngine.AddFunc("@every 5m", func() {
		bundle := auditLog.SnapshotBundle("", lastBundlePublish)
		lastBundlePublish = bundle.GeneratedAt
		if err := bundlePublisher.PublishBundle(bundle); err != nil {
			logger.Warn("audit: bundle publish failed", "error", err)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule audit bundle export: %v", err)
	}
	cronEngine.Start()
	defer cronEngine.Stop()

	llm := llmprovider.NewFallback()
	stages := stage.NewDefaultRegistry(ka, llm)

	exec := pipeline.New(pipeline.Config{
		Stages:     stages,
		Sessions:   sessions,
		Memory:     mem,
		Agents:     agents,
		AuditLog:   auditLog,
		Compliance: complianceEngine,
		Hub:        wsHub,
		Log:        logger,
		MaxStages:  cfg.PipelineMaxStages,
		Budget:     cfg.SessionBudget,
	})

	server := api.NewServer(cfg, sessions, mem, auditLog, complianceEngine, ka, kaLoader, wsHub, exec)

	log.Printf("HTTP server listening on %s", cfg.ServerAddr)
	if err := server.Start(cfg.ServerAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
