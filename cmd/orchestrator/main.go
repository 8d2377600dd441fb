// Command orchestrator runs the DevTeam task orchestrator: the ingestion
// and lifecycle HTTP API, the worker dispatcher, and the container
// reclamation loop, all sharing one database pool.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/api"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/cleanup"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/config"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/container"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/database"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/dispatch"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/eventstore"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/executor"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/lifecycle"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/logging"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/masking"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/workflow"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/wshub"
)

const (
	exitValidation     = 1
	exitInfrastructure = 2
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// gitTokenValues reads the live values of the configured git token
// environment variables so the masking service can redact them verbatim
// wherever they leak into logs or captured command output.
func gitTokenValues(envVars []string) []string {
	values := make([]string, 0, len(envVars))
	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v (continuing with process environment)", envPath, err)
	}

	cfg, err := config.Load(envPath)
	if err != nil {
		log.Printf("failed to load configuration: %v", err)
		os.Exit(exitValidation)
	}

	masker := masking.New(gitTokenValues(cfg.Container.GitTokenEnvVars))
	logFormat := "json"
	if cfg.Server.GinMode == "debug" {
		logFormat = "text"
	}
	logging.Init(logging.Config{Format: logFormat, Level: slog.LevelInfo, Output: os.Stdout}, masker)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Printf("failed to load database config: %v", err)
		os.Exit(exitValidation)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		log.Printf("failed to connect to database: %v", err)
		os.Exit(exitInfrastructure)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logger.Error("error closing database client", "error", err)
		}
	}()
	logger.Info("connected to database", "host", dbCfg.Host, "database", dbCfg.Database)

	store := eventstore.New(dbClient.DB())

	containerMgr := container.NewManager(cfg.Container, logger)
	cmdExecutor := executor.New(containerMgr, 30*time.Minute, logger)
	cmdExecutor.SetMasker(masker)

	registry := workflow.NewRegistry()
	workflow.RegisterPlaceholder(registry)
	workflow.RegisterAutomation(registry)

	runtime := workflow.NewRuntime(registry, &workflow.Dependencies{
		Container: &containerProvisioner{mgr: containerMgr},
		Executor:  &commandRunner{exec: cmdExecutor},
	}, logger)

	hub := wshub.New(logger)
	lifecycleSvc := lifecycle.New(store, hub, cfg.Retention.IdempotencyWindow, logger)

	pool := dispatch.NewPool(store, runtime, hub, cfg.Queue, logger)
	pool.Start(ctx)
	defer pool.Stop()

	cleanupSvc := cleanup.NewService(cfg.Retention, containerMgr, logger)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	server := api.NewServer(cfg, dbClient, store, lifecycleSvc, hub)

	addr := ":" + cfg.Server.HTTPPort
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil {
			logger.Error("HTTP server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down HTTP server", "error", err)
	}
}
