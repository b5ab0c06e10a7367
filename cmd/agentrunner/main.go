// Package main is the entry point for the agentrunner server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmarceau/agentrunner/pkg/agent"
	"github.com/dmarceau/agentrunner/pkg/api"
	"github.com/dmarceau/agentrunner/pkg/config"
	"github.com/dmarceau/agentrunner/pkg/health"
	"github.com/dmarceau/agentrunner/pkg/logging"
	"github.com/dmarceau/agentrunner/pkg/metrics"
	"github.com/dmarceau/agentrunner/pkg/orchestrator"
	"github.com/dmarceau/agentrunner/pkg/state"
	"github.com/dmarceau/agentrunner/pkg/storage"
	"github.com/dmarceau/agentrunner/pkg/transport"
)

var (
	// Command-line flags
	configPath = flag.String("config", "", "Path to config file")
	version    = flag.Bool("version", false, "Print version information")
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "agentrunner"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	// Parse command-line flags
	flag.Parse()

	// Print version information if requested
	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		return
	}

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the application
	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start the application in a goroutine
	errCh := make(chan error)
	go func() {
		errCh <- app.Start()
	}()

	// Wait for interrupt signal or error
	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Application failed: %v", err)
		}
	case <-stop:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			log.Fatalf("Error during shutdown: %v", err)
		}
	}
}

// loadConfig loads the configuration from the specified path or creates a default one
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	// If a config path is specified, load it
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", *configPath, err)
		}
	} else {
		// Otherwise, look for a config file in standard locations
		locations := []string{
			"./agentrunner.json",
			filepath.Join(os.Getenv("HOME"), ".agentrunner", "agentrunner.json"),
		}

		for _, path := range locations {
			if loadedCfg, err := config.LoadConfig(path); err == nil {
				cfg = loadedCfg
				break
			}
		}

		// If no config file is found, create a default one
		if cfg == nil {
			cfg = config.DefaultConfig()

			// Save the default config to the user's home directory
			defaultPath := filepath.Join(os.Getenv("HOME"), ".agentrunner", "agentrunner.json")
			if err := config.SaveConfig(cfg, defaultPath); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}

			fmt.Printf("Created default configuration at %s\n", defaultPath)
		}
	}

	// Override with environment variables if present
	overrideConfigFromEnv(cfg)

	return cfg, nil
}

// overrideConfigFromEnv overrides configuration values from environment variables
func overrideConfigFromEnv(cfg *config.Config) {
	// Server configuration
	if host := os.Getenv("AGENTRUNNER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("AGENTRUNNER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if apiKey := os.Getenv("AGENTRUNNER_API_KEY"); apiKey != "" {
		cfg.Server.APIKey = apiKey
	}

	// Engine configuration
	if engineURL := os.Getenv("AGENTRUNNER_ENGINE_URL"); engineURL != "" {
		cfg.Engine.BaseURL = engineURL
	}
	if useProxy := os.Getenv("AGENTRUNNER_USE_PROXY"); useProxy != "" {
		if b, err := strconv.ParseBool(useProxy); err == nil {
			cfg.Engine.UseProxy = b
		}
	}

	// Storage configuration
	if storageType := os.Getenv("AGENTRUNNER_STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if addr := os.Getenv("AGENTRUNNER_REDIS_ADDR"); addr != "" {
		cfg.Storage.Redis.Addr = addr
	}
	if password := os.Getenv("AGENTRUNNER_REDIS_PASSWORD"); password != "" {
		cfg.Storage.Redis.Password = password
	}
	if table := os.Getenv("AGENTRUNNER_DYNAMODB_TABLE"); table != "" {
		cfg.Storage.DynamoDB.TableName = table
	}
	if region := os.Getenv("AGENTRUNNER_DYNAMODB_REGION"); region != "" {
		cfg.Storage.DynamoDB.Region = region
	}
	if endpoint := os.Getenv("AGENTRUNNER_DYNAMODB_ENDPOINT"); endpoint != "" {
		cfg.Storage.DynamoDB.Endpoint = endpoint
	}
	if dsn := os.Getenv("AGENTRUNNER_POSTGRES_DSN"); dsn != "" {
		cfg.Storage.Postgres.DSN = dsn
	}

	// Logging configuration
	if level := os.Getenv("AGENTRUNNER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	// Agent catalog
	if file := os.Getenv("AGENTRUNNER_AGENTS_FILE"); file != "" {
		cfg.Agents.File = file
	}
}

// App represents the agentrunner application
type App struct {
	config   *config.Config
	logger   logging.Logger
	server   *api.Server
	monitor  *health.Monitor
	provider storage.Provider
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config) (*App, error) {
	// Create the logger first so every other component can use it
	logger, err := logging.New(logging.LogConfig{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Output:   cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Metrics recorder
	var recorder metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	} else {
		recorder = metrics.Nop()
	}

	// Storage provider
	provider, err := storage.NewProvider(cfg.Storage.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage provider: %w", err)
	}
	logger.Info("storage provider ready", logging.F("type", cfg.Storage.Type))

	store := storage.NewHistoryStore(provider, storage.HistoryStoreOptions{
		Namespace: cfg.Storage.Namespace,
		Logger:    logger,
		Metrics:   recorder,
	})
	container := state.NewContainer(store, state.ContainerOptions{
		HistoryLimit: cfg.Executions.HistoryLimit,
		Logger:       logger,
	})

	// Agent catalog. A missing file starts the server with no agents so
	// a first run can still come up and serve health and the proxy.
	registry, err := loadRegistry(cfg.Agents.File, logger)
	if err != nil {
		return nil, err
	}

	// Engine transport
	forwardBase := cfg.Engine.ForwardBase
	if forwardBase == "" {
		forwardBase = "http://" + cfg.Server.Addr()
	}
	client := transport.NewClient(transport.Config{
		EngineBaseURL: cfg.Engine.BaseURL,
		ForwardBase:   forwardBase,
		UseProxy:      cfg.Engine.UseProxy,
		Timeout:       time.Duration(cfg.Engine.TimeoutMs) * time.Millisecond,
	}, logger)

	orch := orchestrator.New(registry, client, container, orchestrator.Options{
		PollInterval: time.Duration(cfg.Executions.PollIntervalMs) * time.Millisecond,
		ArtifactsDir: cfg.Executions.ArtifactsDir,
		Logger:       logger,
		Metrics:      recorder,
	})

	monitor := health.NewMonitor(client, health.Options{
		Schedule: cfg.Engine.HealthCheckSchedule,
		Logger:   logger,
		Metrics:  recorder,
	})

	server := api.NewServer(cfg, api.Dependencies{
		Registry:  registry,
		Executor:  orch,
		Container: container,
		Store:     store,
		Health:    monitor,
		Engine:    client,
		Logger:    logger,
	})

	return &App{
		config:   cfg,
		logger:   logger,
		server:   server,
		monitor:  monitor,
		provider: provider,
	}, nil
}

// loadRegistry reads the agent catalog, tolerating a missing file
func loadRegistry(path string, logger logging.Logger) (agent.Registry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("agent catalog not found, starting with no agents", logging.F("path", path))
		return agent.NewRegistry(nil)
	}

	registry, err := agent.NewRegistryFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent catalog from %s: %w", path, err)
	}
	logger.Info("agent catalog loaded",
		logging.F("path", path),
		logging.F("agents", len(registry.List())),
	)
	return registry, nil
}

// Start starts the application
func (a *App) Start() error {
	fmt.Printf("Starting %s version %s\n", AppName, AppVersion)

	if err := a.monitor.Start(); err != nil {
		return fmt.Errorf("failed to start availability monitor: %w", err)
	}

	return a.server.Start()
}

// Stop stops the application gracefully
func (a *App) Stop(ctx context.Context) error {
	// Stop the server first so no new executions arrive
	if err := a.server.Stop(ctx); err != nil {
		return err
	}

	a.monitor.Stop()

	// Close storage
	if err := a.provider.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	return nil
}
