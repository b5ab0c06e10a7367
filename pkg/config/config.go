// Package config provides configuration handling for agentrunner.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmarceau/agentrunner/pkg/storage"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Engine configuration
	Engine EngineConfig `json:"engine"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Executions configuration
	Executions ExecutionsConfig `json:"executions"`

	// Agents configuration
	Agents AgentsConfig `json:"agents"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`

	// APIKey protects the API when set; empty disables the check
	APIKey string `json:"api_key,omitempty"`

	// CORSOrigins lists the allowed cross-origin callers; "*" allows any
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

// Addr returns the host:port the server binds to
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EngineConfig contains workflow engine settings
type EngineConfig struct {
	// BaseURL is the external engine's base URL
	BaseURL string `json:"base_url"`

	// ForwardBase is the base URL of the same-origin forwarding proxy;
	// defaults to this server's own address
	ForwardBase string `json:"forward_base,omitempty"`

	// UseProxy routes triggers through the forwarding proxy
	UseProxy bool `json:"use_proxy"`

	// TimeoutMs bounds a single engine round trip
	TimeoutMs int `json:"timeout_ms"`

	// HealthCheckSchedule is the availability probe schedule
	HealthCheckSchedule string `json:"health_check_schedule"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use: "memory", "redis", "dynamodb", "postgres"
	Type string `json:"type"`

	// Namespace prefixes every stored key
	Namespace string `json:"namespace,omitempty"`

	// Memory configuration
	Memory storage.MemoryConfig `json:"memory"`

	// Redis configuration
	Redis storage.RedisConfig `json:"redis"`

	// DynamoDB configuration
	DynamoDB storage.DynamoDBConfig `json:"dynamodb"`

	// Postgres configuration
	Postgres storage.PostgresConfig `json:"postgres"`
}

// ProviderConfig maps the storage section onto the provider factory's input
func (s StorageConfig) ProviderConfig() storage.ProviderConfig {
	memory := s.Memory
	redis := s.Redis
	dynamo := s.DynamoDB
	postgres := s.Postgres
	return storage.ProviderConfig{
		Type:     storage.ProviderType(s.Type),
		Memory:   &memory,
		Redis:    &redis,
		DynamoDB: &dynamo,
		Postgres: &postgres,
	}
}

// ExecutionsConfig contains execution tracking settings
type ExecutionsConfig struct {
	// HistoryLimit caps each agent's stored history
	HistoryLimit int `json:"history_limit"`

	// PollIntervalMs is the default wait between job status queries
	PollIntervalMs int `json:"poll_interval_ms"`

	// ArtifactsDir is where raw binary outputs are written
	ArtifactsDir string `json:"artifacts_dir"`
}

// AgentsConfig locates the agent catalog
type AgentsConfig struct {
	// File is the path to the YAML agent catalog
	File string `json:"file"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is the logging level
	Level string `json:"level"` // "debug", "info", "warn", "error"

	// Format is the log format
	Format string `json:"format"` // "json", "text"

	// Output is the log output
	Output string `json:"output"` // "stdout", "stderr", "file"

	// FilePath is the path to the log file
	FilePath string `json:"file_path,omitempty"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	// Enabled exposes the Prometheus handler and records observations
	Enabled bool `json:"enabled"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse the JSON
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "localhost",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Engine: EngineConfig{
			BaseURL:             "http://localhost:5678",
			UseProxy:            false,
			TimeoutMs:           30000,
			HealthCheckSchedule: "@every 30s",
		},
		Storage: StorageConfig{
			Type:      "memory",
			Namespace: storage.DefaultNamespace,
			Redis: storage.RedisConfig{
				Addr: "localhost:6379",
			},
			DynamoDB: storage.DynamoDBConfig{
				Region:    "us-west-2",
				TableName: "agentrunner_kv",
			},
			Postgres: storage.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "agentrunner",
				User:     "agentrunner",
				SSLMode:  "disable",
			},
		},
		Executions: ExecutionsConfig{
			HistoryLimit:   storage.DefaultHistoryLimit,
			PollIntervalMs: 5000,
			ArtifactsDir:   "artifacts",
		},
		Agents: AgentsConfig{
			File: "agents.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	// Create the directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal the JSON
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write the file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
