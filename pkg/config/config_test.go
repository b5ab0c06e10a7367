package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dmarceau/agentrunner/pkg/storage"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Check default values
	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected default host to be 'localhost', got '%s'", cfg.Server.Host)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port to be 8080, got %d", cfg.Server.Port)
	}

	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected default storage type to be 'memory', got '%s'", cfg.Storage.Type)
	}

	if cfg.Executions.HistoryLimit != storage.DefaultHistoryLimit {
		t.Errorf("Expected default history limit to be %d, got %d", storage.DefaultHistoryLimit, cfg.Executions.HistoryLimit)
	}

	if cfg.Executions.PollIntervalMs != 5000 {
		t.Errorf("Expected default poll interval to be 5000, got %d", cfg.Executions.PollIntervalMs)
	}

	if cfg.Engine.HealthCheckSchedule != "@every 30s" {
		t.Errorf("Expected default health check schedule to be '@every 30s', got '%s'", cfg.Engine.HealthCheckSchedule)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "agentrunner.json")

	// Create a test config
	originalCfg := DefaultConfig()
	originalCfg.Server.Host = "testhost"
	originalCfg.Server.Port = 9090
	originalCfg.Engine.BaseURL = "https://engine.example.com"
	originalCfg.Engine.UseProxy = true
	originalCfg.Storage.Type = "postgres"

	// Save the config
	if err := SaveConfig(originalCfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	// Load the config
	loadedCfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Check that the loaded config matches the original
	if loadedCfg.Server.Host != originalCfg.Server.Host {
		t.Errorf("Expected host to be '%s', got '%s'", originalCfg.Server.Host, loadedCfg.Server.Host)
	}

	if loadedCfg.Server.Port != originalCfg.Server.Port {
		t.Errorf("Expected port to be %d, got %d", originalCfg.Server.Port, loadedCfg.Server.Port)
	}

	if loadedCfg.Engine.BaseURL != originalCfg.Engine.BaseURL {
		t.Errorf("Expected engine base URL to be '%s', got '%s'", originalCfg.Engine.BaseURL, loadedCfg.Engine.BaseURL)
	}

	if !loadedCfg.Engine.UseProxy {
		t.Error("Expected use_proxy to survive the round trip")
	}

	if loadedCfg.Storage.Type != originalCfg.Storage.Type {
		t.Errorf("Expected storage type to be '%s', got '%s'", originalCfg.Storage.Type, loadedCfg.Storage.Type)
	}
}

func TestSaveConfigCreatesDirectory(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "dir", "agentrunner.json")

	if err := SaveConfig(DefaultConfig(), configPath); err != nil {
		t.Fatalf("Failed to save config into a new directory: %v", err)
	}

	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("Expected config file to exist: %v", err)
	}
}

func TestLoadConfigError(t *testing.T) {
	// Try to load a non-existent config file
	_, err := LoadConfig("non-existent-file.json")
	if err == nil {
		t.Error("Expected error when loading non-existent config file, got nil")
	}
}

func TestLoadConfigRejectsMalformedJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "agentrunner.json")
	if err := os.WriteFile(configPath, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write malformed config: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected error when loading malformed config file, got nil")
	}
}

func TestServerConfigAddr(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 9000}

	if addr := cfg.Addr(); addr != "0.0.0.0:9000" {
		t.Errorf("Expected addr to be '0.0.0.0:9000', got '%s'", addr)
	}
}

func TestProviderConfigMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Type = "redis"
	cfg.Storage.Redis.Addr = "redis.example.com:6379"

	pc := cfg.Storage.ProviderConfig()

	if pc.Type != storage.RedisProviderType {
		t.Errorf("Expected provider type redis, got '%s'", pc.Type)
	}
	if pc.Redis == nil || pc.Redis.Addr != "redis.example.com:6379" {
		t.Error("Expected redis sub-config to be carried through")
	}
}
