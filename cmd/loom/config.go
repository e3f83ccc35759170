package main

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// CompletionConfig configures the live AI completion backend. Live execution
// is enabled only when BaseURL is set.
type CompletionConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	EndpointPath   string  `yaml:"endpoint_path"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
}

// Config holds all loom configuration.
// Priority: env vars > config.yaml > defaults.
type Config struct {
	ListenAddr string           `yaml:"listen_addr"`
	DBPath     string           `yaml:"db_path"`
	LogLevel   string           `yaml:"log_level"`
	MCPStdio   bool             `yaml:"mcp_stdio"`
	Completion CompletionConfig `yaml:"completion"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4400",
		DBPath:     filepath.Join(loomDir(), "loom.db"),
		LogLevel:   "info",
		Completion: CompletionConfig{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
			Temperature:    0.2,
		},
	}
}

func loomDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".loom"
	}
	return filepath.Join(home, ".loom")
}

func configPath() string {
	if v := os.Getenv("LOOM_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(loomDir(), "config.yaml")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: config.yaml (ignore if missing).
	if data, err := os.ReadFile(configPath()); err == nil {
		_ = yaml.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("LOOM_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("LOOM_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LOOM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOOM_MCP_STDIO"); v != "" {
		cfg.MCPStdio = v == "true" || v == "1"
	}
	if v := os.Getenv("LOOM_COMPLETION_BASE_URL"); v != "" {
		cfg.Completion.BaseURL = v
	}
	if v := os.Getenv("LOOM_COMPLETION_API_KEY"); v != "" {
		cfg.Completion.APIKey = v
	}
	if v := os.Getenv("LOOM_COMPLETION_MODEL"); v != "" {
		cfg.Completion.Model = v
	}
	if v := os.Getenv("LOOM_COMPLETION_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Completion.TimeoutSeconds = n
		}
	}

	return cfg
}
