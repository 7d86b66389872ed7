package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the server/engine runtime configuration. Values resolve in
// order: defaults, YAML file, environment.
type Config struct {
	DBPath        string `yaml:"db_path"`
	Port          int    `yaml:"port"`
	TokenFile     string `yaml:"token_file"`
	EvaluateEvery string `yaml:"evaluate_every"` // cron expression; empty disables the evaluator
	AutoRollout   bool   `yaml:"auto_rollout"`
}

func Default() *Config {
	return &Config{
		DBPath: "./mailsplit.db",
		Port:   8080,
	}
}

// Load reads cfgPath when non-empty, then applies MS_DB_PATH and
// MS_PORT overrides.
func Load(cfgPath string) (*Config, error) {
	cfg := Default()

	if cfgPath != "" {
		data, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if v := os.Getenv("MS_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MS_PORT %q: %w", v, err)
		}
		cfg.Port = port
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}

	return cfg, nil
}
