package chatrelay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ApplyEnv overlays environment variables on cfg. Environment values win over
// file values so deployments can inject endpoints and credentials without
// editing the config file. API_KEY and REDIS_PASSWORD are only ever read here;
// they must never be logged or echoed back.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.Inference.BaseURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Inference.APIKey = v
	}
	if v := os.Getenv("MODEL_NAME"); v != "" {
		cfg.Inference.Model = v
	}
	if v := os.Getenv("SYSTEM_PROMPT"); v != "" {
		cfg.Inference.SystemPrompt = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing REDIS_DB %q: %w", v, err)
		}
		cfg.Cache.DB = db
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("parsing CACHE_TTL %q: %w", v, err)
		}
		cfg.Cache.TTL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	if cfg.Inference.APIKey == "" {
		return fmt.Errorf("inference API key is required (set API_KEY)")
	}
	if cfg.Inference.Model == "" {
		return fmt.Errorf("inference model is required (set MODEL_NAME)")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.MaxQueryLen < 0 {
		return fmt.Errorf("max_query_len must not be negative")
	}
	if _, err := cfg.Cache.CacheTTL(); err != nil {
		return err
	}
	if _, err := cfg.Inference.Retry.BackoffDuration(); err != nil {
		return err
	}
	if _, err := cfg.Breaker.CooldownDuration(); err != nil {
		return err
	}
	if cfg.Inference.Retry.Attempts < 0 {
		return fmt.Errorf("retry attempts must not be negative")
	}

	switch strings.ToLower(cfg.Cache.Backend) {
	case "", "redis", "memory":
	default:
		return fmt.Errorf("unknown cache backend %q: use \"redis\" or \"memory\"", cfg.Cache.Backend)
	}

	switch strings.ToLower(cfg.RequestLog.Driver) {
	case "", "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown request log driver %q: use \"sqlite\" or \"postgres\"", cfg.RequestLog.Driver)
	}
	return nil
}
