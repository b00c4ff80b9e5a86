package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// StorageConfig selects and tunes the key/value backend.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	RedisURL    string `yaml:"redis_url,omitempty"`
	RedisPrefix string `yaml:"redis_prefix,omitempty"`
	QuotaBytes  int    `yaml:"quota_bytes,omitempty"` // 0 = unlimited (file backend only)
}

// SeedConfig points at the read-only seed dataset.
type SeedConfig struct {
	Source         string `yaml:"source,omitempty"` // file path or http(s) URL; empty = no seeds
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RenderConfig holds terminal rendering settings.
type RenderConfig struct {
	WordWrap int `yaml:"word_wrap"`
}

// Config holds ideas configuration.
type Config struct {
	Version string        `yaml:"version"`
	Storage StorageConfig `yaml:"storage,omitempty"`
	Seed    SeedConfig    `yaml:"seed,omitempty"`
	Render  RenderConfig  `yaml:"render,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Storage: StorageConfig{
			Backend:     "file",
			RedisPrefix: "ideas:",
		},
		Seed: SeedConfig{
			TimeoutSeconds: 10,
		},
		Render: RenderConfig{
			WordWrap: 100,
		},
	}
}

// Store represents a loaded IDEAS_HOME.
type Store struct {
	Home   string
	Config Config
}

// Issue represents a health check finding.
type Issue struct {
	Severity string // "warning" or "error"
	Message  string
}

// Persisted keys, shared by every backend.
const (
	KeyStoredIdeas = "ideas_storage_v1"
	KeyDeletedIDs  = "ideas_deleted_v1"
)

// Home returns the IDEAS_HOME path, respecting the IDEAS_HOME env var.
func Home() string {
	if h := os.Getenv("IDEAS_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ideas")
	}
	return filepath.Join(home, ".ideas")
}

// Init creates the IDEAS_HOME directory and a default config.yaml.
func Init(home string, force bool) error {
	if _, err := os.Stat(home); err == nil && !force {
		return fmt.Errorf("IDEAS_HOME already exists at %s (use --force to reinitialize)", home)
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", home, err)
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(home, "config.yaml")
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Load reads an existing IDEAS_HOME.
// Missing config fields are filled from defaults.
func Load(home string) (*Store, error) {
	cfgPath := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read IDEAS_HOME config at %s: %w", cfgPath, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	return &Store{Home: home, Config: cfg}, nil
}

// SaveConfig writes the current config to config.yaml.
func (s *Store) SaveConfig() error {
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	cfgPath := filepath.Join(s.Home, "config.yaml")
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ConfigKeys lists the keys accepted by SetConfigValue.
var ConfigKeys = []string{
	"storage.backend",
	"storage.redis_url",
	"storage.redis_prefix",
	"storage.quota_bytes",
	"seed.source",
	"seed.timeout_seconds",
	"render.word_wrap",
}

// SetConfigValue sets a config value by dot-path key (e.g. "storage.backend").
func (s *Store) SetConfigValue(key, value string) error {
	switch key {
	case "storage.backend":
		switch value {
		case "file", "sqlite", "redis", "memory":
		default:
			return fmt.Errorf("storage.backend must be one of file, sqlite, redis, memory")
		}
		s.Config.Storage.Backend = value
	case "storage.redis_url":
		s.Config.Storage.RedisURL = value
	case "storage.redis_prefix":
		s.Config.Storage.RedisPrefix = value
	case "storage.quota_bytes":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("storage.quota_bytes must be a non-negative integer")
		}
		s.Config.Storage.QuotaBytes = n
	case "seed.source":
		s.Config.Seed.Source = value
	case "seed.timeout_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("seed.timeout_seconds must be a positive integer")
		}
		s.Config.Seed.TimeoutSeconds = n
	case "render.word_wrap":
		n, err := strconv.Atoi(value)
		if err != nil || n < 20 {
			return fmt.Errorf("render.word_wrap must be an integer >= 20")
		}
		s.Config.Render.WordWrap = n
	default:
		return fmt.Errorf("unknown config key: %s\nValid keys: %v", key, ConfigKeys)
	}
	return s.SaveConfig()
}

// Path resolves a path within IDEAS_HOME.
func (s *Store) Path(parts ...string) string {
	all := append([]string{s.Home}, parts...)
	return filepath.Join(all...)
}

// CheckHealth verifies IDEAS_HOME structure integrity.
func CheckHealth(home string) []Issue {
	var issues []Issue

	info, err := os.Stat(home)
	if err != nil {
		return append(issues, Issue{"error", fmt.Sprintf("missing directory: %s", home)})
	} else if !info.IsDir() {
		return append(issues, Issue{"error", fmt.Sprintf("expected directory but found file: %s", home)})
	}

	cfgPath := filepath.Join(home, "config.yaml")
	cfg := DefaultConfig()
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("cannot read config.yaml: %v", err)})
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("config.yaml is not valid YAML: %v", err)})
	}

	if cfg.Storage.Backend == "redis" && cfg.Storage.RedisURL == "" {
		issues = append(issues, Issue{"error", "storage.backend is redis but storage.redis_url is empty"})
	}
	if cfg.Seed.Source != "" && !isURL(cfg.Seed.Source) {
		if _, err := os.Stat(cfg.Seed.Source); err != nil {
			issues = append(issues, Issue{"warning", fmt.Sprintf("seed source not found: %s (seed ideas will be empty)", cfg.Seed.Source)})
		}
	}

	return issues
}

// CheckStorageIntegrity validates the persisted values of the file backend.
// Corrupt values are not fatal at runtime (they read as empty), but they
// silently hide ideas, so doctor reports them.
func CheckStorageIntegrity(home string) []Issue {
	var issues []Issue
	p := filepath.Join(home, "storage.json")
	data, err := os.ReadFile(p)
	if err != nil {
		return issues
	}
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return append(issues, Issue{"error", fmt.Sprintf("storage.json is not a valid JSON object: %v", err)})
	}
	if raw, ok := values[KeyStoredIdeas]; ok {
		var arr []map[string]any
		if err := json.Unmarshal([]byte(raw), &arr); err != nil {
			issues = append(issues, Issue{"warning", fmt.Sprintf("%s is unreadable and will load as empty: %v", KeyStoredIdeas, err)})
		}
	}
	if raw, ok := values[KeyDeletedIDs]; ok {
		var arr []string
		if err := json.Unmarshal([]byte(raw), &arr); err != nil {
			issues = append(issues, Issue{"warning", fmt.Sprintf("%s is unreadable and will load as empty: %v", KeyDeletedIDs, err)})
		}
	}
	return issues
}

// FixIssues attempts to repair simple issues in IDEAS_HOME.
func FixIssues(home string) []string {
	var fixed []string

	if _, err := os.Stat(home); err != nil {
		if err := os.MkdirAll(home, 0755); err == nil {
			fixed = append(fixed, fmt.Sprintf("recreated missing directory: %s", home))
		}
	}

	cfgPath := filepath.Join(home, "config.yaml")
	if _, err := os.Stat(cfgPath); err != nil {
		cfg := DefaultConfig()
		data, _ := yaml.Marshal(cfg)
		if os.WriteFile(cfgPath, data, 0644) == nil {
			fixed = append(fixed, "recreated missing config.yaml with defaults")
		}
	}

	p := filepath.Join(home, "storage.json")
	if data, err := os.ReadFile(p); err == nil {
		var values map[string]string
		if json.Unmarshal(data, &values) != nil {
			backup := p + ".corrupt"
			if os.Rename(p, backup) == nil {
				fixed = append(fixed, fmt.Sprintf("moved corrupt storage.json to %s", filepath.Base(backup)))
			}
		}
	}

	return fixed
}

func isURL(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || (len(s) > 8 && s[:8] == "https://"))
}
