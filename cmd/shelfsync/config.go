package main

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shelfsync/shelfsync/synctypes"
)

// Config is the on-disk CLI configuration.
type Config struct {
	Destination DestinationConfig `yaml:"destination"`
	State       StateConfig       `yaml:"state"`
	FailureLog  string            `yaml:"failureLog"`
	Staging     string            `yaml:"staging"`
	Workers     int               `yaml:"workers"`
	Retry       RetryConfig       `yaml:"retry"`
	RateLimit   RateLimitConfig   `yaml:"rateLimit"`
}

// DestinationConfig selects and configures the destination provider.
type DestinationConfig struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Root   string `yaml:"root"`
}

// StateConfig selects the state backend.
type StateConfig struct {
	// Backend is "sqlite" or "document"
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// RetryConfig bounds the retry policy.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
}

// RateLimitConfig throttles outbound services. QPS is the shared
// fallback; the per-service values override it when positive.
type RateLimitConfig struct {
	QPS       float64 `yaml:"qps"`
	SourceQPS float64 `yaml:"sourceQps"`
	DestQPS   float64 `yaml:"destQps"`
}

// SourceQPSEffective resolves the source rate with the shared fallback.
func (r RateLimitConfig) SourceQPSEffective() float64 {
	if r.SourceQPS > 0 {
		return r.SourceQPS
	}
	return r.QPS
}

// DestQPSEffective resolves the destination rate with the shared fallback.
func (r RateLimitConfig) DestQPSEffective() float64 {
	if r.DestQPS > 0 {
		return r.DestQPS
	}
	return r.QPS
}

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// expandEnvVars replaces $(VAR) with os.Getenv(VAR).
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})
}

// loadConfig reads a YAML config file, expanding $(ENV_VAR) placeholders.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling yaml: %w", err)
	}

	if cfg.State.Backend == "" {
		cfg.State.Backend = "document"
	}
	if cfg.State.Path == "" {
		cfg.State.Path = ".state/state.json"
	}
	if cfg.FailureLog == "" {
		cfg.FailureLog = ".logs/failures.jsonl"
	}
	return &cfg, nil
}

// catalogueItem is the on-disk form of one catalogue entry, as produced
// by an external source lister.
type catalogueItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Ext       string `json:"ext"`
	UpdatedAt string `json:"updated_at"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
}

// loadCatalogue reads a catalogue JSON file into item records.
func loadCatalogue(path string) ([]synctypes.ItemRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}

	var items []catalogueItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshalling catalogue: %w", err)
	}

	out := make([]synctypes.ItemRecord, 0, len(items))
	for _, it := range items {
		out = append(out, synctypes.ItemRecord{
			ID:        it.ID,
			Title:     it.Title,
			Ext:       it.Ext,
			UpdatedAt: it.UpdatedAt,
			Size:      it.Size,
			Locator:   it.URL,
		})
	}
	return out, nil
}
