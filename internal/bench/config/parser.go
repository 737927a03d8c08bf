package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultMeanInterval      = 500
	DefaultMetricsBufferSize = 4096
	DefaultAgentJoin         = 3 * time.Second
	DefaultAsyncDrain        = 10 * time.Second
	DefaultScoreboardStop    = 60 * time.Second
)

// LoadConfig loads a run configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// The document is checked against the embedded JSON schema before it is
// decoded. Defaults are not applied.
func LoadConfig(path string) (*BenchmarkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := ValidateSchema(data, path); err != nil {
		return nil, err
	}
	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*BenchmarkConfig, error) {
	var config BenchmarkConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
//
// An empty string is a zero duration.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	var rest string
	if n, _ := fmt.Sscanf(s, "%d%s", &seconds, &rest); n == 1 {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults applies default values to a BenchmarkConfig.
func ApplyDefaults(config *BenchmarkConfig) {
	if config.Name == "" {
		config.Name = "benchmark"
	}

	if config.Sampling.Strategy == "" {
		config.Sampling.Strategy = "poisson"
	}
	if config.Sampling.MeanInterval == 0 {
		config.Sampling.MeanInterval = DefaultMeanInterval
	}
	if config.Sampling.WaitTimes == "" {
		config.Sampling.WaitTimes = "none"
	}
	if config.Sampling.Seed == 0 {
		config.Sampling.Seed = time.Now().UnixNano()
	}

	if config.Metrics.Writer == "" {
		config.Metrics.Writer = "discard"
	}
	if config.Metrics.BufferSize == 0 {
		config.Metrics.BufferSize = DefaultMetricsBufferSize
	}

	if config.Shutdown.AgentJoin == 0 {
		config.Shutdown.AgentJoin = Duration(DefaultAgentJoin)
	}
	if config.Shutdown.AsyncDrain == 0 {
		config.Shutdown.AsyncDrain = Duration(DefaultAsyncDrain)
	}
	if config.Shutdown.Scoreboard == 0 {
		config.Shutdown.Scoreboard = Duration(DefaultScoreboardStop)
	}

	for i := range config.Targets {
		applyTargetDefaults(i, &config.Targets[i])
	}
}

// applyTargetDefaults applies default values to a target.
func applyTargetDefaults(index int, t *TargetConfig) {
	if t.Name == "" {
		t.Name = fmt.Sprintf("target_%d", index+1)
	}
	if t.AggregationID == "" {
		t.AggregationID = t.Generator
	}
}
