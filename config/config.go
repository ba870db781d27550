// Package config loads the Runtime's tunables from a bootstrap.yaml file
// with AEC_* environment overrides, following the layering convention of
// itsneelabh-gomind/core's own Production config (file defaults, env
// override, in-process defaults as the final fallback).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentSpec describes one entry in the bootstrap roster. The Handler and
// Provider implementations themselves are still wired in Go by the
// binary that embeds this config (spec.md draws a hard line between
// declarative descriptor data and executable handler code).
type AgentSpec struct {
	ID                  string   `yaml:"id"`
	Kind                string   `yaml:"kind"`
	ConfidenceThreshold float64  `yaml:"confidenceThreshold"`
	FallbackModel       string   `yaml:"fallbackModel"`
	Capabilities        []string `yaml:"capabilities"`
}

// Config is the full bootstrap document for an aecd process.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`

	Semantic   SemanticConfig   `yaml:"semantic"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Health     HealthConfig     `yaml:"health"`
	Budget     BudgetConfig     `yaml:"budget"`
	Controller ControllerConfig `yaml:"controller"`

	Redis RedisConfig `yaml:"redis"`

	Agents []AgentSpec `yaml:"agents"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"AEC_LOG_LEVEL"`
	Format string `yaml:"format" env:"AEC_LOG_FORMAT"`
	Output string `yaml:"output" env:"AEC_LOG_OUTPUT"`
}

type SemanticConfig struct {
	MaxMemories         int     `yaml:"maxMemories" env:"AEC_SEMANTIC_MAX_MEMORIES"`
	SimilarityThreshold float64 `yaml:"similarityThreshold" env:"AEC_SEMANTIC_SIMILARITY_THRESHOLD"`
	DedupThreshold      float64 `yaml:"dedupThreshold" env:"AEC_SEMANTIC_DEDUP_THRESHOLD"`
	SQLitePath          string  `yaml:"sqlitePath" env:"AEC_SEMANTIC_SQLITE_PATH"`
}

type ConfidenceConfig struct {
	BaseScore    float64 `yaml:"baseScore" env:"AEC_CONFIDENCE_BASE_SCORE"`
	LatencyMaxMs int64   `yaml:"latencyMaxMs" env:"AEC_CONFIDENCE_LATENCY_MAX_MS"`
}

type HealthConfig struct {
	AlertThresholdConsecutiveFailures int           `yaml:"alertThresholdConsecutiveFailures" env:"AEC_HEALTH_ALERT_THRESHOLD"`
	StaleAfter                        time.Duration `yaml:"staleAfter" env:"AEC_HEALTH_STALE_AFTER"`
	HealthCheckInterval               time.Duration `yaml:"healthCheckInterval" env:"AEC_HEALTH_CHECK_INTERVAL"`
	HealDeadline                      time.Duration `yaml:"healDeadline" env:"AEC_HEALTH_HEAL_DEADLINE"`
}

type BudgetConfig struct {
	GlobalLimit  float64            `yaml:"globalLimit" env:"AEC_BUDGET_GLOBAL_LIMIT"`
	PerProvider  map[string]float64 `yaml:"perProvider"`
	SnapshotPath string             `yaml:"snapshotPath" env:"AEC_BUDGET_SNAPSHOT_PATH"`
}

type ControllerConfig struct {
	DispatchDeadline    time.Duration `yaml:"dispatchDeadline" env:"AEC_DISPATCH_DEADLINE"`
	PerAgentConcurrency int           `yaml:"perAgentConcurrency" env:"AEC_PER_AGENT_CONCURRENCY"`
	RetrieveK           int           `yaml:"retrieveK" env:"AEC_RETRIEVE_K"`
}

// RedisConfig is optional; leave URL empty to fall back to the in-process
// kv.Cache for both the embedding cache and the budget ledger mirror.
type RedisConfig struct {
	URL       string `yaml:"url" env:"AEC_REDIS_URL"`
	Namespace string `yaml:"namespace" env:"AEC_REDIS_NAMESPACE"`
}

// Load reads path (if non-empty and present) and applies AEC_* env
// overrides on top of it. A missing path is not an error: the zero-value
// Config is valid and every downstream component falls back to its own
// defaults.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	strVar(&cfg.Logging.Level, "AEC_LOG_LEVEL")
	strVar(&cfg.Logging.Format, "AEC_LOG_FORMAT")
	strVar(&cfg.Logging.Output, "AEC_LOG_OUTPUT")

	intVar(&cfg.Semantic.MaxMemories, "AEC_SEMANTIC_MAX_MEMORIES")
	floatVar(&cfg.Semantic.SimilarityThreshold, "AEC_SEMANTIC_SIMILARITY_THRESHOLD")
	floatVar(&cfg.Semantic.DedupThreshold, "AEC_SEMANTIC_DEDUP_THRESHOLD")
	strVar(&cfg.Semantic.SQLitePath, "AEC_SEMANTIC_SQLITE_PATH")

	floatVar(&cfg.Confidence.BaseScore, "AEC_CONFIDENCE_BASE_SCORE")
	int64Var(&cfg.Confidence.LatencyMaxMs, "AEC_CONFIDENCE_LATENCY_MAX_MS")

	intVar(&cfg.Health.AlertThresholdConsecutiveFailures, "AEC_HEALTH_ALERT_THRESHOLD")
	durationVar(&cfg.Health.StaleAfter, "AEC_HEALTH_STALE_AFTER")
	durationVar(&cfg.Health.HealthCheckInterval, "AEC_HEALTH_CHECK_INTERVAL")
	durationVar(&cfg.Health.HealDeadline, "AEC_HEALTH_HEAL_DEADLINE")

	floatVar(&cfg.Budget.GlobalLimit, "AEC_BUDGET_GLOBAL_LIMIT")
	strVar(&cfg.Budget.SnapshotPath, "AEC_BUDGET_SNAPSHOT_PATH")

	durationVar(&cfg.Controller.DispatchDeadline, "AEC_DISPATCH_DEADLINE")
	intVar(&cfg.Controller.PerAgentConcurrency, "AEC_PER_AGENT_CONCURRENCY")
	intVar(&cfg.Controller.RetrieveK, "AEC_RETRIEVE_K")

	strVar(&cfg.Redis.URL, "AEC_REDIS_URL")
	strVar(&cfg.Redis.Namespace, "AEC_REDIS_NAMESPACE")
}

func strVar(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

func intVar(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func int64Var(dst *int64, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func floatVar(dst *float64, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func durationVar(dst *time.Duration, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
