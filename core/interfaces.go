package core

import (
	"context"
	"sync"
)

// Logger is the minimal structured logging interface shared by every
// component of the controller. Context-aware variants thread trace
// baggage through to the metrics layer when one is registered.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with component context support.
// This allows different parts of the controller to have their own
// component identifier while sharing the same base configuration.
//
//	kubectl logs ... | jq 'select(.component == "framework/health")'
//
// Component naming convention:
//   - "framework/aec"        - the execution controller
//   - "framework/memory"     - semantic memory
//   - "framework/confidence" - confidence gate
//   - "framework/health"     - health supervisor
//   - "framework/budget"     - budget guard
//   - "framework/resilience" - circuit breaker / retry
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// ============================================================================
// Global Registry Pattern for optional metrics integration
// ============================================================================

// MetricsRegistry enables an optional metrics module to register itself
// with core. This avoids circular dependencies while enabling metrics
// emission from framework internals (budget, health, confidence).
type MetricsRegistry interface {
	// Counter increments a counter metric by 1.
	// Example: Counter("budget.calls_admitted", "provider", "anthropic")
	Counter(name string, labels ...string)

	// EmitWithContext emits a metric with context for trace correlation.
	EmitWithContext(ctx context.Context, name string, value float64, labels ...string)

	// GetBaggage returns baggage from context for correlation.
	GetBaggage(ctx context.Context) map[string]string

	// Gauge sets a gauge metric to a specific value.
	// Example: Gauge("health.agents_healthy", 5, "namespace", "default")
	Gauge(name string, value float64, labels ...string)

	// Histogram records a value in a histogram distribution.
	// Example: Histogram("aec.dispatch.duration_ms", 12.5, "agent_id", "router")
	Histogram(name string, value float64, labels ...string)
}

// Global registry - set by an optional telemetry module when it initializes.
var globalMetricsRegistry MetricsRegistry

// SetMetricsRegistry installs the process-wide metrics registry and
// retroactively enables metrics emission on every logger created so far.
func SetMetricsRegistry(registry MetricsRegistry) {
	globalMetricsRegistry = registry
	enableMetricsOnExistingLoggers()
}

// GetGlobalMetricsRegistry returns the installed registry, or nil if none
// has been installed yet. This lets framework modules emit metrics
// without creating a circular dependency on the metrics module.
func GetGlobalMetricsRegistry() MetricsRegistry {
	return globalMetricsRegistry
}

// Track created loggers to enable metrics when a registry becomes available.
var (
	createdLoggers []*ProductionLogger
	loggersMutex   sync.RWMutex
)

func trackLogger(logger *ProductionLogger) {
	loggersMutex.Lock()
	defer loggersMutex.Unlock()

	createdLoggers = append(createdLoggers, logger)

	if globalMetricsRegistry != nil {
		logger.EnableMetrics()
	}
}

func enableMetricsOnExistingLoggers() {
	loggersMutex.Lock()
	defer loggersMutex.Unlock()

	for _, logger := range createdLoggers {
		logger.EnableMetrics()
	}
}
