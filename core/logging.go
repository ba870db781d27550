package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// LoggingConfig controls the output format and level of a ProductionLogger.
type LoggingConfig struct {
	Level  string `json:"level" env:"AEC_LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"AEC_LOG_FORMAT" default:"json"`
	Output string `json:"output" env:"AEC_LOG_OUTPUT" default:"stdout"`
}

// ProductionLogger is a structured logger with an optional metrics layer that
// activates once a MetricsRegistry has been installed via SetMetricsRegistry.
// It implements both Logger and ComponentAwareLogger.
type ProductionLogger struct {
	level       string
	debug       bool
	component   string
	serviceName string
	format      string
	output      io.Writer

	metricsEnabled bool
}

// NewProductionLogger creates a logger from LoggingConfig.
func NewProductionLogger(logging LoggingConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	logger := &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       strings.ToLower(logging.Level) == "debug",
		component:   "framework/core",
		serviceName: serviceName,
		format:      logging.Format,
		output:      output,
	}
	trackLogger(logger)
	return logger
}

// WithComponent returns a logger tagged with the given component identifier.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

// EnableMetrics is called once a MetricsRegistry becomes available.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}
		if ctx != nil {
			if baggage := getContextBaggage(ctx); len(baggage) > 0 {
				for k, v := range baggage {
					logEntry["trace."+k] = v
				}
			}
		}
		for k, v := range fields {
			logEntry[k] = v
		}
		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		if p.metricsEnabled {
			p.emitFrameworkMetric(level, fields, ctx)
		}
		return
	}

	var fieldStr strings.Builder
	if len(fields) > 0 {
		fieldStr.WriteString(" ")
		for k, v := range fields {
			fmt.Fprintf(&fieldStr, "%s=%v ", k, v)
		}
	}
	fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s\n",
		timestamp, level, p.serviceName, p.component, msg, fieldStr.String())

	if p.metricsEnabled {
		p.emitFrameworkMetric(level, fields, ctx)
	}
}

// emitFrameworkMetric forwards a low-cardinality count of log events to the
// globally registered MetricsRegistry, if any.
func (p *ProductionLogger) emitFrameworkMetric(level string, fields map[string]interface{}, ctx context.Context) {
	labels := []string{"level", level, "service", p.serviceName, "component", p.component}
	for k, v := range fields {
		switch k {
		case "operation", "status", "error_kind", "agent_id", "provider":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}
	if ctx != nil {
		emitMetricWithContext(ctx, "aec.framework.log_events", 1.0, labels...)
	} else {
		emitMetric("aec.framework.log_events", 1.0, labels...)
	}
}

func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
