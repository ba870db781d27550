// Package runtime assembles the Semantic Memory, Confidence Gate, Health
// Supervisor, Budget Guard, event bus, and Agent Execution Controller into
// one constructed value, per spec.md §9's DESIGN NOTES ("wire the four
// subsystems behind one composition root rather than scattering globals").
package runtime

import (
	"context"
	"fmt"

	"github.com/corelattice/aec/agent"
	"github.com/corelattice/aec/budget"
	"github.com/corelattice/aec/config"
	"github.com/corelattice/aec/confidence"
	"github.com/corelattice/aec/core"
	"github.com/corelattice/aec/events"
	"github.com/corelattice/aec/health"
	"github.com/corelattice/aec/kv"
	"github.com/corelattice/aec/semantic"
	"github.com/corelattice/aec/telemetry"
)

// Runtime owns one instance of every subsystem and the Controller that
// coordinates them. Construct with New; call Start before serving traffic
// and Stop on shutdown.
type Runtime struct {
	Config config.Config

	Logger core.ComponentAwareLogger
	Bus    *events.Bus

	Memory     *semantic.Store
	Confidence *confidence.Gate
	Health     *health.Supervisor
	Budget     *budget.Guard
	Controller *agent.Controller

	Metrics *telemetry.OtelRegistry

	sqlite *semantic.SQLiteStore
	cache  kv.Cache
}

// New constructs a Runtime from cfg. provider is the outbound fallback
// Provider implementation (may be nil to disable escalation calls
// entirely); it is the one piece of executable wiring the bootstrap file
// cannot express declaratively.
func New(cfg config.Config, provider agent.Provider) (*Runtime, error) {
	logger := core.NewProductionLogger(core.LoggingConfig{
		Level:  orDefault(cfg.Logging.Level, "info"),
		Format: orDefault(cfg.Logging.Format, "json"),
		Output: orDefault(cfg.Logging.Output, "stdout"),
	}, "aecd").(core.ComponentAwareLogger)

	rt := &Runtime{Config: cfg, Logger: logger}

	rt.Bus = events.NewBus(func(evt events.Event) {
		logger.Warn("event dropped, subscriber buffer full", map[string]interface{}{"type": string(evt.Type)})
	})

	rt.Metrics = telemetry.NewOtelRegistry("aecd")
	core.SetMetricsRegistry(rt.Metrics)

	cache, err := buildCache(cfg)
	if err != nil {
		return nil, err
	}
	rt.cache = cache

	var persister semantic.Persister
	if cfg.Semantic.SQLitePath != "" {
		store, err := semantic.OpenSQLiteStore(cfg.Semantic.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("runtime: open sqlite: %w", err)
		}
		rt.sqlite = store
		persister = store
	}

	rt.Memory = semantic.NewStore(semantic.Config{
		MaxMemories:         cfg.Semantic.MaxMemories,
		SimilarityThreshold: cfg.Semantic.SimilarityThreshold,
		DedupThreshold:      cfg.Semantic.DedupThreshold,
	}, semantic.NewLexicalEmbedder(), persister, cache, logger)

	rt.Confidence = confidence.NewGate(confidence.Config{
		BaseScore:    cfg.Confidence.BaseScore,
		LatencyMaxMs: cfg.Confidence.LatencyMaxMs,
	})

	rt.Health = health.NewSupervisor(health.Config{
		AlertThreshold:      cfg.Health.AlertThresholdConsecutiveFailures,
		StaleAfter:          cfg.Health.StaleAfter,
		HealthCheckInterval: cfg.Health.HealthCheckInterval,
		HealDeadline:        cfg.Health.HealDeadline,
	}, rt.Bus, logger)

	rt.Budget = budget.NewGuard(budget.Config{
		GlobalLimit:  cfg.Budget.GlobalLimit,
		PerProvider:  cfg.Budget.PerProvider,
		SnapshotPath: cfg.Budget.SnapshotPath,
	}, cache, logger)

	rt.Controller = agent.New(agent.Config{
		DispatchDeadline:    cfg.Controller.DispatchDeadline,
		PerAgentConcurrency: cfg.Controller.PerAgentConcurrency,
		RetrieveK:           cfg.Controller.RetrieveK,
	}, rt.Memory, rt.Confidence, rt.Health, rt.Budget, rt.Bus, provider, logger)

	return rt, nil
}

// RegisterAgent installs a handler under the descriptor named by spec,
// built from the declarative AgentSpec plus the caller's executable
// Handler. heal, if non-nil, is registered as this agent's HealFunc; the
// Supervisor only tracks one healer process-wide, so the last
// RegisterAgent call with a non-nil heal wins (deployments with
// per-agent heal logic should dispatch on agentID inside a single
// HealFunc instead).
func (rt *Runtime) RegisterAgent(spec config.AgentSpec, handler agent.Handler, heal health.HealFunc) error {
	caps := make(map[string]bool, len(spec.Capabilities))
	for _, c := range spec.Capabilities {
		caps[c] = true
	}

	if heal != nil {
		rt.Health.SetHealer(heal)
	}

	return rt.Controller.Register(agent.Descriptor{
		ID:                  spec.ID,
		Kind:                agent.Kind(spec.Kind),
		Capabilities:        caps,
		FallbackModel:       spec.FallbackModel,
		ConfidenceThreshold: spec.ConfidenceThreshold,
	}, handler)
}

// Start launches the HS periodic scan. It does not restore SM/BG state:
// that runs once, lazily, on the first Controller.Execute or
// Controller.Route call.
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.Health.StartScan(ctx); err != nil {
		return fmt.Errorf("runtime: start health scan: %w", err)
	}
	return nil
}

// Stop halts the HS periodic scan, flushes the metrics registry, and
// releases the sqlite handle, if any.
func (rt *Runtime) Stop() error {
	rt.Health.Stop()
	_ = rt.Metrics.Shutdown(context.Background())
	if rt.sqlite != nil {
		return rt.sqlite.Close()
	}
	return nil
}

func buildCache(cfg config.Config) (kv.Cache, error) {
	if cfg.Redis.URL == "" {
		return kv.NewInProcessCache(), nil
	}
	cache, err := kv.NewRedisCache(cfg.Redis.URL, cfg.Redis.Namespace)
	if err != nil {
		return nil, fmt.Errorf("runtime: connect redis: %w", err)
	}
	return cache, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
