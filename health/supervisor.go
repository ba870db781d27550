package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/corelattice/aec/core"
	"github.com/corelattice/aec/events"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealFunc is the callback contract issued to the AEC: stop the current
// handler instance, clear in-flight state, reinitialise from the agent's
// descriptor, probe with a trivial no-op task, and return nil on success.
// The caller (Supervisor) bounds it with HealDeadline.
type HealFunc func(ctx context.Context, agentID string) error

// Config controls HS thresholds, all defaulted per spec.md §6.
type Config struct {
	AlertThreshold       int
	StaleAfter           time.Duration
	HealthCheckInterval  time.Duration
	HealDeadline         time.Duration
	ErrorRateAlertPct    float64
	MemoryCeilingPct     float64
}

func (c Config) withDefaults() Config {
	if c.AlertThreshold == 0 {
		c.AlertThreshold = 3
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.HealDeadline == 0 {
		c.HealDeadline = 10 * time.Second
	}
	if c.ErrorRateAlertPct == 0 {
		c.ErrorRateAlertPct = 5.0
	}
	if c.MemoryCeilingPct == 0 {
		c.MemoryCeilingPct = 85.0
	}
	return c
}

type agentState struct {
	mu      sync.Mutex
	metrics AgentMetrics
}

// Supervisor is the Health/Auto-Heal Supervisor (HS).
type Supervisor struct {
	cfg    Config
	bus    events.Publisher
	logger core.ComponentAwareLogger
	healer HealFunc

	agentsMu sync.RWMutex
	agents   map[string]*agentState

	startedAt time.Time

	cronMu sync.Mutex
	cronID *cron.Cron
}

// NewSupervisor constructs a Supervisor. bus may be nil to disable event
// emission (useful in tests).
func NewSupervisor(cfg Config, bus events.Publisher, logger core.ComponentAwareLogger) *Supervisor {
	if logger == nil {
		logger = core.NewProductionLogger(core.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "aec").(core.ComponentAwareLogger)
	}
	return &Supervisor{
		cfg:       cfg.withDefaults(),
		bus:       bus,
		logger:    logger.WithComponent("framework/health").(core.ComponentAwareLogger),
		agents:    make(map[string]*agentState),
		startedAt: time.Now(),
	}
}

// SetHealer installs the heal callback the Supervisor invokes when an
// agent transitions to critical.
func (s *Supervisor) SetHealer(fn HealFunc) {
	s.healer = fn
}

// RegisterAgent seeds metrics for a newly registered agent.
func (s *Supervisor) RegisterAgent(agentID string) {
	s.agentsMu.Lock()
	defer s.agentsMu.Unlock()

	if _, ok := s.agents[agentID]; ok {
		return
	}
	s.agents[agentID] = &agentState{
		metrics: AgentMetrics{AgentID: agentID, Status: StatusHealthy},
	}
}

func (s *Supervisor) stateFor(agentID string) *agentState {
	s.agentsMu.RLock()
	st, ok := s.agents[agentID]
	s.agentsMu.RUnlock()
	if ok {
		return st
	}

	s.agentsMu.Lock()
	defer s.agentsMu.Unlock()
	st, ok = s.agents[agentID]
	if !ok {
		st = &agentState{metrics: AgentMetrics{AgentID: agentID, Status: StatusHealthy}}
		s.agents[agentID] = st
	}
	return st
}

// Status returns the current classification for agentID.
func (s *Supervisor) Status(agentID string) Status {
	st := s.stateFor(agentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.metrics.Status
}

// RecordSuccess updates metrics after a successful dispatch. If the agent
// was degraded or critical it transitions back to healthy and emits
// agent_recovered.
func (s *Supervisor) RecordSuccess(agentID string, durationMs int64) {
	st := s.stateFor(agentID)

	st.mu.Lock()
	m := &st.metrics
	m.Total++
	m.Successful++
	m.LastExecution = time.Now()
	m.AvgExecutionTimeMs = runningAverage(m.AvgExecutionTimeMs, m.Successful+m.Failed, float64(durationMs))
	wasDegradedOrWorse := m.Status != StatusHealthy
	m.ConsecutiveFailures = 0
	m.Status = StatusHealthy
	st.mu.Unlock()

	if wasDegradedOrWorse {
		s.publish(events.AgentRecovered, events.AgentStatePayload{AgentID: agentID, Reason: "successful execution"})
	}

	if reg := core.GetGlobalMetricsRegistry(); reg != nil {
		reg.Gauge("aec.health.agent_status", statusGaugeValue(StatusHealthy), "agent_id", agentID)
	}
}

// RecordFailure updates metrics after a failed dispatch, possibly
// transitioning status and invoking heal. ctx bounds any heal attempt.
func (s *Supervisor) RecordFailure(ctx context.Context, agentID, errKind string) {
	st := s.stateFor(agentID)

	st.mu.Lock()
	m := &st.metrics
	m.Total++
	m.Failed++
	m.ConsecutiveFailures++
	m.LastExecution = time.Now()
	m.ErrorHistory = append(m.ErrorHistory, ErrorEntry{Kind: errKind, At: time.Now()})
	if len(m.ErrorHistory) > errorHistoryCap {
		m.ErrorHistory = m.ErrorHistory[len(m.ErrorHistory)-errorHistoryCap:]
	}

	var nextStatus Status
	switch {
	case m.ConsecutiveFailures >= s.cfg.AlertThreshold:
		nextStatus = StatusCritical
	case m.ConsecutiveFailures >= 2:
		nextStatus = StatusDegraded
	default:
		nextStatus = m.Status
	}
	prevStatus := m.Status
	m.Status = nextStatus
	consecutive := m.ConsecutiveFailures
	st.mu.Unlock()

	if nextStatus == StatusDegraded && prevStatus != StatusDegraded {
		s.publish(events.AgentDegraded, events.AgentStatePayload{AgentID: agentID, ConsecutiveFailures: consecutive, Reason: errKind})
	}

	if nextStatus == StatusCritical && prevStatus != StatusCritical {
		s.publish(events.AgentCritical, events.AgentStatePayload{AgentID: agentID, ConsecutiveFailures: consecutive, Reason: errKind})
		s.heal(ctx, agentID)
	}

	if reg := core.GetGlobalMetricsRegistry(); reg != nil {
		reg.Gauge("aec.health.agent_status", statusGaugeValue(nextStatus), "agent_id", agentID)
	}
}

// statusGaugeValue maps Status to an ordinal for the agent_status gauge:
// higher is worse, matching the escalation order healthy<degraded<
// critical<failed.
func statusGaugeValue(s Status) float64 {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusCritical:
		return 2
	case StatusFailed:
		return 3
	default:
		return -1
	}
}

// AttemptHeal runs a single inline heal for agentID, reporting whether it
// succeeded. This is the path AEC uses for a critical agent before
// dispatch (spec.md §4.1 step 2), distinct from the automatic heal
// RecordFailure triggers on the transition into critical.
func (s *Supervisor) AttemptHeal(ctx context.Context, agentID string) bool {
	s.heal(ctx, agentID)
	return s.Status(agentID) == StatusHealthy
}

// heal runs the registered HealFunc under HealDeadline and applies the
// outcome. Idempotent: calling it when the agent is already healthy is
// harmless (the healer is expected to be idempotent per spec.md §4.4).
func (s *Supervisor) heal(ctx context.Context, agentID string) {
	if s.healer == nil {
		s.logger.Warn("no healer registered, leaving agent critical", map[string]interface{}{"agent_id": agentID})
		return
	}

	healCtx, cancel := context.WithTimeout(ctx, s.cfg.HealDeadline)
	defer cancel()

	err := s.healer(healCtx, agentID)

	st := s.stateFor(agentID)
	st.mu.Lock()
	if err == nil {
		st.metrics.Status = StatusHealthy
		st.metrics.ConsecutiveFailures = 0
	} else {
		st.metrics.Status = StatusFailed
	}
	st.mu.Unlock()

	if err == nil {
		s.publish(events.AgentRestarted, events.RestartPayload{AgentID: agentID, Success: true})
	} else {
		s.publish(events.AgentRestartFailed, events.RestartPayload{AgentID: agentID, Success: false, Error: err.Error()})
	}
}

func (s *Supervisor) publish(t events.Type, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: t, Payload: payload})
}

// Report returns a snapshot of every agent's metrics plus a system rollup.
func (s *Supervisor) Report() SystemSnapshot {
	s.agentsMu.RLock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	s.agentsMu.RUnlock()

	snapshot := SystemSnapshot{
		Uptime: time.Since(s.startedAt),
		Agents: make(map[string]AgentMetrics, len(ids)),
	}

	for _, id := range ids {
		st := s.stateFor(id)
		st.mu.Lock()
		m := st.metrics
		st.mu.Unlock()

		snapshot.Agents[id] = m
		snapshot.TotalRequests += m.Total
		snapshot.TotalErrors += m.Failed
	}
	snapshot.AgentCount = len(ids)

	if used, err := currentMemoryUsedBytes(); err == nil {
		snapshot.MemoryUsedBytes = used
	}

	return snapshot
}

// StartScan launches the 30 s periodic scan (or cfg.HealthCheckInterval)
// described in spec.md §4.4, driven by a cron schedule instead of a raw
// time.Ticker. Call Stop to cancel.
func (s *Supervisor) StartScan(ctx context.Context) error {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()

	if s.cronID != nil {
		return fmt.Errorf("health: scan already started")
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.HealthCheckInterval.String())
	if _, err := c.AddFunc(spec, func() { s.scanOnce(ctx) }); err != nil {
		return fmt.Errorf("health: schedule scan: %w", err)
	}
	c.Start()
	s.cronID = c

	return nil
}

// Stop halts the periodic scan.
func (s *Supervisor) Stop() {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cronID != nil {
		s.cronID.Stop()
		s.cronID = nil
	}
}

func (s *Supervisor) scanOnce(ctx context.Context) {
	scanStart := time.Now()
	defer func() {
		if reg := core.GetGlobalMetricsRegistry(); reg != nil {
			reg.Histogram("aec.health.scan_duration_ms", float64(time.Since(scanStart).Milliseconds()))
		}
	}()

	snapshot := s.Report()

	now := time.Now()
	s.agentsMu.RLock()
	for id, st := range s.agents {
		st.mu.Lock()
		stale := !st.metrics.LastExecution.IsZero() && now.Sub(st.metrics.LastExecution) > s.cfg.StaleAfter
		st.mu.Unlock()
		if stale {
			s.logger.Warn("agent stale", map[string]interface{}{"agent_id": id})
		}
	}
	s.agentsMu.RUnlock()

	if snapshot.TotalRequests > 0 {
		errorRate := 100.0 * float64(snapshot.TotalErrors) / float64(snapshot.TotalRequests)
		if errorRate > s.cfg.ErrorRateAlertPct {
			s.publish(events.SystemAlert, events.SystemAlertPayload{Kind: events.AlertHighErrorRate, Value: errorRate, Limit: s.cfg.ErrorRateAlertPct})
		}
	}

	if pct, err := currentMemoryUsedPercent(); err == nil && pct > s.cfg.MemoryCeilingPct {
		s.publish(events.SystemAlert, events.SystemAlertPayload{Kind: events.AlertHighMemoryUsage, Value: pct, Limit: s.cfg.MemoryCeilingPct})
	}
}

func currentMemoryUsedBytes() (uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.Used, nil
}

func currentMemoryUsedPercent() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.UsedPercent, nil
}

func runningAverage(prevAvg float64, n int64, newVal float64) float64 {
	if n <= 1 {
		return newVal
	}
	return prevAvg + (newVal-prevAvg)/float64(n)
}
