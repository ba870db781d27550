package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corelattice/aec/budget"
	"github.com/corelattice/aec/confidence"
	"github.com/corelattice/aec/core"
	"github.com/corelattice/aec/events"
	"github.com/corelattice/aec/health"
	"github.com/corelattice/aec/semantic"
	"github.com/google/uuid"
)

// Config controls Controller-level tunables from spec.md §6.
type Config struct {
	DispatchDeadline    time.Duration
	PerAgentConcurrency int
	RetrieveK           int
}

func (c Config) withDefaults() Config {
	if c.DispatchDeadline == 0 {
		c.DispatchDeadline = 30 * time.Second
	}
	if c.PerAgentConcurrency == 0 {
		c.PerAgentConcurrency = 5
	}
	if c.RetrieveK == 0 {
		c.RetrieveK = 5
	}
	return c
}

type registeredAgent struct {
	mu         sync.RWMutex
	descriptor Descriptor
	handler    Handler
	sem        chan struct{}
}

// Controller is the Agent Execution Controller (AEC): the orchestrator
// that ties SM, CG, HS, and BG together behind Execute and Route.
type Controller struct {
	cfg Config

	sm *semantic.Store
	cg *confidence.Gate
	hs *health.Supervisor
	bg *budget.Guard

	bus      events.Publisher
	provider Provider
	router   Router
	logger   core.ComponentAwareLogger

	mu     sync.RWMutex
	agents map[string]*registeredAgent

	initOnce sync.Once
	initErr  error
}

// New constructs a Controller. provider may be nil if no fallback
// escalation path is configured (escalation for an agent with a
// FallbackModel then reports escalation_failed with reason
// "no_provider_configured"; an agent without one reports
// "no_fallback_configured").
func New(cfg Config, sm *semantic.Store, cg *confidence.Gate, hs *health.Supervisor, bg *budget.Guard, bus events.Publisher, provider Provider, logger core.ComponentAwareLogger) *Controller {
	if logger == nil {
		logger = core.NewProductionLogger(core.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "aec").(core.ComponentAwareLogger)
	}
	return &Controller{
		cfg:      cfg.withDefaults(),
		sm:       sm,
		cg:       cg,
		hs:       hs,
		bg:       bg,
		bus:      bus,
		provider: provider,
		router:   NewDefaultRouter(),
		logger:   logger.WithComponent("framework/aec").(core.ComponentAwareLogger),
		agents:   make(map[string]*registeredAgent),
	}
}

// SetRouter overrides the default capability-overlap router.
func (c *Controller) SetRouter(r Router) {
	c.router = r
}

// Register installs a dispatchable agent.
func (c *Controller) Register(descriptor Descriptor, handler Handler) error {
	if descriptor.ID == "" {
		return core.NewFrameworkError("agent.Register", "invalidInput", core.ErrInvalidConfiguration)
	}
	if descriptor.Status == "" {
		descriptor.Status = StatusReady
	}
	descriptor.LastHeartbeat = time.Now()

	c.mu.Lock()
	c.agents[descriptor.ID] = &registeredAgent{
		descriptor: descriptor,
		handler:    handler,
		sem:        make(chan struct{}, c.cfg.PerAgentConcurrency),
	}
	c.mu.Unlock()

	c.hs.RegisterAgent(descriptor.ID)

	return nil
}

// ensureInit runs one-shot initialisation; concurrent callers block on
// sync.Once.Do rather than racing, per spec.md §5's double-checked-
// initialise barrier.
func (c *Controller) ensureInit(ctx context.Context) error {
	c.initOnce.Do(func() {
		if c.sm != nil {
			if err := c.sm.Restore(ctx); err != nil {
				c.initErr = fmt.Errorf("agent: restore semantic store: %w", err)
				return
			}
		}
		if c.bg != nil {
			if err := c.bg.Restore(ctx); err != nil {
				c.initErr = fmt.Errorf("agent: restore budget ledger: %w", err)
				return
			}
		}
	})
	return c.initErr
}

func (c *Controller) lookup(agentID string) (*registeredAgent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ra, ok := c.agents[agentID]
	return ra, ok
}

// Execute runs the dispatch algorithm from spec.md §4.1.
func (c *Controller) Execute(ctx context.Context, agentID string, task Task) (Response, error) {
	if err := c.ensureInit(ctx); err != nil {
		return Response{}, err
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	ra, ok := c.lookup(agentID)
	if !ok {
		return Response{}, core.NewFrameworkError("agent.Execute", string(KindInvalidInput), core.ErrAgentNotFound)
	}

	ra.mu.Lock()
	ra.descriptor.Status = syncStatus(ra.descriptor.Status, c.hs.Status(agentID))
	descriptor := ra.descriptor
	ra.mu.Unlock()

	if descriptor.Status == StatusFailed {
		return Response{}, core.NewFrameworkError("agent.Execute", string(KindUnavailable), core.ErrAgentNotReady)
	}

	if descriptor.Status == StatusCritical {
		if c.hs.AttemptHeal(ctx, agentID) {
			ra.mu.Lock()
			ra.descriptor.Status = StatusReady
			ra.mu.Unlock()
		} else {
			ra.mu.Lock()
			ra.descriptor.Status = StatusFailed
			ra.mu.Unlock()
			return Response{}, core.NewFrameworkError("agent.Execute", string(KindUnavailable), core.ErrAgentNotReady)
		}
	}

	deadline := task.Deadline
	if deadline == 0 {
		deadline = c.cfg.DispatchDeadline
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	select {
	case ra.sem <- struct{}{}:
		defer func() { <-ra.sem }()
	case <-dispatchCtx.Done():
		return Response{}, core.NewFrameworkError("agent.Execute", string(KindTimeout), core.ErrTimeout)
	}

	enriched := c.buildContext(dispatchCtx, agentID, task)

	start := time.Now()
	resp, err := ra.handler.Invoke(dispatchCtx, task, enriched)
	elapsed := time.Since(start)

	if err != nil {
		kind := classify(err)
		if dispatchCtx.Err() != nil {
			kind = KindTimeout
		}
		c.hs.RecordFailure(ctx, agentID, string(kind))
		return Response{}, core.NewFrameworkError("agent.Execute", string(kind), err)
	}

	c.hs.RecordSuccess(agentID, elapsed.Milliseconds())

	resp.RoutedTo = agentID
	resp = c.maybeEscalate(ctx, agentID, descriptor, task, resp)

	c.persistOutcome(ctx, agentID, task, resp)

	return resp, nil
}

func (c *Controller) buildContext(ctx context.Context, agentID string, task Task) EnrichedContext {
	enriched := EnrichedContext{Task: task}

	if c.sm == nil {
		return enriched
	}

	scored, err := c.sm.Retrieve(ctx, agentID, task.Payload, c.cfg.RetrieveK)
	if err != nil {
		c.logger.Warn("memory retrieval failed", map[string]interface{}{"agent_id": agentID, "error": err.Error()})
		return enriched
	}

	for _, s := range scored {
		enriched.ContextualMemories = append(enriched.ContextualMemories, ContextualMemory{
			Content:    s.Record.Content,
			Similarity: s.Similarity,
		})
	}

	return enriched
}

func (c *Controller) maybeEscalate(ctx context.Context, agentID string, descriptor Descriptor, task Task, resp Response) Response {
	if c.cg == nil {
		return resp
	}

	cgResp := confidence.Response{
		Content:         resp.Content,
		Model:           resp.Model,
		ExecutionTimeMs: resp.ExecutionTimeMs,
		TokensIn:        resp.TokensIn,
		TokensOut:       resp.TokensOut,
		Logprobs:        resp.Logprobs,
		ErrorKind:       resp.ErrorKind,
	}

	eval := c.cg.Evaluate(taskKindToConfidenceKind(task.Kind), cgResp, descriptor.ConfidenceThreshold)
	if !eval.ShouldEscalate {
		return resp
	}

	c.publish(events.EscalationTriggered, events.EscalationPayload{
		AgentID: agentID, TaskID: task.ID, Score: eval.Score, Threshold: eval.Threshold, Factors: eval.Factors,
	})

	if descriptor.FallbackModel == "" {
		resp.EscalationAttempted = true
		resp.EscalationFailed = true
		resp.EscalationReason = "no_fallback_configured"
		c.publish(events.EscalationFailed, events.EscalationPayload{AgentID: agentID, TaskID: task.ID, Reason: resp.EscalationReason})
		return resp
	}

	if c.provider == nil {
		resp.EscalationAttempted = true
		resp.EscalationFailed = true
		resp.EscalationReason = "no_provider_configured"
		c.publish(events.EscalationFailed, events.EscalationPayload{AgentID: agentID, TaskID: task.ID, Reason: resp.EscalationReason})
		return resp
	}

	if c.bg != nil {
		estimatedCost := estimateCost(task.Payload)
		decision, err := c.bg.Check(ctx, descriptor.FallbackModel, estimatedCost)
		if err != nil || !decision.Admitted {
			resp.EscalationAttempted = true
			resp.EscalationFailed = true
			resp.EscalationReason = "budget_exceeded"
			c.publish(events.EscalationFailed, events.EscalationPayload{AgentID: agentID, TaskID: task.ID, Reason: "budget_exceeded"})
			return resp
		}
	}

	originalConfidence := eval.Score

	var fallback Response
	callErr := func() error {
		if c.bg == nil {
			var err error
			fallback, err = c.provider.CallProvider(ctx, descriptor.FallbackModel, task.Payload, descriptor.FallbackModel, nil)
			return err
		}
		breaker := c.bg.BreakerFor(descriptor.FallbackModel)
		return breaker.Execute(ctx, func() error {
			var err error
			fallback, err = c.provider.CallProvider(ctx, descriptor.FallbackModel, task.Payload, descriptor.FallbackModel, nil)
			return err
		})
	}()
	if callErr != nil {
		resp.EscalationAttempted = true
		resp.EscalationFailed = true
		resp.EscalationReason = callErr.Error()
		c.publish(events.EscalationFailed, events.EscalationPayload{AgentID: agentID, TaskID: task.ID, Reason: resp.EscalationReason})
		return resp
	}

	c.cg.RecordAPICall()

	if c.bg != nil {
		actualCost := estimateCost(fallback.Content)
		if err := c.bg.Record(ctx, descriptor.FallbackModel, actualCost, int64(fallback.TokensIn), int64(fallback.TokensOut)); err != nil {
			c.logger.Warn("failed to record budget spend", map[string]interface{}{"provider": descriptor.FallbackModel, "error": err.Error()})
		}
	}

	fallback.RoutedTo = agentID
	fallback.Escalated = true
	fallback.OriginalConfidence = originalConfidence

	c.publish(events.EscalationCompleted, events.EscalationPayload{AgentID: agentID, TaskID: task.ID, Score: originalConfidence, Threshold: eval.Threshold})

	return fallback
}

func (c *Controller) persistOutcome(ctx context.Context, agentID string, task Task, resp Response) {
	if c.sm == nil {
		return
	}
	content := task.Payload + " => " + resp.Content
	if _, err := c.sm.Store(ctx, agentID, content, task.Context); err != nil {
		c.logger.Warn("failed to persist memory record", map[string]interface{}{"agent_id": agentID, "error": err.Error()})
	}
}

func (c *Controller) publish(t events.Type, payload interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{Type: t, Payload: payload})
}

// Route classifies task via the Router and returns the selected target.
// This result is advisory; final dispatch still goes through Execute.
func (c *Controller) Route(ctx context.Context, task Task) (string, float64, string, error) {
	if err := c.ensureInit(ctx); err != nil {
		return "", 0, "", err
	}

	c.mu.RLock()
	descriptors := make([]Descriptor, 0, len(c.agents))
	for _, ra := range c.agents {
		ra.mu.RLock()
		descriptors = append(descriptors, ra.descriptor)
		ra.mu.RUnlock()
	}
	c.mu.RUnlock()

	candidates, reason, err := c.router.Route(ctx, task, descriptors)
	if err != nil {
		return "", 0, "", core.NewFrameworkError("agent.Route", string(KindInternal), err)
	}
	if len(candidates) == 0 {
		return "", 0, "", core.NewFrameworkError("agent.Route", string(KindUnavailable), core.ErrAgentNotFound)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		ci := c.consecutiveFailures(candidates[i].AgentID)
		cj := c.consecutiveFailures(candidates[j].AgentID)
		if ci != cj {
			return ci < cj
		}
		return candidates[i].AgentID < candidates[j].AgentID
	})

	top := candidates[0]
	return top.AgentID, top.Confidence, reason, nil
}

func (c *Controller) consecutiveFailures(agentID string) int {
	report := c.hs.Report()
	if m, ok := report.Agents[agentID]; ok {
		return m.ConsecutiveFailures
	}
	return 0
}

func taskKindToConfidenceKind(k Kind) confidence.TaskKind {
	return confidence.TaskKind(k)
}

// syncStatus folds the Health Supervisor's live classification for an
// agent into its dispatch-level Status, so a run of consecutive failures
// recorded by HS actually gates future dispatches (spec.md §4.1 step 2)
// instead of leaving the descriptor's cached Status stale. "busy" is left
// untouched since HS has no notion of it; "ready" is only restored once
// HS reports healthy again.
func syncStatus(current Status, hsStatus health.Status) Status {
	switch hsStatus {
	case health.StatusFailed:
		return StatusFailed
	case health.StatusCritical:
		return StatusCritical
	case health.StatusDegraded:
		return StatusDegraded
	case health.StatusHealthy:
		if current == StatusBusy {
			return current
		}
		return StatusReady
	default:
		return current
	}
}

// estimateCost is a placeholder cost model: proportional to content
// length. Real deployments supply model-specific per-token pricing via
// the Provider implementation; BG only needs a consistent estimate to
// gate against its caps.
func estimateCost(content string) float64 {
	return float64(len(content)) * 0.0001
}
