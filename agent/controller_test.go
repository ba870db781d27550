package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/corelattice/aec/budget"
	"github.com/corelattice/aec/confidence"
	"github.com/corelattice/aec/core"
	"github.com/corelattice/aec/health"
	"github.com/corelattice/aec/semantic"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, provider Provider, globalLimit float64) *Controller {
	t.Helper()
	sm := semantic.NewStore(semantic.Config{}, nil, nil, nil, nil)
	cg := confidence.NewGate(confidence.Config{})
	hs := health.NewSupervisor(health.Config{}, nil, nil)
	bg := budget.NewGuard(budget.Config{GlobalLimit: globalLimit, PerProvider: map[string]float64{"fallback-model": globalLimit}}, nil, nil)

	return New(Config{}, sm, cg, hs, bg, nil, provider, nil)
}

func TestHappyPath(t *testing.T) {
	c := newTestController(t, nil, 100)

	err := c.Register(Descriptor{
		ID:                  "A",
		ConfidenceThreshold: 0.85,
	}, HandlerFunc(func(ctx context.Context, task Task, enriched EnrichedContext) (Response, error) {
		return Response{Content: strRepeat("a", 120), Model: "general", ExecutionTimeMs: 1000}, nil
	}))
	require.NoError(t, err)

	resp, err := c.Execute(context.Background(), "A", Task{Payload: "hello"})
	require.NoError(t, err)
	require.False(t, resp.Escalated)

	report := c.hs.Report()
	m := report.Agents["A"]
	require.Equal(t, int64(1), m.Total)
	require.Equal(t, int64(1), m.Successful)
	require.Equal(t, 0, m.ConsecutiveFailures)
}

func TestEscalationAdmitted(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (Response, error) {
		return Response{Content: "a confident fallback answer", Model: model, ExecutionTimeMs: 500}, nil
	})
	c := newTestController(t, provider, 100)

	err := c.Register(Descriptor{
		ID:                  "A",
		ConfidenceThreshold: 0.85,
		FallbackModel:       "fallback-model",
	}, HandlerFunc(func(ctx context.Context, task Task, enriched EnrichedContext) (Response, error) {
		return Response{Content: "I'm not sure", Model: "general", ExecutionTimeMs: 200}, nil
	}))
	require.NoError(t, err)

	resp, err := c.Execute(context.Background(), "A", Task{Payload: "hello"})
	require.NoError(t, err)
	require.True(t, resp.Escalated)
	require.InDelta(t, 0.40, resp.OriginalConfidence, 1e-6)
}

func TestEscalationDeniedByBudget(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (Response, error) {
		return Response{Content: "a confident fallback answer", Model: model, ExecutionTimeMs: 500}, nil
	})
	c := newTestController(t, provider, 0)

	err := c.Register(Descriptor{
		ID:                  "A",
		ConfidenceThreshold: 0.85,
		FallbackModel:       "fallback-model",
	}, HandlerFunc(func(ctx context.Context, task Task, enriched EnrichedContext) (Response, error) {
		return Response{Content: "I'm not sure", Model: "general", ExecutionTimeMs: 200}, nil
	}))
	require.NoError(t, err)

	resp, err := c.Execute(context.Background(), "A", Task{Payload: "hello"})
	require.NoError(t, err)
	require.False(t, resp.Escalated)
	require.True(t, resp.EscalationAttempted)
	require.True(t, resp.EscalationFailed)
	require.Equal(t, "budget_exceeded", resp.EscalationReason)

	status := c.bg.Status()
	require.Equal(t, 0.0, status.GlobalUsed)
}

func TestCriticalAgentHealsThenDispatches(t *testing.T) {
	c := newTestController(t, nil, 100)

	healed := false
	failing := true
	err := c.Register(Descriptor{ID: "A", ConfidenceThreshold: 0.85}, HandlerFunc(func(ctx context.Context, task Task, enriched EnrichedContext) (Response, error) {
		if failing {
			return Response{}, NewHandlerError(KindInternal, fmt.Errorf("boom"))
		}
		return Response{Content: "ok", Model: "general", ExecutionTimeMs: 10}, nil
	}))
	require.NoError(t, err)

	c.hs.SetHealer(func(ctx context.Context, agentID string) error {
		healed = true
		return nil
	})

	for i := 0; i < 3; i++ {
		_, err := c.Execute(context.Background(), "A", Task{Payload: "hello"})
		require.Error(t, err)
	}
	require.True(t, healed)

	// HS already healed the agent as part of the critical transition; the
	// next Execute should sync that back onto the descriptor and dispatch.
	failing = false
	resp, err := c.Execute(context.Background(), "A", Task{Payload: "hello"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
}

func TestFailedAgentNeverDispatched(t *testing.T) {
	c := newTestController(t, nil, 100)

	err := c.Register(Descriptor{ID: "A", ConfidenceThreshold: 0.85}, HandlerFunc(func(ctx context.Context, task Task, enriched EnrichedContext) (Response, error) {
		return Response{}, NewHandlerError(KindInternal, fmt.Errorf("boom"))
	}))
	require.NoError(t, err)

	c.hs.SetHealer(func(ctx context.Context, agentID string) error {
		return fmt.Errorf("heal failed")
	})

	var lastErr error
	for i := 0; i < 3; i++ {
		_, lastErr = c.Execute(context.Background(), "A", Task{Payload: "hello"})
	}
	require.Error(t, lastErr)
	require.Equal(t, health.StatusFailed, c.hs.Status("A"))

	_, err = c.Execute(context.Background(), "A", Task{Payload: "hello"})
	require.Error(t, err)
	var fe *core.FrameworkError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, string(KindUnavailable), fe.Kind)
}

func strRepeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
