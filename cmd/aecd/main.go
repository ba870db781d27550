// Command aecd demonstrates wiring a Runtime with a small agent roster.
// It has no HTTP or other transport listener: request admission and
// routing are out of scope for this controller (spec.md §1), so this
// binary drives the Controller directly and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/corelattice/aec/agent"
	"github.com/corelattice/aec/config"
	"github.com/corelattice/aec/health"
	"github.com/corelattice/aec/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("AEC_BOOTSTRAP_PATH"))
	if err != nil {
		return err
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = []config.AgentSpec{
			{ID: "research", Kind: "chat", ConfidenceThreshold: 0.85, FallbackModel: "anthropic", Capabilities: []string{"chat", "route"}},
			{ID: "coder", Kind: "code", ConfidenceThreshold: 0.90, FallbackModel: "anthropic", Capabilities: []string{"code"}},
		}
	}
	if cfg.Budget.GlobalLimit == 0 {
		cfg.Budget.GlobalLimit = 50.0
		cfg.Budget.PerProvider = map[string]float64{"anthropic": 30.0, "openai": 20.0}
	}

	provider := agent.ProviderFunc(func(ctx context.Context, providerName, prompt, model string, params map[string]interface{}) (agent.Response, error) {
		return agent.Response{
			Content:         "[" + providerName + " fallback] " + prompt,
			Model:           model,
			ExecutionTimeMs: 400,
		}, nil
	})

	rt, err := runtime.New(cfg, provider)
	if err != nil {
		return err
	}

	for _, spec := range cfg.Agents {
		handler := demoHandler(spec.ID)
		heal := func(ctx context.Context, agentID string) error { return nil }
		if err := rt.RegisterAgent(spec, handler, health.HealFunc(heal)); err != nil {
			return fmt.Errorf("register %s: %w", spec.ID, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer rt.Stop()

	resp, err := rt.Controller.Execute(ctx, "research", agent.Task{
		Kind:    agent.KindChat,
		Payload: "summarise the open incidents from the last hour",
	})
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	fmt.Printf("routed_to=%s escalated=%v content=%q\n", resp.RoutedTo, resp.Escalated, resp.Content)

	report := rt.Health.Report()
	fmt.Printf("agents=%d total_requests=%d total_errors=%d\n", report.AgentCount, report.TotalRequests, report.TotalErrors)

	status := rt.Budget.Status()
	fmt.Printf("budget_global_used=%.4f budget_global_limit=%.2f\n", status.GlobalUsed, status.GlobalLimit)

	return nil
}

// demoHandler returns a Handler that answers deterministically; real
// deployments supply their own Handler per registered agent.
func demoHandler(agentID string) agent.Handler {
	return agent.HandlerFunc(func(ctx context.Context, task agent.Task, enriched agent.EnrichedContext) (agent.Response, error) {
		start := time.Now()
		content := fmt.Sprintf("%s handled: %s", agentID, task.Payload)
		return agent.Response{
			Content:         content,
			Model:           "general",
			ExecutionTimeMs: time.Since(start).Milliseconds() + 50,
		}, nil
	})
}
