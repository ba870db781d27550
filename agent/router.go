package agent

import (
	"context"
	"sort"
	"strings"
)

// RouteCandidate is one orchestrator-scored option for Route.
type RouteCandidate struct {
	AgentID    string
	Confidence float64
}

// Router is the orchestrator handler from spec.md §4.1: it classifies a
// task against the registered descriptors and returns ranked candidates.
// The controller applies the tie-break rule over the returned candidates;
// the router itself only needs to produce a confidence per candidate.
type Router interface {
	Route(ctx context.Context, task Task, candidates []Descriptor) ([]RouteCandidate, string, error)
}

// DefaultRouter scores candidates by capability-overlap with the task
// kind: an agent whose Capabilities set contains the task's Kind gets a
// base confidence of 0.8, plus a small bonus when its PrimaryModel name
// hints at suitability for that kind. This is intentionally simple — a
// real orchestrator handler (an LLM call that returns a structured
// decision) can be swapped in via Controller.SetRouter without changing
// anything else.
type DefaultRouter struct{}

func NewDefaultRouter() *DefaultRouter {
	return &DefaultRouter{}
}

func (r *DefaultRouter) Route(ctx context.Context, task Task, candidates []Descriptor) ([]RouteCandidate, string, error) {
	var out []RouteCandidate

	for _, d := range candidates {
		if d.Status == StatusFailed {
			continue
		}
		if !d.Capabilities[string(task.Kind)] {
			continue
		}

		confidence := 0.8
		if strings.Contains(strings.ToLower(d.PrimaryModel), strings.ToLower(string(task.Kind))) {
			confidence += 0.1
		}

		out = append(out, RouteCandidate{AgentID: d.ID, Confidence: confidence})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })

	return out, "capability match for " + string(task.Kind), nil
}
