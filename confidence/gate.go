package confidence

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/corelattice/aec/core"
)

const historyCap = 1000

// TaskKind mirrors agent.Kind without importing the agent package.
type TaskKind string

const (
	KindChat   TaskKind = "chat"
	KindCode   TaskKind = "code"
	KindVision TaskKind = "vision"
	KindReason TaskKind = "reason"
	KindRoute  TaskKind = "route"
	KindCustom TaskKind = "custom"
)

// Config controls the base score and signal weights. Weights intentionally
// do not need to sum to 1: the result is clamped to [0,1] regardless (see
// spec's open question on the source's weights).
type Config struct {
	BaseScore            float64
	LogProbWeight        float64
	CompletenessWeight   float64
	HedgingWeight        float64
	LatencyWeight        float64
	ModelBonusWeight     float64
	CompletenessMinChars int
	LatencyMaxMs         int64
}

func (c Config) withDefaults() Config {
	if c.BaseScore == 0 {
		c.BaseScore = 0.5
	}
	if c.LogProbWeight == 0 {
		c.LogProbWeight = 0.40
	}
	if c.CompletenessWeight == 0 {
		c.CompletenessWeight = 0.20
	}
	if c.HedgingWeight == 0 {
		c.HedgingWeight = 0.20
	}
	if c.LatencyWeight == 0 {
		c.LatencyWeight = 0.10
	}
	if c.ModelBonusWeight == 0 {
		c.ModelBonusWeight = 0.10
	}
	if c.CompletenessMinChars == 0 {
		c.CompletenessMinChars = 50
	}
	if c.LatencyMaxMs == 0 {
		c.LatencyMaxMs = 5000
	}
	return c
}

// Gate is the Confidence Gate (CG): deterministic given the same inputs.
type Gate struct {
	cfg Config

	mu            sync.Mutex
	totalRequests int64
	escalations   int64
	apiCalls      int64
	history       []Evaluation
}

func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg.withDefaults()}
}

// Evaluate scores resp and decides escalation against threshold. kind
// selects the hedging-marker rubric and the default threshold used when
// threshold is 0; the completeness signal, the normalisation and the
// clamp to [0,1] are the same for every kind.
func (g *Gate) Evaluate(kind TaskKind, resp Response, threshold float64) Evaluation {
	factors := make(map[string]float64)
	score := g.cfg.BaseScore

	if len(resp.Logprobs) > 0 {
		mean := meanOf(resp.Logprobs)
		contribution := g.cfg.LogProbWeight * math.Exp(mean)
		score += contribution
		factors["logprob"] = contribution
	}

	if len(resp.Content) > g.cfg.CompletenessMinChars {
		factors["completeness"] = g.cfg.CompletenessWeight
		score += g.cfg.CompletenessWeight
	}

	if resp.ErrorKind == "" && !containsHedging(resp.Content, kind) {
		factors["negative_hedging"] = g.cfg.HedgingWeight
		score += g.cfg.HedgingWeight
	} else {
		factors["negative_hedging"] = -g.cfg.HedgingWeight
		score -= g.cfg.HedgingWeight
	}

	if resp.ExecutionTimeMs < g.cfg.LatencyMaxMs {
		factors["latency"] = g.cfg.LatencyWeight
		score += g.cfg.LatencyWeight
	}

	if isReasoningModel(resp.Model) && strings.Contains(resp.Content, "<think>") {
		factors["model_bonus"] = g.cfg.ModelBonusWeight
		score += g.cfg.ModelBonusWeight
	}

	score = clamp01(score)

	if threshold == 0 {
		threshold = defaultThreshold(kind)
	}

	eval := Evaluation{
		Score:          score,
		Threshold:      threshold,
		ShouldEscalate: score < threshold,
		Factors:        factors,
		EvaluatedAt:    time.Now(),
	}

	g.record(eval)

	if eval.ShouldEscalate {
		if reg := core.GetGlobalMetricsRegistry(); reg != nil {
			reg.Counter("aec.confidence.escalations", "kind", string(kind))
		}
	}

	return eval
}

func (g *Gate) record(eval Evaluation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.totalRequests++
	if eval.ShouldEscalate {
		g.escalations++
		g.history = append(g.history, eval)
		if len(g.history) > historyCap {
			g.history = g.history[len(g.history)-historyCap:]
		}
	}
}

// RecordAPICall increments the apiCalls counter; called by the AEC when an
// escalation actually reaches a fallback provider.
func (g *Gate) RecordAPICall() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.apiCalls++
}

// Counters is a snapshot of the gate's running totals.
type Counters struct {
	TotalRequests int64
	Escalations   int64
	APICalls      int64
	HistoryLen    int
}

func (g *Gate) Counters() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Counters{
		TotalRequests: g.totalRequests,
		Escalations:   g.escalations,
		APICalls:      g.apiCalls,
		HistoryLen:    len(g.history),
	}
}

// History returns a copy of the escalation FIFO, most recent last.
func (g *Gate) History() []Evaluation {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Evaluation, len(g.history))
	copy(out, g.history)
	return out
}

func defaultThreshold(kind TaskKind) float64 {
	if kind == KindCode {
		return 0.90
	}
	return 0.85
}

func containsHedging(content string, kind TaskKind) bool {
	lower := strings.ToLower(content)
	for _, marker := range hedgingMarkersFor(kind) {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isReasoningModel(model string) bool {
	lower := strings.ToLower(model)
	return strings.Contains(lower, "reason") || strings.Contains(lower, "o1") || strings.Contains(lower, "think")
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
