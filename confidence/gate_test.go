package confidence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateHighConfidenceNoEscalate(t *testing.T) {
	g := NewGate(Config{})
	resp := Response{
		Content:         strRepeat("a", 120),
		Model:           "gpt-general",
		ExecutionTimeMs: 1000,
	}
	eval := g.Evaluate(KindChat, resp, 0.85)
	require.False(t, eval.ShouldEscalate)
	require.InDelta(t, 1.0, eval.Score, 1e-9)
}

func TestEvaluateHedgingEscalates(t *testing.T) {
	g := NewGate(Config{})
	resp := Response{
		Content:         "I'm not sure",
		Model:           "gpt-general",
		ExecutionTimeMs: 1200,
	}
	eval := g.Evaluate(KindChat, resp, 0.85)
	require.True(t, eval.ShouldEscalate)
	require.InDelta(t, 0.40, eval.Score, 1e-9)
}

func TestEscalationMonotonicity(t *testing.T) {
	g := NewGate(Config{})
	high := g.Evaluate(KindChat, Response{Content: strRepeat("a", 120), ExecutionTimeMs: 100}, 0.85)
	low := g.Evaluate(KindChat, Response{Content: "possibly", ExecutionTimeMs: 100}, 0.85)

	require.GreaterOrEqual(t, high.Score, low.Score)
	if high.ShouldEscalate {
		require.True(t, low.ShouldEscalate)
	}
}

func TestCountersTrackEscalations(t *testing.T) {
	g := NewGate(Config{})
	g.Evaluate(KindChat, Response{Content: "unclear", ExecutionTimeMs: 100}, 0.85)
	g.Evaluate(KindChat, Response{Content: strRepeat("a", 120), ExecutionTimeMs: 100}, 0.85)

	c := g.Counters()
	require.Equal(t, int64(2), c.TotalRequests)
	require.Equal(t, int64(1), c.Escalations)
	require.Len(t, g.History(), 1)
}

func TestCodeRubricFlagsUnfinishedMarkers(t *testing.T) {
	g := NewGate(Config{})
	content := strRepeat("a", 120) + " // TODO: handle edge case"

	chatEval := g.Evaluate(KindChat, Response{Content: content, ExecutionTimeMs: 100}, 0.85)
	codeEval := g.Evaluate(KindCode, Response{Content: content, ExecutionTimeMs: 100}, 0.90)

	require.False(t, chatEval.ShouldEscalate, "general rubric has no opinion on TODO markers")
	require.True(t, codeEval.ShouldEscalate, "coding rubric treats TODO as unfinished-work hedging")
}

func strRepeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
