package confidence

import "time"

// Response is the subset of an agent's produced output the gate needs to
// score. Kept independent of the agent package's own AgentResponse type so
// confidence has no dependency on agent (agent depends on confidence, not
// the reverse).
type Response struct {
	Content         string
	Model           string
	ExecutionTimeMs int64
	TokensIn        int
	TokensOut       int
	Logprobs        []float64
	ErrorKind       string
}

// Evaluation is the scored outcome of Gate.Evaluate.
type Evaluation struct {
	Score          float64
	Threshold      float64
	ShouldEscalate bool
	Factors        map[string]float64
	EvaluatedAt    time.Time
}

// generalHedgingMarkers is the rubric spec.md §4.3 names directly; it
// applies to every TaskKind without a more specific rubric below.
var generalHedgingMarkers = []string{
	"i don't know",
	"i'm not sure",
	"might be",
	"possibly",
	"unclear",
}

// codingHedgingMarkers extends the general rubric with markers specific
// to unfinished or unverified code, per spec.md §4.3's "specialised task
// kinds (coding/...) alternative rubrics" clause.
var codingHedgingMarkers = append(append([]string{}, generalHedgingMarkers...),
	"todo",
	"fixme",
	"not implemented",
	"placeholder",
	"untested",
)

// hedgingMarkersFor selects the negative-hedging pattern list for kind.
// spec.md §4.3 names "coding/debug/review/general" as the rubric
// categories; this codebase's TaskKind (spec.md §3's Task.kind enum:
// chat/code/vision/reason/route/custom) has no debug or review kind, so
// those collapse into the general rubric alongside chat/vision/reason/
// route/custom, and only KindCode gets the coding-specific extension.
func hedgingMarkersFor(kind TaskKind) []string {
	if kind == KindCode {
		return codingHedgingMarkers
	}
	return generalHedgingMarkers
}
