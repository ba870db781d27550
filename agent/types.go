package agent

import "time"

// Kind enumerates the recognised task kinds from spec.md §3.
type Kind string

const (
	KindChat   Kind = "chat"
	KindCode   Kind = "code"
	KindVision Kind = "vision"
	KindReason Kind = "reason"
	KindRoute  Kind = "route"
	KindCustom Kind = "custom"
)

// Status is an AgentDescriptor's dispatch-eligibility state. Distinct from
// health.Status: "ready"/"busy" are dispatch-level, "degraded"/"critical"/
// "failed" mirror the health classification HS drives.
type Status string

const (
	StatusReady    Status = "ready"
	StatusBusy     Status = "busy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
	StatusFailed   Status = "failed"
)

// Task is created per request and immutable after submission.
type Task struct {
	ID          string
	Kind        Kind
	Payload     string
	Fields      map[string]interface{}
	Context     map[string]interface{}
	RequesterID string
	Deadline    time.Duration
}

// Descriptor is the static+mutable shape of a registered agent. Status is
// synced from the Health Supervisor's live classification at the top of
// every Execute call (see syncStatus in controller.go); callers should
// not mutate it directly after Register.
type Descriptor struct {
	ID                  string
	DisplayName         string
	Kind                Kind
	Capabilities        map[string]bool
	PrimaryModel        string
	FallbackModel       string
	ConfidenceThreshold float64
	Status              Status
	LastHeartbeat       time.Time
}

// Response is produced by one dispatch and is immutable once returned,
// except for the escalation/annotation fields AEC sets after CG/BG run.
type Response struct {
	Content         string
	Model           string
	ExecutionTimeMs int64
	TokensIn        int
	TokensOut       int
	Logprobs        []float64
	ErrorKind       string

	RoutedTo            string
	Escalated           bool
	OriginalConfidence  float64
	EscalationAttempted bool
	EscalationFailed    bool
	EscalationReason    string
}

// EnrichedContext is what AEC builds from SM before invoking a handler.
type EnrichedContext struct {
	Task               Task
	ContextualMemories []ContextualMemory
}

// ContextualMemory is the handler-facing projection of a semantic.Scored
// result; agent does not import semantic's full MemoryRecord shape to
// keep the handler contract minimal.
type ContextualMemory struct {
	Content    string
	Similarity float64
}
