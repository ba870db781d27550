package events

// EscalationPayload carries the full confidence evaluation behind an
// escalation_triggered/completed/failed event. Factors uses map[string]
// float64 rather than importing confidence.Evaluation, keeping events
// dependency-free so every component can depend on it without cycles.
type EscalationPayload struct {
	AgentID           string
	TaskID            string
	Score             float64
	Threshold         float64
	Factors           map[string]float64
	Reason            string
}

// AgentStatePayload carries a health-state transition.
type AgentStatePayload struct {
	AgentID             string
	ConsecutiveFailures int
	Reason              string
}

// RestartPayload carries the outcome of a heal attempt.
type RestartPayload struct {
	AgentID string
	Success bool
	Error   string
}

// SystemAlertPayload carries a system-level alert.
type SystemAlertPayload struct {
	Kind  AlertKind
	Value float64
	Limit float64
}
