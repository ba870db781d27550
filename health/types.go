package health

import "time"

// Status is an agent's health classification.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
	StatusFailed   Status = "failed"
)

const errorHistoryCap = 10

// ErrorEntry is one record in an agent's bounded error history.
type ErrorEntry struct {
	Kind string
	At   time.Time
}

// AgentMetrics is the per-agent execution statistics HS maintains.
type AgentMetrics struct {
	AgentID             string
	Total               int64
	Successful          int64
	Failed              int64
	ConsecutiveFailures int
	AvgExecutionTimeMs  float64
	LastExecution       time.Time
	ErrorHistory        []ErrorEntry
	Escalations         int64
	EscalationFailures  int64
	Status              Status
}

// SystemSnapshot is the aggregate rollup returned by Supervisor.Report.
type SystemSnapshot struct {
	TotalRequests   int64
	TotalErrors     int64
	Uptime          time.Duration
	MemoryUsedBytes uint64
	AgentCount      int
	Agents          map[string]AgentMetrics
}
