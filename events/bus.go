package events

import (
	"sync"
	"time"
)

// Type enumerates the event names emitted by spec.md §6.
type Type string

const (
	EscalationTriggered Type = "escalation_triggered"
	EscalationCompleted Type = "escalation_completed"
	EscalationFailed    Type = "escalation_failed"
	AgentDegraded       Type = "agent_degraded"
	AgentCritical       Type = "agent_critical"
	AgentRecovered      Type = "agent_recovered"
	AgentRestarted      Type = "agent_restarted"
	AgentRestartFailed  Type = "agent_restart_failed"
	SystemAlert         Type = "system_alert"
)

// AlertKind distinguishes system_alert payload variants.
type AlertKind string

const (
	AlertHighErrorRate    AlertKind = "high_error_rate"
	AlertHighMemoryUsage  AlertKind = "high_memory_usage"
)

// Event is the tagged-union message delivered on the bus. Payload is a
// closed, per-Type shape (see payload.go) carried as interface{} because
// Go has no sum types; callers switch on Type before type-asserting.
type Event struct {
	Type      Type
	Timestamp time.Time
	Payload   interface{}
}

// Publisher is the narrow interface collaborators depend on so they don't
// need the concrete Bus type.
type Publisher interface {
	Publish(evt Event)
}

// Bus is a bounded broadcast channel: every subscriber registered at
// construction time receives every event, replacing the source's
// event-emitter pattern (spec.md §9, "event emitters -> typed channels").
// A full subscriber channel drops the event rather than blocking the
// publisher, logging the drop via the optional onDrop hook.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	onDrop      func(Event)
}

const subscriberBuffer = 256

// NewBus constructs an empty Bus. onDrop, if non-nil, is invoked
// synchronously from Publish when a subscriber's buffer is full.
func NewBus(onDrop func(Event)) *Bus {
	return &Bus{onDrop: onDrop}
}

// Subscribe registers a new receiver and returns its channel. Subscribers
// are expected to be registered at startup, per spec.md §9.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish delivers evt to every subscriber, stamping a monotonic
// timestamp if one is not already set.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			if b.onDrop != nil {
				b.onDrop(evt)
			}
		}
	}
}
