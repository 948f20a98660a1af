package resilience

import "time"

// EventType identifies a controller event.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventCallRejected EventType = "call_rejected"
	EventRetry        EventType = "retry"
)

// Event is published on the controller's bus.
type Event interface {
	Type() EventType
	Resource() string
	Timestamp() time.Time
}

// BaseEvent carries the shared event fields.
type BaseEvent struct {
	eventType EventType
	resource  string
	timestamp time.Time
}

func NewBaseEvent(eventType EventType, resource string) BaseEvent {
	return BaseEvent{eventType: eventType, resource: resource, timestamp: time.Now()}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Resource() string     { return e.resource }
func (e *BaseEvent) Timestamp() time.Time { return e.timestamp }

// StateChangedEvent records a breaker transition.
type StateChangedEvent struct {
	BaseEvent
	From State
	To   State
}

// CallRejectedEvent records a call refused while the breaker is open.
type CallRejectedEvent struct {
	BaseEvent
	RetryAfter time.Duration
}

// RetryEvent records one backoff-and-retry cycle.
type RetryEvent struct {
	BaseEvent
	Attempt int
	Delay   time.Duration
	Err     error
}

// EventListener receives controller events.
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc adapts a function to EventListener.
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) { f(event) }

// EventBus fans controller events out to subscribers.
type EventBus interface {
	Subscribe(listener EventListener)
	Publish(event Event)
	Close()
}
