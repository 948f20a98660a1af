package ratelimit

import "time"

// EventType identifies a limiter event.
type EventType string

const (
	EventAllowed     EventType = "allowed"
	EventRejected    EventType = "rejected"
	EventBanned      EventType = "banned"
	EventWhitelisted EventType = "whitelisted"
)

// Event is published on the limiter's bus for every admission decision.
type Event interface {
	Type() EventType
	Key() string
	Timestamp() time.Time
}

// BaseEvent carries the fields shared by all limiter events.
type BaseEvent struct {
	eventType EventType
	key       string
	timestamp time.Time
}

func NewBaseEvent(eventType EventType, key string) BaseEvent {
	return BaseEvent{eventType: eventType, key: key, timestamp: time.Now()}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Key() string          { return e.key }
func (e *BaseEvent) Timestamp() time.Time { return e.timestamp }

// AllowedEvent is published when a request is admitted.
type AllowedEvent struct {
	BaseEvent
	Tier      Tier
	Remaining int
}

// RejectedEvent is published when a request is denied.
type RejectedEvent struct {
	BaseEvent
	Tier       Tier
	Reason     string
	RetryAfter time.Duration
}

// BannedEvent is published when a key receives a temporary ban.
type BannedEvent struct {
	BaseEvent
	Until time.Time
}

// EventListener receives limiter events.
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc adapts a function to the EventListener interface.
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) { f(event) }

// EventBus fans limiter events out to subscribers.
type EventBus interface {
	Subscribe(listener EventListener)
	Publish(event Event)
	Close()
}
