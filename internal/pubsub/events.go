// Package pubsub provides a generic publish/subscribe event system.
package pubsub

import (
	"time"
)

// EventType represents the type of event being published.
// For the domain event bus this is the channel name ("progress", "output", ...).
type EventType string

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}
