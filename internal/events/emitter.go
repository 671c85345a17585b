// Package events defines the named channels and payloads published to UI
// subscribers, and the Emitter used to publish them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/pubsub"
)

// Channel names.
const (
	ChannelProgress      = "progress"
	ChannelOutput        = "output"
	ChannelChatMessage   = "chat-message"
	ChannelChatError     = "chat-error"
	ChannelModelsChanged = "models-changed"
)

// Channels lists every channel in a stable order.
var Channels = []string{
	ChannelProgress,
	ChannelOutput,
	ChannelChatMessage,
	ChannelChatError,
	ChannelModelsChanged,
}

// Emitter publishes a payload on a named channel. Implementations must not
// block and must not report delivery failures to the caller.
type Emitter interface {
	Emit(channel string, payload any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(channel string, payload any)

// Emit calls f.
func (f EmitterFunc) Emit(channel string, payload any) { f(channel, payload) }

// Envelope is the unit carried by the Bus.
type Envelope struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// MarshalJSON writes Timestamp with the same layout as payload timestamps.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	return json.Marshal(struct {
		plain
		Timestamp string `json:"timestamp"`
	}{plain(e), FormatTime(e.Timestamp)})
}

// PayloadJSON returns the payload encoded as JSON.
func (e Envelope) PayloadJSON() ([]byte, error) {
	return json.Marshal(e.Payload)
}

// Bus is the process-wide Emitter. It fans envelopes out to subscribers and
// drops them for subscribers that are not keeping up.
type Bus struct {
	broker *pubsub.Broker[Envelope]
}

// NewBus creates a Bus whose subscribers buffer up to bufferSize envelopes.
func NewBus(bufferSize int) *Bus {
	return &Bus{broker: pubsub.NewBrokerWithBuffer[Envelope](bufferSize)}
}

// Emit implements Emitter.
func (b *Bus) Emit(channel string, payload any) {
	env := Envelope{
		ID:        uuid.NewString(),
		Channel:   channel,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if b.broker.SubscriberCount() == 0 {
		log.Debug(log.CatEvents, "no subscribers, dropping event", "channel", channel)
		return
	}
	b.broker.Publish(pubsub.EventType(channel), env)
}

// Subscribe returns envelopes for the given channels, or for every channel if
// none are given. The subscription ends when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channels ...string) <-chan pubsub.Event[Envelope] {
	types := make([]pubsub.EventType, 0, len(channels))
	for _, c := range channels {
		types = append(types, pubsub.EventType(c))
	}
	return b.broker.Subscribe(ctx, types...)
}

// Broker exposes the underlying broker for Bubble Tea listeners.
func (b *Bus) Broker() *pubsub.Broker[Envelope] {
	return b.broker
}

// Dropped returns the number of deliveries skipped for slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.broker.Dropped()
}

// Close closes every subscription.
func (b *Bus) Close() {
	b.broker.Close()
}
