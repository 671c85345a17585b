package presentation

import (
	"encoding/json"
	"time"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/history"
)

// EventDTO is an event as printed by the CLI, live or from history.
type EventDTO struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Terminal  bool      `json:"terminal,omitempty"`
	Payload   any       `json:"payload"`
}

// MarshalJSON writes Timestamp the way event payloads do.
func (d EventDTO) MarshalJSON() ([]byte, error) {
	type plain EventDTO
	return json.Marshal(struct {
		plain
		Timestamp string `json:"timestamp"`
	}{plain(d), events.FormatTime(d.Timestamp)})
}

// FromEnvelope converts a live envelope.
func FromEnvelope(env events.Envelope) EventDTO {
	return EventDTO{
		ID:        env.ID,
		Channel:   env.Channel,
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	}
}

// FromStoredEvents converts persisted events, oldest first.
func FromStoredEvents(stored []history.StoredEvent) []EventDTO {
	dtos := make([]EventDTO, 0, len(stored))
	for _, ev := range stored {
		dtos = append(dtos, EventDTO{
			ID:        ev.ID,
			Channel:   ev.Channel,
			Timestamp: ev.Timestamp,
			Terminal:  ev.Terminal,
			Payload:   json.RawMessage(ev.Payload),
		})
	}
	return dtos
}
