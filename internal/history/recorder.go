package history

import (
	"context"

	"github.com/zjrosen/modeldeck/internal/events"
	"github.com/zjrosen/modeldeck/internal/log"
	"github.com/zjrosen/modeldeck/internal/pubsub"
)

// Source is anything envelopes can be subscribed from (events.Bus).
type Source interface {
	Subscribe(ctx context.Context, channels ...string) <-chan pubsub.Event[events.Envelope]
}

// Recorder persists every envelope from a Source.
type Recorder struct {
	store *Store
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Start subscribes to src and records in the background until ctx is cancelled.
// The returned channel is closed once the recorder has stopped.
func (r *Recorder) Start(ctx context.Context, src Source) <-chan struct{} {
	sub := src.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub {
			// Events already received are written even after ctx is cancelled.
			if err := r.store.Record(context.WithoutCancel(ctx), ev.Payload); err != nil {
				log.ErrorErr(log.CatDB, "Failed to record event", err, "channel", ev.Payload.Channel)
			}
		}
		log.Debug(log.CatDB, "History recorder stopped")
	}()
	return done
}
