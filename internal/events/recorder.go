package events

import (
	"sync"
	"time"
)

// Record is one captured Emit call.
type Record struct {
	Channel string
	Payload any
}

// Recorder is an Emitter that keeps every event in memory. Used in tests.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	notify  chan struct{}
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Emit implements Emitter.
func (r *Recorder) Emit(channel string, payload any) {
	r.mu.Lock()
	r.records = append(r.records, Record{Channel: channel, Payload: payload})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Records returns a copy of everything emitted so far, in emit order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// OnChannel returns the payloads emitted on channel, in order.
func (r *Recorder) OnChannel(channel string) []any {
	var out []any
	for _, rec := range r.Records() {
		if rec.Channel == channel {
			out = append(out, rec.Payload)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// WaitFor blocks until at least n events were recorded or timeout elapses.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if r.Len() >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline:
			return r.Len() >= n
		}
	}
}
