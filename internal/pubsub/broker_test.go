package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return event
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for event")
	}
	return Event[T]{}
}

func TestBroker_Subscribe(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)
	broker.Publish(EventType("output"), "hello")

	event := receive(t, ch)
	require.Equal(t, "hello", event.Payload)
	require.Equal(t, EventType("output"), event.Type)
	require.False(t, event.Timestamp.IsZero())
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx := context.Background()
	subs := []<-chan Event[int]{broker.Subscribe(ctx), broker.Subscribe(ctx), broker.Subscribe(ctx)}
	require.Equal(t, 3, broker.SubscriberCount())

	broker.Publish(EventType("progress"), 42)

	for i, ch := range subs {
		event := receive(t, ch)
		require.Equal(t, 42, event.Payload, "subscriber %d", i)
	}
}

// TestBroker_SubscribeFiltered verifies a typed subscription only sees the
// event types it asked for.
func TestBroker_SubscribeFiltered(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	progress := broker.Subscribe(ctx, EventType("progress"))
	all := broker.Subscribe(ctx)

	broker.Publish(EventType("output"), "line")
	broker.Publish(EventType("progress"), "50%")

	require.Equal(t, "50%", receive(t, progress).Payload)
	require.Equal(t, "line", receive(t, all).Payload)
	require.Equal(t, "50%", receive(t, all).Payload)

	select {
	case ev := <-progress:
		require.Failf(t, "unexpected event", "%+v", ev)
	default:
	}
}

func TestBroker_ContextCancellation(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

// TestBroker_NonBlocking verifies a full subscriber never blocks Publish and
// the skipped deliveries are counted.
func TestBroker_NonBlocking(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())
	broker.Publish(EventType("output"), 1)

	done := make(chan struct{})
	go func() {
		broker.Publish(EventType("output"), 2)
		broker.Publish(EventType("output"), 3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "Publish blocked")
	}

	require.Equal(t, 1, (<-ch).Payload)
	require.Equal(t, uint64(2), broker.Dropped())
}

// TestBroker_OrderPerPublisher verifies events from one goroutine arrive in order
// while other goroutines publish concurrently.
func TestBroker_OrderPerPublisher(t *testing.T) {
	const perPublisher = 50
	broker := NewBrokerWithBuffer[[2]int](4 * perPublisher)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				broker.Publish(EventType("output"), [2]int{p, i})
			}
		}(p)
	}
	wg.Wait()

	next := map[int]int{}
	for i := 0; i < 4*perPublisher; i++ {
		ev := receive(t, ch)
		p, seq := ev.Payload[0], ev.Payload[1]
		require.Equal(t, next[p], seq, "publisher %d out of order", p)
		next[p]++
	}
}

func TestBroker_Close(t *testing.T) {
	broker := NewBroker[string]()
	ctx := context.Background()

	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)

	broker.Close()
	broker.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	require.False(t, ok1)
	require.False(t, ok2)
	require.Equal(t, 0, broker.SubscriberCount())

	ch3 := broker.Subscribe(ctx)
	_, ok3 := <-ch3
	require.False(t, ok3, "subscribe after close returns a closed channel")

	broker.Publish(EventType("output"), "test")
}
