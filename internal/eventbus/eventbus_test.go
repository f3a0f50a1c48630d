package eventbus

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	bus := New(2, 0, time.Millisecond)
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 2)

	bus.Subscribe("order.confirmed", func(ctx context.Context, evt Event) error {
		mu.Lock()
		got = append(got, "first")
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	bus.Subscribe("order.confirmed", func(ctx context.Context, evt Event) error {
		mu.Lock()
		got = append(got, "second")
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	bus.Publish(Event{Name: "order.confirmed", TenantID: uuid.New()})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for handler delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("got = %v, want both subscribers to have fired", got)
	}
}

func TestPublish_OnlyDeliversToMatchingEventName(t *testing.T) {
	bus := New(1, 0, time.Millisecond)
	defer bus.Close()

	var calls int32
	bus.Subscribe("payment.completed", func(ctx context.Context, evt Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	bus.Publish(Event{Name: "order.confirmed", TenantID: uuid.New()})
	time.Sleep(50 * time.Millisecond)

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("calls = %d, want 0: handler must not fire for an unrelated event name", n)
	}
}

func TestDeliver_RetriesOnErrorUpToMaxRetries(t *testing.T) {
	bus := New(1, 2, time.Millisecond)
	defer bus.Close()

	var attempts int32
	finished := make(chan struct{})
	bus.Subscribe("fiscal.generated", func(ctx context.Context, evt Event) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errors.New("transient failure")
		}
		close(finished)
		return nil
	})

	bus.Publish(Event{Name: "fiscal.generated", TenantID: uuid.New()})

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("handler never succeeded within retry budget")
	}

	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestDeliver_GivesUpAfterExhaustingRetries(t *testing.T) {
	bus := New(1, 1, time.Millisecond)

	var attempts int32
	bus.Subscribe("payment.completed", func(ctx context.Context, evt Event) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("permanent failure")
	})

	bus.Publish(Event{Name: "payment.completed", TenantID: uuid.New()})
	bus.Close() // waits for the queue to drain, including all retries

	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("attempts = %d, want 2 (initial attempt + 1 retry)", n)
	}
}

func TestPublish_StampsPublishedTimestamp(t *testing.T) {
	bus := New(1, 0, time.Millisecond)
	defer bus.Close()

	received := make(chan Event, 1)
	bus.Subscribe("order.confirmed", func(ctx context.Context, evt Event) error {
		received <- evt
		return nil
	})

	before := time.Now().UTC()
	bus.Publish(Event{Name: "order.confirmed", TenantID: uuid.New()})

	select {
	case evt := <-received:
		if evt.Published.Before(before) {
			t.Errorf("evt.Published = %v, should not be before %v", evt.Published, before)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}
