// Package eventbus implements transactional publish-after-commit fan-out:
// handlers registered for an event name run on worker goroutines, each in
// its own transaction, tolerating at-least-once redelivery.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tolvera-hq/saborpos/internal/platform/logging"
)

// Event is the envelope for every domain event published on the bus.
type Event struct {
	Name      string
	TenantID  uuid.UUID
	Payload   interface{}
	Published time.Time
}

// Handler processes one event delivery. Returning an error triggers the
// bus's retry policy; handlers must be safe to re-run.
type Handler func(ctx context.Context, evt Event) error

// Bus fans events out to the handlers registered for their name. It is an
// in-process analogue of a transactional outbox: Publish is only ever
// called by a repository after its own transaction has committed.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[string][]Handler
	log         *logging.Logger
	maxRetries  int
	retryDelay  time.Duration
	workerCount int
	queue       chan dispatch
	wg          sync.WaitGroup
}

type dispatch struct {
	handler Handler
	evt     Event
}

// New creates a Bus with workerCount background dispatch goroutines.
func New(workerCount, maxRetries int, retryDelay time.Duration) *Bus {
	if workerCount < 1 {
		workerCount = 1
	}
	b := &Bus{
		handlers:    make(map[string][]Handler),
		log:         logging.GetDefault().Component("eventbus"),
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		workerCount: workerCount,
		queue:       make(chan dispatch, 256),
	}
	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Subscribe registers h to run whenever an event named name is published.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish enqueues evt for every subscriber of evt.Name. Must only be
// called after the publishing transaction has committed (§4.9).
func (b *Bus) Publish(evt Event) {
	evt.Published = time.Now().UTC()
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[evt.Name]...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.queue <- dispatch{handler: h, evt: evt}
	}
}

// Close stops accepting new work and waits for in-flight deliveries to drain.
func (b *Bus) Close() {
	close(b.queue)
	b.wg.Wait()
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for d := range b.queue {
		b.deliver(d)
	}
}

func (b *Bus) deliver(d dispatch) {
	ctx := context.Background()
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if err := d.handler(ctx, d.evt); err != nil {
			lastErr = err
			b.log.Warn("event handler failed, retrying", "event", d.evt.Name, "attempt", attempt+1, "error", err)
			time.Sleep(b.retryDelay * time.Duration(1<<uint(attempt)))
			continue
		}
		return
	}
	b.log.Error("event handler exhausted retries", "event", d.evt.Name, "error", lastErr)
}
