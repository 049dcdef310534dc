// Package batch accumulates admitted events per match and releases them in
// bounded FIFO batches on a fixed cadence. Each match gets its own drain
// worker, started lazily on first enqueue and torn down once its queue
// empties, so completed matches never leave timers behind.
package batch

import (
	"log"
	"sync"
	"time"

	"github.com/slipstreamco/slipcast/internal/events"
)

const (
	DefaultBatchSize = 3
	DefaultInterval  = 1500 * time.Millisecond
)

// FlushFunc receives one released batch. It is called from the match's drain
// worker, outside the batcher lock; batches are never empty and hold at most
// the configured batch size.
type FlushFunc func(handle string, batch []events.Event)

type queue struct {
	pending []events.Event
	stop    chan struct{}
}

type Batcher struct {
	mu       sync.Mutex
	queues   map[string]*queue
	size     int
	interval time.Duration
	flush    FlushFunc
	wg       sync.WaitGroup
}

func New(size int, interval time.Duration, flush FlushFunc) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Batcher{
		queues:   make(map[string]*queue),
		size:     size,
		interval: interval,
		flush:    flush,
	}
}

// Enqueue appends an event to the match's pending queue, starting the drain
// worker if the match has none.
func (b *Batcher) Enqueue(handle string, ev events.Event) {
	b.mu.Lock()
	q, ok := b.queues[handle]
	if !ok {
		q = &queue{stop: make(chan struct{})}
		b.queues[handle] = q
		b.wg.Add(1)
		go b.drain(handle, q)
	}
	q.pending = append(q.pending, ev)
	b.mu.Unlock()
}

// drain releases up to size events every interval until the queue empties or
// the match is stopped. The queue entry is removed under the same lock that
// observes it empty, so no event can land in a dead queue.
func (b *Batcher) drain(handle string, q *queue) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			n := len(q.pending)
			if n > b.size {
				n = b.size
			}
			released := q.pending[:n:n]
			q.pending = q.pending[n:]
			b.mu.Unlock()

			if len(released) > 0 {
				b.flush(handle, released)
			}

			b.mu.Lock()
			if cur, ok := b.queues[handle]; !ok || cur != q {
				// Stopped while flushing; a replacement queue may already own
				// the handle.
				b.mu.Unlock()
				return
			}
			if len(q.pending) == 0 {
				delete(b.queues, handle)
				b.mu.Unlock()
				return
			}
			b.mu.Unlock()
		case <-q.stop:
			return
		}
	}
}

// Pending reports how many events are queued for a match.
func (b *Batcher) Pending(handle string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[handle]; ok {
		return len(q.pending)
	}
	return 0
}

// Stop tears down one match's queue, discarding pending events without
// releasing a partial batch.
func (b *Batcher) Stop(handle string) {
	b.mu.Lock()
	q, ok := b.queues[handle]
	if ok {
		delete(b.queues, handle)
	}
	b.mu.Unlock()
	if ok {
		close(q.stop)
		if n := len(q.pending); n > 0 {
			log.Printf("[batch] %s: discarded %d pending events on stop", handle, n)
		}
	}
}

// StopAll tears down every queue and waits for in-flight drain workers.
func (b *Batcher) StopAll() {
	b.mu.Lock()
	for handle, q := range b.queues {
		delete(b.queues, handle)
		close(q.stop)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
