// Package fifo provides the unbounded FIFO queue used at the pipeline's
// producer/consumer handoffs: utterances into the transcription worker,
// transcripts out of it, and speak requests into the playback loop.
//
// Push never blocks, which the realtime capture callback requires. Pop parks
// on a notify channel so consumers observe cancellation promptly without
// polling. Memory growth is bounded in practice by human speech rate.
package fifo

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO with a context-aware blocking Pop. The zero
// value is not usable; construct with [New].
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Push appends an item. Never blocks.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest item, blocking until one is available
// or ctx is cancelled.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryPop(); ok {
			return item, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryPop removes and returns the oldest item without blocking. The second
// return value is false when the queue is empty.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len returns the current queue depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
