package spool

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO of paths that ignores duplicates still waiting.
type queue struct {
	mu     sync.Mutex
	items  []string
	queued map[string]bool
	ready  chan struct{}
}

func newQueue() *queue {
	return &queue{queued: make(map[string]bool), ready: make(chan struct{}, 1)}
}

func (q *queue) push(path string) {
	q.mu.Lock()
	if !q.queued[path] {
		q.queued[path] = true
		q.items = append(q.items, path)
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop blocks until a path is available or ctx is done.
func (q *queue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			path := q.items[0]
			q.items = q.items[1:]
			delete(q.queued, path)
			q.mu.Unlock()
			return path, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-q.ready:
		}
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
