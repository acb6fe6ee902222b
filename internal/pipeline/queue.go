package pipeline

import (
	"context"
	"sync"
	"time"
)

// Task points a worker at one record by id. Workers always re-read the
// record from the store, so a stale task is harmless.
type Task struct {
	RecordID   string
	EnqueuedAt time.Time
}

// Queue is an unbounded FIFO task queue. Enqueue never blocks; Dequeue
// blocks until a task or context cancellation.
type Queue struct {
	mu     sync.Mutex
	items  []Task
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) Enqueue(t Task) {
	if q == nil {
		return
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) Dequeue(ctx context.Context) (Task, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t := q.items[0]
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			} else {
				// Wake another waiter for the remaining work.
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return t, nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
