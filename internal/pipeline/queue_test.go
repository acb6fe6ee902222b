package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Task{RecordID: "a"})
	q.Enqueue(Task{RecordID: "b"})
	q.Enqueue(Task{RecordID: "c"})
	if got := q.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	for _, want := range []string{"a", "b", "c"} {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if task.RecordID != want {
			t.Fatalf("Dequeue order: got %q, want %q", task.RecordID, want)
		}
		if task.EnqueuedAt.IsZero() {
			t.Fatalf("EnqueuedAt not stamped for %q", task.RecordID)
		}
	}
	if got := q.Len(); got != 0 {
		t.Fatalf("Len() after drain = %d, want 0", got)
	}
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue()
	done := make(chan Task, 1)
	go func() {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			return
		}
		done <- task
	}()

	select {
	case task := <-done:
		t.Fatalf("Dequeue returned %q from an empty queue", task.RecordID)
	case <-time.After(20 * time.Millisecond):
	}

	q.Enqueue(Task{RecordID: "late"})
	select {
	case task := <-done:
		if task.RecordID != "late" {
			t.Fatalf("Dequeue = %q, want %q", task.RecordID, "late")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake after Enqueue")
	}
}

func TestQueueDequeueCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errc <- err
	}()
	cancel()
	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Fatalf("Dequeue error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after cancel")
	}
}

// A burst enqueued while several consumers wait must be fully handed out:
// each pop re-arms the wakeup for the remaining items.
func TestQueueBurstWakesAllWaiters(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const consumers = 4
	const tasks = 32

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	wg.Add(consumers)
	for i := 0; i < consumers; i++ {
		go func() {
			defer wg.Done()
			for {
				task, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[task.RecordID] = true
				if len(seen) == tasks {
					cancel()
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < tasks; i++ {
		q.Enqueue(Task{RecordID: fmt.Sprintf("task-%d", i)})
	}

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("consumers did not drain the queue")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != tasks {
		t.Fatalf("drained %d tasks, want %d", len(seen), tasks)
	}
}
