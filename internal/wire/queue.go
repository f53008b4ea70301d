package wire

import "sync"

// stateQueue is a bounded FIFO of state messages. When full, the oldest
// entry is discarded: every state is a complete snapshot, so a newer one
// supersedes it.
type stateQueue struct {
	mu      sync.Mutex
	items   []StateData
	limit   int
	ready   chan struct{}
	onDrop  func()
	dropped int
}

func newStateQueue(capacity int, onDrop func()) *stateQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &stateQueue{
		items:  make([]StateData, 0, capacity),
		limit:  capacity,
		ready:  make(chan struct{}, 1),
		onDrop: onDrop,
	}
}

// push never blocks.
func (q *stateQueue) push(s StateData) {
	q.mu.Lock()
	if len(q.items) == q.limit {
		q.items = append(q.items[:0], q.items[1:]...)
		q.dropped++
		if q.onDrop != nil {
			q.onDrop()
		}
	}
	q.items = append(q.items, s)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain removes and returns everything queued.
func (q *stateQueue) drain() []StateData {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := make([]StateData, len(q.items))
	copy(out, q.items)
	q.items = q.items[:0]
	return out
}

func (q *stateQueue) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
