package stream

import (
	"sync"
)

// sendQueue is a bounded FIFO ring for outbound payloads produced while no
// session is open. When full, the oldest entry is evicted before appending,
// so memory stays bounded and the most recent messages win.
type sendQueue struct {
	mu       sync.Mutex
	buf      [][]byte
	head     int // read position
	count    int
	capacity int

	dropped int64
}

func newSendQueue(capacity int) *sendQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &sendQueue{
		buf:      make([][]byte, capacity),
		capacity: capacity,
	}
}

// Push appends at the tail, evicting the head first if the queue is full.
// Returns true if an entry was evicted.
func (q *sendQueue) Push(data []byte) (evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == q.capacity {
		q.buf[q.head] = nil
		q.head = (q.head + 1) % q.capacity
		q.count--
		q.dropped++
		evicted = true
	}

	q.buf[(q.head+q.count)%q.capacity] = data
	q.count++
	return evicted
}

// Peek returns the oldest entry without removing it. Flush sends the peeked
// entry first and pops only on success, so a mid-flush failure leaves the
// remainder queued in order.
func (q *sendQueue) Peek() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil, false
	}
	return q.buf[q.head], true
}

// Pop removes and returns the oldest entry.
func (q *sendQueue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil, false
	}

	data := q.buf[q.head]
	q.buf[q.head] = nil // clear reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	return data, true
}

// Len returns the current number of queued entries.
func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns the total number of evicted entries.
func (q *sendQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
