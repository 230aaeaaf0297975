// Package framequeue hands decoded frames from the media receive path to the
// detection worker.
//
// The queue is a fixed-size ring. Push never blocks: when the ring is full the
// oldest unconsumed frame is overwritten and counted as dropped, so a slow
// detector only ever sees recent frames. Pop blocks until a frame arrives, the
// caller's context ends, or the queue is closed.
package framequeue

import (
	"context"
	"errors"
	"sync"

	"balltrack/internal/frame"
)

// ErrClosed is returned by Pop once Close has been called.
var ErrClosed = errors.New("framequeue: closed")

// Stats is a snapshot of queue counters.
type Stats struct {
	Capacity  int    `json:"capacity"`
	Depth     int    `json:"depth"`
	HighWater int    `json:"high_water"`
	Pushed    uint64 `json:"pushed"`
	Popped    uint64 `json:"popped"`
	Dropped   uint64 `json:"dropped"`
	Closed    bool   `json:"closed"`
}

// Queue is a bounded drop-oldest FIFO of frames.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []frame.Frame
	head   int // index of the oldest frame
	count  int
	closed bool

	highWater int
	pushed    uint64
	popped    uint64
	dropped   uint64
}

// New creates a queue holding at most capacity frames.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{buf: make([]frame.Frame, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues f without blocking. It reports false when an older frame had
// to be dropped to make room, or when the queue is closed.
func (q *Queue) Push(f frame.Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pushed++
	kept := true
	if q.count == len(q.buf) {
		// full: the oldest slot becomes the newest
		q.buf[q.head] = frame.Frame{}
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.dropped++
		kept = false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = f
	q.count++
	if q.count > q.highWater {
		q.highWater = q.count
	}
	q.cond.Signal()
	return kept
}

// Pop removes and returns the oldest frame, blocking while the queue is empty.
func (q *Queue) Pop(ctx context.Context) (frame.Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if q.closed {
		return frame.Frame{}, ErrClosed
	}
	if q.count == 0 {
		return frame.Frame{}, ctx.Err()
	}

	f := q.buf[q.head]
	q.buf[q.head] = frame.Frame{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.popped++
	return f, nil
}

// Close wakes every blocked Pop and rejects further frames. It is safe to call
// more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for i := range q.buf {
		q.buf[i] = frame.Frame{}
	}
	q.count = 0
	q.cond.Broadcast()
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Capacity:  len(q.buf),
		Depth:     q.count,
		HighWater: q.highWater,
		Pushed:    q.pushed,
		Popped:    q.popped,
		Dropped:   q.dropped,
		Closed:    q.closed,
	}
}
