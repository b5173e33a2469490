package session

import (
	"context"
	"sync"

	"github.com/teslashibe/go-waiter/pkg/audioio"
)

// frameQueue is an unbounded FIFO of playback frames. Put never blocks;
// the backlog is bounded by draining at every turn boundary.
type frameQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames []audioio.Frame
	closed bool
}

func newFrameQueue() *frameQueue {
	q := &frameQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends f. It is a no-op after Close.
func (q *frameQueue) Put(f audioio.Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.frames = append(q.frames, f)
	q.cond.Signal()
}

// Get blocks until a frame is available, ctx is done or the queue is
// closed.
func (q *frameQueue) Get(ctx context.Context) (audioio.Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 {
		if q.closed {
			return audioio.Frame{}, errQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return audioio.Frame{}, err
		}
		q.cond.Wait()
	}
	f := q.frames[0]
	q.frames[0] = audioio.Frame{}
	q.frames = q.frames[1:]
	return f, nil
}

// Drain discards everything queued and returns how many frames were
// dropped. Draining an empty queue does nothing.
func (q *frameQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	if n > 0 {
		q.frames = nil
	}
	return n
}

// Len returns the number of queued frames.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Close wakes all waiters and drops queued frames.
func (q *frameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.frames = nil
	q.cond.Broadcast()
}
