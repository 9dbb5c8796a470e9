package audio

import (
	"sync"
)

// FrameQueue is a thread-safe unbounded FIFO buffer between the capture
// device callback and the session's control goroutine. Push never blocks;
// Pop blocks until a frame or the end-of-stream marker is available. Once the
// marker has been read every subsequent read reports end-of-stream, even if
// frames were pushed after Close.
type FrameQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames [][]byte
	closed bool // Close was called; marker is pending or delivered
	done   bool // marker was read; consumption is terminated
}

// NewFrameQueue creates an empty frame queue.
func NewFrameQueue() *FrameQueue {
	q := &FrameQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a frame to the queue. It is safe to call from the device
// callback goroutine and never blocks. Pushing after Close is a no-op.
func (q *FrameQueue) Push(frame []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.frames = append(q.frames, frame)
	q.cond.Signal()
}

// Pop blocks until a frame is available or the stream has ended. The second
// return value is false exactly when the end-of-stream marker was reached;
// after that every call returns immediately with ok=false.
func (q *FrameQueue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.done {
			return nil, false
		}
		if len(q.frames) > 0 {
			frame := q.frames[0]
			q.frames = q.frames[1:]
			return frame, true
		}
		if q.closed {
			// Marker reached: queue drained after Close.
			q.done = true
			return nil, false
		}
		q.cond.Wait()
	}
}

// TryPop returns a buffered frame without blocking. ok is false when the
// queue is currently empty or the stream has ended; eos reports whether the
// end-of-stream marker has been reached.
func (q *FrameQueue) TryPop() (frame []byte, ok bool, eos bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.done {
		return nil, false, true
	}
	if len(q.frames) > 0 {
		frame = q.frames[0]
		q.frames = q.frames[1:]
		return frame, true, false
	}
	if q.closed {
		q.done = true
		return nil, false, true
	}
	return nil, false, false
}

// Close injects the end-of-stream marker and wakes all blocked readers.
// Frames already buffered are still delivered before the marker; frames
// pushed afterward are discarded.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of buffered frames, for monitoring.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
