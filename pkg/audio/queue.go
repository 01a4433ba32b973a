package audio

import "sync"

// FrameQueue is the FIFO hand-off between the agent-receive goroutine and the
// playback device callback. Push is called from the agent side (never from a
// real-time callback); TryPop is called from the playback callback and returns
// immediately: either the oldest enqueued frame or nothing.
//
// The queue is unbounded in principle but expected near-empty in steady state,
// since the agent produces audio at roughly the rate the device consumes it.
// The mutex guards only pointer-sized slice bookkeeping, so the critical
// section on the real-time side is short and bounded.
type FrameQueue struct {
	mu     sync.Mutex
	frames []AudioFrame
	head   int
}

// NewFrameQueue returns an empty queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{}
}

// Push appends a frame to the tail of the queue. The queue takes ownership of
// the frame's data; the caller must not modify it afterwards. Frames with no
// data are ignored. Push never blocks.
func (q *FrameQueue) Push(f AudioFrame) {
	if len(f.Data) == 0 {
		return
	}
	q.mu.Lock()
	q.frames = append(q.frames, f)
	q.mu.Unlock()
}

// TryPop removes and returns the oldest frame, or (AudioFrame{}, false) when
// the queue is empty. An empty queue is the expected underrun condition, not
// an error. TryPop never blocks.
func (q *FrameQueue) TryPop() (AudioFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.frames) {
		return AudioFrame{}, false
	}
	f := q.frames[q.head]
	q.frames[q.head] = AudioFrame{}
	q.head++

	// Reclaim the backing array once everything has been consumed.
	if q.head == len(q.frames) {
		q.frames = q.frames[:0]
		q.head = 0
	}
	return f, true
}

// Drain discards all pending frames and returns how many were dropped. Used
// while paused so stale agent audio never plays after a resume.
func (q *FrameQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.frames) - q.head
	q.frames = q.frames[:0]
	q.head = 0
	return n
}

// Len returns the number of pending frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames) - q.head
}
