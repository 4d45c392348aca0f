// Package framequeue implements the bounded per-stream decoded-frame FIFO
// that sits between the FrameDecoder's drain loop and a consumer's GetFrame
// calls (spec §4.5). It mirrors internal/packetqueue's synchronization
// contract: not internally synchronized, guarded as a group by the owning
// FrameDecoder's mutex.
package framequeue

import "github.com/marrowtide/reelcore/avengine"

// Queue is a bounded FIFO of decoded frames for one stream.
type Queue struct {
	items []*avengine.Frame
}

// New creates an empty queue. capHint is a capacity hint, not a hard bound.
func New(capHint int) *Queue {
	return &Queue{items: make([]*avengine.Frame, 0, capHint)}
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	return len(q.items)
}

// Enqueue appends a frame at the tail.
func (q *Queue) Enqueue(f *avengine.Frame) {
	q.items = append(q.items, f)
}

// Dequeue removes and returns the frame at the head, or nil if empty.
func (q *Queue) Dequeue() *avengine.Frame {
	if len(q.items) == 0 {
		return nil
	}
	f := q.items[0]
	q.items = q.items[1:]
	return f
}

// Drain releases every queued frame and empties the queue.
func (q *Queue) Drain() {
	for _, f := range q.items {
		avengine.ReleaseFrame(f)
	}
	q.items = q.items[:0]
}
