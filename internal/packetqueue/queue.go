// Package packetqueue implements the bounded per-stream FIFO of spec §4.3.
// Queue is not internally synchronized; the owning PacketProducer's mutex
// guards every queue of a pipeline as a group (spec §4.3, §4.4).
package packetqueue

import "github.com/marrowtide/reelcore/avengine"

// DefaultSize is the default queue bound (spec §3: "default 32").
const DefaultSize = 32

// Queue is a bounded FIFO of packets for one stream.
type Queue struct {
	items []*avengine.Packet
}

// New creates an empty queue. capHint is a capacity hint, not a hard bound; the
// bound is enforced cooperatively by the PacketProducer (spec §4.3).
func New(capHint int) *Queue {
	return &Queue{items: make([]*avengine.Packet, 0, capHint)}
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	return len(q.items)
}

// Enqueue appends a packet at the tail.
func (q *Queue) Enqueue(p *avengine.Packet) {
	q.items = append(q.items, p)
}

// Dequeue removes and returns the packet at the head, or nil if empty.
func (q *Queue) Dequeue() *avengine.Packet {
	if len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p
}

// PushBack returns a packet to the head of the queue, so a decoder's "try
// again later" response does not drop it (spec §4.3).
func (q *Queue) PushBack(p *avengine.Packet) {
	q.items = append(q.items, nil)
	copy(q.items[1:], q.items)
	q.items[0] = p
}

// Drain releases every queued packet and empties the queue, used on
// seek/stop (spec §4.3 "drain").
func (q *Queue) Drain() {
	for _, p := range q.items {
		avengine.ReleasePacket(p)
	}
	q.items = q.items[:0]
}
