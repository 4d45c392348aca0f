// Package pipeline implements the PacketProducer and FrameDecoder background
// tasks of spec §4.4/§4.5, and the mutex/condition pair each owns. Per the
// spec's Design Notes, the PacketProducer's mutex-guarded state is exposed
// as a jointly owned value (producerShared) that both the producer and the
// FrameDecoder hold, rather than the decoder reaching into a PacketProducer
// object's private lock.
package pipeline

import (
	"sync"

	"github.com/marrowtide/reelcore/avengine"
	"github.com/marrowtide/reelcore/internal/framequeue"
	"github.com/marrowtide/reelcore/internal/packetqueue"
)

// producerShared is the PacketProducer's mutex-guarded state: its per-stream
// queues, bound, and start/interrupt flags. The FrameDecoder's drain loop
// acquires this same mutex around each getPacket/returnPacket call (spec
// §4.5's "Why the cross-task mutex discipline").
type producerShared struct {
	mu   sync.Mutex
	cond *sync.Cond

	queues    map[int]*packetqueue.Queue
	queueSize int

	fullyStarted bool
	running      bool
	interrupted  bool
}

func newProducerShared(streamIndices []int, queueSize int) *producerShared {
	s := &producerShared{
		queues:    make(map[int]*packetqueue.Queue, len(streamIndices)),
		queueSize: queueSize,
	}
	s.cond = sync.NewCond(&s.mu)
	for _, idx := range streamIndices {
		s.queues[idx] = packetqueue.New(queueSize)
	}
	return s
}

// minQueueLen returns the length of the smallest queue; callers must hold
// s.mu. The smallest queue governs production (spec §4.4 step 1).
func (s *producerShared) minQueueLen() int {
	min := -1
	for _, q := range s.queues {
		if min < 0 || q.Len() < min {
			min = q.Len()
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// waitFullyStarted blocks on the condition until the producer reports
// fully_started or has stopped running. Callers must hold s.mu.
func (s *producerShared) waitFullyStarted() {
	for !s.fullyStarted && s.running {
		s.cond.Wait()
	}
}

// getPacket implements spec §4.4's get_packet: if the queue is empty and the
// producer is still running, notify and wait; on wake, recheck. A nil
// result means either the EOS sentinel was dequeued or the queue stayed
// empty after a wake with the producer stopped — both are "no more data"
// per spec §3. Callers must hold s.mu.
func (s *producerShared) getPacket(streamIdx int) *avengine.Packet {
	q := s.queues[streamIdx]
	for q.Len() == 0 {
		if !s.running {
			return nil
		}
		s.cond.Broadcast()
		s.cond.Wait()
	}
	return q.Dequeue()
}

// returnPacket implements return_packet: push the packet back to the head
// of its stream's queue. Callers must hold s.mu.
func (s *producerShared) returnPacket(streamIdx int, p *avengine.Packet) {
	s.queues[streamIdx].PushBack(p)
}

// clear drains every queue (seek/stop). Callers must hold s.mu.
func (s *producerShared) clear() {
	for _, q := range s.queues {
		q.Drain()
	}
}

// decoderShared is the FrameDecoder's own mutex-guarded state: its
// per-stream decoded-frame queues, plus the same start/interrupt bookkeeping
// as producerShared. It is a distinct lock from producerShared because the
// decoder's drain loop and a consumer's GetFrame calls touch only this
// state, while the demux↔decode hand-off touches producerShared (spec
// §4.5's "Why the cross-task mutex discipline").
type decoderShared struct {
	mu   sync.Mutex
	cond *sync.Cond

	queues    map[int]*framequeue.Queue
	queueSize int

	fullyStarted bool
	running      bool
	interrupted  bool

	// streamEOF marks a stream whose decoder has been flushed and fully
	// drained; GetFrame reports io.EOF for it once its queue also empties.
	streamEOF map[int]bool
}

func newDecoderShared(streamIndices []int, queueSize int) *decoderShared {
	s := &decoderShared{
		queues:    make(map[int]*framequeue.Queue, len(streamIndices)),
		queueSize: queueSize,
		streamEOF: make(map[int]bool, len(streamIndices)),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, idx := range streamIndices {
		s.queues[idx] = framequeue.New(queueSize)
	}
	return s
}

// waitFullyStarted blocks until the decoder reports fully_started or has
// stopped running. Callers must hold s.mu.
func (s *decoderShared) waitFullyStarted() {
	for !s.fullyStarted && s.running {
		s.cond.Wait()
	}
}

// clear drains every frame queue. Callers must hold s.mu.
func (s *decoderShared) clear() {
	for _, q := range s.queues {
		q.Drain()
	}
}
