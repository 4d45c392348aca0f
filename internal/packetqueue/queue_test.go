package packetqueue

import (
	"context"
	"testing"

	"github.com/marrowtide/reelcore/avengine"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	t.Parallel()

	q := New(4)
	a := &avengine.Packet{StreamIndex: 0}
	b := &avengine.Packet{StreamIndex: 0}
	q.Enqueue(a)
	q.Enqueue(b)

	if got := q.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
	if got := q.Dequeue(); got != a {
		t.Fatalf("Dequeue = %v, want %v", got, a)
	}
	if got := q.Dequeue(); got != b {
		t.Fatalf("Dequeue = %v, want %v", got, b)
	}
	if got := q.Dequeue(); got != nil {
		t.Fatalf("Dequeue on empty = %v, want nil", got)
	}
}

func TestPushBackReordersToHead(t *testing.T) {
	t.Parallel()

	q := New(4)
	a := &avengine.Packet{StreamIndex: 0}
	b := &avengine.Packet{StreamIndex: 0}
	q.Enqueue(a)
	q.PushBack(b)

	if got := q.Dequeue(); got != b {
		t.Fatalf("Dequeue after PushBack = %v, want b", got)
	}
	if got := q.Dequeue(); got != a {
		t.Fatalf("Dequeue after PushBack = %v, want a", got)
	}
}

func TestEnqueueNilIsEOSSentinel(t *testing.T) {
	t.Parallel()

	q := New(4)
	q.Enqueue(nil)
	if got := q.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
	if got := q.Dequeue(); got != nil {
		t.Fatalf("Dequeue = %v, want nil sentinel", got)
	}
	if got := q.Len(); got != 0 {
		t.Fatalf("Len after draining sentinel = %d, want 0", got)
	}
}

func TestDrainReleasesAllQueuedPackets(t *testing.T) {
	t.Parallel()

	script := avengine.FakeEngineScript{
		Streams: []avengine.StreamInfo{{Index: 0, Kind: avengine.MediaKindAudio}},
		Packets: []avengine.FakePacketSpec{{StreamIndex: 0, PTS: 0}, {StreamIndex: 0, PTS: 1}},
	}
	fc, err := avengine.NewFakeEngine(script).OpenInput(context.Background(), nil)
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}

	q := New(4)
	for i := 0; i < 2; i++ {
		p, err := fc.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket: %v", err)
		}
		q.Enqueue(p)
	}

	q.Drain()
	if got := q.Len(); got != 0 {
		t.Fatalf("Len after Drain = %d, want 0", got)
	}

	allocated, released := avengine.FakeCounters(fc)
	if allocated != released {
		t.Fatalf("allocated = %d, released = %d, want equal", allocated, released)
	}
}
