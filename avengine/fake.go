package avengine

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// FakePacketSpec describes one packet in a scripted demux sequence.
type FakePacketSpec struct {
	StreamIndex int
	PTS         int64
}

// FakeEngineScript configures a fake Engine for tests. It lets a test dictate
// the exact demux order, inject EAGAIN at chosen send/receive calls, and
// force open or seek failures, without touching cgo or real media files.
type FakeEngineScript struct {
	Streams  []StreamInfo
	Duration time.Duration
	Packets  []FakePacketSpec

	// SendEagainAt, keyed by stream index, lists the 0-based per-stream
	// packet sequence numbers at which the first SendPacket call should
	// return ErrAgain (the caller is expected to return_packet and retry).
	SendEagainAt map[int][]int

	// ReceiveEagainAt, keyed by stream index, lists the 0-based counts of
	// prior successful ReceiveFrame calls after which one extra ErrAgain is
	// returned before the next frame is handed out.
	ReceiveEagainAt map[int][]int

	OpenDecoderErr map[int]error
	SeekErr        error

	// ReadErrAtPacket, if > 0, makes ReadPacket return a hard I/O error once
	// it would otherwise have returned the packet at this 1-based index.
	ReadErrAtPacket int
}

type fakeEngine struct {
	script FakeEngineScript
}

// NewFakeEngine returns an Engine whose single FormatContext replays script
// deterministically. It never touches a real file or cgo.
func NewFakeEngine(script FakeEngineScript) Engine {
	return &fakeEngine{script: script}
}

func (e *fakeEngine) OpenInput(_ context.Context, _ ReadSeeker) (FormatContext, error) {
	fc := &fakeFormatContext{
		script: e.script,
		cursor: 0,
	}
	return fc, nil
}

type fakeFormatContext struct {
	script FakeEngineScript

	mu       sync.Mutex
	cursor   int
	allocd   atomic.Int64
	released atomic.Int64
}

func (fc *fakeFormatContext) Streams() []StreamInfo  { return fc.script.Streams }
func (fc *fakeFormatContext) Duration() time.Duration { return fc.script.Duration }

// Counters reports packets allocated by ReadPacket vs. released via
// ReleasePacket, backing the "packets_released == packets_enqueued" leak
// property of spec §8.
func (fc *fakeFormatContext) Counters() (allocated, released int64) {
	return fc.allocd.Load(), fc.released.Load()
}

func (fc *fakeFormatContext) ReadPacket() (*Packet, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	idx := fc.cursor
	if idx >= len(fc.script.Packets) {
		return nil, io.EOF
	}
	if fc.script.ReadErrAtPacket > 0 && idx+1 == fc.script.ReadErrAtPacket {
		return nil, io.ErrUnexpectedEOF
	}
	spec := fc.script.Packets[idx]
	fc.cursor++

	fc.allocd.Add(1)
	pkt := &Packet{
		StreamIndex: spec.StreamIndex,
		native: &fakePacketNative{
			pts:      spec.PTS,
			released: &fc.released,
		},
	}
	return pkt, nil
}

func (fc *fakeFormatContext) SeekFrame(_ context.Context, ptsMicros int64) error {
	if fc.script.SeekErr != nil {
		return fc.script.SeekErr
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	// Snap to the first packet whose synthetic PTS (treated as microseconds
	// for the fake) is >= the requested target, mimicking a backward
	// keyframe seek closely enough for ordering/round-trip tests.
	for i, p := range fc.script.Packets {
		if p.PTS >= ptsMicros {
			fc.cursor = i
			return nil
		}
	}
	fc.cursor = len(fc.script.Packets)
	return nil
}

func (fc *fakeFormatContext) OpenDecoder(stream StreamInfo, _ int) (Decoder, error) {
	if err := fc.script.OpenDecoderErr[stream.Index]; err != nil {
		return nil, err
	}
	return &fakeDecoder{
		streamIndex:   stream.Index,
		timeBase:      stream.TimeBase,
		sendEagain:    toSet(fc.script.SendEagainAt[stream.Index]),
		recvEagain:    toSet(fc.script.ReceiveEagainAt[stream.Index]),
	}, nil
}

func (fc *fakeFormatContext) Close() error { return nil }

// counterSource is implemented by fakeFormatContext; FakeCounters type-asserts
// to it so tests outside this package can read the leak-check counters
// without reaching into an unexported type.
type counterSource interface {
	Counters() (allocated, released int64)
}

// FakeCounters reports the packet allocation/release counters of a
// FormatContext produced by a fake Engine, for the packets_released ==
// packets_enqueued property in spec §8. It panics if fc was not produced by
// a fake engine.
func FakeCounters(fc FormatContext) (allocated, released int64) {
	cs := fc.(counterSource)
	return cs.Counters()
}

func toSet(vals []int) map[int]struct{} {
	m := make(map[int]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

type fakePacketNative struct {
	pts      int64
	released *atomic.Int64
}

func (n *fakePacketNative) release() { n.released.Add(1) }

type fakeFrameNative struct{}

func (n *fakeFrameNative) release() {}

// fakeDecoder emulates send-packet/receive-frame codec semantics: one frame
// is produced per accepted packet, FIFO, with scriptable EAGAIN injection on
// either side of the call pair.
type fakeDecoder struct {
	mu sync.Mutex

	streamIndex int
	timeBase    Rational

	sendEagain map[int]struct{}
	recvEagain map[int]struct{}

	sendSeq int
	recvSeq int
	pending []int64 // queued frame PTS values
	drained bool
	closed  bool
}

func (d *fakeDecoder) SendPacket(p *Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p == nil {
		d.drained = true
		return nil
	}
	if _, eagain := d.sendEagain[d.sendSeq]; eagain {
		delete(d.sendEagain, d.sendSeq)
		return ErrAgain
	}
	d.sendSeq++

	native, _ := p.native.(*fakePacketNative)
	pts := int64(0)
	if native != nil {
		pts = native.pts
	}
	d.pending = append(d.pending, pts)
	return nil
}

func (d *fakeDecoder) ReceiveFrame() (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, eagain := d.recvEagain[d.recvSeq]; eagain {
		delete(d.recvEagain, d.recvSeq)
		return nil, ErrAgain
	}
	if len(d.pending) == 0 {
		if d.drained {
			return nil, io.EOF
		}
		return nil, ErrAgain
	}

	pts := d.pending[0]
	d.pending = d.pending[1:]
	d.recvSeq++

	return &Frame{
		StreamIndex: d.streamIndex,
		PTS:         pts,
		TimeBase:    d.timeBase,
		native:      &fakeFrameNative{},
	}, nil
}

func (d *fakeDecoder) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	d.drained = false
	d.sendSeq = 0
	d.recvSeq = 0
}

func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
