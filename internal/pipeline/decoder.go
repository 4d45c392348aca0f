package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/marrowtide/reelcore/avengine"
)

// FrameDecoder is the decode background task of spec §4.5: it drains the
// PacketProducer's queues under the producer's own mutex, feeds each
// packet to the matching codec Decoder, and buffers the resulting frames
// in its own per-stream queues for GetFrame to consume.
type FrameDecoder struct {
	log *slog.Logger

	producer   *producerShared
	shared     *decoderShared
	decoders   map[int]avengine.Decoder
	streamIdxs []int // stable iteration order

	wg    sync.WaitGroup
	fatal atomic.Value // error
}

// NewFrameDecoder creates a decoder draining producer's queues through the
// given per-stream codec decoders, buffering up to queueSize decoded
// frames per stream.
func NewFrameDecoder(producer *PacketProducer, decoders map[int]avengine.Decoder, queueSize int, log *slog.Logger) *FrameDecoder {
	if log == nil {
		log = slog.Default()
	}
	idxs := make([]int, 0, len(decoders))
	for idx := range decoders {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	return &FrameDecoder{
		log:        log.With("component", "frame_decoder"),
		producer:   producer.shared,
		shared:     newDecoderShared(idxs, queueSize),
		decoders:   decoders,
		streamIdxs: idxs,
	}
}

// Start launches the decoder's drain loop on a background goroutine.
func (d *FrameDecoder) Start(ctx context.Context) {
	d.shared.mu.Lock()
	d.shared.running = true
	d.shared.fullyStarted = false
	d.shared.interrupted = false
	d.shared.mu.Unlock()

	d.wg.Add(1)
	go d.run(ctx)
}

func (d *FrameDecoder) run(ctx context.Context) {
	defer d.wg.Done()
	defer func() {
		d.shared.mu.Lock()
		d.shared.running = false
		d.shared.fullyStarted = true
		d.shared.cond.Broadcast()
		d.shared.mu.Unlock()
	}()

	for _, idx := range d.streamIdxs {
		d.decoders[idx].Flush()
	}

	// Wait for the producer to report fully_started (its first packet on any
	// stream, EOS, or every queue at its bound) before the first pass; other
	// streams' queues may still be empty then, and getPacket waits for them
	// (spec §4.5 step 0).
	d.producer.mu.Lock()
	d.producer.waitFullyStarted()
	d.producer.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.shared.mu.Lock()
		if d.shared.interrupted {
			d.shared.mu.Unlock()
			return
		}
		d.shared.mu.Unlock()

		progressed := false
		eofCount := 0

		for _, idx := range d.streamIdxs {
			d.shared.mu.Lock()
			done := d.shared.streamEOF[idx]
			full := d.shared.queues[idx].Len() >= d.shared.queueSize
			d.shared.mu.Unlock()

			if done {
				eofCount++
				continue
			}
			if full {
				continue
			}

			if d.step(idx) {
				progressed = true
			}
			d.shared.mu.Lock()
			if d.shared.streamEOF[idx] {
				eofCount++
			}
			d.shared.mu.Unlock()
		}

		if eofCount == len(d.streamIdxs) || d.Err() != nil {
			return
		}

		if !progressed {
			d.shared.mu.Lock()
			d.shared.fullyStarted = true
			d.shared.cond.Broadcast()
			d.shared.cond.Wait()
			d.shared.mu.Unlock()
		}
	}
}

// step advances stream idx by one packet: obtain a packet from the
// producer (blocking there if necessary), feed it to the codec decoder,
// and drain whatever frames that produces into this decoder's own queue.
// It reports whether it made forward progress.
func (d *FrameDecoder) step(idx int) bool {
	d.producer.mu.Lock()
	pkt := d.producer.getPacket(idx)
	d.producer.mu.Unlock()

	dec := d.decoders[idx]

	if pkt == nil {
		if err := dec.SendPacket(nil); err != nil {
			d.setFatal(err)
			return false
		}
		d.drainDecoder(idx, dec, true)
		d.shared.mu.Lock()
		d.shared.streamEOF[idx] = true
		d.shared.fullyStarted = true
		d.shared.cond.Broadcast()
		d.shared.mu.Unlock()
		return true
	}

	err := dec.SendPacket(pkt)
	if err != nil {
		if errors.Is(err, avengine.ErrAgain) {
			d.producer.mu.Lock()
			d.producer.returnPacket(idx, pkt)
			d.producer.mu.Unlock()
			return false
		}
		avengine.ReleasePacket(pkt)
		d.setFatal(err)
		return false
	}
	avengine.ReleasePacket(pkt)

	d.drainDecoder(idx, dec, false)
	return true
}

// drainDecoder pulls every frame currently available from dec into stream
// idx's queue. When final is true (stream flushed at EOS) it ignores the
// queue bound, since no further packets will arrive to make room.
func (d *FrameDecoder) drainDecoder(idx int, dec avengine.Decoder, final bool) {
	for {
		d.shared.mu.Lock()
		q := d.shared.queues[idx]
		if !final && q.Len() >= d.shared.queueSize {
			d.shared.mu.Unlock()
			return
		}
		d.shared.mu.Unlock()

		frame, err := dec.ReceiveFrame()
		if err != nil {
			if errors.Is(err, avengine.ErrAgain) {
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
			d.setFatal(err)
			return
		}

		d.shared.mu.Lock()
		d.shared.queues[idx].Enqueue(frame)
		d.shared.fullyStarted = true
		d.shared.cond.Broadcast()
		d.shared.mu.Unlock()
	}
}

// GetFrame returns the next decoded frame for stream idx, blocking until
// one is available. It returns io.EOF once that stream's decoder has been
// flushed and its buffered frames exhausted (spec §4.5).
func (d *FrameDecoder) GetFrame(idx int) (*avengine.Frame, error) {
	d.shared.mu.Lock()
	defer d.shared.mu.Unlock()

	d.shared.waitFullyStarted()

	q, ok := d.shared.queues[idx]
	if !ok {
		return nil, errors.New("pipeline: unknown stream index")
	}

	for q.Len() == 0 {
		if d.shared.streamEOF[idx] || !d.shared.running {
			return nil, io.EOF
		}
		d.shared.cond.Broadcast()
		d.shared.cond.Wait()
	}
	return q.Dequeue(), nil
}

// Stop requests the drain loop to exit and releases every buffered frame.
func (d *FrameDecoder) Stop() {
	d.shared.mu.Lock()
	d.shared.interrupted = true
	d.shared.clear()
	d.shared.cond.Broadcast()
	d.shared.mu.Unlock()
}

// Join blocks until the background goroutine has exited.
func (d *FrameDecoder) Join() {
	d.wg.Wait()
}

// WaitFullyStarted blocks until the decoder reports fully_started, or has
// stopped running. The flag is set by the first buffered frame on any
// stream, by any stream reaching EOF, or by a drain pass that makes no
// progress; it does not wait for a frame on every stream.
func (d *FrameDecoder) WaitFullyStarted() {
	d.shared.mu.Lock()
	defer d.shared.mu.Unlock()
	d.shared.waitFullyStarted()
}

// Err returns the first unrecoverable error encountered by the drain loop,
// if any.
func (d *FrameDecoder) Err() error {
	if v := d.fatal.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (d *FrameDecoder) setFatal(err error) {
	if d.fatal.Load() == nil {
		d.fatal.Store(err)
	}
	d.log.Error("decode failed", "error", err)
}
