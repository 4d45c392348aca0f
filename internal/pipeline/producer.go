package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/marrowtide/reelcore/avengine"
)

// PacketProducer is the demux background task of spec §4.4: it repeatedly
// reads packets from a FormatContext in demux order and routes each into
// the bounded queue of the stream it belongs to, and keeps reading while
// the shortest queue is below its bound, so no single stream starves the
// others.
type PacketProducer struct {
	log           *slog.Logger
	fc            avengine.FormatContext
	streamIndices []int

	shared *producerShared

	wg    sync.WaitGroup
	fatal atomic.Value // error
}

// NewPacketProducer creates a producer for the given stream indices, each
// with a queue bounded to queueSize packets (spec §4.3's default 32).
func NewPacketProducer(fc avengine.FormatContext, streamIndices []int, queueSize int, log *slog.Logger) *PacketProducer {
	if log == nil {
		log = slog.Default()
	}
	return &PacketProducer{
		log:           log.With("component", "packet_producer"),
		fc:            fc,
		streamIndices: streamIndices,
		shared:        newProducerShared(streamIndices, queueSize),
	}
}

// Start launches the producer's fill loop on a background goroutine.
func (p *PacketProducer) Start(ctx context.Context) {
	p.shared.mu.Lock()
	p.shared.running = true
	p.shared.fullyStarted = false
	p.shared.interrupted = false
	p.shared.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)
}

func (p *PacketProducer) run(ctx context.Context) {
	defer p.wg.Done()
	defer func() {
		p.shared.mu.Lock()
		p.shared.running = false
		p.shared.cond.Broadcast()
		p.shared.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.shared.mu.Lock()
		if p.shared.interrupted {
			p.shared.mu.Unlock()
			return
		}

		// Step 1 (spec §4.4): the shortest queue governs production.
		// If every queue has reached queueSize, sleep until a consumer
		// drains one, then re-evaluate.
		if p.shared.minQueueLen() >= p.shared.queueSize {
			p.shared.fullyStarted = true
			p.shared.cond.Broadcast()
			p.shared.cond.Wait()
			p.shared.mu.Unlock()
			continue
		}
		p.shared.mu.Unlock()

		pkt, err := p.fc.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.enqueueEOS()
				p.log.Debug("reached end of stream")
				return
			}
			p.setFatal(err)
			p.log.Error("read packet failed", "error", err)
			return
		}

		p.enqueue(pkt)
	}
}

// enqueue routes a packet into its stream's queue, dropping packets for
// streams the caller did not select to decode.
func (p *PacketProducer) enqueue(pkt *avengine.Packet) {
	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()

	q, ok := p.shared.queues[pkt.StreamIndex]
	if !ok {
		avengine.ReleasePacket(pkt)
		return
	}
	q.Enqueue(pkt)
	p.shared.fullyStarted = true
	p.shared.cond.Broadcast()
}

// enqueueEOS pushes the nil end-of-stream sentinel (spec §3) onto every
// queue, so downstream FrameDecoder.run sees EOF on each stream in turn.
func (p *PacketProducer) enqueueEOS() {
	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()

	for _, q := range p.shared.queues {
		q.Enqueue(nil)
	}
	p.shared.fullyStarted = true
	p.shared.cond.Broadcast()
}

// Stop requests the fill loop to exit and drains every queue, discarding
// any packets already buffered (used before a seek, spec §4.2).
func (p *PacketProducer) Stop() {
	p.shared.mu.Lock()
	p.shared.interrupted = true
	p.shared.clear()
	p.shared.cond.Broadcast()
	p.shared.mu.Unlock()
}

// Join blocks until the background goroutine has exited.
func (p *PacketProducer) Join() {
	p.wg.Wait()
}

// WaitFullyStarted blocks until the producer reports fully_started, or has
// stopped running. The flag is set by the first packet enqueued on any
// stream, by EOS, or when every queue reaches its bound; it does not wait
// for a packet on every stream.
func (p *PacketProducer) WaitFullyStarted() {
	p.shared.mu.Lock()
	defer p.shared.mu.Unlock()
	p.shared.waitFullyStarted()
}

// Err returns the first unrecoverable error encountered by the fill loop,
// if any.
func (p *PacketProducer) Err() error {
	if v := p.fatal.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (p *PacketProducer) setFatal(err error) {
	p.fatal.Store(err)
}
