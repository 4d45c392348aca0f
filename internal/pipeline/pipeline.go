package pipeline

import (
	"context"
	"log/slog"

	"github.com/marrowtide/reelcore/avengine"
)

// Pipeline bundles one opened source's PacketProducer and FrameDecoder
// loops, matching spec §4.4/§4.5's description of the two background
// tasks as a single unit sharing mutex-guarded state rather than one task
// reaching into the other's private lock.
type Pipeline struct {
	producer *PacketProducer
	decoder  *FrameDecoder
}

// New builds a Pipeline over fc, demuxing streamIndices and decoding each
// through the matching entry of decoders. queueSize bounds both the
// packet queues and the decoded-frame queues (spec §4.3's default 32).
func New(fc avengine.FormatContext, streamIndices []int, decoders map[int]avengine.Decoder, queueSize int, log *slog.Logger) *Pipeline {
	producer := NewPacketProducer(fc, streamIndices, queueSize, log)
	decoder := NewFrameDecoder(producer, decoders, queueSize, log)
	return &Pipeline{producer: producer, decoder: decoder}
}

// Start launches both background loops.
func (p *Pipeline) Start(ctx context.Context) {
	p.producer.Start(ctx)
	p.decoder.Start(ctx)
}

// Stop requests both loops to exit and releases buffered packets/frames.
// It does not block; call Join to wait for exit.
func (p *Pipeline) Stop() {
	p.decoder.Stop()
	p.producer.Stop()
}

// Join blocks until both background goroutines have exited.
func (p *Pipeline) Join() {
	p.producer.Join()
	p.decoder.Join()
}

// WaitFullyStarted blocks until both the producer and the decoder report
// fully_started (see PacketProducer.WaitFullyStarted and
// FrameDecoder.WaitFullyStarted); some streams may still have nothing
// buffered when it returns.
func (p *Pipeline) WaitFullyStarted() {
	p.producer.WaitFullyStarted()
	p.decoder.WaitFullyStarted()
}

// GetFrame returns the next decoded frame for the given stream, blocking
// until one is ready or the stream is exhausted (io.EOF).
func (p *Pipeline) GetFrame(streamIdx int) (*avengine.Frame, error) {
	return p.decoder.GetFrame(streamIdx)
}

// Err returns the first unrecoverable error raised by either background
// loop, producer errors taking priority since a decode error downstream
// of a demux error is usually just its symptom.
func (p *Pipeline) Err() error {
	if err := p.producer.Err(); err != nil {
		return err
	}
	return p.decoder.Err()
}
