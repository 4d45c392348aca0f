// Package avengine defines the contract reelcore's core pipeline programs
// against for container demuxing and codec decoding. The contract models
// FFmpeg's avformat/avcodec API (probe, open, find-stream-info, read-frame,
// seek-frame, send-packet/receive-frame) without committing callers to a
// concrete binding; [NewFFmpegEngine] wires up github.com/asticode/go-astiav,
// and [NewFakeEngine] wires up an in-memory scriptable engine used by every
// other package's tests.
package avengine

import (
	"context"
	"io"
	"time"

	"github.com/marrowtide/reelcore/internal/bytesource"
)

// MediaKind classifies a stream the same way the original spec's
// StreamSelection does: at most one audio and one video stream are ever
// selected from a container.
type MediaKind int

const (
	MediaKindOther MediaKind = iota
	MediaKindAudio
	MediaKindVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaKindAudio:
		return "audio"
	case MediaKindVideo:
		return "video"
	default:
		return "other"
	}
}

// Rational is a num/den time base or frame rate, mirroring astiav.Rational.
type Rational struct {
	Num, Den int
}

// PTSSeconds converts a presentation timestamp expressed in this rational's
// units to seconds.
func (r Rational) PTSSeconds(pts int64) float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(pts) * float64(r.Num) / float64(r.Den)
}

// Float64 returns the rational as a float, e.g. for a frame rate.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// StreamInfo describes one stream enumerated by the container, per spec §3's
// Source.stream descriptor.
type StreamInfo struct {
	Index        int
	Kind         MediaKind
	CodecID      string
	TimeBase     Rational
	FrameRate    Rational
	Width        int
	Height       int
	PixelFormat  string
	SampleRate   int
	Channels     int
	SampleFormat string
}

// Packet is an opaque, demuxed encoded packet tagged with its stream index.
// A nil *Packet is the end-of-stream sentinel used throughout the pipeline
// (spec §3: "A null packet acts as the end-of-stream sentinel").
type Packet struct {
	StreamIndex int
	native      nativePacket
}

// Frame is a decoded sample buffer plus its presentation timestamp,
// interpreted against the producing stream's time base.
type Frame struct {
	StreamIndex int
	PTS         int64
	TimeBase    Rational
	native      nativeFrame
}

// PTSSeconds reports the frame's presentation time in seconds (spec §3:
// "pts_seconds = pts * num / den").
func (f *Frame) PTSSeconds() float64 {
	return f.TimeBase.PTSSeconds(f.PTS)
}

// ReadSeeker is the random-access byte contract the engine's custom I/O
// expects; [*bytesource.Source] satisfies it directly (spec §4.1).
type ReadSeeker interface {
	io.Reader
	Seek(offset int64, whence bytesource.Whence) (int64, error)
	Size() (int64, error)
}

// Engine opens containers. The two concrete implementations are the
// go-astiav-backed [ffEngine] and the test-only fake engine.
type Engine interface {
	// OpenInput probes and opens a container over rw, returning a
	// FormatContext once stream info has been resolved.
	OpenInput(ctx context.Context, rw ReadSeeker) (FormatContext, error)
}

// FormatContext is one opened container: its enumerated streams, its packet
// reader, its keyframe seek, and per-stream decoder construction.
type FormatContext interface {
	Streams() []StreamInfo
	Duration() time.Duration

	// ReadPacket demultiplexes the next packet. It returns io.EOF once the
	// container is exhausted; no further calls are valid after that.
	ReadPacket() (*Packet, error)

	// SeekFrame seeks to the nearest keyframe at or before ptsMicros,
	// expressed in AV_TIME_BASE (microsecond) units (spec §4.2, §6.1).
	SeekFrame(ctx context.Context, ptsMicros int64) error

	// OpenDecoder opens a decoder for the given stream with the given
	// frame-parallel thread count (spec §3 DecoderState).
	OpenDecoder(stream StreamInfo, threadCount int) (Decoder, error)

	Close() error
}

// Decoder is one stream's codec state (spec §3 DecoderState, §6.1
// send-packet/receive-frame).
type Decoder interface {
	// SendPacket feeds a packet to the decoder. A nil packet signals
	// end-of-stream ("drain"). Returns ErrAgain if the decoder's internal
	// buffer is full and the packet must be retried after a ReceiveFrame.
	SendPacket(p *Packet) error

	// ReceiveFrame pulls one decoded frame. Returns ErrAgain if no frame is
	// available yet, or io.EOF once the decoder is fully drained.
	ReceiveFrame() (*Frame, error)

	Flush()
	Close() error
}

// ReleasePacket releases a packet's underlying native resources. Safe to
// call on nil.
func ReleasePacket(p *Packet) {
	if p == nil {
		return
	}
	releaseNativePacket(p.native)
}

// ReleaseFrame releases a frame's underlying native resources. Safe to call
// on nil.
func ReleaseFrame(f *Frame) {
	if f == nil {
		return
	}
	releaseNativeFrame(f.native)
}
