//go:build cgo

package avengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/marrowtide/reelcore/internal/bytesource"
)

// FFmpeg custom-I/O seek whence values, mirroring avio.h. go-astiav's seek
// callback hands these through unmodified, matching the contract the
// original implementation's avio_alloc_context callbacks honored.
const (
	ffioSeekSet   = 0
	ffioSeekCur   = 1
	ffioSeekEnd   = 2
	ffioSeekSize  = 0x10000
	ffioSeekForce = 0x20000
)

// codecOpenMu serializes every avcodec_open2 call across the process, per
// spec §5's "process-wide registration step and library-wide
// non-reentrancy in certain entry points (notably decoder open)".
var codecOpenMu sync.Mutex

type ffEngine struct{}

// NewFFmpegEngine returns the production Engine, backed by
// github.com/asticode/go-astiav (libavformat/libavcodec).
func NewFFmpegEngine() Engine {
	return &ffEngine{}
}

func (e *ffEngine) OpenInput(ctx context.Context, rw ReadSeeker) (FormatContext, error) {
	const probeBufSize = 32 * 1024

	ioCtx := astiav.AllocIOContext(probeBufSize, false,
		func(buf []byte) (int, error) {
			n, err := rw.Read(buf)
			if err != nil && errors.Is(err, io.EOF) {
				if n > 0 {
					return n, nil
				}
				return 0, astiav.ErrEof
			}
			return n, err
		},
		nil,
		func(offset int64, whence int) (int64, error) {
			forced := whence&ffioSeekForce != 0
			masked := whence &^ ffioSeekForce
			_ = forced // the "force" bit is documented as advisory only; ignored per spec §4.1

			switch masked {
			case ffioSeekSize:
				return rw.Size()
			case ffioSeekSet:
				return rw.Seek(offset, bytesource.SeekSet)
			case ffioSeekCur:
				return rw.Seek(offset, bytesource.SeekCur)
			case ffioSeekEnd:
				return rw.Seek(offset, bytesource.SeekEnd)
			default:
				return 0, fmt.Errorf("avengine: unsupported seek whence %d", masked)
			}
		},
	)
	if ioCtx == nil {
		return nil, fmt.Errorf("avengine: %w: failed to allocate custom I/O context", ErrUnsupportedFormat)
	}

	fc := astiav.AllocFormatContext()
	if fc == nil {
		ioCtx.Free()
		return nil, errors.New("avengine: failed to allocate format context")
	}
	fc.SetPb(ioCtx)
	fc.SetFlags(fc.Flags() | astiav.FormatContextFlagCustomIo)

	if err := fc.OpenInput("", nil, nil); err != nil {
		fc.Free()
		ioCtx.Free()
		return nil, fmt.Errorf("avengine: %w: %v", ErrUnsupportedFormat, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		ioCtx.Free()
		return nil, fmt.Errorf("avengine: find stream info: %w", err)
	}

	return &ffFormatContext{fc: fc, ioCtx: ioCtx}, nil
}

type ffFormatContext struct {
	fc    *astiav.FormatContext
	ioCtx *astiav.IOContext

	mu sync.Mutex
}

func (f *ffFormatContext) Streams() []StreamInfo {
	streams := f.fc.Streams()
	out := make([]StreamInfo, 0, len(streams))
	for _, s := range streams {
		par := s.CodecParameters()
		info := StreamInfo{
			Index:    s.Index(),
			Kind:     mediaKindFromAstiav(par.MediaType()),
			CodecID:  par.CodecID().String(),
			TimeBase: rationalFromAstiav(s.TimeBase()),
		}
		if r := s.AvgFrameRate(); r.Den() != 0 {
			info.FrameRate = rationalFromAstiav(r)
		} else {
			info.FrameRate = rationalFromAstiav(s.RFrameRate())
		}
		switch info.Kind {
		case MediaKindVideo:
			info.Width = par.Width()
			info.Height = par.Height()
			info.PixelFormat = par.PixelFormat().Name()
		case MediaKindAudio:
			info.SampleRate = par.SampleRate()
			info.Channels = par.ChannelLayout().Channels()
			info.SampleFormat = par.SampleFormat().Name()
		}
		out = append(out, info)
	}
	return out
}

func (f *ffFormatContext) Duration() time.Duration {
	return f.fc.Duration()
}

func (f *ffFormatContext) ReadPacket() (*Packet, error) {
	pkt := astiav.AllocPacket()
	if err := f.fc.ReadFrame(pkt); err != nil {
		pkt.Free()
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("avengine: read packet: %w", err)
	}
	return &Packet{StreamIndex: pkt.StreamIndex(), native: pkt}, nil
}

func (f *ffFormatContext) SeekFrame(_ context.Context, ptsMicros int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fc.SeekFrame(-1, ptsMicros, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("avengine: seek: %w", err)
	}
	return nil
}

func (f *ffFormatContext) OpenDecoder(stream StreamInfo, threadCount int) (Decoder, error) {
	streams := f.fc.Streams()
	if stream.Index < 0 || stream.Index >= len(streams) {
		return nil, fmt.Errorf("avengine: stream index %d out of range", stream.Index)
	}
	par := streams[stream.Index].CodecParameters()

	codec := astiav.FindDecoder(par.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("avengine: %w: codec %s", ErrCodecUnavailable, par.CodecID())
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("avengine: failed to allocate codec context")
	}
	if err := par.ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, fmt.Errorf("avengine: codec parameters to context: %w", err)
	}

	cc.SetThreadCount(threadCount)
	cc.SetThreadType(astiav.NewThreadType(astiav.ThreadTypeFrame))
	cc.SetPktTimeBase(astiav.NewRational(stream.TimeBase.Num, stream.TimeBase.Den))

	codecOpenMu.Lock()
	err := cc.Open(codec, nil)
	codecOpenMu.Unlock()
	if err != nil {
		cc.Free()
		return nil, fmt.Errorf("avengine: open codec: %w", err)
	}

	return &ffDecoder{cc: cc, streamIndex: stream.Index, timeBase: stream.TimeBase}, nil
}

func (f *ffFormatContext) Close() error {
	f.fc.CloseInput()
	f.ioCtx.Free()
	return nil
}

type ffDecoder struct {
	cc          *astiav.CodecContext
	streamIndex int
	timeBase    Rational
}

func (d *ffDecoder) SendPacket(p *Packet) error {
	var native *astiav.Packet
	if p != nil {
		var ok bool
		native, ok = p.native.(*astiav.Packet)
		if !ok {
			return fmt.Errorf("avengine: packet not produced by the ffmpeg engine")
		}
	}
	if err := d.cc.SendPacket(native); err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			return ErrAgain
		}
		if errors.Is(err, astiav.ErrEof) {
			return nil
		}
		return fmt.Errorf("avengine: send packet: %w", err)
	}
	return nil
}

func (d *ffDecoder) ReceiveFrame() (*Frame, error) {
	frame := astiav.AllocFrame()
	if err := d.cc.ReceiveFrame(frame); err != nil {
		frame.Free()
		if errors.Is(err, astiav.ErrEagain) {
			return nil, ErrAgain
		}
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("avengine: receive frame: %w", err)
	}
	return &Frame{
		StreamIndex: d.streamIndex,
		PTS:         frame.Pts(),
		TimeBase:    d.timeBase,
		native:      frame,
	}, nil
}

func (d *ffDecoder) Flush() {
	d.cc.FlushBuffers()
}

func (d *ffDecoder) Close() error {
	d.cc.Free()
	return nil
}

func mediaKindFromAstiav(t astiav.MediaType) MediaKind {
	switch t {
	case astiav.MediaTypeAudio:
		return MediaKindAudio
	case astiav.MediaTypeVideo:
		return MediaKindVideo
	default:
		return MediaKindOther
	}
}

func rationalFromAstiav(r astiav.Rational) Rational {
	return Rational{Num: r.Num(), Den: r.Den()}
}
