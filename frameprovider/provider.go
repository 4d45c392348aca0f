// Package frameprovider implements the consumer-facing playback core of
// spec §4.6: opening one media source, running its demux/decode pipeline,
// and delivering frames in presentation order with an A/V interleaving
// policy.
package frameprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/marrowtide/reelcore/avengine"
	"github.com/marrowtide/reelcore/internal/bytesource"
	"github.com/marrowtide/reelcore/internal/packetqueue"
	"github.com/marrowtide/reelcore/internal/pipeline"
	"github.com/marrowtide/reelcore/internal/seeker"
)

// OpenOptions controls which streams are selected and how the pipeline is
// sized. The zero value enables both audio and video with default sizing.
type OpenOptions struct {
	EnableAudio bool
	EnableVideo bool

	// ThreadCount configures the external decoder's frame-parallel
	// threading (spec §6.1). Zero means runtime.NumCPU().
	ThreadCount int

	// QueueSize bounds both the packet queues and the decoded-frame
	// queues. Zero means packetqueue.DefaultSize.
	QueueSize int

	// Engine overrides the multimedia backend; nil selects the
	// production go-astiav engine. Tests inject avengine.NewFakeEngine.
	Engine avengine.Engine
}

func (o OpenOptions) normalized() OpenOptions {
	if !o.EnableAudio && !o.EnableVideo {
		o.EnableAudio = true
		o.EnableVideo = true
	}
	if o.ThreadCount <= 0 {
		o.ThreadCount = runtime.NumCPU()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = packetqueue.DefaultSize
	}
	if o.Engine == nil {
		o.Engine = avengine.NewFFmpegEngine()
	}
	return o
}

// Provider orchestrates one opened source's byte source, format context,
// pipeline, and seeker, and exposes the frame-delivery API of spec §4.6.
type Provider struct {
	log  *slog.Logger
	path string

	src *bytesource.Source
	fc  avengine.FormatContext

	audioStream *avengine.StreamInfo
	videoStream *avengine.StreamInfo

	duration time.Duration

	pipe   *pipeline.Pipeline
	seeker *seeker.Seeker

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	running       bool
	closed        bool
	audioFinished bool
	videoFinished bool
	currentKind   avengine.MediaKind
	audioPTS      int64
	videoPTS      int64
	audioFrame    *avengine.Frame
	videoFrame    *avengine.Frame
}

// Open opens path, probes its container, selects at most one audio and one
// video stream per opts, and builds (but does not start) the pipeline.
func Open(path string, opts OpenOptions) (*Provider, error) {
	opts = opts.normalized()
	log := slog.Default().With("component", "frame_provider", "path", path)

	src, err := bytesource.Open(path)
	if err != nil {
		return nil, fmt.Errorf("frameprovider: open %s: %w", path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	fc, err := opts.Engine.OpenInput(ctx, src)
	if err != nil {
		cancel()
		src.Close()
		return nil, fmt.Errorf("frameprovider: probe %s: %w", path, err)
	}

	p := &Provider{
		log:         log,
		path:        path,
		src:         src,
		fc:          fc,
		duration:    fc.Duration(),
		ctx:         ctx,
		cancel:      cancel,
		currentKind: avengine.MediaKindOther,
	}

	var streamIndices []int
	decoders := make(map[int]avengine.Decoder)

	for _, s := range fc.Streams() {
		s := s
		switch s.Kind {
		case avengine.MediaKindAudio:
			if !opts.EnableAudio || p.audioStream != nil {
				continue
			}
			p.audioStream = &s
		case avengine.MediaKindVideo:
			if !opts.EnableVideo || p.videoStream != nil {
				continue
			}
			p.videoStream = &s
		default:
			continue
		}

		dec, err := fc.OpenDecoder(s, opts.ThreadCount)
		if err != nil {
			p.teardown()
			return nil, fmt.Errorf("frameprovider: open decoder for stream %d: %w", s.Index, err)
		}
		decoders[s.Index] = dec
		streamIndices = append(streamIndices, s.Index)
	}

	if p.audioStream == nil && p.videoStream == nil {
		p.teardown()
		return nil, avengine.ErrNoStream
	}

	p.pipe = pipeline.New(fc, streamIndices, decoders, opts.QueueSize, log)
	p.seeker = seeker.New(func(ctx context.Context, ptsUs int64) error {
		return fc.SeekFrame(ctx, ptsUs)
	}, log)

	return p, nil
}

func (p *Provider) teardown() {
	p.fc.Close()
	p.cancel()
	p.src.Close()
}

// HasAudio reports whether an audio stream was selected.
func (p *Provider) HasAudio() bool { return p.audioStream != nil }

// HasVideo reports whether a video stream was selected.
func (p *Provider) HasVideo() bool { return p.videoStream != nil }

// Duration returns the source's total duration.
func (p *Provider) Duration() time.Duration { return p.duration }

// Path returns the path Provider was opened with.
func (p *Provider) Path() string { return p.path }

// VideoFrameRate returns the selected video stream's frame rate, or the
// zero Rational if there is no video stream.
func (p *Provider) VideoFrameRate() avengine.Rational {
	if p.videoStream == nil {
		return avengine.Rational{}
	}
	return p.videoStream.FrameRate
}

// VideoSize returns the selected video stream's width and height.
func (p *Provider) VideoSize() (width, height int) {
	if p.videoStream == nil {
		return 0, 0
	}
	return p.videoStream.Width, p.videoStream.Height
}

// VideoPixelFormat returns the selected video stream's pixel format name.
func (p *Provider) VideoPixelFormat() string {
	if p.videoStream == nil {
		return ""
	}
	return p.videoStream.PixelFormat
}

// AudioSampleRate returns the selected audio stream's sample rate in Hz.
func (p *Provider) AudioSampleRate() int {
	if p.audioStream == nil {
		return 0
	}
	return p.audioStream.SampleRate
}

// AudioSampleFormat returns the selected audio stream's sample format name.
func (p *Provider) AudioSampleFormat() string {
	if p.audioStream == nil {
		return ""
	}
	return p.audioStream.SampleFormat
}

// AudioPTS returns the presentation timestamp, in seconds, of the most
// recently delivered audio frame.
func (p *Provider) AudioPTS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audioPTSSecondsLocked()
}

// VideoPTS returns the presentation timestamp, in seconds, of the most
// recently delivered video frame.
func (p *Provider) VideoPTS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoPTSSecondsLocked()
}

// StartDecoder starts the demux/decode pipeline if it is not already
// running. If async is false, it blocks until both background tasks
// report fully_started (spec §4.6).
func (p *Provider) StartDecoder(async bool) error {
	if err := p.seeker.Wait(); err != nil {
		p.log.Warn("pending seek failed before start", "error", err)
	}

	p.mu.Lock()
	if !p.running {
		p.pipe.Start(p.ctx)
		p.running = true
	}
	p.mu.Unlock()

	if !async {
		p.pipe.WaitFullyStarted()
	}
	return nil
}

// StopDecoder signals both background tasks to stop and drains their
// queues. If async is false, it blocks until they have exited.
func (p *Provider) StopDecoder(async bool) {
	if err := p.seeker.Wait(); err != nil {
		p.log.Warn("pending seek failed before stop", "error", err)
	}

	p.mu.Lock()
	running := p.running
	p.running = false
	p.mu.Unlock()

	if !running {
		return
	}

	p.pipe.Stop()
	if async {
		go p.pipe.Join()
	} else {
		p.pipe.Join()
	}
}

// Seek moves the source's read position to seconds. If the pipeline is
// running it is stopped first. If async is true the container seek runs
// on the Seeker's background goroutine and Wait (via StartDecoder/
// StopDecoder) must be used to observe completion; otherwise the seek is
// performed inline before Seek returns.
func (p *Provider) Seek(seconds float64, async bool) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if running {
		p.StopDecoder(false)
	}

	if err := p.seeker.Wait(); err != nil {
		p.log.Warn("pending seek failed before new seek", "error", err)
	}

	p.mu.Lock()
	p.audioFinished = false
	p.videoFinished = false
	p.currentKind = avengine.MediaKindOther
	p.mu.Unlock()

	ptsUs := int64(math.Round(seconds * 1e6))

	if async {
		p.seeker.SetPosition(ptsUs)
		p.seeker.Start(p.ctx)
		return nil
	}
	return p.fc.SeekFrame(p.ctx, ptsUs)
}

// NextAudioFrame releases the previous audio frame and advances to the
// next one, returning false once the audio stream is finished.
func (p *Provider) NextAudioFrame() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextKindLocked(avengine.MediaKindAudio)
}

// NextVideoFrame releases the previous video frame and advances to the
// next one, returning false once the video stream is finished.
func (p *Provider) NextVideoFrame() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextKindLocked(avengine.MediaKindVideo)
}

func (p *Provider) nextKindLocked(kind avengine.MediaKind) bool {
	var stream *avengine.StreamInfo
	if kind == avengine.MediaKindAudio {
		stream = p.audioStream
	} else {
		stream = p.videoStream
	}
	if stream == nil {
		return false
	}

	p.releaseFrameLocked(kind)

	frame, err := p.pipe.GetFrame(stream.Index)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			p.log.Error("decode failed", "stream", stream.Index, "error", err)
		}
		p.setFinishedLocked(kind, true)
		p.currentKind = avengine.MediaKindOther
		return false
	}

	p.setFinishedLocked(kind, false)
	p.currentKind = kind
	if kind == avengine.MediaKindAudio {
		p.audioPTS = frame.PTS
		p.audioFrame = frame
	} else {
		p.videoPTS = frame.PTS
		p.videoFrame = frame
	}
	return true
}

// audioPTSSecondsLocked and videoPTSSecondsLocked convert the last emitted
// pts of each kind to seconds via that stream's time base, so the
// interleaving comparison is meaningful across streams with different
// time bases. Callers must hold p.mu.
func (p *Provider) audioPTSSecondsLocked() float64 {
	if p.audioStream == nil {
		return 0
	}
	return p.audioStream.TimeBase.PTSSeconds(p.audioPTS)
}

func (p *Provider) videoPTSSecondsLocked() float64 {
	if p.videoStream == nil {
		return 0
	}
	return p.videoStream.TimeBase.PTSSeconds(p.videoPTS)
}

func (p *Provider) setFinishedLocked(kind avengine.MediaKind, v bool) {
	if kind == avengine.MediaKindAudio {
		p.audioFinished = v
	} else {
		p.videoFinished = v
	}
}

func (p *Provider) releaseFrameLocked(kind avengine.MediaKind) {
	if kind == avengine.MediaKindAudio {
		avengine.ReleaseFrame(p.audioFrame)
		p.audioFrame = nil
	} else {
		avengine.ReleaseFrame(p.videoFrame)
		p.videoFrame = nil
	}
}

// NextFrame implements spec §4.6's interleaving policy: pull whichever
// kind is not finished and has the lower pts (video on ties, since the
// audio test is a strict audio_pts < video_pts), falling back
// to whichever kind remains when one is finished, retrying while a pull
// is terminal but the other kind still has data.
func (p *Provider) NextFrame() bool {
	for {
		p.mu.Lock()
		audioFinished := p.audioFinished || p.audioStream == nil
		videoFinished := p.videoFinished || p.videoStream == nil
		if audioFinished && videoFinished {
			p.currentKind = avengine.MediaKindOther
			p.mu.Unlock()
			return false
		}

		aSec, vSec := p.audioPTSSecondsLocked(), p.videoPTSSecondsLocked()
		pullAudio := !audioFinished && (aSec < vSec || videoFinished)
		p.mu.Unlock()

		var ok bool
		if pullAudio {
			ok = p.NextAudioFrame()
		} else if p.videoStream != nil {
			ok = p.NextVideoFrame()
		} else {
			ok = p.NextAudioFrame()
		}
		if ok {
			return true
		}

		p.mu.Lock()
		stillHasData := (!p.audioFinished && p.audioStream != nil) || (!p.videoFinished && p.videoStream != nil)
		p.mu.Unlock()
		if !stillHasData {
			return false
		}
	}
}

// CurrentFrame returns the most recently delivered frame (from NextFrame,
// NextAudioFrame, or NextVideoFrame), or nil if none is current.
func (p *Provider) CurrentFrame() *avengine.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.currentKind {
	case avengine.MediaKindAudio:
		return p.audioFrame
	case avengine.MediaKindVideo:
		return p.videoFrame
	default:
		return nil
	}
}

// Err returns the first unrecoverable error raised by the pipeline's
// background tasks, surfaced per spec §7's "reported on the next consumer
// call" policy.
func (p *Provider) Err() error {
	return p.pipe.Err()
}

// Close tears down the pipeline and releases the underlying byte source
// and format context. It cancels the pipeline's context and joins all
// background tasks before releasing any shared resource (spec §5
// "Cancellation and timeout").
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.StopDecoder(false)

	p.mu.Lock()
	p.releaseFrameLocked(avengine.MediaKindAudio)
	p.releaseFrameLocked(avengine.MediaKindVideo)
	p.mu.Unlock()

	p.cancel()

	if err := p.fc.Close(); err != nil {
		p.log.Warn("close format context", "error", err)
	}
	return p.src.Close()
}
