package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/marrowtide/reelcore/avengine"
)

func buildPipeline(t *testing.T, script avengine.FakeEngineScript) (*PacketProducer, *FrameDecoder, func()) {
	t.Helper()

	eng := avengine.NewFakeEngine(script)
	fc, err := eng.OpenInput(context.Background(), nil)
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}

	var streamIndices []int
	decoders := make(map[int]avengine.Decoder)
	for _, s := range fc.Streams() {
		streamIndices = append(streamIndices, s.Index)
		dec, err := fc.OpenDecoder(s, 1)
		if err != nil {
			t.Fatalf("OpenDecoder(%d): %v", s.Index, err)
		}
		decoders[s.Index] = dec
	}

	producer := NewPacketProducer(fc, streamIndices, 4, nil)
	decoder := NewFrameDecoder(producer, decoders, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	producer.Start(ctx)
	decoder.Start(ctx)

	cleanup := func() {
		decoder.Stop()
		producer.Stop()
		cancel()
		producer.Join()
		decoder.Join()
	}
	return producer, decoder, cleanup
}

func TestFrameDecoderOrdersFramesPerStream(t *testing.T) {
	t.Parallel()

	script := avengine.FakeEngineScript{
		Streams: []avengine.StreamInfo{
			{Index: 0, Kind: avengine.MediaKindAudio},
			{Index: 1, Kind: avengine.MediaKindVideo},
		},
		Packets: []avengine.FakePacketSpec{
			{StreamIndex: 0, PTS: 0},
			{StreamIndex: 1, PTS: 0},
			{StreamIndex: 0, PTS: 10},
			{StreamIndex: 1, PTS: 33},
			{StreamIndex: 0, PTS: 20},
		},
	}

	_, decoder, cleanup := buildPipeline(t, script)
	defer cleanup()

	wantAudio := []int64{0, 10, 20}
	for _, want := range wantAudio {
		f, err := decoder.GetFrame(0)
		if err != nil {
			t.Fatalf("GetFrame(audio): %v", err)
		}
		if f.PTS != want {
			t.Fatalf("audio pts = %d, want %d", f.PTS, want)
		}
		avengine.ReleaseFrame(f)
	}
	if _, err := decoder.GetFrame(0); err != io.EOF {
		t.Fatalf("audio GetFrame after last frame = %v, want io.EOF", err)
	}

	wantVideo := []int64{0, 33}
	for _, want := range wantVideo {
		f, err := decoder.GetFrame(1)
		if err != nil {
			t.Fatalf("GetFrame(video): %v", err)
		}
		if f.PTS != want {
			t.Fatalf("video pts = %d, want %d", f.PTS, want)
		}
		avengine.ReleaseFrame(f)
	}
	if _, err := decoder.GetFrame(1); err != io.EOF {
		t.Fatalf("video GetFrame after last frame = %v, want io.EOF", err)
	}
}

func TestFrameDecoderSurvivesSendEagain(t *testing.T) {
	t.Parallel()

	script := avengine.FakeEngineScript{
		Streams: []avengine.StreamInfo{{Index: 0, Kind: avengine.MediaKindVideo}},
		Packets: []avengine.FakePacketSpec{
			{StreamIndex: 0, PTS: 0},
			{StreamIndex: 0, PTS: 1},
		},
		SendEagainAt: map[int][]int{0: {0}},
	}

	_, decoder, cleanup := buildPipeline(t, script)
	defer cleanup()

	f, err := decoder.GetFrame(0)
	if err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	if f.PTS != 0 {
		t.Fatalf("pts = %d, want 0", f.PTS)
	}
	avengine.ReleaseFrame(f)
}

func TestPacketCountersBalanceAfterDrain(t *testing.T) {
	t.Parallel()

	script := avengine.FakeEngineScript{
		Streams: []avengine.StreamInfo{{Index: 0, Kind: avengine.MediaKindAudio}},
		Packets: []avengine.FakePacketSpec{
			{StreamIndex: 0, PTS: 0},
			{StreamIndex: 0, PTS: 1},
			{StreamIndex: 0, PTS: 2},
		},
	}

	eng := avengine.NewFakeEngine(script)
	fc, _ := eng.OpenInput(context.Background(), nil)
	dec, _ := fc.OpenDecoder(fc.Streams()[0], 1)

	producer := NewPacketProducer(fc, []int{0}, 8, nil)
	frameDecoder := NewFrameDecoder(producer, map[int]avengine.Decoder{0: dec}, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	producer.Start(ctx)
	frameDecoder.Start(ctx)

	for i := 0; i < 3; i++ {
		f, err := frameDecoder.GetFrame(0)
		if err != nil {
			t.Fatalf("GetFrame: %v", err)
		}
		avengine.ReleaseFrame(f)
	}
	if _, err := frameDecoder.GetFrame(0); err != io.EOF {
		t.Fatalf("final GetFrame = %v, want io.EOF", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		allocd, released := avengine.FakeCounters(fc)
		if allocd == released {
			break
		}
		time.Sleep(time.Millisecond)
	}
	allocd, released := avengine.FakeCounters(fc)
	if allocd != released {
		t.Fatalf("packets allocated = %d, released = %d, want equal", allocd, released)
	}

	frameDecoder.Stop()
	producer.Stop()
	producer.Join()
	frameDecoder.Join()
}
