package avengine

import (
	"errors"
	"testing"
)

func TestRationalPTSSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    Rational
		pts  int64
		want float64
	}{
		{"audio 44.1kHz", Rational{Num: 1, Den: 44100}, 44100, 1.0},
		{"video 24fps", Rational{Num: 1, Den: 24}, 48, 2.0},
		{"zero denominator", Rational{Num: 1, Den: 0}, 100, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.PTSSeconds(tt.pts); got != tt.want {
				t.Fatalf("PTSSeconds(%d) = %v, want %v", tt.pts, got, tt.want)
			}
		})
	}
}

func TestFramePTSSecondsDelegatesToTimeBase(t *testing.T) {
	t.Parallel()

	f := &Frame{PTS: 120, TimeBase: Rational{Num: 1, Den: 24}}
	if got, want := f.PTSSeconds(), 5.0; got != want {
		t.Fatalf("PTSSeconds = %v, want %v", got, want)
	}
}

func TestReleasePacketAndFrameAreNilSafe(t *testing.T) {
	t.Parallel()

	ReleasePacket(nil)
	ReleaseFrame(nil)
}

func TestMediaKindString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind MediaKind
		want string
	}{
		{MediaKindAudio, "audio"},
		{MediaKindVideo, "video"},
		{MediaKindOther, "other"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Fatalf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	errs := []error{ErrUnsupportedFormat, ErrNoStream, ErrCodecUnavailable, ErrAgain}
	for i, a := range errs {
		for j, b := range errs {
			if i == j {
				continue
			}
			if errors.Is(a, b) {
				t.Fatalf("sentinel %d unexpectedly matches sentinel %d", i, j)
			}
		}
	}
}
