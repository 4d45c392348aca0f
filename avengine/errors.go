package avengine

import "errors"

// Sentinel error kinds, matching the taxonomy of spec §7. Callers compare
// with errors.Is; wrapped context is added with fmt.Errorf("%w", ...) at the
// call site, per the teacher's convention (internal/moq/errors.go).
var (
	// ErrUnsupportedFormat means probing the input found no matching
	// container format.
	ErrUnsupportedFormat = errors.New("avengine: unsupported input format")

	// ErrNoStream means neither an audio nor a video stream was selected.
	ErrNoStream = errors.New("avengine: no audio or video stream selected")

	// ErrCodecUnavailable means no decoder implementation exists for a
	// selected stream's codec.
	ErrCodecUnavailable = errors.New("avengine: no decoder available for stream")

	// ErrAgain mirrors AVERROR(EAGAIN): the operation should be retried,
	// typically after draining the other side of a send/receive pair.
	ErrAgain = errors.New("avengine: resource temporarily unavailable")
)
