//go:build !cgo

package avengine

import (
	"context"
	"errors"
)

// ffEngine is the production engine's identity without the go-astiav
// binding available. NewFFmpegEngine still resolves, so callers that
// default to it (e.g. frameprovider.OpenOptions.normalized) compile and
// link without cgo; only opening a real container requires a cgo build.
type ffEngine struct{}

// NewFFmpegEngine returns an Engine whose OpenInput always fails with a
// plain "built without cgo" error (not ErrUnsupportedFormat): go-astiav
// requires cgo, so no container can be opened in this build.
func NewFFmpegEngine() Engine {
	return &ffEngine{}
}

func (e *ffEngine) OpenInput(_ context.Context, _ ReadSeeker) (FormatContext, error) {
	return nil, errors.New("avengine: ffmpeg engine unavailable: built without cgo")
}
