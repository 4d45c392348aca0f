// Package seeker implements the asynchronous, coalescing container-seek
// state machine of spec §4.2: Idle → Scheduled → Running → Idle, with at
// most one outstanding seek operation.
package seeker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type state int

const (
	stateIdle state = iota
	stateScheduled
	stateRunning
)

// SeekFunc performs the actual container seek, e.g.
// FormatContext.SeekFrame.
type SeekFunc func(ctx context.Context, ptsMicros int64) error

// Seeker coalesces seek requests to a single outstanding background
// operation (spec §4.2). The zero value is not usable; construct with New.
type Seeker struct {
	log  *slog.Logger
	seek SeekFunc

	mu       sync.Mutex
	state    state
	target   int64
	done     chan error
	hasError error
}

// New creates a Seeker that performs seeks by calling seek.
func New(seek SeekFunc, log *slog.Logger) *Seeker {
	if log == nil {
		log = slog.Default()
	}
	return &Seeker{
		seek:  seek,
		log:   log.With("component", "seeker"),
		state: stateIdle,
	}
}

// SetPosition stages a target position while Idle. Per spec §4.2, callers
// that want to change the target while a seek is Running must Wait first.
func (s *Seeker) SetPosition(ptsMicros int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = ptsMicros
	s.state = stateScheduled
}

// Start transitions Scheduled→Running and performs the seek on a background
// goroutine. It is a no-op if no position has been staged.
func (s *Seeker) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != stateScheduled {
		s.mu.Unlock()
		return
	}
	s.state = stateRunning
	target := s.target
	done := make(chan error, 1)
	s.done = done
	s.mu.Unlock()

	go func() {
		err := s.seek(ctx, target)
		if err != nil {
			s.log.Warn("seek failed", "pts_micros", target, "error", err)
		}

		s.mu.Lock()
		s.state = stateIdle
		s.mu.Unlock()

		done <- err
	}()
}

// Wait blocks until the outstanding seek (if any) reaches Idle, returning
// its error. It is safe to call when no seek is outstanding.
func (s *Seeker) Wait() error {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	return <-done
}

// Running reports whether a seek is currently in flight.
func (s *Seeker) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

func (s *Seeker) String() string {
	return fmt.Sprintf("Seeker{state=%d}", s.state)
}
