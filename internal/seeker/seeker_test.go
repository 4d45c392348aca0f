package seeker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartRunsStagedSeekAndReturnsToIdle(t *testing.T) {
	t.Parallel()

	var calledWith atomic.Int64
	s := New(func(_ context.Context, ptsMicros int64) error {
		calledWith.Store(ptsMicros)
		return nil
	}, nil)

	s.SetPosition(5_000_000)
	s.Start(context.Background())
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if got := calledWith.Load(); got != 5_000_000 {
		t.Fatalf("seek called with %d, want 5000000", got)
	}
	if s.Running() {
		t.Fatal("Running() = true after Wait, want false")
	}
}

func TestStartWithoutSetPositionIsNoOp(t *testing.T) {
	t.Parallel()

	called := false
	s := New(func(_ context.Context, _ int64) error {
		called = true
		return nil
	}, nil)

	s.Start(context.Background())
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if called {
		t.Fatal("seek func invoked despite no staged position")
	}
}

func TestWaitPropagatesSeekError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	s := New(func(_ context.Context, _ int64) error {
		return wantErr
	}, nil)

	s.SetPosition(1)
	s.Start(context.Background())
	if err := s.Wait(); !errors.Is(err, wantErr) {
		t.Fatalf("Wait = %v, want %v", err, wantErr)
	}
}

func TestCoalescesRepeatedSetPositionBeforeStart(t *testing.T) {
	t.Parallel()

	var calledWith atomic.Int64
	var calls atomic.Int64
	s := New(func(_ context.Context, ptsMicros int64) error {
		calls.Add(1)
		calledWith.Store(ptsMicros)
		return nil
	}, nil)

	s.SetPosition(1)
	s.SetPosition(2)
	s.SetPosition(3)
	s.Start(context.Background())
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("seek func called %d times, want 1", got)
	}
	if got := calledWith.Load(); got != 3 {
		t.Fatalf("seek called with %d, want 3 (last staged target)", got)
	}
}

func TestRunningTrueWhileSeekInFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	s := New(func(_ context.Context, _ int64) error {
		<-release
		return nil
	}, nil)

	s.SetPosition(1)
	s.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for !s.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !s.Running() {
		t.Fatal("Running() never became true")
	}

	close(release)
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
