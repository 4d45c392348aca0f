// Command reelplay drains a playlist of local media files end to end,
// exercising preloader.Preloader the way the original implementation's
// main.cpp exercises AVProvider.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/marrowtide/reelcore/frameprovider"
	"github.com/marrowtide/reelcore/preloader"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var (
		enableAudio = pflag.Bool("audio", true, "decode the audio stream")
		enableVideo = pflag.Bool("video", true, "decode the video stream")
		preload     = pflag.Int("preload", preloader.DefaultMaxPreloadCount, "number of playlist entries to keep preloaded")
		loop        = pflag.Bool("loop", false, "restart the playlist after the last entry finishes")
	)
	pflag.Parse()

	paths := pflag.Args()
	if len(paths) == 0 {
		slog.Error("usage: reelplay [flags] file [file...]")
		os.Exit(2)
	}

	slog.Info("reelplay starting",
		"version", version,
		"entries", len(paths),
		"preload", *preload,
		"audio", *enableAudio,
		"video", *enableVideo,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	pl := preloader.New(preloader.Options{
		OpenOptions: frameprovider.OpenOptions{
			EnableAudio: *enableAudio,
			EnableVideo: *enableVideo,
		},
		MaxPreloadCount: *preload,
	})
	defer pl.Close()

	for _, path := range paths {
		pl.Add(path)
	}

	g.Go(func() error {
		return drain(ctx, pl, *loop)
	})

	if err := g.Wait(); err != nil {
		slog.Error("reelplay exited with error", "error", err)
		os.Exit(1)
	}
}

// drain repeatedly calls pl.NextFrame, logging progress, until the
// playlist is exhausted, the context is cancelled, or loop restarts it
// from the beginning (used for soak-testing the preloader under a long
// run without re-invoking the process).
func drain(ctx context.Context, pl *preloader.Preloader, loop bool) error {
	start := time.Now()
	var frames, entries int64
	lastIndex := -1

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !pl.NextFrame() {
			if !loop || pl.Size() == 0 {
				slog.Info("playlist finished",
					"frames", frames,
					"entries_played", entries,
					"elapsed", time.Since(start),
				)
				return nil
			}
			slog.Info("playlist looping")
			lastIndex = -1
			continue
		}

		frames++
		if idx := pl.CurrentIndex(); idx != lastIndex {
			entries++
			lastIndex = idx
			slog.Info("now playing", "index", idx, "path", pl.PathAt(idx))
		}
	}
}
