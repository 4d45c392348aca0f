// Package bytesource implements the thread-safe, random-access local-file
// reader that backs the external demuxer's custom I/O contract (spec §4.1).
package bytesource

import (
	"fmt"
	"os"
	"sync"
)

// Whence selects the seek origin, mirroring the three standard values the
// demuxer's custom-I/O seek callback may request. Any other bits (notably a
// "force" flag some demuxers set) are masked off before reaching Source.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Source is a mutex-serialized random-access reader over a local file. The
// external demuxer issues reads and seeks from its own thread, so every
// operation is guarded by one mutex (spec §4.1: "All operations are
// serialized by an internal mutex").
type Source struct {
	mu   sync.Mutex
	file *os.File
	size int64
}

// Open opens path for reading and stats it once up front so Size never
// touches the filesystem again.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bytesource: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bytesource: stat %s: %w", path, err)
	}
	return &Source{file: f, size: info.Size()}, nil
}

// Read fills buf, returning io.EOF via the standard os.File semantics at
// end-of-file (the avengine adapter translates that to the demuxer's
// expected EOF/negative-error-code contract).
func (s *Source) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Read(buf)
}

// Seek repositions the read cursor per whence and returns the new absolute
// offset.
func (s *Source) Seek(offset int64, whence Whence) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var osWhence int
	switch whence {
	case SeekSet:
		osWhence = 0
	case SeekCur:
		osWhence = 1
	case SeekEnd:
		osWhence = 2
	default:
		return 0, fmt.Errorf("bytesource: invalid whence %d", whence)
	}
	return s.file.Seek(offset, osWhence)
}

// Size returns the total byte length of the file without moving the cursor,
// matching the demuxer's SIZE whence query (spec §4.1).
func (s *Source) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, nil
}

// Close releases the underlying file handle.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
