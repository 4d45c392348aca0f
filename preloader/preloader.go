package preloader

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marrowtide/reelcore/frameprovider"
)

// DefaultMaxPreloadCount is the default sliding-window size (spec §6.2).
const DefaultMaxPreloadCount = 3

// Options configures a Preloader's underlying FrameProviders and window
// size.
type Options struct {
	frameprovider.OpenOptions
	MaxPreloadCount int
	Log             *slog.Logger
}

func (o Options) normalized() Options {
	if o.MaxPreloadCount <= 0 {
		o.MaxPreloadCount = DefaultMaxPreloadCount
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return o
}

// entry is one playlist position: a path plus the tickets currently
// tracking it, and how many of those tickets are "kept" by the most
// recent preload pass (spec §4.7's PlayQueueItem).
type entry struct {
	path      string
	tickets   []*Ticket
	available int
}

// Preloader maintains a sliding window of already-opened, already-decoding
// FrameProviders ahead of the current playback position (spec §4.7).
type Preloader struct {
	log *slog.Logger

	producer *TicketProducer
	deleter  *TicketDeleter

	mu           sync.Mutex
	entries      []*entry
	currentIndex int
	maxPreload   int
}

// New creates a Preloader and starts its TicketProducer/TicketDeleter
// background tasks.
func New(opts Options) *Preloader {
	opts = opts.normalized()

	p := &Preloader{
		log:        opts.Log.With("component", "preloader"),
		maxPreload: opts.MaxPreloadCount,
	}
	p.producer = NewTicketProducer(opts.OpenOptions, p.log)
	p.deleter = NewTicketDeleter(p.producer, p.log)
	p.producer.Start()
	p.deleter.Start()
	return p
}

// Add appends path to the end of the play queue.
func (p *Preloader) Add(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, &entry{path: path})
	p.preloadLocked()
}

// Insert places path at index i, shifting later entries back.
func (p *Preloader) Insert(i int, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i > len(p.entries) {
		i = len(p.entries)
	}
	e := &entry{path: path}
	p.entries = append(p.entries, nil)
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = e
	p.preloadLocked()
}

// Delete removes entry i, releasing every ticket it holds.
func (p *Preloader) Delete(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.entries) {
		return
	}
	p.deleteEntryLocked(i)

	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	if len(p.entries) == 0 {
		p.currentIndex = 0
	} else if p.currentIndex >= len(p.entries) {
		// Mirrors the original's lack of index adjustment on delete: only
		// clamp when the cursor would otherwise point past the end.
		p.currentIndex = len(p.entries) - 1
	}
	p.preloadLocked()
}

func (p *Preloader) deleteEntryLocked(i int) {
	e := p.entries[i]
	for _, t := range e.tickets {
		if prov, err := p.producer.EnsureTicket(t); err == nil && prov != nil {
			prov.StopDecoder(true)
		}
	}
	for _, t := range e.tickets {
		p.deleter.Delete(t)
	}
	e.tickets = nil
}

// Size returns the number of entries in the play queue.
func (p *Preloader) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// CurrentIndex returns the index of the currently playing entry.
func (p *Preloader) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentIndex
}

// PathAt returns the path of entry i.
func (p *Preloader) PathAt(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.entries) {
		return ""
	}
	return p.entries[i].path
}

// SetMaxPreloadCount changes the sliding-window size and re-evaluates the
// preload window. Per spec §8, calling it again with the same value still
// triggers re-evaluation but never cancels an in-flight ticket.
func (p *Preloader) SetMaxPreloadCount(n int) {
	if n <= 0 {
		n = DefaultMaxPreloadCount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxPreload = n
	p.preloadLocked()
}

// MaxPreloadCount returns the current sliding-window size.
func (p *Preloader) MaxPreloadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxPreload
}

// ErrNoEntries is returned by CurrentFrameProvider when the play queue is
// empty.
var ErrNoEntries = errors.New("preloader: play queue is empty")

// CurrentFrameProvider returns the realized Provider for the currently
// playing entry, blocking until its ticket is realized. It returns the
// ticket's open error if the entry failed to open.
func (p *Preloader) CurrentFrameProvider() (*frameprovider.Provider, error) {
	p.mu.Lock()
	if len(p.entries) == 0 {
		p.mu.Unlock()
		return nil, ErrNoEntries
	}
	e := p.entries[p.currentIndex]
	if len(e.tickets) == 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("preloader: entry %d has no ticket", p.currentIndex)
	}
	t := e.tickets[0]
	p.mu.Unlock()

	return p.producer.EnsureTicket(t)
}

// NextFrame advances the current entry's Provider by one frame. When that
// Provider reports finished, its ticket is retired, the cursor advances to
// the next entry (wrapping), and the preload window is re-evaluated —
// skipping entries whose ticket failed to open (spec §4.7's failure
// model).
func (p *Preloader) NextFrame() bool {
	for {
		prov, err := p.CurrentFrameProvider()
		if err != nil {
			if !p.advance() {
				return false
			}
			continue
		}
		if prov.NextFrame() {
			return true
		}
		if !p.advance() {
			return false
		}
	}
}

// advance retires the current entry's head ticket and moves the cursor
// forward by one, wrapping around the queue. It reports whether the
// queue is non-empty after advancing.
func (p *Preloader) advance() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return false
	}

	e := p.entries[p.currentIndex]
	if len(e.tickets) > 0 {
		t := e.tickets[0]
		e.tickets = e.tickets[1:]
		p.deleter.Delete(t)
	}
	p.currentIndex = (p.currentIndex + 1) % len(p.entries)
	p.preloadLocked()
	return true
}

// preloadLocked implements spec §4.7's _preload algorithm. Callers must
// hold p.mu.
func (p *Preloader) preloadLocked() {
	if len(p.entries) == 0 {
		return
	}

	for _, e := range p.entries {
		e.available = 0
	}

	preloaded := 0
	i := p.currentIndex
	for preloaded < p.maxPreload {
		e := p.entries[i]
		e.available++
		// Per the Design Notes' resolved Open Question (see DESIGN.md):
		// when the window wraps around a shorter queue, the same entry
		// is revisited multiple times per pass and accumulates multiple
		// tickets, matching the original implementation's behavior
		// verbatim rather than capping available at 1.
		if len(e.tickets) < e.available {
			e.tickets = append(e.tickets, p.producer.CreateTicket(e.path))
		}
		preloaded++
		i = (i + 1) % len(p.entries)
	}

	for _, e := range p.entries {
		if e.available >= len(e.tickets) {
			continue
		}
		for _, t := range e.tickets[e.available:] {
			if prov, err := p.producer.EnsureTicket(t); err == nil && prov != nil {
				prov.StopDecoder(true)
			}
		}
		for _, t := range e.tickets[e.available:] {
			p.deleter.Delete(t)
		}
		e.tickets = e.tickets[:e.available]
	}
}

// Close tears down every entry's tickets and stops the background tasks,
// blocking until both have fully exited.
func (p *Preloader) Close() {
	p.mu.Lock()
	for i := range p.entries {
		p.deleteEntryLocked(i)
	}
	p.entries = nil
	p.mu.Unlock()

	p.producer.Stop(false)
	p.deleter.Stop(false)
}
