package preloader

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/marrowtide/reelcore/frameprovider"
)

// ErrStopped is published to any ticket still queued when the producer is
// stopped before reaching it.
var ErrStopped = errors.New("preloader: ticket producer stopped before ticket was realized")

// TicketProducer is the single-threaded background task of spec §4.7 that
// fills tickets in order: it opens a FrameProvider for each ticket's path
// and starts its decoder asynchronously, so construction — which
// blocks on a container probe — runs off the caller's goroutine. A caller
// blocks only when it calls EnsureTicket on a ticket not yet realized;
// the Preloader does that, while holding its own mutex, for tickets it
// stops or trims from the window.
type TicketProducer struct {
	log  *slog.Logger
	opts frameprovider.OpenOptions

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []*Ticket
	interrupted bool

	wg sync.WaitGroup
}

// NewTicketProducer creates a producer that opens every ticket's
// FrameProvider with opts.
func NewTicketProducer(opts frameprovider.OpenOptions, log *slog.Logger) *TicketProducer {
	if log == nil {
		log = slog.Default()
	}
	tp := &TicketProducer{
		log:  log.With("component", "ticket_producer"),
		opts: opts,
	}
	tp.cond = sync.NewCond(&tp.mu)
	return tp
}

// Start launches the background fill loop.
func (tp *TicketProducer) Start() {
	tp.wg.Add(1)
	go tp.run()
}

func (tp *TicketProducer) run() {
	defer tp.wg.Done()

	tp.mu.Lock()
	defer tp.mu.Unlock()
	for !tp.interrupted {
		for len(tp.queue) > 0 {
			t := tp.queue[0]
			tp.queue = tp.queue[1:]
			tp.mu.Unlock()

			p, err := frameprovider.Open(t.Path, tp.opts)
			if err != nil {
				tp.log.Warn("failed to open playlist entry", "path", t.Path, "error", err)
			} else if err = p.StartDecoder(true); err != nil {
				tp.log.Warn("failed to start decoder for playlist entry", "path", t.Path, "error", err)
			}
			t.publish(p, err)

			tp.mu.Lock()
		}
		tp.cond.Wait()
	}
}

// CreateTicket enqueues a new ticket for path and returns it immediately;
// the ticket is realized asynchronously by the background loop.
func (tp *TicketProducer) CreateTicket(path string) *Ticket {
	t := newTicket(path)
	tp.mu.Lock()
	tp.queue = append(tp.queue, t)
	tp.mu.Unlock()
	tp.cond.Signal()
	return t
}

// EnsureTicket blocks until t is realized and returns its Provider, or the
// error recorded if opening failed.
func (tp *TicketProducer) EnsureTicket(t *Ticket) (*frameprovider.Provider, error) {
	return t.wait()
}

// Stop requests the fill loop to exit and publishes ErrStopped to every
// still-queued ticket, which never gets a Provider. If async is false it
// also blocks until the loop has exited.
func (tp *TicketProducer) Stop(async bool) {
	tp.mu.Lock()
	tp.interrupted = true
	pending := tp.queue
	tp.queue = nil
	tp.mu.Unlock()
	tp.cond.Broadcast()

	for _, t := range pending {
		t.publish(nil, ErrStopped)
	}

	if async {
		return
	}
	tp.wg.Wait()
}
