package preloader

import (
	"log/slog"
	"sync"
)

// TicketDeleter is the single-threaded background task of spec §4.7 that
// tears down realized Providers: it waits for each queued ticket to be
// realized (ensure_ticket), then closes its Provider, if any. This keeps
// FrameProvider destruction — which blocks joining three tasks — off the
// consumer's path.
type TicketDeleter struct {
	log      *slog.Logger
	producer *TicketProducer

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []*Ticket
	interrupted bool

	wg sync.WaitGroup
}

// NewTicketDeleter creates a deleter that ensures tickets via producer
// before releasing them.
func NewTicketDeleter(producer *TicketProducer, log *slog.Logger) *TicketDeleter {
	if log == nil {
		log = slog.Default()
	}
	td := &TicketDeleter{
		log:      log.With("component", "ticket_deleter"),
		producer: producer,
	}
	td.cond = sync.NewCond(&td.mu)
	return td
}

// Start launches the background deletion loop.
func (td *TicketDeleter) Start() {
	td.wg.Add(1)
	go td.run()
}

func (td *TicketDeleter) run() {
	defer td.wg.Done()

	td.mu.Lock()
	defer td.mu.Unlock()
	for !td.interrupted {
		for len(td.queue) > 0 {
			t := td.queue[0]
			td.queue = td.queue[1:]
			td.mu.Unlock()

			td.release(t)

			td.mu.Lock()
		}
		td.cond.Wait()
	}
}

func (td *TicketDeleter) release(t *Ticket) {
	p, err := td.producer.EnsureTicket(t)
	if err != nil || p == nil {
		return
	}
	if cerr := p.Close(); cerr != nil {
		td.log.Warn("close provider failed", "path", t.Path, "error", cerr)
	}
}

// Delete enqueues t for asynchronous release.
func (td *TicketDeleter) Delete(t *Ticket) {
	td.mu.Lock()
	td.queue = append(td.queue, t)
	td.mu.Unlock()
	td.cond.Signal()
}

// Stop requests the deletion loop to exit. If async is false it blocks
// until the loop exits and every still-queued ticket has been released
// synchronously.
func (td *TicketDeleter) Stop(async bool) {
	td.mu.Lock()
	td.interrupted = true
	pending := td.queue
	td.queue = nil
	td.mu.Unlock()
	td.cond.Broadcast()

	if async {
		return
	}
	td.wg.Wait()
	for _, t := range pending {
		td.release(t)
	}
}
