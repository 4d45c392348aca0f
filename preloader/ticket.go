// Package preloader implements the playlist preloader of spec §4.7: a
// sliding window of already-opened, already-decoding pipelines ahead of
// the current playback position, with asynchronous creation and deletion
// so that neither stalls the consumer.
package preloader

import "github.com/marrowtide/reelcore/frameprovider"

// Ticket is a placeholder for a not-yet-constructed Provider that becomes
// realized asynchronously. Unlike the original implementation's
// unsynchronized pointer read, publication happens by closing ready
// exactly once after provider/err are set, so EnsureTicket's happens-before
// relationship with the close is enough to make the read safe without a
// lock (spec §9 Design Notes).
type Ticket struct {
	Path string

	ready    chan struct{}
	provider *frameprovider.Provider
	err      error
}

func newTicket(path string) *Ticket {
	return &Ticket{Path: path, ready: make(chan struct{})}
}

// publish sets the ticket's outcome and unblocks every waiter. It must be
// called at most once per ticket.
func (t *Ticket) publish(p *frameprovider.Provider, err error) {
	t.provider = p
	t.err = err
	close(t.ready)
}

// wait blocks until the ticket is realized and returns its outcome. A
// non-nil error (surfaced from frameprovider.Open) means the ticket has no
// provider; callers must treat that as "skip this ticket", not retry.
func (t *Ticket) wait() (*frameprovider.Provider, error) {
	<-t.ready
	return t.provider, t.err
}
