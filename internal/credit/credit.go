// Package credit implements the byte-credit flow control between a client,
// which grants credit, and a server, which spends it on file chunks.
package credit

import (
	"errors"
	"fmt"
)

const (
	// Slice is the granularity of every grant.
	Slice = 1_000_000

	// Minimum is the credit a client keeps outstanding. Holding more than
	// four slices keeps several chunks in flight.
	Minimum = 4*Slice + 1
)

// ErrInsufficient is returned by Spend when the amount exceeds the credit.
var ErrInsufficient = errors.New("credit: insufficient")

// Window tracks the credit a client has outstanding with one server.
type Window struct {
	credit int64
}

// Credit returns the outstanding credit.
func (w *Window) Credit() int64 { return w.credit }

// Consume records n bytes received.
func (w *Window) Consume(n int) {
	w.credit -= int64(n)
}

// Refill tops the window up to at least Minimum in whole slices and returns
// the amount added, which is zero when no grant is needed.
func (w *Window) Refill() int64 {
	var grant int64
	for w.credit+grant < Minimum {
		grant += Slice
	}
	w.credit += grant
	return grant
}

// Reset forgets all outstanding credit, as after a reconnect.
func (w *Window) Reset() { w.credit = 0 }

// Ledger tracks the credit a server may spend on one client.
type Ledger struct {
	available int64
}

// Grant adds n bytes of credit.
func (l *Ledger) Grant(n uint64) {
	l.available += int64(n)
}

// Available returns the credit left.
func (l *Ledger) Available() int64 { return l.available }

// Fits reports whether n bytes can be sent.
func (l *Ledger) Fits(n int64) bool { return n <= l.available }

// Spend deducts n bytes.
func (l *Ledger) Spend(n int64) error {
	if n > l.available {
		return fmt.Errorf("spend %d of %d: %w", n, l.available, ErrInsufficient)
	}
	l.available -= n
	return nil
}
