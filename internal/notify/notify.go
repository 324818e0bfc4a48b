// Package notify delivers the "pending asynchronous notifications" step of
// the commit and abort sequences (spec §4.1 commit step 8, abort step 6).
// Reduced from the teacher's notification.Dispatcher to the one operation
// this core needs: enqueue during a transaction, flush (or discard) at its
// boundary.
package notify

import (
	"context"
	"log"
	"sync"
)

// Notification is a single pending asynchronous notification, named by
// channel the way a LISTEN/NOTIFY consumer would subscribe.
type Notification struct {
	Channel string
	Payload string

	// local is true for a notification enqueued by the transaction
	// currently driving this Dispatcher, false for one delivered on
	// behalf of another worker. Discard only drops the former: abort
	// must still deliver the latter (spec §4.1 abort step 6).
	local bool
}

// Dispatcher delivers notifications in FIFO enqueue order at the point the
// transaction state machine calls Flush (see DESIGN.md's Open-Question
// decision on commit-time ordering).
type Dispatcher struct {
	mu      sync.Mutex
	pending []Notification
	deliver func(context.Context, Notification) error
}

// NewDispatcher returns a Dispatcher that delivers notifications with
// deliver. A nil deliver logs each notification instead, matching the
// teacher's log-on-handler-error fallback.
func NewDispatcher(deliver func(context.Context, Notification) error) *Dispatcher {
	return &Dispatcher{deliver: deliver}
}

// Enqueue records n, produced by the transaction currently driving this
// Dispatcher, for delivery at the next Flush — or discarding, should that
// transaction instead abort.
func (d *Dispatcher) Enqueue(n Notification) {
	n.local = true
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, n)
}

// EnqueueRemote records n, delivered on behalf of another worker's
// committed transaction, for delivery at the next Flush. Unlike a local
// Enqueue, Discard never drops it: it did not originate with whichever
// transaction is currently running against this Dispatcher.
func (d *Dispatcher) EnqueueRemote(n Notification) {
	n.local = false
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, n)
}

// Pending reports how many notifications are queued.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush delivers every pending notification in FIFO order and clears the
// queue. Called after a transaction's commit-time invalidation broadcast
// (spec §4.1 commit step 8) or, for notifications that arrived from other
// workers mid-transaction, on abort (spec §4.1 abort step 6) — in both
// cases delivery failures are logged, not propagated, so one bad listener
// cannot fail the transaction that already committed or aborted.
func (d *Dispatcher) Flush(ctx context.Context) {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	deliver := d.deliver
	d.mu.Unlock()

	for _, n := range pending {
		if deliver == nil {
			log.Printf("notify: %s: %s", n.Channel, n.Payload)
			continue
		}
		if err := deliver(ctx, n); err != nil {
			log.Printf("notify: delivery to %s failed: %v", n.Channel, err)
		}
	}
}

// Discard drops every pending notification enqueued locally, leaving any
// enqueued on behalf of another worker (via EnqueueRemote) queued for the
// next Flush. Called when the current transaction aborts: its own
// notifications must not be delivered, but ones that arrived from other
// workers mid-transaction still must be (spec §4.1 abort step 6).
func (d *Dispatcher) Discard() {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.pending[:0]
	for _, n := range d.pending {
		if !n.local {
			kept = append(kept, n)
		}
	}
	d.pending = kept
}
