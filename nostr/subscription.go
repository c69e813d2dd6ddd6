package nostr

import (
	"context"
	"errors"
	"sync/atomic"
)

// Subscription is a REQ sent to a single relay.
type Subscription struct {
	counter int64
	id      string

	Relay   *Relay
	Filter  Filter
	Context context.Context
	cancel  context.CancelCauseFunc

	// Events receives every event matching the filter, signature-checked.
	Events chan Event

	// EndOfStoredEvents is closed when the relay sends an EOSE.
	EndOfStoredEvents chan struct{}

	// ClosedReason receives the reason when the relay sends a CLOSED.
	ClosedReason chan string

	live  atomic.Bool
	eosed atomic.Bool
}

// GetID returns the subscription id as sent to the relay.
func (sub *Subscription) GetID() string { return sub.id }

func (sub *Subscription) start() {
	<-sub.Context.Done()

	// the subscription ends once the context is canceled (if not already)
	sub.unsub(errors.New("context done on start()"))
}

func (sub *Subscription) dispatchEvent(evt Event) {
	select {
	case sub.Events <- evt:
	case <-sub.Context.Done():
	}
}

func (sub *Subscription) dispatchEose() {
	if sub.eosed.CompareAndSwap(false, true) {
		close(sub.EndOfStoredEvents)
	}
}

func (sub *Subscription) handleClosed(reason string) {
	select {
	case sub.ClosedReason <- reason:
	default:
	}
	sub.live.Store(false) // the relay has already closed it, no need to send a CLOSE
	sub.cancel(errors.New("CLOSED received"))
}

// Unsub closes the subscription, sending "CLOSE" to relay as in NIP-01.
func (sub *Subscription) Unsub() {
	sub.unsub(errors.New("Unsub() called"))
}

func (sub *Subscription) unsub(err error) {
	sub.cancel(err)

	// naturally the relay does not need to be told about an already-closed connection
	if sub.live.CompareAndSwap(true, false) && sub.Relay.IsConnected() {
		closeb, _ := CloseEnvelope(sub.id).MarshalJSON()
		sub.Relay.Write(closeb)
	}

	sub.Relay.Subscriptions.Delete(sub.counter)
}

// Fire sends the "REQ" command to the relay.
func (sub *Subscription) Fire() error {
	reqb, _ := ReqEnvelope{SubscriptionID: sub.id, Filters: []Filter{sub.Filter}}.MarshalJSON()

	sub.live.Store(true)
	if err := sub.Relay.WriteWithError(reqb); err != nil {
		sub.live.Store(false)
		sub.cancel(err)
		return err
	}

	return nil
}
