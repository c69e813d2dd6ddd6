package nostr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

var subscriptionIDCounter atomic.Int64

// Relay represents a connection to a Nostr relay.
type Relay struct {
	closeMutex sync.Mutex

	URL           string
	requestHeader http.Header

	Connection    *Connection
	Subscriptions *xsync.MapOf[int64, *Subscription]

	connectionContext       context.Context // will be canceled when the connection closes
	connectionContextCancel context.CancelCauseFunc

	noticeHandler func(string)
	okCallbacks   *xsync.MapOf[ID, func(bool, string)]

	// AssumeValid skips verifying signatures for events received from this relay
	AssumeValid bool
}

type RelayOptions struct {
	// NoticeHandler just takes notices and is expected to do something with them.
	// When not given defaults to logging the notices.
	NoticeHandler func(notice string)

	// RequestHeader sets the HTTP request header of the websocket preflight request
	RequestHeader http.Header
}

// NewRelay returns a new relay. It takes a context that, when canceled, will close the relay connection.
func NewRelay(ctx context.Context, url string, opts RelayOptions) *Relay {
	ctx, cancel := context.WithCancelCause(ctx)
	return &Relay{
		URL:                     NormalizeURL(url),
		connectionContext:       ctx,
		connectionContextCancel: cancel,
		Subscriptions:           xsync.NewMapOf[int64, *Subscription](),
		okCallbacks:             xsync.NewMapOf[ID, func(bool, string)](),
		noticeHandler:           opts.NoticeHandler,
		requestHeader:           opts.RequestHeader,
	}
}

// RelayConnect returns a relay object connected to url.
//
// ctx is only used during the connection phase. To close the connection, call r.Close().
func RelayConnect(ctx context.Context, url string, opts RelayOptions) (*Relay, error) {
	r := NewRelay(context.Background(), url, opts)
	err := r.Connect(ctx)
	return r, err
}

// String just returns the relay URL.
func (r *Relay) String() string {
	return r.URL
}

// Context is canceled when the relay is disconnected.
func (r *Relay) Context() context.Context { return r.connectionContext }

// IsConnected returns true if the connection to this relay seems to be active.
func (r *Relay) IsConnected() bool { return r.Connection != nil && !r.Connection.closed.Load() }

// Connect tries to establish a websocket connection to r.URL.
// If the context expires before the connection is complete, an error is returned.
// Once successfully connected, context expiration has no effect: call r.Close
// to close the connection.
func (r *Relay) Connect(ctx context.Context) error {
	if r.connectionContext == nil || r.Subscriptions == nil {
		return fmt.Errorf("relay must be initialized with a call to NewRelay()")
	}

	if r.URL == "" {
		return fmt.Errorf("invalid relay URL '%s'", r.URL)
	}

	if _, ok := ctx.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, 7*time.Second, errors.New("connection took too long"))
		defer cancel()
	}

	conn, err := newConnection(r.connectionContext, r.connectionContextCancel, ctx, r.URL, r.handleMessage, r.requestHeader)
	if err != nil {
		return fmt.Errorf("error opening websocket to '%s': %w", r.URL, err)
	}
	r.Connection = conn

	return nil
}

func (r *Relay) handleMessage(message string) {
	envelope, err := ParseMessage(message)
	if envelope == nil {
		Logger.Debug().Str("relay", r.URL).Err(err).Msg("unparseable message")
		return
	}

	switch env := envelope.(type) {
	case *NoticeEnvelope:
		if r.noticeHandler != nil {
			r.noticeHandler(string(*env))
		} else {
			Logger.Info().Str("relay", r.URL).Str("notice", string(*env)).Msg("NOTICE")
		}
	case *EventEnvelope:
		if env.SubscriptionID == nil {
			return
		}
		sub, ok := r.Subscriptions.Load(subIdToSerial(*env.SubscriptionID))
		if !ok {
			return
		}

		// check if the event matches the desired filter, ignore otherwise
		if !sub.Filter.Matches(env.Event) {
			Logger.Debug().Str("relay", r.URL).Stringer("filter", sub.Filter).Msg("filter does not match")
			return
		}

		// check signature, ignore invalid, except from trusted (AssumeValid) relays
		if !r.AssumeValid && !env.Event.VerifySignature() {
			Logger.Debug().Str("relay", r.URL).Stringer("id", env.Event.ID).Msg("bad signature")
			return
		}

		sub.dispatchEvent(env.Event)
	case *EOSEEnvelope:
		if sub, ok := r.Subscriptions.Load(subIdToSerial(string(*env))); ok {
			sub.dispatchEose()
		}
	case *ClosedEnvelope:
		if sub, ok := r.Subscriptions.Load(subIdToSerial(env.SubscriptionID)); ok {
			sub.handleClosed(env.Reason)
		}
	case *OKEnvelope:
		if okCallback, exist := r.okCallbacks.Load(env.EventID); exist {
			okCallback(env.OK, env.Reason)
		} else {
			Logger.Debug().Str("relay", r.URL).Stringer("id", env.EventID).Msg("unexpected OK")
		}
	}
}

// Write queues an arbitrary message to be sent to the relay.
func (r *Relay) Write(msg []byte) {
	select {
	case r.Connection.writeQueue <- writeRequest{msg: msg, answer: nil}:
	case <-r.Connection.closedNotify:
	case <-r.connectionContext.Done():
	}
}

// WriteWithError is like Write, but returns an error if the write fails (and the connection gets closed).
func (r *Relay) WriteWithError(msg []byte) error {
	ch := make(chan error, 1)
	select {
	case r.Connection.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-r.Connection.closedNotify:
		return fmt.Errorf("failed to write to %s: %w", r.URL, ErrDisconnected)
	case <-r.connectionContext.Done():
		return fmt.Errorf("failed to write to %s: %w", r.URL, context.Cause(r.connectionContext))
	}
	return <-ch
}

// Publish sends an "EVENT" command to the relay r as in NIP-01 and waits for an OK response.
func (r *Relay) Publish(ctx context.Context, event Event) error {
	if r.Connection == nil {
		return fmt.Errorf("not connected to %s", r.URL)
	}

	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		ctx, cancel = context.WithTimeoutCause(ctx, 7*time.Second, fmt.Errorf("given up waiting for an OK"))
	} else {
		// otherwise make the context cancellable so we can stop everything upon receiving an "OK"
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// listen for an OK callback
	var err error
	gotOk := false
	r.okCallbacks.Store(event.ID, func(ok bool, reason string) {
		gotOk = true
		if !ok {
			err = fmt.Errorf("msg: %s", reason)
		}
		cancel()
	})
	defer r.okCallbacks.Delete(event.ID)

	envb, _ := EventEnvelope{Event: event}.MarshalJSON()
	if err := r.WriteWithError(envb); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		// this will be called when we get an OK or when the context has been canceled
		if gotOk {
			return err
		}
		return fmt.Errorf("publish: %w", context.Cause(ctx))
	case <-r.connectionContext.Done():
		// this is caused when we lose connectivity
		return fmt.Errorf("relay: %w", context.Cause(r.connectionContext))
	}
}

// Subscribe sends a "REQ" command to the relay r as in NIP-01.
// Events are returned through the channel sub.Events.
// The subscription is closed when context ctx is cancelled ("CLOSE" in NIP-01).
func (r *Relay) Subscribe(ctx context.Context, filter Filter, label string) (*Subscription, error) {
	if r.Connection == nil {
		return nil, fmt.Errorf("not connected to %s", r.URL)
	}

	sub := r.PrepareSubscription(ctx, filter, label)
	if err := sub.Fire(); err != nil {
		return nil, fmt.Errorf("couldn't subscribe to %v at %s: %w", filter, r.URL, err)
	}

	return sub, nil
}

// PrepareSubscription creates a subscription, but doesn't fire it.
func (r *Relay) PrepareSubscription(ctx context.Context, filter Filter, label string) *Subscription {
	current := subscriptionIDCounter.Add(1)
	ctx, cancel := context.WithCancelCause(ctx)

	sub := &Subscription{
		Relay:             r,
		Context:           ctx,
		cancel:            cancel,
		counter:           current,
		id:                strconv.FormatInt(current, 10) + ":" + label,
		Events:            make(chan Event),
		EndOfStoredEvents: make(chan struct{}),
		ClosedReason:      make(chan string, 1),
		Filter:            filter,
	}

	r.Subscriptions.Store(current, sub)

	go sub.start()

	return sub
}

// Close closes the relay connection.
func (r *Relay) Close() error {
	return r.close(errors.New("Close() called"))
}

func (r *Relay) close(reason error) error {
	r.closeMutex.Lock()
	defer r.closeMutex.Unlock()

	if r.connectionContextCancel == nil {
		return fmt.Errorf("relay already closed")
	}
	r.connectionContextCancel(reason)
	r.connectionContextCancel = nil

	if r.Connection == nil {
		return fmt.Errorf("relay not connected")
	}

	return nil
}
