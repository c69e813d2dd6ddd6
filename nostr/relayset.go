package nostr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// RelaySet is a group of relay connections owned by a single operation.
//
// It is created for one lookup or one publish and closed right after, so no
// connection state is shared between unrelated requests.
type RelaySet struct {
	URLs []string

	ctx    context.Context
	cancel context.CancelCauseFunc
	opts   RelayOptions

	relays *xsync.MapOf[string, *Relay]
	locks  *xsync.MapOf[string, *sync.Mutex]
}

// PublishResult represents the result of publishing an event to a relay.
type PublishResult struct {
	Error    error
	RelayURL string
}

// NewRelaySet doesn't connect to anything, connections are opened on first use.
func NewRelaySet(urls []string, opts RelayOptions) *RelaySet {
	ctx, cancel := context.WithCancelCause(context.Background())

	normalized := make([]string, 0, len(urls))
	for _, url := range urls {
		nm := NormalizeURL(url)
		if nm == "" || !IsValidRelayURL(nm) {
			continue
		}
		if !contains(normalized, nm) {
			normalized = append(normalized, nm)
		}
	}

	return &RelaySet{
		URLs:   normalized,
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
		relays: xsync.NewMapOf[string, *Relay](),
		locks:  xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// EnsureRelay returns a connected relay, connecting to it if necessary.
func (rs *RelaySet) EnsureRelay(ctx context.Context, url string) (*Relay, error) {
	if err := context.Cause(rs.ctx); err != nil {
		return nil, fmt.Errorf("relay set: %w", err)
	}

	nm := NormalizeURL(url)
	lock, _ := rs.locks.LoadOrStore(nm, &sync.Mutex{})
	lock.Lock()
	defer lock.Unlock()

	if relay, ok := rs.relays.Load(nm); ok && relay.IsConnected() {
		return relay, nil
	}

	relay := NewRelay(rs.ctx, nm, rs.opts)
	if err := relay.Connect(ctx); err != nil {
		relay.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	rs.relays.Store(nm, relay)
	return relay, nil
}

// PublishMany publishes an event to all relays in the set concurrently and
// emits one result per relay as they arrive. The channel is closed when every
// relay has answered or failed.
func (rs *RelaySet) PublishMany(ctx context.Context, evt Event) chan PublishResult {
	ch := make(chan PublishResult, len(rs.URLs))

	wg := sync.WaitGroup{}
	wg.Add(len(rs.URLs))
	for _, url := range rs.URLs {
		go func() {
			defer wg.Done()

			relay, err := rs.EnsureRelay(ctx, url)
			if err != nil {
				ch <- PublishResult{err, url}
				return
			}

			ch <- PublishResult{relay.Publish(ctx, evt), url}
		}()
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	return ch
}

// FetchMany opens a subscription with the given filter on every relay of the
// set and emits deduplicated events. The channel is closed once all relays
// have sent an EOSE, a CLOSED, failed to connect, or when ctx is done.
func (rs *RelaySet) FetchMany(ctx context.Context, filter Filter, label string) chan RelayEvent {
	ctx, cancel := context.WithCancelCause(ctx)

	seenAlready := xsync.NewMapOf[ID, struct{}]()
	events := make(chan RelayEvent)

	wg := sync.WaitGroup{}
	wg.Add(len(rs.URLs))

	go func() {
		// this will happen when all subscriptions get an eose (or when they die)
		wg.Wait()
		cancel(errors.New("all subscriptions ended"))
		close(events)
	}()

	for _, url := range rs.URLs {
		go func() {
			defer wg.Done()

			relay, err := rs.EnsureRelay(ctx, url)
			if err != nil {
				Logger.Debug().Str("relay", url).Stringer("filter", filter).Err(err).Msg("error connecting")
				return
			}

			sub, err := relay.Subscribe(ctx, filter, label)
			if err != nil {
				Logger.Debug().Str("relay", url).Stringer("filter", filter).Err(err).Msg("error subscribing")
				return
			}
			defer sub.Unsub()

			for {
				select {
				case <-ctx.Done():
					return
				case <-sub.EndOfStoredEvents:
					return
				case reason := <-sub.ClosedReason:
					Logger.Debug().Str("relay", url).Str("reason", reason).Msg("CLOSED")
					return
				case <-sub.Context.Done():
					return
				case evt := <-sub.Events:
					if _, exists := seenAlready.LoadOrStore(evt.ID, struct{}{}); exists {
						continue
					}

					select {
					case events <- RelayEvent{Event: evt, Relay: relay}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	return events
}

// Close disconnects every relay that was opened by this set. The set can't be used afterwards.
func (rs *RelaySet) Close() {
	rs.cancel(errors.New("relay set closed"))
	rs.relays.Range(func(_ string, relay *Relay) bool {
		relay.Close()
		return true
	})
}

// Connected lists the relays that are currently connected, mostly useful for tests and logs.
func (rs *RelaySet) Connected() []string {
	urls := make([]string, 0, rs.relays.Size())
	rs.relays.Range(func(url string, relay *Relay) bool {
		if relay.IsConnected() {
			urls = append(urls, url)
		}
		return true
	})
	return urls
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
