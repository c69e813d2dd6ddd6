// Package relaytest runs in-process relays speaking just enough NIP-01 for
// tests: stored events are served to REQs followed by an EOSE, and published
// events are stored and answered with an OK.
package relaytest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/highfives-app/highfives/nostr"
	"golang.org/x/net/websocket"
)

// Relay is a fake relay listening on a loopback address.
type Relay struct {
	server *httptest.Server

	// URL is the ws:// address of the relay.
	URL string

	// Reject makes the relay answer every EVENT with an OK false carrying this reason.
	Reject string

	// Silent makes the relay swallow every message without ever answering.
	Silent bool

	// Delay is applied before answering anything.
	Delay time.Duration

	mu        sync.Mutex
	events    []nostr.Event
	published []nostr.Event

	requests atomic.Int32
}

// New starts a relay that already knows the given events.
func New(events ...nostr.Event) *Relay {
	r := &Relay{events: events}
	r.server = httptest.NewServer(&websocket.Server{
		Handshake: anyOriginHandshake,
		Handler:   r.handle,
	})
	r.URL = nostr.NormalizeURL(r.server.URL)
	return r
}

// Close shuts the relay down, dropping every connection.
func (r *Relay) Close() {
	r.server.CloseClientConnections()
	r.server.Close()
}

// Published returns the events received through EVENT messages.
func (r *Relay) Published() []nostr.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]nostr.Event(nil), r.published...)
}

// Requests counts the REQ messages received so far.
func (r *Relay) Requests() int { return int(r.requests.Load()) }

// anyOriginHandshake skips the origin check, nostr clients send no origin.
func anyOriginHandshake(conf *websocket.Config, req *http.Request) error {
	return nil
}

func (r *Relay) handle(conn *websocket.Conn) {
	defer conn.Close()

	for {
		var msg string
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			return
		}

		r.mu.Lock()
		silent, delay, reject := r.Silent, r.Delay, r.Reject
		r.mu.Unlock()

		if silent {
			continue
		}
		if delay > 0 {
			time.Sleep(delay)
		}

		envelope, err := nostr.ParseMessage(msg)
		if err != nil {
			notice, _ := nostr.NoticeEnvelope("error: " + err.Error()).MarshalJSON()
			websocket.Message.Send(conn, string(notice))
			continue
		}

		switch env := envelope.(type) {
		case *nostr.EventEnvelope:
			ok := nostr.OKEnvelope{EventID: env.Event.ID, OK: true}
			if reject != "" {
				ok.OK = false
				ok.Reason = reject
			} else if !env.Event.VerifySignature() {
				ok.OK = false
				ok.Reason = "invalid: bad signature"
			} else {
				r.mu.Lock()
				r.published = append(r.published, env.Event)
				r.events = append(r.events, env.Event)
				r.mu.Unlock()
			}

			okb, _ := ok.MarshalJSON()
			if err := websocket.Message.Send(conn, string(okb)); err != nil {
				return
			}
		case *nostr.ReqEnvelope:
			r.requests.Add(1)

			r.mu.Lock()
			stored := append([]nostr.Event(nil), r.events...)
			r.mu.Unlock()

			subID := env.SubscriptionID
			for _, evt := range stored {
				for _, filter := range env.Filters {
					if filter.Matches(evt) {
						eventb, _ := nostr.EventEnvelope{SubscriptionID: &subID, Event: evt}.MarshalJSON()
						if err := websocket.Message.Send(conn, string(eventb)); err != nil {
							return
						}
						break
					}
				}
			}

			eoseb, _ := nostr.EOSEEnvelope(subID).MarshalJSON()
			if err := websocket.Message.Send(conn, string(eoseb)); err != nil {
				return
			}
		case *nostr.CloseEnvelope:
		}
	}
}

// SetSilent toggles Silent while the relay is running.
func (r *Relay) SetSilent(silent bool) {
	r.mu.Lock()
	r.Silent = silent
	r.mu.Unlock()
}

// SetReject changes Reject while the relay is running.
func (r *Relay) SetReject(reason string) {
	r.mu.Lock()
	r.Reject = reason
	r.mu.Unlock()
}
