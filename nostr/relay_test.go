package nostr

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func TestPublish(t *testing.T) {
	// test note to be sent over websocket
	priv, pub := makeKeyPair(t)
	textNote := Event{
		Kind:      KindTextNote,
		Content:   "hello",
		CreatedAt: Timestamp(1672068534), // random fixed timestamp
		Tags:      Tags{[]string{"foo", "bar"}},
		PubKey:    pub,
	}
	err := textNote.Sign(priv)
	require.NoError(t, err)

	// fake relay server
	var mu sync.Mutex // guards published to satisfy go test -race
	var published bool
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		mu.Lock()
		published = true
		mu.Unlock()
		// verify the client sent exactly the textNote
		var raw []stdjson.RawMessage
		err := websocket.JSON.Receive(conn, &raw)
		require.NoError(t, err)

		event := parseEventMessage(t, raw)
		require.True(t, bytes.Equal(event.Serialize(), textNote.Serialize()))

		// send back an ok nip-20 command result
		res := []any{"OK", textNote.ID, true, ""}
		err = websocket.JSON.Send(conn, res)
		require.NoError(t, err)
	})
	defer ws.Close()

	// connect a client and send the text note
	rl := mustRelayConnect(t, ws.URL)
	err = rl.Publish(context.Background(), textNote)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, published, "fake relay server saw no event")
}

func TestPublishBlocked(t *testing.T) {
	// test note to be sent over websocket
	textNote := Event{Kind: KindTextNote, Content: "hello"}
	textNote.ID = textNote.GetID()

	// fake relay server
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		// discard received message; not interested
		var raw []stdjson.RawMessage
		err := websocket.JSON.Receive(conn, &raw)
		require.NoError(t, err)

		// send back a not ok nip-20 command result
		res := []any{"OK", textNote.ID.String(), false, "blocked"}
		websocket.JSON.Send(conn, res)
	})
	defer ws.Close()

	// connect a client and send a text note
	rl := mustRelayConnect(t, ws.URL)
	err := rl.Publish(context.Background(), textNote)
	require.ErrorContains(t, err, "blocked")
}

func TestPublishWriteFailed(t *testing.T) {
	// test note to be sent over websocket
	textNote := Event{Kind: KindTextNote, Content: "hello"}
	textNote.ID = textNote.GetID()

	// fake relay server
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		// reject receive - force send error
		conn.Close()
	})
	defer ws.Close()

	// connect a client and send a text note
	rl := mustRelayConnect(t, ws.URL)
	// Force brief period of time so that publish always fails on closed socket.
	time.Sleep(1 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := rl.Publish(ctx, textNote)
	require.Error(t, err)
}

func TestPublishTimeout(t *testing.T) {
	textNote := Event{Kind: KindTextNote, Content: "hello"}
	textNote.ID = textNote.GetID()

	// never answers
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		io.ReadAll(conn)
	})
	defer ws.Close()

	rl := mustRelayConnect(t, ws.URL)
	defer rl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rl.Publish(ctx, textNote)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestSubscribeEOSE(t *testing.T) {
	priv, pub := makeKeyPair(t)
	profile := Event{
		Kind:      KindProfileMetadata,
		Content:   `{"name":"alice"}`,
		CreatedAt: Timestamp(1700000000),
		PubKey:    pub,
	}
	require.NoError(t, profile.Sign(priv))

	// an event the client did not ask for, must be ignored
	other := Event{Kind: KindTextNote, Content: "hi", CreatedAt: Timestamp(1700000001), PubKey: pub}
	require.NoError(t, other.Sign(priv))

	ws := newWebsocketServer(func(conn *websocket.Conn) {
		var raw []stdjson.RawMessage
		require.NoError(t, websocket.JSON.Receive(conn, &raw))

		subid, filters := parseSubscriptionMessage(t, raw)
		require.Len(t, filters, 1)

		websocket.JSON.Send(conn, []any{"EVENT", subid, other})
		websocket.JSON.Send(conn, []any{"EVENT", subid, profile})
		websocket.JSON.Send(conn, []any{"EOSE", subid})
		io.ReadAll(conn)
	})
	defer ws.Close()

	rl := mustRelayConnect(t, ws.URL)
	defer rl.Close()

	sub, err := rl.Subscribe(context.Background(), Filter{Kinds: []Kind{KindProfileMetadata}, Authors: []PubKey{pub}}, "test")
	require.NoError(t, err)
	defer sub.Unsub()

	select {
	case evt := <-sub.Events:
		require.Equal(t, profile.ID, evt.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}

	select {
	case <-sub.EndOfStoredEvents:
	case <-time.After(3 * time.Second):
		t.Fatal("no eose received")
	}
}

func TestConnectContext(t *testing.T) {
	// fake relay server
	var mu sync.Mutex // guards connected to satisfy go test -race
	var connected bool
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		mu.Lock()
		connected = true
		mu.Unlock()
		io.ReadAll(conn) // discard all input
	})
	defer ws.Close()

	// relay client
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	r, err := RelayConnect(ctx, ws.URL, RelayOptions{})
	require.NoError(t, err)

	defer r.Close()

	mu.Lock()
	defer mu.Unlock()
	require.True(t, connected, "fake relay server saw no client connect")
}

func TestConnectContextCanceled(t *testing.T) {
	// fake relay server
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		io.ReadAll(conn) // discard all input
	})
	defer ws.Close()

	// relay client
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // make ctx expired
	_, err := RelayConnect(ctx, ws.URL, RelayOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func newWebsocketServer(handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(&websocket.Server{
		Handshake: anyOriginHandshake,
		Handler:   handler,
	})
}

// anyOriginHandshake is an alternative to default in golang.org/x/net/websocket
// which checks for origin. nostr client sends no origin and it makes no difference
// for the tests here anyway.
var anyOriginHandshake = func(conf *websocket.Config, r *http.Request) error {
	return nil
}

func makeKeyPair(t *testing.T) (SecretKey, PubKey) {
	t.Helper()

	privkey := Generate()
	pubkey := GetPublicKey(privkey)

	return privkey, pubkey
}

func mustRelayConnect(t *testing.T, url string) *Relay {
	t.Helper()

	rl, err := RelayConnect(context.Background(), url, RelayOptions{})
	require.NoError(t, err)

	return rl
}

func parseEventMessage(t *testing.T, raw []stdjson.RawMessage) Event {
	t.Helper()

	require.Condition(t, func() (success bool) {
		return len(raw) >= 2
	})

	var typ string
	err := stdjson.Unmarshal(raw[0], &typ)
	require.NoError(t, err)
	require.Equal(t, "EVENT", typ)

	var event Event
	err = event.UnmarshalJSON(raw[1])
	require.NoError(t, err)

	return event
}

func parseSubscriptionMessage(t *testing.T, raw []stdjson.RawMessage) (subid string, filters []Filter) {
	t.Helper()

	require.GreaterOrEqual(t, len(raw), 3)

	var typ string
	err := stdjson.Unmarshal(raw[0], &typ)

	require.NoError(t, err)
	require.Equal(t, "REQ", typ)

	var id string
	err = stdjson.Unmarshal(raw[1], &id)
	require.NoError(t, err)

	env := ReqEnvelope{}
	b, _ := stdjson.Marshal(raw)
	require.NoError(t, env.FromJSON(string(b)))

	return id, env.Filters
}
