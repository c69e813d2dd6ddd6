package nostr_test

import (
	"context"
	"testing"
	"time"

	"github.com/highfives-app/highfives/nostr"
	"github.com/highfives-app/highfives/nostr/relaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, sk nostr.SecretKey, kind nostr.Kind, content string, createdAt nostr.Timestamp) nostr.Event {
	t.Helper()

	evt := nostr.Event{Kind: kind, Content: content, CreatedAt: createdAt}
	require.NoError(t, evt.Sign(sk))
	return evt
}

func TestRelaySetFetchManyDeduplicates(t *testing.T) {
	sk := nostr.Generate()
	pk := nostr.GetPublicKey(sk)

	older := signed(t, sk, nostr.KindProfileMetadata, `{"name":"old"}`, 1000)
	newer := signed(t, sk, nostr.KindProfileMetadata, `{"name":"new"}`, 2000)

	r1 := relaytest.New(older, newer)
	defer r1.Close()
	r2 := relaytest.New(newer)
	defer r2.Close()

	rs := nostr.NewRelaySet([]string{r1.URL, r2.URL, r1.URL + "/"}, nostr.RelayOptions{})
	defer rs.Close()
	require.Len(t, rs.URLs, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ids := make(map[nostr.ID]int)
	for ie := range rs.FetchMany(ctx, nostr.Filter{Kinds: []nostr.Kind{nostr.KindProfileMetadata}, Authors: []nostr.PubKey{pk}}, "test") {
		ids[ie.ID]++
	}

	require.NoError(t, ctx.Err(), "should have ended on eose, not on timeout")
	assert.Equal(t, map[nostr.ID]int{older.ID: 1, newer.ID: 1}, ids)
	assert.Equal(t, 1, r1.Requests())
	assert.Equal(t, 1, r2.Requests())
}

func TestRelaySetFetchManyUnreachableRelay(t *testing.T) {
	sk := nostr.Generate()
	evt := signed(t, sk, nostr.KindProfileMetadata, `{}`, 1000)

	r1 := relaytest.New(evt)
	defer r1.Close()
	dead := relaytest.New()
	dead.Close()

	rs := nostr.NewRelaySet([]string{r1.URL, dead.URL}, nostr.RelayOptions{})
	defer rs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	count := 0
	for range rs.FetchMany(ctx, nostr.Filter{Kinds: []nostr.Kind{nostr.KindProfileMetadata}}, "test") {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestRelaySetFetchManySilentRelayTimesOut(t *testing.T) {
	silent := relaytest.New()
	silent.SetSilent(true)
	defer silent.Close()

	rs := nostr.NewRelaySet([]string{silent.URL}, nostr.RelayOptions{})
	defer rs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	for range rs.FetchMany(ctx, nostr.Filter{Kinds: []nostr.Kind{nostr.KindProfileMetadata}}, "test") {
		t.Fatal("no events expected")
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRelaySetPublishMany(t *testing.T) {
	accepting := relaytest.New()
	defer accepting.Close()
	rejecting := relaytest.New()
	rejecting.SetReject("blocked: not on whitelist")
	defer rejecting.Close()

	rs := nostr.NewRelaySet([]string{accepting.URL, rejecting.URL}, nostr.RelayOptions{})

	evt := signed(t, nostr.Generate(), nostr.KindTextNote, "hello", nostr.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	results := make(map[string]error)
	for res := range rs.PublishMany(ctx, evt) {
		results[res.RelayURL] = res.Error
	}

	require.Len(t, results, 2)
	assert.NoError(t, results[accepting.URL])
	assert.ErrorContains(t, results[rejecting.URL], "blocked")
	assert.Len(t, accepting.Published(), 1)
	assert.Empty(t, rejecting.Published())

	assert.Len(t, rs.Connected(), 2)
	rs.Close()

	// a closed set can't be used anymore
	_, err := rs.EnsureRelay(ctx, accepting.URL)
	assert.Error(t, err)
}

func TestRelaySetIgnoresInvalidURLs(t *testing.T) {
	rs := nostr.NewRelaySet([]string{"", "wss://bad host", "wss://relay.example.com"}, nostr.RelayOptions{})
	defer rs.Close()
	assert.Equal(t, []string{"wss://relay.example.com"}, rs.URLs)
}
