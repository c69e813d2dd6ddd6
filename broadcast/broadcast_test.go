package broadcast

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/nostr"
	"github.com/highfives-app/highfives/nostr/nip19"
	"github.com/highfives-app/highfives/nostr/relaytest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleAck = highfives.Acknowledgment{
	ID:        "6f1c1f9e-8a8e-4c55-9a0c-3b1f3f0b7b11",
	Recipient: "alice@example.com",
	Reason:    "thanks!",
	CreatedAt: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
}

func TestBuildNote(t *testing.T) {
	recipientPK := nostr.GetPublicKey(nostr.Generate())
	senderPK := nostr.GetPublicKey(nostr.Generate())

	ack := highfives.Acknowledgment{
		Recipient:         nip19.EncodeNpub(recipientPK),
		ProfileName:       "Bob",
		Reason:            "for <script>alert(1)</script>fixing the <b>build</b> & more",
		Sender:            nip19.EncodeNpub(senderPK),
		SenderProfileName: "Carol",
		PaymentPayload:    "lno1qsgqmqvgm96frzdg8m0gc6nzeqffvzsqzrxqy32afmr3jn9ggkwg3egfwch2hy0l6jut",
		CreatedAt:         time.Unix(1700000000, 0),
	}

	evt := BuildNote(ack, "")
	assert.Equal(t, nostr.KindTextNote, evt.Kind)
	assert.Equal(t, nostr.Timestamp(1700000000), evt.CreatedAt)

	assert.NotNil(t, evt.Tags.FindWithValue("p", recipientPK.Hex()))
	assert.NotNil(t, evt.Tags.FindWithValue("p", senderPK.Hex()))
	assert.NotNil(t, evt.Tags.FindWithValue("t", "highfives"))

	assert.Contains(t, evt.Content, "Bob (nostr:"+ack.Recipient+")")
	assert.Contains(t, evt.Content, "from Carol (nostr:"+ack.Sender+")")
	assert.Contains(t, evt.Content, "fixing the build & more")
	assert.NotContains(t, evt.Content, "<script>")
	assert.NotContains(t, evt.Content, "<b>")
	assert.Contains(t, evt.Content, "paid to offer lno1qsgqmqvgm96frzdg8m0g…")
	assert.True(t, strings.HasSuffix(evt.Content, "#highfives"))
}

func TestBuildNotePlainAddresses(t *testing.T) {
	evt := BuildNote(highfives.Acknowledgment{
		Recipient: "alice@example.com",
		Reason:    "thanks!",
		Sender:    "someone from the conference",
	}, "thanks")

	assert.Contains(t, evt.Content, "High five to alice@example.com!")
	assert.Contains(t, evt.Content, "from someone from the conference")
	assert.False(t, evt.Tags.Has("p"))
	assert.NotNil(t, evt.Tags.FindWithValue("t", "thanks"))
	assert.NotContains(t, evt.Content, "⚡")
}

func TestBuildNoteTruncatesPayloadByRunes(t *testing.T) {
	payload := "lno" + strings.Repeat("é", 40)
	evt := BuildNote(highfives.Acknowledgment{
		Recipient:      "alice@example.com",
		Reason:         "thanks!",
		PaymentPayload: payload,
	}, "")

	assert.True(t, utf8.ValidString(evt.Content))
	assert.Contains(t, evt.Content, "paid to offer lno"+strings.Repeat("é", 21)+"…")

	assert.Equal(t, "ünïcödé", truncateRunes("ünïcödé", 7))
	assert.Equal(t, "ünï…", truncateRunes("ünïcödé", 3))
	assert.Equal(t, "", truncateRunes("", 3))
}

func TestBroadcastSucceedsIfAnyRelayAccepts(t *testing.T) {
	for accepting := 0; accepting <= 3; accepting++ {
		relays := make([]*relaytest.Relay, 3)
		urls := make([]string, 3)
		for i := range relays {
			relays[i] = relaytest.New()
			if i >= accepting {
				relays[i].SetReject("blocked: not today")
			}
			urls[i] = relays[i].URL
		}

		reg := prometheus.NewRegistry()
		b := New(nostr.Generate(), urls)
		b.Timeout = 2 * time.Second
		b.Metrics = NewMetrics(reg)

		id, err := b.Broadcast(context.Background(), sampleAck)
		if accepting == 0 {
			require.Error(t, err)
			assert.Empty(t, id)
			assert.Contains(t, err.Error(), "not today")
			assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics.broadcasts.WithLabelValues("failure")))
		} else {
			require.NoError(t, err, "%d accepting", accepting)
			assert.Len(t, id, 64)
			assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics.broadcasts.WithLabelValues("success")))

			// the event that got stored is the one whose id we got back
			require.Eventually(t, func() bool { return len(relays[0].Published()) == 1 }, 2*time.Second, 10*time.Millisecond)
			published := relays[0].Published()[0]
			assert.Equal(t, id, published.ID.Hex())
			assert.True(t, published.VerifySignature())
		}

		for _, r := range relays {
			r.Close()
		}
	}
}

func TestBroadcastUnreachableRelays(t *testing.T) {
	dead := relaytest.New()
	dead.Close()
	silent := relaytest.New()
	silent.SetSilent(true)
	defer silent.Close()

	b := New(nostr.Generate(), []string{dead.URL, silent.URL})
	b.Timeout = 300 * time.Millisecond

	start := time.Now()
	_, err := b.Broadcast(context.Background(), sampleAck)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestBroadcastNoRelays(t *testing.T) {
	b := New(nostr.Generate(), nil)
	b.Relays = nil
	_, err := b.Broadcast(context.Background(), sampleAck)
	require.ErrorIs(t, err, ErrNoRelays)
}
