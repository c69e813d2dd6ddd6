package sdk

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/nostr"
	"github.com/highfives-app/highfives/nostr/nip19"
	"github.com/highfives-app/highfives/nostr/relaytest"
	"github.com/highfives-app/highfives/store"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const offer = "lno1qsgqmqvgm96frzdg8m0gc6nzeqffvzsqzrxqy32afmr3jn9ggkwg3egfwch2hy0l6jut6vfd8vpsc3h89l6u3dm4q2d6nuamav3w27xvdmv3lpgklhg7l5teypqz9l53hj7zvuaenh34xqsz2sa967yzqkylfu9xtcd5ymcmfp32h083e805y7jfd236w9afhavqqvl8uyma7x77yun4ehe9pnhu2gekjguexmxpqjcr2j822xr7q34p078gzslf9wpwz5y57alxu99s0z2ql0kfqvwhzycqq45ehh58xnfpuek80hw6spvwrvttjrrq9pphh0dpydh06qqspp5uq4gpyt6n9mwexde44qv7lstzzq60nr40ff38u27un6y53aypmx0p4qruk2tf9mjwqlhxak4znvna5y"

// dnsStub answers TXT queries from records over udp and NXDOMAIN for everything else.
func dnsStub(t *testing.T, records map[string][]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &dns.Server{PacketConn: pc, Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		msg := &dns.Msg{}
		msg.SetReply(r)

		question := r.Question[0]
		if txt, ok := records[strings.ToLower(question.Name)]; ok && question.Qtype == dns.TypeTXT {
			msg.Answer = append(msg.Answer, &dns.TXT{
				Hdr: dns.RR_Header{Name: question.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
				Txt: txt,
			})
		} else {
			msg.Rcode = dns.RcodeNameError
		}
		w.WriteMsg(msg)
	})}
	go server.ActivateAndServe()
	t.Cleanup(func() { server.Shutdown() })

	return pc.LocalAddr().String()
}

// lnurlStub serves a payRequest for every user and returns its host and a hit counter.
func lnurlStub(t *testing.T) (string, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/lnurlp/{user}", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprintf(w, `{"tag":"payRequest","callback":"%s/cb/%s","minSendable":1000,"maxSendable":1000000,"metadata":"[]"}`,
			server.URL, r.PathValue("user"))
	})
	mux.HandleFunc("/cb/{user}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"pr":"lnbc%sn1%s"}`, r.URL.Query().Get("amount"), r.PathValue("user"))
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://"), &hits
}

func profileEvent(t *testing.T, sk nostr.SecretKey, content string) nostr.Event {
	t.Helper()

	evt := nostr.Event{Kind: nostr.KindProfileMetadata, Content: content, CreatedAt: nostr.Now()}
	require.NoError(t, evt.Sign(sk))
	return evt
}

func testSystem(t *testing.T, nameserver string, relays []string, mods ...SystemModifier) *System {
	t.Helper()

	mods = append([]SystemModifier{
		WithNameserver(nameserver),
		WithProfileRelays(relays...),
		WithBroadcastRelays(relays...),
		WithTimeouts(Timeouts{DNS: time.Second, Lightning: 2 * time.Second, Profile: time.Second, Publish: 2 * time.Second}),
	}, mods...)

	sys := NewSystem(mods...)
	sys.Lightning.Scheme = "http"
	t.Cleanup(sys.Close)
	return sys
}

func TestResolvePaymentBolt12(t *testing.T) {
	nameserver := dnsStub(t, map[string][]string{
		"alice.user._bitcoin-payment.example.com.": {offer[:200], offer[200:]},
	})
	relay := relaytest.New()
	defer relay.Close()

	sys := testSystem(t, nameserver, []string{relay.URL})

	pi, err := sys.ResolvePayment(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, highfives.KindBolt12Offer, pi.Kind)
	assert.Equal(t, offer, pi.Payload)

	// amounts don't change anything for offers
	pi, err = sys.ResolvePaymentAmount(context.Background(), "alice@example.com", 21000)
	require.NoError(t, err)
	assert.Equal(t, highfives.KindBolt12Offer, pi.Kind)
}

func TestResolvePaymentNpub(t *testing.T) {
	host, hits := lnurlStub(t)

	sk := nostr.Generate()
	relay := relaytest.New(profileEvent(t, sk, `{"name":"bob","lud16":"bob@`+host+`"}`))
	defer relay.Close()

	sys := testSystem(t, dnsStub(t, nil), []string{relay.URL})
	npub := nip19.EncodeNpub(nostr.GetPublicKey(sk))

	pi, err := sys.ResolvePayment(context.Background(), npub)
	require.NoError(t, err)
	assert.Equal(t, highfives.KindLNURL, pi.Kind)
	assert.Equal(t, "http://"+host+"/cb/bob", pi.Payload)
	assert.Equal(t, "bob@"+host, pi.DisplayAddress)
	assert.Equal(t, int32(1), hits.Load())

	pi, err = sys.ResolvePaymentAmount(context.Background(), npub, 21000)
	require.NoError(t, err)
	assert.Equal(t, highfives.KindBolt11Invoice, pi.Kind)
	assert.Equal(t, "lnbc21000n1bob", pi.Payload)

	_, err = sys.ResolvePaymentAmount(context.Background(), npub, 5_000_000)
	require.ErrorIs(t, err, highfives.ErrInvalidAmount)
}

func TestResolvePaymentFallsBackToLightningAddress(t *testing.T) {
	host, hits := lnurlStub(t)
	relay := relaytest.New()
	defer relay.Close()

	sys := testSystem(t, dnsStub(t, nil), []string{relay.URL})

	pi, err := sys.ResolvePayment(context.Background(), "carol@"+host)
	require.NoError(t, err)
	assert.Equal(t, highfives.KindLNURL, pi.Kind)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolvePaymentNoMethod(t *testing.T) {
	sk := nostr.Generate()
	relay := relaytest.New(profileEvent(t, sk, `{"name":"dave"}`))
	defer relay.Close()

	sys := testSystem(t, dnsStub(t, nil), []string{relay.URL})

	_, err := sys.ResolvePayment(context.Background(), nip19.EncodeNpub(nostr.GetPublicKey(sk)))
	require.ErrorIs(t, err, highfives.ErrNoPaymentMethodConfigured)

	_, err = sys.ResolvePayment(context.Background(), "not a recipient")
	require.ErrorIs(t, err, highfives.ErrInvalidRecipientFormat)
}

func TestSubmitBroadcastsAndLinks(t *testing.T) {
	recipientSK := nostr.Generate()
	senderSK := nostr.Generate()
	relay := relaytest.New(
		profileEvent(t, recipientSK, `{"name":"bob","display_name":"Bob"}`),
		profileEvent(t, senderSK, `{"name":"carol"}`),
	)
	defer relay.Close()

	sys := testSystem(t, dnsStub(t, nil), []string{relay.URL}, WithSecretKey(nostr.Generate()))

	ack, err := sys.Submit(context.Background(), SubmitRequest{
		Recipient: "  " + nip19.EncodeNpub(nostr.GetPublicKey(recipientSK)) + " ",
		Reason:    "thanks for the review!",
		Sender:    nip19.EncodeNpub(nostr.GetPublicKey(senderSK)),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ack.ID)
	assert.Equal(t, "Bob", ack.ProfileName)
	assert.Equal(t, "carol", ack.SenderProfileName)
	assert.Empty(t, ack.NostrEventID)

	var linked highfives.Acknowledgment
	require.Eventually(t, func() bool {
		linked, err = sys.Get(context.Background(), ack.ID)
		return err == nil && linked.NostrEventID != ""
	}, 5*time.Second, 20*time.Millisecond)

	published := relay.Published()
	require.Len(t, published, 1)
	assert.Equal(t, published[0].ID.Hex(), linked.NostrEventID)
	assert.Contains(t, published[0].Content, "thanks for the review!")

	pk, ok := sys.PublicKey()
	require.True(t, ok)
	assert.Equal(t, pk, published[0].PubKey)
}

func TestSubmitDoesNotWaitForRelays(t *testing.T) {
	relay := relaytest.New()
	relay.SetSilent(true)
	defer relay.Close()

	sys := testSystem(t, dnsStub(t, nil), []string{relay.URL}, WithSecretKey(nostr.Generate()))

	start := time.Now()
	ack, err := sys.Submit(context.Background(), SubmitRequest{Recipient: "alice@example.com", Reason: "thanks!"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	stored, err := sys.Get(context.Background(), ack.ID)
	require.NoError(t, err)
	assert.Equal(t, ack, stored)
}

func TestSubmitWithoutKey(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()

	sys := testSystem(t, dnsStub(t, nil), []string{relay.URL})
	require.Nil(t, sys.Worker)

	ack, err := sys.Submit(context.Background(), SubmitRequest{
		Recipient:      "alice@example.com",
		Reason:         "thanks!",
		Sender:         "someone at the meetup",
		PaymentPayload: offer,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", ack.Recipient)
	assert.Equal(t, "someone at the meetup", ack.Sender)
	assert.Equal(t, offer, ack.PaymentPayload)
	assert.Empty(t, ack.SenderProfileName)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, relay.Published())
}

func TestSubmitValidation(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	sys := testSystem(t, dnsStub(t, nil), []string{relay.URL})

	for _, test := range []struct {
		req SubmitRequest
		err error
	}{
		{SubmitRequest{Reason: "thanks"}, ErrMissingRecipient},
		{SubmitRequest{Recipient: "alice@example.com", Reason: "   "}, ErrMissingReason},
		{SubmitRequest{Recipient: "alice@example.com", Reason: strings.Repeat("🙌", MaxReasonLength+1)}, ErrReasonTooLong},
		{SubmitRequest{Recipient: "alice", Reason: "thanks"}, highfives.ErrInvalidRecipientFormat},
		{SubmitRequest{Recipient: "npub1xyz", Reason: "thanks"}, highfives.ErrInvalidKeyEncoding},
	} {
		_, err := sys.Submit(context.Background(), test.req)
		require.ErrorIs(t, err, test.err, "request: %+v", test.req)
	}

	assert.Empty(t, sys.List(context.Background(), store.Filter{}))
}

func TestList(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()
	sys := testSystem(t, dnsStub(t, nil), []string{relay.URL})

	npub := nip19.EncodeNpub(nostr.GetPublicKey(nostr.Generate()))
	for i, recipient := range []string{"alice@example.com", npub, "alice@example.com"} {
		_, err := sys.Submit(context.Background(), SubmitRequest{Recipient: recipient, Reason: fmt.Sprintf("thanks %d", i)})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	all := sys.List(context.Background(), store.Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, "thanks 2", all[0].Reason)
	assert.Equal(t, "thanks 0", all[2].Reason)

	alice := sys.List(context.Background(), store.Filter{Recipient: "alice@example.com", Limit: 1})
	require.Len(t, alice, 1)
	assert.Equal(t, "thanks 2", alice[0].Reason)

	// npubs are matched whatever their case
	byKey := sys.List(context.Background(), store.Filter{Recipient: strings.ToUpper(npub)})
	require.Len(t, byKey, 1)

	_, err := sys.Get(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}
