package nostr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSignAndVerify(t *testing.T) {
	sk := Generate()
	evt := Event{
		Kind:      KindTextNote,
		Content:   "high five to alice@example.com",
		CreatedAt: Timestamp(1700000000),
		Tags:      Tags{{"t", "highfives"}},
	}
	require.NoError(t, evt.Sign(sk))

	assert.Equal(t, GetPublicKey(sk), evt.PubKey)
	assert.True(t, evt.CheckID())
	assert.True(t, evt.VerifySignature())

	evt.Content = "tampered"
	assert.False(t, evt.VerifySignature())
}

func TestEventJSONRoundTrip(t *testing.T) {
	sk := Generate()
	evt := Event{
		Kind:      KindProfileMetadata,
		Content:   "{\"name\":\"bob \\\"the builder\\\"\",\n\"lud16\":\"bob@wallet.com\"}",
		CreatedAt: Timestamp(1700000000),
		Tags:      Tags{{"p", "abc"}, {"t", "x", "y"}},
	}
	require.NoError(t, evt.Sign(sk))

	b, err := evt.MarshalJSON()
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, decoded.UnmarshalJSON(b))
	assert.Equal(t, evt, decoded)
	assert.True(t, decoded.VerifySignature())
}

func TestEventUnmarshalRejectsBadHex(t *testing.T) {
	var evt Event
	err := evt.UnmarshalJSON([]byte(`{"id":"zz","pubkey":"","created_at":1,"kind":1,"tags":[],"content":"","sig":""}`))
	require.Error(t, err)
}

func TestSerializeEscaping(t *testing.T) {
	evt := Event{
		PubKey:    MustPubKeyFromHex("3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"),
		CreatedAt: Timestamp(1),
		Kind:      KindTextNote,
		Tags:      Tags{},
		Content:   "line\nbreak \"quoted\" \\ tab\t",
	}

	assert.Equal(t,
		`[0,"3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d",1,1,[],"line\nbreak \"quoted\" \\ tab\t"]`,
		string(evt.Serialize()))
}

func TestFilterMatches(t *testing.T) {
	pk := GetPublicKey(Generate())
	evt := Event{Kind: KindProfileMetadata, PubKey: pk, CreatedAt: Timestamp(100)}

	assert.True(t, Filter{Kinds: []Kind{KindProfileMetadata}, Authors: []PubKey{pk}}.Matches(evt))
	assert.False(t, Filter{Kinds: []Kind{KindTextNote}}.Matches(evt))
	assert.False(t, Filter{Authors: []PubKey{GetPublicKey(Generate())}}.Matches(evt))
	assert.False(t, Filter{Since: Timestamp(101)}.Matches(evt))
	assert.True(t, Filter{Until: Timestamp(100)}.Matches(evt))
}

func TestParseMessage(t *testing.T) {
	env, err := ParseMessage(`["EOSE","1:profile"]`)
	require.NoError(t, err)
	require.Equal(t, "1:profile", string(*env.(*EOSEEnvelope)))

	env, err = ParseMessage(`["OK","d9ea8da3e35e1a56ad2a5f8d1e11e9b1ca3bbd64c4f6f1c74f10e3a3e8e0d0ff",false,"blocked: no"]`)
	require.NoError(t, err)
	ok := env.(*OKEnvelope)
	require.False(t, ok.OK)
	require.Equal(t, "blocked: no", ok.Reason)

	env, err = ParseMessage(`["CLOSED","2:x","auth-required: please"]`)
	require.NoError(t, err)
	require.Equal(t, "2:x", env.(*ClosedEnvelope).SubscriptionID)

	_, err = ParseMessage(`["AUTH","challenge"]`)
	require.ErrorIs(t, err, UnknownLabel)

	_, err = ParseMessage(`garbage`)
	require.ErrorIs(t, err, InvalidJsonEnvelope)
}

func TestReqEnvelopeRoundTrip(t *testing.T) {
	pk := GetPublicKey(Generate())
	req := ReqEnvelope{
		SubscriptionID: "1:profile",
		Filters:        []Filter{{Kinds: []Kind{KindProfileMetadata}, Authors: []PubKey{pk}, Limit: 1}},
	}
	b, err := req.MarshalJSON()
	require.NoError(t, err)

	var decoded ReqEnvelope
	require.NoError(t, decoded.FromJSON(string(b)))
	require.Equal(t, req, decoded)
}

func TestNormalizeURL(t *testing.T) {
	for input, expected := range map[string]string{
		"relay.damus.io":          "wss://relay.damus.io",
		"wss://Relay.Damus.io/":   "wss://relay.damus.io",
		"http://127.0.0.1:7777":   "ws://127.0.0.1:7777",
		"https://nos.lol/":        "wss://nos.lol",
		" wss://relay.primal.net": "wss://relay.primal.net",
	} {
		assert.Equal(t, expected, NormalizeURL(input), input)
	}
}
