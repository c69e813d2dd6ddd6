package highfives

import (
	"errors"
	"strings"
	"testing"

	"github.com/highfives-app/highfives/nostr"
	"github.com/highfives-app/highfives/nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecipient(t *testing.T) {
	pk := nostr.GetPublicKey(nostr.Generate())
	npub := nip19.EncodeNpub(pk)

	tests := []struct {
		input    string
		expected RecipientAddress
		kind     ErrorKind
	}{
		{"alice@example.com", Btag{User: "alice", Domain: "example.com"}, 0},
		{"  bob@wallet.com ", Btag{User: "bob", Domain: "wallet.com"}, 0},
		{npub, Npub{PubKey: pk}, 0},
		{strings.ToUpper(npub), Npub{PubKey: pk}, 0},
		{"npub1notreallyakey", nil, InvalidKeyEncoding},
		{"npub", nil, InvalidKeyEncoding},
		{"alice", nil, InvalidRecipientFormat},
		{"", nil, InvalidRecipientFormat},
		{"@example.com", nil, InvalidRecipientFormat},
		{"alice@", nil, InvalidRecipientFormat},
		{"a@b@c", nil, InvalidRecipientFormat},
		{"lno1qcp4256ypq", nil, InvalidRecipientFormat},
	}

	for _, test := range tests {
		addr, err := ParseRecipient(test.input)
		if test.kind != 0 {
			require.Error(t, err, "input: %q", test.input)
			assert.Equal(t, test.kind, KindOf(err), "input: %q", test.input)
			continue
		}
		require.NoError(t, err, "input: %q", test.input)
		assert.Equal(t, test.expected, addr)
	}
}

func TestRecipientStringRoundTrip(t *testing.T) {
	pk := nostr.GetPublicKey(nostr.Generate())
	npub := nip19.EncodeNpub(pk)

	addr, err := ParseRecipient(npub)
	require.NoError(t, err)
	require.Equal(t, npub, addr.String())

	btag := Btag{User: "alice", Domain: "example.com"}
	require.Equal(t, LightningAddress{User: "alice", Domain: "example.com"}, btag.AsLightningAddress())
	require.Equal(t, "alice@example.com", btag.AsLightningAddress().String())
}

func TestResolutionErrorMatching(t *testing.T) {
	err := Errorf(UpstreamTimeout, "waited %ds", 5)
	require.ErrorIs(t, err, ErrUpstreamTimeout)
	require.NotErrorIs(t, err, ErrUpstreamUnavailable)
	require.True(t, KindOf(err).Temporary())

	wrapped := errors.Join(errors.New("context"), err)
	require.Equal(t, UpstreamTimeout, KindOf(wrapped))
	require.Equal(t, ErrorKind(0), KindOf(errors.New("plain")))

	require.NotEqual(t, NoPaymentMethodConfigured.UserMessage(), UpstreamUnavailable.UserMessage())
}

func TestPaymentInstructionURI(t *testing.T) {
	require.Equal(t, "bitcoin:?lno=lno1abc", PaymentInstruction{Kind: KindBolt12Offer, Payload: "lno1abc"}.URI())
	require.Equal(t, "lightning:lnbc1xyz", PaymentInstruction{Kind: KindBolt11Invoice, Payload: "lnbc1xyz"}.URI())
}
