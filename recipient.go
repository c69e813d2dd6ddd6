package highfives

import (
	"fmt"
	"strings"

	"github.com/highfives-app/highfives/nostr"
	"github.com/highfives-app/highfives/nostr/nip19"
)

// RecipientAddress is one of Btag, Npub or LightningAddress.
type RecipientAddress interface {
	isRecipientAddress()
	String() string
}

// Btag is a user@domain identifier looked up over DNS (BIP-353).
type Btag struct {
	User   string
	Domain string
}

// Npub is a Nostr public key.
type Npub struct {
	PubKey nostr.PubKey
}

// LightningAddress is a user@domain identifier resolved over LNURL-pay.
type LightningAddress struct {
	User   string
	Domain string
}

func (Btag) isRecipientAddress()             {}
func (Npub) isRecipientAddress()             {}
func (LightningAddress) isRecipientAddress() {}

func (b Btag) String() string             { return b.User + "@" + b.Domain }
func (n Npub) String() string             { return nip19.EncodeNpub(n.PubKey) }
func (l LightningAddress) String() string { return l.User + "@" + l.Domain }

// AsLightningAddress reinterprets a btag as a Lightning Address, which is what
// we fall back to when there is no BIP-353 record.
func (b Btag) AsLightningAddress() LightningAddress {
	return LightningAddress{User: b.User, Domain: b.Domain}
}

// ParseRecipient classifies a free-text recipient.
//
// Strings starting with "npub", in any case, are always keys (and fail with InvalidKeyEncoding
// when they don't decode), strings with exactly one "@" and two non-empty halves
// are btags, anything else is an InvalidRecipientFormat.
func ParseRecipient(raw string) (RecipientAddress, error) {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(strings.ToLower(raw), "npub") {
		pk, err := nip19.DecodeNpub(raw)
		if err != nil {
			return nil, &ResolutionError{Kind: InvalidKeyEncoding, Err: err}
		}
		return Npub{PubKey: pk}, nil
	}

	user, domain, ok := SplitAddress(raw)
	if !ok {
		return nil, &ResolutionError{
			Kind: InvalidRecipientFormat,
			Err:  fmt.Errorf("'%s' is neither an npub nor a user@domain address", raw),
		}
	}

	return Btag{User: user, Domain: domain}, nil
}

// SplitAddress splits a user@domain string, requiring exactly one "@" with
// something on both sides.
func SplitAddress(s string) (user string, domain string, ok bool) {
	if strings.Count(s, "@") != 1 {
		return "", "", false
	}
	user, domain, _ = strings.Cut(s, "@")
	if user == "" || domain == "" {
		return "", "", false
	}
	return user, domain, true
}
