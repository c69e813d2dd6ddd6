package nip19

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/highfives-app/highfives/nostr"
)

// Decode decodes any of the bare 32-byte bech32 entities (npub, nsec, note) and
// returns the prefix along with a nostr.PubKey, nostr.SecretKey or nostr.ID.
func Decode(bech32string string) (prefix string, value any, err error) {
	prefix, bits5, err := bech32.DecodeNoLimit(bech32string)
	if err != nil {
		return "", nil, err
	}

	data, err := bech32.ConvertBits(bits5, 5, 8, false)
	if err != nil {
		return prefix, nil, fmt.Errorf("failed to translate data into 8 bits: %s", err.Error())
	}

	switch prefix {
	case "nsec":
		if len(data) != 32 {
			return prefix, nil, fmt.Errorf("nsec should be 32 bytes (%d)", len(data))
		}
		return prefix, nostr.SecretKey(data[0:32]), nil
	case "note":
		if len(data) != 32 {
			return prefix, nil, fmt.Errorf("note should be 32 bytes (%d)", len(data))
		}
		return prefix, nostr.ID(data[0:32]), nil
	case "npub":
		if len(data) != 32 {
			return prefix, nil, fmt.Errorf("npub should be 32 bytes (%d)", len(data))
		}
		return prefix, nostr.PubKey(data[0:32]), nil
	}

	return prefix, data, fmt.Errorf("unknown tag %s", prefix)
}

// DecodeNpub decodes an npub and checks that it is a point on the curve.
func DecodeNpub(npub string) (nostr.PubKey, error) {
	prefix, value, err := Decode(strings.ToLower(npub))
	if err != nil {
		return nostr.ZeroPK, err
	}
	if prefix != "npub" {
		return nostr.ZeroPK, fmt.Errorf("expected npub, got %s", prefix)
	}

	pk := value.(nostr.PubKey)
	if !nostr.IsValidPublicKey(pk) {
		return nostr.ZeroPK, fmt.Errorf("npub is not a valid public key")
	}
	return pk, nil
}

// DecodeNsec decodes an nsec.
func DecodeNsec(nsec string) (nostr.SecretKey, error) {
	prefix, value, err := Decode(strings.ToLower(nsec))
	if err != nil {
		return nostr.SecretKey{}, err
	}
	if prefix != "nsec" {
		return nostr.SecretKey{}, fmt.Errorf("expected nsec, got %s", prefix)
	}

	sk := value.(nostr.SecretKey)
	if sk == (nostr.SecretKey{}) {
		return sk, fmt.Errorf("nsec is zero")
	}
	return sk, nil
}

func EncodeNsec(sk nostr.SecretKey) string {
	return encode("nsec", sk[:])
}

func EncodeNpub(pk nostr.PubKey) string {
	return encode("npub", pk[:])
}

func EncodeNote(id nostr.ID) string {
	return encode("note", id[:])
}

func encode(prefix string, data []byte) string {
	bits5, _ := bech32.ConvertBits(data, 8, 5, true)
	res, _ := bech32.Encode(prefix, bits5)
	return res
}
