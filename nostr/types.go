package nostr

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

type PubKey [32]byte

var ZeroPK = PubKey{}

func (pk PubKey) String() string { return hex.EncodeToString(pk[:]) }
func (pk PubKey) Hex() string    { return hex.EncodeToString(pk[:]) }

func (pk PubKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + pk.Hex() + `"`), nil
}

func (pk *PubKey) UnmarshalJSON(buf []byte) error {
	s, err := strconv.Unquote(string(buf))
	if err != nil {
		return err
	}
	v, err := PubKeyFromHexCheap(s)
	if err != nil {
		return err
	}
	*pk = v
	return nil
}

func PubKeyFromHex(pkh string) (PubKey, error) {
	pk, err := PubKeyFromHexCheap(pkh)
	if err != nil {
		return pk, err
	}

	if !IsValidPublicKey(pk) {
		return pk, fmt.Errorf("'%s' is not a valid pubkey", pkh)
	}

	return pk, nil
}

// PubKeyFromHexCheap decodes the hex but doesn't check the key is on the curve.
func PubKeyFromHexCheap(pkh string) (PubKey, error) {
	pk := PubKey{}
	if len(pkh) != 64 {
		return pk, fmt.Errorf("pubkey should be 64-char hex, got '%s'", pkh)
	}
	if _, err := hex.Decode(pk[:], []byte(pkh)); err != nil {
		return pk, fmt.Errorf("'%s' is not valid hex: %w", pkh, err)
	}

	return pk, nil
}

func MustPubKeyFromHex(pkh string) PubKey {
	pk, err := PubKeyFromHexCheap(pkh)
	if err != nil {
		panic(err)
	}
	return pk
}

type ID [32]byte

var ZeroID = ID{}

func (id ID) String() string { return hex.EncodeToString(id[:]) }
func (id ID) Hex() string    { return hex.EncodeToString(id[:]) }

func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.Hex() + `"`), nil
}

func (id *ID) UnmarshalJSON(buf []byte) error {
	s, err := strconv.Unquote(string(buf))
	if err != nil {
		return err
	}
	v, err := IDFromHex(s)
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func IDFromHex(idh string) (ID, error) {
	id := ID{}

	if len(idh) != 64 {
		return id, fmt.Errorf("id should be 64-char hex, got '%s'", idh)
	}
	if _, err := hex.Decode(id[:], []byte(idh)); err != nil {
		return id, fmt.Errorf("'%s' is not valid hex: %w", idh, err)
	}

	return id, nil
}

func MustIDFromHex(idh string) ID {
	id, err := IDFromHex(idh)
	if err != nil {
		panic(err)
	}
	return id
}

type SecretKey [32]byte

func (sk SecretKey) Hex() string { return hex.EncodeToString(sk[:]) }

// String never prints the key itself.
func (sk SecretKey) String() string { return "sk::" + GetPublicKey(sk).Hex()[0:8] }

func SecretKeyFromHex(skh string) (SecretKey, error) {
	sk := SecretKey{}
	if len(skh) != 64 {
		return sk, fmt.Errorf("secret key should be 64-char hex")
	}
	if _, err := hex.Decode(sk[:], []byte(skh)); err != nil {
		return sk, fmt.Errorf("secret key is not valid hex: %w", err)
	}
	if sk == (SecretKey{}) {
		return sk, fmt.Errorf("secret key is zero")
	}
	return sk, nil
}

type Timestamp int64

func Now() Timestamp {
	return Timestamp(time.Now().Unix())
}

func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0)
}

// RelayEvent represents an event received from a specific relay.
type RelayEvent struct {
	Event
	Relay *Relay
}
