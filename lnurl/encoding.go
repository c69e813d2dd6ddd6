package lnurl

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Encode turns a URL into an uppercase bech32 LNURL string, the form wallets expect in QR codes.
func Encode(url string) (string, error) {
	bits5, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", err
	}
	encoded, err := bech32.Encode("lnurl", bits5)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(encoded), nil
}

// Decode extracts the URL from an LNURL string. A "lightning:" prefix is tolerated.
func Decode(lnurl string) (string, error) {
	lnurl = strings.ToLower(strings.TrimSpace(lnurl))
	lnurl = strings.TrimPrefix(lnurl, "lightning:")

	prefix, bits5, err := bech32.DecodeNoLimit(lnurl)
	if err != nil {
		return "", err
	}
	if prefix != "lnurl" {
		return "", fmt.Errorf("expected lnurl, got %s", prefix)
	}

	data, err := bech32.ConvertBits(bits5, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("failed to translate data into 8 bits: %s", err.Error())
	}
	return string(data), nil
}
