package main

import (
	"context"
	"fmt"

	"github.com/highfives-app/highfives/nostr"
	"github.com/highfives-app/highfives/nostr/nip19"
	"github.com/urfave/cli/v3"
)

var keygen = &cli.Command{
	Name:        "keygen",
	Usage:       "generates a key to sign broadcast notes with",
	Description: "prints a new nsec, to be used as secret_key or HIGHFIVES_SECRET_KEY, followed by its npub.",
	Action: func(ctx context.Context, c *cli.Command) error {
		sk := nostr.Generate()
		fmt.Println(nip19.EncodeNsec(sk))
		fmt.Println(nip19.EncodeNpub(nostr.GetPublicKey(sk)))
		return nil
	},
}
