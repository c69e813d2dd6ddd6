// Package profile reads Nostr profiles (kind 0) from a fixed set of relays.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/nostr"
	"github.com/highfives-app/highfives/nostr/nip19"
	"github.com/rs/zerolog"
)

var nopLogger = zerolog.Nop()

// DefaultRelays are queried when no relay list is configured.
var DefaultRelays = []string{
	"wss://purplepag.es",
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
}

type Resolver struct {
	Relays []string

	// Timeout bounds the whole lookup, 4 seconds when zero.
	Timeout time.Duration

	RelayOptions nostr.RelayOptions
	Logger       *zerolog.Logger
}

func New(relays []string) *Resolver {
	if len(relays) == 0 {
		relays = DefaultRelays
	}
	return &Resolver{
		Relays:  relays,
		Timeout: 4 * time.Second,
		Logger:  &nopLogger,
	}
}

// ResolveLightningAddress returns the lud16 of the latest profile of npub, or
// "" when there is none. Only a malformed npub is an error.
func (r *Resolver) ResolveLightningAddress(ctx context.Context, npub string) (string, error) {
	pk, err := decode(npub)
	if err != nil {
		return "", err
	}

	meta, ok := r.FetchProfileMetadata(ctx, pk)
	if !ok {
		return "", nil
	}
	return meta.LightningAddress(), nil
}

// ResolveProfileName returns the display name of the latest profile of npub,
// falling back to its name, or "" when there is none.
func (r *Resolver) ResolveProfileName(ctx context.Context, npub string) (string, error) {
	pk, err := decode(npub)
	if err != nil {
		return "", err
	}

	meta, ok := r.FetchProfileMetadata(ctx, pk)
	if !ok {
		return "", nil
	}
	return meta.ShortName(), nil
}

// FetchProfileMetadata queries every relay for kind 0 of pk and returns the one
// with the greatest created_at. It waits for all relays to send EOSE, or for
// the timeout, and closes every connection it opened before returning.
func (r *Resolver) FetchProfileMetadata(ctx context.Context, pk nostr.PubKey) (ProfileMetadata, bool) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = 4 * time.Second
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, errors.New("profile lookup took too long"))
	defer cancel()

	rs := nostr.NewRelaySet(r.Relays, r.RelayOptions)
	defer rs.Close()

	var latest *nostr.RelayEvent
	received := 0
	for ie := range rs.FetchMany(ctx, nostr.Filter{
		Kinds:   []nostr.Kind{nostr.KindProfileMetadata},
		Authors: []nostr.PubKey{pk},
		Limit:   1,
	}, "profile") {
		received++
		if latest == nil || ie.CreatedAt > latest.CreatedAt {
			latest = &ie
		}
	}

	log := r.logger().With().Str("pubkey", pk.Hex()).Int("events", received).Logger()
	if latest == nil {
		log.Debug().Err(context.Cause(ctx)).Msg("no profile found")
		return ProfileMetadata{}, false
	}

	meta, err := ParseMetadata(latest.Event)
	if err != nil {
		log.Debug().Err(err).Str("relay", latest.Relay.URL).Msg("unusable profile")
		return ProfileMetadata{}, false
	}

	log.Debug().Str("relay", latest.Relay.URL).Msg("profile found")
	return meta, true
}

func decode(npub string) (nostr.PubKey, error) {
	pk, err := nip19.DecodeNpub(npub)
	if err != nil {
		return pk, &highfives.ResolutionError{Kind: highfives.InvalidKeyEncoding, Err: err}
	}
	return pk, nil
}

func (r *Resolver) logger() *zerolog.Logger {
	if r.Logger == nil {
		return &nopLogger
	}
	return r.Logger
}
