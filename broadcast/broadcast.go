// Package broadcast announces acknowledgments on Nostr.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/nostr"
	"github.com/rs/zerolog"
)

var ErrNoRelays = errors.New("no relays configured")

var nopLogger = zerolog.Nop()

// DefaultRelays are published to when no relay list is configured.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.primal.net",
	"wss://relay.nostr.band",
}

type Broadcaster struct {
	SecretKey nostr.SecretKey
	Relays    []string

	// Timeout bounds the whole publish, 7 seconds when zero.
	Timeout time.Duration

	Hashtag      string
	RelayOptions nostr.RelayOptions
	Metrics      *Metrics
	Logger       *zerolog.Logger
}

func New(sk nostr.SecretKey, relays []string) *Broadcaster {
	if len(relays) == 0 {
		relays = DefaultRelays
	}
	return &Broadcaster{
		SecretKey: sk,
		Relays:    relays,
		Timeout:   7 * time.Second,
		Hashtag:   DefaultHashtag,
		Logger:    &nopLogger,
	}
}

// SignNote builds the note for ack and signs it.
func (b *Broadcaster) SignNote(ack highfives.Acknowledgment) (nostr.Event, error) {
	evt := BuildNote(ack, b.Hashtag)
	if evt.CreatedAt == 0 || ack.CreatedAt.IsZero() {
		evt.CreatedAt = nostr.Now()
	}
	if err := evt.Sign(b.SecretKey); err != nil {
		return evt, fmt.Errorf("failed to sign: %w", err)
	}
	return evt, nil
}

// Broadcast publishes the note for ack to every relay concurrently and returns
// the event id as soon as one of them accepts it. The other relays keep
// going in the background until they answer or time out. When no relay
// accepts it the error joins every relay failure.
func (b *Broadcaster) Broadcast(ctx context.Context, ack highfives.Acknowledgment) (string, error) {
	if len(b.Relays) == 0 {
		return "", ErrNoRelays
	}

	evt, err := b.SignNote(ack)
	if err != nil {
		b.Metrics.broadcast(false)
		return "", err
	}

	timeout := b.Timeout
	if timeout == 0 {
		timeout = 7 * time.Second
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, errors.New("given up publishing"))

	rs := nostr.NewRelaySet(b.Relays, b.RelayOptions)
	results := rs.PublishMany(ctx, evt)
	release := func() {
		rs.Close()
		cancel()
	}

	log := b.logger().With().Str("ack", ack.ID).Str("event", evt.ID.Hex()).Logger()

	errs := make([]error, 0, len(rs.URLs))
	for res := range results {
		b.Metrics.relay(res.RelayURL, res.Error == nil)

		if res.Error == nil {
			log.Debug().Str("relay", res.RelayURL).Msg("published")
			b.Metrics.broadcast(true)

			go func() {
				for res := range results {
					b.Metrics.relay(res.RelayURL, res.Error == nil)
					if res.Error != nil {
						log.Debug().Err(res.Error).Str("relay", res.RelayURL).Msg("late publish failure")
					}
				}
				release()
			}()

			return evt.ID.Hex(), nil
		}

		log.Debug().Err(res.Error).Str("relay", res.RelayURL).Msg("publish failed")
		errs = append(errs, fmt.Errorf("%s: %w", res.RelayURL, res.Error))
	}
	release()

	b.Metrics.broadcast(false)
	if len(errs) == 0 {
		return "", ErrNoRelays
	}
	return "", fmt.Errorf("no relay accepted the event: %w", errors.Join(errs...))
}

func (b *Broadcaster) logger() *zerolog.Logger {
	if b.Logger == nil {
		return &nopLogger
	}
	return b.Logger
}
