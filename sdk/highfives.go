package sdk

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/store"
	"golang.org/x/sync/errgroup"
)

// MaxReasonLength is counted in characters.
const MaxReasonLength = 2000

var (
	ErrMissingRecipient = errors.New("recipient is required")
	ErrMissingReason    = errors.New("reason is required")
	ErrReasonTooLong    = fmt.Errorf("reason can't be longer than %d characters", MaxReasonLength)
)

// SubmitRequest is what a client sends to record a high five.
type SubmitRequest struct {
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
	Sender    string `json:"sender,omitempty"`

	// PaymentPayload is the payload of the payment instruction the client
	// paid, if it paid one.
	PaymentPayload string `json:"payment_payload,omitempty"`
}

// ResolvePayment returns how recipient can be paid.
func (sys *System) ResolvePayment(ctx context.Context, recipient string) (highfives.PaymentInstruction, error) {
	return sys.Resolver.Resolve(ctx, recipient)
}

// ResolvePaymentAmount is like ResolvePayment but asks LNURL-pay recipients
// for an invoice of msat millisatoshis.
func (sys *System) ResolvePaymentAmount(ctx context.Context, recipient string, msat int64) (highfives.PaymentInstruction, error) {
	return sys.Resolver.ResolveAmount(ctx, recipient, msat)
}

// Submit validates and stores a high five, then queues its broadcast. The
// returned record never depends on the broadcast: the event id is attached
// later, if a relay accepts the note.
func (sys *System) Submit(ctx context.Context, req SubmitRequest) (highfives.Acknowledgment, error) {
	recipient := strings.TrimSpace(req.Recipient)
	reason := strings.TrimSpace(req.Reason)
	sender := strings.TrimSpace(req.Sender)

	if recipient == "" {
		return highfives.Acknowledgment{}, ErrMissingRecipient
	}
	if reason == "" {
		return highfives.Acknowledgment{}, ErrMissingReason
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return highfives.Acknowledgment{}, ErrReasonTooLong
	}

	addr, err := highfives.ParseRecipient(recipient)
	if err != nil {
		return highfives.Acknowledgment{}, err
	}

	ack := highfives.Acknowledgment{
		ID:             uuid.NewString(),
		Recipient:      addr.String(),
		Reason:         reason,
		Sender:         sender,
		PaymentPayload: strings.TrimSpace(req.PaymentPayload),
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}

	ack.ProfileName, ack.SenderProfileName = sys.profileNames(ctx, addr, sender)

	if err := sys.Store.SaveAcknowledgment(ack); err != nil {
		return highfives.Acknowledgment{}, fmt.Errorf("failed to save: %w", err)
	}
	sys.logger().Info().Str("ack", ack.ID).Str("recipient", ack.Recipient).Msg("high five recorded")

	if sys.Worker != nil {
		sys.Worker.Enqueue(ack)
	}

	return ack, nil
}

// profileNames looks up the names of npub participants concurrently. Any
// failure just leaves the name empty.
func (sys *System) profileNames(ctx context.Context, recipient highfives.RecipientAddress, sender string) (string, string) {
	ctx, cancel := context.WithTimeout(ctx, sys.NameTimeout)
	defer cancel()

	var recipientName, senderName string
	g, ctx := errgroup.WithContext(ctx)

	if npub, ok := recipient.(highfives.Npub); ok {
		g.Go(func() error {
			recipientName = sys.profileName(ctx, npub)
			return nil
		})
	}
	if addr, err := highfives.ParseRecipient(sender); err == nil {
		if npub, ok := addr.(highfives.Npub); ok {
			g.Go(func() error {
				senderName = sys.profileName(ctx, npub)
				return nil
			})
		}
	}

	g.Wait()
	return recipientName, senderName
}

func (sys *System) profileName(ctx context.Context, npub highfives.Npub) string {
	if name, ok := sys.NameCache.Get(npub.PubKey); ok {
		return name
	}

	meta, ok := sys.Profiles.FetchProfileMetadata(ctx, npub.PubKey)
	if !ok {
		return ""
	}
	name := meta.ShortName()
	sys.NameCache.Set(npub.PubKey, name)
	return name
}

// Get returns a recorded high five by id, failing with store.ErrNotFound.
func (sys *System) Get(ctx context.Context, id string) (highfives.Acknowledgment, error) {
	return sys.Store.GetAcknowledgment(id)
}

// List returns recorded high fives newest first.
func (sys *System) List(ctx context.Context, filter store.Filter) []highfives.Acknowledgment {
	if filter.Recipient != "" {
		if addr, err := highfives.ParseRecipient(filter.Recipient); err == nil {
			filter.Recipient = addr.String()
		}
	}
	return slices.Collect(sys.Store.QueryAcknowledgments(filter))
}
