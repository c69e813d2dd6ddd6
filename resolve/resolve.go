// Package resolve turns a free-text recipient into a payment instruction.
package resolve

import (
	"context"
	"time"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/lnurl"
	"github.com/rs/zerolog"
)

var nopLogger = zerolog.Nop()

type DNSResolver interface {
	ResolvePaymentTxt(ctx context.Context, btag highfives.Btag) (string, bool)
}

type LightningResolver interface {
	Resolve(ctx context.Context, address string) (lnurl.PayParams, error)
	RequestInvoice(ctx context.Context, params lnurl.PayParams, msat int64, comment string) (string, error)
}

type ProfileResolver interface {
	ResolveLightningAddress(ctx context.Context, npub string) (string, error)
}

// Dispatcher routes a recipient to the right resolver.
//
// A user@domain is looked up in DNS first and only falls back to LNURL-pay when
// there is no BOLT12 offer there. An npub is resolved through the lud16 of its
// profile. No step is ever retried.
type Dispatcher struct {
	DNS       DNSResolver
	Lightning LightningResolver
	Profiles  ProfileResolver

	Metrics *Metrics
	Logger  *zerolog.Logger
}

func New(dns DNSResolver, ln LightningResolver, profiles ProfileResolver) *Dispatcher {
	return &Dispatcher{
		DNS:       dns,
		Lightning: ln,
		Profiles:  profiles,
		Logger:    &nopLogger,
	}
}

// Resolve returns a reusable payment instruction for recipient: a BOLT12 offer
// or an LNURL-pay callback.
func (d *Dispatcher) Resolve(ctx context.Context, recipient string) (highfives.PaymentInstruction, error) {
	return d.resolve(ctx, recipient, 0)
}

// ResolveAmount is like Resolve, but when the recipient is reached over
// LNURL-pay it requests a BOLT11 invoice for msat millisatoshis. BOLT12 offers
// are returned as they are, the paying wallet picks the amount.
func (d *Dispatcher) ResolveAmount(ctx context.Context, recipient string, msat int64) (highfives.PaymentInstruction, error) {
	if msat <= 0 {
		return highfives.PaymentInstruction{}, highfives.Errorf(highfives.InvalidAmount, "amount must be positive, got %d", msat)
	}
	return d.resolve(ctx, recipient, msat)
}

func (d *Dispatcher) resolve(ctx context.Context, recipient string, msat int64) (pi highfives.PaymentInstruction, err error) {
	started := time.Now()
	shape := "invalid"
	defer func() {
		outcome := string(pi.Kind)
		if err != nil {
			outcome = highfives.KindOf(err).String()
		}
		d.Metrics.observe(shape, outcome, started)

		log := d.logger().Debug()
		if err != nil {
			log = d.logger().Info().Err(err)
		}
		log.Str("recipient", recipient).Str("outcome", outcome).Dur("took", time.Since(started)).Msg("resolution")
	}()

	addr, err := highfives.ParseRecipient(recipient)
	if err != nil {
		return pi, err
	}

	switch addr := addr.(type) {
	case highfives.Npub:
		shape = "npub"
		return d.resolveNpub(ctx, addr, msat)
	case highfives.Btag:
		shape = "btag"
		return d.resolveBtag(ctx, addr, msat)
	}

	return pi, highfives.Errorf(highfives.InvalidRecipientFormat, "unsupported recipient %T", addr)
}

func (d *Dispatcher) resolveBtag(ctx context.Context, btag highfives.Btag, msat int64) (highfives.PaymentInstruction, error) {
	if offer, ok := d.DNS.ResolvePaymentTxt(ctx, btag); ok {
		return highfives.PaymentInstruction{
			Kind:           highfives.KindBolt12Offer,
			Payload:        offer,
			DisplayAddress: btag.String(),
		}, nil
	}

	return d.resolveLightning(ctx, btag.AsLightningAddress().String(), msat)
}

func (d *Dispatcher) resolveNpub(ctx context.Context, npub highfives.Npub, msat int64) (highfives.PaymentInstruction, error) {
	address, err := d.Profiles.ResolveLightningAddress(ctx, npub.String())
	if err != nil {
		return highfives.PaymentInstruction{}, err
	}
	if address == "" {
		return highfives.PaymentInstruction{}, highfives.Errorf(highfives.NoPaymentMethodConfigured, "profile of %s has no lightning address", npub)
	}

	return d.resolveLightning(ctx, address, msat)
}

func (d *Dispatcher) resolveLightning(ctx context.Context, address string, msat int64) (highfives.PaymentInstruction, error) {
	params, err := d.Lightning.Resolve(ctx, address)
	if err != nil {
		return highfives.PaymentInstruction{}, lightningFailure(err)
	}

	if msat == 0 {
		return highfives.PaymentInstruction{
			Kind:           highfives.KindLNURL,
			Payload:        params.Callback,
			DisplayAddress: address,
		}, nil
	}

	invoice, err := d.Lightning.RequestInvoice(ctx, params, msat, "")
	if err != nil {
		if highfives.KindOf(err) == highfives.InvalidAmount {
			return highfives.PaymentInstruction{}, err
		}
		return highfives.PaymentInstruction{}, lightningFailure(err)
	}

	return highfives.PaymentInstruction{
		Kind:           highfives.KindBolt11Invoice,
		Payload:        invoice,
		DisplayAddress: address,
	}, nil
}

// lightningFailure keeps upstream timeouts and outages visible and folds
// everything else into NoPaymentMethodConfigured.
func lightningFailure(err error) error {
	switch highfives.KindOf(err) {
	case highfives.UpstreamTimeout, highfives.UpstreamUnavailable, highfives.NoPaymentMethodConfigured:
		return err
	default:
		return &highfives.ResolutionError{Kind: highfives.NoPaymentMethodConfigured, Err: err}
	}
}

func (d *Dispatcher) logger() *zerolog.Logger {
	if d.Logger == nil {
		return &nopLogger
	}
	return d.Logger
}
