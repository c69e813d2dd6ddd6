// Package bip353 looks up BOLT12 offers published in DNS TXT records under
// <user>.user._bitcoin-payment.<domain>.
package bip353

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/highfives-app/highfives"
	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

// OfferPrefix is the human-readable part every BOLT12 offer starts with.
const OfferPrefix = "lno"

const fallbackNameserver = "1.1.1.1:53"

var nopLogger = zerolog.Nop()

type Resolver struct {
	// Nameserver is a host:port the queries are sent to.
	Nameserver string

	// Timeout bounds each exchange, the context may cut it shorter.
	Timeout time.Duration

	Logger *zerolog.Logger
}

// New returns a resolver that queries nameserver, or the system's first
// nameserver when it is empty.
func New(nameserver string) *Resolver {
	if nameserver == "" {
		nameserver = SystemNameserver()
	}
	return &Resolver{
		Nameserver: nameserver,
		Timeout:    3 * time.Second,
		Logger:     &nopLogger,
	}
}

// SystemNameserver reads the first nameserver from /etc/resolv.conf, falling
// back to a public resolver if there is none.
func SystemNameserver() string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return fallbackNameserver
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}

// QueryName is the fully qualified name holding the payment instructions for user@domain.
func QueryName(user, domain string) string {
	return dns.Fqdn(user + ".user._bitcoin-payment." + strings.TrimSuffix(domain, "."))
}

// ResolvePaymentTxt returns the BOLT12 offer published for the btag, if any.
//
// Every failure (NXDOMAIN, timeouts, garbage answers, records that are not
// offers) is reported as absence, never as an error.
func (r *Resolver) ResolvePaymentTxt(ctx context.Context, btag highfives.Btag) (string, bool) {
	name := QueryName(btag.User, btag.Domain)

	value, err := r.lookupTXT(ctx, name)
	if err != nil {
		r.logger().Debug().Err(err).Str("name", name).Msg("bip353 lookup failed")
		return "", false
	}

	if !strings.HasPrefix(value, OfferPrefix) {
		r.logger().Debug().Str("name", name).Str("value", value).Msg("txt record is not an offer")
		return "", false
	}

	return value, true
}

// lookupTXT returns the joined character-strings of the first TXT record for name.
func (r *Resolver) lookupTXT(ctx context.Context, name string) (string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeTXT)
	msg.RecursionDesired = true
	msg.SetEdns0(4096, false)

	client := &dns.Client{Net: "udp", Timeout: r.Timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, r.Nameserver)
	if err != nil {
		return "", fmt.Errorf("exchange with %s: %w", r.Nameserver, err)
	}

	if resp.Truncated {
		client.Net = "tcp"
		resp, _, err = client.ExchangeContext(ctx, msg, r.Nameserver)
		if err != nil {
			return "", fmt.Errorf("tcp exchange with %s: %w", r.Nameserver, err)
		}
	}

	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode])
	}

	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			return strings.Join(txt.Txt, ""), nil
		}
	}

	return "", fmt.Errorf("no txt record")
}

func (r *Resolver) logger() *zerolog.Logger {
	if r.Logger == nil {
		return &nopLogger
	}
	return r.Logger
}
