// Package lnurl resolves Lightning Addresses through the LNURL-pay handshake.
package lnurl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/nostr"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const maxResponseSize = 1 << 20

var nopLogger = zerolog.Nop()

// PayParams is the first response of the LNURL-pay handshake.
type PayParams struct {
	// Address is the Lightning Address these were fetched for.
	Address string

	// LNURL is the bech32 encoding of the well-known URL.
	LNURL string

	Callback       string
	MinSendable    int64 // msat
	MaxSendable    int64 // msat
	Metadata       string
	CommentAllowed int

	AllowsNostr bool
	NostrPubkey nostr.PubKey
}

type Resolver struct {
	// Timeout bounds each HTTP round trip, 5 seconds when zero.
	Timeout time.Duration

	// Scheme is the scheme used to reach the well-known endpoint, "https" when empty.
	Scheme string

	Client *http.Client
	Logger *zerolog.Logger
}

func New() *Resolver {
	return &Resolver{
		Timeout: 5 * time.Second,
		Scheme:  "https",
		Client:  httpClient,
		Logger:  &nopLogger,
	}
}

// WellKnownURL is where the pay parameters of user@domain live.
func WellKnownURL(scheme, user, domain string) string {
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + domain + "/.well-known/lnurlp/" + url.PathEscape(user)
}

// isBareHost reports whether domain is only a host or host:port, so the
// well-known URL can't be steered to another path.
func isBareHost(domain string) bool {
	u, err := url.Parse("https://" + domain)
	if err != nil {
		return false
	}
	return u.Host == domain && u.Hostname() != "" && u.User == nil &&
		u.Path == "" && u.RawQuery == "" && u.Fragment == "" && !u.ForceQuery
}

// Resolve validates the address and fetches its pay parameters.
//
// Timeouts surface as UpstreamTimeout, transport failures and 5xx answers as
// UpstreamUnavailable, anything else that doesn't yield a usable callback as
// NoPaymentMethodConfigured.
func (r *Resolver) Resolve(ctx context.Context, address string) (PayParams, error) {
	user, domain, ok := highfives.SplitAddress(address)
	if !ok {
		return PayParams{}, highfives.Errorf(highfives.InvalidAddressFormat, "'%s' is not user@domain", address)
	}
	if !isBareHost(domain) {
		return PayParams{}, highfives.Errorf(highfives.InvalidAddressFormat, "'%s' is not a host name", domain)
	}

	wellKnown := WellKnownURL(r.Scheme, user, domain)
	body, err := r.get(ctx, wellKnown)
	if err != nil {
		return PayParams{}, err
	}

	gj := gjson.ParseBytes(body)
	if err := checkStatus(gj); err != nil {
		return PayParams{}, err
	}
	if tag := gj.Get("tag").Str; tag != "payRequest" {
		return PayParams{}, highfives.Errorf(highfives.NoPaymentMethodConfigured, "unexpected lnurl tag '%s'", tag)
	}

	params := PayParams{
		Address:        address,
		Callback:       gj.Get("callback").Str,
		MinSendable:    gj.Get("minSendable").Int(),
		MaxSendable:    gj.Get("maxSendable").Int(),
		Metadata:       gj.Get("metadata").Str,
		CommentAllowed: int(gj.Get("commentAllowed").Int()),
	}

	if cb, err := url.Parse(params.Callback); err != nil || params.Callback == "" || (cb.Scheme != "https" && cb.Scheme != "http") {
		return PayParams{}, highfives.Errorf(highfives.NoPaymentMethodConfigured, "invalid callback '%s'", params.Callback)
	}

	if gj.Get("allowsNostr").Type == gjson.True {
		if pk, err := nostr.PubKeyFromHex(gj.Get("nostrPubkey").Str); err == nil {
			params.AllowsNostr = true
			params.NostrPubkey = pk
		}
	}

	params.LNURL, _ = Encode(wellKnown)

	return params, nil
}

// RequestInvoice asks the callback for a BOLT11 invoice of msat millisatoshis.
func (r *Resolver) RequestInvoice(ctx context.Context, params PayParams, msat int64, comment string) (string, error) {
	if msat <= 0 || msat < params.MinSendable || (params.MaxSendable > 0 && msat > params.MaxSendable) {
		return "", highfives.Errorf(highfives.InvalidAmount,
			"%d msat is outside [%d, %d]", msat, params.MinSendable, params.MaxSendable)
	}

	cb, err := url.Parse(params.Callback)
	if err != nil {
		return "", highfives.Errorf(highfives.NoPaymentMethodConfigured, "invalid callback '%s'", params.Callback)
	}
	qs := cb.Query()
	qs.Set("amount", strconv.FormatInt(msat, 10))
	if comment != "" && params.CommentAllowed > 0 {
		if len(comment) > params.CommentAllowed {
			comment = comment[0:params.CommentAllowed]
		}
		qs.Set("comment", comment)
	}
	cb.RawQuery = qs.Encode()

	body, err := r.get(ctx, cb.String())
	if err != nil {
		return "", err
	}

	gj := gjson.ParseBytes(body)
	if err := checkStatus(gj); err != nil {
		return "", err
	}

	pr := gj.Get("pr").Str
	if pr == "" {
		return "", highfives.Errorf(highfives.NoPaymentMethodConfigured, "callback returned no invoice")
	}
	return pr, nil
}

func (r *Resolver) get(ctx context.Context, target string) ([]byte, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return nil, highfives.Errorf(highfives.InvalidAddressFormat, "failed to create a request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := r.Client
	if client == nil {
		client = httpClient
	}

	r.logger().Debug().Str("url", target).Msg("lnurl request")
	res, err := client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, classify(err)
	}

	switch {
	case res.StatusCode >= 500:
		return nil, highfives.Errorf(highfives.UpstreamUnavailable, "%s answered %d", target, res.StatusCode)
	case res.StatusCode >= 300:
		return nil, highfives.Errorf(highfives.NoPaymentMethodConfigured, "%s answered %d", target, res.StatusCode)
	}

	if !gjson.ValidBytes(body) {
		return nil, highfives.Errorf(highfives.NoPaymentMethodConfigured, "%s returned invalid json", target)
	}

	return body, nil
}

func checkStatus(gj gjson.Result) error {
	if gj.Get("status").Str == "ERROR" {
		return highfives.Errorf(highfives.NoPaymentMethodConfigured, "lnurl error: %s", gj.Get("reason").Str)
	}
	return nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &highfives.ResolutionError{Kind: highfives.UpstreamTimeout, Err: err}
	}
	return &highfives.ResolutionError{Kind: highfives.UpstreamUnavailable, Err: fmt.Errorf("request failed: %w", err)}
}

func (r *Resolver) logger() *zerolog.Logger {
	if r.Logger == nil {
		return &nopLogger
	}
	return r.Logger
}
