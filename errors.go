package highfives

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a resolution failure.
type ErrorKind uint8

const (
	InvalidRecipientFormat ErrorKind = iota + 1
	InvalidKeyEncoding
	InvalidAddressFormat
	UpstreamTimeout
	NoPaymentMethodConfigured
	UpstreamUnavailable
	InvalidAmount
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidRecipientFormat:
		return "invalid-recipient-format"
	case InvalidKeyEncoding:
		return "invalid-key-encoding"
	case InvalidAddressFormat:
		return "invalid-address-format"
	case UpstreamTimeout:
		return "upstream-timeout"
	case NoPaymentMethodConfigured:
		return "no-payment-method-configured"
	case UpstreamUnavailable:
		return "upstream-unavailable"
	case InvalidAmount:
		return "invalid-amount"
	default:
		return "unknown"
	}
}

// UserMessage is what a client should show a human for this kind of failure.
func (k ErrorKind) UserMessage() string {
	switch k {
	case InvalidRecipientFormat:
		return "enter an npub or a user@domain address"
	case InvalidKeyEncoding:
		return "that npub is not a valid Nostr public key"
	case InvalidAddressFormat:
		return "that Lightning Address is not of the form user@domain"
	case NoPaymentMethodConfigured:
		return "no payment method was found for this recipient"
	case UpstreamTimeout, UpstreamUnavailable:
		return "the recipient's payment service is temporarily unavailable, try again"
	case InvalidAmount:
		return "the amount is outside what the recipient accepts"
	default:
		return "something went wrong"
	}
}

// Temporary is true for failures a human can fix by simply retrying later.
func (k ErrorKind) Temporary() bool {
	return k == UpstreamTimeout || k == UpstreamUnavailable
}

// ResolutionError is returned by every resolution step that fails.
type ResolutionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNoPaymentMethodConfigured) and friends match on the kind only.
func (e *ResolutionError) Is(target error) bool {
	var re *ResolutionError
	if errors.As(target, &re) {
		return re.Kind == e.Kind
	}
	return false
}

var (
	ErrInvalidRecipientFormat    = &ResolutionError{Kind: InvalidRecipientFormat}
	ErrInvalidKeyEncoding        = &ResolutionError{Kind: InvalidKeyEncoding}
	ErrInvalidAddressFormat      = &ResolutionError{Kind: InvalidAddressFormat}
	ErrUpstreamTimeout           = &ResolutionError{Kind: UpstreamTimeout}
	ErrNoPaymentMethodConfigured = &ResolutionError{Kind: NoPaymentMethodConfigured}
	ErrUpstreamUnavailable       = &ResolutionError{Kind: UpstreamUnavailable}
	ErrInvalidAmount             = &ResolutionError{Kind: InvalidAmount}
)

// Errorf builds a ResolutionError of the given kind wrapping a formatted cause.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return &ResolutionError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from anywhere in err's chain, or 0 if there is none.
func KindOf(err error) ErrorKind {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}
