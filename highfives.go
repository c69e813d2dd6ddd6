package highfives

import "time"

// Acknowledgment is a persisted high five: someone publicly thanking a recipient.
//
// It is created once, at submission time, and mutated at most once afterwards to
// attach the id of the Nostr event that announced it.
type Acknowledgment struct {
	ID                string    `json:"id"`
	Recipient         string    `json:"recipient"`
	Reason            string    `json:"reason"`
	Sender            string    `json:"sender,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	NostrEventID      string    `json:"nostr_event_id,omitempty"`
	ProfileName       string    `json:"profile_name,omitempty"`
	SenderProfileName string    `json:"sender_profile_name,omitempty"`

	// PaymentPayload is the payment instruction payload the client confirmed, if any.
	PaymentPayload string `json:"payment_payload,omitempty"`
}

// InstructionKind says how a PaymentInstruction payload must be interpreted by a wallet.
type InstructionKind string

const (
	KindBolt12Offer   InstructionKind = "bolt12-offer"
	KindLNURL         InstructionKind = "lnurl"
	KindBolt11Invoice InstructionKind = "bolt11-invoice"
)

// PaymentInstruction is the single normalized output of recipient resolution.
// Payload is never empty for an instruction returned without an error.
type PaymentInstruction struct {
	Kind           InstructionKind `json:"kind"`
	Payload        string          `json:"payload"`
	DisplayAddress string          `json:"display_address,omitempty"`
}

// URI returns the payload in a form that can be turned into a QR code or a link.
func (pi PaymentInstruction) URI() string {
	switch pi.Kind {
	case KindBolt12Offer:
		return "bitcoin:?lno=" + pi.Payload
	case KindBolt11Invoice, KindLNURL:
		return "lightning:" + pi.Payload
	default:
		return pi.Payload
	}
}
