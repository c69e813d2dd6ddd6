package nostr

import (
	"errors"
	"fmt"
	"strings"

	jwriter "github.com/mailru/easyjson/jwriter"
	"github.com/tidwall/gjson"
)

var (
	UnknownLabel        = errors.New("unknown envelope label")
	InvalidJsonEnvelope = errors.New("invalid json envelope")
)

// ParseMessage parses a message coming from a relay (or, in tests, from a client).
func ParseMessage(message string) (Envelope, error) {
	firstQuote := strings.IndexByte(message, '"')
	if firstQuote == -1 {
		return nil, InvalidJsonEnvelope
	}
	secondQuote := strings.IndexByte(message[firstQuote+1:], '"')
	if secondQuote == -1 {
		return nil, InvalidJsonEnvelope
	}
	label := message[firstQuote+1 : firstQuote+1+secondQuote]

	var v Envelope
	switch label {
	case "EVENT":
		v = &EventEnvelope{}
	case "REQ":
		v = &ReqEnvelope{}
	case "NOTICE":
		x := NoticeEnvelope("")
		v = &x
	case "EOSE":
		x := EOSEEnvelope("")
		v = &x
	case "OK":
		v = &OKEnvelope{}
	case "CLOSED":
		v = &ClosedEnvelope{}
	case "CLOSE":
		x := CloseEnvelope("")
		v = &x
	default:
		return nil, UnknownLabel
	}

	if err := v.FromJSON(message); err != nil {
		return nil, err
	}

	return v, nil
}

// Envelope is the interface for all nostr message envelopes.
type Envelope interface {
	Label() string
	FromJSON(string) error
	MarshalJSON() ([]byte, error)
}

var (
	_ Envelope = (*EventEnvelope)(nil)
	_ Envelope = (*ReqEnvelope)(nil)
	_ Envelope = (*NoticeEnvelope)(nil)
	_ Envelope = (*EOSEEnvelope)(nil)
	_ Envelope = (*CloseEnvelope)(nil)
	_ Envelope = (*ClosedEnvelope)(nil)
	_ Envelope = (*OKEnvelope)(nil)
)

// EventEnvelope represents an EVENT message.
type EventEnvelope struct {
	SubscriptionID *string
	Event
}

func (EventEnvelope) Label() string { return "EVENT" }

func (v *EventEnvelope) FromJSON(data string) error {
	arr := gjson.Parse(data).Array()
	switch len(arr) {
	case 2:
		return v.Event.UnmarshalJSON([]byte(arr[1].Raw))
	case 3:
		subid := arr[1].String()
		v.SubscriptionID = &subid
		return v.Event.UnmarshalJSON([]byte(arr[2].Raw))
	default:
		return fmt.Errorf("failed to decode EVENT envelope")
	}
}

func (v EventEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`["EVENT",`)
	if v.SubscriptionID != nil {
		w.String(*v.SubscriptionID)
		w.RawByte(',')
	}
	v.Event.MarshalEasyJSON(&w)
	w.RawByte(']')
	return w.Buffer.BuildBytes(), w.Error
}

// ReqEnvelope represents a REQ message.
type ReqEnvelope struct {
	SubscriptionID string
	Filters        []Filter
}

func (ReqEnvelope) Label() string { return "REQ" }

// FromJSON only understands the "kinds", "authors" and "limit" filter fields.
func (v *ReqEnvelope) FromJSON(data string) error {
	arr := gjson.Parse(data).Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode REQ envelope: missing filters")
	}
	v.SubscriptionID = arr[1].String()
	v.Filters = make([]Filter, 0, len(arr)-2)
	for _, fj := range arr[2:] {
		f := Filter{Limit: int(fj.Get("limit").Int())}
		for _, k := range fj.Get("kinds").Array() {
			f.Kinds = append(f.Kinds, Kind(k.Int()))
		}
		for _, a := range fj.Get("authors").Array() {
			pk, err := PubKeyFromHexCheap(a.String())
			if err != nil {
				return fmt.Errorf("on filter: %w", err)
			}
			f.Authors = append(f.Authors, pk)
		}
		v.Filters = append(v.Filters, f)
	}
	return nil
}

func (v ReqEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`["REQ",`)
	w.String(v.SubscriptionID)
	for _, filter := range v.Filters {
		w.RawByte(',')
		filter.MarshalEasyJSON(&w)
	}
	w.RawByte(']')
	return w.Buffer.BuildBytes(), w.Error
}

// NoticeEnvelope represents a NOTICE message.
type NoticeEnvelope string

func (NoticeEnvelope) Label() string { return "NOTICE" }

func (v *NoticeEnvelope) FromJSON(data string) error {
	arr := gjson.Parse(data).Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode NOTICE envelope")
	}
	*v = NoticeEnvelope(arr[1].String())
	return nil
}

func (v NoticeEnvelope) MarshalJSON() ([]byte, error) {
	return labelled("NOTICE", string(v)), nil
}

// EOSEEnvelope represents an EOSE (End of Stored Events) message.
type EOSEEnvelope string

func (EOSEEnvelope) Label() string { return "EOSE" }

func (v *EOSEEnvelope) FromJSON(data string) error {
	arr := gjson.Parse(data).Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode EOSE envelope")
	}
	*v = EOSEEnvelope(arr[1].String())
	return nil
}

func (v EOSEEnvelope) MarshalJSON() ([]byte, error) {
	return labelled("EOSE", string(v)), nil
}

// CloseEnvelope represents a CLOSE message.
type CloseEnvelope string

func (CloseEnvelope) Label() string { return "CLOSE" }

func (v *CloseEnvelope) FromJSON(data string) error {
	arr := gjson.Parse(data).Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode CLOSE envelope")
	}
	*v = CloseEnvelope(arr[1].String())
	return nil
}

func (v CloseEnvelope) MarshalJSON() ([]byte, error) {
	return labelled("CLOSE", string(v)), nil
}

// ClosedEnvelope represents a CLOSED message.
type ClosedEnvelope struct {
	SubscriptionID string
	Reason         string
}

func (ClosedEnvelope) Label() string { return "CLOSED" }

func (v *ClosedEnvelope) FromJSON(data string) error {
	arr := gjson.Parse(data).Array()
	if len(arr) < 3 {
		return fmt.Errorf("failed to decode CLOSED envelope")
	}
	*v = ClosedEnvelope{
		SubscriptionID: arr[1].String(),
		Reason:         arr[2].String(),
	}
	return nil
}

func (v ClosedEnvelope) MarshalJSON() ([]byte, error) {
	return labelled("CLOSED", v.SubscriptionID, v.Reason), nil
}

// OKEnvelope represents an OK message.
type OKEnvelope struct {
	EventID ID
	OK      bool
	Reason  string
}

func (OKEnvelope) Label() string { return "OK" }

func (v *OKEnvelope) FromJSON(data string) error {
	arr := gjson.Parse(data).Array()
	if len(arr) < 4 {
		return fmt.Errorf("failed to decode OK envelope: missing fields")
	}
	id, err := IDFromHex(arr[1].String())
	if err != nil {
		return err
	}
	v.EventID = id
	v.OK = arr[2].Bool()
	v.Reason = arr[3].String()

	return nil
}

func (v OKEnvelope) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`["OK",`)
	w.String(v.EventID.Hex())
	w.RawByte(',')
	w.Bool(v.OK)
	w.RawByte(',')
	w.String(v.Reason)
	w.RawByte(']')
	return w.Buffer.BuildBytes(), w.Error
}

func labelled(label string, items ...string) []byte {
	w := jwriter.Writer{NoEscapeHTML: true}
	w.RawString(`["` + label + `"`)
	for _, item := range items {
		w.RawByte(',')
		w.String(item)
	}
	w.RawByte(']')
	b, _ := w.BuildBytes()
	return b
}
