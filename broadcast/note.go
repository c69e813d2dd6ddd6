package broadcast

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/nostr"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultHashtag is added as a "t" tag and at the end of every note.
const DefaultHashtag = "highfives"

var policy = bluemonday.StrictPolicy()

// sanitize strips any markup from user-provided text, it is plain text for Nostr clients.
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
}

// participant renders a recipient or sender for the note body, mentioning
// npubs with a nostr: URI so clients link the profile, and returns the
// pubkey to tag when there is one.
func participant(raw string, name string) (string, *nostr.PubKey) {
	name = sanitize(name)

	addr, err := highfives.ParseRecipient(raw)
	if err != nil {
		return sanitize(raw), nil
	}

	if npub, ok := addr.(highfives.Npub); ok {
		mention := "nostr:" + npub.String()
		if name != "" {
			mention = name + " (" + mention + ")"
		}
		return mention, &npub.PubKey
	}

	if name != "" {
		return name + " (" + addr.String() + ")", nil
	}
	return addr.String(), nil
}

// BuildNote renders an acknowledgment as an unsigned kind-1 event.
func BuildNote(ack highfives.Acknowledgment, hashtag string) nostr.Event {
	if hashtag == "" {
		hashtag = DefaultHashtag
	}

	tags := nostr.Tags{}
	recipient, recipientPK := participant(ack.Recipient, ack.ProfileName)
	if recipientPK != nil {
		tags = tags.AppendUnique(nostr.Tag{"p", recipientPK.Hex()})
	}

	var content strings.Builder
	content.WriteString("🙌 High five to ")
	content.WriteString(recipient)
	content.WriteString("!")

	if reason := sanitize(ack.Reason); reason != "" {
		content.WriteString("\n\n")
		content.WriteString(reason)
	}

	if ack.Sender != "" {
		sender, senderPK := participant(ack.Sender, ack.SenderProfileName)
		if senderPK != nil {
			tags = tags.AppendUnique(nostr.Tag{"p", senderPK.Hex()})
		}
		content.WriteString("\n\nfrom ")
		content.WriteString(sender)
	}

	if ack.PaymentPayload != "" {
		content.WriteString("\n\n⚡ ")
		content.WriteString(paymentReference(ack.PaymentPayload))
	}

	content.WriteString("\n\n#")
	content.WriteString(hashtag)
	tags = tags.AppendUnique(nostr.Tag{"t", hashtag})

	return nostr.Event{
		Kind:      nostr.KindTextNote,
		CreatedAt: nostr.Timestamp(ack.CreatedAt.Unix()),
		Tags:      tags,
		Content:   content.String(),
	}
}

// paymentReference shows which kind of payment was made without dumping a whole offer or invoice.
func paymentReference(payload string) string {
	payload = sanitize(payload)
	const keep = 24

	label := "paid"
	switch {
	case strings.HasPrefix(payload, "lno"):
		label = "paid to offer"
	case strings.HasPrefix(payload, "lnbc"), strings.HasPrefix(payload, "lntb"):
		label = "paid invoice"
	case strings.HasPrefix(payload, "http"):
		label = "paid via"
	}
	if !strings.HasPrefix(payload, "http") {
		payload = truncateRunes(payload, keep)
	}
	return label + " " + payload
}

// truncateRunes cuts s to at most n runes, marking the cut with an ellipsis.
func truncateRunes(s string, n int) string {
	end := 0
	for i := 0; i < n; i++ {
		if end >= len(s) {
			return s
		}
		_, size := utf8.DecodeRuneInString(s[end:])
		end += size
	}
	if end >= len(s) {
		return s
	}
	return s[0:end] + "…"
}
