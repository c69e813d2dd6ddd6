package profile

import (
	"fmt"
	"strings"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/nostr"
	"github.com/highfives-app/highfives/nostr/nip19"
	"github.com/tidwall/gjson"
)

// ProfileMetadata is the content of a kind-0 event.
type ProfileMetadata struct {
	PubKey nostr.PubKey
	Event  *nostr.Event

	Name        string
	DisplayName string
	About       string
	Website     string
	Picture     string
	NIP05       string
	LUD16       string
	LUD06       string
}

// Npub returns the bech32 encoding of the profile's key.
func (p ProfileMetadata) Npub() string {
	return nip19.EncodeNpub(p.PubKey)
}

// ShortName is what to call this person in a sentence: display_name, then name.
func (p ProfileMetadata) ShortName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// LightningAddress returns lud16 if it is a user@domain address.
func (p ProfileMetadata) LightningAddress() string {
	if _, _, ok := highfives.SplitAddress(p.LUD16); ok {
		return p.LUD16
	}
	return ""
}

// ParseMetadata reads a kind-0 event. Fields that aren't strings are ignored.
func ParseMetadata(event nostr.Event) (ProfileMetadata, error) {
	meta := ProfileMetadata{PubKey: event.PubKey, Event: &event}

	if event.Kind != nostr.KindProfileMetadata {
		return meta, fmt.Errorf("event %s is kind %d, not 0", event.ID, event.Kind)
	}
	if !gjson.Valid(event.Content) {
		return meta, fmt.Errorf("event %s has invalid json content", event.ID)
	}

	content := gjson.Parse(event.Content)
	if !content.IsObject() {
		return meta, fmt.Errorf("event %s content is not an object", event.ID)
	}

	str := func(key string) string {
		v := content.Get(key)
		if v.Type != gjson.String {
			return ""
		}
		return strings.TrimSpace(v.Str)
	}

	meta.Name = str("name")
	meta.DisplayName = str("display_name")
	if meta.DisplayName == "" {
		// some clients still write the old camelCase key
		meta.DisplayName = str("displayName")
	}
	meta.About = str("about")
	meta.Website = str("website")
	meta.Picture = str("picture")
	meta.NIP05 = str("nip05")
	meta.LUD16 = str("lud16")
	meta.LUD06 = str("lud06")

	return meta, nil
}
