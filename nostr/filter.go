package nostr

import (
	"slices"

	jwriter "github.com/mailru/easyjson/jwriter"
)

// Filter is the subset of NIP-01 filters we send to relays.
type Filter struct {
	IDs     []ID
	Kinds   []Kind
	Authors []PubKey
	Tags    TagMap
	Since   Timestamp
	Until   Timestamp
	Limit   int
}

type TagMap map[string][]string

func (ef Filter) String() string {
	j, _ := ef.MarshalJSON()
	return string(j)
}

func (ef Filter) Matches(event Event) bool {
	if ef.IDs != nil && !slices.Contains(ef.IDs, event.ID) {
		return false
	}

	if ef.Kinds != nil && !slices.Contains(ef.Kinds, event.Kind) {
		return false
	}

	if ef.Authors != nil && !slices.Contains(ef.Authors, event.PubKey) {
		return false
	}

	for f, v := range ef.Tags {
		if v != nil && !event.Tags.ContainsAny(f, v) {
			return false
		}
	}

	if ef.Since != 0 && event.CreatedAt < ef.Since {
		return false
	}

	if ef.Until != 0 && event.CreatedAt > ef.Until {
		return false
	}

	return true
}

func easyjsonEncodeFilter(out *jwriter.Writer, in Filter) {
	out.RawByte('{')
	first := true
	field := func(name string) {
		if !first {
			out.RawByte(',')
		}
		first = false
		out.RawByte('"')
		out.RawString(name)
		out.RawString("\":")
	}

	if len(in.IDs) != 0 {
		field("ids")
		out.RawByte('[')
		for i, id := range in.IDs {
			if i > 0 {
				out.RawByte(',')
			}
			out.RawString("\"" + id.Hex() + "\"")
		}
		out.RawByte(']')
	}
	if len(in.Kinds) != 0 {
		field("kinds")
		out.RawByte('[')
		for i, kind := range in.Kinds {
			if i > 0 {
				out.RawByte(',')
			}
			out.Int(int(kind))
		}
		out.RawByte(']')
	}
	if len(in.Authors) != 0 {
		field("authors")
		out.RawByte('[')
		for i, pk := range in.Authors {
			if i > 0 {
				out.RawByte(',')
			}
			out.RawString("\"" + pk.Hex() + "\"")
		}
		out.RawByte(']')
	}
	if in.Since != 0 {
		field("since")
		out.Int64(int64(in.Since))
	}
	if in.Until != 0 {
		field("until")
		out.Int64(int64(in.Until))
	}
	if in.Limit != 0 {
		field("limit")
		out.Int(in.Limit)
	}
	for tag, values := range in.Tags {
		field("#" + tag)
		out.RawByte('[')
		for i, v := range values {
			if i > 0 {
				out.RawByte(',')
			}
			out.String(v)
		}
		out.RawByte(']')
	}
	out.RawByte('}')
}

// MarshalJSON supports json.Marshaler interface
func (v Filter) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	easyjsonEncodeFilter(&w, v)
	return w.Buffer.BuildBytes(), w.Error
}

// MarshalEasyJSON supports easyjson.Marshaler interface
func (v Filter) MarshalEasyJSON(w *jwriter.Writer) {
	w.NoEscapeHTML = true
	easyjsonEncodeFilter(w, v)
}
