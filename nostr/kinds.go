package nostr

import "strconv"

type Kind uint16

const (
	KindProfileMetadata Kind = 0
	KindTextNote        Kind = 1
)

func (kind Kind) Num() uint16    { return uint16(kind) }
func (kind Kind) String() string { return "kind::" + kind.Name() + "<" + strconv.Itoa(int(kind)) + ">" }
func (kind Kind) Name() string {
	switch kind {
	case KindProfileMetadata:
		return "ProfileMetadata"
	case KindTextNote:
		return "TextNote"
	}
	return "unknown"
}

// IsReplaceable is true for kinds where only the latest event per author matters.
func (kind Kind) IsReplaceable() bool {
	return kind == KindProfileMetadata || kind == 3 || (10000 <= kind && kind < 20000)
}
