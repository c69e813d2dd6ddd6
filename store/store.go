package store

import (
	"iter"
	"time"

	"github.com/highfives-app/highfives"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Store persists acknowledgments. Records are never deleted and only change
// once, when the id of the Nostr event announcing them is attached.
type Store interface {
	// Init must be called before anything else, it opens or creates the underlying storage.
	Init() error

	// Close must be called after you're done using the store, to free up resources and so on.
	Close()

	// SaveAcknowledgment inserts a new record, failing with ErrDupAcknowledgment if the id is taken.
	SaveAcknowledgment(highfives.Acknowledgment) error

	// GetAcknowledgment fails with ErrNotFound for unknown ids.
	GetAcknowledgment(id string) (highfives.Acknowledgment, error)

	// QueryAcknowledgments yields records newest first.
	QueryAcknowledgments(Filter) iter.Seq[highfives.Acknowledgment]

	// AttachEventID links a record to its Nostr event. It fails with
	// ErrAlreadyLinked if the record already has one and ErrNotFound if there
	// is no such record.
	AttachEventID(id string, eventID string) error
}

// Filter selects acknowledgments. The zero value selects the latest DefaultLimit records.
type Filter struct {
	// Recipient only matches records for this exact recipient string.
	Recipient string

	// Until only matches records created strictly before it.
	Until time.Time

	Limit int
}

// EffectiveLimit applies the default and the maximum to f.Limit.
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	default:
		return f.Limit
	}
}

// Matches ignores the limit.
func (f Filter) Matches(ack highfives.Acknowledgment) bool {
	if f.Recipient != "" && ack.Recipient != f.Recipient {
		return false
	}
	if !f.Until.IsZero() && !ack.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}

// Compare orders acknowledgments newest first, breaking ties by id.
func Compare(a, b highfives.Acknowledgment) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	default:
		return 0
	}
}
