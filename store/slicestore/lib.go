package slicestore

import (
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/store"
)

var _ store.Store = (*SliceStore)(nil)

// SliceStore keeps everything in memory, sorted newest first.
type SliceStore struct {
	sync.Mutex
	internal []highfives.Acknowledgment
}

func (b *SliceStore) Init() error {
	b.internal = make([]highfives.Acknowledgment, 0, 5000)
	return nil
}

func (b *SliceStore) Close() {}

func (b *SliceStore) QueryAcknowledgments(filter store.Filter) iter.Seq[highfives.Acknowledgment] {
	return func(yield func(highfives.Acknowledgment) bool) {
		limit := filter.EffectiveLimit()

		b.Lock()
		// efficiently determine where to start
		start := 0
		if !filter.Until.IsZero() {
			start, _ = slices.BinarySearchFunc(b.internal, filter.Until, func(a highfives.Acknowledgment, until time.Time) int {
				if a.CreatedAt.Before(until) {
					return 1
				}
				return -1
			})
		}

		results := make([]highfives.Acknowledgment, 0, min(limit, len(b.internal)))
		for _, ack := range b.internal[start:] {
			if len(results) == limit {
				break
			}
			if filter.Matches(ack) {
				results = append(results, ack)
			}
		}
		b.Unlock()

		for _, ack := range results {
			if !yield(ack) {
				return
			}
		}
	}
}

func (b *SliceStore) GetAcknowledgment(id string) (highfives.Acknowledgment, error) {
	b.Lock()
	defer b.Unlock()

	idx := b.indexOf(id)
	if idx == -1 {
		return highfives.Acknowledgment{}, store.ErrNotFound
	}
	return b.internal[idx], nil
}

func (b *SliceStore) SaveAcknowledgment(ack highfives.Acknowledgment) error {
	b.Lock()
	defer b.Unlock()

	if b.indexOf(ack.ID) != -1 {
		return store.ErrDupAcknowledgment
	}

	ack.CreatedAt = ack.CreatedAt.UTC()

	// let's insert at the correct place in the array
	idx, _ := slices.BinarySearchFunc(b.internal, ack, store.Compare)
	b.internal = slices.Insert(b.internal, idx, ack)

	return nil
}

func (b *SliceStore) AttachEventID(id string, eventID string) error {
	b.Lock()
	defer b.Unlock()

	idx := b.indexOf(id)
	if idx == -1 {
		return store.ErrNotFound
	}
	if b.internal[idx].NostrEventID != "" {
		return store.ErrAlreadyLinked
	}

	b.internal[idx].NostrEventID = eventID
	return nil
}

func (b *SliceStore) indexOf(id string) int {
	return slices.IndexFunc(b.internal, func(a highfives.Acknowledgment) bool { return a.ID == id })
}
