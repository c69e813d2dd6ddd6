package boltstore

import (
	"iter"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/store"
	"go.etcd.io/bbolt"
)

func (b *BoltBackend) GetAcknowledgment(id string) (ack highfives.Acknowledgment, err error) {
	err = b.DB.View(func(txn *bbolt.Tx) error {
		ack, err = decode(txn.Bucket(rawAcknowledgments).Get([]byte(id)))
		return err
	})
	return ack, err
}

func (b *BoltBackend) QueryAcknowledgments(filter store.Filter) iter.Seq[highfives.Acknowledgment] {
	return func(yield func(highfives.Acknowledgment) bool) {
		limit := filter.EffectiveLimit()
		results := make([]highfives.Acknowledgment, 0, limit)

		b.DB.View(func(txn *bbolt.Tx) error {
			rawBucket := txn.Bucket(rawAcknowledgments)
			cursor := txn.Bucket(indexCreatedAt).Cursor()

			// walk the index backwards, starting right before the until cutoff
			var k []byte
			if filter.Until.IsZero() {
				k, _ = cursor.Last()
			} else {
				k, _ = cursor.Seek(createdAtKey(filter.Until, ""))
				if k == nil {
					k, _ = cursor.Last()
				} else {
					k, _ = cursor.Prev()
				}
			}

			for ; k != nil && len(results) < limit; k, _ = cursor.Prev() {
				ack, err := decode(rawBucket.Get(idFromIndexKey(k)))
				if err != nil {
					continue
				}
				if filter.Matches(ack) {
					results = append(results, ack)
				}
			}
			return nil
		})

		for _, ack := range results {
			if !yield(ack) {
				return
			}
		}
	}
}
