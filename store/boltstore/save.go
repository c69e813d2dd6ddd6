package boltstore

import (
	"fmt"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/store"
	"go.etcd.io/bbolt"
)

func (b *BoltBackend) SaveAcknowledgment(ack highfives.Acknowledgment) error {
	ack.CreatedAt = ack.CreatedAt.UTC()

	return b.DB.Update(func(txn *bbolt.Tx) error {
		rawBucket := txn.Bucket(rawAcknowledgments)

		// check if we already have this id
		if rawBucket.Get([]byte(ack.ID)) != nil {
			return store.ErrDupAcknowledgment
		}

		bin, err := json.Marshal(ack)
		if err != nil {
			return fmt.Errorf("failed to encode: %w", err)
		}

		if err := rawBucket.Put([]byte(ack.ID), bin); err != nil {
			return err
		}
		return txn.Bucket(indexCreatedAt).Put(createdAtKey(ack.CreatedAt, ack.ID), []byte{})
	})
}

func (b *BoltBackend) AttachEventID(id string, eventID string) error {
	return b.DB.Update(func(txn *bbolt.Tx) error {
		rawBucket := txn.Bucket(rawAcknowledgments)

		ack, err := decode(rawBucket.Get([]byte(id)))
		if err != nil {
			return err
		}
		if ack.NostrEventID != "" {
			return store.ErrAlreadyLinked
		}

		ack.NostrEventID = eventID
		bin, err := json.Marshal(ack)
		if err != nil {
			return fmt.Errorf("failed to encode: %w", err)
		}
		return rawBucket.Put([]byte(id), bin)
	})
}

func decode(bin []byte) (highfives.Acknowledgment, error) {
	var ack highfives.Acknowledgment
	if bin == nil {
		return ack, store.ErrNotFound
	}
	if err := json.Unmarshal(bin, &ack); err != nil {
		return ack, fmt.Errorf("failed to decode: %w", err)
	}
	ack.CreatedAt = ack.CreatedAt.UTC()
	return ack, nil
}
