package boltstore

import (
	"time"

	"github.com/highfives-app/highfives/store"
	jsoniter "github.com/json-iterator/go"
	"go.etcd.io/bbolt"
)

var (
	rawAcknowledgments = []byte("rawAcknowledgments")
	indexCreatedAt     = []byte("indexCreatedAt")
)

var json = jsoniter.ConfigFastest

var _ store.Store = (*BoltBackend)(nil)

// BoltBackend stores acknowledgments in a single bbolt file, with an index
// on creation time for newest-first listing.
type BoltBackend struct {
	Path string
	DB   *bbolt.DB
}

func (b *BoltBackend) Init() error {
	db, err := bbolt.Open(b.Path, 0600, &bbolt.Options{
		Timeout:      2 * time.Second,
		FreelistType: bbolt.FreelistMapType,
	})
	if err != nil {
		return err
	}

	b.DB = db

	err = db.Update(func(txn *bbolt.Tx) error {
		if _, err := txn.CreateBucketIfNotExists(rawAcknowledgments); err != nil {
			return err
		}
		if _, err := txn.CreateBucketIfNotExists(indexCreatedAt); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}

	return nil
}

func (b *BoltBackend) Close() {
	b.DB.Close()
}
