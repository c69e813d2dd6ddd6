package boltstore

import (
	"encoding/binary"
	"time"
)

// createdAtKey sorts by creation time, then by id.
func createdAtKey(createdAt time.Time, id string) []byte {
	k := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(k[0:8], uint64(createdAt.UnixNano()))
	copy(k[8:], id)
	return k
}

func idFromIndexKey(k []byte) []byte {
	return k[8:]
}
