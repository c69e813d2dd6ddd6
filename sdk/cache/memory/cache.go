package cache_memory

import (
	"encoding/binary"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoCache keys entries by the last 8 bytes of the 32-byte key, which is
// plenty for public keys and hashes.
type RistrettoCache[V any] struct {
	Cache *ristretto.Cache[uint64, V]

	// TTL is applied by Set, zero means entries only leave when evicted.
	TTL time.Duration
}

func New[V any](max int64, ttl time.Duration) *RistrettoCache[V] {
	cache, _ := ristretto.NewCache(&ristretto.Config[uint64, V]{
		NumCounters: max * 10,
		MaxCost:     max,
		BufferItems: 64,
		KeyToHash:   func(key uint64) (uint64, uint64) { return key, 0 },
	})
	return &RistrettoCache[V]{Cache: cache, TTL: ttl}
}

func key(k [32]byte) uint64 { return binary.BigEndian.Uint64(k[32-8:]) }

func (s *RistrettoCache[V]) Get(k [32]byte) (v V, ok bool) { return s.Cache.Get(key(k)) }
func (s *RistrettoCache[V]) Delete(k [32]byte)             { s.Cache.Del(key(k)) }

func (s *RistrettoCache[V]) Set(k [32]byte, v V) bool {
	return s.SetWithTTL(k, v, s.TTL)
}

// SetWithTTL waits for the write to be applied so a Get right after it sees the value.
func (s *RistrettoCache[V]) SetWithTTL(k [32]byte, v V, d time.Duration) bool {
	ok := s.Cache.SetWithTTL(key(k), v, 1, d)
	s.Cache.Wait()
	return ok
}

func (s *RistrettoCache[V]) Close() { s.Cache.Close() }
