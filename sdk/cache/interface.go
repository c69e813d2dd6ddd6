// Package cache holds short-lived values keyed by 32-byte identifiers such as
// Nostr public keys.
package cache

import "time"

type Cache32[V any] interface {
	Get(k [32]byte) (v V, ok bool)
	Delete(k [32]byte)

	// Set stores v with the cache's default TTL, if it has one.
	Set(k [32]byte, v V) bool
	SetWithTTL(k [32]byte, v V, d time.Duration) bool
}
