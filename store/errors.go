package store

import "errors"

var (
	ErrNotFound          = errors.New("acknowledgment not found")
	ErrDupAcknowledgment = errors.New("duplicate: acknowledgment already exists")
	ErrAlreadyLinked     = errors.New("acknowledgment already linked to a nostr event")
)
