// Package storage defines the Driver interface the retained-slot CAS loop
// is built on, modeled on a hierarchical key-value store the way
// https://pkg.go.dev style packages in this stack describe theirs: a small
// Get/Put surface, errors by sentinel, TTL expressed as object lifetime.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned by Put when the item's observed generation no
// longer matches what the caller expected to overwrite, the CAS loop's
// signal to re-read and retry.
var ErrConflict = errors.New("storage: generation conflict")

// Item is the stored representation of one retained slot: payload plus
// the small metadata envelope the retained package attaches to it.
type Item struct {
	Value      []byte
	Generation uint64
	Seq        uint64
	ExpiresAt  *time.Time // nil means no payload TTL; the item itself still lives only for the ttl given to Put
}

// Driver is the storage backend the retained package drives its CAS loop
// against. Implementations must make Put atomic with respect to the
// generation check: a concurrent Put that also passes the check must not
// both succeed.
type Driver interface {
	// Get returns the current item for key, or (nil, nil) if absent.
	Get(ctx context.Context, key string) (*Item, error)

	// Put writes item under key with the given object TTL (0 means no
	// expiry). If createOnly, Put must fail with ErrConflict if the key
	// already exists. Otherwise Put must fail with ErrConflict if the
	// key's current generation does not equal expectedGeneration.
	Put(ctx context.Context, key string, item Item, ttl time.Duration, expectedGeneration uint64, createOnly bool) error

	// Delete removes key. No error if it does not exist.
	Delete(ctx context.Context, key string) error

	Close() error
}
