package auth

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// KeyWriter extends KeyStore with the ability to mint new signing keys.
// It is the collaborator behind the admin key-generation endpoint.
type KeyWriter interface {
	KeyStore
	Store(ctx context.Context, kid string, secret []byte) error
}

// MapKeyStore is an in-process KeyWriter backed by a plain map, used by
// tests and by local, storeless runs of the gateway.
type MapKeyStore struct {
	keys map[string][]byte
}

// NewMapKeyStore returns an empty MapKeyStore.
func NewMapKeyStore() *MapKeyStore {
	return &MapKeyStore{keys: make(map[string][]byte)}
}

func (m *MapKeyStore) Lookup(_ context.Context, kid string) ([]byte, error) {
	key, ok := m.keys[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

func (m *MapKeyStore) Store(_ context.Context, kid string, secret []byte) error {
	m.keys[kid] = secret
	return nil
}

// BadgerKeyStore is the production KeyWriter: a flat "k:<kid>" -> secret
// mapping in a BadgerDB instance, pared down to the single namespace the
// admin endpoint and the bearer-token verifier both need.
type BadgerKeyStore struct {
	db *badger.DB
}

// NewBadgerKeyStore wraps an already-open BadgerDB handle as a KeyWriter.
// The caller owns the handle's lifetime (Close is not exposed here since
// retained/storage's Badger driver typically shares the same process-wide
// database).
func NewBadgerKeyStore(db *badger.DB) *BadgerKeyStore {
	return &BadgerKeyStore{db: db}
}

func keyStoreKey(kid string) []byte { return []byte("k:" + kid) }

func (b *BadgerKeyStore) Lookup(_ context.Context, kid string) ([]byte, error) {
	var secret []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyStoreKey(kid))
		if err != nil {
			return err
		}
		secret, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: keystore lookup %q: %w", kid, err)
	}
	return secret, nil
}

func (b *BadgerKeyStore) Store(_ context.Context, kid string, secret []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyStoreKey(kid), secret)
	})
	if err != nil {
		return fmt.Errorf("auth: keystore store %q: %w", kid, err)
	}
	return nil
}
