// Package admin implements the control-plane key-generation endpoint:
// minting an HMAC signing key and handing it back once, the caller is
// expected to persist the id/secret pair for later use as a JWT kid.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/fastly/pubsub/auth"
)

// Key is the minted signing key, a value response never stored by the
// gateway itself beyond the one write to the KeyWriter.
type Key struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// GenerateKey mints a new Key and persists it to keys, following the
// admin endpoint's own derivation: a random 32-byte seed hashed once
// (SHA-1) for the secret value, then hashed again and truncated to 4
// bytes for the id, so the id never leaks bits of the secret itself.
func GenerateKey(ctx context.Context, keys auth.KeyWriter) (Key, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return Key{}, fmt.Errorf("admin: generating key seed: %w", err)
	}

	valueDigest := sha1.Sum(seed)
	value := hex.EncodeToString(valueDigest[:])

	idDigest := sha1.Sum([]byte(value))
	id := hex.EncodeToString(idDigest[:4])

	key := Key{ID: id, Value: value}
	if err := keys.Store(ctx, key.ID, []byte(key.Value)); err != nil {
		return Key{}, fmt.Errorf("admin: storing key %q: %w", key.ID, err)
	}
	return key, nil
}

// PostKeys is the /admin/keys handler logic, independent of any HTTP
// framework: it never runs unless the caller has already established
// admin trust (a valid Fastly-Key header, checked via auth.AdminByKey).
func PostKeys(ctx context.Context, keys auth.KeyWriter) (Key, error) {
	return GenerateKey(ctx, keys)
}
