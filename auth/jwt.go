package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors returned by Authorizer.ValidateToken.
var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrNoKeyID      = errors.New("auth: token has no key id")
	ErrKeyNotFound  = errors.New("auth: key not found")
)

// customClaims is the bearer claim shape: capability lists under the
// x-fastly-read / x-fastly-write claims, plus the standard registered
// claims (exp, iat, ...) that jwt.ParseWithClaims enforces.
type customClaims struct {
	jwt.RegisteredClaims
	Read  []string `json:"x-fastly-read,omitempty"`
	Write []string `json:"x-fastly-write,omitempty"`
}

// KeyStore resolves a JWT "kid" header to the HMAC secret that signed it.
type KeyStore interface {
	Lookup(ctx context.Context, kid string) ([]byte, error)
}

// Authorizer turns a bearer token into Capabilities.
type Authorizer interface {
	ValidateToken(ctx context.Context, token string, internalKey []byte) (Capabilities, error)
}

// KVStoreAuthorizer resolves the signing key via a KeyStore, with a special
// case: kid "internal" resolves to the caller-supplied internalKey instead
// of a store lookup.
type KVStoreAuthorizer struct {
	Keys KeyStore
}

func (a KVStoreAuthorizer) ValidateToken(ctx context.Context, token string, internalKey []byte) (Capabilities, error) {
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(token, &customClaims{})
	if err != nil {
		return Capabilities{}, ErrInvalidToken
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return Capabilities{}, ErrNoKeyID
	}

	var key []byte
	if kid == "internal" {
		if internalKey == nil {
			return Capabilities{}, ErrKeyNotFound
		}
		key = internalKey
	} else {
		key, err = a.Keys.Lookup(ctx, kid)
		if err != nil {
			return Capabilities{}, err
		}
	}
	return validateToken(token, key)
}

// StaticAuthorizer verifies every token against one fixed secret,
// regardless of its kid. Used by tests and local, storeless runs of the
// gateway.
type StaticAuthorizer struct {
	Key []byte
}

func (a StaticAuthorizer) ValidateToken(_ context.Context, token string, _ []byte) (Capabilities, error) {
	return validateToken(token, a.Key)
}

func validateToken(token string, key []byte) (Capabilities, error) {
	claims := &customClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Capabilities{}, ErrInvalidToken
	}

	read := make(map[string]bool, len(claims.Read))
	for _, t := range claims.Read {
		read[t] = true
	}
	write := make(map[string]bool, len(claims.Write))
	for _, t := range claims.Write {
		write[t] = true
	}
	return Capabilities{Read: read, Write: write}, nil
}
