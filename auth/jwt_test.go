package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestStaticAuthorizerCapabilities(t *testing.T) {
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(60 * time.Second)),
		},
		Read:  []string{"readable"},
		Write: []string{"writable"},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("notasecret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	caps, err := StaticAuthorizer{Key: []byte("notasecret")}.ValidateToken(context.Background(), signed, nil)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if !caps.CanSubscribe("readable") {
		t.Fatal("expected can_subscribe(readable)")
	}
	if caps.CanSubscribe("foo") {
		t.Fatal("expected !can_subscribe(foo)")
	}
	if !caps.CanPublish("writable") {
		t.Fatal("expected can_publish(writable)")
	}
	if caps.CanSubscribe("foo") {
		t.Fatal("expected !can_subscribe(foo)")
	}
}

func TestAdminCapabilitiesBypassesLists(t *testing.T) {
	caps := AdminCapabilities()
	if !caps.CanSubscribe("anything") || !caps.CanPublish("anything") {
		t.Fatal("admin capabilities should allow any topic")
	}
}

type fixedKeyStore map[string][]byte

func (f fixedKeyStore) Lookup(_ context.Context, kid string) ([]byte, error) {
	key, ok := f[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

func TestKVStoreAuthorizerInternalKid(t *testing.T) {
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
		Write:            []string{"writable"},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = "internal"
	signed, err := token.SignedString([]byte("internal-secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	a := KVStoreAuthorizer{Keys: fixedKeyStore{}}
	caps, err := a.ValidateToken(context.Background(), signed, []byte("internal-secret"))
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if !caps.CanPublish("writable") {
		t.Fatal("expected can_publish(writable)")
	}
}
