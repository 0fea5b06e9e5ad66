package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signedToken mints an HS256 token signed with the same secret
// auth.StaticAuthorizer uses in these tests, carrying the given
// read/write topic lists.
func signedToken(t *testing.T, read, write []string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"exp":            jwt.NewNumericDate(time.Now().Add(time.Minute)).Unix(),
		"x-fastly-read":  read,
		"x-fastly-write": write,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("notasecret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}
