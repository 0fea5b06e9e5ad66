package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for Grip-Sig validation.
var (
	ErrGripSigInvalid      = errors.New("auth: invalid grip-sig")
	ErrGripSigNoIssuer     = errors.New("auth: grip-sig token has no issuer")
	ErrGripSigWrongService = errors.New("auth: grip-sig issued for a different service id")
)

// ValidateGripSig verifies the Grip-Sig header the fronting proxy attaches
// to every request it forwards: an ES256-signed JWT with issuer
// "fastly:<serviceID>", proving the call came through Fastly's own proxy
// rather than directly from the internet.
func ValidateGripSig(sig string, publicKey *ecdsa.PublicKey, serviceID string) error {
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(sig, &claims, func(*jwt.Token) (interface{}, error) {
		return publicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGripSigInvalid, err)
	}
	if claims.Issuer == "" {
		return ErrGripSigNoIssuer
	}
	want := "fastly:" + serviceID
	if claims.Issuer != want {
		return fmt.Errorf("%w: got %q want %q", ErrGripSigWrongService, claims.Issuer, want)
	}
	return nil
}

// AdminByKey reports whether suppliedKey matches the configured
// control-plane key: the distinct admin-override path from
// Grip-Sig-implies-proxy-trust, used by operator/control-plane calls that
// don't go through the fronting proxy at all (e.g. the admin key
// endpoint).
func AdminByKey(suppliedKey, configuredKey string) bool {
	return configuredKey != "" && suppliedKey == configuredKey
}

// ControlMessage is a WS-HTTP TEXT control event sent alongside MQTT
// traffic: subscribe/unsubscribe requests and session metadata updates.
type ControlMessage struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Filters []string `json:"filters,omitempty"`
	Name    string   `json:"name,omitempty"`
	Value   string   `json:"value,omitempty"`
}
