package pubsub

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
)

func decodeHexKey(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("pubsub: decoding internalKeyHex: %w", err)
	}
	return b, nil
}

func parseECDSAPublicKeyPEM(pemStr string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("pubsub: gripPublicKeyPem: no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("pubsub: gripPublicKeyPem: %w", err)
	}
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("pubsub: gripPublicKeyPem: not an ECDSA public key")
	}
	return key, nil
}

func errUnknownStorageDriver(driver string) error {
	return fmt.Errorf("pubsub: unknown storage driver %q", driver)
}
