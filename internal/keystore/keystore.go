// Package keystore provides key-pair generation and PEM file I/O for
// crypto.Signer values. spec.md §1 calls this out as an external
// collaborator the core engine only ever consumes through the narrow
// "already-constructed crypto.Signer" interface — this package exists for
// the example CLI and tests, never imported by acme/ itself.
//
// Grounded on the teacher's acme/keys/keys.go (MarshalSigner,
// UnmarshalSigner, SignerToPEM, NewSigner), split out verbatim in spirit but
// widened to the full account-key type set spec.md §6 allows (RSA, the three
// NIST curves, and Ed25519).
package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// KeyType names a generatable key algorithm.
type KeyType string

const (
	ECDSAP256 KeyType = "ecdsa-p256"
	ECDSAP384 KeyType = "ecdsa-p384"
	ECDSAP521 KeyType = "ecdsa-p521"
	RSA2048   KeyType = "rsa-2048"
	RSA4096   KeyType = "rsa-4096"
	Ed25519   KeyType = "ed25519"
)

// NewSigner generates a fresh key pair of the given type.
func NewSigner(keyType KeyType) (crypto.Signer, error) {
	switch keyType {
	case ECDSAP256:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case ECDSAP384:
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case ECDSAP521:
		return ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case RSA2048:
		return rsa.GenerateKey(rand.Reader, 2048)
	case RSA4096:
		return rsa.GenerateKey(rand.Reader, 4096)
	case Ed25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	default:
		return nil, fmt.Errorf("keystore: unknown key type %q", keyType)
	}
}

// SignerToPEM encodes signer's private key as a PEM block using a PKCS#8
// wrapper, which (unlike the teacher's type-specific EC/RSA PEM headers)
// handles Ed25519 keys too.
func SignerToPEM(signer crypto.Signer) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(signer)
	if err != nil {
		return "", fmt.Errorf("keystore: marshaling private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// SavePEM writes signer's PEM-encoded private key to path with
// user-only permissions, since the file contains key material.
func SavePEM(path string, signer crypto.Signer) error {
	pemText, err := SignerToPEM(signer)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(pemText), 0o600)
}

// LoadPEM reads and decodes a PKCS#8 PEM private key from path.
func LoadPEM(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePEM(data)
}

// ParsePEM decodes a PKCS#8 PEM private key from raw bytes.
func ParsePEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("keystore: no PEM block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keystore: parsing PKCS8 key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("keystore: decoded key of type %T is not a crypto.Signer", key)
	}
	return signer, nil
}
