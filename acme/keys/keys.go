// Package keys bridges crypto.Signer key material to JOSE concepts: JWS
// algorithm selection, JWK serialization, key thumbprints and the
// "key authorization" values challenges are validated against.
//
// This is the surviving, core half of the teacher's acme/keys package: key
// *generation* and PEM file I/O (acme4j-ish "key-pair file I/O" that
// spec.md §1 calls out as an external collaborator) moved to
// internal/keystore, since the engine itself only ever consumes an
// already-constructed crypto.Signer.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/problems"
	jose "github.com/go-jose/go-jose/v4"
)

// MinRSABits is the minimum RSA modulus size spec.md §6 requires of an
// account key.
const MinRSABits = 2048

// AlgorithmForSigner selects the JWS signature algorithm for signer per
// spec.md §4.2:
//
//	RSA >= 2048 bits -> RS256
//	EC P-256         -> ES256
//	EC P-384         -> ES384
//	EC P-521         -> ES512
//	Ed25519          -> EdDSA
//	anything else    -> unsupported-key error
func AlgorithmForSigner(signer crypto.Signer) (jose.SignatureAlgorithm, error) {
	switch k := signer.Public().(type) {
	case *rsa.PublicKey:
		if k.N.BitLen() < MinRSABits {
			return "", problems.New(problems.KindUnsupportedKey,
				"RSA key has %d bits, need at least %d", k.N.BitLen(), MinRSABits)
		}
		return jose.RS256, nil
	case *ecdsa.PublicKey:
		switch k.Curve.Params().Name {
		case "P-256":
			return jose.ES256, nil
		case "P-384":
			return jose.ES384, nil
		case "P-521":
			return jose.ES512, nil
		default:
			return "", problems.New(problems.KindUnsupportedKey, "unsupported EC curve %q", k.Curve.Params().Name)
		}
	case ed25519.PublicKey:
		return jose.EdDSA, nil
	default:
		return "", problems.New(problems.KindUnsupportedKey, "unsupported key type %T", k)
	}
}

// JWKForSigner returns the public JWK for signer's public key, tagged with
// the algorithm identifier AlgorithmForSigner would select.
func JWKForSigner(signer crypto.Signer) (jose.JSONWebKey, error) {
	alg, err := AlgorithmForSigner(signer)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	return jose.JSONWebKey{
		Key:       signer.Public(),
		Algorithm: string(alg),
	}, nil
}

// SigningKeyForSigner builds a jose.SigningKey for signer, setting a JWS
// "kid" header to keyID when non-empty (used for every signed request once
// an account URL is known; omitted for newAccount/keyChange/revokeCert-jwk
// requests, which instead embed the JWK).
func SigningKeyForSigner(signer crypto.Signer, keyID string) (jose.SigningKey, error) {
	alg, err := AlgorithmForSigner(signer)
	if err != nil {
		return jose.SigningKey{}, err
	}
	jwk := jose.JSONWebKey{
		Key:       signer,
		Algorithm: string(alg),
		KeyID:     keyID,
	}
	return jose.SigningKey{Key: jwk, Algorithm: alg}, nil
}

// JWKThumbprintBytes returns the raw SHA-256 RFC 7638 thumbprint bytes of
// signer's public key, hashing jsonval's canonical (lexicographically
// ordered) JWK encoding directly rather than go-jose's own thumbprint logic.
func JWKThumbprintBytes(signer crypto.Signer) ([]byte, error) {
	canonical, err := jsonval.JWKBytes(signer.Public())
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}

// JWKThumbprint returns the base64url-encoded (unpadded) SHA-256
// thumbprint of signer's public key. It is idempotent and
// insertion-order-insensitive: the canonical builder always produces the
// same lexicographically-ordered RFC 7638 member set regardless of how the
// JWK was constructed, which is what makes it safe to reuse across key
// authorizations.
func JWKThumbprint(signer crypto.Signer) (string, error) {
	b, err := JWKThumbprintBytes(signer)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// KeyAuth computes the key authorization for a challenge token, per
// spec.md §4.2: token + "." + base64url(SHA-256(canonical JWK(accountKey))).
func KeyAuth(signer crypto.Signer, token string) (string, error) {
	thumb, err := JWKThumbprint(signer)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", token, thumb), nil
}

// SameKey reports whether a and b sign with the identical public key, by
// comparing JWK thumbprints. Used to refuse Certificate.Revoke with the
// certificate's own key when that key equals the current account key
// (spec.md §6).
func SameKey(a, b crypto.Signer) bool {
	ta, err := JWKThumbprint(a)
	if err != nil {
		return false
	}
	tb, err := JWKThumbprint(b)
	if err != nil {
		return false
	}
	return ta == tb
}
