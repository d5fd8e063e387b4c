// Package jws builds and signs the JWS envelopes ACME requests travel in:
// the flattened JSON serialization, with protected headers restricted to
// exactly alg, nonce, url and one of jwk/kid, plus the two special cases
// RFC 8555 needs on top of a plain signed request — the nested key-change
// JWS and the external-account-binding JWS.
//
// Grounded on the teacher's acme/client/jws.go (SigningOptions, Sign,
// signEmbedded/signKeyID), upgraded from the teacher's go-jose.v2 import to
// go-jose/v4 (already used by acme/keys) and generalized away from a
// *Client/*Account receiver to plain crypto.Signer inputs, since the engine's
// Session/Login own nonce management rather than the JOSE layer.
package jws

import (
	"crypto"
	"encoding/json"

	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/keys"
	"github.com/cpu/acmecore/acme/problems"
	jose "github.com/go-jose/go-jose/v4"
)

// NonceSource supplies the "nonce" protected header value for a signature.
// jose.NonceSource already has this exact shape; the pool in acme/noncepool
// implements it directly.
type NonceSource = jose.NonceSource

// Request describes one JWS to produce. Exactly one of KeyID or EmbedJWK
// must be set, per spec.md §4.2.
type Request struct {
	// URL is the request target, placed in the protected "url" header.
	URL string
	// Payload is the request body to sign. A nil/empty slice signs an empty
	// payload, used for POST-as-GET.
	Payload []byte
	// Signer is the key the JWS is signed with.
	Signer crypto.Signer
	// KeyID, when non-empty, is placed in the protected "kid" header.
	KeyID string
	// EmbedJWK requests a "jwk" header carrying Signer's public key instead
	// of a "kid" header. Mutually exclusive with KeyID.
	EmbedJWK bool
	// Nonce supplies the "nonce" protected header.
	Nonce NonceSource
}

func (r *Request) validate() error {
	if r.KeyID != "" && r.EmbedJWK {
		return problems.New(problems.KindProtocol, "jws: cannot specify both KeyID and EmbedJWK")
	}
	if r.KeyID == "" && !r.EmbedJWK {
		return problems.New(problems.KindProtocol, "jws: must specify either KeyID or EmbedJWK")
	}
	if r.Nonce == nil {
		return problems.New(problems.KindProtocol, "jws: must specify a NonceSource")
	}
	if r.Signer == nil {
		return problems.New(problems.KindProtocol, "jws: must specify a Signer")
	}
	return nil
}

// Result holds a produced JWS in both parsed and flattened-serialized form.
type Result struct {
	// Serialized is the flattened JSON serialization: {"protected", "payload",
	// "signature"}, the body sent as the request's application/jose+json
	// payload.
	Serialized []byte
	// JWS is the re-parsed form, handed back so callers (logging, tests) can
	// inspect headers without re-decoding Serialized themselves.
	JWS *jose.JSONWebSignature
}

// Sign produces the flattened JWS for req. Algorithm selection follows
// acme/keys.AlgorithmForSigner (RS256/ES256/ES384/ES512/EdDSA); any other key
// type fails with unsupported-key before a signer is even constructed.
func Sign(req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var signingKey jose.SigningKey
	var err error
	var embedJWK bool
	if req.EmbedJWK {
		signingKey, err = keys.SigningKeyForSigner(req.Signer, "")
		embedJWK = true
	} else {
		signingKey, err = keys.SigningKeyForSigner(req.Signer, req.KeyID)
	}
	if err != nil {
		return nil, err
	}

	signer, err := jose.NewSigner(signingKey, &jose.SignerOptions{
		NonceSource: req.Nonce,
		EmbedJWK:    embedJWK,
		ExtraHeaders: map[jose.HeaderKey]any{
			"url": req.URL,
		},
	})
	if err != nil {
		return nil, problems.Wrap(problems.KindProtocol, req.URL, err)
	}

	return sign(signer, req.Payload)
}

func sign(signer jose.Signer, payload []byte) (*Result, error) {
	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, problems.Wrap(problems.KindProtocol, "", err)
	}

	serialized := []byte(signed.FullSerialize())

	// Re-parse so the returned JWS reflects exactly what will be sent,
	// rather than the signer's in-memory intermediate state.
	parsed, err := jose.ParseSigned(string(serialized), []jose.SignatureAlgorithm{
		jose.RS256, jose.ES256, jose.ES384, jose.ES512, jose.EdDSA,
	})
	if err != nil {
		return nil, problems.Wrap(problems.KindProtocol, "", err)
	}

	return &Result{Serialized: serialized, JWS: parsed}, nil
}

// SignKeyChange produces the nested JWS spec.md §4.2 requires for
// Account.changeKey: an inner JWS signed with newSigner, embedding newSigner's
// JWK and a payload of {"account": accountURL, "oldKey": JWK(oldSigner)},
// wrapped by an outer JWS signed with oldSigner using kid=accountURL. The
// outer JWS has the shape POSTed to the keyChange endpoint; its payload is the
// inner JWS's own flattened serialization.
func SignKeyChange(oldSigner, newSigner crypto.Signer, accountURL, keyChangeURL string, nonce NonceSource) (*Result, error) {
	innerPayload, err := buildKeyChangePayload(accountURL, oldSigner.Public())
	if err != nil {
		return nil, err
	}

	innerSigningKey, err := keys.SigningKeyForSigner(newSigner, "")
	if err != nil {
		return nil, err
	}
	innerSigner, err := jose.NewSigner(innerSigningKey, &jose.SignerOptions{
		EmbedJWK: true,
		ExtraHeaders: map[jose.HeaderKey]any{
			"url": keyChangeURL,
		},
	})
	if err != nil {
		return nil, problems.Wrap(problems.KindProtocol, keyChangeURL, err)
	}
	innerResult, err := sign(innerSigner, innerPayload)
	if err != nil {
		return nil, err
	}

	return Sign(Request{
		URL:     keyChangeURL,
		Payload: innerResult.Serialized,
		Signer:  oldSigner,
		KeyID:   accountURL,
		Nonce:   nonce,
	})
}

// buildKeyChangePayload builds {"account": accountURL, "oldKey": JWK(oldPub)}
// via jsonval's canonical builder (acme/jsonval.JSONBuilder.PutKey), rather
// than go-jose's own JWK marshaling, so the nested key matches the same
// lexicographic-member encoding the rest of the engine's thumbprints use.
func buildKeyChangePayload(accountURL string, oldPub any) ([]byte, error) {
	builder := jsonval.NewBuilder().Put("account", accountURL)
	if _, err := builder.PutKey("oldKey", oldPub); err != nil {
		return nil, err
	}
	return builder.Bytes()
}

// ExternalAccountBinding HMAC algorithms spec.md §4.8 allows.
const (
	HS256 = "HS256"
	HS384 = "HS384"
	HS512 = "HS512"
)

// SignEAB produces the external-account-binding inner JWS RFC 8555 §7.3.4
// requires when a CA advertises externalAccountRequired: a JWS signed with
// the CA-issued HMAC key (identified by eabKeyID), with protected header
// {alg, kid: eabKeyID, url: newAccountURL} (no nonce — this JWS never travels
// alone) and payload equal to the account's own public JWK.
func SignEAB(hmacKey []byte, hmacAlg string, eabKeyID, newAccountURL string, accountSigner crypto.Signer) (*Result, error) {
	alg, err := hmacAlgorithm(hmacAlg)
	if err != nil {
		return nil, err
	}

	accountJWK, err := keys.JWKForSigner(accountSigner)
	if err != nil {
		return nil, err
	}
	payload, err := jsonMarshal(accountJWK)
	if err != nil {
		return nil, err
	}

	signingKey := jose.SigningKey{
		Algorithm: alg,
		Key: jose.JSONWebKey{
			Key:       hmacKey,
			Algorithm: string(alg),
			KeyID:     eabKeyID,
		},
	}
	signer, err := jose.NewSigner(signingKey, &jose.SignerOptions{
		ExtraHeaders: map[jose.HeaderKey]any{
			"url": newAccountURL,
		},
	})
	if err != nil {
		return nil, problems.Wrap(problems.KindProtocol, newAccountURL, err)
	}

	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, problems.Wrap(problems.KindProtocol, newAccountURL, err)
	}
	serialized := []byte(signed.FullSerialize())
	parsed, err := jose.ParseSigned(string(serialized), []jose.SignatureAlgorithm{jose.HS256, jose.HS384, jose.HS512})
	if err != nil {
		return nil, problems.Wrap(problems.KindProtocol, newAccountURL, err)
	}
	return &Result{Serialized: serialized, JWS: parsed}, nil
}

func hmacAlgorithm(name string) (jose.SignatureAlgorithm, error) {
	switch name {
	case HS256:
		return jose.HS256, nil
	case HS384:
		return jose.HS384, nil
	case HS512:
		return jose.HS512, nil
	default:
		return "", problems.New(problems.KindProtocol, "jws: unsupported EAB HMAC algorithm %q", name)
	}
}

func jsonMarshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, problems.Wrap(problems.KindProtocol, "", err)
	}
	return b, nil
}
