// Package challenges computes the per-type response material spec.md §4.11
// describes for each supported challenge type, all derived from a single
// account key authorization (acme/keys.KeyAuth).
//
// No teacher equivalent exists (acmeshell's shell/solve.go drove challenge
// completion interactively rather than computing response material as a
// library call); the tls-alpn-01 OID and dns-01 record-name shape are
// grounded on RFC 8737/RFC 8555 directly, with the DNS name construction
// using miekg/dns's Fqdn helper the way the teacher's go.mod already pulls
// in that dependency (transitively, via challtestsrv).
package challenges

import (
	"crypto"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"fmt"

	"github.com/cpu/acmecore/acme/keys"
	"github.com/cpu/acmecore/acme/problems"
	"github.com/miekg/dns"
)

// Type names a challenge's validation mechanism.
type Type string

const (
	HTTP01       Type = "http-01"
	DNS01        Type = "dns-01"
	TLSALPN01    Type = "tls-alpn-01"
	EmailReply00 Type = "email-reply-00"
)

// acmeValidationOID is the X.509 extension OID (RFC 8737 §3) carrying the
// tls-alpn-01 response digest in a self-signed certificate.
var acmeValidationOID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 31}

// AcmeValidationOID exports acmeValidationOID for callers building the
// self-signed validation certificate outside this package (CSR/cert
// construction is an external collaborator per spec.md §1).
func AcmeValidationOID() asn1.ObjectIdentifier { return acmeValidationOID }

// HTTPResponse returns the raw ASCII key authorization http-01 expects at
// /.well-known/acme-challenge/<token>, with content-type
// application/octet-stream and no trailing whitespace.
func HTTPResponse(accountKey crypto.Signer, token string) (string, error) {
	return keys.KeyAuth(accountKey, token)
}

// HTTPPath returns the well-known path a validation server must answer on.
func HTTPPath(token string) string {
	return "/.well-known/acme-challenge/" + token
}

// DNSRecordValue returns the base64url(SHA-256(key authorization)) value a
// dns-01 TXT record must carry.
func DNSRecordValue(accountKey crypto.Signer, token string) (string, error) {
	keyAuth, err := keys.KeyAuth(accountKey, token)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(keyAuth))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// DNSRecordName returns the fully-qualified TXT record name for domain,
// e.g. "_acme-challenge.www.example.org.".
func DNSRecordName(domain string) string {
	return dns.Fqdn(fmt.Sprintf("_acme-challenge.%s", domain))
}

// TLSALPNValidation returns the raw SHA-256(key authorization) digest that
// must be DER-encoded as an OCTET STRING and embedded in the acmeValidation
// extension of a self-signed certificate served via ALPN "acme-tls/1".
func TLSALPNValidation(accountKey crypto.Signer, token string) ([]byte, error) {
	keyAuth, err := keys.KeyAuth(accountKey, token)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(keyAuth))
	return sum[:], nil
}

// EmailReplyKeyAuth computes the key authorization RFC 8823's
// email-reply-00 challenge binds to, given its two tokens (token1 from the
// subject of the challenge email, token2 from the challenge object's
// token). Per spec.md §9's Open Question (b), this adopts the
// RFC-author-intended interpretation (concatenation with no separator) and
// exposes the raw tokens so a caller needing the alternative interpretation
// can recompute it.
func EmailReplyKeyAuth(accountKey crypto.Signer, token1, token2 string) (string, error) {
	if token1 == "" || token2 == "" {
		return "", problems.New(problems.KindProtocol, "challenges: email-reply-00 requires both token1 and token2")
	}
	return keys.KeyAuth(accountKey, token1+token2)
}
