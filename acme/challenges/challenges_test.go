package challenges

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/cpu/acmecore/acme/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return signer
}

func TestHTTPResponseMatchesKeyAuth(t *testing.T) {
	signer := testSigner(t)
	want, err := keys.KeyAuth(signer, "tok")
	require.NoError(t, err)

	got, err := HTTPResponse(signer, "tok")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHTTPPath(t *testing.T) {
	assert.Equal(t, "/.well-known/acme-challenge/abc123", HTTPPath("abc123"))
}

func TestDNSRecordValueIsDigestOfKeyAuth(t *testing.T) {
	signer := testSigner(t)
	keyAuth, err := keys.KeyAuth(signer, "tok")
	require.NoError(t, err)
	sum := sha256.Sum256([]byte(keyAuth))
	want := base64.RawURLEncoding.EncodeToString(sum[:])

	val1, err := DNSRecordValue(signer, "tok")
	require.NoError(t, err)
	val2, err := DNSRecordValue(signer, "tok")
	require.NoError(t, err)
	assert.Equal(t, val1, val2)
	assert.NotEmpty(t, val1)
	assert.Equal(t, want, val1)
}

func TestDNSRecordName(t *testing.T) {
	assert.Equal(t, "_acme-challenge.www.example.org.", DNSRecordName("www.example.org"))
}

func TestTLSALPNValidationIsThirtyTwoByteDigest(t *testing.T) {
	signer := testSigner(t)
	digest, err := TLSALPNValidation(signer, "tok")
	require.NoError(t, err)
	assert.Len(t, digest, 32)
}

func TestEmailReplyKeyAuthConcatenatesTokensWithoutSeparator(t *testing.T) {
	signer := testSigner(t)
	want, err := keys.KeyAuth(signer, "tok1tok2")
	require.NoError(t, err)

	got, err := EmailReplyKeyAuth(signer, "tok1", "tok2")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEmailReplyKeyAuthRequiresBothTokens(t *testing.T) {
	signer := testSigner(t)
	_, err := EmailReplyKeyAuth(signer, "", "tok2")
	assert.Error(t, err)
	_, err = EmailReplyKeyAuth(signer, "tok1", "")
	assert.Error(t, err)
}

func TestAcmeValidationOID(t *testing.T) {
	assert.Equal(t, "1.3.6.1.5.5.7.1.31", AcmeValidationOID().String())
}
