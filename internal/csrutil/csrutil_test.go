package csrutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"testing"

	"github.com/cpu/acmecore/acme/identifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return signer
}

func TestBuildDNSIdentifiers(t *testing.T) {
	signer := testSigner(t)
	dnsID, err := identifier.DNS("www.example.org")
	require.NoError(t, err)

	der, err := Build(Request{
		Identifiers: []identifier.Identifier{dnsID},
		Signer:      signer,
	})
	require.NoError(t, err)

	csr, err := x509.ParseCertificateRequest(der)
	require.NoError(t, err)
	assert.Equal(t, "www.example.org", csr.Subject.CommonName)
	assert.Equal(t, []string{"www.example.org"}, csr.DNSNames)
	assert.NoError(t, csr.CheckSignature())
}

func TestBuildIPIdentifiers(t *testing.T) {
	signer := testSigner(t)
	ipID, err := identifier.IP("192.0.2.1")
	require.NoError(t, err)

	der, err := Build(Request{
		Identifiers: []identifier.Identifier{ipID},
		Signer:      signer,
	})
	require.NoError(t, err)

	csr, err := x509.ParseCertificateRequest(der)
	require.NoError(t, err)
	require.Len(t, csr.IPAddresses, 1)
	assert.Equal(t, "192.0.2.1", csr.IPAddresses[0].String())
}

func TestBuildRejectsNoIdentifiers(t *testing.T) {
	signer := testSigner(t)
	_, err := Build(Request{Signer: signer})
	assert.Error(t, err)
}

func TestBuildRejectsNilSigner(t *testing.T) {
	dnsID, err := identifier.DNS("example.org")
	require.NoError(t, err)
	_, err = Build(Request{Identifiers: []identifier.Identifier{dnsID}})
	assert.Error(t, err)
}

func TestBuildRejectsUnsupportedIdentifierType(t *testing.T) {
	signer := testSigner(t)
	emailID, err := identifier.Email("admin@example.org")
	require.NoError(t, err)

	_, err = Build(Request{
		Identifiers: []identifier.Identifier{emailID},
		Signer:      signer,
	})
	assert.Error(t, err)
}

func TestBuildPEMWrapsDERInCertificateRequestBlock(t *testing.T) {
	signer := testSigner(t)
	dnsID, err := identifier.DNS("example.org")
	require.NoError(t, err)

	out, err := BuildPEM(Request{
		Identifiers: []identifier.Identifier{dnsID},
		Signer:      signer,
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), "-----BEGIN CERTIFICATE REQUEST-----")
}
