package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlgorithmForSigner(t *testing.T) {
	ec256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	alg, err := AlgorithmForSigner(ec256)
	require.NoError(t, err)
	assert.Equal(t, jose.ES256, alg)

	ec384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	alg, err = AlgorithmForSigner(ec384)
	require.NoError(t, err)
	assert.Equal(t, jose.ES384, alg)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	alg, err = AlgorithmForSigner(rsaKey)
	require.NoError(t, err)
	assert.Equal(t, jose.RS256, alg)
}

func TestAlgorithmForSignerRejectsShortRSA(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	_, err = AlgorithmForSigner(rsaKey)
	assert.Error(t, err)
}

func TestKeyAuthIsDeterministic(t *testing.T) {
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	a, err := KeyAuth(signer, "token-123")
	require.NoError(t, err)
	b, err := KeyAuth(signer, "token-123")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "token-123.")
}

func TestSameKey(t *testing.T) {
	signer1, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer2, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	assert.True(t, SameKey(signer1, signer1))
	assert.False(t, SameKey(signer1, signer2))
}

func TestJWKThumbprintIsStable(t *testing.T) {
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	thumb1, err := JWKThumbprint(signer)
	require.NoError(t, err)
	thumb2, err := JWKThumbprint(signer)
	require.NoError(t, err)
	assert.Equal(t, thumb1, thumb2)
	assert.NotEmpty(t, thumb1)
}
