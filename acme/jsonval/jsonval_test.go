package jsonval

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndAccess(t *testing.T) {
	doc, err := Parse([]byte(`{"status":"valid","count":3,"wildcard":true,"tags":["a","b"]}`))
	require.NoError(t, err)

	status, err := doc.Value("status").Required().String()
	require.NoError(t, err)
	assert.Equal(t, "valid", status)

	count, err := doc.Value("count").Int()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	wildcard, err := doc.Value("wildcard").Bool()
	require.NoError(t, err)
	assert.True(t, wildcard)

	tags, err := doc.Value("tags").StringArray()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tags)
}

func TestRequiredMissingFieldErrors(t *testing.T) {
	doc, err := Parse([]byte(`{}`))
	require.NoError(t, err)

	_, err = doc.Value("status").Required().String()
	assert.Error(t, err)

	// Optional missing fields decode to the zero value, no error.
	s, err := doc.Value("status").String()
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestValueWrongTypeErrors(t *testing.T) {
	doc, err := Parse([]byte(`{"status": 5}`))
	require.NoError(t, err)

	_, err = doc.Value("status").String()
	assert.Error(t, err)
}

func TestInstantAndBase64(t *testing.T) {
	doc, err := Parse([]byte(`{"expires":"2030-01-02T03:04:05Z","csr":"AQID"}`))
	require.NoError(t, err)

	expires, err := doc.Value("expires").Instant()
	require.NoError(t, err)
	assert.Equal(t, 2030, expires.Year())

	// "AQID" is the unpadded base64url encoding of the bytes 0x01 0x02 0x03.
	doc2, err := Parse([]byte(`{"csr":"AQID"}`))
	require.NoError(t, err)
	csr, err := doc2.Value("csr").Base64()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, csr)
}

func TestBuilderPreservesInsertionOrder(t *testing.T) {
	b := NewBuilder().Put("b", 1).Put("a", 2).Put("b", 3)
	out, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, `{"b":3,"a":2}`, string(out))
}

func TestBuilderPutKeyECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	b := NewBuilder()
	_, err = b.PutKey("jwk", &priv.PublicKey)
	require.NoError(t, err)

	out, err := b.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"kty":"EC"`)
	assert.Contains(t, string(out), `"crv":"P-256"`)
}

func TestBuilderPutKeyUnsupportedType(t *testing.T) {
	b := NewBuilder()
	_, err := b.PutKey("jwk", "not a key")
	assert.Error(t, err)
}
