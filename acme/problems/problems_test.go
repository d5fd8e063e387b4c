package problems

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultsTypeAndStatus(t *testing.T) {
	p, err := Parse(400, []byte(`{"detail":"bad request"}`))
	require.NoError(t, err)
	assert.Equal(t, "about:blank", p.Type)
	assert.Equal(t, 400, p.Status)
	assert.Equal(t, "bad request", p.Detail)
}

func TestACMEType(t *testing.T) {
	p := &Problem{Type: "urn:ietf:params:acme:error:badNonce"}
	assert.Equal(t, "badNonce", p.ACMEType())

	other := &Problem{Type: "about:blank"}
	assert.Equal(t, "", other.ACMEType())
}

func TestFromProblemRateLimited(t *testing.T) {
	p, err := Parse(429, []byte(`{"type":"urn:ietf:params:acme:error:rateLimited","documents":["https://example.org/limits"]}`))
	require.NoError(t, err)

	retryAfter := time.Now().Add(time.Minute)
	e := FromProblem("https://example.org/order", p, "", retryAfter)
	assert.Equal(t, KindRateLimited, e.Kind)
	assert.Equal(t, []string{"https://example.org/limits"}, e.Documents)
	assert.Equal(t, retryAfter, e.RetryAfter)
}

func TestFromProblemUserActionRequired(t *testing.T) {
	p, err := Parse(403, []byte(`{"type":"urn:ietf:params:acme:error:userActionRequired","instance":"https://example.org/tos"}`))
	require.NoError(t, err)

	e := FromProblem("https://example.org/acct", p, "https://example.org/terms", time.Time{})
	assert.Equal(t, KindUserActionRequired, e.Kind)
	assert.Equal(t, "https://example.org/terms", e.TOSURL)
	assert.Equal(t, "https://example.org/tos", e.Instance)
}

func TestIsACMEType(t *testing.T) {
	err := &Error{Kind: KindServerError, Problem: &Problem{Type: "urn:ietf:params:acme:error:malformed"}}
	assert.True(t, IsACMEType(err, "malformed"))
	assert.False(t, IsACMEType(err, "badNonce"))
	assert.False(t, IsACMEType(New(KindProtocol, "oops"), "malformed"))
}

func TestErrorUnwrap(t *testing.T) {
	inner := assert.AnError
	e := Wrap(KindNetwork, "https://example.org", inner)
	assert.ErrorIs(t, e, inner)
}

func TestValidURL(t *testing.T) {
	assert.True(t, ValidURL("https://example.org/terms"))
	assert.False(t, ValidURL("not a url"))
	assert.False(t, ValidURL("/relative/path"))
}
