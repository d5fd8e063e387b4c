package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDNSNormalizesCaseAndTrailingDot(t *testing.T) {
	id, err := DNS("WWW.Example.ORG.")
	require.NoError(t, err)
	assert.Equal(t, TypeDNS, id.Type)
	assert.Equal(t, "www.example.org", id.Value)
}

func TestDNSRejectsInvalidName(t *testing.T) {
	_, err := DNS("this is not a domain \x00")
	assert.Error(t, err)
}

func TestIPRoundTrip(t *testing.T) {
	id, err := IP("2001:DB8::1")
	require.NoError(t, err)
	assert.Equal(t, TypeIP, id.Type)

	ip, err := id.ParseIP()
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", ip.String())
}

func TestIPRejectsInvalidAddress(t *testing.T) {
	_, err := IP("not-an-ip")
	assert.Error(t, err)
}

func TestParseIPRejectsNonIPType(t *testing.T) {
	id, err := DNS("example.org")
	require.NoError(t, err)
	_, err = id.ParseIP()
	assert.Error(t, err)
}

func TestEmailLowercasesDomainOnly(t *testing.T) {
	id, err := Email("Admin@Example.ORG")
	require.NoError(t, err)
	assert.Equal(t, TypeEmail, id.Type)
	assert.Equal(t, "Admin@example.org", id.Value)
}

func TestEmailRejectsMissingAt(t *testing.T) {
	_, err := Email("not-an-email")
	assert.Error(t, err)
}
