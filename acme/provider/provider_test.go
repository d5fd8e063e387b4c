package provider

import (
	"testing"

	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLetsEncrypt(t *testing.T) {
	r := NewRegistry()

	url, err := r.Resolve("acme://letsencrypt.org")
	require.NoError(t, err)
	assert.Equal(t, letsEncryptProd, url)

	url, err = r.Resolve("acme://letsencrypt.org/staging")
	require.NoError(t, err)
	assert.Equal(t, letsEncryptStaging, url)
}

func TestResolveSSLCom(t *testing.T) {
	r := NewRegistry()

	url, err := r.Resolve("acme://ssl.com")
	require.NoError(t, err)
	assert.Equal(t, sslComProd, url)

	url, err = r.Resolve("acme://ssl.com/staging")
	require.NoError(t, err)
	assert.Equal(t, sslComStaging, url)
}

func TestResolvePebbleDefaultAndOverride(t *testing.T) {
	r := NewRegistry()

	url, err := r.Resolve("acme://pebble")
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:14000/dir", url)

	url, err = r.Resolve("acme://pebble/example.internal:14123")
	require.NoError(t, err)
	assert.Equal(t, "https://example.internal:14123/dir", url)
}

func TestResolveGenericPassesThroughLiteralURL(t *testing.T) {
	r := NewRegistry()

	url, err := r.Resolve("https://ca.example.org/directory")
	require.NoError(t, err)
	assert.Equal(t, "https://ca.example.org/directory", url)
}

func TestResolveUnknownProviderErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("acme://unknown.example")
	assert.Error(t, err)
}

func TestRegisterAddsProviderTriedLast(t *testing.T) {
	r := &Registry{}
	r.Register(genericProvider{})
	r.Register(pebble{})

	// genericProvider only accepts http(s), so pebble still gets a chance.
	url, err := r.Resolve("acme://pebble")
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:14000/dir", url)
}

func TestBuiltinProvidersDeclineConnectAndDirectoryOverrides(t *testing.T) {
	for _, p := range []Provider{letsEncrypt{}, sslCom{}, pebble{}, genericProvider{}} {
		_, ok := p.Connect("acme://letsencrypt.org", transport.NetworkSettings{})
		assert.False(t, ok)

		_, ok, err := p.Directory("acme://letsencrypt.org")
		assert.NoError(t, err)
		assert.False(t, ok)

		_, ok = p.LegacyResource("newAccount")
		assert.False(t, ok)
	}
}

func TestLegacyDraftAcceptsAndResolvesDirectoryURL(t *testing.T) {
	p := legacyDraft{}
	assert.True(t, p.Accepts("acme://legacy-draft/ca.example.internal:8080"))
	assert.False(t, p.Accepts("acme://pebble"))

	url, err := p.DirectoryURL("acme://legacy-draft/ca.example.internal:8080")
	require.NoError(t, err)
	assert.Equal(t, "https://ca.example.internal:8080/directory", url)
}

func TestLegacyDraftSynthesizesStaticDirectory(t *testing.T) {
	p := legacyDraft{}
	doc, ok, err := p.Directory("acme://legacy-draft/ca.example.internal:8080")
	require.NoError(t, err)
	require.True(t, ok)

	newAccount, err := doc.Value("newAccount").String()
	require.NoError(t, err)
	assert.Equal(t, "https://ca.example.internal:8080/new-reg", newAccount)
}

func TestLegacyDraftLegacyResourceOnlyAppliesToNewAccount(t *testing.T) {
	p := legacyDraft{}
	resource, ok := p.LegacyResource("newAccount")
	require.True(t, ok)
	assert.Equal(t, "new-reg", resource)

	_, ok = p.LegacyResource("newOrder")
	assert.False(t, ok)
}

func TestLegacyDraftCreateChallengeRecognizesDNSAlt(t *testing.T) {
	p := legacyDraft{}
	doc, err := jsonval.Parse([]byte(`{"type":"dns-01-alt","recordType":"TXT"}`))
	require.NoError(t, err)

	extra, ok := p.CreateChallenge(doc)
	require.True(t, ok)
	assert.Equal(t, "TXT", extra["recordType"])

	httpDoc, err := jsonval.Parse([]byte(`{"type":"http-01"}`))
	require.NoError(t, err)
	_, ok = p.CreateChallenge(httpDoc)
	assert.False(t, ok)
}
