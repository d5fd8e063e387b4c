// Package provider resolves a caller-supplied server URI — plain http(s) or
// one of a handful of "acme://" shorthands — to a concrete directory URL,
// per spec.md §4.4 (C4). Providers are tried in registration order; the
// first that accepts the URI wins. Beyond URL resolution, a provider may
// also supply a custom transport, a static directory document, and
// recognition of provider-specific challenge types — the three extension
// points spec.md §4.4 names alongside accepts/directoryURL.
//
// The teacher has no equivalent (acmeshell always takes a literal directory
// URL on the command line); this is grounded instead on hlandau/acmeapi's
// directory auto-discovery design (18d873f1_hlandau-acmeapi__api.go.go),
// which resolves a "realm" name to a directory URL through a similarly
// ordered list of matchers, adapted here to a small Provider interface
// instead of acmeapi's RealmClient construction.
package provider

import (
	"fmt"
	"strings"

	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/problems"
	"github.com/cpu/acmecore/acme/transport"
)

// Provider resolves server URIs of a particular shape to directory URLs,
// and may override transport construction, directory resolution, and
// challenge-type recognition for deployments that deviate from plain
// RFC 8555.
type Provider interface {
	// Accepts reports whether this provider handles serverURI.
	Accepts(serverURI string) bool
	// DirectoryURL returns the concrete HTTPS directory URL for serverURI.
	// Only called after Accepts has returned true for the same URI.
	DirectoryURL(serverURI string) (string, error)

	// Connect builds the transport requests to serverURI should be sent
	// through, e.g. to pin a non-system trust root or apply provider-specific
	// network settings. ok=false means "build the default transport".
	Connect(serverURI string, network transport.NetworkSettings) (conn *transport.Transport, ok bool)

	// Directory returns a static directory document for serverURI instead of
	// fetching one over HTTP, for deployments whose directory never changes
	// or predates RFC 8555's own directory resource. ok=false means "fetch
	// over the network as usual".
	Directory(serverURI string) (doc *jsonval.JSON, ok bool, err error)

	// LegacyResource names the pre-RFC-8555 ACME draft "resource" value (see
	// spec.md §9 Open Question (c)) a request to the named directory
	// endpoint must carry, for CAs that still expect it. ok=false means "no
	// legacy resource field needed".
	LegacyResource(endpoint string) (resource string, ok bool)

	// CreateChallenge recognizes a provider-specific challenge type inside an
	// authorization's "challenges" array, returning the extra type-specific
	// fields the generic parser doesn't know about. ok=false means "not a
	// provider-specific type, parse normally".
	CreateChallenge(obj *jsonval.JSON) (extra map[string]string, ok bool)
}

// baseProvider supplies no-op defaults for Connect/Directory/LegacyResource/
// CreateChallenge so providers that only need Accepts/DirectoryURL (the
// common case) don't have to restate the rest of the interface.
type baseProvider struct{}

func (baseProvider) Connect(string, transport.NetworkSettings) (*transport.Transport, bool) {
	return nil, false
}

func (baseProvider) Directory(string) (*jsonval.JSON, bool, error) {
	return nil, false, nil
}

func (baseProvider) LegacyResource(string) (string, bool) {
	return "", false
}

func (baseProvider) CreateChallenge(*jsonval.JSON) (map[string]string, bool) {
	return nil, false
}

// Registry holds an ordered list of Providers, most specific first.
type Registry struct {
	providers []Provider
}

// NewRegistry returns a Registry pre-loaded with the built-in providers
// (genericProvider last, so scheme-specific providers get first refusal).
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(letsEncrypt{})
	r.Register(sslCom{})
	r.Register(pebble{})
	r.Register(legacyDraft{})
	r.Register(genericProvider{})
	return r
}

// Register appends p to the end of the registry's provider list. Providers
// registered later are tried only after every earlier one has declined.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// Lookup walks the registry in order and returns the first Provider that
// accepts serverURI, or an unknown-provider error if none do.
func (r *Registry) Lookup(serverURI string) (Provider, error) {
	for _, p := range r.providers {
		if p.Accepts(serverURI) {
			return p, nil
		}
	}
	return nil, problems.New(problems.KindUnknownProvider, "no provider accepts server URI %q", serverURI)
}

// Resolve walks the registry in order and returns the first accepting
// provider's directory URL, or an unknown-provider error if none accept.
func (r *Registry) Resolve(serverURI string) (string, error) {
	p, err := r.Lookup(serverURI)
	if err != nil {
		return "", err
	}
	return p.DirectoryURL(serverURI)
}

// genericProvider handles any http(s) URI by returning it unchanged: the
// caller has given a literal directory URL.
type genericProvider struct{ baseProvider }

func (genericProvider) Accepts(serverURI string) bool {
	return strings.HasPrefix(serverURI, "http://") || strings.HasPrefix(serverURI, "https://")
}

func (genericProvider) DirectoryURL(serverURI string) (string, error) {
	return serverURI, nil
}

// letsEncrypt resolves acme://letsencrypt.org and
// acme://letsencrypt.org/staging.
type letsEncrypt struct{ baseProvider }

const (
	letsEncryptProd    = "https://acme-v02.api.letsencrypt.org/directory"
	letsEncryptStaging = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

func (letsEncrypt) Accepts(serverURI string) bool {
	return serverURI == "acme://letsencrypt.org" || serverURI == "acme://letsencrypt.org/staging"
}

func (letsEncrypt) DirectoryURL(serverURI string) (string, error) {
	if serverURI == "acme://letsencrypt.org/staging" {
		return letsEncryptStaging, nil
	}
	return letsEncryptProd, nil
}

// sslCom resolves acme://ssl.com and acme://ssl.com/staging.
type sslCom struct{ baseProvider }

const (
	sslComProd    = "https://acme.ssl.com/sslcom-dv-rsa"
	sslComStaging = "https://acme-try.ssl.com/sslcom-dv-rsa"
)

func (sslCom) Accepts(serverURI string) bool {
	return serverURI == "acme://ssl.com" || serverURI == "acme://ssl.com/staging"
}

func (sslCom) DirectoryURL(serverURI string) (string, error) {
	if serverURI == "acme://ssl.com/staging" {
		return sslComStaging, nil
	}
	return sslComProd, nil
}

// pebble resolves acme://pebble, with an optional path-encoded host:port
// override (acme://pebble/host:14000) for pointing at a non-default local
// instance, matching how the teacher's embedded Pebble cert constant in
// cmd/acmeshell assumes a conventional localhost:14000.
type pebble struct{ baseProvider }

const pebbleDefaultAddr = "localhost:14000"

func (pebble) Accepts(serverURI string) bool {
	return serverURI == "acme://pebble" || strings.HasPrefix(serverURI, "acme://pebble/")
}

func (pebble) DirectoryURL(serverURI string) (string, error) {
	addr := pebbleDefaultAddr
	if rest := strings.TrimPrefix(serverURI, "acme://pebble/"); rest != serverURI && rest != "" {
		addr = rest
	}
	return fmt.Sprintf("https://%s/dir", addr), nil
}

// legacyDraft tolerates pre-RFC-8555 ACME draft deployments that still
// expose "new-reg" instead of "newAccount" — spec.md §9 Open Question (c):
// "Older ACME draft endpoints (new-reg vs new-account) are tolerated only
// when a specific provider explicitly rewrites them." acme://legacy-draft/
// <host[:port]> synthesizes a static directory document mapping the draft's
// endpoint names onto the RFC 8555 names the rest of the engine expects, and
// tags outgoing newAccount requests with the legacy "resource" field the old
// endpoint still requires.
type legacyDraft struct{ baseProvider }

const legacyDraftPrefix = "acme://legacy-draft/"

func (legacyDraft) Accepts(serverURI string) bool {
	return strings.HasPrefix(serverURI, legacyDraftPrefix)
}

func (legacyDraft) DirectoryURL(serverURI string) (string, error) {
	return "https://" + strings.TrimPrefix(serverURI, legacyDraftPrefix) + "/directory", nil
}

func (legacyDraft) Directory(serverURI string) (*jsonval.JSON, bool, error) {
	base := "https://" + strings.TrimPrefix(serverURI, legacyDraftPrefix)
	doc, err := jsonval.Parse([]byte(fmt.Sprintf(`{
		"newNonce": %q,
		"newAccount": %q,
		"newOrder": %q,
		"revokeCert": %q,
		"keyChange": %q
	}`, base+"/new-nonce", base+"/new-reg", base+"/new-order", base+"/revoke-cert", base+"/key-change")))
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (legacyDraft) LegacyResource(endpoint string) (string, bool) {
	if endpoint == "newAccount" {
		return "new-reg", true
	}
	return "", false
}

// CreateChallenge recognizes the "dns-01-alt" challenge type some
// legacy-draft deployments advertise instead of dns-01: same key
// authorization digest, but the draft carries an extra "recordType" field
// alongside token that the generic parser has no field for.
func (legacyDraft) CreateChallenge(obj *jsonval.JSON) (map[string]string, bool) {
	typ, _ := obj.Value("type").String()
	if typ != "dns-01-alt" {
		return nil, false
	}
	recordType, _ := obj.Value("recordType").String()
	return map[string]string{"recordType": recordType}, true
}
