package acme

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/noncepool"
	"github.com/cpu/acmecore/acme/problems"
	"github.com/cpu/acmecore/acme/provider"
	"github.com/cpu/acmecore/acme/transport"
	internallog "github.com/cpu/acmecore/internal/log"
)

// SessionConfig configures a Session's transport and logging. Mirrors the
// teacher's ClientConfig/ACMEShellOptions normalize-validate idiom, but
// every field here is optional (zero values fall back to sane defaults)
// rather than requiring an explicit CA bundle path.
type SessionConfig struct {
	Network transport.NetworkSettings
	Logger  internallog.Logger
	// Providers, if non-nil, replaces the built-in provider registry
	// (letsencrypt.org/ssl.com/pebble/legacy-draft/generic).
	Providers *provider.Registry
}

// Session is the process-level ACME context spec.md §3/§4.7 (C7)
// describes: directory URL, cached directory document, nonce pool, network
// settings, and locale. Construction never touches the network; the
// directory is fetched lazily on first use.
//
// Session exclusively owns its nonce pool and directory cache (spec.md §3's
// Ownership paragraph); it is safe for concurrent use by multiple Logins and
// resources.
type Session struct {
	serverURI    string
	directoryURL string
	transport    *transport.Transport
	provider     provider.Provider
	nonces       *noncepool.Pool
	logger       internallog.Logger
	locale       string

	mu               sync.RWMutex
	directory        *jsonval.JSON
	directoryRaw     []byte
	directoryExpires time.Time
	hasExpires       bool
	directoryLastMod time.Time
	hasLastMod       bool
}

// NewSession resolves serverURI (a literal https:// directory URL or an
// "acme://" shorthand, per spec.md §4.4) through the provider registry and
// constructs a Session bound to it. No network I/O occurs here.
func NewSession(serverURI string, cfg SessionConfig) (*Session, error) {
	registry := cfg.Providers
	if registry == nil {
		registry = provider.NewRegistry()
	}
	p, err := registry.Lookup(serverURI)
	if err != nil {
		return nil, err
	}
	dirURL, err := p.DirectoryURL(serverURI)
	if err != nil {
		return nil, err
	}

	conn, ok := p.Connect(serverURI, cfg.Network)
	if !ok {
		conn = transport.New(cfg.Network, cfg.Logger)
	}

	s := &Session{
		serverURI:    serverURI,
		directoryURL: dirURL,
		transport:    conn,
		provider:     p,
		logger:       internallog.Nop(cfg.Logger),
		locale:       cfg.Network.Locale,
	}
	s.nonces = noncepool.New(s)
	return s, nil
}

// DirectoryURL returns the resolved directory URL this Session was
// constructed against.
func (s *Session) DirectoryURL() string { return s.directoryURL }

// EndpointURL looks up name (e.g. "newAccount", "newOrder", "revokeCert")
// in the directory document, fetching it first if needed.
func (s *Session) EndpointURL(ctx context.Context, name string) (string, error) {
	return s.endpointURL(ctx, name)
}

// RawGet performs an unsigned GET against target, for callers (the shell's
// "get" command) that want to inspect an arbitrary ACME URL outside of the
// typed resource façades.
func (s *Session) RawGet(ctx context.Context, target string) (*transport.Response, error) {
	resp, err := s.transport.Get(ctx, target, time.Time{})
	s.absorbNonce(resp)
	return resp, err
}

// FetchNonce implements noncepool.Fetcher: an unsigned HEAD against the
// directory's newNonce endpoint, per spec.md §4.3.
func (s *Session) FetchNonce() (string, error) {
	ctx := context.Background()
	nonceURL, err := s.endpointURL(ctx, endpointNewNonce)
	if err != nil {
		return "", err
	}
	resp, err := s.transport.Head(ctx, nonceURL)
	if err != nil {
		return "", err
	}
	if resp.ReplayNonce == "" {
		return "", problems.New(problems.KindProtocol, "newNonce endpoint %q returned no Replay-Nonce header", nonceURL)
	}
	return resp.ReplayNonce, nil
}

// absorbNonce updates the pool from any response that carries a
// Replay-Nonce header, per spec.md §3's invariant that the header "must
// replace [the consumed nonce] atomically".
func (s *Session) absorbNonce(resp *transport.Response) {
	if resp != nil && resp.ReplayNonce != "" {
		s.nonces.Set(resp.ReplayNonce)
	}
}

// directoryDoc returns the cached directory document, fetching or
// refreshing it per spec.md §4.6's caching rules (C6).
func (s *Session) directoryDoc(ctx context.Context) (*jsonval.JSON, error) {
	s.mu.RLock()
	doc := s.directory
	fresh := doc != nil && (!s.hasExpires || time.Now().Before(s.directoryExpires))
	ims := s.directoryLastMod
	hasIMS := s.hasLastMod
	s.mu.RUnlock()

	if fresh {
		return doc, nil
	}

	if s.provider != nil {
		staticDoc, ok, err := s.provider.Directory(s.serverURI)
		if err != nil {
			return nil, err
		}
		if ok {
			s.mu.Lock()
			s.directory = staticDoc
			s.hasExpires = false
			s.mu.Unlock()
			return staticDoc, nil
		}
	}

	resp, err := s.transport.Get(ctx, s.directoryURL, conditionalTime(doc, hasIMS, ims))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if resp.NotModified && s.directory != nil {
		// 304: retain the cached document, but refresh its freshness window.
		if resp.HasExpires {
			s.directoryExpires = resp.Expires
			s.hasExpires = true
		}
		return s.directory, nil
	}

	if resp.JSON == nil {
		return nil, problems.New(problems.KindProtocol, "directory response at %q was not JSON", s.directoryURL)
	}

	s.directory = resp.JSON
	s.directoryRaw = resp.Body
	s.hasExpires = resp.HasExpires
	s.directoryExpires = resp.Expires
	s.hasLastMod = resp.HasLastMod
	s.directoryLastMod = resp.LastModified
	s.absorbNonce(resp)
	s.logger.Printf("acme: refreshed directory at %s", s.directoryURL)
	return s.directory, nil
}

func conditionalTime(doc *jsonval.JSON, hasIMS bool, ims time.Time) time.Time {
	if doc == nil || !hasIMS {
		return time.Time{}
	}
	return ims
}

// endpointURL looks up a named endpoint in the directory, failing with a
// protocol error naming the missing key.
func (s *Session) endpointURL(ctx context.Context, name string) (string, error) {
	doc, err := s.directoryDoc(ctx)
	if err != nil {
		return "", err
	}
	u, err := doc.Value(name).Required().String()
	if err != nil {
		return "", err
	}
	return u, nil
}

// GetMetadata lazily fetches the directory and returns its "meta" object,
// exposing externalAccountRequired/termsOfService/website/caaIdentities/
// profiles as spec.md §4.6 requires.
func (s *Session) GetMetadata(ctx context.Context) (*Metadata, error) {
	doc, err := s.directoryDoc(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := doc.Value("meta").Object()
	if err != nil {
		return nil, err
	}
	m := &Metadata{}
	if meta == nil {
		return m, nil
	}
	m.TermsOfService, _ = meta.Value("termsOfService").String()
	m.Website, _ = meta.Value("website").String()
	m.CAAIdentities, _ = meta.Value("caaIdentities").StringArray()
	m.ExternalAccountRequired, _ = meta.Value("externalAccountRequired").Bool()
	profiles, err := meta.Value("profiles").Object()
	if err == nil && profiles != nil {
		m.Profiles = map[string]string{}
		for _, key := range profiles.Keys() {
			desc, _ := profiles.Value(key).String()
			m.Profiles[key] = desc
		}
	}
	return m, nil
}

// Metadata mirrors the ACME directory's "meta" object.
type Metadata struct {
	TermsOfService          string
	Website                 string
	CAAIdentities           []string
	ExternalAccountRequired bool
	Profiles                map[string]string
}

func (s *Session) renewalInfoURL(ctx context.Context) (string, bool) {
	doc, err := s.directoryDoc(ctx)
	if err != nil {
		return "", false
	}
	u, err := doc.Value(endpointRenewalInfo).String()
	if err != nil || u == "" {
		return "", false
	}
	return u, true
}

func (s *Session) notSupported(feature string) error {
	return problems.New(problems.KindNotSupported, "server does not advertise %s", feature)
}

// legacyResource reports the pre-RFC-8555 "resource" field value the bound
// provider wants stamped onto requests to the named directory endpoint, per
// spec.md §9 Open Question (c). Most providers don't need this.
func (s *Session) legacyResource(endpoint string) (string, bool) {
	if s.provider == nil {
		return "", false
	}
	return s.provider.LegacyResource(endpoint)
}

// createChallenge asks the bound provider whether obj is a provider-specific
// challenge type, per spec.md §4.4's createChallenge hook. ok=false means
// the generic parser should handle it.
func (s *Session) createChallenge(obj *jsonval.JSON) (map[string]string, bool) {
	if s.provider == nil {
		return nil, false
	}
	return s.provider.CreateChallenge(obj)
}

func (s *Session) String() string {
	return fmt.Sprintf("Session(%s)", s.directoryURL)
}
