// Package transport executes the three request shapes spec.md §4.5 (C5)
// names — unsigned GET, signed POST, signed POST-as-GET — parses ACME's
// response headers and bodies, and maps non-2xx responses onto the
// problems.Error taxonomy. It owns the mandatory badNonce retry-once
// behavior.
//
// Grounded on the teacher's net/acme.go (ACMENet: shared *http.Client,
// User-Agent/Accept-Language header stamping, request/response plumbing) and
// acme/client/http.go (the GetURL/PostURL split), generalized from the
// teacher's CA-bundle-only TLS config to the full NetworkSettings spec.md
// §4.7/§6 describes (proxy, timeouts, TLS options), and from bespoke
// map[string]any directory decoding to jsonval-backed body parsing.
package transport

import (
	"bytes"
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/jws"
	"github.com/cpu/acmecore/acme/problems"
	internallog "github.com/cpu/acmecore/internal/log"
)

const (
	defaultTimeout = 10 * time.Second
	userAgentBase  = "acmecore"
	version        = "0.1.0"

	contentTypeJOSE       = "application/jose+json"
	contentTypeJSON       = "application/json"
	contentTypeProblem    = "application/problem+json"
	contentTypePEMChain   = "application/pem-certificate-chain"
	replayNonceHeader     = "Replay-Nonce"
	linkHeader            = "Link"
	locationHeader        = "Location"
	retryAfterHeader      = "Retry-After"
	lastModifiedHeader    = "Last-Modified"
	expiresHeader         = "Expires"
	ifModifiedSinceHeader = "If-Modified-Since"
)

// NetworkSettings configures the transport's HTTP client, per spec.md §6's
// caller-supplied configuration list.
type NetworkSettings struct {
	// Proxy overrides the environment-derived proxy. Nil means
	// http.ProxyFromEnvironment.
	Proxy *url.URL
	// ConnectTimeout bounds TCP+TLS handshake time. Zero means 10s.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the overall request round-trip. Zero means 10s.
	ReadTimeout time.Duration
	// RootCAs, when non-nil, replaces the system trust store — used to
	// trust a local Pebble/Boulder instance's TLS certificate in dev/test.
	RootCAs *x509.CertPool
	// UserAgent, if set, is appended to the default "acmecore/<version>"
	// identifier, per spec.md §6.
	UserAgent string
	// Locale sets Accept-Language on every request; servers may return
	// localized problem documents.
	Locale string
}

func (s NetworkSettings) normalize() NetworkSettings {
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = defaultTimeout
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = defaultTimeout
	}
	return s
}

func (s NetworkSettings) userAgent() string {
	ua := fmt.Sprintf("%s/%s (%s; %s)", userAgentBase, version, runtime.GOOS, runtime.GOARCH)
	if s.UserAgent != "" {
		ua = ua + " " + s.UserAgent
	}
	return ua
}

// Transport is the shared HTTP execution layer for a Session. It is safe
// for concurrent use: *http.Client already is, and Transport keeps no other
// mutable state.
type Transport struct {
	client   *http.Client
	settings NetworkSettings
	logger   internallog.Logger
}

// New builds a Transport from settings. A nil logger discards log output.
func New(settings NetworkSettings, logger internallog.Logger) *Transport {
	settings = settings.normalize()
	return &Transport{
		client: &http.Client{
			Transport: newRoundTripper(settings),
			Timeout:   settings.ReadTimeout,
		},
		settings: settings,
		logger:   internallog.Nop(logger),
	}
}

func newRoundTripper(settings NetworkSettings) *http.Transport {
	proxy := http.ProxyFromEnvironment
	if settings.Proxy != nil {
		fixed := settings.Proxy
		proxy = func(*http.Request) (*url.URL, error) { return fixed, nil }
	}
	return &http.Transport{
		Proxy: proxy,
		TLSClientConfig: &tls.Config{
			RootCAs: settings.RootCAs,
		},
		DialContext: (&net.Dialer{
			Timeout: settings.ConnectTimeout,
		}).DialContext,
	}
}

// Response is the parsed form of any ACME HTTP response.
type Response struct {
	StatusCode int
	Body       []byte

	// JSON is set when the response's Content-Type is JSON (including
	// problem+json), nil otherwise.
	JSON *jsonval.JSON
	// PEMChain is set when the response's Content-Type is
	// application/pem-certificate-chain: the leaf certificate followed by
	// any intermediates, each DER-encoded.
	PEMChain [][]byte

	Location      string
	Links         map[string][]string
	RetryAfter    time.Time
	HasRetryAfter bool
	LastModified  time.Time
	HasLastMod    bool
	Expires       time.Time
	HasExpires    bool
	ReplayNonce   string
	NotModified   bool
}

// Link returns the first Link header value with the given rel, or "".
func (r *Response) Link(rel string) string {
	if r == nil || len(r.Links[rel]) == 0 {
		return ""
	}
	return r.Links[rel][0]
}

// Get issues an unsigned GET. It fetches the directory document (with
// conditional headers on refresh), ARI renewal information, and the raw
// GETs made by Session.RawGet.
func (t *Transport) Get(ctx context.Context, target string, ifModifiedSince time.Time) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, problems.Wrap(problems.KindNetwork, target, err)
	}
	if !ifModifiedSince.IsZero() {
		req.Header.Set(ifModifiedSinceHeader, ifModifiedSince.UTC().Format(http.TimeFormat))
	}
	return t.do(req, target)
}

// Head issues an unsigned HEAD, used to pull a fresh nonce from the
// directory's newNonce endpoint when the pool is empty.
func (t *Transport) Head(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return nil, problems.Wrap(problems.KindNetwork, target, err)
	}
	return t.do(req, target)
}

// Accept content negotiation values a signed request can ask for.
const (
	AcceptJSON     = contentTypeJSON
	AcceptPEMChain = contentTypePEMChain
)

// SignRequest carries what Transport needs to sign one attempt of a signed
// call. Login/Session supply it; Transport signs with it once, and again on a
// badNonce retry.
type SignRequest struct {
	Signer   crypto.Signer
	KeyID    string
	EmbedJWK bool
	Nonce    jws.NonceSource
}

// SignedPost issues a signed POST of payload to target, retrying exactly
// once on a badNonce problem per spec.md §4.5's mandatory-retry rule.
func (t *Transport) SignedPost(ctx context.Context, target string, payload []byte, sign SignRequest, accept string) (*Response, error) {
	resp, err := t.signedPostOnce(ctx, target, payload, sign, accept)
	if err == nil {
		return resp, nil
	}
	if !problems.IsACMEType(err, "badNonce") {
		return nil, err
	}
	t.logger.Printf("transport: badNonce on %s, retrying once", target)
	return t.signedPostOnce(ctx, target, payload, sign, accept)
}

// SignedPostAsGet issues a signed POST with an empty payload ("POST-as-GET",
// RFC 8555 §6.3), the mechanism used to fetch any resource requiring
// authentication.
func (t *Transport) SignedPostAsGet(ctx context.Context, target string, sign SignRequest, accept string) (*Response, error) {
	return t.SignedPost(ctx, target, nil, sign, accept)
}

func (t *Transport) signedPostOnce(ctx context.Context, target string, payload []byte, sign SignRequest, accept string) (*Response, error) {
	result, err := jws.Sign(jws.Request{
		URL:      target,
		Payload:  payload,
		Signer:   sign.Signer,
		KeyID:    sign.KeyID,
		EmbedJWK: sign.EmbedJWK,
		Nonce:    sign.Nonce,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(result.Serialized))
	if err != nil {
		return nil, problems.Wrap(problems.KindNetwork, target, err)
	}
	req.Header.Set("Content-Type", contentTypeJOSE)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	return t.do(req, target)
}

func (t *Transport) do(req *http.Request, target string) (*Response, error) {
	req.Header.Set("User-Agent", t.settings.userAgent())
	if t.settings.Locale != "" {
		req.Header.Set("Accept-Language", t.settings.Locale)
	}

	t.logger.Printf("transport: %s %s", req.Method, target)

	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, problems.Wrap(problems.KindNetwork, target, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, problems.Wrap(problems.KindNetwork, target, err)
	}

	resp, err := parseResponse(httpResp, body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode == http.StatusNotModified {
		resp.NotModified = true
		return resp, nil
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, t.problemError(target, httpResp, resp, body)
	}

	return resp, nil
}

func (t *Transport) problemError(target string, httpResp *http.Response, resp *Response, body []byte) error {
	contentType := httpResp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, contentTypeProblem) && !strings.HasPrefix(contentType, contentTypeJSON) {
		return problems.New(problems.KindProtocol,
			"transport: %s returned HTTP %d with non-problem content-type %q", target, httpResp.StatusCode, contentType)
	}
	problem, err := problems.Parse(httpResp.StatusCode, body)
	if err != nil {
		return err
	}
	return problems.FromProblem(target, problem, resp.Link("terms-of-service"), resp.RetryAfter)
}

func parseResponse(httpResp *http.Response, body []byte) (*Response, error) {
	resp := &Response{
		StatusCode:  httpResp.StatusCode,
		Body:        body,
		Location:    resolveLocation(httpResp),
		Links:       parseLinks(httpResp),
		ReplayNonce: httpResp.Header.Get(replayNonceHeader),
	}

	if ra, ok := parseRetryAfter(httpResp.Header.Get(retryAfterHeader)); ok {
		resp.RetryAfter = ra
		resp.HasRetryAfter = true
	}
	if lm, err := http.ParseTime(httpResp.Header.Get(lastModifiedHeader)); err == nil {
		resp.LastModified = lm
		resp.HasLastMod = true
	}
	if exp, err := http.ParseTime(httpResp.Header.Get(expiresHeader)); err == nil {
		resp.Expires = exp
		resp.HasExpires = true
	}

	contentType := httpResp.Header.Get("Content-Type")
	switch {
	case len(body) == 0:
		// No body to parse (e.g. 204, or a HEAD response).
	case strings.HasPrefix(contentType, contentTypePEMChain):
		chain, err := parsePEMChain(body)
		if err != nil {
			return nil, err
		}
		resp.PEMChain = chain
	case strings.HasPrefix(contentType, contentTypeJSON), strings.HasPrefix(contentType, contentTypeProblem):
		parsed, err := jsonval.Parse(body)
		if err != nil {
			return nil, err
		}
		resp.JSON = parsed
	}

	return resp, nil
}

func resolveLocation(httpResp *http.Response) string {
	raw := httpResp.Header.Get(locationHeader)
	if raw == "" {
		return ""
	}
	if httpResp.Request == nil || httpResp.Request.URL == nil {
		return raw
	}
	u, err := httpResp.Request.URL.Parse(raw)
	if err != nil {
		return raw
	}
	return u.String()
}

// linkRE matches one comma-separated element of an RFC 8288 Link header.
var linkRE = regexp.MustCompile(`^<([^>]+)>(?:\s*;\s*[a-zA-Z0-9-]+=(?:"[^"]*"|[^;,"]+))*\s*;\s*rel="?([^;,"]+)"?`)

func parseLinks(httpResp *http.Response) map[string][]string {
	base := httpResp.Request
	links := map[string][]string{}
	for _, header := range httpResp.Header[linkHeader] {
		for _, part := range strings.Split(header, ",") {
			part = strings.TrimSpace(part)
			m := linkRE.FindStringSubmatch(part)
			if m == nil {
				continue
			}
			raw, rel := m[1], m[2]
			resolved := raw
			if base != nil && base.URL != nil {
				if u, err := base.URL.Parse(raw); err == nil {
					resolved = u.String()
				}
			}
			links[rel] = append(links[rel], resolved)
		}
	}
	return links
}

// parseRetryAfter parses Retry-After as either a seconds-integer or an
// HTTP-date, per spec.md §4.5.
func parseRetryAfter(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Now().Add(time.Duration(secs) * time.Second), true
	}
	if t, err := http.ParseTime(value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func parsePEMChain(body []byte) ([][]byte, error) {
	var chain [][]byte
	rest := body
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			chain = append(chain, block.Bytes)
		}
	}
	if len(chain) == 0 {
		return nil, problems.New(problems.KindProtocol, "transport: no PEM CERTIFICATE blocks in response body")
	}
	return chain, nil
}
