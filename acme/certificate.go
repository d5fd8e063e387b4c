package acme

import (
	"context"
	"crypto"
	"time"

	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/keys"
	"github.com/cpu/acmecore/acme/problems"
	"github.com/cpu/acmecore/acme/transport"
)

// Certificate is a typed façade over a downloaded certificate chain, per
// spec.md §4.12 (C9e).
type Certificate struct {
	URL            string
	Chain          [][]byte // DER-encoded, leaf first
	AlternateURLs  []string
	RenewalInfoURL string

	login *Login
}

// Download performs a signed POST-as-GET against the certificate URL,
// expecting an application/pem-certificate-chain body, and populates Chain
// and AlternateURLs from the response.
func (c *Certificate) Download(ctx context.Context) error {
	resp, err := c.login.signedPostAsGet(ctx, c.URL, transport.AcceptPEMChain)
	if err != nil {
		return err
	}
	if len(resp.PEMChain) == 0 {
		return problems.New(problems.KindProtocol, "certificate response at %q carried no PEM chain", c.URL)
	}
	c.Chain = resp.PEMChain
	c.AlternateURLs = resp.Links["alternate"]
	if ari := resp.Link("ari"); ari != "" {
		c.RenewalInfoURL = ari
	}
	return nil
}

// GetAlternates returns the "alternate" chain URLs discovered by Download,
// each independently downloadable by constructing a Certificate{URL: alt}
// bound to the same Login and calling Download.
func (c *Certificate) GetAlternates() []string {
	return c.AlternateURLs
}

// Revoke requests revocation of the certificate's leaf (the first entry in
// Chain), per spec.md §4.12. When signer is nil the request is signed with
// the bound account's key (kid). When signer is non-nil it must be the
// certificate's own key pair, signed via jwk; spec.md §6 requires refusing
// this mode if the supplied key equals the current account key, since that
// case should instead use the account-key (kid) path.
func (c *Certificate) Revoke(ctx context.Context, reason *int, signer crypto.Signer) error {
	if len(c.Chain) == 0 {
		return problems.New(problems.KindProtocol, "certificate %q has not been downloaded", c.URL)
	}
	revokeURL, err := c.login.session.endpointURL(ctx, endpointRevokeCert)
	if err != nil {
		return err
	}

	builder := jsonval.NewBuilder().PutBase64("certificate", c.Chain[0])
	if reason != nil {
		builder.Put("reason", *reason)
	}
	payload, err := builder.Bytes()
	if err != nil {
		return err
	}

	var resp *transport.Response
	if signer == nil {
		resp, err = c.login.signedPost(ctx, revokeURL, payload, transport.AcceptJSON)
	} else {
		if keys.SameKey(signer, c.login.signer) {
			return problems.New(problems.KindProtocol,
				"revokeCert: supplied certificate key equals the current account key, use the account-key (kid) path instead")
		}
		resp, err = c.login.session.transport.SignedPost(ctx, revokeURL, payload, transport.SignRequest{
			Signer:   signer,
			EmbedJWK: true,
			Nonce:    c.login.session.nonces,
		}, transport.AcceptJSON)
		c.login.session.absorbNonce(resp)
	}
	return err
}

// RenewalInfo is the ACME Renewal Information (ARI) response, per
// draft-ietf-acme-ari.
type RenewalInfo struct {
	WindowStart    string
	WindowEnd      string
	ExplanationURL string
}

// GetRenewalInfo fetches ARI data for this certificate, if an "ari" Link was
// discovered during Download or the directory advertises a renewalInfo
// endpoint. Fails with not-supported otherwise.
func (c *Certificate) GetRenewalInfo(ctx context.Context) (*RenewalInfo, error) {
	url := c.RenewalInfoURL
	if url == "" {
		var ok bool
		url, ok = c.login.session.renewalInfoURL(ctx)
		if !ok {
			return nil, c.login.session.notSupported("renewal information (ARI)")
		}
	}
	resp, err := c.login.session.transport.Get(ctx, url, time.Time{})
	if err != nil {
		return nil, err
	}
	if resp.JSON == nil {
		return nil, problems.New(problems.KindProtocol, "renewal info response at %q was not JSON", url)
	}
	window, err := resp.JSON.Value("suggestedWindow").Required().Object()
	if err != nil {
		return nil, err
	}
	start, err := window.Value("start").Required().String()
	if err != nil {
		return nil, err
	}
	end, err := window.Value("end").Required().String()
	if err != nil {
		return nil, err
	}
	explanation, err := resp.JSON.Value("explanationURL").String()
	if err != nil {
		return nil, err
	}
	return &RenewalInfo{WindowStart: start, WindowEnd: end, ExplanationURL: explanation}, nil
}
