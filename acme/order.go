package acme

import (
	"context"
	"time"

	"github.com/cpu/acmecore/acme/identifier"
	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/poller"
	"github.com/cpu/acmecore/acme/problems"
	"github.com/cpu/acmecore/acme/transport"
)

// Order is a typed façade over an order resource, following spec.md §4.9's
// (C9b) state machine: pending -> ready -> processing -> valid, or -> invalid
// from any state.
type Order struct {
	URL            string
	Status         string
	Identifiers    []identifier.Identifier
	Expires        time.Time
	HasExpires     bool
	NotBefore      string
	NotAfter       string
	AuthzURLs      []string
	FinalizeURL    string
	CertificateURL string
	Error          *problems.Problem

	login *Login
	cert  *Certificate
}

func (o *Order) populateFrom(resp *transport.Response) error {
	if resp.JSON == nil {
		return problems.New(problems.KindProtocol, "order response at %q was not JSON", o.URL)
	}
	doc := resp.JSON

	status, err := doc.Value("status").Required().String()
	if err != nil {
		return err
	}
	idents, err := doc.Value("identifiers").Array()
	if err != nil {
		return err
	}
	var parsedIdents []identifier.Identifier
	for _, iv := range idents {
		obj, err := iv.Required().Object()
		if err != nil {
			return err
		}
		typ, err := obj.Value("type").Required().String()
		if err != nil {
			return err
		}
		val, err := obj.Value("value").Required().String()
		if err != nil {
			return err
		}
		parsedIdents = append(parsedIdents, identifier.Identifier{Type: identifier.Type(typ), Value: val})
	}
	authzURLs, err := doc.Value("authorizations").StringArray()
	if err != nil {
		return err
	}
	finalize, err := doc.Value("finalize").String()
	if err != nil {
		return err
	}
	cert, err := doc.Value("certificate").String()
	if err != nil {
		return err
	}
	notBefore, err := doc.Value("notBefore").String()
	if err != nil {
		return err
	}
	notAfter, err := doc.Value("notAfter").String()
	if err != nil {
		return err
	}
	expires, err := doc.Value("expires").Instant()
	if err != nil {
		return err
	}

	var orderErr *problems.Problem
	if errObj, err := doc.Value("error").Object(); err == nil && errObj != nil {
		raw, _ := errObj.Value("type").String()
		detail, _ := errObj.Value("detail").String()
		status, _ := errObj.Value("status").Int()
		orderErr = &problems.Problem{Type: raw, Detail: detail, Status: status}
	}

	o.Status = status
	o.Identifiers = parsedIdents
	o.AuthzURLs = authzURLs
	o.FinalizeURL = finalize
	o.CertificateURL = cert
	o.NotBefore = notBefore
	o.NotAfter = notAfter
	if !expires.IsZero() {
		o.Expires = expires
		o.HasExpires = true
	}
	o.Error = orderErr
	return nil
}

// Update performs a signed POST-as-GET refresh of the order.
func (o *Order) Update(ctx context.Context) error {
	resp, err := o.login.signedPostAsGet(ctx, o.URL, transport.AcceptJSON)
	if err != nil {
		return problems.Wrap(problems.KindLazyLoading, o.URL, err)
	}
	return o.populateFrom(resp)
}

// Authorizations fetches each pending Authorization named by AuthzURLs.
func (o *Order) Authorizations(ctx context.Context) ([]*Authorization, error) {
	out := make([]*Authorization, 0, len(o.AuthzURLs))
	for _, u := range o.AuthzURLs {
		authz := &Authorization{URL: u, login: o.login}
		if err := authz.Update(ctx); err != nil {
			return nil, err
		}
		out = append(out, authz)
	}
	return out, nil
}

func orderTerminalOrReady(status string) bool {
	return status == OrderReady || status == OrderInvalid
}

func orderDone(status string) bool {
	return status == OrderValid || status == OrderInvalid
}

// WaitUntilReady polls the order until it reaches "ready" or "invalid",
// per spec.md §4.13 (C11).
func (o *Order) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	return o.poll(ctx, timeout, orderTerminalOrReady)
}

// WaitForCompletion polls the order until it reaches a terminal state
// ("valid" or "invalid").
func (o *Order) WaitForCompletion(ctx context.Context, timeout time.Duration) error {
	return o.poll(ctx, timeout, orderDone)
}

func (o *Order) poll(ctx context.Context, timeout time.Duration, done poller.Done) error {
	_, err := poller.Poll(ctx, timeout, func(ctx context.Context) (string, time.Time, bool, error) {
		resp, err := o.login.signedPostAsGet(ctx, o.URL, transport.AcceptJSON)
		if err != nil {
			return o.Status, time.Time{}, false, err
		}
		if err := o.populateFrom(resp); err != nil {
			return o.Status, time.Time{}, false, err
		}
		return o.Status, resp.RetryAfter, resp.HasRetryAfter, nil
	}, done)
	return err
}

// Execute finalizes a "ready" order: a signed POST to the finalize URL with
// the base64url(DER(csr)) payload, per spec.md §4.9's ready -> processing
// transition. csr is the raw DER bytes of a CSR built by an external
// collaborator (spec.md §1).
func (o *Order) Execute(ctx context.Context, csrDER []byte) error {
	payload, err := jsonval.NewBuilder().PutBase64("csr", csrDER).Bytes()
	if err != nil {
		return err
	}
	resp, err := o.login.signedPost(ctx, o.FinalizeURL, payload, transport.AcceptJSON)
	if err != nil {
		return err
	}
	return o.populateFrom(resp)
}

// GetCertificate returns (lazily downloading on first call) the Certificate
// resource for a "valid" order.
func (o *Order) GetCertificate(ctx context.Context) (*Certificate, error) {
	if o.Status != OrderValid {
		return nil, problems.New(problems.KindProtocol, "order %q is not valid (status %q)", o.URL, o.Status)
	}
	if o.cert != nil {
		return o.cert, nil
	}
	if o.CertificateURL == "" {
		return nil, problems.New(problems.KindProtocol, "valid order %q has no certificate URL", o.URL)
	}
	cert := &Certificate{URL: o.CertificateURL, login: o.login}
	if err := cert.Download(ctx); err != nil {
		return nil, err
	}
	o.cert = cert
	return cert, nil
}
