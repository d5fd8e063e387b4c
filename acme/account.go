package acme

import (
	"context"
	"crypto"
	"encoding/json"

	"github.com/cpu/acmecore/acme/identifier"
	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/jws"
	"github.com/cpu/acmecore/acme/problems"
	"github.com/cpu/acmecore/acme/transport"
)

// Account is a typed façade over an ACME account resource (spec.md §4.8,
// C9a), identified by its Location URL. Fields reflect the last
// successfully fetched server response; call Update to refresh.
type Account struct {
	URL                  string
	Status               string
	Contact              []string
	TermsOfServiceAgreed bool
	OrdersURL            string
	ExternalAccountBound bool

	login *Login
}

// ExternalAccountBinding carries the CA-issued HMAC credentials needed to
// bind a new account to an existing, out-of-band account at the CA, per
// RFC 8555 §7.3.4.
type ExternalAccountBinding struct {
	KeyID     string
	HMACKey   []byte
	Algorithm string // one of jws.HS256/HS384/HS512
}

// AccountOptions configures a NewAccount call.
type AccountOptions struct {
	Contact              []string
	TermsOfServiceAgreed bool
	// OnlyReturnExisting requests RFC 8555 §7.3.1 lookup-only semantics:
	// the server must return an existing account for this key, or fail,
	// never creating a new one.
	OnlyReturnExisting bool
	EAB                *ExternalAccountBinding
}

// NewAccount POSTs to the directory's newAccount endpoint with the new
// key's JWK (not kid), per spec.md §4.8. On success it returns a Login
// bound to the returned account URL along with the populated Account. If
// the server answered 200 (rather than 201) the account already existed;
// Existed reports this.
func NewAccount(ctx context.Context, session *Session, signer crypto.Signer, opts AccountOptions) (login *Login, account *Account, existed bool, err error) {
	newAccountURL, err := session.endpointURL(ctx, endpointNewAccount)
	if err != nil {
		return nil, nil, false, err
	}

	builder := jsonval.NewBuilder()
	if resource, ok := session.legacyResource(endpointNewAccount); ok {
		builder.PutResource(resource)
	}
	if len(opts.Contact) > 0 {
		contacts := make([]any, len(opts.Contact))
		for i, c := range opts.Contact {
			contacts[i] = c
		}
		builder.Put("contact", contacts)
	}
	builder.Put("termsOfServiceAgreed", opts.TermsOfServiceAgreed)
	if opts.OnlyReturnExisting {
		builder.Put("onlyReturnExisting", true)
	}
	if opts.EAB != nil {
		eabResult, err := jws.SignEAB(opts.EAB.HMACKey, opts.EAB.Algorithm, opts.EAB.KeyID, newAccountURL, signer)
		if err != nil {
			return nil, nil, false, err
		}
		var eabDoc any
		if err := json.Unmarshal(eabResult.Serialized, &eabDoc); err != nil {
			return nil, nil, false, problems.Wrap(problems.KindProtocol, newAccountURL, err)
		}
		builder.Put("externalAccountBinding", eabDoc)
	}

	payload, err := builder.Bytes()
	if err != nil {
		return nil, nil, false, err
	}

	resp, err := session.transport.SignedPost(ctx, newAccountURL, payload, transport.SignRequest{
		Signer:   signer,
		EmbedJWK: true,
		Nonce:    session.nonces,
	}, transport.AcceptJSON)
	if err != nil {
		return nil, nil, false, err
	}
	session.absorbNonce(resp)

	if resp.Location == "" {
		return nil, nil, false, problems.New(problems.KindProtocol, "newAccount response at %q carried no Location header", newAccountURL)
	}

	l := bindLogin(session, resp.Location, signer)
	a := l.Account()
	if err := a.populateFrom(resp); err != nil {
		return nil, nil, false, err
	}
	existed = resp.StatusCode == 200
	return l, a, existed, nil
}

func (a *Account) populateFrom(resp *transport.Response) error {
	if resp.JSON == nil {
		return problems.New(problems.KindProtocol, "account response at %q was not JSON", a.URL)
	}
	doc := resp.JSON
	status, err := doc.Value("status").Required().String()
	if err != nil {
		return err
	}
	contact, err := doc.Value("contact").StringArray()
	if err != nil {
		return err
	}
	tosAgreed, err := doc.Value("termsOfServiceAgreed").Bool()
	if err != nil {
		return err
	}
	ordersURL, err := doc.Value("orders").String()
	if err != nil {
		return err
	}
	a.Status = status
	a.Contact = contact
	a.TermsOfServiceAgreed = tosAgreed
	a.OrdersURL = ordersURL
	a.ExternalAccountBound = doc.Has("externalAccountBinding")
	return nil
}

// Update performs a signed POST-as-GET of the account URL and replaces the
// Account's local fields from the response.
func (a *Account) Update(ctx context.Context) error {
	resp, err := a.login.signedPostAsGet(ctx, a.URL, transport.AcceptJSON)
	if err != nil {
		return problems.Wrap(problems.KindLazyLoading, a.URL, err)
	}
	return a.populateFrom(resp)
}

// AccountUpdate is a pending signed update, built by Account.Modify and
// applied by Commit.
type AccountUpdate struct {
	account *Account
	builder *jsonval.JSONBuilder
}

// Modify begins a signed POST updating the account's contact list and/or
// status, per spec.md §4.8's modify(...).commit().
func (a *Account) Modify() *AccountUpdate {
	return &AccountUpdate{account: a, builder: jsonval.NewBuilder()}
}

// Contact sets a replacement contact URI list on the pending update.
func (u *AccountUpdate) Contact(contact []string) *AccountUpdate {
	list := make([]any, len(contact))
	for i, c := range contact {
		list[i] = c
	}
	u.builder.Put("contact", list)
	return u
}

// Deactivate marks the pending update as setting status "deactivated" —
// the only status transition a client may request directly.
func (u *AccountUpdate) Deactivate() *AccountUpdate {
	u.builder.Put("status", AccountDeactivated)
	return u
}

// Commit sends the pending update as a signed POST and refreshes the
// Account from the response.
func (u *AccountUpdate) Commit(ctx context.Context) error {
	payload, err := u.builder.Bytes()
	if err != nil {
		return err
	}
	resp, err := u.account.login.signedPost(ctx, u.account.URL, payload, transport.AcceptJSON)
	if err != nil {
		return err
	}
	return u.account.populateFrom(resp)
}

// ChangeKey replaces the account's signing key with newSigner, per spec.md
// §4.2's nested-JWS key-change protocol. On success the Login's Signer is
// atomically swapped to newSigner; on failure (notably invalid-key-change,
// when newSigner is already bound to another account) the Login is
// unchanged.
func (a *Account) ChangeKey(ctx context.Context, newSigner crypto.Signer) error {
	keyChangeURL, err := a.login.session.endpointURL(ctx, endpointKeyChange)
	if err != nil {
		return err
	}
	result, err := jws.SignKeyChange(a.login.signer, newSigner, a.URL, keyChangeURL, a.login.session.nonces)
	if err != nil {
		return err
	}
	// The transport produces the outer JWS itself (re-signing it on a
	// badNonce retry), so the inner JWS is posted as its payload.
	innerJWS := result.JWS.UnsafePayloadWithoutVerification()
	resp, err := a.login.session.transport.SignedPost(ctx, keyChangeURL, innerJWS, transport.SignRequest{
		Signer: a.login.signer,
		KeyID:  a.URL,
		Nonce:  a.login.session.nonces,
	}, transport.AcceptJSON)
	a.login.session.absorbNonce(resp)
	if err != nil {
		if problems.IsACMEType(err, "invalidKeyChange") {
			if e, ok := err.(*problems.Error); ok {
				e.Kind = problems.KindInvalidKeyChange
			}
		}
		return err
	}
	a.login.signer = newSigner
	return a.populateFrom(resp)
}

// NewOrder POSTs to the directory's newOrder endpoint, requesting a
// certificate for identifiers. Per spec.md §4.9, the response's Location is
// the new Order's URL and its body embeds the Authorization URLs to
// satisfy.
func (a *Account) NewOrder(ctx context.Context, identifiers []identifier.Identifier, notBefore, notAfter string, profile string) (*Order, error) {
	newOrderURL, err := a.login.session.endpointURL(ctx, endpointNewOrder)
	if err != nil {
		return nil, err
	}

	idents := make([]*jsonval.JSONBuilder, len(identifiers))
	for i, id := range identifiers {
		idents[i] = jsonval.NewBuilder().Put("type", string(id.Type)).Put("value", id.Value)
	}
	builder := jsonval.NewBuilder().Put("identifiers", idents)
	if notBefore != "" {
		builder.Put("notBefore", notBefore)
	}
	if notAfter != "" {
		builder.Put("notAfter", notAfter)
	}
	if profile != "" {
		builder.Put("profile", profile)
	}

	payload, err := builder.Bytes()
	if err != nil {
		return nil, err
	}
	resp, err := a.login.signedPost(ctx, newOrderURL, payload, transport.AcceptJSON)
	if err != nil {
		return nil, err
	}
	if resp.Location == "" {
		return nil, problems.New(problems.KindProtocol, "newOrder response at %q carried no Location header", newOrderURL)
	}
	order := &Order{URL: resp.Location, login: a.login}
	if err := order.populateFrom(resp); err != nil {
		return nil, err
	}
	return order, nil
}

// PreAuthorizeIdentifier requests authorization for an identifier ahead of
// placing an order, an optional server feature (spec.md §4.8). Fails with
// not-supported if the server has no newAuthz endpoint.
func (a *Account) PreAuthorizeIdentifier(ctx context.Context, id identifier.Identifier) (*Authorization, error) {
	newAuthzURL, err := a.login.session.endpointURL(ctx, endpointNewAuthz)
	if err != nil {
		return nil, a.login.session.notSupported("newAuthz")
	}
	builder := jsonval.NewBuilder().
		PutBuilder("identifier", jsonval.NewBuilder().Put("type", string(id.Type)).Put("value", id.Value))
	payload, err := builder.Bytes()
	if err != nil {
		return nil, err
	}
	resp, err := a.login.signedPost(ctx, newAuthzURL, payload, transport.AcceptJSON)
	if err != nil {
		return nil, err
	}
	if resp.Location == "" {
		return nil, problems.New(problems.KindProtocol, "newAuthz response at %q carried no Location header", newAuthzURL)
	}
	authz := &Authorization{URL: resp.Location, login: a.login}
	if err := authz.populateFrom(resp); err != nil {
		return nil, err
	}
	return authz, nil
}

// GetOrders fetches the account's order list, a best-effort feature per
// spec.md §4.8 and §9's Open Question (a): CAs implement "orders"
// pagination inconsistently, so the core exposes it as-is rather than
// guessing a shape, and fails with not-supported if the account has no
// orders URL at all.
func (a *Account) GetOrders(ctx context.Context) ([]string, error) {
	if a.OrdersURL == "" {
		return nil, a.login.session.notSupported("account orders list")
	}
	var orders []string
	next := a.OrdersURL
	for next != "" {
		resp, err := a.login.signedPostAsGet(ctx, next, transport.AcceptJSON)
		if err != nil {
			return nil, err
		}
		if resp.JSON == nil {
			return nil, problems.New(problems.KindProtocol, "orders list response at %q was not JSON", next)
		}
		page, err := resp.JSON.Value("orders").StringArray()
		if err != nil {
			return nil, err
		}
		orders = append(orders, page...)
		next = resp.Link("next")
	}
	return orders, nil
}
