package acme

import (
	"context"
	"crypto"

	"github.com/cpu/acmecore/acme/transport"
)

// Login binds a Session to one account key pair and account URL ("kid"),
// per spec.md §4.7 (C8). It is immutable except for ChangeKey's atomic key
// swap; every bound resource carries its Login back-reference. A Session
// may hold multiple concurrently active Logins for different account keys.
type Login struct {
	session    *Session
	signer     crypto.Signer
	accountURL string
}

// bindLogin builds a Login without touching the network: used both by
// NewAccount (after a successful newAccount POST) and by BindAccount
// (trusting a caller-supplied account URL outright).
func bindLogin(session *Session, accountURL string, signer crypto.Signer) *Login {
	return &Login{session: session, signer: signer, accountURL: accountURL}
}

// BindAccount binds an already-known account URL and key pair into a Login,
// without any network round trip. Callers who persisted an account URL from
// a prior NewAccount call use this to resume.
func BindAccount(session *Session, accountURL string, signer crypto.Signer) *Login {
	return bindLogin(session, accountURL, signer)
}

// Session returns the Login's backing Session.
func (l *Login) Session() *Session { return l.session }

// AccountURL returns the bound account's Location URL (the JWS "kid").
func (l *Login) AccountURL() string { return l.accountURL }

// Signer returns the account key currently bound to this Login. After a
// successful ChangeKey this reflects the new key.
func (l *Login) Signer() crypto.Signer { return l.signer }

// Account returns an unpopulated Account façade bound to this Login; call
// Update to populate its fields from the server.
func (l *Login) Account() *Account {
	return &Account{URL: l.accountURL, login: l}
}

// signRequest builds the transport.SignRequest describing "sign with this
// Login's account key, kid = account URL, nonce from the Session's pool" —
// the shape every bound-resource request after newAccount uses.
func (l *Login) signRequest() transport.SignRequest {
	return transport.SignRequest{
		Signer: l.signer,
		KeyID:  l.accountURL,
		Nonce:  l.session.nonces,
	}
}

func (l *Login) signedPost(ctx context.Context, url string, payload []byte, accept string) (*transport.Response, error) {
	resp, err := l.session.transport.SignedPost(ctx, url, payload, l.signRequest(), accept)
	l.session.absorbNonce(resp)
	return resp, err
}

func (l *Login) signedPostAsGet(ctx context.Context, url string, accept string) (*transport.Response, error) {
	resp, err := l.session.transport.SignedPostAsGet(ctx, url, l.signRequest(), accept)
	l.session.absorbNonce(resp)
	return resp, err
}
