package acme_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cpu/acmecore/acme"
	"github.com/cpu/acmecore/acme/identifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeACMEServer is a minimal stand-in CA exercising the happy-path issuance
// flow: directory discovery, account creation, order creation, a one-shot
// http-01 challenge trigger, finalization and chain download. Every
// challenge and authorization is already "valid" by the time it's fetched,
// so the order is "ready" as soon as it's polled once after triggering.
type fakeACMEServer struct{}

func (f *fakeACMEServer) handler(base string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/dir", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, fmt.Sprintf(`{
			"newNonce": %q,
			"newAccount": %q,
			"newOrder": %q,
			"revokeCert": %q,
			"keyChange": %q
		}`, base+"/new-nonce", base+"/new-acct", base+"/new-order", base+"/revoke-cert", base+"/key-change"))
	})

	mux.HandleFunc("/new-nonce", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "test-nonce")
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/new-acct", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "test-nonce")
		w.Header().Set("Location", base+"/acct/1")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"valid","contact":["mailto:admin@example.org"],"orders":"` + base + `/acct/1/orders"}`))
	})

	mux.HandleFunc("/new-order", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "test-nonce")
		w.Header().Set("Location", base+"/order/1")
		writeJSON(w, `{
			"status": "pending",
			"identifiers": [{"type":"dns","value":"www.example.org"}],
			"authorizations": ["`+base+`/authz/1"],
			"finalize": "`+base+`/order/1/finalize"
		}`)
	})

	mux.HandleFunc("/order/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "test-nonce")
		writeJSON(w, `{
			"status": "ready",
			"identifiers": [{"type":"dns","value":"www.example.org"}],
			"authorizations": ["`+base+`/authz/1"],
			"finalize": "`+base+`/order/1/finalize"
		}`)
	})

	mux.HandleFunc("/order/1/finalize", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "test-nonce")
		writeJSON(w, `{
			"status": "valid",
			"identifiers": [{"type":"dns","value":"www.example.org"}],
			"authorizations": ["`+base+`/authz/1"],
			"finalize": "`+base+`/order/1/finalize",
			"certificate": "`+base+`/cert/1"
		}`)
	})

	mux.HandleFunc("/authz/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "test-nonce")
		writeJSON(w, `{
			"status": "valid",
			"identifier": {"type":"dns","value":"www.example.org"},
			"challenges": [{
				"url": "`+base+`/chall/1",
				"type": "http-01",
				"token": "token-abc",
				"status": "valid"
			}]
		}`)
	})

	mux.HandleFunc("/chall/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "test-nonce")
		writeJSON(w, `{
			"url": "`+base+`/chall/1",
			"type": "http-01",
			"token": "token-abc",
			"status": "valid"
		}`)
	})

	mux.HandleFunc("/cert/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "test-nonce")
		w.Header().Set("Link", `<`+base+`/cert/1/alt>; rel="alternate"`)
		w.Header().Set("Content-Type", "application/pem-certificate-chain")
		_, _ = w.Write(fakeChainPEM())
	})

	mux.HandleFunc("/revoke-cert", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "test-nonce")
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// fakeChainPEM builds a two-certificate leaf+intermediate chain at runtime
// (the leaf is signed by a self-signed intermediate that chains to no real
// root) so Download has a real DER structure to parse rather than
// hand-typed base64 that may not decode.
func fakeChainPEM() []byte {
	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	intKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}

	notBefore := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	intTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "fake intermediate"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		IsCA:         true,
	}
	intDER, err := x509.CreateCertificate(rand.Reader, intTemplate, intTemplate, &intKey.PublicKey, intKey)
	if err != nil {
		panic(err)
	}
	intCert, err := x509.ParseCertificate(intDER)
	if err != nil {
		panic(err)
	}

	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "www.example.org"},
		DNSNames:     []string{"www.example.org"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, intCert, &leafKey.PublicKey, intKey)
	if err != nil {
		panic(err)
	}

	var out []byte
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER})...)
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: intDER})...)
	return out
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

// newFakeServer starts an httptest server whose handler can reference its
// own base URL (the directory document embeds absolute endpoint URLs).
func newFakeServer(fake *fakeACMEServer) *httptest.Server {
	srv := httptest.NewUnstartedServer(nil)
	srv.Config.Handler = fake.handler("http://" + srv.Listener.Addr().String())
	srv.Start()
	return srv
}

func testSigner(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return signer
}

func TestEndToEndIssuanceFlow(t *testing.T) {
	srv := newFakeServer(&fakeACMEServer{})
	defer srv.Close()

	ctx := context.Background()
	session, err := acme.NewSession(srv.URL+"/dir", acme.SessionConfig{})
	require.NoError(t, err)

	accountKey := testSigner(t)
	login, account, existed, err := acme.NewAccount(ctx, session, accountKey, acme.AccountOptions{
		Contact:              []string{"mailto:admin@example.org"},
		TermsOfServiceAgreed: true,
	})
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, acme.AccountValid, account.Status)
	assert.Equal(t, srv.URL+"/acct/1", login.AccountURL())

	dnsID, err := identifier.DNS("www.example.org")
	require.NoError(t, err)
	order, err := account.NewOrder(ctx, []identifier.Identifier{dnsID}, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, acme.OrderPending, order.Status)
	require.Len(t, order.AuthzURLs, 1)

	authzs, err := order.Authorizations(ctx)
	require.NoError(t, err)
	require.Len(t, authzs, 1)
	authz := authzs[0]
	assert.Equal(t, acme.AuthorizationValid, authz.Status)
	assert.Equal(t, "www.example.org", authz.Identifier.Value)

	chall := authz.FindChallenge("http-01")
	require.NotNil(t, chall)
	keyAuth, err := chall.KeyAuthorization()
	require.NoError(t, err)
	assert.Contains(t, keyAuth, "token-abc.")

	require.NoError(t, chall.Trigger(ctx))
	assert.Equal(t, acme.ChallengeValid, chall.Status)

	require.NoError(t, order.Update(ctx))
	assert.Equal(t, acme.OrderReady, order.Status)

	require.NoError(t, order.Execute(ctx, []byte("fake-der-csr")))
	assert.Equal(t, acme.OrderValid, order.Status)

	cert, err := order.GetCertificate(ctx)
	require.NoError(t, err)
	require.Len(t, cert.Chain, 2)
	assert.Len(t, cert.GetAlternates(), 1)

	pemOut := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Chain[0]})
	assert.Contains(t, string(pemOut), "-----BEGIN CERTIFICATE-----")

	reason := 0
	require.NoError(t, cert.Revoke(ctx, &reason, nil))
}

func TestGetOrdersFailsNotSupportedWithoutOrdersURL(t *testing.T) {
	srv := newFakeServer(&fakeACMEServer{})
	defer srv.Close()

	ctx := context.Background()
	session, err := acme.NewSession(srv.URL+"/dir", acme.SessionConfig{})
	require.NoError(t, err)

	login := acme.BindAccount(session, srv.URL+"/acct/1", testSigner(t))
	account := login.Account()

	_, err = account.GetOrders(ctx)
	assert.Error(t, err)
}

func TestPreAuthorizeIdentifierFailsNotSupportedWithoutNewAuthz(t *testing.T) {
	srv := newFakeServer(&fakeACMEServer{})
	defer srv.Close()

	ctx := context.Background()
	session, err := acme.NewSession(srv.URL+"/dir", acme.SessionConfig{})
	require.NoError(t, err)

	login := acme.BindAccount(session, srv.URL+"/acct/1", testSigner(t))
	account := login.Account()

	dnsID, err := identifier.DNS("www.example.org")
	require.NoError(t, err)
	_, err = account.PreAuthorizeIdentifier(ctx, dnsID)
	assert.Error(t, err)
}
