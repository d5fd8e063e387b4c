package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedNonce struct{ n string }

func (f fixedNonce) Nonce() (string, error) { return f.n, nil }

func testSigner(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return signer
}

func TestGetParsesJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Replay-Nonce", "srv-nonce-1")
		_, _ = w.Write([]byte(`{"newNonce":"https://example.org/new-nonce"}`))
	}))
	defer srv.Close()

	tr := New(NetworkSettings{}, nil)
	resp, err := tr.Get(context.Background(), srv.URL, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, resp.JSON)
	assert.Equal(t, "srv-nonce-1", resp.ReplayNonce)

	url, err := resp.JSON.Value("newNonce").String()
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/new-nonce", url)
}

func TestGetHonorsNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	tr := New(NetworkSettings{}, nil)
	resp, err := tr.Get(context.Background(), srv.URL, time.Now())
	require.NoError(t, err)
	assert.True(t, resp.NotModified)
}

func TestNonSuccessReturnsProblemError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"urn:ietf:params:acme:error:malformed","detail":"bad request"}`))
	}))
	defer srv.Close()

	tr := New(NetworkSettings{}, nil)
	_, err := tr.Get(context.Background(), srv.URL, time.Time{})
	require.Error(t, err)
}

func TestSignedPostRetriesOnceOnBadNonce(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"type":"urn:ietf:params:acme:error:badNonce","detail":"bad nonce"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"valid"}`))
	}))
	defer srv.Close()

	tr := New(NetworkSettings{}, nil)
	signer := testSigner(t)
	resp, err := tr.SignedPost(context.Background(), srv.URL, []byte(`{}`), SignRequest{
		Signer: signer, KeyID: "https://example.org/acct/1", Nonce: fixedNonce{"n1"},
	}, AcceptJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	status, err := resp.JSON.Value("status").String()
	require.NoError(t, err)
	assert.Equal(t, "valid", status)
}

func TestSignedPostAsGetSendsEmptyPayload(t *testing.T) {
	var gotPayload string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var envelope struct {
			Payload string `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &envelope))
		gotPayload = envelope.Payload

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tr := New(NetworkSettings{}, nil)
	signer := testSigner(t)
	_, err := tr.SignedPostAsGet(context.Background(), srv.URL, SignRequest{
		Signer: signer, KeyID: "https://example.org/acct/1", Nonce: fixedNonce{"n1"},
	}, AcceptJSON)
	require.NoError(t, err)
	// POST-as-GET signs an empty payload; the flattened JWS "payload" field
	// is an empty (zero-length) base64url string.
	assert.Empty(t, gotPayload)
}

func TestRetryAfterParsesSecondsAndHTTPDate(t *testing.T) {
	_, ok := parseRetryAfter("")
	assert.False(t, ok)

	when, ok := parseRetryAfter("120")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(120*time.Second), when, 2*time.Second)

	when, ok = parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT")
	require.True(t, ok)
	assert.True(t, time.Date(2015, time.October, 21, 7, 28, 0, 0, time.UTC).Equal(when))

	_, ok = parseRetryAfter("not-a-value")
	assert.False(t, ok)
}
