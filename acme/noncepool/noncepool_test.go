package noncepool

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	mu    sync.Mutex
	n     int
	nonce string
	err   error
}

func (f *stubFetcher) FetchNonce() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.err != nil {
		return "", f.err
	}
	return f.nonce, nil
}

func TestNonceConsumesSetValueOnce(t *testing.T) {
	p := New(&stubFetcher{})
	p.Set("abc")

	n, err := p.Nonce()
	require.NoError(t, err)
	assert.Equal(t, "abc", n)
}

func TestNonceFetchesWhenEmpty(t *testing.T) {
	fetcher := &stubFetcher{nonce: "fresh"}
	p := New(fetcher)

	n, err := p.Nonce()
	require.NoError(t, err)
	assert.Equal(t, "fresh", n)
	assert.Equal(t, 1, fetcher.n)
}

func TestNonceWithoutFetcherErrorsWhenEmpty(t *testing.T) {
	p := New(nil)
	_, err := p.Nonce()
	assert.Error(t, err)
}

func TestNoncePropagatesFetcherError(t *testing.T) {
	boom := errors.New("boom")
	p := New(&stubFetcher{err: boom})
	_, err := p.Nonce()
	assert.ErrorIs(t, err, boom)
}

func TestSetIgnoresEmptyString(t *testing.T) {
	p := New(&stubFetcher{nonce: "fresh"})
	p.Set("first")
	p.Set("")

	n, err := p.Nonce()
	require.NoError(t, err)
	assert.Equal(t, "first", n)
}

func TestSetOverwritesPendingNonce(t *testing.T) {
	p := New(&stubFetcher{})
	p.Set("one")
	p.Set("two")

	n, err := p.Nonce()
	require.NoError(t, err)
	assert.Equal(t, "two", n)
}
