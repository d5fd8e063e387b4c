// Package noncepool implements the single-slot anti-replay nonce cache
// spec.md §4.3 describes: the freshest Replay-Nonce a Session has observed,
// refilled from the server's newNonce endpoint when empty.
//
// Grounded on the teacher's acme/client/nonce.go (Nonce/RefreshNonce against
// a Client's stored nonce field), generalized to a standalone type so it can
// be shared between a Session's transport calls without a Client god-object,
// and made safe for concurrent use per spec.md §5 ("the nonce pool ... must
// be safe for use by multiple request-issuing operations within a Session").
package noncepool

import (
	"sync"

	"github.com/cpu/acmecore/acme/problems"
)

// Fetcher retrieves a fresh nonce from the server (an unsigned HEAD against
// the directory's newNonce endpoint), returning the value of the response's
// Replay-Nonce header. Implemented by the Session, which is the thing that
// knows both the transport and the cached directory's newNonce URL; declared
// here so Pool doesn't need to import either.
type Fetcher interface {
	FetchNonce() (string, error)
}

// Pool holds at most one nonce at a time. The zero value is not usable;
// construct with New.
type Pool struct {
	mu      sync.Mutex
	fetcher Fetcher
	nonce   string
}

// New returns an empty Pool that refills via fetcher on demand.
func New(fetcher Fetcher) *Pool {
	return &Pool{fetcher: fetcher}
}

// Nonce implements jose.NonceSource: it returns the pool's current nonce,
// consuming it (the slot is left empty so the next call fetches or waits for
// a fresh one from the next response), fetching one first if the pool is
// currently empty.
func (p *Pool) Nonce() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nonce != "" {
		n := p.nonce
		p.nonce = ""
		return n, nil
	}
	if p.fetcher == nil {
		return "", problems.New(problems.KindProtocol, "noncepool: empty and no fetcher configured")
	}
	n, err := p.fetcher.FetchNonce()
	if err != nil {
		return "", err
	}
	return n, nil
}

// Set overwrites the pool's current slot with n, discarding whatever was
// there. Called after every response (signed or unsigned) that carries a
// Replay-Nonce header, per spec.md's invariant that the header "must replace
// [the consumed nonce] atomically".
func (p *Pool) Set(n string) {
	if n == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonce = n
}
