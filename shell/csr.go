package shell

import (
	"context"
	"crypto"
	"encoding/pem"
	"flag"

	"github.com/abiosoft/ishell"

	"github.com/cpu/acmecore/acme"
	"github.com/cpu/acmecore/internal/csrutil"
	"github.com/cpu/acmecore/internal/keystore"
)

// registerCSRCommand wires a standalone "csr" command so a user can inspect
// the CSR finalize would build without also submitting it.
func (s *Shell) registerCSRCommand() {
	s.AddCmd(&ishell.Cmd{
		Name:     "csr",
		Help:     "Build (but don't submit) a CSR for an order's identifiers",
		LongHelp: "csr <order index> [-key key name]",
		Func:     s.csrHandler,
	})
}

func (s *Shell) csrHandler(c *ishell.Context) {
	var keyName string
	fs := flag.NewFlagSet("csr", flag.ContinueOnError)
	fs.StringVar(&keyName, "key", "", "signing key for the CSR (generated if omitted)")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	leftovers := fs.Args()
	if len(leftovers) != 1 {
		c.Println("csr: an order index is required")
		return
	}
	if s.requireLogin(c) == nil {
		return
	}
	ref := s.orderByIndex(c, leftovers[0])
	if ref == nil {
		return
	}
	order := s.orders[s.active][ref.index]
	if err := order.Update(context.Background()); err != nil {
		c.Printf("csr: %s\n", err)
		return
	}

	signer := s.requireKey(c, keyName)
	if keyName != "" && signer == nil {
		return
	}
	if signer == nil {
		var err error
		signer, err = newDefaultCertKey()
		if err != nil {
			c.Printf("csr: %s\n", err)
			return
		}
	}

	der, err := buildCSR(order, signer)
	if err != nil {
		c.Printf("csr: %s\n", err)
		return
	}
	c.Printf("%s", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}))
}

// newDefaultCertKey generates an ECDSA P-256 key, the teacher's default
// when no -key is given to the "csr"/"finalize" commands.
func newDefaultCertKey() (crypto.Signer, error) {
	return keystore.NewSigner(keystore.ECDSAP256)
}

// buildCSR constructs a DER-encoded CSR for order's identifiers, signed by
// signer.
func buildCSR(order *acme.Order, signer crypto.Signer) ([]byte, error) {
	return csrutil.Build(csrutil.Request{
		Identifiers: order.Identifiers,
		Signer:      signer,
	})
}
