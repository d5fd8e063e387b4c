package shell

import (
	"context"
	"crypto"
	"encoding/pem"
	"flag"
	"os"
	"strconv"

	"github.com/abiosoft/ishell"
)

// registerCertificateCommands wires the certificate-download and -revoke
// commands, consolidating the teacher's getCert package and the
// revokeCert package referenced by cmd/acmeshell's command list.
func (s *Shell) registerCertificateCommands() {
	s.AddCmd(&ishell.Cmd{
		Name:     "getcert",
		Aliases:  []string{"getCert", "cert", "certificate"},
		Help:     "Download a valid order's certificate chain",
		LongHelp: "getcert <order index> [-path file.pem]",
		Func:     s.getCertHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "revokecert",
		Aliases:  []string{"revokeCert"},
		Help:     "Revoke a downloaded certificate",
		LongHelp: "revokecert <order index> [-reason N] [-key key name]",
		Func:     s.revokeCertHandler,
	})
}

func (s *Shell) getCertHandler(c *ishell.Context) {
	var path string
	fs := flag.NewFlagSet("getcert", flag.ContinueOnError)
	fs.StringVar(&path, "path", "", "file path to save the PEM certificate chain to")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	leftovers := fs.Args()
	if len(leftovers) != 1 {
		c.Println("getcert: an order index is required")
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

	cert, err := order.GetCertificate(context.Background())
	if err != nil {
		c.Printf("getcert: %s\n", err)
		return
	}

	var out []byte
	for _, der := range cert.Chain {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}

	if path == "" {
		c.Printf("%s", out)
		return
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		c.Printf("getcert: writing %q: %s\n", path, err)
		return
	}
	c.Printf("getcert: certificate chain saved to %q\n", path)
}

func (s *Shell) revokeCertHandler(c *ishell.Context) {
	var reasonStr, keyName string
	fs := flag.NewFlagSet("revokecert", flag.ContinueOnError)
	fs.StringVar(&reasonStr, "reason", "", "RFC 5280 CRL reason code (defaults to unspecified)")
	fs.StringVar(&keyName, "key", "", "key to sign the revocation request with (defaults to the account key)")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	leftovers := fs.Args()
	if len(leftovers) != 1 {
		c.Println("revokecert: an order index is required")
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
	cert, err := order.GetCertificate(context.Background())
	if err != nil {
		c.Printf("revokecert: %s\n", err)
		return
	}

	var reason *int
	if reasonStr != "" {
		n, err := strconv.Atoi(reasonStr)
		if err != nil {
			c.Printf("revokecert: invalid -reason: %s\n", err)
			return
		}
		reason = &n
	}

	var signer crypto.Signer
	if keyName != "" {
		signer = s.requireKey(c, keyName)
		if signer == nil {
			return
		}
	}

	if err := cert.Revoke(context.Background(), reason, signer); err != nil {
		c.Printf("revokecert: %s\n", err)
		return
	}
	c.Printf("revokecert: certificate for order %s revoked\n", order.URL)
}
