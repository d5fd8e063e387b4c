// Package csrutil builds PKCS#10 certificate signing requests for the
// identifiers an Order names. spec.md §1 calls CSR/X.509 construction out as
// an external collaborator: the core engine only ever consumes the raw
// signed CSR bytes Order.Execute expects, never builds them itself.
//
// Grounded on the teacher's acme/client/csr.go (Client.CSR): the same
// pkix.Name/x509.CreateCertificateRequest shape, generalized from a
// DNSNames-only template to the full dns/ip identifier set spec.md §3
// allows (RFC 8738 IP identifiers go in the CSR's IPAddresses field, not
// DNSNames).
package csrutil

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"

	"github.com/cpu/acmecore/acme/identifier"
)

// Request configures a CSR build.
type Request struct {
	// CommonName sets the CSR subject's CN. If empty, the first
	// identifier's value is used.
	CommonName string
	// Identifiers lists the SANs to request, mirroring the Order's
	// identifier list; dns and ip types are distributed into DNSNames and
	// IPAddresses respectively, per RFC 8738.
	Identifiers []identifier.Identifier
	// Signer is the key pair the issued certificate's public key derives
	// from; it signs the CSR itself.
	Signer crypto.Signer
}

// Build produces the DER-encoded CSR for req, signed with req.Signer.
func Build(req Request) ([]byte, error) {
	if len(req.Identifiers) == 0 {
		return nil, fmt.Errorf("csrutil: no identifiers specified")
	}
	if req.Signer == nil {
		return nil, fmt.Errorf("csrutil: no signer specified")
	}

	commonName := req.CommonName
	if commonName == "" {
		commonName = req.Identifiers[0].Value
	}

	template := x509.CertificateRequest{
		Subject: pkix.Name{CommonName: commonName},
	}
	for _, id := range req.Identifiers {
		switch id.Type {
		case identifier.TypeDNS:
			template.DNSNames = append(template.DNSNames, id.Value)
		case identifier.TypeIP:
			ip, err := id.ParseIP()
			if err != nil {
				return nil, fmt.Errorf("csrutil: %w", err)
			}
			template.IPAddresses = append(template.IPAddresses, ip)
		default:
			return nil, fmt.Errorf("csrutil: identifier type %q cannot appear in a CSR", id.Type)
		}
	}

	return x509.CreateCertificateRequest(rand.Reader, &template, req.Signer)
}

// BuildPEM is Build, additionally PEM-encoding the result as a
// "CERTIFICATE REQUEST" block.
func BuildPEM(req Request) ([]byte, error) {
	der, err := Build(req)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}
