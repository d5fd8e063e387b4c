// Package identifier implements the typed (type, value) pairs spec.md §3's
// Identifier names, and the type-specific normalization RFC 8555/8738/8823
// require before an identifier is sent to a server.
//
// Grounded on hlandau/acmeapi's Identifier type
// (28857826_hlandau-acmeapi__types.go.go, IdentifierType/IdentifierTypeDNS)
// for the tagged-pair shape, generalized to the full dns/ip/email set
// spec.md's SPEC_FULL supplement calls for (§3 of SPEC_FULL.md).
package identifier

import (
	"net"
	"strings"

	"github.com/cpu/acmecore/acme/problems"
	"golang.org/x/net/idna"
)

// Type tags the kind of thing being authorized.
type Type string

const (
	TypeDNS   Type = "dns"
	TypeIP    Type = "ip"
	TypeEmail Type = "email"
)

// Identifier is a normalized (type, value) pair ready to embed in a newOrder
// or newAuthz request body.
type Identifier struct {
	Type  Type
	Value string
}

// DNS builds a dns Identifier, normalizing name to lower-case ASCII via
// IDNA, per spec.md §3 ("DNS values are normalized via IDNA to ASCII,
// lower-cased").
func DNS(name string) (Identifier, error) {
	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(strings.TrimSpace(name), "."))
	if err != nil {
		return Identifier{}, problems.New(problems.KindProtocol, "identifier: invalid DNS name %q: %s", name, err)
	}
	return Identifier{Type: TypeDNS, Value: strings.ToLower(ascii)}, nil
}

// IP builds an ip Identifier from a literal IPv4 or IPv6 address, per RFC
// 8738. The value is the address's canonical string form.
func IP(addr string) (Identifier, error) {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return Identifier{}, problems.New(problems.KindProtocol, "identifier: invalid IP address %q", addr)
	}
	return Identifier{Type: TypeIP, Value: ip.String()}, nil
}

// ParseIP returns the net.IP for an ip-type Identifier, failing if Type is
// not TypeIP or Value is not a valid address (it always is for an
// Identifier built via IP, but callers may construct one directly from
// server JSON).
func (id Identifier) ParseIP() (net.IP, error) {
	if id.Type != TypeIP {
		return nil, problems.New(problems.KindProtocol, "identifier: type %q is not ip", id.Type)
	}
	ip := net.ParseIP(id.Value)
	if ip == nil {
		return nil, problems.New(problems.KindProtocol, "identifier: value %q is not a valid IP address", id.Value)
	}
	return ip, nil
}

// Email builds an email Identifier per RFC 8823. Surrounding whitespace is
// trimmed and the domain part is converted to ASCII via IDNA and
// lower-cased; the local part is kept verbatim, to avoid mangling quoted
// local parts the SMTP side would read verbatim.
func Email(addr string) (Identifier, error) {
	addr = strings.TrimSpace(addr)
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return Identifier{}, problems.New(problems.KindProtocol, "identifier: invalid email address %q", addr)
	}
	local, domain := addr[:at], addr[at+1:]
	asciiDomain, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return Identifier{}, problems.New(problems.KindProtocol, "identifier: invalid email domain %q: %s", domain, err)
	}
	return Identifier{Type: TypeEmail, Value: local + "@" + strings.ToLower(asciiDomain)}, nil
}
