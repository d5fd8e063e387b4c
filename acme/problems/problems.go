// Package problems implements the RFC 7807 "application/problem+json"
// document model used by ACME error responses, and the structured error
// kind taxonomy the engine surfaces to callers.
//
// The Problem struct is grounded on the teacher's acme/resources/problem.go
// (which only carried Type/Detail/Status) and expanded to the fuller shape
// used by hlandau/acmeapi's Problem type (Title, Instance, Subproblem,
// Identifier) plus the type-specific payloads RFC 8555 §6.7 defines for
// userActionRequired and rateLimited.
package problems

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// errorNS is the URN namespace prefix every ACME error type URI uses. The
// core strips it off when classifying a Problem into a Kind.
const errorNS = "urn:ietf:params:acme:error:"

// Problem is a parsed RFC 7807 problem document, as returned by an ACME
// server with Content-Type: application/problem+json.
type Problem struct {
	// Type is the full problem type URI, e.g.
	// "urn:ietf:params:acme:error:malformed". Defaults to "about:blank" if
	// the server omitted it.
	Type string `json:"type,omitempty"`
	// Title is a short, human-readable summary of the problem.
	Title string `json:"title,omitempty"`
	// Status is the HTTP status code repeated in the body. Advisory only;
	// the real status lives on the HTTP response.
	Status int `json:"status,omitempty"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is an optional URI identifying this specific occurrence.
	Instance string `json:"instance,omitempty"`
	// Subproblems holds nested per-identifier problems for a "compound"
	// error (RFC 8555 §6.7.1).
	Subproblems []*Problem `json:"subproblems,omitempty"`

	// Identifier is set on subproblems to say which Identifier the nested
	// problem is about.
	Identifier *ProblemIdentifier `json:"identifier,omitempty"`

	// Raw holds any additional JSON the server sent (e.g. "subject" for
	// userActionRequired or "documents" for rateLimited) so callers can
	// recover type-specific payloads the Kind doesn't already expose.
	Raw json.RawMessage `json:"-"`
}

// ProblemIdentifier mirrors the ACME Identifier shape as it appears nested
// in a subproblem.
type ProblemIdentifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ACMEType strips the ACME error URN namespace off Type, returning e.g.
// "badNonce" for "urn:ietf:params:acme:error:badNonce". If Type does not
// carry the namespace the empty string is returned.
func (p *Problem) ACMEType() string {
	if p == nil {
		return ""
	}
	if !strings.HasPrefix(p.Type, errorNS) {
		return ""
	}
	return strings.TrimPrefix(p.Type, errorNS)
}

func (p *Problem) Error() string {
	if p == nil {
		return "<nil problem>"
	}
	if p.Detail != "" {
		return fmt.Sprintf("%s: %s", p.Type, p.Detail)
	}
	return p.Type
}

// Parse decodes a problem+json body. Unknown fields are preserved in Raw.
func Parse(status int, body []byte) (*Problem, error) {
	var p Problem
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, Wrap(KindProtocol, "", fmt.Errorf("problems: malformed problem document: %w", err))
	}
	if p.Type == "" {
		p.Type = "about:blank"
	}
	if p.Status == 0 {
		p.Status = status
	}
	p.Raw = json.RawMessage(body)
	return &p, nil
}

// Kind is the semantic classification of an engine-level failure, per
// spec.md §7. Names are semantic, not Go type names — callers use errors.As
// with the concrete *Error type and switch on Kind.
type Kind string

const (
	// KindProtocol covers malformed JSON, missing required fields, and
	// unparseable headers: a server bug or client misconfiguration.
	KindProtocol Kind = "protocol"
	// KindServerError wraps any ACME problem document, tagged by its
	// stripped ACME error type.
	KindServerError Kind = "server-error"
	// KindUserActionRequired specializes KindServerError for
	// urn:ietf:params:acme:error:userActionRequired.
	KindUserActionRequired Kind = "user-action-required"
	// KindRateLimited specializes KindServerError for
	// urn:ietf:params:acme:error:rateLimited.
	KindRateLimited Kind = "rate-limited"
	// KindRetryAfter signals a non-terminal "try again later" condition.
	KindRetryAfter Kind = "retry-after"
	// KindNetwork covers transport failures: DNS, TCP, TLS, timeouts.
	KindNetwork Kind = "network"
	// KindLazyLoading wraps a transport error raised while resolving
	// a lazily-loaded field.
	KindLazyLoading Kind = "lazy-loading"
	// KindNotSupported means the caller invoked a feature the server
	// did not advertise.
	KindNotSupported Kind = "not-supported"
	// KindInterrupted means a cancellation signal aborted a wait or sleep.
	KindInterrupted Kind = "interrupted"
	// KindUnsupportedKey means the signing key type/size isn't supported
	// by the JOSE layer (spec.md §4.2).
	KindUnsupportedKey Kind = "unsupported-key"
	// KindUnknownProvider means no registered Provider accepted a server
	// URI (spec.md §4.4).
	KindUnknownProvider Kind = "unknown-provider"
	// KindTimeout means a polling wait exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindInvalidKeyChange means the server rejected changeKey because the
	// new key is already bound to another account.
	KindInvalidKeyChange Kind = "invalid-key-change"
)

// Error is the engine's sole error type. Every public operation that fails
// returns one of these (possibly wrapped), so callers can type-assert or
// errors.As a single type and switch on Kind.
type Error struct {
	Kind Kind
	// URL is the request or resource URL that triggered the failure, when
	// known.
	URL string
	// Problem is the parsed RFC 7807 document, set for KindServerError and
	// its specializations.
	Problem *Problem
	// TOSURL and Instance are populated for KindUserActionRequired from the
	// response's Link: rel="terms-of-service" header and the Problem's
	// Instance field respectively.
	TOSURL   string
	Instance string
	// RetryAfter is populated for KindRateLimited and KindRetryAfter.
	RetryAfter time.Time
	// Documents lists rate-limit-related reference URLs (RFC 8555 §6.7 via
	// the Problem's Raw "documents" field), populated for KindRateLimited.
	Documents []string
	// LastStatus is the last-observed resource status, populated for
	// KindTimeout.
	LastStatus string

	msg string
	err error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil acme error>"
	}
	switch {
	case e.Problem != nil:
		return fmt.Sprintf("acme: %s: %s", e.Kind, e.Problem.Error())
	case e.msg != "":
		return fmt.Sprintf("acme: %s: %s", e.Kind, e.msg)
	case e.err != nil:
		return fmt.Sprintf("acme: %s: %s", e.Kind, e.err.Error())
	default:
		return fmt.Sprintf("acme: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.err }

// New builds a bare Error of the given Kind with a message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given Kind wrapping an underlying error.
func Wrap(kind Kind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, err: err}
}

// FromProblem classifies a parsed Problem document (plus any relevant HTTP
// response headers) into the engine's Error taxonomy.
func FromProblem(requestURL string, p *Problem, tosURL string, retryAfter time.Time) *Error {
	acmeType := p.ACMEType()
	switch acmeType {
	case "userActionRequired":
		return &Error{
			Kind:     KindUserActionRequired,
			URL:      requestURL,
			Problem:  p,
			TOSURL:   tosURL,
			Instance: p.Instance,
		}
	case "rateLimited":
		var payload struct {
			Documents []string `json:"documents"`
		}
		_ = json.Unmarshal(p.Raw, &payload)
		return &Error{
			Kind:       KindRateLimited,
			URL:        requestURL,
			Problem:    p,
			RetryAfter: retryAfter,
			Documents:  payload.Documents,
		}
	default:
		return &Error{
			Kind:    KindServerError,
			URL:     requestURL,
			Problem: p,
		}
	}
}

// IsACMEType reports whether err is a *Error carrying a Problem whose
// stripped ACME type matches acmeType (e.g. "badNonce").
func IsACMEType(err error, acmeType string) bool {
	e, ok := err.(*Error)
	if !ok || e.Problem == nil {
		return false
	}
	return e.Problem.ACMEType() == acmeType
}

// ValidURL reports whether s parses as an absolute http(s) URL, used to
// validate Instance/TOS links pulled out of problem documents and headers.
func ValidURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && (u.Scheme == "http" || u.Scheme == "https")
}
