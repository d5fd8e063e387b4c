// Package jsonval implements the engine's JSON value model: an immutable
// parsed-JSON tree (JSON) with typed, path-annotated accessors, and a
// companion JSONBuilder that produces canonical, insertion-ordered JSON for
// signing.
//
// The accessor shape is grounded on the field style used throughout the
// example corpus's ACME clients (hlandau/acmeapi's Problem/Account/Order
// structs, tommie/acme-go's protocol elements) generalized from fixed Go
// struct tags into a dynamic accessor so the engine can report exactly which
// dotted path failed to parse — useful given ACME servers disagree on which
// fields are actually optional in practice.
package jsonval

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cpu/acmecore/acme/problems"
)

// JSON is an immutable parsed JSON document or sub-tree. The zero value is
// not usable; construct with Parse or via a Value's Object()/Array().
type JSON struct {
	raw  any
	path string
}

// Parse decodes data into an immutable JSON tree rooted at path "$".
func Parse(data []byte) (*JSON, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, problems.Wrap(problems.KindProtocol, "", err)
	}
	return &JSON{raw: raw, path: "$"}, nil
}

// Path returns the dotted path this JSON node was reached by, for use in
// error messages.
func (j *JSON) Path() string {
	if j == nil {
		return "$"
	}
	return j.path
}

func (j *JSON) asObject() (map[string]any, bool) {
	if j == nil {
		return nil, false
	}
	m, ok := j.raw.(map[string]any)
	return m, ok
}

// Has reports whether key is present (and non-null) on this object node.
func (j *JSON) Has(key string) bool {
	m, ok := j.asObject()
	if !ok {
		return false
	}
	v, present := m[key]
	return present && v != nil
}

// Keys returns the object's keys in the order Go's json package returns
// them (sorted, since encoding/json decodes objects into a plain map).
func (j *JSON) Keys() []string {
	m, ok := j.asObject()
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns an accessor for key on this object node. The accessor is
// optional by default: absent/null fields decode to a zero value with no
// error unless Required() is called first.
func (j *JSON) Value(key string) *Value {
	path := key
	if j != nil && j.path != "" && j.path != "$" {
		path = j.path + "." + key
	}
	m, ok := j.asObject()
	if !ok {
		return &Value{path: path, present: false}
	}
	v, present := m[key]
	if v == nil {
		present = false
	}
	return &Value{path: path, raw: v, present: present}
}

// Value wraps one raw decoded value plus the dotted path it was found at,
// so type-conversion failures can name exactly where they occurred.
type Value struct {
	path     string
	raw      any
	present  bool
	required bool
}

// Required switches the accessor from optional to mandatory: subsequent
// conversions fail with a protocol-kind error naming Path() if the field
// was absent or null, instead of silently returning a zero value.
func (v *Value) Required() *Value {
	nv := *v
	nv.required = true
	return &nv
}

// Present reports whether the underlying field existed and was non-null.
func (v *Value) Present() bool { return v != nil && v.present }

// Path returns the dotted path used for this accessor's error messages.
func (v *Value) Path() string { return v.path }

func (v *Value) missing() error {
	return problems.New(problems.KindProtocol, "missing required field %q", v.path)
}

func (v *Value) typeErr(want string) error {
	return problems.New(problems.KindProtocol, "field %q is not a %s (got %T)", v.path, want, v.raw)
}

// String decodes the field as a JSON string.
func (v *Value) String() (string, error) {
	if !v.Present() {
		if v.required {
			return "", v.missing()
		}
		return "", nil
	}
	s, ok := v.raw.(string)
	if !ok {
		return "", v.typeErr("string")
	}
	return s, nil
}

// Int decodes the field as a JSON number, truncated to int.
func (v *Value) Int() (int, error) {
	if !v.Present() {
		if v.required {
			return 0, v.missing()
		}
		return 0, nil
	}
	f, ok := v.raw.(float64)
	if !ok {
		return 0, v.typeErr("number")
	}
	return int(f), nil
}

// Bool decodes the field as a JSON boolean.
func (v *Value) Bool() (bool, error) {
	if !v.Present() {
		if v.required {
			return false, v.missing()
		}
		return false, nil
	}
	b, ok := v.raw.(bool)
	if !ok {
		return false, v.typeErr("bool")
	}
	return b, nil
}

// URL decodes the field as an absolute URL string.
func (v *Value) URL() (*url.URL, error) {
	s, err := v.String()
	if err != nil || s == "" {
		return nil, err
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, problems.New(problems.KindProtocol, "field %q is not a valid URL: %s", v.path, err)
	}
	return u, nil
}

// Instant decodes the field as an RFC 3339 timestamp.
func (v *Value) Instant() (time.Time, error) {
	s, err := v.String()
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, problems.New(problems.KindProtocol, "field %q is not an RFC3339 timestamp: %s", v.path, err)
	}
	return t, nil
}

// Base64 decodes the field as unpadded base64url, per RFC 8555's encoding
// of binary values (CSRs, certificates, key authorizations).
func (v *Value) Base64() ([]byte, error) {
	s, err := v.String()
	if err != nil || s == "" {
		return nil, err
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, problems.New(problems.KindProtocol, "field %q is not valid base64url: %s", v.path, err)
	}
	return b, nil
}

// Object decodes the field as a nested JSON object.
func (v *Value) Object() (*JSON, error) {
	if !v.Present() {
		if v.required {
			return nil, v.missing()
		}
		return nil, nil
	}
	m, ok := v.raw.(map[string]any)
	if !ok {
		return nil, v.typeErr("object")
	}
	return &JSON{raw: m, path: v.path}, nil
}

// Array decodes the field as a JSON array, returning one Value per element
// with paths of the form "parent.key[i]".
func (v *Value) Array() ([]*Value, error) {
	if !v.Present() {
		if v.required {
			return nil, v.missing()
		}
		return nil, nil
	}
	raw, ok := v.raw.([]any)
	if !ok {
		return nil, v.typeErr("array")
	}
	out := make([]*Value, len(raw))
	for i, elem := range raw {
		out[i] = &Value{
			path:    fmt.Sprintf("%s[%d]", v.path, i),
			raw:     elem,
			present: elem != nil,
		}
	}
	return out, nil
}

// StringArray is a convenience wrapper over Array for the common case of a
// list of strings (contact URIs, Link headers collected into JSON, etc).
func (v *Value) StringArray() ([]string, error) {
	elems, err := v.Array()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		s, err := e.Required().String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// JSONBuilder is a mutable, insertion-ordered map that marshals to canonical
// UTF-8 JSON preserving insertion order (unlike encoding/json's map
// marshaling, which sorts keys alphabetically and would be fine for byte
// equality but obscures the request shape when logged).
type JSONBuilder struct {
	keys   []string
	values map[string]any
}

// NewBuilder returns an empty builder.
func NewBuilder() *JSONBuilder {
	return &JSONBuilder{values: map[string]any{}}
}

// Put inserts an arbitrary JSON-marshalable value under key, preserving
// first-insertion order; re-Put of an existing key updates the value in
// place without moving it.
func (b *JSONBuilder) Put(key string, val any) *JSONBuilder {
	if _, exists := b.values[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.values[key] = val
	return b
}

// PutResource inserts the legacy ACME draft "resource" field some older
// CA implementations still expect (RFC 8555 dropped it). Used by
// acme.NewAccount when the bound acme/provider.Provider's LegacyResource
// hook names a value for the request's endpoint (spec.md §9 Open
// Question (c)).
func (b *JSONBuilder) PutResource(name string) *JSONBuilder {
	return b.Put("resource", name)
}

// PutBase64 base64url-encodes data (unpadded) and inserts it under key.
func (b *JSONBuilder) PutBase64(key string, data []byte) *JSONBuilder {
	return b.Put(key, base64.RawURLEncoding.EncodeToString(data))
}

// PutBuilder nests a sub-builder under key.
func (b *JSONBuilder) PutBuilder(key string, sub *JSONBuilder) *JSONBuilder {
	return b.Put(key, sub)
}

// PutKey serializes a public key as a JWK sub-object with its members in
// lexicographic order, as RFC 7638 requires for a reproducible thumbprint.
// Supported key types: *ecdsa.PublicKey, *rsa.PublicKey, ed25519.PublicKey.
// Used by acme/jws to nest the old account key under "oldKey" in a
// key-change payload (spec.md §4.2).
func (b *JSONBuilder) PutKey(key string, pub any) (*JSONBuilder, error) {
	jwk, err := canonicalJWK(pub)
	if err != nil {
		return nil, err
	}
	return b.Put(key, jwk), nil
}

// JWKBytes returns the canonical (lexicographically member-ordered) JWK
// JSON bytes for pub. acme/keys hashes this directly to compute RFC 7638
// thumbprints, rather than relying on go-jose's own (behaviorally
// equivalent) canonicalization — this builder is the one spec.md §4.1 calls
// out as "required for thumbprint reproducibility".
func JWKBytes(pub any) ([]byte, error) {
	jwk, err := canonicalJWK(pub)
	if err != nil {
		return nil, err
	}
	return jwk.Bytes()
}

// canonicalJWK builds the lexicographically-ordered JWK builder for pub.
func canonicalJWK(pub any) (*JSONBuilder, error) {
	jwk := NewBuilder()
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		size := (k.Curve.Params().BitSize + 7) / 8
		x := leftPad(k.X.Bytes(), size)
		y := leftPad(k.Y.Bytes(), size)
		var crv string
		switch k.Curve.Params().Name {
		case "P-256":
			crv = "P-256"
		case "P-384":
			crv = "P-384"
		case "P-521":
			crv = "P-521"
		default:
			return nil, problems.New(problems.KindUnsupportedKey, "unsupported EC curve %q", k.Curve.Params().Name)
		}
		// Lexicographic member order: crv, kty, x, y.
		jwk.Put("crv", crv)
		jwk.Put("kty", "EC")
		jwk.Put("x", base64.RawURLEncoding.EncodeToString(x))
		jwk.Put("y", base64.RawURLEncoding.EncodeToString(y))
	case *rsa.PublicKey:
		// Lexicographic member order: e, kty, n.
		jwk.Put("e", base64.RawURLEncoding.EncodeToString(bigIntBytes(k.E)))
		jwk.Put("kty", "RSA")
		jwk.Put("n", base64.RawURLEncoding.EncodeToString(k.N.Bytes()))
	case ed25519.PublicKey:
		// Lexicographic member order: crv, kty, x.
		jwk.Put("crv", "Ed25519")
		jwk.Put("kty", "OKP")
		jwk.Put("x", base64.RawURLEncoding.EncodeToString([]byte(k)))
	default:
		return nil, problems.New(problems.KindUnsupportedKey, "unsupported public key type %T", pub)
	}
	return jwk, nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

func bigIntBytes(i int) []byte {
	// RSA public exponents are small; encode as a minimal big-endian byte
	// string the same way math/big.Int.Bytes() would.
	if i == 0 {
		return []byte{0}
	}
	var buf []byte
	for i > 0 {
		buf = append([]byte{byte(i & 0xff)}, buf...)
		i >>= 8
	}
	return buf
}

// Bytes renders the builder as canonical JSON, preserving insertion order.
func (b *JSONBuilder) Bytes() ([]byte, error) {
	var sb strings.Builder
	if err := b.encode(&sb); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func (b *JSONBuilder) encode(sb *strings.Builder) error {
	sb.WriteByte('{')
	for i, key := range b.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return err
		}
		sb.Write(keyJSON)
		sb.WriteByte(':')
		if err := encodeValue(sb, b.values[key]); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

func encodeValue(sb *strings.Builder, val any) error {
	switch v := val.(type) {
	case *JSONBuilder:
		return v.encode(sb)
	case []*JSONBuilder:
		sb.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := e.encode(sb); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
		return nil
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return err
		}
		sb.Write(encoded)
		return nil
	}
}

// String renders the builder's canonical JSON, or "{}" on error (useful in
// %s/log formatting contexts where an error is out of place).
func (b *JSONBuilder) String() string {
	data, err := b.Bytes()
	if err != nil {
		return "{}"
	}
	return string(data)
}
