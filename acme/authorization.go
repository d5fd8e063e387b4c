package acme

import (
	"context"
	"strings"
	"time"

	"github.com/cpu/acmecore/acme/identifier"
	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/problems"
	"github.com/cpu/acmecore/acme/transport"
)

// Authorization is a typed façade over an authorization resource, per
// spec.md §4.10 (C9c). It reaches "valid" once one of its Challenges does;
// "invalid" once every Challenge has failed or the server declares the
// authorization failed outright.
type Authorization struct {
	URL        string
	Status     string
	Identifier identifier.Identifier
	Expires    time.Time
	HasExpires bool
	Wildcard   bool
	Challenges []*Challenge

	login *Login
}

func (authz *Authorization) populateFrom(resp *transport.Response) error {
	if resp.JSON == nil {
		return problems.New(problems.KindProtocol, "authorization response at %q was not JSON", authz.URL)
	}
	doc := resp.JSON

	status, err := doc.Value("status").Required().String()
	if err != nil {
		return err
	}
	identObj, err := doc.Value("identifier").Required().Object()
	if err != nil {
		return err
	}
	typ, err := identObj.Value("type").Required().String()
	if err != nil {
		return err
	}
	val, err := identObj.Value("value").Required().String()
	if err != nil {
		return err
	}
	wildcard, err := doc.Value("wildcard").Bool()
	if err != nil {
		return err
	}
	expires, err := doc.Value("expires").Instant()
	if err != nil {
		return err
	}
	challVals, err := doc.Value("challenges").Required().Array()
	if err != nil {
		return err
	}

	challenges := make([]*Challenge, 0, len(challVals))
	for _, cv := range challVals {
		obj, err := cv.Required().Object()
		if err != nil {
			return err
		}
		c, err := parseChallenge(obj, authz.login)
		if err != nil {
			return err
		}
		challenges = append(challenges, c)
	}

	authz.Status = status
	authz.Identifier = identifier.Identifier{Type: identifier.Type(typ), Value: val}
	authz.Wildcard = wildcard
	authz.Challenges = challenges
	if !expires.IsZero() {
		authz.Expires = expires
		authz.HasExpires = true
	}
	return nil
}

// Update performs a signed POST-as-GET refresh.
func (authz *Authorization) Update(ctx context.Context) error {
	resp, err := authz.login.signedPostAsGet(ctx, authz.URL, transport.AcceptJSON)
	if err != nil {
		return problems.Wrap(problems.KindLazyLoading, authz.URL, err)
	}
	return authz.populateFrom(resp)
}

// FindChallenge returns the first Challenge whose Type equals typeOrClass
// (compared case-insensitively), or nil if none matches, per spec.md
// §4.10's findChallenge(typeOrClass).
func (authz *Authorization) FindChallenge(typeOrClass string) *Challenge {
	for _, c := range authz.Challenges {
		if strings.EqualFold(c.Type, typeOrClass) {
			return c
		}
	}
	return nil
}

// Deactivate sends a signed POST {"status": "deactivated"}.
func (authz *Authorization) Deactivate(ctx context.Context) error {
	payload, err := jsonval.NewBuilder().Put("status", AuthorizationDeactivated).Bytes()
	if err != nil {
		return err
	}
	resp, err := authz.login.signedPost(ctx, authz.URL, payload, transport.AcceptJSON)
	if err != nil {
		return err
	}
	return authz.populateFrom(resp)
}
