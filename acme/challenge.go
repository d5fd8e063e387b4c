package acme

import (
	"context"
	"time"

	"github.com/cpu/acmecore/acme/jsonval"
	"github.com/cpu/acmecore/acme/keys"
	"github.com/cpu/acmecore/acme/poller"
	"github.com/cpu/acmecore/acme/problems"
	"github.com/cpu/acmecore/acme/transport"
)

// Challenge is a typed façade over one challenge inside an Authorization,
// per spec.md §4.11 (C9d). Type-specific response material (the value a
// validation server answers with) is computed by acme/challenges from the
// Token here plus the bound account key; Challenge itself only tracks
// protocol state.
type Challenge struct {
	URL         string
	Type        string
	Token       string
	Status      string
	Validated   time.Time
	HasValidated bool
	Error       *problems.Problem
	// Extra holds provider-specific fields a bound provider's CreateChallenge
	// hook recognized on this challenge (spec.md §4.4), beyond the generic
	// url/type/token/status/error fields every challenge type carries.
	Extra map[string]string

	login *Login
}

func parseChallenge(obj *jsonval.JSON, login *Login) (*Challenge, error) {
	url, err := obj.Value("url").Required().String()
	if err != nil {
		return nil, err
	}
	typ, err := obj.Value("type").Required().String()
	if err != nil {
		return nil, err
	}
	status, err := obj.Value("status").Required().String()
	if err != nil {
		return nil, err
	}
	token, err := obj.Value("token").String()
	if err != nil {
		return nil, err
	}
	validated, err := obj.Value("validated").Instant()
	if err != nil {
		return nil, err
	}

	var chalErr *problems.Problem
	if errObj, err := obj.Value("error").Object(); err == nil && errObj != nil {
		raw, _ := errObj.Value("type").String()
		detail, _ := errObj.Value("detail").String()
		status, _ := errObj.Value("status").Int()
		chalErr = &problems.Problem{Type: raw, Detail: detail, Status: status}
	}

	c := &Challenge{
		URL:    url,
		Type:   typ,
		Status: status,
		Token:  token,
		Error:  chalErr,
		login:  login,
	}
	if !validated.IsZero() {
		c.Validated = validated
		c.HasValidated = true
	}
	if login != nil {
		if extra, ok := login.session.createChallenge(obj); ok {
			c.Extra = extra
		}
	}
	return c, nil
}

// KeyAuthorization returns this challenge's key authorization value, per
// spec.md §4.2: token + "." + base64url(sha256(canonical JWK(account key))).
func (c *Challenge) KeyAuthorization() (string, error) {
	return keys.KeyAuth(c.login.Signer(), c.Token)
}

// Trigger POSTs an empty JSON object to the challenge URL, asking the
// server to attempt validation. Idempotent: re-triggering a challenge
// already at "valid" is a no-op per spec.md §4.11.
func (c *Challenge) Trigger(ctx context.Context) error {
	if c.Status == ChallengeValid {
		return nil
	}
	payload, err := jsonval.NewBuilder().Bytes()
	if err != nil {
		return err
	}
	resp, err := c.login.signedPost(ctx, c.URL, payload, transport.AcceptJSON)
	if err != nil {
		return err
	}
	return c.populateFrom(resp)
}

func (c *Challenge) populateFrom(resp *transport.Response) error {
	if resp.JSON == nil {
		return problems.New(problems.KindProtocol, "challenge response at %q was not JSON", c.URL)
	}
	parsed, err := parseChallenge(resp.JSON, c.login)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}

func challengeDone(status string) bool {
	return status == ChallengeValid || status == ChallengeInvalid
}

// WaitForCompletion polls until the challenge leaves {pending, processing}.
func (c *Challenge) WaitForCompletion(ctx context.Context, timeout time.Duration) error {
	_, err := poller.Poll(ctx, timeout, func(ctx context.Context) (string, time.Time, bool, error) {
		resp, err := c.login.signedPostAsGet(ctx, c.URL, transport.AcceptJSON)
		if err != nil {
			return c.Status, time.Time{}, false, err
		}
		if err := c.populateFrom(resp); err != nil {
			return c.Status, time.Time{}, false, err
		}
		return c.Status, resp.RetryAfter, resp.HasRetryAfter, nil
	}, challengeDone)
	return err
}
