package shell

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/cpu/acmecore/acme"
)

// registerChallengeCommands wires authorization and challenge commands,
// consolidating the teacher's separate getAuthz/getChall/solve/poll
// ishell.Cmd packages: all four operate on the same Order -> Authorization
// -> Challenge chain, so a shared orderAuthz helper replaces the teacher's
// pickOrder/pickAuthz/pickChall interactive pickers with positional flags.
func (s *Shell) registerChallengeCommands() {
	s.AddCmd(&ishell.Cmd{
		Name:     "getauthz",
		Aliases:  []string{"getAuthz", "authz"},
		Help:     "Refresh and print an order's authorizations",
		LongHelp: "getauthz <order index> [identifier]",
		Func:     s.getAuthzHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "deactivateauthz",
		Aliases:  []string{"deactivateAuthz"},
		Help:     "Deactivate an authorization",
		LongHelp: "deactivateauthz <order index> <identifier>",
		Func:     s.deactivateAuthzHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "solve",
		Aliases:  []string{"solveChallenge"},
		Help:     "Post a challenge response to the local challenge responder and trigger validation",
		LongHelp: "solve <order index> <identifier> -type http-01|dns-01|tls-alpn-01",
		Func:     s.solveHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "poll",
		Help:     "Poll an order, authorization, or challenge until it reaches a terminal state",
		LongHelp: "poll order|authz|challenge <order index> [identifier] [-timeout 30s]",
		Func:     s.pollHandler,
	})
}

func (s *Shell) orderAuthz(c *ishell.Context, orderIdx, ident string) *acme.Authorization {
	ref := s.orderByIndex(c, orderIdx)
	if ref == nil {
		return nil
	}
	order := s.orders[s.active][ref.index]
	authzs, err := order.Authorizations(context.Background())
	if err != nil {
		c.Printf("error fetching authorizations: %s\n", err)
		return nil
	}
	if ident == "" {
		if len(authzs) != 1 {
			c.Println("an identifier is required when the order has more than one authorization")
			return nil
		}
		return authzs[0]
	}
	for _, authz := range authzs {
		if authz.Identifier.Value == ident {
			return authz
		}
	}
	c.Printf("order has no authorization for identifier %q\n", ident)
	return nil
}

func (s *Shell) getAuthzHandler(c *ishell.Context) {
	if s.requireLogin(c) == nil {
		return
	}
	if len(c.Args) < 1 {
		c.Println("getauthz: an order index is required")
		return
	}
	var ident string
	if len(c.Args) > 1 {
		ident = c.Args[1]
	}
	authz := s.orderAuthz(c, c.Args[0], ident)
	if authz == nil {
		return
	}
	c.Printf("authorization %s: identifier=%s status=%s wildcard=%v\n",
		authz.URL, authz.Identifier.Value, authz.Status, authz.Wildcard)
	for _, chall := range authz.Challenges {
		c.Printf("  %-12s status=%-8s token=%s url=%s\n", chall.Type, chall.Status, chall.Token, chall.URL)
	}
}

func (s *Shell) deactivateAuthzHandler(c *ishell.Context) {
	if s.requireLogin(c) == nil {
		return
	}
	if len(c.Args) != 2 {
		c.Println("deactivateauthz: an order index and identifier are required")
		return
	}
	authz := s.orderAuthz(c, c.Args[0], c.Args[1])
	if authz == nil {
		return
	}
	if err := authz.Deactivate(context.Background()); err != nil {
		c.Printf("deactivateauthz: %s\n", err)
		return
	}
	c.Printf("deactivateauthz: authorization %s is now %s\n", authz.URL, authz.Status)
}

func (s *Shell) solveHandler(c *ishell.Context) {
	var challType string
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	fs.StringVar(&challType, "type", "", "challenge type to solve (defaults to the authorization's only challenge)")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	leftovers := fs.Args()
	if len(leftovers) < 1 {
		c.Println("solve: an order index is required")
		return
	}
	var ident string
	if len(leftovers) > 1 {
		ident = leftovers[1]
	}
	login := s.requireLogin(c)
	if login == nil {
		return
	}
	authz := s.orderAuthz(c, leftovers[0], ident)
	if authz == nil {
		return
	}

	var chall *acme.Challenge
	if challType != "" {
		chall = authz.FindChallenge(challType)
		if chall == nil {
			c.Printf("solve: authorization has no %q challenge\n", challType)
			return
		}
	} else if len(authz.Challenges) == 1 {
		chall = authz.Challenges[0]
	} else {
		c.Println("solve: -type is required when the authorization offers more than one challenge")
		return
	}

	keyAuth, err := chall.KeyAuthorization()
	if err != nil {
		c.Printf("solve: %s\n", err)
		return
	}

	switch strings.ToLower(chall.Type) {
	case "http-01":
		s.challSrv.AddHTTPOneChallenge(chall.Token, keyAuth)
	case "dns-01":
		s.challSrv.AddDNSOneChallenge(authz.Identifier.Value, keyAuth)
	case "tls-alpn-01":
		s.challSrv.AddTLSALPNChallenge(authz.Identifier.Value, keyAuth)
	default:
		c.Printf("solve: no local responder for challenge type %q\n", chall.Type)
		return
	}

	if err := chall.Trigger(context.Background()); err != nil {
		c.Printf("solve: %s\n", err)
		return
	}
	c.Printf("solve: %q challenge for %q triggered, now %s\n", chall.Type, authz.Identifier.Value, chall.Status)
}

func (s *Shell) pollHandler(c *ishell.Context) {
	var timeoutStr string
	fs := flag.NewFlagSet("poll", flag.ContinueOnError)
	fs.StringVar(&timeoutStr, "timeout", "30s", "maximum time to poll before giving up")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		c.Printf("poll: invalid -timeout: %s\n", err)
		return
	}
	leftovers := fs.Args()
	if len(leftovers) < 2 {
		c.Println("poll: a target (order|authz|challenge) and an order index are required")
		return
	}
	target := leftovers[0]
	if s.requireLogin(c) == nil {
		return
	}
	ref := s.orderByIndex(c, leftovers[1])
	if ref == nil {
		return
	}
	order := s.orders[s.active][ref.index]
	ctx := context.Background()

	switch target {
	case "order":
		if err := order.WaitForCompletion(ctx, timeout); err != nil {
			c.Printf("poll: %s\n", err)
			return
		}
		c.Printf("poll: order %s is now %s\n", order.URL, order.Status)
	case "authz", "challenge":
		if len(leftovers) < 3 {
			c.Println("poll: an identifier is required to poll an authorization or challenge")
			return
		}
		authz := s.orderAuthz(c, leftovers[1], leftovers[2])
		if authz == nil {
			return
		}
		if target == "authz" {
			if err := authzWait(ctx, authz, timeout); err != nil {
				c.Printf("poll: %s\n", err)
				return
			}
			c.Printf("poll: authorization %s is now %s\n", authz.URL, authz.Status)
			return
		}
		if len(authz.Challenges) == 0 {
			c.Println("poll: authorization has no challenges")
			return
		}
		chall := authz.Challenges[0]
		if err := chall.WaitForCompletion(ctx, timeout); err != nil {
			c.Printf("poll: %s\n", err)
			return
		}
		c.Printf("poll: challenge %s is now %s\n", chall.URL, chall.Status)
	default:
		c.Printf("poll: unknown target %q (want order, authz, or challenge)\n", target)
	}
}

func authzWait(ctx context.Context, authz *acme.Authorization, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := authz.Update(ctx); err != nil {
			return err
		}
		if authz.Status == acme.AuthorizationValid || authz.Status == acme.AuthorizationInvalid {
			return nil
		}
		if time.Now().After(deadline) {
			return errTimeout(authz.URL)
		}
		time.Sleep(time.Second)
	}
}

type timeoutErr string

func (e timeoutErr) Error() string { return "timed out waiting on " + string(e) }

func errTimeout(url string) error { return timeoutErr(url) }
