package shell

import (
	"context"
	"crypto"
	"encoding/base64"
	"flag"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/cpu/acmecore/acme/keys"
)

// registerUtilCommands wires the miscellaneous commands that don't belong
// to a single resource: raw directory/URL GETs, echoing scripted output,
// and the base64url/key-authorization helpers the teacher's solve/sign
// packages inlined ad hoc.
func (s *Shell) registerUtilCommands() {
	s.AddCmd(&ishell.Cmd{
		Name:     "get",
		Aliases:  []string{"getURL"},
		Help:     "Send an unsigned HTTP GET to an ACME endpoint name or a raw URL",
		LongHelp: "get directory | <endpoint name> | <url>",
		Func:     s.getHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name: "echo",
		Help: "Print a message, useful in scripted input",
		Func: echoHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "b64url",
		Help:     "Base64url-encode (or decode with -d) a string",
		LongHelp: "b64url [-d] <value>",
		Func:     b64URLHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "keyauth",
		Help:     "Print the key authorization for a token under a key",
		LongHelp: "keyauth <key name> <token>",
		Func:     s.keyAuthHandler,
	})
}

func (s *Shell) getHandler(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("get: an endpoint name or URL is required")
		return
	}
	arg := c.Args[0]
	ctx := context.Background()

	target := arg
	if arg == "directory" {
		target = s.session.DirectoryURL()
	} else if !okURL(arg) {
		endpointURL, err := s.session.EndpointURL(ctx, arg)
		if err != nil {
			c.Printf("get: %q is not a known endpoint or a valid URL\n", arg)
			return
		}
		target = endpointURL
	}

	resp, err := s.session.RawGet(ctx, target)
	if err != nil {
		c.Printf("get: %s\n", err)
		return
	}
	c.Printf("%s\n", resp.Body)
}

func echoHandler(c *ishell.Context) {
	c.Printf("# %s\n", strings.Join(c.Args, " "))
}

func b64URLHandler(c *ishell.Context) {
	var decode bool
	fs := flag.NewFlagSet("b64url", flag.ContinueOnError)
	fs.BoolVar(&decode, "d", false, "decode instead of encode")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	leftovers := fs.Args()
	if len(leftovers) != 1 {
		c.Println("b64url: exactly one value is required")
		return
	}
	if decode {
		out, err := base64.RawURLEncoding.DecodeString(leftovers[0])
		if err != nil {
			c.Printf("b64url: %s\n", err)
			return
		}
		c.Printf("%s\n", out)
		return
	}
	c.Println(base64.RawURLEncoding.EncodeToString([]byte(leftovers[0])))
}

func (s *Shell) keyAuthHandler(c *ishell.Context) {
	if len(c.Args) != 2 {
		c.Println("keyauth: a key name and token are required")
		return
	}
	signer := s.requireKey(c, c.Args[0])
	if signer == nil {
		return
	}
	keyAuth, err := keyAuthFor(signer, c.Args[1])
	if err != nil {
		c.Printf("keyauth: %s\n", err)
		return
	}
	c.Println(keyAuth)
}

func keyAuthFor(signer crypto.Signer, token string) (string, error) {
	return keys.KeyAuth(signer, token)
}
