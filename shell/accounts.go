package shell

import (
	"context"
	"flag"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/cpu/acmecore/acme"
)

func (s *Shell) registerAccountCommands() {
	s.AddCmd(&ishell.Cmd{
		Name:     "newaccount",
		Aliases:  []string{"newAccount"},
		Help:     "Register a new ACME account and make it active",
		LongHelp: "newaccount -name <name> -key <key name> [-contact email1,email2] [-tos]",
		Func:     s.newAccountHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "loadaccount",
		Aliases:  []string{"loadAccount"},
		Help:     "Bind an already-registered account URL to a key and make it active",
		LongHelp: "loadaccount -name <name> -key <key name> -url <account URL>",
		Func:     s.loadAccountHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name: "accounts",
		Help: "List known account names, marking the active one",
		Func: s.accountsHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "switchaccount",
		Aliases:  []string{"switchAccount"},
		Help:     "Switch the active account",
		LongHelp: "switchaccount <name>",
		Func:     s.switchAccountHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "deactivateaccount",
		Aliases:  []string{"deactivateAccount"},
		Help:     "Deactivate the active account",
		Func:     s.deactivateAccountHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "rollover",
		Aliases:  []string{"keyRollover", "changekey"},
		Help:     "Change the active account's key",
		LongHelp: "rollover -key <new key name>",
		Func:     s.rolloverHandler,
	})
}

func (s *Shell) newAccountHandler(c *ishell.Context) {
	var name, keyName, contact string
	var tos bool
	fs := flag.NewFlagSet("newaccount", flag.ContinueOnError)
	fs.StringVar(&name, "name", "", "name to store the account under")
	fs.StringVar(&keyName, "key", "", "key name to register the account with")
	fs.StringVar(&contact, "contact", "", "comma-separated contact email addresses")
	fs.BoolVar(&tos, "tos", true, "agree to the CA's terms of service")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	if name == "" {
		c.Println("newaccount: -name is required")
		return
	}
	signer := s.requireKey(c, keyName)
	if signer == nil {
		return
	}

	var contacts []string
	if contact != "" {
		contacts = strings.Split(contact, ",")
	}

	login, account, existed, err := acme.NewAccount(context.Background(), s.session, signer, acme.AccountOptions{
		Contact:              contacts,
		TermsOfServiceAgreed: tos,
	})
	if err != nil {
		c.Printf("newaccount: %s\n", err)
		return
	}

	s.accounts[name] = login
	s.active = name
	verb := "registered"
	if existed {
		verb = "bound to existing"
	}
	c.Printf("newaccount: %s account %q at %s (status %s)\n", verb, name, account.URL, account.Status)
}

func (s *Shell) loadAccountHandler(c *ishell.Context) {
	var name, keyName, url string
	fs := flag.NewFlagSet("loadaccount", flag.ContinueOnError)
	fs.StringVar(&name, "name", "", "name to store the account under")
	fs.StringVar(&keyName, "key", "", "key name the account is bound to")
	fs.StringVar(&url, "url", "", "the account's Location URL")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	signer := s.requireKey(c, keyName)
	if name == "" || signer == nil || url == "" {
		c.Println("loadaccount: -name, -key and -url are required")
		return
	}
	s.accounts[name] = acme.BindAccount(s.session, url, signer)
	s.active = name
	c.Printf("loadaccount: bound account %q to %s\n", name, url)
}

func (s *Shell) accountsHandler(c *ishell.Context) {
	for name := range s.accounts {
		marker := "  "
		if name == s.active {
			marker = "* "
		}
		c.Printf("%s%s\n", marker, name)
	}
}

func (s *Shell) switchAccountHandler(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println("switchaccount: exactly one account name is required")
		return
	}
	name := c.Args[0]
	if _, ok := s.accounts[name]; !ok {
		c.Printf("switchaccount: no account named %q\n", name)
		return
	}
	s.active = name
	c.Printf("switchaccount: active account is now %q\n", name)
}

func (s *Shell) deactivateAccountHandler(c *ishell.Context) {
	login := s.requireLogin(c)
	if login == nil {
		return
	}
	account := login.Account()
	update := account.Modify().Deactivate()
	if err := update.Commit(context.Background()); err != nil {
		c.Printf("deactivateaccount: %s\n", err)
		return
	}
	c.Printf("deactivateaccount: account %q is now %s\n", s.active, account.Status)
}

func (s *Shell) rolloverHandler(c *ishell.Context) {
	var keyName string
	fs := flag.NewFlagSet("rollover", flag.ContinueOnError)
	fs.StringVar(&keyName, "key", "", "name of the new key")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	login := s.requireLogin(c)
	newSigner := s.requireKey(c, keyName)
	if login == nil || newSigner == nil {
		return
	}
	account := login.Account()
	if err := account.ChangeKey(context.Background(), newSigner); err != nil {
		c.Printf("rollover: %s\n", err)
		return
	}
	c.Printf("rollover: account %q now signs with key %q\n", s.active, keyName)
}
