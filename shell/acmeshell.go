// Package shell provides an interactive command-line REPL for driving the
// acme engine by hand: generating keys, registering accounts, placing
// orders, solving challenges against a local challtestsrv responder, and
// downloading/revoking certificates.
//
// Grounded on the teacher's shell package (ACMEShellOptions/ACMEShell,
// ishell.Shell plus a stashed *client.Client and *challtestsrv.ChallSrv),
// restructured around the new engine's Session/Login split: instead of one
// client.Client carrying a single ActiveAccount, the Shell here keeps a
// named map of Logins (one per registered account) and an "active" name,
// since spec.md's Session may back multiple concurrent Logins.
package shell

import (
	"crypto"
	"fmt"
	"log"
	"os"

	"github.com/abiosoft/ishell"
	"github.com/abiosoft/readline"
	challtestsrv "github.com/letsencrypt/challtestsrv"

	"github.com/cpu/acmecore/acme"
)

// BasePrompt is the ishell prompt used throughout the shell.
const BasePrompt = "[ ACME ] > "

// Options configures a new Shell.
type Options struct {
	DirectoryURL string
	Session      acme.SessionConfig

	HTTPPort int
	TLSPort  int
	DNSPort  int
}

// Shell is an interactive ishell.Shell bound to one acme.Session, a set of
// named accounts (Logins) and keys, and an embedded challtestsrv responder
// used by the "solve" command.
type Shell struct {
	*ishell.Shell

	session  *acme.Session
	challSrv *challtestsrv.ChallSrv

	keys     map[string]crypto.Signer
	accounts map[string]*acme.Login
	orders   map[string][]*acme.Order // keyed by account name
	active   string
}

// New builds a Shell. No network I/O happens until a command triggers it;
// the challenge responder is started by Run.
func New(opts Options) (*Shell, error) {
	session, err := acme.NewSession(opts.DirectoryURL, opts.Session)
	if err != nil {
		return nil, fmt.Errorf("shell: building session: %w", err)
	}

	challSrv, err := challtestsrv.New(challtestsrv.Config{
		HTTPOneAddrs:    []string{fmt.Sprintf(":%d", opts.HTTPPort)},
		TLSALPNOneAddrs: []string{fmt.Sprintf(":%d", opts.TLSPort)},
		DNSOneAddrs:     []string{fmt.Sprintf(":%d", opts.DNSPort)},
		Log:             log.New(os.Stdout, "challRespSrv: ", log.Ldate|log.Ltime),
	})
	if err != nil {
		return nil, fmt.Errorf("shell: building challenge responder: %w", err)
	}

	ish := ishell.NewWithConfig(&readline.Config{Prompt: BasePrompt})

	s := &Shell{
		Shell:    ish,
		session:  session,
		challSrv: challSrv,
		keys:     map[string]crypto.Signer{},
		accounts: map[string]*acme.Login{},
		orders:   map[string][]*acme.Order{},
	}
	s.registerCommands()
	return s, nil
}

// Run starts the challenge responder and drops into the interactive REPL,
// blocking until the user exits.
func (s *Shell) Run() {
	go s.challSrv.Run()
	s.Println("Welcome to acmecore's shell")
	s.Shell.Run()
	s.Println("Goodbye!")
	s.challSrv.Shutdown()
}

// activeLogin returns the currently-selected account's Login, or nil if
// none is active yet.
func (s *Shell) activeLogin() *acme.Login {
	if s.active == "" {
		return nil
	}
	return s.accounts[s.active]
}

func (s *Shell) requireLogin(c *ishell.Context) *acme.Login {
	login := s.activeLogin()
	if login == nil {
		c.Println("no active account: run newaccount or switchaccount first")
		return nil
	}
	return login
}

func (s *Shell) requireKey(c *ishell.Context, name string) crypto.Signer {
	key, ok := s.keys[name]
	if !ok {
		c.Printf("no key named %q: run newkey or loadkey first\n", name)
		return nil
	}
	return key
}
