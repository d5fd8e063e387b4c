package shell

import "net/url"

// registerCommands wires every command group into the underlying
// ishell.Shell. Split by resource (keys, accounts, orders, challenges,
// certificates, misc) rather than the teacher's one-ishell.Cmd-per-package
// layout: each handler here is a *Shell method closing directly over shared
// state instead of threading a stashed client through an ishell.Context
// lookup, so the per-command boilerplate the teacher's AcmeCmd/commandRegistry
// machinery existed for is no longer needed.
func (s *Shell) registerCommands() {
	s.registerKeyCommands()
	s.registerAccountCommands()
	s.registerOrderCommands()
	s.registerChallengeCommands()
	s.registerCertificateCommands()
	s.registerCSRCommand()
	s.registerUtilCommands()
}

func okURL(urlStr string) bool {
	result, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return result.Scheme == "http" || result.Scheme == "https"
}
