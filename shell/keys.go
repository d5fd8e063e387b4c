package shell

import (
	"flag"

	"github.com/abiosoft/ishell"

	"github.com/cpu/acmecore/internal/keystore"
)

func (s *Shell) registerKeyCommands() {
	s.AddCmd(&ishell.Cmd{
		Name:     "newkey",
		Aliases:  []string{"newKey"},
		Help:     "Generate a new key pair and store it under a name",
		LongHelp: "newkey -name <name> [-type ecdsa-p256|ecdsa-p384|ecdsa-p521|rsa-2048|rsa-4096|ed25519]",
		Func:     s.newKeyHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "loadkey",
		Aliases:  []string{"loadKey"},
		Help:     "Load a PEM-encoded key pair from disk under a name",
		LongHelp: "loadkey -name <name> -path <path>",
		Func:     s.loadKeyHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name:     "savekey",
		Aliases:  []string{"saveKey"},
		Help:     "Save a named key pair to disk as PEM",
		LongHelp: "savekey -name <name> -path <path>",
		Func:     s.saveKeyHandler,
	})
	s.AddCmd(&ishell.Cmd{
		Name: "keys",
		Help: "List known key names",
		Func: s.keysHandler,
	})
}

func (s *Shell) newKeyHandler(c *ishell.Context) {
	var name, keyType string
	fs := flag.NewFlagSet("newkey", flag.ContinueOnError)
	fs.StringVar(&name, "name", "", "name to store the key under")
	fs.StringVar(&keyType, "type", string(keystore.ECDSAP256), "key type to generate")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	if name == "" {
		c.Println("newkey: -name is required")
		return
	}
	signer, err := keystore.NewSigner(keystore.KeyType(keyType))
	if err != nil {
		c.Printf("newkey: %s\n", err)
		return
	}
	s.keys[name] = signer
	c.Printf("newkey: generated %s key %q\n", keyType, name)
}

func (s *Shell) loadKeyHandler(c *ishell.Context) {
	var name, path string
	fs := flag.NewFlagSet("loadkey", flag.ContinueOnError)
	fs.StringVar(&name, "name", "", "name to store the key under")
	fs.StringVar(&path, "path", "", "PEM file to load")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	if name == "" || path == "" {
		c.Println("loadkey: -name and -path are required")
		return
	}
	signer, err := keystore.LoadPEM(path)
	if err != nil {
		c.Printf("loadkey: %s\n", err)
		return
	}
	s.keys[name] = signer
	c.Printf("loadkey: loaded key %q from %s\n", name, path)
}

func (s *Shell) saveKeyHandler(c *ishell.Context) {
	var name, path string
	fs := flag.NewFlagSet("savekey", flag.ContinueOnError)
	fs.StringVar(&name, "name", "", "key name to save")
	fs.StringVar(&path, "path", "", "PEM file to write")
	if err := fs.Parse(c.Args); err != nil {
		return
	}
	key := s.requireKey(c, name)
	if key == nil || path == "" {
		c.Println("savekey: -name and -path are required")
		return
	}
	if err := keystore.SavePEM(path, key); err != nil {
		c.Printf("savekey: %s\n", err)
		return
	}
	c.Printf("savekey: wrote %q to %s\n", name, path)
}

func (s *Shell) keysHandler(c *ishell.Context) {
	for name := range s.keys {
		c.Println(name)
	}
}
