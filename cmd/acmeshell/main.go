// The acmeshell command line tool provides a developer-oriented command-line
// shell interface for driving an ACME server by hand.
package main

import (
	"crypto/x509"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cpu/acmecore/acme"
	"github.com/cpu/acmecore/acme/transport"
	acmecmd "github.com/cpu/acmecore/cmd"
	"github.com/cpu/acmecore/shell"
)

const (
	directoryDefault = "https://acme-staging-v02.api.letsencrypt.org/directory"
	httpPortDefault  = 5002
	tlsPortDefault   = 5001
	dnsPortDefault   = 5252

	// pebbleCADefault is github.com/letsencrypt/pebble/test/certs/pebble.minica.pem,
	// embedded so -pebble works without a local checkout of Pebble.
	pebbleCADefault = `
-----BEGIN CERTIFICATE-----
MIIDCTCCAfGgAwIBAgIIJOLbes8sTr4wDQYJKoZIhvcNAQELBQAwIDEeMBwGA1UE
AxMVbWluaWNhIHJvb3QgY2EgMjRlMmRiMCAXDTE3MTIwNjE5NDIxMFoYDzIxMTcx
MjA2MTk0MjEwWjAgMR4wHAYDVQQDExVtaW5pY2Egcm9vdCBjYSAyNGUyZGIwggEi
MA0GCSqGSIb3DQEBAQUAA4IBDwAwggEKAoIBAQC5WgZNoVJandj43kkLyU50vzCZ
alozvdRo3OFiKoDtmqKPNWRNO2hC9AUNxTDJco51Yc42u/WV3fPbbhSznTiOOVtn
Ajm6iq4I5nZYltGGZetGDOQWr78y2gWY+SG078MuOO2hyDIiKtVc3xiXYA+8Hluu
9F8KbqSS1h55yxZ9b87eKR+B0zu2ahzBCIHKmKWgc6N13l7aDxxY3D6uq8gtJRU0
toumyLbdzGcupVvjbjDP11nl07RESDWBLG1/g3ktJvqIa4BWgU2HMh4rND6y8OD3
Hy3H8MY6CElL+MOCbFJjWqhtOxeFyZZV9q3kYnk9CAuQJKMEGuN4GU6tzhW1AgMB
AAGjRTBDMA4GA1UdDwEB/wQEAwIChDAdBgNVHSUEFjAUBggrBgEFBQcDAQYIKwYB
BQUHAwIwEgYDVR0TAQH/BAgwBgEB/wIBADANBgkqhkiG9w0BAQsFAAOCAQEAF85v
d40HK1ouDAtWeO1PbnWfGEmC5Xa478s9ddOd9Clvp2McYzNlAFfM7kdcj6xeiNhF
WPIfaGAi/QdURSL/6C1KsVDqlFBlTs9zYfh2g0UXGvJtj1maeih7zxFLvet+fqll
xseM4P9EVJaQxwuK/F78YBt0tCNfivC6JNZMgxKF59h0FBpH70ytUSHXdz7FKwix
Mfn3qEb9BXSk0Q3prNV5sOV3vgjEtB4THfDxSz9z3+DepVnW3vbbqwEbkXdk3j82
2muVldgOUgTwK8eT+XdofVdntzU/kzygSAtAQwLJfn51fS1GvEcYGBc1bDryIqmF
p9BI7gVKtWSZYegicA==
-----END CERTIFICATE-----
`
)

func main() {
	directory := flag.String("directory", directoryDefault, "Directory URL (or acme://provider shorthand) for the ACME server")
	caCertPath := flag.String("ca", "", "PEM CA certificate(s) for verifying the ACME server's HTTPS connection")
	httpPort := flag.Int("httpPort", httpPortDefault, "http-01 challenge responder port")
	tlsPort := flag.Int("tlsPort", tlsPortDefault, "tls-alpn-01 challenge responder port")
	dnsPort := flag.Int("dnsPort", dnsPortDefault, "dns-01 challenge responder port")
	pebble := flag.Bool("pebble", false, "Use Pebble's default local directory URL and CA certificate")
	commandFile := flag.String("in", "", "Read commands from the specified file instead of stdin")
	locale := flag.String("locale", "", "Accept-Language sent on every request")

	flag.Parse()

	var caCert string
	if *pebble {
		tmpFile, err := os.CreateTemp("", "pebble.ca.*.pem")
		acmecmd.FailOnError(err, "opening pebble CA temp file")
		defer func() { _ = os.Remove(tmpFile.Name()) }()

		_, err = tmpFile.WriteString(pebbleCADefault)
		acmecmd.FailOnError(err, "writing pebble CA temp file")
		acmecmd.FailOnError(tmpFile.Close(), "closing pebble CA temp file")

		pebbleDirectory := "https://localhost:14000/dir"
		directory = &pebbleDirectory
		caCert = tmpFile.Name()
	} else {
		caCert = *caCertPath
	}

	var roots *x509.CertPool
	if caCert != "" {
		pemBytes, err := os.ReadFile(caCert)
		acmecmd.FailOnError(err, fmt.Sprintf("reading -ca %q", caCert))
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pemBytes) {
			acmecmd.FailOnError(fmt.Errorf("no certificates found"), fmt.Sprintf("parsing -ca %q", caCert))
		}
	}

	if *commandFile != "" {
		f, err := os.Open(*commandFile)
		acmecmd.FailOnError(err, fmt.Sprintf("opening -in file %q", *commandFile))
		defer func() { _ = f.Close() }()
		acmecmd.FailOnError(redirectStdin(int(f.Fd())), "redirecting stdin")
	}

	opts := shell.Options{
		DirectoryURL: *directory,
		Session: acme.SessionConfig{
			Network: transport.NetworkSettings{
				RootCAs: roots,
				Locale:  *locale,
			},
			Logger: log.New(os.Stdout, "acmecore: ", log.Ldate|log.Ltime),
		},
		HTTPPort: *httpPort,
		TLSPort:  *tlsPort,
		DNSPort:  *dnsPort,
	}

	s, err := shell.New(opts)
	acmecmd.FailOnError(err, "building shell")

	go acmecmd.CatchSignals(func() {})
	s.Run()
}
