// Package main generates a Certificate Authority (CA), a server certificate
// and client certificates for a gophotp deployment.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/GophOTP/internal/certgen"
	"github.com/fatih/color"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

// run writes ca.crt/ca.key, server.crt/server.key and one pair per client
// into the output directory.
func run(args []string, out io.Writer) error {
	fset := flag.NewFlagSet("certgen", flag.ContinueOnError)
	fset.SetOutput(out)
	dir := fset.String("dir", "certs", "output directory")
	hosts := fset.String("hosts", "localhost", "comma-separated server host names")
	clients := fset.String("clients", "client", "comma-separated client names")
	if err := fset.Parse(args); err != nil {
		return err
	}

	if err := os.MkdirAll(*dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", *dir, err)
	}

	iss, caPEM, caKey, err := certgen.NewCA("GophOTP CA")
	if err != nil {
		return err
	}
	if err := writePair(*dir, "ca", caPEM, caKey); err != nil {
		return err
	}

	certPEM, keyPEM, err := iss.IssueServer(splitList(*hosts)...)
	if err != nil {
		return err
	}
	if err := writePair(*dir, "server", certPEM, keyPEM); err != nil {
		return err
	}

	for _, name := range splitList(*clients) {
		certPEM, keyPEM, err := iss.IssueClient(name)
		if err != nil {
			return err
		}
		if err := writePair(*dir, name, certPEM, keyPEM); err != nil {
			return err
		}
	}

	color.New(color.FgGreen).Fprintf(out, "✓ ")
	fmt.Fprintf(out, "Certificates generated into %s\n", *dir)
	return nil
}

func writePair(dir, name string, certPEM, keyPEM []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name+".crt"), certPEM, 0o644); err != nil {
		return fmt.Errorf("write %s.crt: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".key"), keyPEM, 0o600); err != nil {
		return fmt.Errorf("write %s.key: %w", name, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
