package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/atinyakov/GophOTP/internal/client"
	"github.com/atinyakov/GophOTP/internal/logger"
	"github.com/atinyakov/GophOTP/internal/vault"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// settings are the persistent flags; environment variables (and a .env
// file) provide their defaults.
type settings struct {
	DataDir   string `env:"GOPHOTP_DATA"`
	URL       string `env:"GOPHOTP_URL"`
	Cert      string `env:"GOPHOTP_CERT" envDefault:"certs/client.crt"`
	Key       string `env:"GOPHOTP_KEY" envDefault:"certs/client.key"`
	CA        string `env:"GOPHOTP_CA" envDefault:"certs/ca.crt"`
	Algorithm string `env:"GOPHOTP_ALGORITHM" envDefault:"aes-256-gcm"`
	LogLevel  string `env:"GOPHOTP_LOG_LEVEL"`
}

// app carries the streams and settings shared by all commands.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	settings
	log *logger.Logger
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "gophotp")
	}
	return ".gophotp"
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut, log: logger.New()}
	if err := env.Parse(&a.settings); err != nil {
		fmt.Fprintf(errOut, "ignoring environment: %v\n", err)
	}
	if a.DataDir == "" {
		a.DataDir = defaultDataDir()
	}

	root := &cobra.Command{
		Use:   "gophotp",
		Short: "GophOTP - TOTP codes from a password-encrypted store",
		Long: `GophOTP keeps TOTP secrets encrypted under a password and prints
one-time codes for them.

By default the store lives in a local directory (--data). With --url the
commands run against a gophotp server instead, authenticating with a client
certificate (--cert, --key, --ca).

The password is read from the terminal, or from GOPHOTP_PASSWORD when set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.LogLevel == "" {
				return nil
			}
			return a.log.Init(a.LogLevel)
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.DataDir, "data", a.DataDir, "directory of the local store")
	pf.StringVar(&a.URL, "url", a.URL, "gophotp server URL; empty uses the local store")
	pf.StringVar(&a.Cert, "cert", a.Cert, "client certificate for --url")
	pf.StringVar(&a.Key, "key", a.Key, "client private key for --url")
	pf.StringVar(&a.CA, "ca", a.CA, "CA certificate of the server")
	pf.StringVar(&a.Algorithm, "algorithm", a.Algorithm, "cipher for a new local store: aes-256-gcm or aes-256-cbc")
	pf.StringVar(&a.LogLevel, "log-level", a.LogLevel, "log to stderr at this level (debug, info, warn, error)")

	root.AddCommand(
		a.listCmd(),
		a.addCmd(),
		a.importCmd(),
		a.removeCmd(),
		a.codeCmd(),
		a.verifyCmd(),
		a.qrCmd(),
		a.generateCmd(),
		a.enrollCmd(),
		a.shellCmd(),
		versionCmd(),
	)
	return root
}

// keeper opens the local store or connects to the server.
func (a *app) keeper(ctx context.Context) (client.Keeper, error) {
	if a.URL != "" {
		return a.remote()
	}
	alg := vault.Algorithm(a.Algorithm)
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: %s", vault.ErrUnsupportedAlgorithm, a.Algorithm)
	}
	pw, err := client.ReadPassword(a.in, a.errOut, "Password: ")
	if err != nil {
		return nil, err
	}
	k, err := client.OpenLocal(ctx, client.LocalOptions{Dir: a.DataDir, Algorithm: alg, Logger: a.log.Log}, pw)
	if errors.Is(err, vault.ErrInvalidPassword) {
		return nil, errors.New("wrong password")
	}
	return k, err
}

func (a *app) remote() (*client.RemoteKeeper, error) {
	hc, err := client.LoadClientCertificate(a.Cert, a.Key, a.CA)
	if err != nil {
		return nil, err
	}
	a.log.Log.Debug("using remote keeper", zap.String("url", a.URL))
	return client.NewRemoteKeeper(a.URL, hc), nil
}

// withKeeper opens a keeper for the duration of fn.
func (a *app) withKeeper(cmd *cobra.Command, fn func(context.Context, client.Keeper) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	k, err := a.keeper(ctx)
	if err != nil {
		return err
	}
	defer k.Close()
	return fn(ctx, k)
}
