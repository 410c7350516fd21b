package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/GophOTP/internal/blob"
	"github.com/atinyakov/GophOTP/internal/certgen"
	"github.com/atinyakov/GophOTP/internal/client"
	"github.com/atinyakov/GophOTP/internal/config"
	"github.com/atinyakov/GophOTP/internal/db"
	"github.com/atinyakov/GophOTP/internal/repository"
	"github.com/atinyakov/GophOTP/internal/server/handler/http"
	"github.com/atinyakov/GophOTP/internal/service"
	"github.com/atinyakov/GophOTP/internal/vault"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// server wires the configured components together.
type server struct {
	opts   *config.Options
	log    *zap.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// backend is an opened blob store. history is set for postgres only.
type backend struct {
	store   blob.Store
	history *repository.PostgresBlobRepository
	close   func()
}

func (s *server) run(ctx context.Context) error {
	alg := vault.Algorithm(s.opts.Algorithm)
	if !alg.Valid() {
		return fmt.Errorf("%w: %s", vault.ErrUnsupportedAlgorithm, s.opts.Algorithm)
	}

	b, err := s.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	switch {
	case s.opts.ListHistory:
		return listHistory(ctx, b.history, s.stdout)
	case s.opts.RestoreHistory != 0:
		if err := b.history.Restore(ctx, s.opts.RestoreHistory); err != nil {
			return err
		}
		s.log.Info("restored config version", zap.Int64("id", s.opts.RestoreHistory))
		return nil
	}

	if b.history != nil {
		db.StartHistoryCleaner(ctx, b.history.DB,
			time.Duration(s.opts.HistoryInterval),
			time.Duration(s.opts.HistoryRetention),
			s.log,
		)
	}

	password, err := client.ReadPassword(s.stdin, s.stderr, "Vault password: ")
	if err != nil {
		return err
	}
	reg := service.NewRegistry(
		vault.New(b.store, vault.WithAlgorithm(alg), vault.WithLogger(s.log)),
		service.WithLogger(s.log),
	)
	if err := reg.Init(ctx, password); err != nil {
		return fmt.Errorf("unlock registry: %w", err)
	}
	defer reg.Close()

	router, err := s.router(reg)
	if err != nil {
		return err
	}
	tlsConfig, err := s.tlsConfig()
	if err != nil {
		return err
	}

	srv := &nethttp.Server{
		Addr:              s.opts.Addr,
		Handler:           router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv, s.log)
}

func (s *server) openBackend(ctx context.Context) (*backend, error) {
	switch s.opts.Backend {
	case config.BackendPostgres:
		sqlDB, err := db.InitPostgres(ctx, s.opts.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("cannot init database: %w", err)
		}
		repo := repository.NewPostgresBlobRepository(sqlDB)
		return &backend{store: repo, history: repo, close: func() { _ = sqlDB.Close() }}, nil
	case config.BackendS3:
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:    s.opts.S3Bucket,
			Prefix:    s.opts.S3Prefix,
			Region:    s.opts.S3Region,
			AccessKey: s.opts.S3AccessKey,
			SecretKey: s.opts.S3SecretKey,
			Endpoint:  s.opts.S3Endpoint,
			PathStyle: s.opts.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return &backend{store: store, close: func() {}}, nil
	default:
		store := blob.NewLocalStore(s.opts.DataDir, blob.WithLocalLogger(s.log))
		return &backend{store: store, close: func() {}}, nil
	}
}

// router builds the API; device enrollment is mounted only when a CA key
// is configured.
func (s *server) router(reg *service.Registry) (nethttp.Handler, error) {
	keys := http.NewKeysHandler(reg, s.log)

	var devices *http.DevicesHandler
	if s.opts.TLSCAKey != "" {
		iss, err := certgen.LoadIssuer(s.opts.TLSCA, s.opts.TLSCAKey)
		if err != nil {
			return nil, fmt.Errorf("load CA for enrollment: %w", err)
		}
		devices = &http.DevicesHandler{Issuer: iss, Logger: s.log}
		s.log.Info("device enrollment enabled")
	}
	return http.NewRouter(keys, devices, s.log), nil
}

func (s *server) tlsConfig() (*tls.Config, error) {
	// Load server TLS certificate and key.
	cert, err := tls.LoadX509KeyPair(s.opts.TLSCert, s.opts.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load server TLS cert/key: %w", err)
	}

	// Load the CA that signs client certificates.
	caCert, err := os.ReadFile(s.opts.TLSCA)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
		return nil, errors.New("failed to append CA cert to pool")
	}

	// The health check is served without a certificate; CertAuth rejects
	// everything else that lacks one.
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// serve runs srv until ctx is canceled, then shuts it down gracefully.
func serve(ctx context.Context, srv *nethttp.Server, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTPS server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServeTLS("", "")
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, nethttp.ErrServerClosed) {
		return err
	}
	return nil
}

func listHistory(ctx context.Context, repo *repository.PostgresBlobRepository, out io.Writer) error {
	versions, err := repo.History(ctx, vault.DefaultConfigFile)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(out, "no archived config versions")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tARCHIVED AT\tBYTES")
	for _, v := range versions {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", v.ID, v.ArchivedAt.UTC().Format(time.RFC3339), len(v.Data))
	}
	return tw.Flush()
}
