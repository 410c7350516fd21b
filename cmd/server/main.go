// Package main starts the GophOTP HTTPS server: it loads configuration,
// opens the configured blob backend, unlocks the registry and serves the
// key API behind mutual TLS.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atinyakov/GophOTP/internal/config"
	"github.com/atinyakov/GophOTP/internal/logger"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, config file and environment configuration.
	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &server{opts: options, log: zapLogger, stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := srv.run(ctx); err != nil {
		zapLogger.Error("server stopped", zap.Error(err))
		stop()
		_ = zapLogger.Sync()
		os.Exit(1)
	}
}
