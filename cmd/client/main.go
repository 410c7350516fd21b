// Package main is the gophotp command-line client. It manages TOTP entries
// in a local encrypted store or on a gophotp server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errCodeRejected) {
			fmt.Fprintf(os.Stderr, "%s %v\n", failure.Sprint("✗"), err)
		}
		stop()
		os.Exit(1)
	}
}
