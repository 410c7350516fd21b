package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atinyakov/GophOTP/internal/client"
	"github.com/atinyakov/GophOTP/internal/models"
	"github.com/atinyakov/GophOTP/internal/service"

	"github.com/spf13/cobra"
)

const shellHelp = `Available commands:
  list                      list entries
  add                       add an entry interactively
  import <otpauth-uri>      add an entry from a URI
  remove <ref>              remove an entry
  code <ref>                print the current code
  verify <ref> <code> [n]   check a code, accepting n steps of skew (default 1)
  qr <ref> [file]           write a QR code PNG
  help                      show this help
  exit                      leave the shell
<ref> is an entry index or id.`

func (a *app) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Unlock once and run commands interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withKeeper(cmd, a.repl)
		},
	}
}

// repl runs the interactive shell loop until exit or end of input.
func (a *app) repl(ctx context.Context, k client.Keeper) error {
	scanner := bufio.NewScanner(a.in)
	prompter := client.NewPrompterFromScanner(scanner, a.out)

	for {
		fmt.Fprint(a.out, "gophotp> ")
		if !scanner.Scan() {
			fmt.Fprintln(a.out)
			return scanner.Err()
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			fmt.Fprintln(a.out, "Bye")
			return nil
		}
		if err := a.dispatch(ctx, k, prompter, args); err != nil {
			if errors.Is(err, service.ErrLocked) || errors.Is(err, client.ErrUnauthorized) {
				return err
			}
			if !errors.Is(err, errCodeRejected) {
				fmt.Fprintf(a.out, "%s %v\n", failure.Sprint("✗"), err)
			}
		}
	}
}

func (a *app) dispatch(ctx context.Context, k client.Keeper, p *client.Prompter, args []string) error {
	switch args[0] {
	case "help":
		fmt.Fprintln(a.out, shellHelp)
		return nil
	case "list", "ls":
		return a.printList(ctx, k)
	case "add":
		req, err := p.Entry()
		if err != nil {
			return err
		}
		return a.add(ctx, k, req)
	case "import":
		if len(args) != 2 {
			return errors.New("usage: import <otpauth-uri>")
		}
		return a.add(ctx, k, models.NewEntryRequest{URI: args[1]})
	case "remove", "rm", "code", "verify", "qr":
	default:
		return fmt.Errorf("unknown command %q, type 'help' for a list of commands", args[0])
	}

	if len(args) < 2 {
		return fmt.Errorf("usage: %s <ref>", args[0])
	}
	ref, err := service.ParseRef(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "remove", "rm":
		return a.remove(ctx, k, ref)
	case "code":
		return a.code(ctx, k, ref)
	case "verify":
		if len(args) < 3 {
			return errors.New("usage: verify <ref> <code> [skew]")
		}
		skew := 1
		if len(args) > 3 {
			if skew, err = parseSkew(args[3]); err != nil {
				return err
			}
		}
		return a.verify(ctx, k, ref, args[2], skew)
	default: // qr
		output := ""
		if len(args) > 2 {
			output = args[2]
		}
		return a.qr(ctx, k, ref, output)
	}
}
