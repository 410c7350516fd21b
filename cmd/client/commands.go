package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/atinyakov/GophOTP/internal/client"
	"github.com/atinyakov/GophOTP/internal/models"
	"github.com/atinyakov/GophOTP/internal/otp"
	"github.com/atinyakov/GophOTP/internal/service"

	"github.com/spf13/cobra"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

var errCodeRejected = errors.New("code rejected")

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored entries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withKeeper(cmd, func(ctx context.Context, k client.Keeper) error {
				return a.printList(ctx, k)
			})
		},
	}
}

func (a *app) printList(ctx context.Context, k client.Keeper) error {
	entries, err := k.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(a.out, "No entries yet. Add one with %s\n", cmdText.Sprint("gophotp add"))
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tPLATFORM\tDIGITS\tPERIOD\tID")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%ds\t%s\n", e.Index, e.Name, e.Platform, e.Digits, e.Period, e.ID)
	}
	return tw.Flush()
}

func (a *app) addCmd() *cobra.Command {
	var (
		req      models.NewEntryRequest
		generate bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an entry",
		Long: `Adds a TOTP entry. Pass the secret with --secret or a whole otpauth://
URI with --uri; without either, the fields are asked for interactively.
--generate creates a fresh secret for a new account and prints it.

Examples:
  gophotp add --name alice --platform GitHub --secret JBSWY3DPEHPK3PXP
  gophotp add --uri 'otpauth://totp/GitHub:alice?secret=JBSWY3DPEHPK3PXP&issuer=GitHub'
  gophotp add --generate --name alice --platform Intranet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := req
			if generate {
				if r.URI != "" || r.Secret != "" {
					return errors.New("--generate cannot be combined with --secret or --uri")
				}
				secret, err := otp.NewSecret(r.Platform, r.Name)
				if err != nil {
					return err
				}
				r.Secret = secret
			}
			return a.withKeeper(cmd, func(ctx context.Context, k client.Keeper) error {
				if generate {
					if err := a.add(ctx, k, r); err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Secret: %s\n", highlight.Sprint(r.Secret))
					return nil
				}
				if r.URI == "" && r.Secret == "" {
					var err error
					if r, err = client.NewPrompter(a.in, a.out).Entry(); err != nil {
						return err
					}
				}
				return a.add(ctx, k, r)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.URI, "uri", "", "otpauth:// URI to import")
	f.StringVar(&req.Name, "name", "", "account name")
	f.StringVar(&req.Platform, "platform", "", "platform (issuer)")
	f.StringVar(&req.Description, "description", "", "free-form notes")
	f.StringVar(&req.Secret, "secret", "", "Base32 secret")
	f.IntVar(&req.Rank, "rank", 0, "display order")
	f.IntVar(&req.Period, "period", 0, "time step in seconds (default 30)")
	f.IntVar(&req.Digits, "digits", 0, "code length (default 6)")
	f.BoolVar(&generate, "generate", false, "generate a new random secret")
	return cmd
}

func (a *app) add(ctx context.Context, k client.Keeper, req models.NewEntryRequest) error {
	info, err := k.Add(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Added %s %s\n", success.Sprint("✓"), highlight.Sprint(info.Name),
		muted.Sprintf("index %d, id %s", info.Index, info.ID))
	return nil
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <otpauth-uri>",
		Short: "Add an entry from an otpauth:// URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withKeeper(cmd, func(ctx context.Context, k client.Keeper) error {
				return a.add(ctx, k, models.NewEntryRequest{URI: args[0]})
			})
		},
	}
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <index|id>",
		Aliases: []string{"rm"},
		Short:   "Remove an entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := service.ParseRef(args[0])
			if err != nil {
				return err
			}
			return a.withKeeper(cmd, func(ctx context.Context, k client.Keeper) error {
				return a.remove(ctx, k, ref)
			})
		},
	}
}

func (a *app) remove(ctx context.Context, k client.Keeper, ref service.Ref) error {
	if err := k.Remove(ctx, ref); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Removed %s\n", success.Sprint("✓"), highlight.Sprint(ref))
	return nil
}

func (a *app) codeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "code <index|id>",
		Short: "Print the current code of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := service.ParseRef(args[0])
			if err != nil {
				return err
			}
			return a.withKeeper(cmd, func(ctx context.Context, k client.Keeper) error {
				return a.code(ctx, k, ref)
			})
		},
	}
}

func (a *app) code(ctx context.Context, k client.Keeper, ref service.Ref) error {
	c, err := k.Code(ctx, ref)
	if err != nil {
		return err
	}
	a.printCode(c)
	return nil
}

func (a *app) printCode(c models.Code) {
	left := time.Until(c.ExpiresAt).Round(time.Second)
	fmt.Fprintf(a.out, "%s %s\n", success.Sprint(c.Code), muted.Sprintf("expires in %s", max(left, 0)))
}

func (a *app) verifyCmd() *cobra.Command {
	var skew int
	cmd := &cobra.Command{
		Use:   "verify <index|id> <code>",
		Short: "Check a code against an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkSkew(skew); err != nil {
				return err
			}
			ref, err := service.ParseRef(args[0])
			if err != nil {
				return err
			}
			return a.withKeeper(cmd, func(ctx context.Context, k client.Keeper) error {
				return a.verify(ctx, k, ref, args[1], skew)
			})
		},
	}
	cmd.Flags().IntVar(&skew, "skew", 1, fmt.Sprintf("accepted time steps on either side of now (0-%d)", otp.MaxSkew))
	return cmd
}

func (a *app) verify(ctx context.Context, k client.Keeper, ref service.Ref, code string, skew int) error {
	ok, err := k.Verify(ctx, ref, code, skew)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(a.out, "%s Code is not valid\n", failure.Sprint("✗"))
		return errCodeRejected
	}
	fmt.Fprintf(a.out, "%s Code is valid\n", success.Sprint("✓"))
	return nil
}

func (a *app) qrCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "qr <index|id>",
		Short: "Write the entry's otpauth URI as a QR code PNG",
		Long: `Writes a PNG QR code that authenticator apps can scan to enroll the entry.
The image contains the secret; keep it private.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := service.ParseRef(args[0])
			if err != nil {
				return err
			}
			return a.withKeeper(cmd, func(ctx context.Context, k client.Keeper) error {
				return a.qr(ctx, k, ref, output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <ref>.png)")
	return cmd
}

func (a *app) qr(ctx context.Context, k client.Keeper, ref service.Ref, output string) error {
	img, err := k.QR(ctx, ref)
	if err != nil {
		return err
	}
	output = cmp.Or(output, ref.String()+".png")
	if err := os.WriteFile(output, img, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(a.out, "%s QR code written to %s\n", success.Sprint("✓"), cmdText.Sprint(output))
	return nil
}

func (a *app) generateCmd() *cobra.Command {
	var period, digits int
	cmd := &cobra.Command{
		Use:   "generate <secret>",
		Short: "Print the current code for a Base32 secret without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UnixMilli()
			code, err := otp.GenerateTOTP(args[0], now, otp.WithPeriod(period), otp.WithDigits(digits))
			if err != nil {
				return err
			}
			a.printCode(models.Code{
				Code:      code,
				Period:    period,
				ExpiresAt: time.UnixMilli(now).Add(otp.Remaining(now, period)),
			})
			return nil
		},
	}
	cmd.Flags().IntVar(&period, "period", otp.DefaultPeriod, "time step in seconds")
	cmd.Flags().IntVar(&digits, "digits", otp.DefaultDigits, "code length")
	return cmd
}

func (a *app) enrollCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "enroll <device-name>",
		Short: "Request a client certificate for another device from the server",
		Long: `Asks the server at --url to issue a client certificate for a new device,
authenticating with this device's certificate. The pair is written to
<dir>/<device-name>.crt and .key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.URL == "" {
				return errors.New("enroll needs --url")
			}
			k, err := a.remote()
			if err != nil {
				return err
			}
			defer k.Close()
			certPEM, keyPEM, err := k.Enroll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			certPath, keyPath, err := client.SaveCertificate(dir, args[0], certPEM, keyPEM)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s Certificate saved to %s and %s\n",
				success.Sprint("✓"), cmdText.Sprint(certPath), cmdText.Sprint(keyPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "certs", "directory for the new certificate and key")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build version and date",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "GophOTP Client\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
}

// parseSkew is shared by the shell's verify command.
func parseSkew(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid skew %q", s)
	}
	return n, checkSkew(n)
}

func checkSkew(n int) error {
	if n < 0 || n > otp.MaxSkew {
		return fmt.Errorf("skew must be between 0 and %d", otp.MaxSkew)
	}
	return nil
}
