package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"campusops/internal/app"
	"campusops/internal/auth"
	"campusops/internal/renewal"
)

// NewRenewCommand creates the renew command.
func NewRenewCommand(rootOpts *RootOptions) *cobra.Command {
	var cadence string
	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Run one renewal pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := renewal.ParseCadence(cadence)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(a *app.App) error {
				res, err := a.Renewal.Renew(cmd.Context(), c, rootOpts.now())
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), res, func(w io.Writer) {
					fmt.Fprintf(w, "renewed %d, skipped %d, failed %d\n", len(res.Renewed), len(res.Skipped), len(res.Failed))
					for _, id := range res.Failed {
						fmt.Fprintf(w, "  failed: %s\n", id)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&cadence, "cadence", string(renewal.Daily), "renewal cadence (daily|hourly)")
	return cmd
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate every token whose expiry has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app.App) error {
				n, err := a.Renewal.Sweep(cmd.Context(), rootOpts.now())
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), map[string]int64{"deactivated": n}, func(w io.Writer) {
					fmt.Fprintf(w, "deactivated %d tokens\n", n)
				})
			})
		},
	}
}

// NewMintTokenCommand creates the mint-token command.
func NewMintTokenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mint-token <occurrence-id>",
		Short: "Ensure an occurrence has a live attendance token and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(a *app.App) error {
				tok, issued, err := a.Renewal.RenewOccurrence(cmd.Context(), args[0], rootOpts.now(), "opsctl")
				if err != nil {
					return err
				}
				out := struct {
					Code      string    `json:"code"`
					ExpiresAt time.Time `json:"expires_at"`
					Issued    bool      `json:"issued"`
				}{tok.Code, tok.ExpiresAt, issued}
				return rootOpts.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
					verb := "existing"
					if issued {
						verb = "issued"
					}
					fmt.Fprintf(w, "%s %s (expires %s)\n", verb, tok.Code, tok.ExpiresAt.Format(time.RFC3339))
				})
			})
		},
	}
}

// NewSignJWTCommand creates the sign-jwt command, which mints identity tokens
// for local testing.
func NewSignJWTCommand(rootOpts *RootOptions) *cobra.Command {
	var id auth.Identity
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "sign-jwt",
		Short: "Sign an identity token with the configured key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id.Subject == "" {
				return fmt.Errorf("--subject is required")
			}
			cfg := rootOpts.config()
			if ttl <= 0 {
				ttl = cfg.AccessTTL
			}
			pair, err := auth.Issue(id, cfg.JWTIssuer, cfg.JWTSigningKey, ttl, 2*ttl)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), pair, func(w io.Writer) {
				fmt.Fprintln(w, pair.AccessToken)
			})
		},
	}
	cmd.Flags().StringVar(&id.Subject, "subject", "", "identity reference")
	cmd.Flags().StringVar(&id.Role, "role", auth.RoleStudent, "role (student|staff|admin)")
	cmd.Flags().StringVar(&id.Department, "dept", "", "department reference")
	cmd.Flags().IntVar(&id.YearLevel, "year", 0, "year level")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "access token lifetime (default ACCESS_TTL)")
	return cmd
}
