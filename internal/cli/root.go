// Package cli implements opsctl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"campusops/internal/app"
	"campusops/internal/config"
)

// Loader builds the wired services a command operates on.
type Loader func(ctx context.Context, cfg config.App) (*app.App, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	At     string // RFC 3339 instant to act at instead of now

	config func() config.App
	load   Loader
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates opsctl wired to the configured backends.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(config.Load, app.New)
}

// NewRootCommandWith creates opsctl reading settings from conf and using load
// to obtain services.
func NewRootCommandWith(conf func() config.App, load Loader) *cobra.Command {
	opts := &RootOptions{config: conf, load: load}

	cmd := &cobra.Command{
		Use:   "opsctl",
		Short: "Operate the campusops attendance core",
		Long:  "Run renewal passes, sweep expired attendance tokens and mint tokens or identities by hand.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.At != "" {
				if _, err := time.Parse(time.RFC3339, opts.At); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.At, "at", "", "act as if the current time were this RFC 3339 instant")

	cmd.AddCommand(NewRenewCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewMintTokenCommand(opts))
	cmd.AddCommand(NewSignJWTCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) now() time.Time {
	if o.At != "" {
		if t, err := time.Parse(time.RFC3339, o.At); err == nil {
			return t
		}
	}
	return time.Now()
}

// withApp loads the services, runs fn and releases them.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	a, err := o.load(cmd.Context(), o.config())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// emit writes v as JSON, or text via the supplied printer.
func (o *RootOptions) emit(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
