package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/riskctl/internal/bundle"
	"github.com/roach88/riskctl/internal/linksync"
	"github.com/roach88/riskctl/internal/registry"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	PruneDangling bool
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the register with a YAML or JSON bundle",
		Long: `Validate a bundle of risks and controls, replace both collections with it,
renumber control identifiers and restore one-sided links.

The bundle may come from another tool and carry drift; every reference it
declares on one side ends up on both.

Examples:
  riskctl import register.yaml
  riskctl import export.json --prune-dangling`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.PruneDangling, "prune-dangling", false, "remove references to records that do not exist")
	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, path string) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	b, err := bundle.Load(path)
	if err != nil {
		return f.Report(ExitCommandError, fmt.Sprintf("load bundle %s", path), err)
	}
	f.VerboseLog("bundle %s: %d risk(s), %d control(s)", path, len(b.Risks), len(b.Controls))

	policy := linksync.KeepDangling
	if opts.PruneDangling {
		policy = linksync.PruneDangling
	}
	return withSession(cmd, opts.RootOptions, policy, func(ctx context.Context, s *session) error {
		rep, err := s.registry.Import(ctx, b.Risks, b.Controls, policy)
		if err != nil {
			return f.Report(ExitCommandError, "import", err)
		}
		return f.Print(rep, func(w io.Writer) { printImport(w, rep, policy) })
	})
}

func printImport(w io.Writer, rep registry.ImportReport, policy linksync.DanglingPolicy) {
	fmt.Fprintf(w, "Imported %d risk(s) and %d control(s)\n", rep.Risks, rep.Controls)
	if !rep.Migration.Skipped {
		printMigration(w, rep.Migration)
	}
	printReport(w, rep.Reconcile, policy)
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
	As     string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the register as a bundle that import accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&opts.As, "as", "yaml", "bundle encoding (yaml|json)")
	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.As != "yaml" && opts.As != "json" {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --as %q: must be yaml or json", opts.As))
	}

	return withSession(cmd, opts.RootOptions, linksync.KeepDangling, func(ctx context.Context, s *session) error {
		risks, err := s.registry.Risks(ctx)
		if err != nil {
			return f.Report(ExitCommandError, "export", err)
		}
		controls, err := s.registry.Controls(ctx)
		if err != nil {
			return f.Report(ExitCommandError, "export", err)
		}

		data, err := bundle.Encode(&bundle.Bundle{Risks: risks, Controls: controls}, opts.As)
		if err != nil {
			return f.Report(ExitCommandError, "encode bundle", err)
		}
		if opts.Output == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "write bundle", err)
		}
		f.VerboseLog("wrote %s", opts.Output)
		return nil
	})
}
