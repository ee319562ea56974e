package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/riskctl/internal/linksync"
	"github.com/roach88/riskctl/internal/record"
	"github.com/roach88/riskctl/internal/registry"
)

type controlFlags struct {
	title       string
	description string
	typ         string
	owner       string
	status      string
	risks       []string
}

func (f *controlFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "control title")
	cmd.Flags().StringVar(&f.description, "description", "", "control description")
	cmd.Flags().StringVar(&f.typ, "type", "", "control type (preventive|detective|corrective)")
	cmd.Flags().StringVar(&f.owner, "owner", "", "control owner")
	cmd.Flags().StringVar(&f.status, "status", "", "control status")
	cmd.Flags().StringSliceVar(&f.risks, "risk", nil, "linked risk id (repeatable); replaces the declared set")
}

func (f *controlFlags) apply(cmd *cobra.Command, in registry.ControlInput) registry.ControlInput {
	changed := cmd.Flags().Changed
	if changed("title") {
		in.Title = f.title
	}
	if changed("description") {
		in.Description = f.description
	}
	if changed("type") {
		in.Type = record.ControlType(strings.ToLower(f.typ))
	}
	if changed("owner") {
		in.Owner = f.owner
	}
	if changed("status") {
		in.Status = f.status
	}
	if changed("risk") {
		in.RiskRefs = f.risks
	}
	return in
}

func controlInputFrom(c record.Control) registry.ControlInput {
	return registry.ControlInput{
		Title:       c.Title,
		Description: c.Description,
		Type:        c.Type,
		Owner:       c.Owner,
		Status:      c.Status,
		RiskRefs:    c.RiskRefs,
	}
}

// NewControlCommand creates the control command group.
func NewControlCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Create, change and list controls",
		Long: `Create, change and list controls.

Listing or showing controls opens the control view: the first access in a
session renumbers legacy identifiers (once per data version) and restores
links recorded on only one side.`,
	}
	cmd.AddCommand(newControlAddCommand(rootOpts))
	cmd.AddCommand(newControlUpdateCommand(rootOpts))
	cmd.AddCommand(newControlDeleteCommand(rootOpts))
	cmd.AddCommand(newControlListCommand(rootOpts))
	cmd.AddCommand(newControlShowCommand(rootOpts))
	return cmd
}

func newControlAddCommand(opts *RootOptions) *cobra.Command {
	flags := &controlFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a control with the next CTRL-NNN identifier",
		Long: `Add a control. Its identifier is one more than the highest CTRL-NNN
reference in the register.

Examples:
  riskctl control add --title "Nightly backups" --type preventive
  riskctl control add --title "Restore drill" --risk R1 --risk R7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, opts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				control, err := s.registry.CreateControl(ctx, flags.apply(cmd, registry.ControlInput{}))
				if err != nil {
					return f.Report(ExitCommandError, "add control", err)
				}
				return f.Print(control, func(w io.Writer) {
					fmt.Fprintf(w, "Created control %s\n", control.ID)
				})
			})
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newControlUpdateCommand(opts *RootOptions) *cobra.Command {
	flags := &controlFlags{}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a control",
		Long: `Change the fields given as flags and keep the rest. Passing --risk
replaces the whole declared set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, opts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				current, err := s.registry.Control(ctx, args[0])
				if err != nil {
					return f.Report(ExitCommandError, "update control", err)
				}
				control, err := s.registry.UpdateControl(ctx, args[0], flags.apply(cmd, controlInputFrom(current)))
				if err != nil {
					return f.Report(ExitCommandError, "update control", err)
				}
				return f.Print(control, func(w io.Writer) {
					fmt.Fprintf(w, "Updated control %s\n", control.ID)
				})
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newControlDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a control and unlink it from every risk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, opts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				if err := s.registry.DeleteControl(ctx, args[0]); err != nil {
					return f.Report(ExitCommandError, "delete control", err)
				}
				return f.Print(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted control %s\n", args[0])
				})
			})
		},
	}
}

func newControlListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List controls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, opts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				controls, err := s.registry.Controls(ctx)
				if err != nil {
					return f.Report(ExitCommandError, "list controls", err)
				}
				return f.Print(controls, func(w io.Writer) { printControls(w, controls) })
			})
		},
	}
}

func newControlShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one control",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, opts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				control, err := s.registry.Control(ctx, args[0])
				if err != nil {
					return f.Report(ExitCommandError, "show control", err)
				}
				return f.Print(control, func(w io.Writer) { printControl(w, control) })
			})
		},
	}
}

func printControls(w io.Writer, controls []record.Control) {
	if len(controls) == 0 {
		fmt.Fprintln(w, "No controls.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tRISKS")
	for _, c := range controls {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Title, orDash(string(c.Type)), joinRefs(c.RiskRefs))
	}
	tw.Flush()
}

func printControl(w io.Writer, c record.Control) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", c.ID)
	fmt.Fprintf(tw, "Title:\t%s\n", c.Title)
	if c.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", c.Description)
	}
	fmt.Fprintf(tw, "Type:\t%s\n", orDash(string(c.Type)))
	if c.Owner != "" {
		fmt.Fprintf(tw, "Owner:\t%s\n", c.Owner)
	}
	if c.Status != "" {
		fmt.Fprintf(tw, "Status:\t%s\n", c.Status)
	}
	fmt.Fprintf(tw, "Risks:\t%s\n", joinRefs(c.RiskRefs))
	tw.Flush()
}

func joinRefs(refs record.Refs) string {
	if len(refs) == 0 {
		return "-"
	}
	return strings.Join(refs, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
