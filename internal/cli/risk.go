package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/riskctl/internal/linksync"
	"github.com/roach88/riskctl/internal/record"
	"github.com/roach88/riskctl/internal/registry"
)

// riskFlags are the editable Risk fields.
type riskFlags struct {
	title       string
	description string
	category    string
	owner       string
	likelihood  int
	impact      int
	status      string
	controls    []string
}

func (f *riskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "risk title")
	cmd.Flags().StringVar(&f.description, "description", "", "risk description")
	cmd.Flags().StringVar(&f.category, "category", "", "risk category")
	cmd.Flags().StringVar(&f.owner, "owner", "", "risk owner")
	cmd.Flags().IntVar(&f.likelihood, "likelihood", 0, "likelihood 1-5 (0 = unset)")
	cmd.Flags().IntVar(&f.impact, "impact", 0, "impact 1-5 (0 = unset)")
	cmd.Flags().StringVar(&f.status, "status", "", "risk status")
	cmd.Flags().StringSliceVar(&f.controls, "control", nil, "linked control id (repeatable); replaces the declared set")
}

// apply overlays the flags the user set onto in.
func (f *riskFlags) apply(cmd *cobra.Command, in registry.RiskInput) registry.RiskInput {
	changed := cmd.Flags().Changed
	if changed("title") {
		in.Title = f.title
	}
	if changed("description") {
		in.Description = f.description
	}
	if changed("category") {
		in.Category = f.category
	}
	if changed("owner") {
		in.Owner = f.owner
	}
	if changed("likelihood") {
		in.Likelihood = f.likelihood
	}
	if changed("impact") {
		in.Impact = f.impact
	}
	if changed("status") {
		in.Status = f.status
	}
	if changed("control") {
		in.ControlRefs = f.controls
	}
	return in
}

func riskInputFrom(r record.Risk) registry.RiskInput {
	return registry.RiskInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Owner:       r.Owner,
		Likelihood:  r.Likelihood,
		Impact:      r.Impact,
		Status:      r.Status,
		ControlRefs: r.ControlRefs,
	}
}

// NewRiskCommand creates the risk command group.
func NewRiskCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Create, change and list risks",
	}
	cmd.AddCommand(newRiskAddCommand(rootOpts))
	cmd.AddCommand(newRiskUpdateCommand(rootOpts))
	cmd.AddCommand(newRiskDeleteCommand(rootOpts))
	cmd.AddCommand(newRiskListCommand(rootOpts))
	cmd.AddCommand(newRiskShowCommand(rootOpts))
	return cmd
}

func newRiskAddCommand(opts *RootOptions) *cobra.Command {
	flags := &riskFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a risk",
		Long: `Add a risk. Every --control named is linked both ways; ids that do not
exist are kept on the risk and reported as dangling by "riskctl check".

Examples:
  riskctl risk add --title "Vendor outage" --likelihood 3 --impact 4
  riskctl risk add --title "Data loss" --control CTRL-001 --control CTRL-004`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, opts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				risk, err := s.registry.CreateRisk(ctx, flags.apply(cmd, registry.RiskInput{}))
				if err != nil {
					return f.Report(ExitCommandError, "add risk", err)
				}
				return f.Print(risk, func(w io.Writer) {
					fmt.Fprintf(w, "Created risk %s\n", risk.ID)
				})
			})
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newRiskUpdateCommand(opts *RootOptions) *cobra.Command {
	flags := &riskFlags{}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a risk",
		Long: `Change the fields given as flags and keep the rest. Passing --control
replaces the whole declared set: controls left out lose their link to
this risk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, opts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				current, err := s.registry.Risk(ctx, args[0])
				if err != nil {
					return f.Report(ExitCommandError, "update risk", err)
				}
				risk, err := s.registry.UpdateRisk(ctx, args[0], flags.apply(cmd, riskInputFrom(current)))
				if err != nil {
					return f.Report(ExitCommandError, "update risk", err)
				}
				return f.Print(risk, func(w io.Writer) {
					fmt.Fprintf(w, "Updated risk %s\n", risk.ID)
				})
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newRiskDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a risk and unlink it from every control",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, opts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				if err := s.registry.DeleteRisk(ctx, args[0]); err != nil {
					return f.Report(ExitCommandError, "delete risk", err)
				}
				return f.Print(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted risk %s\n", args[0])
				})
			})
		},
	}
}

func newRiskListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List risks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, opts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				risks, err := s.registry.Risks(ctx)
				if err != nil {
					return f.Report(ExitCommandError, "list risks", err)
				}
				return f.Print(risks, func(w io.Writer) { printRisks(w, risks) })
			})
		},
	}
}

func newRiskShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one risk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, opts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				risk, err := s.registry.Risk(ctx, args[0])
				if err != nil {
					return f.Report(ExitCommandError, "show risk", err)
				}
				return f.Print(risk, func(w io.Writer) { printRisk(w, risk) })
			})
		},
	}
}

func printRisks(w io.Writer, risks []record.Risk) {
	if len(risks) == 0 {
		fmt.Fprintln(w, "No risks.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSCORE\tCONTROLS")
	for _, r := range risks {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.Title, r.Score(), joinRefs(r.ControlRefs))
	}
	tw.Flush()
}

func printRisk(w io.Writer, r record.Risk) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", r.ID)
	fmt.Fprintf(tw, "Title:\t%s\n", r.Title)
	if r.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", r.Description)
	}
	if r.Category != "" {
		fmt.Fprintf(tw, "Category:\t%s\n", r.Category)
	}
	if r.Owner != "" {
		fmt.Fprintf(tw, "Owner:\t%s\n", r.Owner)
	}
	fmt.Fprintf(tw, "Score:\t%d (likelihood %d x impact %d)\n", r.Score(), r.Likelihood, r.Impact)
	if r.Status != "" {
		fmt.Fprintf(tw, "Status:\t%s\n", r.Status)
	}
	fmt.Fprintf(tw, "Controls:\t%s\n", joinRefs(r.ControlRefs))
	tw.Flush()
}
