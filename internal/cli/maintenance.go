package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/riskctl/internal/linksync"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	DryRun        bool
	PruneDangling bool
}

func (o *ReconcileOptions) policy() linksync.DanglingPolicy {
	if o.PruneDangling {
		return linksync.PruneDangling
	}
	return linksync.KeepDangling
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Restore links recorded on only one side",
		Long: `Scan every risk and control and add each missing mirror reference.
Links are only ever added; a link present on one side is restored on the
other, never removed.

References to records that do not exist are reported and kept, unless
--prune-dangling is given.

Examples:
  riskctl reconcile
  riskctl reconcile --dry-run --format json
  riskctl reconcile --prune-dangling`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().BoolVar(&opts.PruneDangling, "prune-dangling", false, "remove references to records that do not exist")
	return cmd
}

func runReconcile(cmd *cobra.Command, opts *ReconcileOptions) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return withSession(cmd, opts.RootOptions, opts.policy(), func(ctx context.Context, s *session) error {
		rep, err := s.registry.Reconcile(ctx, linksync.ReconcileOptions{Dangling: opts.policy(), DryRun: opts.DryRun})
		if err != nil {
			return f.Report(ExitCommandError, "reconcile", err)
		}
		return f.Print(rep, func(w io.Writer) { printReport(w, rep, opts.policy()) })
	})
}

func printReport(w io.Writer, rep linksync.Report, policy linksync.DanglingPolicy) {
	prefix := ""
	if rep.DryRun {
		prefix = "(dry run) "
	}
	if !rep.Changed() && len(rep.Dangling) == 0 {
		fmt.Fprintf(w, "%sRelation is consistent; nothing to do.\n", prefix)
		return
	}
	fmt.Fprintf(w, "%sRisk references added to controls: %d\n", prefix, rep.RiskRefsAdded)
	fmt.Fprintf(w, "%sControl references added to risks: %d\n", prefix, rep.ControlRefsAdded)
	if len(rep.Dangling) > 0 {
		fmt.Fprintf(w, "%sDangling references (%s): %d\n", prefix, policy, len(rep.Dangling))
		for _, d := range rep.Dangling {
			fmt.Fprintf(w, "  %s %s -> %s\n", d.Holder, d.ID, d.Ref)
		}
	}
	if rep.Pruned > 0 {
		fmt.Fprintf(w, "%sPruned: %d\n", prefix, rep.Pruned)
	}
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Renumber control identifiers into CTRL-NNN",
		Long: `Renumber every control as CTRL-001, CTRL-002, ... in order of creation and
rewrite risk references to follow. Runs regardless of the stored data
version; when every identifier is already canonical nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, rootOpts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				m, err := s.registry.Migrate(ctx)
				if err != nil {
					return f.Report(ExitCommandError, "migrate", err)
				}
				return f.Print(m, func(w io.Writer) { printMigration(w, m) })
			})
		},
	}
}

func printMigration(w io.Writer, m linksync.Migration) {
	if m.Skipped {
		fmt.Fprintln(w, "All control identifiers are canonical; nothing to do.")
		return
	}
	if m.ReferencesRepaired > 0 {
		fmt.Fprintf(w, "Repaired %d control reference(s)\n", m.ReferencesRepaired)
		return
	}
	fmt.Fprintf(w, "Renamed %d control(s), rewrote %d risk(s)\n", m.Renamed, m.RisksRewritten)
	old := make([]string, 0, len(m.Mapping))
	for k := range m.Mapping {
		old = append(old, k)
	}
	sort.Slice(old, func(i, j int) bool { return m.Mapping[old[i]] < m.Mapping[old[j]] })
	for _, k := range old {
		fmt.Fprintf(w, "  %s -> %s\n", k, m.Mapping[k])
	}
}

// CheckResult is the JSON payload of the check command.
type CheckResult struct {
	OK         bool                 `json:"ok"`
	Violations []linksync.Violation `json:"violations"`

	// Digest identifies the checked dataset; equal digests mean
	// identical collections.
	Digest string `json:"digest"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report relation defects without changing anything",
		Long: `List every reference that is not mirrored on the other side and every
reference to a record that does not exist.

Exit codes:
  0 - No defects
  1 - Defects found
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(cmd, rootOpts, linksync.KeepDangling, func(ctx context.Context, s *session) error {
				vs, err := s.registry.Check(ctx)
				if err != nil {
					return f.Report(ExitCommandError, "check", err)
				}
				digest, err := s.registry.Digest(ctx)
				if err != nil {
					return f.Report(ExitCommandError, "check", err)
				}
				res := CheckResult{OK: len(vs) == 0, Violations: vs, Digest: digest}
				if res.Violations == nil {
					res.Violations = []linksync.Violation{}
				}
				if err := f.Print(res, func(w io.Writer) {
					if res.OK {
						fmt.Fprintln(w, "OK: every reference is mirrored and resolves.")
					} else {
						for _, v := range vs {
							fmt.Fprintf(w, "%s: %s\n", v.Kind, v)
						}
					}
					fmt.Fprintf(w, "Digest: %s\n", res.Digest)
				}); err != nil {
					return err
				}
				if !res.OK {
					e := NewExitError(ExitFailure, fmt.Sprintf("%d violation(s)", len(vs)))
					e.Reported = true
					return e
				}
				return nil
			})
		},
	}
}
