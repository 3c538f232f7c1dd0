package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/degraphmalizer/internal/graph"
)

// CyclesOptions holds flags for the cycles command.
type CyclesOptions struct {
	*RootOptions
	Database string
	Strict   bool
}

// NewCyclesCommand creates the cycles command.
func NewCyclesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CyclesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "Report cycles in the dependency graph",
		Long: `List every set of documents that depend on each other. Cycles are
allowed; a change to any member recomputes the others once per branch.
With --strict, any cycle fails the command.

Example:
  degraphmalizer cycles --db ./dgm.db
  degraphmalizer cycles --db ./dgm.db --strict --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycles(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit with code 1 when a cycle exists")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runCycles(cmd *cobra.Command, opts *CyclesOptions) error {
	out := newFormatter(cmd, opts.RootOptions)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	edges, err := st.Edges(commandContext(cmd))
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "read edges", err)
	}
	cycles := graph.FindCycles(edges)
	out.VerboseLog("analysed %d edges", len(edges))

	if opts.Format == "json" {
		if err := out.Success(map[string]any{"edges": len(edges), "cycles": cycles}); err != nil {
			return err
		}
	} else if len(cycles) == 0 {
		fmt.Fprintf(out.Writer, "✓ No cycles in %d edges\n", len(edges))
	} else {
		for _, c := range cycles {
			fmt.Fprintf(out.Writer, "⚠ %s\n", c.Message)
		}
	}

	if opts.Strict && len(cycles) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d dependency cycle(s)", len(cycles)))
	}
	return nil
}
