package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Database string
	Remove   bool
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <index> <type> <key> [json]",
		Short: "Write a source document",
		Long: `Write a source document into the database and print its new id.

The document is not degraphmalized; submit a request for it afterwards.

Example:
  degraphmalizer put --db ./dgm.db crm contact 1 '{"name":"Ada"}'
  degraphmalizer put --db ./dgm.db --remove crm contact 1`,
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Remove, "remove", false, "remove the document instead of writing it")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPut(cmd *cobra.Command, opts *PutOptions, args []string) error {
	out := newFormatter(cmd, opts.RootOptions)
	ref := ir.Ref{Index: args[0], Type: args[1], Key: args[2]}

	if !opts.Remove && len(args) != 4 {
		return NewExitError(ExitCommandError, "a JSON document is required unless --remove is set")
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	var id ir.ID
	if opts.Remove {
		id, err = st.RemoveDocument(ctx, ref)
	} else {
		body, derr := ir.DecodeDocument([]byte(args[3]))
		if derr != nil {
			_ = out.Error(ErrCodeInvalidInput, derr.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid document", derr)
		}
		id, err = st.PutDocument(ctx, ref, body)
	}
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, fmt.Sprintf("put %s", ref), err)
	}
	out.VerboseLog("stored %s", id)
	return out.Success(id.String())
}

// LinkOptions holds flags for the link command.
type LinkOptions struct {
	*RootOptions
	Database string
	Unlink   bool
}

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "link <from> <to>",
		Short: "Record that one document depends on another",
		Long: `Add an edge to the dependency graph: <to> depends on <from>, so a change
to <from> also recomputes <to>.

Example:
  degraphmalizer link --db ./dgm.db /crm/company/acme /crm/contact/1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Unlink, "unlink", false, "remove the edge instead of adding it")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLink(cmd *cobra.Command, opts *LinkOptions, args []string) error {
	out := newFormatter(cmd, opts.RootOptions)

	from, err := ir.ParseRef(args[0])
	if err == nil && from.Key == "" {
		err = fmt.Errorf("%s is not a document", from)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid <from>", err)
	}
	to, err := ir.ParseRef(args[1])
	if err == nil && to.Key == "" {
		err = fmt.Errorf("%s is not a document", to)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid <to>", err)
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	if opts.Unlink {
		err = st.Unlink(ctx, from, to)
	} else {
		err = st.Link(ctx, from, to)
	}
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "link", err)
	}
	return out.Success(fmt.Sprintf("%s -> %s", from, to))
}
