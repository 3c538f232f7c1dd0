package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/degraphmalizer/internal/config"
	"github.com/roach88/degraphmalizer/internal/engine"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Database     string
	ConfigDir    string
	EngineConfig string
	Delete       bool
	Scope        string
	Timeout      time.Duration

	// IDGenerator overrides the action id generator (for testing).
	IDGenerator engine.IDGenerator
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Degraphmalize one document or index and print the result",
		Long: `Submit one request to a fresh engine, wait for it to resolve and print
the result document.

<id> is /index/type/key[/version] for document scope and /index[/type]
for index scope.

Example:
  degraphmalizer submit --db ./dgm.db --config ./config /crm/contact/1
  degraphmalizer submit --db ./dgm.db --config ./config --delete /crm/contact/1
  degraphmalizer submit --db ./dgm.db --config ./config --scope index /crm`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.ConfigDir, "config", "", "directory of CUE index configuration (required)")
	cmd.Flags().StringVar(&opts.EngineConfig, "engine-config", "", "YAML engine configuration")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "submit a delete request")
	cmd.Flags().StringVar(&opts.Scope, "scope", "document", "request scope (document|index)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", DefaultTimeout, "how long to wait for the result")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runSubmit(cmd *cobra.Command, opts *SubmitOptions, rawID string) error {
	out := newFormatter(cmd, opts.RootOptions)

	typ := "update"
	if opts.Delete {
		typ = "delete"
	}
	req, err := parseRequest(typ, opts.Scope, rawID)
	if err != nil {
		_ = out.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid request", err)
	}

	engineCfg, err := loadEngineConfig(opts.EngineConfig)
	if err != nil {
		return err
	}
	provider, err := config.NewProvider(opts.ConfigDir)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	engOpts := []engine.Option{engine.FromConfig(engineCfg)}
	if opts.IDGenerator != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	eng := engine.New(st, st, st, provider, engOpts...)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()
	go func() { _ = eng.Run(ctx) }()
	defer eng.Stop()

	out.VerboseLog("submitting %s", req)
	a := eng.Submit(ctx, req, engine.LoggingStatus{})

	waitCtx, waitCancel := context.WithTimeout(ctx, opts.Timeout)
	defer waitCancel()
	res, err := a.Wait(waitCtx)
	if res == nil {
		a.Cancel()
		return WrapExitError(ExitFailure, fmt.Sprintf("%s did not resolve within %s", req, opts.Timeout), err)
	}
	if err := out.Result(res); err != nil {
		return err
	}
	if !res.Success {
		return WrapExitError(ExitFailure, req.String(), res.Err)
	}
	return nil
}
