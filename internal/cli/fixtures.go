package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/degraphmalizer/internal/config"
	"github.com/roach88/degraphmalizer/internal/engine"
	"github.com/roach88/degraphmalizer/internal/fixtures"
)

// FixturesOptions holds flags for the fixtures command.
type FixturesOptions struct {
	*RootOptions
	Database        string
	ConfigDir       string
	EngineConfig    string
	Redegraphmalize bool
	Timeout         time.Duration
}

// NewFixturesCommand creates the fixtures command.
func NewFixturesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FixturesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Create the configured target indexes",
		Long: `Create every target index declared in the configuration that does not
exist yet. With --redegraphmalize, also rebuild every configured source
index.

Example:
  degraphmalizer fixtures --db ./dgm.db --config ./config
  degraphmalizer fixtures --db ./dgm.db --config ./config --redegraphmalize`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixtures(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.ConfigDir, "config", "", "directory of CUE index configuration (required)")
	cmd.Flags().StringVar(&opts.EngineConfig, "engine-config", "", "YAML engine configuration")
	cmd.Flags().BoolVar(&opts.Redegraphmalize, "redegraphmalize", false, "rebuild every configured source index")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", DefaultTimeout, "how long to wait for the rebuild")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runFixtures(cmd *cobra.Command, opts *FixturesOptions) error {
	out := newFormatter(cmd, opts.RootOptions)

	cfg, err := config.Load(opts.ConfigDir)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	created, err := fixtures.CreateTargetIndexes(ctx, cfg, st)
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to create target indexes", err)
	}
	out.VerboseLog("created %d target indexes", len(created))

	if !opts.Redegraphmalize {
		if opts.Format == "json" {
			return out.Success(map[string]any{"created": orNone(created)})
		}
		return out.Success(fmt.Sprintf("created: %s", strings.Join(orNone(created), ", ")))
	}

	engineCfg, err := loadEngineConfig(opts.EngineConfig)
	if err != nil {
		return err
	}
	eng := engine.New(st, st, st, config.StaticProvider(cfg), engine.FromConfig(engineCfg))
	go func() { _ = eng.Run(ctx) }()
	defer eng.Stop()

	waitCtx, waitCancel := context.WithTimeout(ctx, opts.Timeout)
	defer waitCancel()

	var (
		rebuilt []string
		failed  []string
	)
	for _, a := range fixtures.Redegraphmalize(ctx, cfg, eng, engine.LoggingStatus{}) {
		res, _ := a.Wait(waitCtx)
		switch {
		case res == nil:
			failed = append(failed, fmt.Sprintf("%s: timed out", a.Request().ID.Index))
		case !res.Success:
			failed = append(failed, fmt.Sprintf("%s: %v", a.Request().ID.Index, res.Err))
		default:
			rebuilt = append(rebuilt, fmt.Sprintf("%s (%d documents)", a.Request().ID.Index, len(res.Affected())))
		}
	}

	if len(failed) > 0 {
		_ = out.Error(ErrCodeGeneric, "redegraphmalize failed", failed)
		return NewExitError(ExitFailure, fmt.Sprintf("redegraphmalize failed for %d source indexes", len(failed)))
	}
	if opts.Format == "json" {
		return out.Success(map[string]any{"created": orNone(created), "rebuilt": orNone(rebuilt)})
	}
	return out.Success(fmt.Sprintf("created: %s\nrebuilt: %s",
		strings.Join(orNone(created), ", "), strings.Join(orNone(rebuilt), ", ")))
}

func orNone(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
