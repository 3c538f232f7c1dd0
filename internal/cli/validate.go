package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/degraphmalizer/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	EngineConfig string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid         bool              `json:"valid"`
	TargetIndexes []string          `json:"target_indexes,omitempty"`
	Mappings      []string          `json:"mappings,omitempty"`
	Errors        []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one problem found in a configuration.
type ValidationIssue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <config-dir>",
		Short: "Validate an index configuration",
		Long: `Load the CUE index configuration in <config-dir>, check it against the
configuration schema and list the source to target mappings it declares.
With --engine-config, the YAML engine configuration is checked as well.

Example:
  degraphmalizer validate ./config
  degraphmalizer validate ./config --engine-config engine.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.EngineConfig, "engine-config", "", "YAML engine configuration to check")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions, dir string) error {
	out := newFormatter(cmd, opts.RootOptions)

	var issues []ValidationIssue
	cfg, err := config.Load(dir)
	if err != nil {
		issues = append(issues, toIssue(err))
	}
	if opts.EngineConfig != "" {
		if _, err := config.LoadEngine(opts.EngineConfig); err != nil {
			issue := toIssue(err)
			if issue.File == "" {
				issue.File = opts.EngineConfig
			}
			issues = append(issues, issue)
		}
	}
	if len(issues) > 0 {
		return outputValidationErrors(out, issues)
	}

	result := ValidationResult{Valid: true, TargetIndexes: cfg.TargetIndexNames()}
	for _, tc := range cfg.All() {
		result.Mappings = append(result.Mappings, tc.String())
	}
	out.VerboseLog("loaded %d target indexes from %s", len(result.TargetIndexes), dir)

	if out.Format == "json" {
		return out.Success(result)
	}
	fmt.Fprintln(out.Writer, "✓ Configuration valid")
	for _, m := range result.Mappings {
		fmt.Fprintf(out.Writer, "  %s\n", m)
	}
	return nil
}

func toIssue(err error) ValidationIssue {
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		return ValidationIssue{Message: err.Error()}
	}
	issue := ValidationIssue{Path: cfgErr.Path, Message: cfgErr.Message}
	if cfgErr.Pos.IsValid() {
		issue.File = cfgErr.Pos.Filename()
		issue.Line = cfgErr.Pos.Line()
	}
	return issue
}

// outputValidationErrors outputs every issue and fails with exit code 1.
func outputValidationErrors(out *OutputFormatter, issues []ValidationIssue) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if out.Format == "json" {
		encoder := json.NewEncoder(out.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error:  &CLIError{Code: ErrCodeConfig, Message: issues[0].Message},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(out.Writer, "✗ Validation failed")
	fmt.Fprintln(out.Writer)
	for _, issue := range issues {
		if issue.File != "" {
			fmt.Fprintf(out.Writer, "%s:%d\n", issue.File, issue.Line)
		}
		if issue.Path != "" {
			fmt.Fprintf(out.Writer, "  %s: %s\n\n", issue.Path, issue.Message)
		} else {
			fmt.Fprintf(out.Writer, "  %s\n\n", issue.Message)
		}
	}
	return failure
}
