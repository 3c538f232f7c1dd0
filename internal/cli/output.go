package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/degraphmalizer/internal/engine"
	"github.com/roach88/degraphmalizer/internal/ir"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a request, validation or scenario failed
	ExitCommandError = 2 // bad arguments, unreadable config, unopenable database
)

// Codes for CLI-level failures. Engine failures report their
// RuntimeErrorCode instead.
const (
	ErrCodeGeneric      = "E001"
	ErrCodeConfig       = "E002"
	ErrCodeStore        = "E003"
	ErrCodeInvalidInput = "E004"
)

// ExitError carries the exit code a command should terminate with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the ExitError in err's chain, or
// ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string // "text" | "json"
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command result.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" | "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failure in a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data. In text mode documents are written as canonical
// JSON, anything else with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if doc, ok := data.(ir.Document); ok {
		raw, err := ir.MarshalCanonical(doc)
		if err != nil {
			return err
		}
		fmt.Fprintln(f.Writer, string(raw))
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error writes a failure; details are shown in text mode only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Result outputs the aggregate document of an action result. A failed
// action is reported as an error carrying the document as details.
func (f *OutputFormatter) Result(res *engine.Result) error {
	doc, err := res.Document()
	if err != nil {
		return err
	}
	if res.Success {
		return f.Success(doc)
	}
	code := string(engine.CodeOf(res.Err))
	if code == "" {
		code = ErrCodeGeneric
	}
	return f.Error(code, res.Err.Error(), doc)
}

// VerboseLog writes a diagnostic line when verbose, never to the result
// stream when ErrWriter is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the diagnostic writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
