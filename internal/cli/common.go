package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/degraphmalizer/internal/config"
	"github.com/roach88/degraphmalizer/internal/engine"
	"github.com/roach88/degraphmalizer/internal/ir"
	"github.com/roach88/degraphmalizer/internal/store"
)

// DefaultTimeout bounds how long submit waits for its action.
const DefaultTimeout = 30 * time.Second

// RequestLine is the JSON form of one request read by the run command.
type RequestLine struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
	ID    string `json:"id"`
}

// parseRequest builds a validated engine request. An index-scoped id may
// be /index or /index/type.
func parseRequest(typ, scope, id string) (engine.Request, error) {
	t, err := ir.ParseRequestType(typ)
	if err != nil {
		return engine.Request{}, err
	}
	s, err := ir.ParseRequestScope(scope)
	if err != nil {
		return engine.Request{}, err
	}
	var parsed ir.ID
	if s == ir.ScopeIndex {
		ref, err := ir.ParseRef(id)
		if err != nil {
			return engine.Request{}, err
		}
		parsed = ref.At(0)
	} else if parsed, err = ir.ParseID(id); err != nil {
		return engine.Request{}, err
	}
	req := engine.Request{Type: t, Scope: s, ID: parsed}
	if err := req.Validate(); err != nil {
		return engine.Request{}, err
	}
	return req, nil
}

// parseRequestLine decodes one JSON line. Type defaults to update and
// scope to document.
func parseRequestLine(line []byte) (engine.Request, error) {
	var rl RequestLine
	dec := json.NewDecoder(strings.NewReader(string(line)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rl); err != nil {
		return engine.Request{}, fmt.Errorf("decode request: %w", err)
	}
	if rl.Type == "" {
		rl.Type = "update"
	}
	if rl.Scope == "" {
		rl.Scope = "document"
	}
	return parseRequest(rl.Type, rl.Scope, rl.ID)
}

// openStore opens the database, mapping failures to a command error.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// loadEngineConfig reads the engine configuration, or the defaults when
// path is empty.
func loadEngineConfig(path string) (config.Engine, error) {
	cfg, err := config.LoadEngine(path)
	if err != nil {
		return config.Engine{}, WrapExitError(ExitCommandError, "failed to load engine config", err)
	}
	return cfg, nil
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newFormatter builds the output formatter for a command.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
