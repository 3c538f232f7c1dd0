package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// Scenario is one degraphmalizer test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is the CUE type configuration.
	Config string `yaml:"config"`

	// Documents are stored before any request runs, in order.
	Documents []DocumentStep `yaml:"documents"`

	// Edges are recorded before any request runs.
	Edges []EdgeStep `yaml:"edges,omitempty"`

	// Faults are injected into the in-memory stores before the requests.
	Faults []FaultStep `yaml:"faults,omitempty"`

	// Requests run one after the other; each waits for the previous one.
	Requests []RequestStep `yaml:"requests"`

	// Assertions validate the final target indexes.
	Assertions []Assertion `yaml:"assertions"`
}

// DocumentStep stores a source document. Remove deletes it instead.
type DocumentStep struct {
	Index  string         `yaml:"index"`
	Type   string         `yaml:"type"`
	Key    string         `yaml:"key"`
	Body   map[string]any `yaml:"body,omitempty"`
	Remove bool           `yaml:"remove,omitempty"`
}

// EdgeStep records that To depends on From. Both are /index/type/key refs.
type EdgeStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// FaultStep makes a store operation fail.
type FaultStep struct {
	// Op is a testutil Op* name, e.g. "dependents_of" or "upsert".
	Op    string `yaml:"op"`
	Key   string `yaml:"key,omitempty"`
	Times int    `yaml:"times,omitempty"`

	// Error is "store_unavailable", "write_rejected" or "not_found".
	Error string `yaml:"error"`
}

// RequestStep submits one request and checks its outcome.
type RequestStep struct {
	Type  string `yaml:"type"`
	Scope string `yaml:"scope"`

	// ID is /index/type/key[/version] for document scope, /index or
	// /index/type for index scope.
	ID string `yaml:"id"`

	Expect ExpectClause `yaml:"expect"`
}

// ExpectClause specifies the expected action outcome.
type ExpectClause struct {
	Success bool `yaml:"success"`

	// Code is the expected error code of a failed action.
	Code string `yaml:"code,omitempty"`

	// Affected lists the expected affected IDs in order. Nil skips the check.
	Affected []string `yaml:"affected,omitempty"`
}

// Assertion validates the final target indexes.
type Assertion struct {
	// Type specifies the assertion type:
	// - "target_exists": the target document exists, Expect is a subset of it
	// - "target_absent": the target document does not exist
	// - "target_count": the target indexes hold Count documents in total
	// - "target_version": the target document has Version
	Type string `yaml:"type"`

	Index string `yaml:"index,omitempty"`
	Doc   string `yaml:"doc,omitempty"`
	Key   string `yaml:"key,omitempty"`

	Expect  map[string]any `yaml:"expect,omitempty"`
	Count   int            `yaml:"count,omitempty"`
	Version int64          `yaml:"version,omitempty"`
}

// Assertion type constants.
const (
	AssertTargetExists  = "target_exists"
	AssertTargetAbsent  = "target_absent"
	AssertTargetCount   = "target_count"
	AssertTargetVersion = "target_version"
)

// Fault error names.
var faultErrors = map[string]error{
	"store_unavailable": ir.ErrStoreUnavailable,
	"write_rejected":    ir.ErrWriteRejected,
	"not_found":         ir.ErrNotFound,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Requests) == 0 {
		return fmt.Errorf("requests list is required and must be non-empty")
	}

	for i, d := range s.Documents {
		if d.Index == "" || d.Type == "" || d.Key == "" {
			return fmt.Errorf("documents[%d]: index, type and key are required", i)
		}
		if _, err := toDocument(d.Body); err != nil {
			return fmt.Errorf("documents[%d]: %w", i, err)
		}
	}
	for i, e := range s.Edges {
		if _, err := ir.ParseRef(e.From); err != nil {
			return fmt.Errorf("edges[%d].from: %w", i, err)
		}
		if _, err := ir.ParseRef(e.To); err != nil {
			return fmt.Errorf("edges[%d].to: %w", i, err)
		}
	}
	for i, f := range s.Faults {
		if f.Op == "" {
			return fmt.Errorf("faults[%d]: op is required", i)
		}
		if _, ok := faultErrors[f.Error]; !ok {
			return fmt.Errorf("faults[%d]: unknown error %q", i, f.Error)
		}
	}
	for i, r := range s.Requests {
		if _, err := r.request(); err != nil {
			return fmt.Errorf("requests[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertTargetExists, AssertTargetAbsent, AssertTargetVersion:
		if a.Index == "" || a.Doc == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: %s requires index, doc and key", index, a.Type)
		}
		if a.Type == AssertTargetVersion && a.Version <= 0 {
			return fmt.Errorf("assertions[%d]: target_version requires a positive version", index)
		}
	case AssertTargetCount:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}

// toDocument converts a YAML mapping into a Document with json.Number
// numbers.
func toDocument(m map[string]any) (ir.Document, error) {
	if m == nil {
		return ir.Document{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return ir.DecodeDocument(raw)
}
