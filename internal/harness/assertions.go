package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/degraphmalizer/internal/testutil"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Target   string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Target != "" {
		fmt.Fprintf(&buf, " %s", e.Target)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

func evaluateAssertion(mem *testutil.Memory, a Assertion) error {
	target := fmt.Sprintf("/%s/%s/%s", a.Index, a.Doc, a.Key)
	switch a.Type {
	case AssertTargetExists:
		return assertTargetExists(mem, a, target)
	case AssertTargetAbsent:
		if _, ok := mem.Target(a.Index, a.Doc, a.Key); ok {
			return &AssertionError{Type: a.Type, Target: target, Expected: "no document", Actual: "document exists"}
		}
	case AssertTargetCount:
		if n := mem.TargetCount(); n != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d target documents", a.Count),
				Actual:   fmt.Sprintf("%d target documents", n),
			}
		}
	case AssertTargetVersion:
		d, ok := mem.Target(a.Index, a.Doc, a.Key)
		if !ok {
			return &AssertionError{Type: a.Type, Target: target, Expected: fmt.Sprintf("version %d", a.Version), Actual: "no document"}
		}
		if d.Version != a.Version {
			return &AssertionError{
				Type:     a.Type,
				Target:   target,
				Expected: fmt.Sprintf("version %d", a.Version),
				Actual:   fmt.Sprintf("version %d", d.Version),
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// assertTargetExists checks the target document exists and contains every
// field of a.Expect (subset match).
func assertTargetExists(mem *testutil.Memory, a Assertion, target string) error {
	d, ok := mem.Target(a.Index, a.Doc, a.Key)
	if !ok {
		return &AssertionError{Type: a.Type, Target: target, Expected: "document exists", Actual: "no document"}
	}
	expected, err := toDocument(a.Expect)
	if err != nil {
		return fmt.Errorf("%s %s: %w", a.Type, target, err)
	}
	for key, want := range expected {
		got, exists := d.Document[key]
		if !exists {
			return &AssertionError{
				Type:     a.Type,
				Target:   target,
				Expected: fmt.Sprintf("field %q = %v", key, want),
				Actual:   "field missing",
			}
		}
		if !canonicalEqual(got, want) {
			return &AssertionError{
				Type:     a.Type,
				Target:   target,
				Expected: fmt.Sprintf("field %q = %v", key, want),
				Actual:   fmt.Sprintf("field %q = %v", key, got),
			}
		}
	}
	return nil
}
