package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/degraphmalizer/internal/ir"
	"github.com/roach88/degraphmalizer/internal/trees"
)

// RuntimeError is the failure an action resolves with.
//
// The Code classifies the failure; Cause keeps the original error so callers
// can still match collaborator sentinels with errors.Is, e.g.
// errors.Is(err, ir.ErrWriteRejected).
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// ActionID identifies the failed action.
	ActionID string

	// Node is the identifier of the failing tree node, for node failures.
	Node string

	// Cause is the underlying error.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStoreUnavailable indicates a collaborator store could not be
	// reached, after retries were exhausted.
	ErrCodeStoreUnavailable RuntimeErrorCode = "STORE_UNAVAILABLE"

	// ErrCodeWriteRejected indicates a stale or conflicting write.
	ErrCodeWriteRejected RuntimeErrorCode = "WRITE_REJECTED"

	// ErrCodeConfigurationInvalid indicates unusable type configuration.
	ErrCodeConfigurationInvalid RuntimeErrorCode = "CONFIGURATION_INVALID"

	// ErrCodeNodeComputationFailed indicates a tree node failed to recompute.
	ErrCodeNodeComputationFailed RuntimeErrorCode = "NODE_COMPUTATION_FAILED"

	// ErrCodeLimitExceeded indicates a dependency tree exceeded its limits.
	ErrCodeLimitExceeded RuntimeErrorCode = "LIMIT_EXCEEDED"

	// ErrCodeInvalidRequest indicates a malformed request.
	ErrCodeInvalidRequest RuntimeErrorCode = "INVALID_REQUEST"

	// ErrCodeCancelled indicates the action was cancelled or the engine
	// stopped before it finished.
	ErrCodeCancelled RuntimeErrorCode = "CANCELLED"
)

// ErrStaleSource is returned for a node whose source store holds an older
// revision than the one the request named.
var ErrStaleSource = errors.New("source document is older than requested version")

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Node != "" {
		msg += fmt.Sprintf(" (node=%s)", e.Node)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the RuntimeErrorCode of err, or "" if err is not a
// RuntimeError.
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsNodeError returns true if err reports the failure of a single tree
// node, whether computing it or writing its result.
func IsNodeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Node != ""
}

// IsCancelled returns true if err reports a cancelled action.
func IsCancelled(err error) bool {
	return CodeOf(err) == ErrCodeCancelled
}

// IsRetryable reports whether a failure to build the dependency trees may
// be retried later. Only store unavailability qualifies.
func IsRetryable(err error) bool {
	return ir.IsStoreUnavailable(err)
}

// classify wraps err into a RuntimeError for action failure.
func classify(actionID string, err error) *RuntimeError {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re
	}

	out := &RuntimeError{ActionID: actionID, Cause: err}
	var nodeErr *nodeFailure
	switch {
	case errors.As(err, &nodeErr):
		out.Node = nodeErr.id.String()
		out.Cause = nodeErr.err
		if ir.IsWriteRejected(nodeErr.err) {
			out.Code = ErrCodeWriteRejected
			out.Message = "node write rejected"
		} else {
			out.Code = ErrCodeNodeComputationFailed
			out.Message = "node recomputation failed"
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Code = ErrCodeCancelled
		out.Message = "action cancelled"
	case errors.Is(err, trees.ErrLimitExceeded):
		out.Code = ErrCodeLimitExceeded
		out.Message = "dependency tree too large"
	case ir.IsStoreUnavailable(err):
		out.Code = ErrCodeStoreUnavailable
		out.Message = "store unavailable"
	case ir.IsWriteRejected(err):
		out.Code = ErrCodeWriteRejected
		out.Message = "write rejected"
	case errors.Is(err, ir.ErrConfigurationInvalid):
		out.Code = ErrCodeConfigurationInvalid
		out.Message = "invalid configuration"
	default:
		out.Code = ErrCodeNodeComputationFailed
		out.Message = "degraphmalize failed"
	}
	return out
}

// nodeFailure ties a recompute error to the identifier of its node.
type nodeFailure struct {
	id  ir.ID
	err error
}

func (e *nodeFailure) Error() string {
	return fmt.Sprintf("recompute %s: %v", e.id, e.err)
}

func (e *nodeFailure) Unwrap() error {
	return e.err
}
