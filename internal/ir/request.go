package ir

import (
	"fmt"
	"strings"
)

// RequestType declares the intent of a degraphmalize request.
type RequestType int

const (
	// RequestUpdate recomputes the affected documents and upserts them.
	RequestUpdate RequestType = iota + 1
	// RequestDelete removes the target documents of the requested node and
	// recomputes its dependents.
	RequestDelete
)

// RequestScope selects which documents a request touches.
type RequestScope int

const (
	// ScopeDocument touches the named document and its dependents.
	ScopeDocument RequestScope = iota + 1
	// ScopeIndex touches every document currently in a source index.
	ScopeIndex
)

func (t RequestType) String() string {
	switch t {
	case RequestUpdate:
		return "update"
	case RequestDelete:
		return "delete"
	default:
		return fmt.Sprintf("request_type(%d)", int(t))
	}
}

// ParseRequestType parses "update" or "delete", case-insensitively.
func ParseRequestType(s string) (RequestType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "update":
		return RequestUpdate, nil
	case "delete":
		return RequestDelete, nil
	default:
		return 0, fmt.Errorf("unknown request type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t RequestType) MarshalText() ([]byte, error) {
	if t != RequestUpdate && t != RequestDelete {
		return nil, fmt.Errorf("invalid request type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *RequestType) UnmarshalText(b []byte) error {
	v, err := ParseRequestType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (s RequestScope) String() string {
	switch s {
	case ScopeDocument:
		return "document"
	case ScopeIndex:
		return "index"
	default:
		return fmt.Sprintf("request_scope(%d)", int(s))
	}
}

// ParseRequestScope parses "document" or "index", case-insensitively.
func ParseRequestScope(s string) (RequestScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "document":
		return ScopeDocument, nil
	case "index":
		return ScopeIndex, nil
	default:
		return 0, fmt.Errorf("unknown request scope %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s RequestScope) MarshalText() ([]byte, error) {
	if s != ScopeDocument && s != ScopeIndex {
		return nil, fmt.Errorf("invalid request scope %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RequestScope) UnmarshalText(b []byte) error {
	v, err := ParseRequestScope(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
