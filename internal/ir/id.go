package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref names a document in a source store without pinning a revision.
// Graph traversal and cycle guarding compare Refs, not IDs, so that two
// revisions of the same document are recognised as the same node.
type Ref struct {
	Index string `json:"index"`
	Type  string `json:"type"`
	Key   string `json:"key"`
}

// ID identifies a single revision of a source document.
//
// Two IDs are equal iff Index, Type, Key and Version all match, so ID is
// safe to use as a map key for deduplication. Version is the monotonic
// revision number assigned by the source store; 0 means "unknown".
type ID struct {
	Index   string `json:"index"`
	Type    string `json:"type"`
	Key     string `json:"key"`
	Version int64  `json:"version"`
}

// NewID creates an ID.
func NewID(index, typ, key string, version int64) ID {
	return ID{Index: index, Type: typ, Key: key, Version: version}
}

// Ref drops the version.
func (id ID) Ref() Ref {
	return Ref{Index: id.Index, Type: id.Type, Key: id.Key}
}

// WithVersion returns a copy of id at the given version.
func (id ID) WithVersion(version int64) ID {
	id.Version = version
	return id
}

// SameDocument reports whether both IDs name the same document,
// regardless of version.
func (id ID) SameDocument(other ID) bool {
	return id.Ref() == other.Ref()
}

// IsStaleFor reports whether id names an older revision of the same
// document than other. Unknown versions (0) are never stale.
func (id ID) IsStaleFor(other ID) bool {
	if !id.SameDocument(other) || id.Version == 0 || other.Version == 0 {
		return false
	}
	return id.Version < other.Version
}

// String renders the ID as /index/type/key/version.
func (id ID) String() string {
	return fmt.Sprintf("/%s/%s/%s/%d", id.Index, id.Type, id.Key, id.Version)
}

// At pins a Ref to a revision.
func (r Ref) At(version int64) ID {
	return ID{Index: r.Index, Type: r.Type, Key: r.Key, Version: version}
}

// String renders the Ref as /index/type/key, omitting trailing empty parts.
func (r Ref) String() string {
	switch {
	case r.Type == "":
		return "/" + r.Index
	case r.Key == "":
		return "/" + r.Index + "/" + r.Type
	default:
		return "/" + r.Index + "/" + r.Type + "/" + r.Key
	}
}

// ParseRef parses /index, /index/type or /index/type/key.
func ParseRef(s string) (Ref, error) {
	parts, err := splitPath(s, 3)
	if err != nil {
		return Ref{}, fmt.Errorf("parse ref %q: %w", s, err)
	}
	var r Ref
	r.Index = parts[0]
	if len(parts) > 1 {
		r.Type = parts[1]
	}
	if len(parts) > 2 {
		r.Key = parts[2]
	}
	return r, nil
}

// ParseID parses /index/type/key/version. The version may be omitted, in
// which case it is 0. An index-only path (/index) is accepted for
// index-scoped requests.
func ParseID(s string) (ID, error) {
	parts, err := splitPath(s, 4)
	if err != nil {
		return ID{}, fmt.Errorf("parse id %q: %w", s, err)
	}
	var id ID
	id.Index = parts[0]
	if len(parts) > 1 {
		id.Type = parts[1]
	}
	if len(parts) > 2 {
		id.Key = parts[2]
	}
	if len(parts) == 2 {
		return ID{}, fmt.Errorf("parse id %q: key is required when type is given", s)
	}
	if len(parts) == 4 {
		v, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil || v < 0 {
			return ID{}, fmt.Errorf("parse id %q: invalid version %q", s, parts[3])
		}
		id.Version = v
	}
	return id, nil
}

func splitPath(s string, max int) ([]string, error) {
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("must start with /")
	}
	parts := strings.Split(strings.TrimSuffix(s[1:], "/"), "/")
	if len(parts) > max {
		return nil, fmt.Errorf("too many segments (max %d)", max)
	}
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("segment %d is empty", i+1)
		}
	}
	return parts, nil
}

// Edge records that To depends on From: a change to From recomputes To.
type Edge struct {
	From Ref `json:"from"`
	To   Ref `json:"to"`
}
