package engine

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/degraphmalizer/internal/ir"
	"github.com/roach88/degraphmalizer/internal/trees"
)

// Operation is what a node recompute did to its target documents.
type Operation string

const (
	// OpUpsert wrote the mapped source document to every target.
	OpUpsert Operation = "upsert"
	// OpDelete removed the node's target documents.
	OpDelete Operation = "delete"
	// OpSkip means no type configuration applied to the node.
	OpSkip Operation = "skip"
)

// Target is one target document written or deleted by a node.
type Target struct {
	Index string `json:"index"`
	Type  string `json:"type"`
	Key   string `json:"key"`

	// Hash is the content hash of the upserted document; empty for deletes.
	Hash string `json:"hash,omitempty"`
}

// NodeResult is the recomputed artifact of one dependency tree node.
type NodeResult struct {
	// ID is the source revision that was read, or the requested ID when
	// nothing was read.
	ID        ir.ID     `json:"id"`
	Operation Operation `json:"operation"`
	Targets   []Target  `json:"targets"`
}

func (n NodeResult) document() map[string]any {
	targets := make([]any, len(n.Targets))
	for i, t := range n.Targets {
		m := map[string]any{
			"index": t.Index,
			"type":  t.Type,
			"key":   t.Key,
		}
		if t.Hash != "" {
			m["hash"] = t.Hash
		}
		targets[i] = m
	}
	return map[string]any{
		"id":        n.ID.String(),
		"operation": string(n.Operation),
		"targets":   targets,
	}
}

// Result is the aggregate outcome of an action.
type Result struct {
	ActionID string
	Request  Request
	Success  bool

	// Err is the cause of failure, a *RuntimeError. Nil on success.
	Err error

	// Trees holds one result tree per dependency tree (one for document
	// scope, one per source document for index scope). Empty on failure.
	Trees []*trees.Tree[NodeResult]

	// Attempts is the number of tree construction attempts made.
	Attempts int

	// FollowerOf is set when the action was collapsed into another pending
	// action with the same request key and shares its outcome.
	FollowerOf string
}

// Affected lists the identifiers of every recomputed node, tree by tree in
// breadth-first order. A document reached through several branches is
// listed once per branch.
func (r *Result) Affected() []ir.ID {
	var out []ir.ID
	for _, t := range r.Trees {
		t.Walk(func(_ int, n NodeResult) bool {
			out = append(out, n.ID)
			return true
		})
	}
	return out
}

// Document renders the result as the aggregate result document:
// success flag, request, affected identifiers and the per-node result trees.
func (r *Result) Document() (ir.Document, error) {
	affected := r.Affected()
	ids := make([]any, len(affected))
	for i, id := range affected {
		ids[i] = id.String()
	}

	results := make([]any, len(r.Trees))
	for i, t := range r.Trees {
		raw, err := trees.Encode(t, func(n NodeResult) ([]byte, error) {
			return ir.MarshalCanonical(n.document())
		})
		if err != nil {
			return nil, fmt.Errorf("encode result tree %d: %w", i, err)
		}
		results[i] = json.RawMessage(raw)
	}

	doc := ir.Document{
		"success":  r.Success,
		"action":   r.ActionID,
		"type":     r.Request.Type.String(),
		"scope":    r.Request.Scope.String(),
		"id":       r.requestID(),
		"affected": ids,
		"results":  results,
		"attempts": int64(r.Attempts),
	}
	if r.FollowerOf != "" {
		doc["follower_of"] = r.FollowerOf
	}
	if r.Err != nil {
		doc["error"] = r.Err.Error()
		if code := CodeOf(r.Err); code != "" {
			doc["code"] = string(code)
		}
	}
	return doc, nil
}

func (r *Result) requestID() string {
	if r.Request.Scope == ir.ScopeIndex {
		return r.Request.ID.Ref().String()
	}
	return r.Request.ID.String()
}

// MarshalJSON renders Document as canonical JSON.
func (r *Result) MarshalJSON() ([]byte, error) {
	doc, err := r.Document()
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(doc)
}

// followedBy derives the result of a follower action from its leader's.
func (r *Result) followedBy(f *Action) *Result {
	out := *r
	out.ActionID = f.id
	out.Request = f.req
	out.FollowerOf = r.ActionID
	if re, ok := r.Err.(*RuntimeError); ok {
		cp := *re
		cp.ActionID = f.id
		out.Err = &cp
	}
	return &out
}
