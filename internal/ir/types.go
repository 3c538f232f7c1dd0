package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Document is a JSON object. Numbers are kept as json.Number so documents
// round-trip without float conversion.
type Document map[string]any

// DecodeDocument parses a JSON object into a Document.
func DecodeDocument(b []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode document: not a JSON object")
	}
	return doc, nil
}

// SourceDocument is a document read from a source store at a revision.
type SourceDocument struct {
	ID   ID       `json:"id"`
	Body Document `json:"body"`
}

// TypeConfig declares how documents of one source (index, type) are written
// into one target (index, type). One source type may have several TypeConfigs.
// TypeConfig values are read-only once handed to the engine.
type TypeConfig struct {
	// Name is the target type name as declared in configuration.
	Name string `json:"name"`

	SourceIndex string `json:"source_index"`
	SourceType  string `json:"source_type"`
	TargetIndex string `json:"target_index"`
	TargetType  string `json:"target_type"`

	Mapping Mapping `json:"mapping"`
}

// String renders the config as /source/type --> /target/type.
func (c TypeConfig) String() string {
	return fmt.Sprintf("/%s/%s --> /%s/%s", c.SourceIndex, c.SourceType, c.TargetIndex, c.TargetType)
}

// Mapping is the transform applied to a source document before it is
// written to the target index.
//
// The rule set is intentionally small: field projection, renaming and
// static fields. Apply never mutates its input.
type Mapping struct {
	// Fields lists the top-level fields to keep. Empty keeps everything.
	Fields []string `json:"fields,omitempty"`

	// Rename maps source field names to target field names.
	Rename map[string]string `json:"rename,omitempty"`

	// Static fields are set on every target document, overriding source
	// fields of the same name.
	Static map[string]any `json:"static,omitempty"`
}

// Apply produces the target document for src.
func (m Mapping) Apply(src Document) Document {
	out := make(Document, len(src)+len(m.Static))
	for k, v := range src {
		if len(m.Fields) > 0 && !slices.Contains(m.Fields, k) {
			continue
		}
		if renamed, ok := m.Rename[k]; ok && renamed != "" {
			k = renamed
		}
		out[k] = v
	}
	for k, v := range m.Static {
		out[k] = v
	}
	return out
}
