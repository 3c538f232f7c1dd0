package engine

import (
	"context"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// GraphStore answers dependency queries about the source graph.
//
// Failures to reach the store must wrap ir.ErrStoreUnavailable; the engine
// retries tree construction only for those.
type GraphStore interface {
	// DependentsOf returns, in a stable order, the documents whose target
	// content depends on id.
	DependentsOf(ctx context.Context, id ir.ID) ([]ir.ID, error)

	// AllDocuments returns every document currently stored in index.
	AllDocuments(ctx context.Context, index string) ([]ir.ID, error)
}

// SourceStore reads the current revision of source documents.
type SourceStore interface {
	// Fetch returns the current revision of ref, or an error wrapping
	// ir.ErrNotFound if the document does not exist.
	Fetch(ctx context.Context, ref ir.Ref) (ir.SourceDocument, error)
}

// IndexStore writes target documents.
//
// Upsert is versioned: a write carrying a lower version than the stored
// target document must fail with ir.ErrWriteRejected. Writing the same
// version again overwrites, which makes resubmission idempotent.
type IndexStore interface {
	Upsert(ctx context.Context, index, typ, key string, version int64, doc ir.Document) error
	Delete(ctx context.Context, index, typ, key string) error

	// CreateIndex provisions a target index. It reports false if the index
	// already existed.
	CreateIndex(ctx context.Context, name string, settings, mappings map[string]any) (bool, error)
}

// ConfigProvider returns the type configurations of a source type.
// Implementations may hot-reload, but must always return a complete
// snapshot.
type ConfigProvider interface {
	ConfigurationsFor(index, typ string) []ir.TypeConfig
}

// StaticConfigs is a fixed ConfigProvider.
type StaticConfigs []ir.TypeConfig

// ConfigurationsFor returns the configs whose source matches index and typ.
func (s StaticConfigs) ConfigurationsFor(index, typ string) []ir.TypeConfig {
	var out []ir.TypeConfig
	for _, c := range s {
		if c.SourceIndex == index && c.SourceType == typ {
			out = append(out, c)
		}
	}
	return out
}
