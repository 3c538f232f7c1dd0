// Package fixtures provisions target indexes from a type configuration and
// triggers full rebuilds of the configured source indexes.
package fixtures

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/degraphmalizer/internal/config"
	"github.com/roach88/degraphmalizer/internal/engine"
	"github.com/roach88/degraphmalizer/internal/ir"
)

// Default index settings, overridden by settings declared in configuration.
const (
	DefaultShards   = 2
	DefaultReplicas = 1
)

// Submitter accepts degraphmalize requests. *engine.Degraphmalizr
// implements it.
type Submitter interface {
	Submit(ctx context.Context, req engine.Request, status engine.Status) *engine.Action
}

// Settings returns the settings used to create ix.
func Settings(ix config.Index) map[string]any {
	settings := map[string]any{
		"number_of_shards":   DefaultShards,
		"number_of_replicas": DefaultReplicas,
	}
	maps.Copy(settings, ix.Settings)
	return settings
}

// Mappings returns the per-type search mappings of ix, keyed by target
// type. Types without a declared mapping are omitted.
func Mappings(ix config.Index) map[string]any {
	mappings := map[string]any{}
	for _, name := range ix.TypeNames() {
		if m := ix.Types[name].Mapping; m != nil {
			mappings[name] = map[string]any(m)
		}
	}
	return mappings
}

// CreateTargetIndexes creates every target index of cfg that does not exist
// yet and returns the names of the indexes it created.
func CreateTargetIndexes(ctx context.Context, cfg *config.Configuration, store engine.IndexStore) ([]string, error) {
	var created []string
	for _, ix := range cfg.Indices() {
		ok, err := store.CreateIndex(ctx, ix.Name, Settings(ix), Mappings(ix))
		if err != nil {
			return created, fmt.Errorf("create index %s: %w", ix.Name, err)
		}
		if !ok {
			slog.Debug("target index exists", "index", ix.Name)
			continue
		}
		slog.Info("target index created",
			"index", ix.Name,
			"types", len(ix.Types),
		)
		created = append(created, ix.Name)
	}
	return created, nil
}

// Redegraphmalize submits an UPDATE request of index scope for every
// source index read by cfg and returns the submitted actions in source
// index order.
func Redegraphmalize(ctx context.Context, cfg *config.Configuration, sub Submitter, status engine.Status) []*engine.Action {
	var actions []*engine.Action
	for _, index := range cfg.SourceIndexNames() {
		req := engine.Request{
			Type:  ir.RequestUpdate,
			Scope: ir.ScopeIndex,
			ID:    ir.ID{Index: index},
		}
		a := sub.Submit(ctx, req, status)
		slog.Info("redegraphmalize submitted",
			"index", index,
			"action_id", a.ID(),
		)
		actions = append(actions, a)
	}
	return actions
}
