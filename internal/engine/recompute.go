package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/degraphmalizer/internal/ir"
	"github.com/roach88/degraphmalizer/internal/trees"
)

// recompute returns the per-node function for tree number treeIdx of a.
func (e *Degraphmalizr) recompute(a *Action, treeIdx int) trees.Func[ir.ID, NodeResult] {
	return func(ctx context.Context, node int, id ir.ID) (NodeResult, error) {
		ra := RecomputeAction{
			ActionID:  a.id,
			Tree:      treeIdx,
			Node:      node,
			ID:        id,
			Operation: OpUpsert,
			Configs:   e.configsFor(a.req, id),
		}
		// The requested node of a DELETE loses its targets; its dependents
		// are recomputed from their own, still existing, sources.
		if a.req.Type == ir.RequestDelete && node == 0 {
			ra.Operation = OpDelete
		}

		a.status.RecomputeStarted(ra)
		res, err := e.recomputeNode(ctx, a, ra)
		a.status.RecomputeComplete(RecomputeResult{RecomputeAction: ra, Result: res, Err: err})

		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		nodesRecomputed.WithLabelValues(string(res.Operation), outcome).Inc()

		if err != nil {
			return NodeResult{}, &nodeFailure{id: id, err: err}
		}
		return res, nil
	}
}

func (e *Degraphmalizr) recomputeNode(ctx context.Context, a *Action, ra RecomputeAction) (NodeResult, error) {
	ctx, span := tracer.Start(ctx, "degraphmalizer.recompute",
		trace.WithAttributes(
			attribute.String("action_id", ra.ActionID),
			attribute.String("node", ra.ID.String()),
		),
	)
	defer span.End()

	res := NodeResult{ID: ra.ID, Operation: ra.Operation}
	if ra.Operation == OpDelete {
		return e.deleteTargets(ctx, res, ra.Configs)
	}

	src, err := e.source.Fetch(ctx, ra.ID.Ref())
	if ir.IsNotFound(err) {
		slog.Debug("source document missing, deleting targets",
			"action_id", ra.ActionID,
			"node", ra.ID.String())
		res.Operation = OpDelete
		return e.deleteTargets(ctx, res, ra.Configs)
	}
	if err != nil {
		return res, fmt.Errorf("fetch %s: %w", ra.ID.Ref(), err)
	}
	if src.ID.IsStaleFor(ra.ID) {
		return res, fmt.Errorf("%w: %s has version %d, requested %d",
			ErrStaleSource, ra.ID.Ref(), src.ID.Version, ra.ID.Version)
	}
	res.ID = src.ID

	if a.req.Scope == ir.ScopeDocument && ra.Node == 0 {
		a.setDocument(src.Body)
	}

	if len(ra.Configs) == 0 {
		res.Operation = OpSkip
		return res, nil
	}

	for _, cfg := range ra.Configs {
		doc := cfg.Mapping.Apply(src.Body)
		hash, err := ir.DocumentHash(doc)
		if err != nil {
			return res, fmt.Errorf("map %s for %s: %w", ra.ID.Ref(), cfg, err)
		}
		if err := e.index.Upsert(ctx, cfg.TargetIndex, cfg.TargetType, src.ID.Key, src.ID.Version, doc); err != nil {
			return res, fmt.Errorf("upsert /%s/%s/%s: %w", cfg.TargetIndex, cfg.TargetType, src.ID.Key, err)
		}
		res.Targets = append(res.Targets, Target{
			Index: cfg.TargetIndex,
			Type:  cfg.TargetType,
			Key:   src.ID.Key,
			Hash:  hash,
		})
	}
	return res, nil
}

func (e *Degraphmalizr) deleteTargets(ctx context.Context, res NodeResult, configs []ir.TypeConfig) (NodeResult, error) {
	for _, cfg := range configs {
		if err := e.index.Delete(ctx, cfg.TargetIndex, cfg.TargetType, res.ID.Key); err != nil {
			return res, fmt.Errorf("delete /%s/%s/%s: %w", cfg.TargetIndex, cfg.TargetType, res.ID.Key, err)
		}
		res.Targets = append(res.Targets, Target{
			Index: cfg.TargetIndex,
			Type:  cfg.TargetType,
			Key:   res.ID.Key,
		})
	}
	return res, nil
}

// configsFor returns the type configurations for id: the request's own
// configs for the requested source type, the provider's otherwise.
func (e *Degraphmalizr) configsFor(req Request, id ir.ID) []ir.TypeConfig {
	if len(req.Configs) > 0 && id.Index == req.ID.Index && id.Type == req.ID.Type {
		return req.Configs
	}
	return e.configs.ConfigurationsFor(id.Index, id.Type)
}

func sortBySeq(actions []*Action) {
	slices.SortFunc(actions, func(a, b *Action) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
}
