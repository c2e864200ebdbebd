package staged

import (
	"context"

	"github.com/sgqa/groundgen/internal/graph"
	"github.com/sgqa/groundgen/internal/stages"
)

// ActionSet partitions mutation operators the exhaustive controller
// applies: knowledge-base-dependent restrict and expand sets, plus actions
// that need no knowledge-base involvement.
type ActionSet struct {
	Restrict   []stages.Action
	Expand     []stages.Action
	NonLinking []stages.Action
}

// DefaultActions is the full operator inventory.
func DefaultActions() ActionSet {
	return ActionSet{
		Restrict:   stages.RestrictActions(),
		Expand:     stages.ExpandActions(),
		NonLinking: stages.NonLinkingActions(),
	}
}

// GenerateWithoutGold enumerates every structural variant of the
// ungrounded graph reachable through the action set, keeps the ones that
// exist in the knowledge base, and grounds them subject to the relation
// whitelist. No gold answers are involved; structural validity and
// whitelist membership are the only acceptance criteria.
func (gen *Generator) GenerateWithoutGold(ctx context.Context, ungrounded *graph.Graph, actions ActionSet) ([]*graph.Graph, error) {
	pool := []*graph.Graph{ungrounded.Copy()}
	var generated []*graph.Graph
	iterations := 0

	for len(pool) > 0 {
		if gen.opts.MaxIterations > 0 && iterations >= gen.opts.MaxIterations {
			gen.log.Warn("iteration budget exhausted", "iterations", iterations)
			break
		}
		iterations++

		g := pool[0]
		pool = pool[1:]

		suggested := applyActions(actions.Restrict, g)
		var expanded []*graph.Graph
		for _, s := range suggested {
			expanded = append(expanded, applyActions(actions.Expand, s)...)
		}
		suggested = append(suggested, expanded...)
		pool = append(pool, suggested...)

		// Labeling mutates the shared graphs, so pooled copies carry their
		// labels into the next round.
		for _, s := range suggested {
			if _, err := gen.AddCanonicalLabels(ctx, s); err != nil {
				return nil, err
			}
		}

		chosen := suggested
		for _, s := range suggested {
			chosen = append(chosen, applyActions(actions.NonLinking, s)...)
		}
		generated = append(generated, chosen...)
	}
	gen.log.Debug("structural enumeration done", "iterations", iterations, "generated", len(generated))

	kept := generated[:0:0]
	for _, g := range generated {
		if gen.verifyGrounding(ctx, g) {
			kept = append(kept, g)
		}
	}
	gen.log.Debug("existence-checked", "kept", len(kept))

	// Mentions only drive mutation and linking; grounding does not need them.
	for _, g := range kept {
		g.Entities = nil
	}

	return gen.groundWithoutGold(ctx, kept)
}

func applyActions(actions []stages.Action, g *graph.Graph) []*graph.Graph {
	var out []*graph.Graph
	for _, f := range actions {
		out = append(out, f(g)...)
	}
	return out
}

// groundWithoutGold grounds the structural candidates (with the
// approximation fallback) and keeps only graphs whose every relation passes
// the whitelist. The request cache is cleared afterwards so independent
// runs do not grow it without bound.
func (gen *Generator) groundWithoutGold(ctx context.Context, input []*graph.Graph) ([]*graph.Graph, error) {
	var grounded []*graph.Graph
	for _, s := range input {
		found, err := gen.findGroundingsWithFallback(ctx, s)
		if err != nil {
			return nil, err
		}
		grounded = append(grounded, found...)
	}

	kept := grounded[:0:0]
	for _, g := range grounded {
		ok := true
		for _, e := range g.EdgeSet {
			if !gen.whitelist.Allows(e.KbID) {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, g)
		}
	}
	gen.log.Debug("whitelist-filtered groundings", "total", len(grounded), "kept", len(kept))

	if gen.cache != nil {
		if err := gen.cache.Clear(ctx); err != nil {
			gen.log.Warn("cache clear failed (continuing)", "error", err)
		}
	}
	return kept, nil
}
