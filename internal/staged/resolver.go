package staged

import (
	"context"
	"errors"

	"github.com/sgqa/groundgen/internal/graph"
	"github.com/sgqa/groundgen/internal/kb"
)

// vStructureTriggers are surface forms whose presence, with a single free
// relation left, indicates the relation may bridge through an intermediate
// entity (an agent-role reading) rather than hold directly.
var vStructureTriggers = []string{"play", "played", "plays"}

// ApplyGrounding returns a copy of g with every binding applied to the edge
// at its index. Slots the grounding does not mention keep their current
// values; the input graph is never mutated. Only the first relation binding
// per edge wins, direct before reverse before v-structure.
func ApplyGrounding(g *graph.Graph, grounding kb.Grounding) *graph.Graph {
	out := g.Copy()
	relBound := make(map[int]bool)
	for _, b := range grounding {
		if b.Index < 0 || b.Index >= len(out.EdgeSet) {
			continue
		}
		edge := &out.EdgeSet[b.Index]
		switch b.Kind {
		case kb.BindObject:
			edge.RightKbID = b.ID
		case kb.BindHop:
			if edge.HopUp != "" {
				edge.HopUp = b.ID
			} else {
				edge.HopDown = b.ID
			}
		case kb.BindDirect, kb.BindReverse, kb.BindVStructure:
			if relBound[b.Index] {
				continue
			}
			relBound[b.Index] = true
			edge.KbID = b.ID
			switch b.Kind {
			case kb.BindDirect:
				edge.Type = graph.Direct
			case kb.BindReverse:
				edge.Type = graph.Reverse
			default:
				edge.Type = graph.VStructure
			}
		}
	}
	return out
}

// findGroundings retrieves the possible groundings of g. When no ungrounded
// edge carries a hop the backend answers in one joint query; otherwise one
// query per direct/reverse assignment over the ungrounded edges. With
// exactly one free relation and a trigger token present, an extra
// v-structure query is appended.
func (gen *Generator) findGroundings(ctx context.Context, g *graph.Graph) ([]kb.Grounding, error) {
	var results []kb.Grounding
	n := g.UngroundedCount()
	if !g.HasUngroundedHop() {
		found, err := gen.kb.QueryGroundings(ctx, g, kb.QueryOptions{UseCache: true})
		if err != nil {
			return nil, err
		}
		results = append(results, found...)
	} else {
		for _, combo := range typeCombos(n) {
			t := withUngroundedTypes(g, combo)
			found, err := gen.kb.QueryGroundings(ctx, t, kb.QueryOptions{UseCache: true})
			if err != nil {
				return nil, err
			}
			results = append(results, found...)
		}
	}
	if n == 1 && g.HasToken(vStructureTriggers...) {
		t := withUngroundedTypes(g, []graph.EdgeType{graph.VStructure})
		found, err := gen.kb.QueryGroundings(ctx, t, kb.QueryOptions{UseCache: true})
		if err != nil {
			return nil, err
		}
		results = append(results, found...)
	}
	return results, nil
}

// typeCombos enumerates the direct/reverse product over n free edges.
func typeCombos(n int) [][]graph.EdgeType {
	combos := [][]graph.EdgeType{nil}
	for i := 0; i < n; i++ {
		next := make([][]graph.EdgeType, 0, len(combos)*2)
		for _, c := range combos {
			for _, t := range []graph.EdgeType{graph.Direct, graph.Reverse} {
				next = append(next, append(append([]graph.EdgeType(nil), c...), t))
			}
		}
		combos = next
	}
	return combos
}

// withUngroundedTypes copies g and assigns the given types to its
// ungrounded edges in order.
func withUngroundedTypes(g *graph.Graph, types []graph.EdgeType) *graph.Graph {
	out := g.Copy()
	j := 0
	for i := range out.EdgeSet {
		if out.EdgeSet[i].Grounded() {
			continue
		}
		if j >= len(types) {
			break
		}
		out.EdgeSet[i].Type = types[j]
		j++
	}
	return out
}

// approximateGroundings grounds each ungrounded edge independently with a
// single-edge query, keeps only whitelist-passing bindings, and returns the
// Cartesian product across edges as materialized graphs. Inter-edge
// constraints the backend would enforce jointly are ignored, which is why
// callers re-verify the results.
func (gen *Generator) approximateGroundings(ctx context.Context, g *graph.Graph) ([]*graph.Graph, error) {
	perEdge := make([][]graph.Edge, 0, len(g.EdgeSet))
	for _, edge := range g.EdgeSet {
		if edge.Grounded() {
			perEdge = append(perEdge, []graph.Edge{edge})
			continue
		}
		single := &graph.Graph{EdgeSet: []graph.Edge{edge}}
		groundings, err := gen.kb.QueryGroundings(ctx, single, kb.QueryOptions{UseCache: true})
		if err != nil {
			return nil, err
		}
		var candidates []graph.Edge
		for _, grounding := range groundings {
			grounded := ApplyGrounding(single, grounding).EdgeSet[0]
			if grounded.KbID != "" && gen.whitelist.Allows(grounded.KbID) {
				candidates = append(candidates, grounded)
			}
		}
		perEdge = append(perEdge, candidates)
	}

	out := []*graph.Graph{}
	edgeSets := [][]graph.Edge{{}}
	for _, candidates := range perEdge {
		next := make([][]graph.Edge, 0, len(edgeSets)*len(candidates))
		for _, prefix := range edgeSets {
			for _, c := range candidates {
				next = append(next, append(append([]graph.Edge(nil), prefix...), c))
			}
		}
		edgeSets = next
	}
	for _, es := range edgeSets {
		c := g.Copy()
		c.EdgeSet = es
		out = append(out, c)
	}
	return out, nil
}

// findGroundingsWithFallback retrieves grounded graphs across the full
// direct/reverse product, falling back to per-edge approximation (verified
// with existence checks) whenever the backend declines a joint query.
// Candidates whose approximation also fails are dropped silently.
func (gen *Generator) findGroundingsWithFallback(ctx context.Context, g *graph.Graph) ([]*graph.Graph, error) {
	var out []*graph.Graph
	for _, combo := range typeCombos(g.UngroundedCount()) {
		t := withUngroundedTypes(g, combo)
		groundings, err := gen.kb.QueryGroundings(ctx, t, kb.QueryOptions{UseCache: false})
		if err != nil {
			if !errors.Is(err, kb.ErrUnavailable) {
				return nil, err
			}
			approximated, err := gen.approximateGroundings(ctx, t)
			if err != nil {
				gen.log.Debug("approximation failed, dropping candidate", "error", err)
				continue
			}
			for _, a := range approximated {
				if gen.verifyGrounding(ctx, a) {
					out = append(out, a)
				}
			}
			continue
		}
		for _, grounding := range groundings {
			out = append(out, ApplyGrounding(t, grounding))
		}
	}
	return out, nil
}

// verifyGrounding reports whether the (possibly partially grounded) graph
// exists in the knowledge base. Failures count as non-existence.
func (gen *Generator) verifyGrounding(ctx context.Context, g *graph.Graph) bool {
	exists, err := gen.kb.Ask(ctx, g)
	if err != nil {
		gen.log.Debug("existence check failed", "error", err)
		return false
	}
	return exists
}
