// Package stages provides the structural mutation operators the search
// controllers apply: restrict narrows a candidate by attaching a
// constraining edge, expand broadens one by requesting a hop relation.
// The controllers treat actions as opaque generators of candidates.
package stages

import "github.com/sgqa/groundgen/internal/graph"

// Action generates structural candidates from a graph. Actions never
// mutate their input.
type Action func(*graph.Graph) []*graph.Graph

// RestrictActions are the knowledge-base-dependent narrowing operators.
func RestrictActions() []Action {
	return []Action{AddEntityEdge}
}

// ExpandActions are the knowledge-base-dependent broadening operators.
func ExpandActions() []Action {
	return []Action{AddHop}
}

// NonLinkingActions apply without any knowledge-base involvement.
func NonLinkingActions() []Action {
	return []Action{AddYearEdge}
}

// KBActions is the default knowledge-base-dependent action set.
func KBActions() []Action {
	return append(RestrictActions(), ExpandActions()...)
}

// Restrict applies every restrict action to the graph.
func Restrict(g *graph.Graph) []*graph.Graph {
	return applyAll(RestrictActions(), g)
}

// Expand applies every expand action to the graph.
func Expand(g *graph.Graph) []*graph.Graph {
	return applyAll(ExpandActions(), g)
}

func applyAll(actions []Action, g *graph.Graph) []*graph.Graph {
	var out []*graph.Graph
	for _, f := range actions {
		out = append(out, f(g)...)
	}
	return out
}

// AddEntityEdge attaches one ungrounded edge for the first entity mention
// not yet consumed by an existing edge: one candidate graph per linking
// candidate, or a single span-only edge when the mention is unlinked.
func AddEntityEdge(g *graph.Graph) []*graph.Graph {
	var out []*graph.Graph
	for _, m := range g.Entities {
		if mentionConsumed(g, m) {
			continue
		}
		if len(m.Linkings) == 0 {
			c := g.Copy()
			c.EdgeSet = append(c.EdgeSet, graph.Edge{Right: append([]string(nil), m.Tokens...)})
			out = append(out, c)
		} else {
			for _, linking := range m.Linkings {
				c := g.Copy()
				c.EdgeSet = append(c.EdgeSet, graph.Edge{
					Right:     append([]string(nil), m.Tokens...),
					RightKbID: linking,
				})
				out = append(out, c)
			}
		}
		break
	}
	return out
}

func mentionConsumed(g *graph.Graph, m graph.EntityMention) bool {
	for _, e := range g.EdgeSet {
		if len(e.Right) != len(m.Tokens) {
			continue
		}
		same := true
		for i := range e.Right {
			if e.Right[i] != m.Tokens[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// AddHop requests a hop relation on the last ungrounded hopless edge, one
// candidate per direction. The hop identifier stays free for the backend.
func AddHop(g *graph.Graph) []*graph.Graph {
	target := -1
	for i := len(g.EdgeSet) - 1; i >= 0; i-- {
		e := g.EdgeSet[i]
		if !e.Grounded() && !e.HasHop() {
			target = i
			break
		}
	}
	if target < 0 {
		return nil
	}
	up := g.Copy()
	up.EdgeSet[target].HopUp = graph.HopFree
	down := g.Copy()
	down.EdgeSet[target].HopDown = graph.HopFree
	return []*graph.Graph{up, down}
}

// AddYearEdge attaches a temporal-constraint edge when the question tokens
// contain a four-digit year not already consumed by an edge.
func AddYearEdge(g *graph.Graph) []*graph.Graph {
	for _, t := range g.Tokens {
		if !looksLikeYear(t) {
			continue
		}
		if mentionConsumed(g, graph.EntityMention{Tokens: []string{t}}) {
			continue
		}
		c := g.Copy()
		c.EdgeSet = append(c.EdgeSet, graph.Edge{Right: []string{t}})
		return []*graph.Graph{c}
	}
	return nil
}

func looksLikeYear(t string) bool {
	if len(t) != 4 {
		return false
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return false
		}
	}
	return t[0] == '1' || t[0] == '2'
}
