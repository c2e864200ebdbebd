package kb

import (
	"fmt"
	"strings"

	"github.com/sgqa/groundgen/internal/graph"
)

// relMarker suffixes every relation identifier the backend hands out, so
// whitelist checks and query parameters strip it symmetrically.
const relMarker = "v"

// StripMarker removes the trailing direction/type marker from a relation
// identifier.
func StripMarker(kbID string) string {
	if len(kbID) < 2 {
		return ""
	}
	return kbID[:len(kbID)-1]
}

// Query is one compiled Cypher statement with its parameters.
type Query struct {
	Text   string
	Params map[string]any
}

// groundingPlan accumulates MATCH/WHERE/RETURN fragments for one direction
// assignment over the graph's untyped ungrounded edges.
type groundingPlan struct {
	matches []string
	wheres  []string
	returns []string
	params  map[string]any
}

func (p *groundingPlan) match(s string)  { p.matches = append(p.matches, s) }
func (p *groundingPlan) where(s string)  { p.wheres = append(p.wheres, s) }
func (p *groundingPlan) ret(s string)    { p.returns = append(p.returns, s) }
func (p *groundingPlan) param(k string, v any) { p.params[k] = v }

func (p *groundingPlan) text(limit int) string {
	var b strings.Builder
	for _, m := range p.matches {
		b.WriteString("MATCH ")
		b.WriteString(m)
		b.WriteString("\n")
	}
	if len(p.wheres) > 0 {
		b.WriteString("WHERE ")
		b.WriteString(strings.Join(p.wheres, " AND "))
		b.WriteString("\n")
	}
	b.WriteString("RETURN DISTINCT ")
	b.WriteString(strings.Join(p.returns, ", "))
	b.WriteString(fmt.Sprintf("\nLIMIT %d", limit))
	return b.String()
}

// BuildGroundingQueries compiles the graph into one Cypher statement per
// direction assignment over its untyped ungrounded edges. Edges whose type
// is already fixed contribute exactly one pattern; the answer variable is q
// throughout.
func BuildGroundingQueries(g *graph.Graph, limit int) []Query {
	var untyped []int
	for i, e := range g.EdgeSet {
		if !e.Grounded() && e.Type == "" {
			untyped = append(untyped, i)
		}
	}

	combos := directionCombos(len(untyped))
	queries := make([]Query, 0, len(combos))
	for _, combo := range combos {
		types := make(map[int]graph.EdgeType, len(untyped))
		for j, idx := range untyped {
			types[idx] = combo[j]
		}
		plan := &groundingPlan{params: map[string]any{}}
		for i, e := range g.EdgeSet {
			edgeType := e.Type
			if t, ok := types[i]; ok {
				edgeType = t
			}
			compileEdge(plan, g, i, e, edgeType, !e.Grounded())
		}
		if len(plan.returns) == 0 {
			continue
		}
		queries = append(queries, Query{Text: plan.text(limit), Params: plan.params})
	}
	return queries
}

// directionCombos enumerates direct/reverse assignments for n free edges.
// n == 0 yields a single empty assignment.
func directionCombos(n int) [][]graph.EdgeType {
	combos := [][]graph.EdgeType{nil}
	for i := 0; i < n; i++ {
		next := make([][]graph.EdgeType, 0, len(combos)*2)
		for _, c := range combos {
			for _, t := range []graph.EdgeType{graph.Direct, graph.Reverse} {
				ext := append(append([]graph.EdgeType(nil), c...), t)
				next = append(next, ext)
			}
		}
		combos = next
	}
	return combos
}

// compileEdge emits the MATCH pattern for edge i. free marks edges whose
// relation the query must bind (and return); grounded edges only constrain.
func compileEdge(plan *groundingPlan, g *graph.Graph, i int, e graph.Edge, edgeType graph.EdgeType, free bool) {
	obj := fmt.Sprintf("o%d", i)
	rel := fmt.Sprintf("r%d", i)
	attach := compileObject(plan, g, i, e, obj, free)

	if e.HasHop() {
		hop := fmt.Sprintf("h%d", i)
		hopNode := fmt.Sprintf("ho%d", i)
		if e.HopUp != "" {
			plan.match(fmt.Sprintf("(%s)-[%s:REL]->(%s)", attach, hop, hopNode))
		} else {
			plan.match(fmt.Sprintf("(%s)-[%s:REL]->(%s)", hopNode, hop, attach))
		}
		hopID := e.HopUp
		if hopID == "" {
			hopID = e.HopDown
		}
		if hopID != graph.HopFree {
			key := fmt.Sprintf("hop%d", i)
			plan.where(fmt.Sprintf("%s.id = $%s", hop, key))
			plan.param(key, StripMarker(hopID))
		} else if free {
			plan.ret(fmt.Sprintf("%s.id + '%s' AS %s", hop, relMarker, EncodeKey(BindHop, i)))
		}
		attach = hopNode
	}

	switch edgeType {
	case graph.Direct:
		plan.match(fmt.Sprintf("(q:Entity)-[%s:REL]->(%s)", rel, attach))
	case graph.Reverse:
		plan.match(fmt.Sprintf("(%s)-[%s:REL]->(q:Entity)", attach, rel))
	case graph.VStructure:
		mid := fmt.Sprintf("m%d", i)
		plan.match(fmt.Sprintf("(%s)-[%s:REL]->(%s)", attach, rel, mid))
		plan.match(fmt.Sprintf("(q:Entity)-[:REL]->(%s)", mid))
	}

	if free {
		var kind BindingKind
		switch edgeType {
		case graph.Reverse:
			kind = BindReverse
		case graph.VStructure:
			kind = BindVStructure
		default:
			kind = BindDirect
		}
		plan.ret(fmt.Sprintf("%s.id + '%s' AS %s", rel, relMarker, EncodeKey(kind, i)))
	} else {
		key := fmt.Sprintf("rel%d", i)
		plan.where(fmt.Sprintf("%s.id = $%s", rel, key))
		plan.param(key, StripMarker(e.KbID))
	}
}

// compileObject pins edge i's object node: a fixed entity when RightKbID is
// bound, a candidate set from the mention linkings matching the edge span,
// or a free node whose identifier the query returns. Returns the variable
// the relation pattern should attach to.
func compileObject(plan *groundingPlan, g *graph.Graph, i int, e graph.Edge, obj string, free bool) string {
	if e.RightKbID != "" {
		key := fmt.Sprintf("obj%d", i)
		plan.match(fmt.Sprintf("(%s:Entity {id: $%s})", obj, key))
		plan.param(key, e.RightKbID)
		return obj
	}
	if cands := linkingCandidates(g, e); len(cands) > 0 {
		key := fmt.Sprintf("cands%d", i)
		plan.match(fmt.Sprintf("(%s:Entity)", obj))
		plan.where(fmt.Sprintf("%s.id IN $%s", obj, key))
		plan.param(key, cands)
		if free {
			plan.ret(fmt.Sprintf("%s.id AS %s", obj, EncodeKey(BindObject, i)))
		}
		return obj
	}
	plan.match(fmt.Sprintf("(%s:Entity)", obj))
	if free {
		plan.ret(fmt.Sprintf("%s.id AS %s", obj, EncodeKey(BindObject, i)))
	}
	return obj
}

// linkingCandidates finds the mention whose span equals the edge's token
// span and returns its linkings.
func linkingCandidates(g *graph.Graph, e graph.Edge) []string {
	for _, m := range g.Entities {
		if len(m.Tokens) != len(e.Right) {
			continue
		}
		match := true
		for i := range m.Tokens {
			if !strings.EqualFold(m.Tokens[i], e.Right[i]) {
				match = false
				break
			}
		}
		if match {
			return m.Linkings
		}
	}
	return nil
}

// BuildDenotationQuery compiles a fully grounded graph into the query whose
// answers are the graph's denotation.
func BuildDenotationQuery(g *graph.Graph, limit int) Query {
	plan := &groundingPlan{params: map[string]any{}}
	for i, e := range g.EdgeSet {
		compileEdge(plan, g, i, e, e.Type, false)
	}
	plan.returns = []string{"q.id AS answer"}
	return Query{Text: plan.text(limit), Params: plan.params}
}

// BuildAskQuery compiles an existence check for the (possibly partially
// grounded) graph. Free relation slots stay unconstrained; the query only
// asks whether any assignment exists.
func BuildAskQuery(g *graph.Graph) Query {
	plan := &groundingPlan{params: map[string]any{}}
	for i, e := range g.EdgeSet {
		edgeType := e.Type
		if edgeType == "" {
			edgeType = graph.Direct
		}
		if e.Grounded() {
			compileEdge(plan, g, i, e, edgeType, false)
			continue
		}
		// Ungrounded edge: match the pattern without pinning the relation.
		compileFreeExistence(plan, g, i, e, edgeType)
	}
	plan.returns = []string{"true AS exists"}
	return Query{Text: plan.text(1), Params: plan.params}
}

func compileFreeExistence(plan *groundingPlan, g *graph.Graph, i int, e graph.Edge, edgeType graph.EdgeType) {
	obj := fmt.Sprintf("o%d", i)
	attach := compileObject(plan, g, i, e, obj, false)
	switch edgeType {
	case graph.Reverse:
		plan.match(fmt.Sprintf("(%s)-[:REL]->(q:Entity)", attach))
	default:
		plan.match(fmt.Sprintf("(q:Entity)-[:REL]-(%s)", attach))
	}
}
