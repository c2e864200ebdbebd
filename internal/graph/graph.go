// Package graph holds the semantic-graph value types shared by the
// grounding engine: a question's tokens, its entity mentions, and a set of
// directed relation slots ("edges") that grounding binds to knowledge-base
// relations.
package graph

// EdgeType is the direction pattern of a grounded edge.
type EdgeType string

// HopFree marks a hop slot that a mutation operator requested but no
// grounding has bound yet.
const HopFree = "?"

const (
	// Direct points from the question variable to the edge's object.
	Direct EdgeType = "direct"
	// Reverse points from the object to the question variable.
	Reverse EdgeType = "reverse"
	// VStructure bridges two relations through a shared intermediate node.
	VStructure EdgeType = "v-structure"
)

// EntityMention is a span of question tokens recognized as an entity,
// optionally resolved to candidate knowledge-base identifiers. Linkings are
// attached once by entity linking and never recomputed: a non-nil empty
// slice means linking ran and found nothing.
type EntityMention struct {
	Tokens   []string `json:"tokens"`
	Kind     string   `json:"kind"`
	Linkings []string `json:"linkings,omitempty"`
}

// Linked reports whether entity linking has already run for the mention.
func (m EntityMention) Linked() bool {
	return m.Linkings != nil
}

// Edge is a directed relation slot. An edge is grounded once both Type and
// KbID are set; everything else is optional.
type Edge struct {
	KbID           string   `json:"kbID,omitempty"`
	Type           EdgeType `json:"type,omitempty"`
	HopUp          string   `json:"hopUp,omitempty"`
	HopDown        string   `json:"hopDown,omitempty"`
	Right          []string `json:"right,omitempty"`
	RightKbID      string   `json:"rightkbID,omitempty"`
	CanonicalRight string   `json:"canonical_right,omitempty"`
}

func (e Edge) Grounded() bool {
	return e.Type != "" && e.KbID != ""
}

// HasHop reports whether the edge carries a chained relation marker in
// either direction. HopUp and HopDown are mutually exclusive.
func (e Edge) HasHop() bool {
	return e.HopUp != "" || e.HopDown != ""
}

func (e Edge) copy() Edge {
	out := e
	out.Right = append([]string(nil), e.Right...)
	return out
}

// Equal is field-wise equality including the token span.
func (e Edge) Equal(other Edge) bool {
	if e.KbID != other.KbID || e.Type != other.Type ||
		e.HopUp != other.HopUp || e.HopDown != other.HopDown ||
		e.RightKbID != other.RightKbID || e.CanonicalRight != other.CanonicalRight {
		return false
	}
	if len(e.Right) != len(other.Right) {
		return false
	}
	for i := range e.Right {
		if e.Right[i] != other.Right[i] {
			return false
		}
	}
	return true
}

// Graph is a semantic graph over one question. A nil EdgeSet means zero
// edges, never an error.
type Graph struct {
	Tokens   []string        `json:"tokens,omitempty"`
	Entities []EntityMention `json:"entities"`
	EdgeSet  []Edge          `json:"edgeSet"`
}

// Copy returns a deep, independent copy: mutating the result (or any of its
// edges or mentions) never affects the receiver. Nil Entities and EdgeSet
// normalize to empty slices.
func (g *Graph) Copy() *Graph {
	out := &Graph{
		Tokens:   append([]string(nil), g.Tokens...),
		Entities: make([]EntityMention, 0, len(g.Entities)),
		EdgeSet:  make([]Edge, 0, len(g.EdgeSet)),
	}
	for _, m := range g.Entities {
		c := m
		c.Tokens = append([]string(nil), m.Tokens...)
		if m.Linkings != nil {
			c.Linkings = append([]string{}, m.Linkings...)
		}
		out.Entities = append(out.Entities, c)
	}
	for _, e := range g.EdgeSet {
		out.EdgeSet = append(out.EdgeSet, e.copy())
	}
	return out
}

// FullyGrounded reports whether every edge is grounded. True for zero edges.
func (g *Graph) FullyGrounded() bool {
	for _, e := range g.EdgeSet {
		if !e.Grounded() {
			return false
		}
	}
	return true
}

// UngroundedCount is the number of edges still lacking a relation binding.
func (g *Graph) UngroundedCount() int {
	n := 0
	for _, e := range g.EdgeSet {
		if !e.Grounded() {
			n++
		}
	}
	return n
}

// HasUngroundedHop reports whether any ungrounded edge carries a hop marker.
func (g *Graph) HasUngroundedHop() bool {
	for _, e := range g.EdgeSet {
		if !e.Grounded() && e.HasHop() {
			return true
		}
	}
	return false
}

// HasToken reports whether any of the given words occurs among the graph
// tokens.
func (g *Graph) HasToken(words ...string) bool {
	set := make(map[string]bool, len(g.Tokens))
	for _, t := range g.Tokens {
		set[t] = true
	}
	for _, w := range words {
		if set[w] {
			return true
		}
	}
	return false
}

// EdgeSetEqual is structural equality of the two graphs' edge sets only,
// order-sensitive. Tokens and entities are ignored: this is the "same
// parse" notion used to keep negative pools free of positives.
func EdgeSetEqual(a, b *Graph) bool {
	if len(a.EdgeSet) != len(b.EdgeSet) {
		return false
	}
	for i := range a.EdgeSet {
		if !a.EdgeSet[i].Equal(b.EdgeSet[i]) {
			return false
		}
	}
	return true
}
