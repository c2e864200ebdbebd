// Package staged is the grounding-search engine: it takes a partially
// specified semantic graph and searches for fully grounded variants against
// the knowledge base, guided by gold answers or purely by structural
// validity.
package staged

import (
	"context"

	"github.com/sgqa/groundgen/internal/eval"
	"github.com/sgqa/groundgen/internal/graph"
	"github.com/sgqa/groundgen/internal/kb"
	"github.com/sgqa/groundgen/internal/platform/logger"
)

// PostProcessMode selects how retrieved denotations are surfaced before
// scoring: as human-readable labels or as raw identifiers.
type PostProcessMode string

const (
	PostProcessLabel    PostProcessMode = "label"
	PostProcessIdentity PostProcessMode = "identity"
)

// Options are the engine's configuration. The zero value is usable; unset
// fields take the defaults below.
type Options struct {
	// PostProcess selects denotation post-processing (default label).
	PostProcess PostProcessMode
	// F1AcceptThreshold stops gold-mode search once the best accepted
	// positive reaches it (default 0.9).
	F1AcceptThreshold float64
	// RestrictBeforeExpandThreshold accepts a pooled candidate as-is once
	// its carried F1 reaches it, skipping further mutation (default 0.7).
	RestrictBeforeExpandThreshold float64
	// MaxIterations bounds the pool loop of either controller. Zero means
	// unbounded, which matches the search's native termination conditions
	// but can run long on pathological inputs.
	MaxIterations int
}

func (o Options) withDefaults() Options {
	if o.PostProcess == "" {
		o.PostProcess = PostProcessLabel
	}
	if o.F1AcceptThreshold == 0 {
		o.F1AcceptThreshold = 0.9
	}
	if o.RestrictBeforeExpandThreshold == 0 {
		o.RestrictBeforeExpandThreshold = 0.7
	}
	return o
}

// CacheClearer is implemented by KB decorators whose request cache the
// engine flushes between independent no-gold runs.
type CacheClearer interface {
	Clear(ctx context.Context) error
}

// Deps are the collaborators a Generator needs.
type Deps struct {
	KB        kb.Access
	Whitelist kb.Whitelist
	// Cache is optional; when set, no-gold runs clear it on completion.
	Cache CacheClearer
	Log   *logger.Logger
}

// Generator runs the staged grounding search. Each call operates on
// independent graph copies; a Generator is safe for use from multiple
// goroutines as long as the KB access is.
type Generator struct {
	kb        kb.Access
	whitelist kb.Whitelist
	cache     CacheClearer
	opts      Options
	log       *logger.Logger
}

func New(deps Deps, opts Options) *Generator {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		kb:        deps.KB,
		whitelist: deps.Whitelist,
		cache:     deps.Cache,
		opts:      opts.withDefaults(),
		log:       log.With("component", "StagedGenerator"),
	}
}

// ScoredGraph is one search result: a graph with the scores and retrieved
// answers of its evaluation. Negative examples carry zero scores and no
// answers.
type ScoredGraph struct {
	Graph   *graph.Graph `json:"graph"`
	Scores  eval.Scores  `json:"scores"`
	Answers []string     `json:"answers,omitempty"`
}

// LinkEntities resolves every unlinked mention through the knowledge base
// and returns a copy with linkings attached. Mentions that already carry
// linkings (even empty ones) are left alone.
func (gen *Generator) LinkEntities(ctx context.Context, g *graph.Graph) (*graph.Graph, error) {
	out := g.Copy()
	for i, m := range out.Entities {
		if m.Linked() {
			continue
		}
		linkings, err := gen.kb.LinkMention(ctx, m)
		if err != nil {
			return nil, err
		}
		if linkings == nil {
			linkings = []string{}
		}
		out.Entities[i].Linkings = linkings
	}
	return out, nil
}

// AddCanonicalLabels attaches a human-readable label to every edge with a
// bound object and no label yet. Labels are never overwritten, so repeated
// calls across mutation steps are safe. The graph is modified in place and
// returned.
func (gen *Generator) AddCanonicalLabels(ctx context.Context, g *graph.Graph) (*graph.Graph, error) {
	for i, e := range g.EdgeSet {
		if e.RightKbID == "" || e.CanonicalRight != "" {
			continue
		}
		label, err := gen.kb.EntityLabel(ctx, e.RightKbID)
		if err != nil {
			return nil, err
		}
		if label != "" {
			g.EdgeSet[i].CanonicalRight = label
		}
	}
	return g, nil
}
