package staged

import (
	"context"
	"testing"

	"github.com/sgqa/groundgen/internal/graph"
	"github.com/sgqa/groundgen/internal/kb"
	"github.com/sgqa/groundgen/internal/stages"
)

type countingClearer struct{ calls int }

func (c *countingClearer) Clear(context.Context) error {
	c.calls++
	return nil
}

func TestGenerateWithoutGoldWhitelistClosure(t *testing.T) {
	whitelist := kb.NewWhitelist([]string{"P31"})
	f := &fakeKB{
		labels: map[string]string{"Q1": "thing"},
		groundingsFn: func(g *graph.Graph, _ kb.QueryOptions) ([]kb.Grounding, error) {
			return []kb.Grounding{
				{{Kind: kb.BindDirect, Index: 0, ID: "P31v"}},
				{{Kind: kb.BindDirect, Index: 0, ID: "P9999v"}},
			}, nil
		},
	}
	gen := newTestGenerator(f, whitelist, Options{})

	ungrounded := &graph.Graph{
		Entities: []graph.EntityMention{
			{Tokens: []string{"thing"}, Kind: "NN", Linkings: []string{"Q1"}},
		},
	}
	results, err := gen.GenerateWithoutGold(context.Background(), ungrounded, DefaultActions())
	if err != nil {
		t.Fatalf("GenerateWithoutGold: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected whitelisted groundings to survive")
	}
	for _, g := range results {
		for _, e := range g.EdgeSet {
			if e.KbID != "P31v" {
				t.Fatalf("relation %q escaped the whitelist", e.KbID)
			}
			if e.RightKbID == "Q1" && e.CanonicalRight != "thing" {
				t.Fatalf("canonical label missing: %+v", e)
			}
		}
		if len(g.Entities) != 0 {
			t.Fatalf("mentions should be stripped from grounded output")
		}
	}
	if len(ungrounded.Entities) != 1 {
		t.Fatalf("input graph was mutated")
	}
}

func TestGenerateWithoutGoldExistenceFilter(t *testing.T) {
	f := &fakeKB{
		askFn: func(*graph.Graph) (bool, error) { return false, nil },
	}
	gen := newTestGenerator(f, nil, Options{})

	ungrounded := &graph.Graph{
		Entities: []graph.EntityMention{
			{Tokens: []string{"thing"}, Kind: "NN", Linkings: []string{"Q1"}},
		},
	}
	results, err := gen.GenerateWithoutGold(context.Background(), ungrounded, DefaultActions())
	if err != nil {
		t.Fatalf("GenerateWithoutGold: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("nothing exists, nothing should ground: %d results", len(results))
	}
	if f.queryCount() != 0 {
		t.Fatalf("rejected candidates must not reach the grounding backend, saw %d queries", f.queryCount())
	}
}

func TestGenerateWithoutGoldClearsCache(t *testing.T) {
	clearer := &countingClearer{}
	f := &fakeKB{}
	gen := New(Deps{KB: f, Whitelist: kb.DefaultWhitelist(), Cache: clearer}, Options{})

	ungrounded := &graph.Graph{
		Entities: []graph.EntityMention{
			{Tokens: []string{"thing"}, Kind: "NN", Linkings: []string{"Q1"}},
		},
	}
	if _, err := gen.GenerateWithoutGold(context.Background(), ungrounded, DefaultActions()); err != nil {
		t.Fatalf("GenerateWithoutGold: %v", err)
	}
	if clearer.calls != 1 {
		t.Fatalf("cache cleared %d times, want once per run", clearer.calls)
	}
}

func TestGenerateWithoutGoldIterationBudget(t *testing.T) {
	// A restrict action that always produces keeps the pool from draining;
	// only the budget can stop the enumeration.
	grow := func(g *graph.Graph) []*graph.Graph {
		c := g.Copy()
		c.EdgeSet = append(c.EdgeSet, graph.Edge{})
		return []*graph.Graph{c}
	}
	gen := newTestGenerator(&fakeKB{}, nil, Options{MaxIterations: 3})

	results, err := gen.GenerateWithoutGold(context.Background(), &graph.Graph{}, ActionSet{
		Restrict: []stages.Action{grow},
	})
	if err != nil {
		t.Fatalf("GenerateWithoutGold: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("no groundings were offered, got %d results", len(results))
	}
}
