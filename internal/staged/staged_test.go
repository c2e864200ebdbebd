package staged

import (
	"context"
	"testing"

	"github.com/sgqa/groundgen/internal/graph"
)

func TestLinkEntities(t *testing.T) {
	f := &fakeKB{
		links: map[string][]string{
			"texas rangers": {"Q748583", "Q1965"},
		},
	}
	gen := newTestGenerator(f, nil, Options{})

	g := &graph.Graph{
		Entities: []graph.EntityMention{
			{Tokens: []string{"Texas", "Rangers"}, Kind: "URL"},
			{Tokens: []string{"the", "winner"}, Kind: "NN"},
			{Tokens: []string{"2009"}, Kind: "CD", Linkings: []string{"Q1996"}},
		},
	}
	out, err := gen.LinkEntities(context.Background(), g)
	if err != nil {
		t.Fatalf("LinkEntities: %v", err)
	}

	if got := out.Entities[0].Linkings; len(got) != 2 || got[0] != "Q748583" {
		t.Fatalf("mention 0 linkings = %v", got)
	}
	if got := out.Entities[1].Linkings; got == nil || len(got) != 0 {
		t.Fatalf("unresolvable mention should get empty (non-nil) linkings, got %v", got)
	}
	if got := out.Entities[2].Linkings; len(got) != 1 || got[0] != "Q1996" {
		t.Fatalf("pre-linked mention must keep its linkings, got %v", got)
	}
	if g.Entities[0].Linkings != nil {
		t.Fatalf("input graph was mutated")
	}
}

func TestAddCanonicalLabelsIdempotent(t *testing.T) {
	f := &fakeKB{
		labels: map[string]string{"Q748583": "Texas Rangers"},
	}
	gen := newTestGenerator(f, nil, Options{})

	g := &graph.Graph{EdgeSet: []graph.Edge{
		{RightKbID: "Q748583"},
		{RightKbID: "Q99", CanonicalRight: "already set"},
		{Right: []string{"span", "only"}},
	}}
	if _, err := gen.AddCanonicalLabels(context.Background(), g); err != nil {
		t.Fatalf("AddCanonicalLabels: %v", err)
	}
	if g.EdgeSet[0].CanonicalRight != "Texas Rangers" {
		t.Fatalf("label not attached: %+v", g.EdgeSet[0])
	}
	if g.EdgeSet[1].CanonicalRight != "already set" {
		t.Fatalf("existing label was overwritten: %+v", g.EdgeSet[1])
	}
	if g.EdgeSet[2].CanonicalRight != "" {
		t.Fatalf("span-only edge should stay unlabeled: %+v", g.EdgeSet[2])
	}
	if f.labelCalls != 1 {
		t.Fatalf("%d label lookups, want 1", f.labelCalls)
	}

	// A second pass finds every labelable edge done and asks nothing new.
	if _, err := gen.AddCanonicalLabels(context.Background(), g); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if f.labelCalls != 1 {
		t.Fatalf("repeated labeling re-queried the backend (%d lookups)", f.labelCalls)
	}
}
