package staged

import (
	"context"
	"strings"
	"sync"

	"github.com/sgqa/groundgen/internal/graph"
	"github.com/sgqa/groundgen/internal/kb"
)

// fakeKB is a configurable in-memory kb.Access. Unset behaviors default to
// empty results (Ask defaults to true).
type fakeKB struct {
	mu sync.Mutex

	groundingsFn  func(g *graph.Graph, opts kb.QueryOptions) ([]kb.Grounding, error)
	denotationsFn func(g *graph.Graph) ([]string, error)
	askFn         func(g *graph.Graph) (bool, error)
	labels        map[string]string
	links         map[string][]string

	queryCalls  []*graph.Graph
	labelCalls  int
	askCalls    int
	denotations int
}

func (f *fakeKB) QueryGroundings(_ context.Context, g *graph.Graph, opts kb.QueryOptions) ([]kb.Grounding, error) {
	f.mu.Lock()
	f.queryCalls = append(f.queryCalls, g.Copy())
	f.mu.Unlock()
	if f.groundingsFn == nil {
		return nil, nil
	}
	return f.groundingsFn(g, opts)
}

func (f *fakeKB) Denotations(_ context.Context, g *graph.Graph) ([]string, error) {
	f.mu.Lock()
	f.denotations++
	f.mu.Unlock()
	if f.denotationsFn == nil {
		return nil, nil
	}
	return f.denotationsFn(g)
}

func (f *fakeKB) Ask(_ context.Context, g *graph.Graph) (bool, error) {
	f.mu.Lock()
	f.askCalls++
	f.mu.Unlock()
	if f.askFn == nil {
		return true, nil
	}
	return f.askFn(g)
}

func (f *fakeKB) EntityLabel(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	f.labelCalls++
	f.mu.Unlock()
	return f.labels[id], nil
}

func (f *fakeKB) LinkMention(_ context.Context, m graph.EntityMention) ([]string, error) {
	key := strings.ToLower(strings.Join(m.Tokens, " "))
	return f.links[key], nil
}

func (f *fakeKB) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queryCalls)
}

func newTestGenerator(f *fakeKB, whitelist kb.Whitelist, opts Options) *Generator {
	if whitelist == nil {
		whitelist = kb.DefaultWhitelist()
	}
	return New(Deps{KB: f, Whitelist: whitelist}, opts)
}
