// Package kb defines the knowledge-base boundary of the grounding engine:
// the access interface, the grounding wire grammar and its decoder, the
// relation whitelist, and a neo4j implementation.
package kb

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/sgqa/groundgen/internal/graph"
)

// ErrUnavailable marks a backend that declined to answer a grounding query
// (timeout, overload). Callers that can approximate treat it as a fallback
// trigger; everyone else propagates it.
var ErrUnavailable = errors.New("kb: backend unavailable")

// QueryOptions control a single grounding query.
type QueryOptions struct {
	// UseCache allows a request-level cache to serve the query.
	UseCache bool
}

// Access is the knowledge-base contract the engine depends on. All calls
// are blocking; implementations own their caching.
type Access interface {
	// QueryGroundings returns every grounding of the graph's ungrounded
	// edges consistent with the knowledge base. Empty result means no valid
	// grounding. ErrUnavailable signals a declined query.
	QueryGroundings(ctx context.Context, g *graph.Graph, opts QueryOptions) ([]Grounding, error)

	// Denotations executes a fully grounded graph and returns the matched
	// entity identifiers (or literal values).
	Denotations(ctx context.Context, g *graph.Graph) ([]string, error)

	// Ask reports whether the graph's implied triples exist.
	Ask(ctx context.Context, g *graph.Graph) (bool, error)

	// EntityLabel returns the canonical label for an entity identifier, or
	// "" when the entity has none.
	EntityLabel(ctx context.Context, id string) (string, error)

	// LinkMention returns candidate entity identifiers for a mention.
	LinkMention(ctx context.Context, m graph.EntityMention) ([]string, error)
}

var datePattern = regexp.MustCompile(`^(\d{4})(-\d{2}-\d{2})?`)

// LabelResults maps retrieved identifiers to human-readable answers: date
// literals reduce to their year, entity identifiers to their label (the raw
// identifier when no label exists). Results are lower-cased and deduplicated
// preserving order.
func LabelResults(ctx context.Context, access Access, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		answer := id
		if m := datePattern.FindStringSubmatch(id); m != nil {
			answer = m[1]
		} else {
			label, err := access.EntityLabel(ctx, id)
			if err != nil {
				return nil, err
			}
			if label != "" {
				answer = label
			}
		}
		answer = strings.ToLower(answer)
		if !seen[answer] {
			seen[answer] = true
			out = append(out, answer)
		}
	}
	return out, nil
}

// MapResults passes identifiers through unchanged apart from lower-casing
// and deduplication, for configurations that train on raw identifiers.
func MapResults(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToLower(id)
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
