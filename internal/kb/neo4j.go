package kb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sgqa/groundgen/internal/graph"
	"github.com/sgqa/groundgen/internal/platform/logger"
	"github.com/sgqa/groundgen/internal/platform/neo4jdb"
)

const (
	groundingLimit  = 1000
	denotationLimit = 500
	linkingLimit    = 5
)

// Neo4jAccess implements Access against a neo4j knowledge base. Entities
// are (:Entity {id, label, aliases}) nodes; facts are [:REL {id}]
// relationships whose id carries no direction marker.
type Neo4jAccess struct {
	client *neo4jdb.Client
	log    *logger.Logger
	tracer trace.Tracer
}

func NewNeo4jAccess(client *neo4jdb.Client, log *logger.Logger) *Neo4jAccess {
	return &Neo4jAccess{
		client: client,
		log:    log.With("client", "KBAccess"),
		tracer: otel.Tracer("kb"),
	}
}

func (a *Neo4jAccess) QueryGroundings(ctx context.Context, g *graph.Graph, opts QueryOptions) ([]Grounding, error) {
	ctx, span := a.tracer.Start(ctx, "kb.QueryGroundings")
	defer span.End()

	queries := BuildGroundingQueries(g, groundingLimit)
	span.SetAttributes(attribute.Int("kb.statements", len(queries)))

	var out []Grounding
	for _, q := range queries {
		records, err := a.run(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			grounding, err := DecodeGrounding(rec)
			if err != nil {
				return nil, err
			}
			if len(grounding) > 0 {
				out = append(out, grounding)
			}
		}
	}
	a.log.Debug("grounding query", "statements", len(queries), "groundings", len(out))
	return out, nil
}

func (a *Neo4jAccess) Denotations(ctx context.Context, g *graph.Graph) ([]string, error) {
	ctx, span := a.tracer.Start(ctx, "kb.Denotations")
	defer span.End()

	records, err := a.run(ctx, BuildDenotationQuery(g, denotationLimit))
	if err != nil {
		return nil, err
	}
	answers := make([]string, 0, len(records))
	for _, rec := range records {
		if v, ok := rec["answer"].(string); ok {
			answers = append(answers, v)
		}
	}
	return answers, nil
}

func (a *Neo4jAccess) Ask(ctx context.Context, g *graph.Graph) (bool, error) {
	ctx, span := a.tracer.Start(ctx, "kb.Ask")
	defer span.End()

	records, err := a.run(ctx, BuildAskQuery(g))
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (a *Neo4jAccess) EntityLabel(ctx context.Context, id string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "kb.EntityLabel")
	defer span.End()

	records, err := a.run(ctx, Query{
		Text:   "MATCH (e:Entity {id: $id}) RETURN e.label AS label LIMIT 1",
		Params: map[string]any{"id": id},
	})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	label, _ := records[0]["label"].(string)
	return label, nil
}

func (a *Neo4jAccess) LinkMention(ctx context.Context, m graph.EntityMention) ([]string, error) {
	ctx, span := a.tracer.Start(ctx, "kb.LinkMention")
	defer span.End()

	surface := strings.ToLower(strings.Join(m.Tokens, " "))
	records, err := a.run(ctx, Query{
		Text: `MATCH (e:Entity)
WHERE toLower(e.label) = $surface OR $surface IN [a IN coalesce(e.aliases, []) | toLower(a)]
RETURN e.id AS id ORDER BY COUNT { (e)--() } DESC
LIMIT $limit`,
		Params: map[string]any{"surface": surface, "limit": linkingLimit},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if v, ok := rec["id"].(string); ok {
			ids = append(ids, v)
		}
	}
	return ids, nil
}

// run executes one statement in a read session and returns the raw records.
// Deadline and connectivity failures map to ErrUnavailable so grounding
// callers can fall back to approximation.
func (a *Neo4jAccess) run(ctx context.Context, q Query) ([]map[string]any, error) {
	session := a.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: a.client.Database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q.Text, q.Params)
		if err != nil {
			return nil, err
		}
		var records []map[string]any
		for res.Next(ctx) {
			records = append(records, res.Record().AsMap())
		}
		return records, res.Err()
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || neo4j.IsConnectivityError(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("kb: query: %w", err)
	}
	records, _ := result.([]map[string]any)
	return records, nil
}
