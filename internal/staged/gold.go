package staged

import (
	"context"
	"sort"

	"github.com/sgqa/groundgen/internal/eval"
	"github.com/sgqa/groundgen/internal/graph"
	"github.com/sgqa/groundgen/internal/kb"
	"github.com/sgqa/groundgen/internal/stages"
)

// keepTopGroundings bounds how many qualifying groundings of one candidate
// survive an iteration.
const keepTopGroundings = 3

// negativeF1Cutoff is the score under which a grounded graph is recorded as
// a negative example.
const negativeF1Cutoff = 0.01

// GenerateWithGold searches for groundings of the ungrounded graph whose
// denotations score positively against the gold answers. The result is the
// accepted positive graphs followed by the collected negative examples
// (kept for downstream contrastive training).
func (gen *Generator) GenerateWithGold(ctx context.Context, ungrounded *graph.Graph, goldAnswers [][]string) ([]ScoredGraph, error) {
	linked, err := gen.LinkEntities(ctx, ungrounded)
	if err != nil {
		return nil, err
	}

	pool := []ScoredGraph{{Graph: linked}}
	var positives, negatives []ScoredGraph
	bestF1 := 0.0
	iterations := 0

	for len(pool) > 0 && bestF1 < gen.opts.F1AcceptThreshold {
		if gen.opts.MaxIterations > 0 && iterations >= gen.opts.MaxIterations {
			gen.log.Warn("iteration budget exhausted", "iterations", iterations)
			break
		}
		iterations++

		item := pool[0]
		pool = pool[1:]
		masterF1 := item.Scores.F1
		gen.log.Debug("pool item", "pool", len(pool), "master_f1", masterF1)

		if masterF1 >= gen.opts.RestrictBeforeExpandThreshold {
			// Near-complete already; accept without further mutation.
			positives = append(positives, item)
			if masterF1 > bestF1 {
				bestF1 = masterF1
			}
			continue
		}

		suggested := stages.Restrict(item.Graph)
		for _, s := range suggested {
			if _, err := gen.AddCanonicalLabels(ctx, s); err != nil {
				return nil, err
			}
		}

		var chosen []ScoredGraph
		for len(chosen) == 0 && len(suggested) > 0 {
			s := suggested[0]
			suggested = suggested[1:]

			var notChosen []ScoredGraph
			chosen, notChosen, err = gen.groundWithGold(ctx, []*graph.Graph{s}, goldAnswers, masterF1)
			if err != nil {
				return nil, err
			}
			negatives = append(negatives, notChosen...)

			if len(chosen) == 0 {
				expanded := stages.Expand(s)
				chosen, notChosen, err = gen.groundWithGold(ctx, expanded, goldAnswers, masterF1)
				if err != nil {
					return nil, err
				}
				negatives = append(negatives, notChosen...)
			}
		}

		if len(chosen) > 0 {
			pool = append(pool, chosen...)
		} else {
			positives = append(positives, item)
			if masterF1 > bestF1 {
				bestF1 = masterF1
			}
		}
	}

	gen.log.Debug("gold search done",
		"iterations", iterations, "positives", len(positives), "negatives", len(negatives), "best_f1", bestF1)
	return append(positives, negatives...), nil
}

// groundWithGold grounds the input graphs one at a time until one of them
// yields a qualifying result, keeping at most the top three qualifying
// groundings by F1.
func (gen *Generator) groundWithGold(ctx context.Context, input []*graph.Graph, goldAnswers [][]string, minF1 float64) (chosen, notChosen []ScoredGraph, err error) {
	for len(input) > 0 && len(chosen) == 0 {
		s := input[0]
		input = input[1:]
		c, nc, err := gen.groundOneWithGold(ctx, s, goldAnswers, minF1)
		if err != nil {
			return nil, nil, err
		}
		chosen = append(chosen, c...)
		notChosen = append(notChosen, nc...)
	}
	sort.SliceStable(chosen, func(i, j int) bool {
		return chosen[i].Scores.F1 > chosen[j].Scores.F1
	})
	if len(chosen) > keepTopGroundings {
		chosen = chosen[:keepTopGroundings]
	}
	return chosen, notChosen, nil
}

// groundOneWithGold evaluates every grounding of one structural candidate
// against the gold answers. Groundings scoring above minF1 qualify;
// groundings under the negative cutoff are recorded as negatives either way.
func (gen *Generator) groundOneWithGold(ctx context.Context, s *graph.Graph, goldAnswers [][]string, minF1 float64) (chosen, notChosen []ScoredGraph, err error) {
	groundings, err := gen.findGroundings(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	gen.log.Debug("groundings for candidate", "count", len(groundings))

	for _, grounding := range groundings {
		grounded := ApplyGrounding(s, grounding)
		answers, err := gen.retrieve(ctx, grounded)
		if err != nil {
			return nil, nil, err
		}
		scores := eval.PrecisionRecallF1(goldAnswers, answers)
		if scores.F1 > minF1 {
			chosen = append(chosen, ScoredGraph{Graph: grounded, Scores: scores, Answers: answers})
		}
		if scores.F1 < negativeF1Cutoff {
			notChosen = append(notChosen, ScoredGraph{Graph: grounded})
		}
	}
	return chosen, notChosen, nil
}

// retrieve executes the grounded graph and post-processes the answer set
// per the configured mode.
func (gen *Generator) retrieve(ctx context.Context, g *graph.Graph) ([]string, error) {
	answers, err := gen.kb.Denotations(ctx, g)
	if err != nil {
		return nil, err
	}
	if gen.opts.PostProcess == PostProcessIdentity {
		return kb.MapResults(answers), nil
	}
	return kb.LabelResults(ctx, gen.kb, answers)
}
