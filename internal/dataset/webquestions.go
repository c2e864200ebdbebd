// Package dataset loads the WebQuestions corpus artifacts (questions,
// silver graphs, choice graphs) and assembles training samples with
// negative pooling for downstream model training.
package dataset

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"strings"

	"github.com/sgqa/groundgen/internal/graph"
	"github.com/sgqa/groundgen/internal/staged"
)

// Paths point to the preprocessed dataset files.
type Paths struct {
	Train        string `yaml:"train"`
	Validation   string `yaml:"validation"`
	Tagged       string `yaml:"tagged"`
	SilverGraphs string `yaml:"silver_graphs"`
	ChoiceGraphs string `yaml:"choice_graphs"`
}

// Params tune sample assembly. Zero values take the defaults below.
type Params struct {
	// F1SamplesThreshold keeps only questions with at least one silver
	// graph scoring above it (default 0.5).
	F1SamplesThreshold float64 `yaml:"f1_samples_threshold"`
	// MaxSilverSamples caps positive graphs per question (default 15).
	MaxSilverSamples int `yaml:"max_silver_samples"`
	// MaxNegativeSamples is the total graph-set size per question
	// (default 30); the gap after silver graphs is filled from the
	// negative pool.
	MaxNegativeSamples int `yaml:"max_negative_samples"`
}

func (p Params) withDefaults() Params {
	if p.F1SamplesThreshold == 0 {
		p.F1SamplesThreshold = 0.5
	}
	if p.MaxSilverSamples == 0 {
		p.MaxSilverSamples = 15
	}
	if p.MaxNegativeSamples == 0 {
		p.MaxNegativeSamples = 30
	}
	return p
}

// Question is one WebQuestions entry.
type Question struct {
	Index       int    `json:"index"`
	Utterance   string `json:"utterance"`
	URL         string `json:"url,omitempty"`
	TargetValue string `json:"targetValue"`
}

// WebQuestions gives access to the preprocessed dataset. Silver graphs are
// the scored candidates the gold-guided search generated; choice graphs are
// every parse derivable from the question.
type WebQuestions struct {
	params     Params
	train      []Question
	validation []Question
	tagged     []json.RawMessage
	silver     [][]staged.ScoredGraph
	choice     [][]*graph.Graph
	rng        *rand.Rand
}

// Load reads the dataset files and validates their alignment.
func Load(paths Paths, params Params, seed int64) (*WebQuestions, error) {
	w := &WebQuestions{
		params: params.withDefaults(),
		rng:    rand.New(rand.NewSource(seed)),
	}
	if err := readJSON(paths.Train, &w.train); err != nil {
		return nil, err
	}
	if err := readJSON(paths.Validation, &w.validation); err != nil {
		return nil, err
	}
	if err := readJSON(paths.Tagged, &w.tagged); err != nil {
		return nil, err
	}
	if err := readJSON(paths.SilverGraphs, &w.silver); err != nil {
		return nil, err
	}
	var choiceSets [][]staged.ScoredGraph
	if err := readJSON(paths.ChoiceGraphs, &choiceSets); err != nil {
		return nil, err
	}
	w.choice = make([][]*graph.Graph, 0, len(choiceSets))
	for _, set := range choiceSets {
		graphs := make([]*graph.Graph, 0, len(set))
		for _, sg := range set {
			graphs = append(graphs, sg.Graph)
		}
		w.choice = append(w.choice, graphs)
	}
	if len(w.tagged) != len(w.silver) || len(w.silver) != len(w.choice) {
		return nil, fmt.Errorf("dataset: misaligned files: tagged=%d silver=%d choice=%d",
			len(w.tagged), len(w.silver), len(w.choice))
	}
	return w, nil
}

func readJSON(path string, into any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("dataset: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("dataset: decode %s: %w", path, err)
	}
	return nil
}

// TrainQuestions returns the training split.
func (w *WebQuestions) TrainQuestions() []Question { return w.train }

// ValidationQuestions returns the validation split.
func (w *WebQuestions) ValidationQuestions() []Question { return w.validation }

// TrainingSamples assembles one graph set per eligible training question
// plus the index of the correct parse within each set. Sets have size
// MaxNegativeSamples; negatives are subsampled from the choice graphs (or
// repeatedly sampled if the pool is short, zero-edge padding if empty).
func (w *WebQuestions) TrainingSamples() ([][]*graph.Graph, []int) {
	return w.indexedSamples(w.eligible(w.train))
}

// ValidationSamples mirrors TrainingSamples for the validation split.
func (w *WebQuestions) ValidationSamples() ([][]*graph.Graph, []int) {
	return w.indexedSamples(w.eligible(w.validation))
}

// ValidationWithGold returns every choice graph set of the validation split
// together with the lower-cased gold answers.
func (w *WebQuestions) ValidationWithGold() ([][]*graph.Graph, [][]string) {
	graphLists := make([][]*graph.Graph, 0, len(w.validation))
	goldAnswers := make([][]string, 0, len(w.validation))
	for _, q := range w.validation {
		graphLists = append(graphLists, w.choice[q.Index])
		answers := AnswersFromQuestion(q)
		for i := range answers {
			answers[i] = strings.ToLower(answers[i])
		}
		goldAnswers = append(goldAnswers, answers)
	}
	return graphLists, goldAnswers
}

// eligible keeps questions with a silver graph above the F1 threshold and a
// non-empty choice set.
func (w *WebQuestions) eligible(questions []Question) []int {
	var indices []int
	for _, q := range questions {
		if len(w.choice[q.Index]) == 0 {
			continue
		}
		for _, sg := range w.silver[q.Index] {
			if sg.Scores.F1 > w.params.F1SamplesThreshold {
				indices = append(indices, q.Index)
				break
			}
		}
	}
	return indices
}

func (w *WebQuestions) indexedSamples(indices []int) ([][]*graph.Graph, []int) {
	graphLists := make([][]*graph.Graph, 0, len(indices))
	targets := make([]int, 0, len(indices))
	for _, index := range indices {
		silver := w.silver[index]
		if len(silver) > w.params.MaxSilverSamples {
			silver = silver[:w.params.MaxSilverSamples]
		}

		var pool []*graph.Graph
		for _, candidate := range w.choice[index] {
			negative := true
			for _, sg := range silver {
				if graph.EdgeSetEqual(candidate, sg.Graph) {
					negative = false
					break
				}
			}
			if negative {
				pool = append(pool, candidate)
			}
		}

		sample := make([]staged.ScoredGraph, 0, w.params.MaxNegativeSamples)
		sample = append(sample, silver...)
		need := w.params.MaxNegativeSamples - len(silver)
		if len(pool) >= need {
			// Subsample distinct negatives; repetition only when short.
			w.rng.Shuffle(len(pool), func(i, j int) {
				pool[i], pool[j] = pool[j], pool[i]
			})
			for i := 0; i < need; i++ {
				sample = append(sample, staged.ScoredGraph{Graph: pool[i]})
			}
		} else {
			for i := 0; i < need; i++ {
				if len(pool) == 0 {
					sample = append(sample, staged.ScoredGraph{Graph: &graph.Graph{EdgeSet: []graph.Edge{}}})
					continue
				}
				sample = append(sample, staged.ScoredGraph{Graph: pool[w.rng.Intn(len(pool))]})
			}
		}
		w.rng.Shuffle(len(sample), func(i, j int) {
			sample[i], sample[j] = sample[j], sample[i]
		})

		target := 0
		bestF1 := -1.0
		graphs := make([]*graph.Graph, 0, len(sample))
		for i, sg := range sample {
			if sg.Scores.F1 > bestF1 {
				bestF1 = sg.Scores.F1
				target = i
			}
			graphs = append(graphs, sg.Graph)
		}
		graphLists = append(graphLists, graphs)
		targets = append(targets, target)
	}
	return graphLists, targets
}

var descriptionPattern = regexp.MustCompile(`\(description "?(.*?)"?\)`)

// AnswersFromQuestion extracts the answer strings from a WebQuestions
// target value like `(list (description "Padmé Amidala"))`.
func AnswersFromQuestion(q Question) []string {
	matches := descriptionPattern.FindAllStringSubmatch(q.TargetValue, -1)
	answers := make([]string, 0, len(matches))
	for _, m := range matches {
		answers = append(answers, m[1])
	}
	return answers
}

// MainEntityFromQuestion recovers the main entity mention from the
// question's freebase URL, when present.
func MainEntityFromQuestion(q Question) (graph.EntityMention, bool) {
	if q.URL == "" {
		return graph.EntityMention{}, false
	}
	slug := strings.TrimPrefix(q.URL, "http://www.freebase.com/view/en/")
	parts := strings.Split(slug, "_")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		tokens = append(tokens, titleWord(p))
	}
	return graph.EntityMention{Tokens: tokens, Kind: "URL"}, true
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
