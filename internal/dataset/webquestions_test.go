package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func fixturePaths(t *testing.T) Paths {
	dir := t.TempDir()
	return Paths{
		Train: writeFixture(t, dir, "train.json", `[
			{"index": 0, "utterance": "when were the texas rangers started?",
			 "url": "http://www.freebase.com/view/en/texas_rangers",
			 "targetValue": "(list (description 1972))"},
			{"index": 1, "utterance": "who plays ken barlow?",
			 "targetValue": "(list (description \"William Roache\"))"}
		]`),
		Validation: writeFixture(t, dir, "validation.json", `[
			{"index": 2, "utterance": "where is rome?",
			 "targetValue": "(list (description Italy))"}
		]`),
		Tagged: writeFixture(t, dir, "tagged.json", `[[], [], []]`),
		SilverGraphs: writeFixture(t, dir, "silver.json", `[
			[
				{"graph": {"edgeSet": [{"kbID": "P571v", "type": "direct"}]}, "scores": {"precision": 1, "recall": 1, "f1": 1}},
				{"graph": {"edgeSet": [{"kbID": "P31v", "type": "direct"}]}, "scores": {"f1": 0.8}}
			],
			[
				{"graph": {"edgeSet": [{"kbID": "P161v", "type": "reverse"}]}, "scores": {"f1": 0.3}}
			],
			[
				{"graph": {"edgeSet": [{"kbID": "P131v", "type": "direct"}]}, "scores": {"f1": 1}}
			]
		]`),
		ChoiceGraphs: writeFixture(t, dir, "choice.json", `[
			[
				{"graph": {"edgeSet": [{"kbID": "P571v", "type": "direct"}]}},
				{"graph": {"edgeSet": [{"kbID": "P31v", "type": "direct"}]}},
				{"graph": {"edgeSet": [{"kbID": "P17v", "type": "direct"}]}},
				{"graph": {"edgeSet": [{"kbID": "P47v", "type": "reverse"}]}}
			],
			[
				{"graph": {"edgeSet": [{"kbID": "P161v", "type": "reverse"}]}}
			],
			[
				{"graph": {"edgeSet": [{"kbID": "P131v", "type": "direct"}]}},
				{"graph": {"edgeSet": [{"kbID": "P36v", "type": "direct"}]}}
			]
		]`),
	}
}

func TestLoadAlignment(t *testing.T) {
	w, err := Load(fixturePaths(t), Params{}, 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(w.TrainQuestions()) != 2 || len(w.ValidationQuestions()) != 1 {
		t.Fatalf("splits = %d/%d", len(w.TrainQuestions()), len(w.ValidationQuestions()))
	}

	bad := fixturePaths(t)
	bad.Tagged = writeFixture(t, t.TempDir(), "tagged.json", `[[]]`)
	if _, err := Load(bad, Params{}, 7); err == nil {
		t.Fatalf("misaligned files must fail to load")
	}
}

func TestTrainingSamples(t *testing.T) {
	w, err := Load(fixturePaths(t), Params{MaxSilverSamples: 1, MaxNegativeSamples: 5}, 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	graphLists, targets := w.TrainingSamples()

	// Question 1's best silver graph scores 0.3, under the 0.5 default
	// threshold, so only question 0 is eligible.
	if len(graphLists) != 1 || len(targets) != 1 {
		t.Fatalf("eligible samples = %d, want 1", len(graphLists))
	}
	sample := graphLists[0]
	if len(sample) != 5 {
		t.Fatalf("sample size = %d, want MaxNegativeSamples", len(sample))
	}

	best := sample[targets[0]]
	if len(best.EdgeSet) != 1 || best.EdgeSet[0].KbID != "P571v" {
		t.Fatalf("target should point at the top-scoring silver graph, got %+v", best.EdgeSet)
	}

	// The kept silver graph is excluded from the negative pool.
	seenSilver := 0
	for _, g := range sample {
		if len(g.EdgeSet) == 1 && g.EdgeSet[0].KbID == "P571v" {
			seenSilver++
		}
	}
	if seenSilver != 1 {
		t.Fatalf("silver graph appeared %d times, want exactly once", seenSilver)
	}
}

func TestTrainingSamplesNegativesDistinct(t *testing.T) {
	// Pool of 3, need of 2: negatives must be subsampled without repetition.
	for seed := int64(0); seed < 10; seed++ {
		w, err := Load(fixturePaths(t), Params{MaxSilverSamples: 1, MaxNegativeSamples: 3}, seed)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		graphLists, _ := w.TrainingSamples()
		if len(graphLists) != 1 {
			t.Fatalf("eligible samples = %d, want 1", len(graphLists))
		}
		seen := map[string]int{}
		for _, g := range graphLists[0] {
			seen[g.EdgeSet[0].KbID]++
		}
		for id, n := range seen {
			if n > 1 {
				t.Fatalf("seed %d: %s drawn %d times although the pool covers the need", seed, id, n)
			}
		}
	}
}

func TestTrainingSamplesPadsEmptyPool(t *testing.T) {
	paths := fixturePaths(t)
	// Choice set for question 0 shrinks to the silver graph itself, so the
	// negative pool is empty and padding kicks in.
	paths.ChoiceGraphs = writeFixture(t, t.TempDir(), "choice.json", `[
		[{"graph": {"edgeSet": [{"kbID": "P571v", "type": "direct"}]}}],
		[],
		[]
	]`)
	w, err := Load(paths, Params{MaxSilverSamples: 1, MaxNegativeSamples: 3}, 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	graphLists, _ := w.TrainingSamples()
	if len(graphLists) != 1 {
		t.Fatalf("eligible samples = %d, want 1", len(graphLists))
	}
	padded := 0
	for _, g := range graphLists[0] {
		if len(g.EdgeSet) == 0 {
			padded++
		}
	}
	if padded != 2 {
		t.Fatalf("%d zero-edge pads, want 2", padded)
	}
}

func TestValidationWithGold(t *testing.T) {
	w, err := Load(fixturePaths(t), Params{}, 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	graphLists, gold := w.ValidationWithGold()
	if len(graphLists) != 1 || len(gold) != 1 {
		t.Fatalf("lists = %d/%d", len(graphLists), len(gold))
	}
	if len(graphLists[0]) != 2 {
		t.Fatalf("choice graphs = %d, want 2", len(graphLists[0]))
	}
	if len(gold[0]) != 1 || gold[0][0] != "italy" {
		t.Fatalf("gold answers = %v", gold[0])
	}
}

func TestAnswersFromQuestion(t *testing.T) {
	cases := []struct {
		target string
		want   []string
	}{
		{`(list (description "Padmé Amidala"))`, []string{"Padmé Amidala"}},
		{`(list (description 1972))`, []string{"1972"}},
		{`(list (description "Jazz") (description "Blues"))`, []string{"Jazz", "Blues"}},
		{`nothing structured`, []string{}},
	}
	for _, c := range cases {
		got := AnswersFromQuestion(Question{TargetValue: c.target})
		if len(got) != len(c.want) {
			t.Fatalf("%q: got %v, want %v", c.target, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q: got %v, want %v", c.target, got, c.want)
			}
		}
	}
}

func TestMainEntityFromQuestion(t *testing.T) {
	m, ok := MainEntityFromQuestion(Question{URL: "http://www.freebase.com/view/en/texas_rangers"})
	if !ok {
		t.Fatalf("url-bearing question should yield a mention")
	}
	if m.Kind != "URL" {
		t.Fatalf("kind = %q", m.Kind)
	}
	if len(m.Tokens) != 2 || m.Tokens[0] != "Texas" || m.Tokens[1] != "Rangers" {
		t.Fatalf("tokens = %v", m.Tokens)
	}

	if _, ok := MainEntityFromQuestion(Question{}); ok {
		t.Fatalf("no url, no mention")
	}

	if got, _ := MainEntityFromQuestion(Question{URL: "http://www.freebase.com/view/en/cher"}); len(got.Tokens) != 1 || got.Tokens[0] != "Cher" {
		t.Fatalf("single-word slug: %v", got.Tokens)
	}
}
