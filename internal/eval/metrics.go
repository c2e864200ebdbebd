// Package eval scores retrieved answer sets against gold answers.
package eval

import "strings"

// Scores is a precision/recall/F1 triple.
type Scores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Gold lifts plain answers into alternative-label form (one variant each).
func Gold(answers []string) [][]string {
	out := make([][]string, 0, len(answers))
	for _, a := range answers {
		out = append(out, []string{a})
	}
	return out
}

// PrecisionRecallF1 scores a retrieved answer list against gold answers,
// where each gold entry lists acceptable surface labels for one answer.
// Matching is case-insensitive. Both sides empty scores perfect; one side
// empty scores zero.
func PrecisionRecallF1(gold [][]string, retrieved []string) Scores {
	if len(gold) == 0 && len(retrieved) == 0 {
		return Scores{Precision: 1, Recall: 1, F1: 1}
	}
	if len(gold) == 0 || len(retrieved) == 0 {
		return Scores{}
	}

	variantToGold := make(map[string]int)
	for gi, variants := range gold {
		for _, v := range variants {
			variantToGold[strings.ToLower(strings.TrimSpace(v))] = gi
		}
	}

	matchedGold := make(map[int]bool, len(gold))
	matchedRetrieved := 0
	for _, r := range retrieved {
		gi, ok := variantToGold[strings.ToLower(strings.TrimSpace(r))]
		if !ok {
			continue
		}
		matchedRetrieved++
		matchedGold[gi] = true
	}

	precision := float64(matchedRetrieved) / float64(len(retrieved))
	recall := float64(len(matchedGold)) / float64(len(gold))
	if precision+recall == 0 {
		return Scores{}
	}
	f1 := 2 * precision * recall / (precision + recall)
	return Scores{Precision: precision, Recall: recall, F1: f1}
}
