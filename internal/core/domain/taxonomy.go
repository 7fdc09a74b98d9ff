package domain

import (
	"fmt"
	"math"
)

// Class is one label of the fixed document taxonomy.
type Class string

const (
	ClassInvoice Class = "Invoice"
	ClassDrawing Class = "Drawing"
	ClassReport  Class = "Report"
	ClassReceipt Class = "Receipt"
)

// Classes returns the taxonomy in its canonical order. The index in this
// slice is the tie-break order for fusion decisions.
func Classes() []Class {
	return []Class{ClassInvoice, ClassDrawing, ClassReport, ClassReceipt}
}

// ClassIndex returns the canonical position of c, or -1 for unknown labels.
func ClassIndex(c Class) int {
	for i, known := range Classes() {
		if known == c {
			return i
		}
	}
	return -1
}

// ProbEpsilon bounds the tolerated drift of a probability vector sum.
const ProbEpsilon = 1e-6

// ClassProbabilities maps every taxonomy label to a probability.
type ClassProbabilities map[Class]float64

// Validate checks the probability vector invariants: the label set is exactly
// the taxonomy, every value lies in [0,1], and the values sum to 1 within
// ProbEpsilon.
func (p ClassProbabilities) Validate() error {
	if len(p) != len(Classes()) {
		return fmt.Errorf("probability vector has %d labels, want %d", len(p), len(Classes()))
	}
	sum := 0.0
	for _, c := range Classes() {
		v, ok := p[c]
		if !ok {
			return fmt.Errorf("probability vector missing label %q", c)
		}
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("probability for %q out of range: %v", c, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > ProbEpsilon {
		return fmt.Errorf("probabilities sum to %v, want 1", sum)
	}
	return nil
}

// LexicalScore maps taxonomy labels to non-negative keyword boost weights.
// Scores are not normalized; an empty map means no lexical evidence.
type LexicalScore map[Class]float64

// Top returns the label with the highest lexical score and that score.
// Ties resolve to the lowest taxonomy index. The second return is false when
// the score map is empty or all-zero.
func (s LexicalScore) Top() (Class, float64, bool) {
	best := Class("")
	bestScore := 0.0
	for _, c := range Classes() {
		if v := s[c]; v > bestScore {
			best = c
			bestScore = v
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}
