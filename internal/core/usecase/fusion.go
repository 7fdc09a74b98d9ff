package usecase

import (
	"fmt"
	"math"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

// FusionConfig holds the tunable fusion thresholds. Defaults mirror
// config.Load.
type FusionConfig struct {
	// MaxBoost caps the confidence contribution of lexical evidence.
	MaxBoost float64
	// OverrideThreshold is the minimum lexical signal strength required for
	// text evidence to flip the visual class.
	OverrideThreshold float64
	// HighConfidence is the vision confidence above which the visual class is
	// never overridden.
	HighConfidence float64
	// TieEpsilon is the probability window within which two classes count as
	// tied for argmax.
	TieEpsilon float64
	// KeywordTopN bounds the keywords reported on a result.
	KeywordTopN int
}

func (c FusionConfig) normalize() FusionConfig {
	out := c
	if out.MaxBoost <= 0 {
		out.MaxBoost = 0.08
	}
	if out.OverrideThreshold <= 0 {
		out.OverrideThreshold = 0.30
	}
	if out.HighConfidence <= 0 {
		out.HighConfidence = 0.85
	}
	if out.TieEpsilon <= 0 {
		out.TieEpsilon = 0.01
	}
	if out.KeywordTopN <= 0 {
		out.KeywordTopN = 5
	}
	return out
}

// FusionEngine combines a vision probability vector with lexical keyword
// evidence into one calibrated decision.
type FusionEngine struct {
	cfg FusionConfig
}

func NewFusionEngine(cfg FusionConfig) *FusionEngine {
	return &FusionEngine{cfg: cfg.normalize()}
}

// Fuse resolves the final class and confidence for one page.
//
// With no lexical evidence the visual decision passes through untouched and
// FusionApplied stays false. Otherwise the lexical score of the visual class
// is scaled into [0, MaxBoost] and added to the confidence; the lexical top
// class replaces the visual one only when it disagrees, its signal strength
// exceeds OverrideThreshold, and the visual confidence is below
// HighConfidence. Text evidence may flip a low-confidence visual call, never
// a high-confidence one.
func (e *FusionEngine) Fuse(
	probs domain.ClassProbabilities,
	lexical domain.LexicalScore,
	keywordsByClass map[domain.Class][]string,
	ocrText string,
	simulated bool,
	pageIndex int,
) domain.FusionResult {
	lexTop, lexStrength, hasLexical := lexical.Top()

	cnnClass, cnnConfidence := e.argmax(probs, lexTop, hasLexical)

	result := domain.FusionResult{
		DocumentClass: cnnClass,
		Confidence:    cnnConfidence,
		CNNConfidence: cnnConfidence,
		OCRText:       ocrText,
		IsSimulation:  simulated,
		PageIndex:     pageIndex,
	}

	if !hasLexical {
		result.Summary = summarize(result)
		return result
	}

	boost := e.scaleBoost(lexical[cnnClass])
	result.OCRBoost = boost
	result.Confidence = math.Min(1.0, cnnConfidence+boost)
	result.FusionApplied = true

	if lexTop != cnnClass && lexStrength > e.cfg.OverrideThreshold && cnnConfidence < e.cfg.HighConfidence {
		result.DocumentClass = lexTop
	}

	result.Keywords = topKeywords(keywordsByClass[result.DocumentClass], e.cfg.KeywordTopN)
	result.Summary = summarize(result)
	return result
}

// argmax picks the class with the highest probability. Classes within
// TieEpsilon of the maximum count as tied; ties prefer the lexical top class
// when it is among them, else the lowest taxonomy index.
func (e *FusionEngine) argmax(probs domain.ClassProbabilities, lexTop domain.Class, hasLexical bool) (domain.Class, float64) {
	best := domain.Classes()[0]
	maxProb := probs[best]
	for _, c := range domain.Classes()[1:] {
		if probs[c] > maxProb {
			best = c
			maxProb = probs[c]
		}
	}
	if hasLexical && lexTop != best && maxProb-probs[lexTop] <= e.cfg.TieEpsilon {
		return lexTop, probs[lexTop]
	}
	return best, maxProb
}

// scaleBoost maps a raw non-negative lexical score into [0, MaxBoost].
// Scores saturate at 1.0 so strong keyword evidence cannot dominate the
// visual decision.
func (e *FusionEngine) scaleBoost(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	if raw > 1 {
		raw = 1
	}
	return raw * e.cfg.MaxBoost
}

func topKeywords(hits []string, n int) []string {
	if len(hits) == 0 {
		return nil
	}
	if len(hits) > n {
		hits = hits[:n]
	}
	out := make([]string, len(hits))
	copy(out, hits)
	return out
}

func summarize(r domain.FusionResult) string {
	if r.FusionApplied {
		return fmt.Sprintf("%s (%.1f%%) [Fusion: %+.1f%%]", r.DocumentClass, r.Confidence*100, r.OCRBoost*100)
	}
	return fmt.Sprintf("%s (%.1f%%)", r.DocumentClass, r.Confidence*100)
}
