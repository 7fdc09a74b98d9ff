package lexicon

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

type lexiconFile struct {
	Classes map[string][]string `yaml:"classes"`
}

// Scorer scores raw page text against a static per-class keyword lexicon.
// Each matched term contributes its frequency in the text weighted by an
// inverse document frequency over the lexicon itself, so a term shared by
// several classes counts less than a class-exclusive one.
type Scorer struct {
	keywords map[domain.Class][]string
	idf      map[string]float64
}

// NewScorer builds a scorer from the built-in lexicon.
func NewScorer() (*Scorer, error) {
	return parse(defaultLexicon)
}

// NewScorerFromFile replaces the built-in lexicon with an operator-supplied
// one. An empty path falls back to the default.
func NewScorerFromFile(path string) (*Scorer, error) {
	if path == "" {
		return NewScorer()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Scorer, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}

	s := &Scorer{
		keywords: make(map[domain.Class][]string, len(domain.Classes())),
		idf:      map[string]float64{},
	}

	classCount := map[string]int{}
	for _, class := range domain.Classes() {
		terms, ok := file.Classes[string(class)]
		if !ok || len(terms) == 0 {
			return nil, fmt.Errorf("lexicon missing class %s", class)
		}
		seen := map[string]bool{}
		for _, term := range terms {
			term = strings.ToLower(strings.TrimSpace(term))
			if term == "" || seen[term] {
				continue
			}
			seen[term] = true
			s.keywords[class] = append(s.keywords[class], term)
			classCount[term]++
		}
	}
	for class := range file.Classes {
		if domain.ClassIndex(domain.Class(class)) < 0 {
			return nil, fmt.Errorf("lexicon declares unknown class %s", class)
		}
	}

	total := float64(len(domain.Classes()))
	for term, n := range classCount {
		s.idf[term] = math.Log(1 + total/float64(n))
	}
	return s, nil
}

type hit struct {
	term  string
	score float64
	first int
}

// Score returns the per-class lexical evidence plus, per class, the matched
// terms ordered by contribution descending with ties broken by first
// occurrence in the text. Empty or keyword-free text yields an empty score.
func (s *Scorer) Score(text string) (domain.LexicalScore, map[domain.Class][]string) {
	norm := normalizeText(text)
	if norm == "" {
		return domain.LexicalScore{}, nil
	}

	counts := map[string]int{}
	for _, tok := range strings.Fields(norm) {
		counts[tok]++
	}

	scores := domain.LexicalScore{}
	matches := map[domain.Class][]string{}
	for _, class := range domain.Classes() {
		var hits []hit
		var sum float64
		for _, term := range s.keywords[class] {
			tf := termFrequency(term, norm, counts)
			if tf == 0 {
				continue
			}
			contribution := float64(tf) * s.idf[term]
			sum += contribution
			hits = append(hits, hit{term: term, score: contribution, first: strings.Index(norm, term)})
		}
		if sum == 0 {
			continue
		}
		scores[class] = sum

		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].score != hits[j].score {
				return hits[i].score > hits[j].score
			}
			return hits[i].first < hits[j].first
		})
		terms := make([]string, len(hits))
		for i, h := range hits {
			terms[i] = h.term
		}
		matches[class] = terms
	}

	return scores, matches
}

// termFrequency counts whole-token occurrences; multi-word terms fall back
// to substring counting over the normalized text.
func termFrequency(term, norm string, counts map[string]int) int {
	if strings.ContainsRune(term, ' ') {
		return strings.Count(norm, term)
	}
	return counts[term]
}

// normalizeText lowercases and strips everything but letters and digits so
// tokenization is stable across OCR noise.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r > 127:
			b.WriteRune(foldAccent(r))
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// foldAccent maps the accented letters common in scanned French documents
// onto their ASCII base so lexicon terms stay accent-free.
func foldAccent(r rune) rune {
	switch r {
	case 'à', 'â', 'ä':
		return 'a'
	case 'é', 'è', 'ê', 'ë':
		return 'e'
	case 'ï', 'î':
		return 'i'
	case 'ô', 'ö':
		return 'o'
	case 'ù', 'û', 'ü':
		return 'u'
	case 'ç':
		return 'c'
	case 'ÿ':
		return 'y'
	default:
		return ' '
	}
}
