package conflict

import (
	"strings"
	"unicode"

	"github.com/myrjola/inkwell/internal/config"
)

// Scorer decides whether two fact statements likely contradict each other.
type Scorer interface {
	Contradicts(a, b string) bool
}

const (
	DefaultMinOverlap     = 6
	DefaultOverlapDivisor = 3
)

// DefaultNegationCues are used when no cues are configured.
var DefaultNegationCues = []string{"不是", "不", "没有", "无", "not", "no", "never", "none", "isn't", "wasn't"}

// HeuristicScorer flags statement pairs where exactly one side is negated and both share enough characters.
//
// It is deliberately conservative and misses most real contradictions.
type HeuristicScorer struct {
	wordCues       []string
	substringCues  []string
	minOverlap     int
	overlapDivisor int
}

func NewHeuristicScorer(cfg config.ConflictConfig) *HeuristicScorer {
	cues := cfg.NegationCues
	if len(cues) == 0 {
		cues = DefaultNegationCues
	}
	s := &HeuristicScorer{
		wordCues:       nil,
		substringCues:  nil,
		minOverlap:     cfg.MinOverlap,
		overlapDivisor: cfg.OverlapDivisor,
	}
	if s.minOverlap <= 0 {
		s.minOverlap = DefaultMinOverlap
	}
	if s.overlapDivisor <= 0 {
		s.overlapDivisor = DefaultOverlapDivisor
	}
	for _, cue := range cues {
		cue = fold(cue)
		switch {
		case cue == "":
		case isASCIIWord(cue):
			s.wordCues = append(s.wordCues, cue)
		default:
			s.substringCues = append(s.substringCues, cue)
		}
	}
	return s
}

func (s *HeuristicScorer) Contradicts(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" || na == nb {
		return false
	}
	if s.negated(a) == s.negated(b) {
		return false
	}
	ra, rb := []rune(na), []rune(nb)
	threshold := max(s.minOverlap, min(len(ra), len(rb))/s.overlapDivisor)
	return overlap(ra, rb) >= threshold
}

// negated reports whether text contains a negation cue. Cues made of ASCII letters must match a whole word, other cues
// match anywhere.
func (s *HeuristicScorer) negated(text string) bool {
	folded := fold(text)
	for _, cue := range s.substringCues {
		if strings.Contains(folded, cue) {
			return true
		}
	}
	if len(s.wordCues) == 0 {
		return false
	}
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || r == '\'')
	})
	for _, word := range words {
		for _, cue := range s.wordCues {
			if word == cue {
				return true
			}
		}
	}
	return false
}

// overlap counts the runes of a found in b plus the runes of b found in a.
func overlap(a, b []rune) int {
	return containedIn(a, b) + containedIn(b, a)
}

func containedIn(a, b []rune) int {
	set := make(map[rune]struct{}, len(b))
	for _, r := range b {
		set[r] = struct{}{}
	}
	n := 0
	for _, r := range a {
		if _, ok := set[r]; ok {
			n++
		}
	}
	return n
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || r == '\'') {
			return false
		}
	}
	return true
}
