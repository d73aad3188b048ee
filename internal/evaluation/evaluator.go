// Package evaluation scores a learner's raw answer against the expected one:
// exact or fuzzy matches earn credit, misses are classified by subtype, and
// the outcome is distilled into the rating the decay model consumes and the
// delta the ability tracker consumes.
package evaluation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/adaptlearn/backend/internal/decay"
)

var (
	// ErrNegativeLatency marks a latency below zero. Latencies come from the
	// presentation layer's own clock; a negative value is a bug there, never
	// a learner mistake.
	ErrNegativeLatency = errors.New("evaluation: negative response latency")

	// ErrInvalidSessionMode marks a session mode outside the known set.
	ErrInvalidSessionMode = errors.New("evaluation: invalid session mode")
)

// SessionMode gates how strongly a response moves the learner's ability
// estimate. It never gates mastery or decay updates.
type SessionMode string

const (
	ModeLearning   SessionMode = "learning"   // scaffolded, no ability signal
	ModeTraining   SessionMode = "training"   // half-weight ability signal
	ModeEvaluation SessionMode = "evaluation" // full-weight ability signal
)

type Config struct {
	FuzzyThreshold   float64 // similarity for a near-miss pass
	PartialThreshold float64 // similarity floor for partial credit
	FastLatencyMs    int     // at or under this, an exact match rates Easy
	TrainingWeight   float64 // ability-delta multiplier in training mode
}

func DefaultConfig() Config {
	return Config{
		FuzzyThreshold:   0.90,
		PartialThreshold: 0.70,
		FastLatencyMs:    5000,
		TrainingWeight:   0.5,
	}
}

type Evaluator struct {
	cfg Config
}

func NewEvaluator(cfg Config) *Evaluator {
	d := DefaultConfig()
	if cfg.FuzzyThreshold == 0 {
		cfg.FuzzyThreshold = d.FuzzyThreshold
	}
	if cfg.PartialThreshold == 0 {
		cfg.PartialThreshold = d.PartialThreshold
	}
	if cfg.FastLatencyMs == 0 {
		cfg.FastLatencyMs = d.FastLatencyMs
	}
	if cfg.TrainingWeight == 0 {
		cfg.TrainingWeight = d.TrainingWeight
	}
	return &Evaluator{cfg: cfg}
}

// AbilityWeight returns the multiplier applied to the ability delta for the
// given mode. Learning and evaluation weights are structural (silent and
// full); only the training weight is tunable.
func (e *Evaluator) AbilityWeight(m SessionMode) (float64, error) {
	switch m {
	case ModeLearning:
		return 0, nil
	case ModeTraining:
		return e.cfg.TrainingWeight, nil
	case ModeEvaluation:
		return 1.0, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSessionMode, string(m))
	}
}

// Result is the scored outcome of one response.
type Result struct {
	Correct      bool
	Credit       float64
	Similarity   float64
	Rating       decay.Rating
	ErrorSubtype string  // empty on a pass
	AbilityDelta float64 // unweighted; the session gate applies mode weight
}

// Evaluate scores the raw response. Both strings are normalized before
// comparison; similarity is 1 - editDistance/maxLength.
func (e *Evaluator) Evaluate(expected, raw string, latencyMs int) (Result, error) {
	if latencyMs < 0 {
		return Result{}, fmt.Errorf("%w: %d ms", ErrNegativeLatency, latencyMs)
	}

	want := Normalize(expected)
	got := Normalize(raw)

	if want == got {
		rating := decay.Good
		if latencyMs <= e.cfg.FastLatencyMs {
			rating = decay.Easy
		}
		return e.result(true, 1.0, 1.0, rating, ""), nil
	}

	sim := Similarity(want, got)

	switch {
	case sim >= e.cfg.FuzzyThreshold:
		// Close enough to count, but effortful: schedule it sooner.
		return e.result(true, 0.95, sim, decay.Hard, ""), nil

	case sim >= e.cfg.PartialThreshold:
		return e.result(false, sim, sim, decay.Again, classifySubtype(want, got)), nil

	default:
		return e.result(false, 0, sim, decay.Again, "wrong_word"), nil
	}
}

func (e *Evaluator) result(correct bool, credit, sim float64, rating decay.Rating, subtype string) Result {
	return Result{
		Correct:      correct,
		Credit:       credit,
		Similarity:   sim,
		Rating:       rating,
		ErrorSubtype: subtype,
		AbilityDelta: 0.1 * (credit - 0.5),
	}
}

// Normalize case-folds, trims, collapses internal whitespace and strips
// punctuation so comparison sees only the substance of the answer.
func Normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Similarity is 1 - distance/maxLength over normalized strings, where
// distance is Damerau-Levenshtein (a transposition counts as one edit, since
// swapped letters are the most common slip).
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(editDistance(a, b))/float64(maxLen)
}

// classifySubtype labels a near-miss: same length with few positional
// differences reads as a spelling slip, a length drift of one or two
// characters as a typo, anything else as the wrong word.
func classifySubtype(want, got string) string {
	wr, gr := []rune(want), []rune(got)
	lenDiff := len(wr) - len(gr)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}

	if lenDiff == 0 {
		diffs := 0
		for i := range wr {
			if wr[i] != gr[i] {
				diffs++
			}
		}
		if diffs <= 2 {
			return "spelling"
		}
		return "wrong_word"
	}
	if lenDiff <= 2 {
		return "typo"
	}
	return "wrong_word"
}

// editDistance is the Damerau-Levenshtein distance with adjacent
// transpositions, computed over two rows plus a transposition row.
func editDistance(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev2 := make([]int, len(br)+1)
	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)

	for j := 0; j <= len(br); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
			if i > 1 && j > 1 && ar[i-1] == br[j-2] && ar[i-2] == br[j-1] {
				if t := prev2[j-2] + 1; t < curr[j] {
					curr[j] = t
				}
			}
		}
		prev2, prev, curr = prev, curr, prev2
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
