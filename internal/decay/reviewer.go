// Package decay implements the per-item memory model: an exponential
// forgetting curve parameterized by stability (days) and difficulty (1..10),
// updated from a four-point outcome rating.
package decay

import (
	"fmt"
	"math"
	"time"
)

// State is the memory state of one item. The zero value means the item has
// never been reviewed.
type State struct {
	Stability  float64 // days until recall probability decays to ~37%
	Difficulty float64 // 1..10, neutral midpoint 5
}

// Reviewed reports whether the item has a prior review.
func (s State) Reviewed() bool {
	return s.Stability > 0
}

// Config holds the update multipliers. Zero values fall back to defaults.
type Config struct {
	LapseStabilityFactor float64 // stability retained after a lapse
	HardMultiplier       float64
	GoodMultiplier       float64
	EasyMultiplier       float64
	LapseDifficultyStep  float64 // difficulty increase on a lapse
	EasyDifficultyStep   float64 // difficulty decrease on an easy recall
}

func DefaultConfig() Config {
	return Config{
		LapseStabilityFactor: 0.2,
		HardMultiplier:       1.5,
		GoodMultiplier:       2.0,
		EasyMultiplier:       2.5,
		LapseDifficultyStep:  1.0,
		EasyDifficultyStep:   0.3,
	}
}

// Reviewer applies rating outcomes to memory states and schedules the next
// review. All methods are pure with respect to the Reviewer itself.
type Reviewer struct {
	cfg Config
}

func NewReviewer(cfg Config) *Reviewer {
	d := DefaultConfig()
	if cfg.LapseStabilityFactor == 0 {
		cfg.LapseStabilityFactor = d.LapseStabilityFactor
	}
	if cfg.HardMultiplier == 0 {
		cfg.HardMultiplier = d.HardMultiplier
	}
	if cfg.GoodMultiplier == 0 {
		cfg.GoodMultiplier = d.GoodMultiplier
	}
	if cfg.EasyMultiplier == 0 {
		cfg.EasyMultiplier = d.EasyMultiplier
	}
	if cfg.LapseDifficultyStep == 0 {
		cfg.LapseDifficultyStep = d.LapseDifficultyStep
	}
	if cfg.EasyDifficultyStep == 0 {
		cfg.EasyDifficultyStep = d.EasyDifficultyStep
	}
	return &Reviewer{cfg: cfg}
}

// Seed stabilities for an item's first-ever review, indexed by rating.
// Higher ratings start the forgetting curve further out.
var initialStability = map[Rating]float64{
	Again: 0.5,
	Hard:  1.0,
	Good:  2.0,
	Easy:  4.0,
}

const neutralDifficulty = 5.0

// Result is the outcome of applying one review.
type Result struct {
	State        State
	IntervalDays float64
	Due          time.Time
	Lapsed       bool
}

// Review applies a rating to the state at the given time and returns the
// updated state plus scheduling. An out-of-range rating is rejected.
func (rv *Reviewer) Review(st State, r Rating, now time.Time) (Result, error) {
	if !r.IsValid() {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}

	var next State
	if !st.Reviewed() {
		next = State{
			Stability:  initialStability[r],
			Difficulty: neutralDifficulty,
		}
		if r == Again {
			// First exposure already failed: harder than neutral.
			next.Difficulty = clampDifficulty(neutralDifficulty + rv.cfg.LapseDifficultyStep)
		}
	} else {
		next = rv.advance(st, r)
	}

	interval := rv.interval(next)
	return Result{
		State:        next,
		IntervalDays: interval,
		Due:          now.Add(time.Duration(interval * 24 * float64(time.Hour))),
		Lapsed:       r == Again,
	}, nil
}

// Retrievability returns the modeled recall probability after elapsed time,
// R(t) = e^(-t / stability). Unreviewed items have no curve yet and return 0.
func (rv *Reviewer) Retrievability(st State, elapsed time.Duration) float64 {
	if !st.Reviewed() {
		return 0
	}
	elapsedDays := elapsed.Hours() / 24.0
	return math.Exp(-elapsedDays / st.Stability)
}

func (rv *Reviewer) advance(st State, r Rating) State {
	next := st
	switch r {
	case Again:
		next.Stability = st.Stability * rv.cfg.LapseStabilityFactor
		next.Difficulty = clampDifficulty(st.Difficulty + rv.cfg.LapseDifficultyStep)
	case Hard:
		next.Stability = st.Stability * rv.cfg.HardMultiplier
	case Good:
		next.Stability = st.Stability * rv.cfg.GoodMultiplier
	case Easy:
		next.Stability = st.Stability * rv.cfg.EasyMultiplier
		next.Difficulty = clampDifficulty(st.Difficulty - rv.cfg.EasyDifficultyStep)
	}
	return next
}

// interval computes the next review interval in days:
// stability * (1 + (5 - difficulty) / 10), floored at one day.
func (rv *Reviewer) interval(st State) float64 {
	days := st.Stability * (1 + (neutralDifficulty-st.Difficulty)/10)
	if days < 1 {
		return 1
	}
	return days
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, 1), 10)
}
