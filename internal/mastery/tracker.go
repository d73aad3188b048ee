// Package mastery drives the five-stage mastery state machine: accuracy
// tracking via exponential smoothing, threshold-gated stage transitions, and
// scaffolding cue selection.
package mastery

import (
	"github.com/adaptlearn/backend/internal/storage/models"
)

// CueLevel is the amount of scaffolding shown with a task.
type CueLevel int

const (
	CueNone CueLevel = iota
	CueMinimal
	CueModerate
	CueFull
)

func (c CueLevel) String() string {
	switch c {
	case CueNone:
		return "none"
	case CueMinimal:
		return "minimal"
	case CueModerate:
		return "moderate"
	case CueFull:
		return "full"
	default:
		return "unknown"
	}
}

// Config holds the smoothing factor for the accuracy averages.
type Config struct {
	SmoothingAlpha float64
}

type Tracker struct {
	alpha float64
}

func NewTracker(cfg Config) *Tracker {
	alpha := cfg.SmoothingAlpha
	if alpha == 0 {
		alpha = 0.2
	}
	return &Tracker{alpha: alpha}
}

// RecordOutcome folds one response into the state's accuracy averages.
// Exactly one of the two tracks updates: cue-free when no scaffolding was
// shown, cue-assisted otherwise. The counterpart track is left untouched so
// the scaffolding gap stays meaningful.
func (t *Tracker) RecordOutcome(st *models.MasteryState, correct bool, cueLevel int) {
	outcome := 0.0
	if correct {
		outcome = 1.0
	}

	if cueLevel == 0 {
		st.CueFreeAccuracy = st.CueFreeAccuracy*(1-t.alpha) + outcome*t.alpha
	} else {
		st.CueAssistedAccuracy = st.CueAssistedAccuracy*(1-t.alpha) + outcome*t.alpha
	}
	st.ExposureCount++
}

// NextStage returns the stage the state should occupy after this evaluation.
// The result is always within one level of the current stage: promotion and
// demotion each check only the adjacent stage's gate, so skipping is
// impossible by construction.
func (t *Tracker) NextStage(st *models.MasteryState) models.Stage {
	if promoted, ok := t.promotion(st); ok {
		return promoted
	}
	if demoted, ok := t.demotion(st); ok {
		return demoted
	}
	return st.Stage
}

// Promotion gates use cue-free accuracy; the two upper gates additionally
// require memory stability, and the top gate requires the scaffolding gap to
// have closed.
func (t *Tracker) promotion(st *models.MasteryState) (models.Stage, bool) {
	acc := st.CueFreeAccuracy
	switch st.Stage {
	case models.StageUnknown:
		if acc >= 0.50 {
			return models.StageRecognition, true
		}
	case models.StageRecognition:
		if acc >= 0.60 {
			return models.StageRecall, true
		}
	case models.StageRecall:
		if acc >= 0.75 && st.DecayStability > 7 {
			return models.StageControlled, true
		}
	case models.StageControlled:
		if acc >= 0.90 && st.DecayStability > 30 && st.ScaffoldingGap() < 0.10 {
			return models.StageAutomatic, true
		}
	}
	return st.Stage, false
}

// Demotion gates protect against stale mastery: accuracy decaying below the
// floor for the current stage drops the item one level.
func (t *Tracker) demotion(st *models.MasteryState) (models.Stage, bool) {
	acc := st.CueFreeAccuracy
	switch st.Stage {
	case models.StageRecognition:
		if acc < 0.30 {
			return models.StageUnknown, true
		}
	case models.StageRecall:
		if acc < 0.40 {
			return models.StageRecognition, true
		}
	case models.StageControlled:
		if acc < 0.60 {
			return models.StageRecall, true
		}
	case models.StageAutomatic:
		if acc < 0.80 {
			return models.StageControlled, true
		}
	}
	return st.Stage, false
}

// SelectCueLevel picks the scaffolding for the next presentation of this
// item. A wide gap means the learner still leans on cues, so practice keeps
// them; a narrow gap with enough exposures removes them. The loop is
// self-correcting: less scaffolding forces recall practice, which narrows
// the gap further.
func SelectCueLevel(st *models.MasteryState) CueLevel {
	gap := st.ScaffoldingGap()
	switch {
	case gap < 0.10 && st.ExposureCount > 3:
		return CueNone
	case gap < 0.20 && st.ExposureCount > 2:
		return CueMinimal
	case gap < 0.30:
		return CueModerate
	default:
		return CueFull
	}
}
