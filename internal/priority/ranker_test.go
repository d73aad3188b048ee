package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adaptlearn/backend/internal/bottleneck"
	"github.com/adaptlearn/backend/internal/storage/models"
)

var rankTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBaseValue(t *testing.T) {
	r := NewRanker(Weights{})

	full := models.ValueVector{Frequency: 1, Relational: 1, Domain: 1, Morph: 1, Phon: 1}
	assert.InDelta(t, 0.70, r.BaseValue(full), 1e-9, "value weights sum to 0.70")
	assert.Zero(t, r.BaseValue(models.ValueVector{}))

	v := models.ValueVector{Frequency: 0.5, Relational: 0.4, Domain: 0.2, Morph: 0.1, Phon: 0.3}
	want := 0.20*0.5 + 0.15*0.4 + 0.15*0.2 + 0.10*0.1 + 0.10*0.3
	assert.InDelta(t, want, r.BaseValue(v), 1e-9)
}

func TestUrgency(t *testing.T) {
	tests := []struct {
		name string
		due  time.Time
		want float64
	}{
		{"due now", rankTime, 0.5},
		{"24h overdue", rankTime.Add(-24 * time.Hour), 1.0},
		{"72h overdue saturates", rankTime.Add(-72 * time.Hour), 1.0},
		{"12h overdue", rankTime.Add(-12 * time.Hour), 0.75},
		{"due in 3 days", rankTime.Add(72 * time.Hour), 0.5 - 72.0/168.0},
		{"due far out floors", rankTime.Add(30 * 24 * time.Hour), 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Urgency(tt.due, rankTime), 1e-9)
		})
	}
}

// An overdue low-value item must outrank a not-yet-due high-value one when
// the value gap is small enough for urgency to dominate.
func TestOverdueOutranksScheduled(t *testing.T) {
	r := NewRanker(Weights{})

	overdue := models.LanguageObject{
		ID:        "overdue",
		Component: models.Lexicon,
		Value:     models.ValueVector{Frequency: 0.5, Relational: 0.5, Domain: 0.5, Morph: 0.5, Phon: 0.5},
	}
	scheduled := models.LanguageObject{
		ID:        "scheduled",
		Component: models.Lexicon,
		Value:     models.ValueVector{Frequency: 0.7, Relational: 0.7, Domain: 0.7, Morph: 0.7, Phon: 0.7},
	}

	overdueState := &models.MasteryState{
		Stage:           models.StageRecall,
		CueFreeAccuracy: 0.6,
		NextReviewAt:    rankTime.Add(-72 * time.Hour),
	}
	scheduledState := &models.MasteryState{
		Stage:           models.StageRecall,
		CueFreeAccuracy: 0.6,
		NextReviewAt:    rankTime.Add(72 * time.Hour),
	}

	so := r.Score(overdue, overdueState, nil, rankTime)
	ss := r.Score(scheduled, scheduledState, nil, rankTime)

	assert.Equal(t, 1.0, so.Urgency)
	assert.Greater(t, so.Effective, ss.Effective)
}

func TestBottleneckBoostAppliesOnlyToPrimary(t *testing.T) {
	r := NewRanker(Weights{})

	analysis := &bottleneck.Analysis{
		Primary:       models.Morphology,
		HasBottleneck: true,
	}

	st := &models.MasteryState{NextReviewAt: rankTime}
	morph := models.LanguageObject{ID: "m", Component: models.Morphology}
	lex := models.LanguageObject{ID: "l", Component: models.Lexicon}

	boosted := r.Score(morph, st, analysis, rankTime)
	plain := r.Score(lex, st, analysis, rankTime)

	assert.Equal(t, 0.10, boosted.Boost)
	assert.Zero(t, plain.Boost)
	assert.InDelta(t, 0.10, boosted.Effective-plain.Effective, 1e-9)

	// No analysis at all degrades to zero boost, not an error.
	unboosted := r.Score(morph, st, nil, rankTime)
	assert.Zero(t, unboosted.Boost)
}

func TestMasteryAdjustment(t *testing.T) {
	tests := []struct {
		name string
		st   models.MasteryState
		want float64
	}{
		{
			"fresh unknown item",
			models.MasteryState{Stage: models.StageUnknown},
			1.0 * 0.8 * 1.0,
		},
		{
			"productive recall zone",
			models.MasteryState{
				Stage:               models.StageRecall,
				CueFreeAccuracy:     0.6,
				CueAssistedAccuracy: 0.6,
			},
			0.7 * 1.0 * 1.0,
		},
		{
			"mastered item fades",
			models.MasteryState{
				Stage:               models.StageAutomatic,
				CueFreeAccuracy:     0.95,
				CueAssistedAccuracy: 0.95,
			},
			0.3 * 0.3 * 1.0,
		},
		{
			"open gap pushes priority up",
			models.MasteryState{
				Stage:               models.StageRecall,
				CueFreeAccuracy:     0.5,
				CueAssistedAccuracy: 0.9,
			},
			0.7 * 1.0 * 1.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.st
			assert.InDelta(t, tt.want, masteryAdjustment(&st), 1e-9)
		})
	}
}

func TestBuildQueueOrdering(t *testing.T) {
	items := []QueueItem{
		{Object: models.LanguageObject{ID: "low"}, Stage: models.StageRecall, Score: Score{Effective: 0.2}},
		{Object: models.LanguageObject{ID: "high"}, Stage: models.StageRecall, Score: Score{Effective: 0.9}},
		{Object: models.LanguageObject{ID: "mid"}, Stage: models.StageRecall, Score: Score{Effective: 0.5}},
	}

	queue := BuildQueue(items)
	assert.Equal(t, "high", queue[0].Object.ID)
	assert.Equal(t, "mid", queue[1].Object.ID)
	assert.Equal(t, "low", queue[2].Object.ID)

	// Input order is preserved.
	assert.Equal(t, "low", items[0].Object.ID)
}

func TestBuildQueueTieBreaks(t *testing.T) {
	items := []QueueItem{
		{
			Object: models.LanguageObject{ID: "later-stage"},
			Stage:  models.StageControlled,
			Score:  Score{Effective: 0.5, Base: 0.9},
		},
		{
			Object: models.LanguageObject{ID: "early-stage"},
			Stage:  models.StageRecognition,
			Score:  Score{Effective: 0.5, Base: 0.1},
		},
		{
			Object: models.LanguageObject{ID: "early-stage-high-base"},
			Stage:  models.StageRecognition,
			Score:  Score{Effective: 0.5, Base: 0.4},
		},
	}

	queue := BuildQueue(items)
	assert.Equal(t, "early-stage-high-base", queue[0].Object.ID, "lower stage first, then higher base")
	assert.Equal(t, "early-stage", queue[1].Object.ID)
	assert.Equal(t, "later-stage", queue[2].Object.ID)
}
