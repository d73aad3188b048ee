package mastery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adaptlearn/backend/internal/storage/models"
)

func TestRecordOutcomeUpdatesOneTrack(t *testing.T) {
	tr := NewTracker(Config{})

	st := &models.MasteryState{CueFreeAccuracy: 0.5, CueAssistedAccuracy: 0.5}

	tr.RecordOutcome(st, true, 0)
	assert.InDelta(t, 0.6, st.CueFreeAccuracy, 1e-9)
	assert.InDelta(t, 0.5, st.CueAssistedAccuracy, 1e-9, "assisted track must not move on a cue-free response")
	assert.Equal(t, 1, st.ExposureCount)

	tr.RecordOutcome(st, false, 2)
	assert.InDelta(t, 0.6, st.CueFreeAccuracy, 1e-9, "free track must not move on a cued response")
	assert.InDelta(t, 0.4, st.CueAssistedAccuracy, 1e-9)
	assert.Equal(t, 2, st.ExposureCount)
}

func TestRecordOutcomeConvergesUnderRepetition(t *testing.T) {
	tr := NewTracker(Config{SmoothingAlpha: 0.2})

	st := &models.MasteryState{}
	for i := 0; i < 50; i++ {
		tr.RecordOutcome(st, true, 0)
	}
	assert.Greater(t, st.CueFreeAccuracy, 0.99)
	assert.LessOrEqual(t, st.CueFreeAccuracy, 1.0)
}

func TestPromotionGates(t *testing.T) {
	tr := NewTracker(Config{})

	tests := []struct {
		name string
		st   models.MasteryState
		want models.Stage
	}{
		{
			"unknown promotes at 50%",
			models.MasteryState{Stage: models.StageUnknown, CueFreeAccuracy: 0.50},
			models.StageRecognition,
		},
		{
			"unknown holds below 50%",
			models.MasteryState{Stage: models.StageUnknown, CueFreeAccuracy: 0.49},
			models.StageUnknown,
		},
		{
			"recognition promotes at 60%",
			models.MasteryState{Stage: models.StageRecognition, CueFreeAccuracy: 0.60},
			models.StageRecall,
		},
		{
			"recall needs both accuracy and stability",
			models.MasteryState{Stage: models.StageRecall, CueFreeAccuracy: 0.80, DecayStability: 8},
			models.StageControlled,
		},
		{
			"recall holds with low stability",
			models.MasteryState{Stage: models.StageRecall, CueFreeAccuracy: 0.80, DecayStability: 7},
			models.StageRecall,
		},
		{
			"controlled promotes only with closed gap",
			models.MasteryState{
				Stage:               models.StageControlled,
				CueFreeAccuracy:     0.92,
				CueAssistedAccuracy: 0.95,
				DecayStability:      31,
			},
			models.StageAutomatic,
		},
		{
			"controlled holds with open gap",
			models.MasteryState{
				Stage:               models.StageControlled,
				CueFreeAccuracy:     0.90,
				CueAssistedAccuracy: 1.0,
				DecayStability:      31,
			},
			models.StageControlled,
		},
		{
			"controlled holds with low stability",
			models.MasteryState{
				Stage:               models.StageControlled,
				CueFreeAccuracy:     0.95,
				CueAssistedAccuracy: 0.95,
				DecayStability:      30,
			},
			models.StageControlled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.st
			assert.Equal(t, tt.want, tr.NextStage(&st))
		})
	}
}

func TestDemotionGates(t *testing.T) {
	tr := NewTracker(Config{})

	tests := []struct {
		name string
		st   models.MasteryState
		want models.Stage
	}{
		{
			"recognition demotes below 30%",
			models.MasteryState{Stage: models.StageRecognition, CueFreeAccuracy: 0.29},
			models.StageUnknown,
		},
		{
			"recall demotes below 40%",
			models.MasteryState{Stage: models.StageRecall, CueFreeAccuracy: 0.39},
			models.StageRecognition,
		},
		{
			"controlled demotes below 60%",
			models.MasteryState{Stage: models.StageControlled, CueFreeAccuracy: 0.59},
			models.StageRecall,
		},
		{
			"automatic demotes below 80%",
			models.MasteryState{Stage: models.StageAutomatic, CueFreeAccuracy: 0.79},
			models.StageControlled,
		},
		{
			"automatic holds at 80%",
			models.MasteryState{Stage: models.StageAutomatic, CueFreeAccuracy: 0.80},
			models.StageAutomatic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.st
			assert.Equal(t, tt.want, tr.NextStage(&st))
		})
	}
}

// Whatever the state looks like, a single evaluation moves the stage at most
// one level in either direction.
func TestNextStageMovesAtMostOneLevel(t *testing.T) {
	tr := NewTracker(Config{})

	accuracies := []float64{0, 0.2, 0.35, 0.5, 0.65, 0.8, 0.95, 1.0}
	stabilities := []float64{0, 5, 10, 40}
	gaps := []float64{0, 0.05, 0.25}

	for stage := models.StageUnknown; stage <= models.StageAutomatic; stage++ {
		for _, acc := range accuracies {
			for _, stab := range stabilities {
				for _, gap := range gaps {
					st := &models.MasteryState{
						Stage:               stage,
						CueFreeAccuracy:     acc,
						CueAssistedAccuracy: acc + gap,
						DecayStability:      stab,
					}
					next := tr.NextStage(st)
					diff := int(next) - int(stage)
					assert.LessOrEqual(t, diff, 1)
					assert.GreaterOrEqual(t, diff, -1)
				}
			}
		}
	}
}

func TestSelectCueLevel(t *testing.T) {
	tests := []struct {
		name string
		st   models.MasteryState
		want CueLevel
	}{
		{
			"closed gap with exposure drops cues",
			models.MasteryState{CueFreeAccuracy: 0.85, CueAssistedAccuracy: 0.90, ExposureCount: 4},
			CueNone,
		},
		{
			"closed gap without exposure keeps minimal",
			models.MasteryState{CueFreeAccuracy: 0.85, CueAssistedAccuracy: 0.90, ExposureCount: 3},
			CueMinimal,
		},
		{
			"moderate gap",
			models.MasteryState{CueFreeAccuracy: 0.5, CueAssistedAccuracy: 0.75},
			CueModerate,
		},
		{
			"wide gap keeps full scaffolding",
			models.MasteryState{CueFreeAccuracy: 0.3, CueAssistedAccuracy: 0.8},
			CueFull,
		},
		{
			"fresh item gets moderate cues",
			models.MasteryState{},
			CueModerate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.st
			assert.Equal(t, tt.want, SelectCueLevel(&st))
		})
	}
}
