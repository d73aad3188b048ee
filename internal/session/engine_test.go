package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptlearn/backend/internal/bottleneck"
	"github.com/adaptlearn/backend/internal/decay"
	"github.com/adaptlearn/backend/internal/evaluation"
	"github.com/adaptlearn/backend/internal/mastery"
	"github.com/adaptlearn/backend/internal/priority"
	"github.com/adaptlearn/backend/internal/storage/models"
	"github.com/adaptlearn/backend/internal/storage/sqlite"
)

func newTestEngine(t *testing.T) (*Engine, *sqlite.Client) {
	t.Helper()

	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	engine := NewEngine(
		db,
		nil, // no cache
		evaluation.NewEvaluator(evaluation.Config{}),
		mastery.NewTracker(mastery.Config{}),
		decay.NewReviewer(decay.Config{}),
		bottleneck.NewDetector(bottleneck.Config{}, nil),
		priority.NewRanker(priority.Weights{}),
		nil, // template feedback only
		Config{},
	)
	return engine, db
}

func seedObject(t *testing.T, db *sqlite.Client, id, content string, c models.Component) {
	t.Helper()
	require.NoError(t, db.InsertLanguageObject(&models.LanguageObject{
		ID:        id,
		Content:   content,
		Component: c,
		Value:     models.ValueVector{Frequency: 0.6, Relational: 0.5, Domain: 0.5, Morph: 0.3, Phon: 0.4},
		CreatedAt: time.Now(),
	}))
}

func TestProcessResponseFirstExposure(t *testing.T) {
	engine, db := newTestEngine(t)
	seedObject(t, db, "obj-1", "receive", models.Lexicon)

	result, err := engine.ProcessResponse(context.Background(), ResponsePayload{
		LearnerID:         "learner-1",
		ObjectID:          "obj-1",
		RawResponse:       "receive",
		ResponseLatencyMs: 1500,
		CueLevelUsed:      0,
		SessionID:         "session-1",
		SessionMode:       evaluation.ModeEvaluation,
	})
	require.NoError(t, err)

	assert.True(t, result.Correct)
	assert.Equal(t, 1.0, result.Credit)
	assert.NotEmpty(t, result.FeedbackText)
	assert.Equal(t, models.StageUnknown, result.NewStage, "one response cannot clear the first gate")
	assert.False(t, result.StageChanged)
	assert.True(t, result.NextReviewAt.After(time.Now()))

	st, err := db.GetMasteryState("learner-1", "obj-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ExposureCount)
	assert.Equal(t, 1, st.Repetitions)
	assert.Zero(t, st.Lapses)
	assert.InDelta(t, 0.2, st.CueFreeAccuracy, 1e-9)
	assert.Equal(t, 4.0, st.DecayStability, "fast exact match seeds the easy stability")
	assert.InDelta(t, 0.05, st.Ability, 1e-9, "evaluation mode carries the full delta")
	require.NotNil(t, st.LastReviewAt)

	records, err := db.GetOutcomeRecords("learner-1", "", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Correct)
	assert.Equal(t, "session-1", records[0].SessionID)
}

func TestProcessResponseLearningModeFreezesAbility(t *testing.T) {
	engine, db := newTestEngine(t)
	seedObject(t, db, "obj-1", "receive", models.Lexicon)

	_, err := engine.ProcessResponse(context.Background(), ResponsePayload{
		LearnerID:    "learner-1",
		ObjectID:     "obj-1",
		RawResponse:  "receive",
		CueLevelUsed: 2,
		SessionMode:  evaluation.ModeLearning,
	})
	require.NoError(t, err)

	st, err := db.GetMasteryState("learner-1", "obj-1")
	require.NoError(t, err)
	assert.Zero(t, st.Ability, "learning mode carries no ability signal")
	assert.InDelta(t, 0.2, st.CueAssistedAccuracy, 1e-9, "cued response updates the assisted track")
	assert.Zero(t, st.CueFreeAccuracy)
}

func TestProcessResponseLapse(t *testing.T) {
	engine, db := newTestEngine(t)
	seedObject(t, db, "obj-1", "receive", models.Lexicon)

	payload := ResponsePayload{
		LearnerID:   "learner-1",
		ObjectID:    "obj-1",
		RawResponse: "receive",
		SessionMode: evaluation.ModeTraining,
	}
	_, err := engine.ProcessResponse(context.Background(), payload)
	require.NoError(t, err)

	payload.RawResponse = "banana"
	result, err := engine.ProcessResponse(context.Background(), payload)
	require.NoError(t, err)

	assert.False(t, result.Correct)
	assert.Zero(t, result.Credit)

	st, err := db.GetMasteryState("learner-1", "obj-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Lapses)
	assert.Equal(t, 2, st.Repetitions)
	assert.Less(t, st.DecayStability, 4.0, "a lapse collapses stability")
}

func TestProcessResponseValidation(t *testing.T) {
	engine, db := newTestEngine(t)
	seedObject(t, db, "obj-1", "receive", models.Lexicon)

	_, err := engine.ProcessResponse(context.Background(), ResponsePayload{
		LearnerID:    "learner-1",
		ObjectID:     "obj-1",
		RawResponse:  "receive",
		CueLevelUsed: 4,
		SessionMode:  evaluation.ModeTraining,
	})
	assert.ErrorIs(t, err, ErrInvalidCueLevel)

	_, err = engine.ProcessResponse(context.Background(), ResponsePayload{
		LearnerID:   "learner-1",
		ObjectID:    "obj-1",
		RawResponse: "receive",
		SessionMode: "cramming",
	})
	assert.ErrorIs(t, err, evaluation.ErrInvalidSessionMode)

	_, err = engine.ProcessResponse(context.Background(), ResponsePayload{
		LearnerID:   "learner-1",
		ObjectID:    "missing",
		RawResponse: "receive",
		SessionMode: evaluation.ModeTraining,
	})
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestReviewQueueIncludesUnseenObjects(t *testing.T) {
	engine, db := newTestEngine(t)
	seedObject(t, db, "obj-seen", "receive", models.Lexicon)
	seedObject(t, db, "obj-new", "although", models.Syntax)

	_, err := engine.ProcessResponse(context.Background(), ResponsePayload{
		LearnerID:   "learner-1",
		ObjectID:    "obj-seen",
		RawResponse: "receive",
		SessionMode: evaluation.ModeTraining,
	})
	require.NoError(t, err)

	queue, err := engine.ReviewQueue(context.Background(), "learner-1")
	require.NoError(t, err)
	require.Len(t, queue, 2)

	ids := []string{queue[0].Object.ID, queue[1].Object.ID}
	assert.Contains(t, ids, "obj-new", "never-practiced objects must still be queued")

	// The unseen object is due immediately with no mastery discount, so it
	// outranks the just-reviewed one.
	assert.Equal(t, "obj-new", queue[0].Object.ID)
}

func TestBottleneckInsufficientData(t *testing.T) {
	engine, db := newTestEngine(t)
	seedObject(t, db, "obj-1", "receive", models.Lexicon)

	_, err := engine.ProcessResponse(context.Background(), ResponsePayload{
		LearnerID:   "learner-1",
		ObjectID:    "obj-1",
		RawResponse: "wrong",
		SessionMode: evaluation.ModeTraining,
	})
	require.NoError(t, err)

	analysis, err := engine.Bottleneck(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.True(t, analysis.InsufficientData)
	assert.False(t, analysis.HasBottleneck)
}

func TestRefreshUrgency(t *testing.T) {
	engine, db := newTestEngine(t)
	seedObject(t, db, "obj-1", "receive", models.Lexicon)

	_, err := engine.ProcessResponse(context.Background(), ResponsePayload{
		LearnerID:   "learner-1",
		ObjectID:    "obj-1",
		RawResponse: "receive",
		SessionMode: evaluation.ModeTraining,
	})
	require.NoError(t, err)

	require.NoError(t, engine.RefreshUrgency(context.Background()))

	// Canceled context stops the pass instead of finishing it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, engine.RefreshUrgency(ctx), context.Canceled)
}

// A refresh pass recomputes urgency against the current clock, so the stale
// score denormalized on the mastery state has to follow the recompute.
func TestRefreshUrgencyUpdatesCachedPriority(t *testing.T) {
	engine, db := newTestEngine(t)
	seedObject(t, db, "obj-1", "receive", models.Lexicon)

	_, err := engine.ProcessResponse(context.Background(), ResponsePayload{
		LearnerID:   "learner-1",
		ObjectID:    "obj-1",
		RawResponse: "receive",
		SessionMode: evaluation.ModeTraining,
	})
	require.NoError(t, err)

	// Plant a stale denormalized score; the refresh must overwrite it.
	st, err := db.GetMasteryState("learner-1", "obj-1")
	require.NoError(t, err)
	st.CachedPriority = -1
	require.NoError(t, db.UpsertMasteryState(st))

	require.NoError(t, engine.RefreshUrgency(context.Background()))

	st, err = db.GetMasteryState("learner-1", "obj-1")
	require.NoError(t, err)
	assert.Greater(t, st.CachedPriority, 0.0)
}

func TestLearnerStats(t *testing.T) {
	engine, db := newTestEngine(t)
	seedObject(t, db, "obj-1", "receive", models.Lexicon)

	_, err := engine.ProcessResponse(context.Background(), ResponsePayload{
		LearnerID:   "learner-1",
		ObjectID:    "obj-1",
		RawResponse: "receive",
		SessionMode: evaluation.ModeTraining,
	})
	require.NoError(t, err)

	stats, err := engine.LearnerStats(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"unknown": 1}, stats.StageCounts)
	assert.Zero(t, stats.DueCount, "the item was just reviewed and is not due")
}
