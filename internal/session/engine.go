// Package session orchestrates one learning interaction end to end:
// evaluate the response, advance the mastery machine and the decay model,
// gate the ability update, append the outcome, re-rank the item and rebuild
// the learner's queue head. All state updates land in one transaction.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/internal/bottleneck"
	"github.com/adaptlearn/backend/internal/cache/redis"
	"github.com/adaptlearn/backend/internal/content"
	"github.com/adaptlearn/backend/internal/decay"
	"github.com/adaptlearn/backend/internal/evaluation"
	"github.com/adaptlearn/backend/internal/mastery"
	"github.com/adaptlearn/backend/internal/metrics"
	"github.com/adaptlearn/backend/internal/priority"
	"github.com/adaptlearn/backend/internal/storage/models"
	"github.com/adaptlearn/backend/internal/storage/sqlite"
	"github.com/adaptlearn/backend/pkg/logger"
)

// ErrInvalidCueLevel marks a cue level outside 0..3. The presentation layer
// chose the cue, so an out-of-range value is its bug and is rejected loudly.
var ErrInvalidCueLevel = errors.New("session: cue level out of range")

type Config struct {
	BottleneckWindowDays int
	QueueTTL             time.Duration
}

type Engine struct {
	db        *sqlite.Client
	cache     *redis.Client // optional
	evaluator *evaluation.Evaluator
	tracker   *mastery.Tracker
	reviewer  *decay.Reviewer
	detector  *bottleneck.Detector
	ranker    *priority.Ranker
	feedback  content.Provider // optional
	templates *content.TemplateProvider

	windowDays int
	queueTTL   time.Duration
}

func NewEngine(
	db *sqlite.Client,
	cache *redis.Client,
	evaluator *evaluation.Evaluator,
	tracker *mastery.Tracker,
	reviewer *decay.Reviewer,
	detector *bottleneck.Detector,
	ranker *priority.Ranker,
	feedback content.Provider,
	cfg Config,
) *Engine {
	windowDays := cfg.BottleneckWindowDays
	if windowDays == 0 {
		windowDays = bottleneck.DefaultConfig().WindowDays
	}
	queueTTL := cfg.QueueTTL
	if queueTTL == 0 {
		queueTTL = 5 * time.Minute
	}
	return &Engine{
		db:         db,
		cache:      cache,
		evaluator:  evaluator,
		tracker:    tracker,
		reviewer:   reviewer,
		detector:   detector,
		ranker:     ranker,
		feedback:   feedback,
		templates:  content.NewTemplateProvider(),
		windowDays: windowDays,
		queueTTL:   queueTTL,
	}
}

// ResponsePayload is what the presentation layer sends for one response.
type ResponsePayload struct {
	LearnerID         string
	ObjectID          string
	RawResponse       string
	ResponseLatencyMs int
	CueLevelUsed      int
	SessionID         string
	SessionMode       evaluation.SessionMode
}

// ResponseResult is what goes back to the presentation layer.
type ResponseResult struct {
	Correct           bool
	Credit            float64
	FeedbackText      string
	NewStage          models.Stage
	StageChanged      bool
	NextReviewAt      time.Time
	NextCueLevel      mastery.CueLevel
	UpdatedBottleneck *bottleneck.Analysis // nil unless the analysis changed
	NextQueueItem     *priority.QueueItem
}

// ProcessResponse runs the full evaluation chain for one response. The prior
// state is fetched before the chain starts and the new state persists in a
// single transaction when it ends, so two interleaved evaluations of the same
// object can never compute from stale state.
func (e *Engine) ProcessResponse(ctx context.Context, payload ResponsePayload) (*ResponseResult, error) {
	started := time.Now()
	now := started

	if payload.CueLevelUsed < 0 || payload.CueLevelUsed > 3 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCueLevel, payload.CueLevelUsed)
	}
	abilityWeight, err := e.evaluator.AbilityWeight(payload.SessionMode)
	if err != nil {
		return nil, err
	}

	obj, err := e.db.GetLanguageObject(payload.ObjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch language object: %w", err)
	}

	st, err := e.db.GetMasteryState(payload.LearnerID, payload.ObjectID)
	if errors.Is(err, sqlite.ErrNotFound) {
		// First exposure to this object.
		st = &models.MasteryState{
			LearnerID:    payload.LearnerID,
			ObjectID:     payload.ObjectID,
			NextReviewAt: now,
		}
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mastery state: %w", err)
	}

	res, err := e.evaluator.Evaluate(obj.Content, payload.RawResponse, payload.ResponseLatencyMs)
	if err != nil {
		return nil, err
	}

	// Mastery: accuracy smoothing, then a single-step stage transition.
	oldStage := st.Stage
	e.tracker.RecordOutcome(st, res.Correct, payload.CueLevelUsed)
	st.Stage = e.tracker.NextStage(st)
	stageChanged := st.Stage != oldStage

	// Decay: feed the derived rating into the memory model.
	dres, err := e.reviewer.Review(decay.State{
		Stability:  st.DecayStability,
		Difficulty: st.DecayDifficulty,
	}, res.Rating, now)
	if err != nil {
		return nil, err
	}
	st.DecayStability = dres.State.Stability
	st.DecayDifficulty = dres.State.Difficulty
	st.Repetitions++
	if dres.Lapsed {
		st.Lapses++
	}
	st.LastReviewAt = &now
	st.NextReviewAt = dres.Due

	// Ability moves only as much as the session mode allows; learning-mode
	// responses are scaffolded and carry no reliable signal.
	st.Ability += abilityWeight * res.AbilityDelta
	st.UpdatedAt = now

	rec := &models.OutcomeRecord{
		ID:        uuid.New().String(),
		LearnerID: payload.LearnerID,
		ObjectID:  payload.ObjectID,
		Component: obj.Component,
		Correct:   res.Correct,
		LatencyMs: payload.ResponseLatencyMs,
		CueLevel:  payload.CueLevelUsed,
		SessionID: payload.SessionID,
		CreatedAt: now,
	}

	// Misses can shift the learner's bottleneck; recompute then. Correct
	// responses reuse the cached analysis for the ranking boost.
	var analysis *bottleneck.Analysis
	var updatedBottleneck *bottleneck.Analysis
	if !res.Correct {
		analysis, err = e.analyze(ctx, payload.LearnerID, append(e.windowRecords(payload.LearnerID, now), *rec), now)
		if err != nil {
			logger.Warn("Bottleneck recomputation failed", zap.Error(err))
		} else if analysis != nil && analysis.HasBottleneck {
			updatedBottleneck = analysis
		}
	} else {
		analysis = e.cachedAnalysis(ctx, payload.LearnerID)
	}

	score := e.ranker.Score(*obj, st, analysis, now)
	st.CachedPriority = score.Effective

	err = e.db.SaveEvaluation(ctx, st, rec, score.Base, score.Adjustment, score.Urgency, score.Boost, score.Effective)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.InvalidateQueue(ctx, payload.LearnerID); err != nil {
			logger.Warn("Queue invalidation failed", zap.Error(err))
		}
	}

	result := &ResponseResult{
		Correct:           res.Correct,
		Credit:            res.Credit,
		FeedbackText:      e.feedbackText(ctx, obj.Content, payload.RawResponse, res, st.Stage, stageChanged),
		NewStage:          st.Stage,
		StageChanged:      stageChanged,
		NextReviewAt:      st.NextReviewAt,
		NextCueLevel:      mastery.SelectCueLevel(st),
		UpdatedBottleneck: updatedBottleneck,
	}

	// A failed reordering keeps the previous queue; it never blocks the
	// learner's feedback.
	queue, err := e.ReviewQueue(ctx, payload.LearnerID)
	if err != nil {
		logger.Warn("Queue rebuild failed, keeping prior order", zap.Error(err))
	} else if len(queue) > 0 {
		result.NextQueueItem = &queue[0]
	}

	metrics.ResponsesTotal.WithLabelValues(res.Rating.String(), string(payload.SessionMode)).Inc()
	metrics.CreditScore.Observe(res.Credit)
	metrics.EvaluationDuration.Observe(time.Since(started).Seconds())
	if stageChanged {
		direction := "promotion"
		if st.Stage < oldStage {
			direction = "demotion"
		}
		metrics.StageTransitions.WithLabelValues(direction).Inc()
	}

	logger.Info("Response processed",
		zap.String("learner_id", payload.LearnerID),
		zap.String("object_id", payload.ObjectID),
		zap.Bool("correct", res.Correct),
		zap.String("rating", res.Rating.String()),
		zap.String("stage", st.Stage.String()),
		zap.Float64("priority", score.Effective),
	)

	return result, nil
}

// ReviewQueue returns the learner's totally ordered review queue,
// cache-aside over redis when a cache is configured.
func (e *Engine) ReviewQueue(ctx context.Context, learnerID string) ([]priority.QueueItem, error) {
	if e.cache != nil {
		var cached []priority.QueueItem
		hit, err := e.cache.GetQueue(ctx, learnerID, &cached)
		if err != nil {
			logger.Warn("Queue cache read failed", zap.Error(err))
		} else if hit {
			metrics.CacheHits.WithLabelValues("queue").Inc()
			return cached, nil
		}
		metrics.CacheMisses.WithLabelValues("queue").Inc()
	}

	queue, err := e.buildQueue(ctx, learnerID, time.Now())
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetQueue(ctx, learnerID, queue, e.queueTTL); err != nil {
			logger.Warn("Queue cache write failed", zap.Error(err))
		}
	}

	metrics.QueueDepth.Set(float64(len(queue)))
	return queue, nil
}

func (e *Engine) buildQueue(ctx context.Context, learnerID string, now time.Time) ([]priority.QueueItem, error) {
	objects, err := e.db.ListLanguageObjects()
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	states, err := e.db.GetMasteryStates(learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mastery states: %w", err)
	}
	byObject := make(map[string]*models.MasteryState, len(states))
	for i := range states {
		byObject[states[i].ObjectID] = &states[i]
	}

	analysis := e.cachedAnalysis(ctx, learnerID)

	items := make([]priority.QueueItem, 0, len(objects))
	for _, obj := range objects {
		st, ok := byObject[obj.ID]
		if !ok {
			// Unseen object: fresh state, due immediately.
			st = &models.MasteryState{
				LearnerID:    learnerID,
				ObjectID:     obj.ID,
				NextReviewAt: now,
			}
		}
		items = append(items, priority.QueueItem{
			Object: obj,
			Stage:  st.Stage,
			Score:  e.ranker.Score(obj, st, analysis, now),
		})
	}

	return priority.BuildQueue(items), nil
}

// Bottleneck recomputes the learner's bottleneck analysis from the outcome
// log, materializes the per-component stats and caches the result.
func (e *Engine) Bottleneck(ctx context.Context, learnerID string) (*bottleneck.Analysis, error) {
	now := time.Now()
	return e.analyze(ctx, learnerID, e.windowRecords(learnerID, now), now)
}

func (e *Engine) analyze(ctx context.Context, learnerID string, records []models.OutcomeRecord, now time.Time) (*bottleneck.Analysis, error) {
	objects, err := e.db.ListLanguageObjects()
	if err != nil {
		return nil, fmt.Errorf("failed to list language objects: %w", err)
	}
	byID := make(map[string]models.LanguageObject, len(objects))
	for _, obj := range objects {
		byID[obj.ID] = obj
	}

	analysis, err := e.detector.Analyze(records, byID, now)
	if err != nil {
		return nil, err
	}

	stats := bottleneck.BuildStats(learnerID, records, analysis, bottleneck.Config{}, now)
	if err := e.db.UpsertComponentStats(stats); err != nil {
		logger.Warn("Component stats upsert failed", zap.Error(err))
	}

	if e.cache != nil {
		if err := e.cache.SetBottleneck(ctx, learnerID, analysis, e.queueTTL); err != nil {
			logger.Warn("Bottleneck cache write failed", zap.Error(err))
		}
	}

	metrics.BottleneckConfidence.Observe(analysis.Confidence)
	return analysis, nil
}

func (e *Engine) windowRecords(learnerID string, now time.Time) []models.OutcomeRecord {
	since := now.AddDate(0, 0, -e.windowDays)
	records, err := e.db.GetOutcomeRecords(learnerID, "", since)
	if err != nil {
		logger.Warn("Outcome record fetch failed", zap.Error(err))
		return nil
	}
	return records
}

func (e *Engine) cachedAnalysis(ctx context.Context, learnerID string) *bottleneck.Analysis {
	if e.cache == nil {
		return nil
	}
	var analysis bottleneck.Analysis
	hit, err := e.cache.GetBottleneck(ctx, learnerID, &analysis)
	if err != nil {
		logger.Warn("Bottleneck cache read failed", zap.Error(err))
		return nil
	}
	if !hit {
		metrics.CacheMisses.WithLabelValues("bottleneck").Inc()
		return nil
	}
	metrics.CacheHits.WithLabelValues("bottleneck").Inc()
	return &analysis
}

func (e *Engine) feedbackText(ctx context.Context, expected, given string, res evaluation.Result, stage models.Stage, stageChanged bool) string {
	req := content.FeedbackRequest{
		Expected:     expected,
		Given:        given,
		Correct:      res.Correct,
		Credit:       res.Credit,
		ErrorSubtype: res.ErrorSubtype,
		StageChanged: stageChanged,
		NewStage:     stage.String(),
	}

	if e.feedback != nil {
		text, err := e.feedback.FeedbackText(ctx, req)
		if err == nil {
			return text
		}
		logger.Warn("Feedback provider failed, using template", zap.Error(err))
		metrics.FeedbackFallbacks.Inc()
	}

	text, _ := e.templates.FeedbackText(ctx, req)
	return text
}

// RefreshUrgency recomputes effective priorities for every learner's pool.
// Urgency drifts with wall-clock time even without new responses, so this
// runs on a coarse cadence. The whole pass is idempotent and can be canceled
// between items without harm.
func (e *Engine) RefreshUrgency(ctx context.Context) error {
	started := time.Now()

	learners, err := e.db.ListLearners()
	if err != nil {
		return fmt.Errorf("failed to list learners: %w", err)
	}

	objects, err := e.db.ListLanguageObjects()
	if err != nil {
		return fmt.Errorf("failed to list language objects: %w", err)
	}
	byID := make(map[string]models.LanguageObject, len(objects))
	for _, obj := range objects {
		byID[obj.ID] = obj
	}

	refreshed := 0
	for _, learnerID := range learners {
		if err := ctx.Err(); err != nil {
			return err
		}

		states, err := e.db.GetMasteryStates(learnerID)
		if err != nil {
			return fmt.Errorf("failed to fetch states for %s: %w", learnerID, err)
		}

		analysis := e.cachedAnalysis(ctx, learnerID)

		for i := range states {
			st := &states[i]
			obj, ok := byID[st.ObjectID]
			if !ok {
				return fmt.Errorf("mastery state %s/%s references missing object", learnerID, st.ObjectID)
			}

			score := e.ranker.Score(obj, st, analysis, started)
			err := e.db.UpsertPriority(learnerID, st.ObjectID,
				score.Base, score.Adjustment, score.Urgency, score.Boost, score.Effective)
			if err != nil {
				return err
			}
			refreshed++
		}

		if e.cache != nil {
			if err := e.cache.InvalidateQueue(ctx, learnerID); err != nil {
				logger.Warn("Queue invalidation failed", zap.Error(err))
			}
		}
	}

	metrics.UrgencyRefreshDuration.Observe(time.Since(started).Seconds())
	logger.Info("Urgency refresh completed",
		zap.Int("learners", len(learners)),
		zap.Int("priorities", refreshed),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Stats summarizes a learner's progress for the analytics surface.
type Stats struct {
	StageCounts map[string]int
	DueCount    int
	Components  []models.ComponentErrorStats
}

func (e *Engine) LearnerStats(ctx context.Context, learnerID string) (*Stats, error) {
	counts, err := e.db.StageCounts(learnerID)
	if err != nil {
		return nil, err
	}

	named := make(map[string]int, len(counts))
	for stage, count := range counts {
		named[models.Stage(stage).String()] = count
	}

	due, err := e.db.DueCount(learnerID, time.Now())
	if err != nil {
		return nil, err
	}

	components, err := e.db.GetComponentStats(learnerID)
	if err != nil {
		return nil, err
	}

	return &Stats{StageCounts: named, DueCount: due, Components: components}, nil
}
