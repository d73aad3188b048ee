package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/internal/storage/models"
	"github.com/adaptlearn/backend/pkg/logger"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("sqlite: not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS language_objects (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		component TEXT NOT NULL,
		freq_value REAL NOT NULL,
		relational_value REAL NOT NULL,
		domain_value REAL NOT NULL,
		morph_value REAL NOT NULL,
		phon_value REAL NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_objects_component ON language_objects(component);

	CREATE TABLE IF NOT EXISTS mastery_states (
		learner_id TEXT NOT NULL,
		object_id TEXT NOT NULL,
		stage INTEGER NOT NULL DEFAULT 0,
		cue_free_accuracy REAL NOT NULL DEFAULT 0,
		cue_assisted_accuracy REAL NOT NULL DEFAULT 0,
		exposure_count INTEGER NOT NULL DEFAULT 0,
		decay_stability REAL NOT NULL DEFAULT 0,
		decay_difficulty REAL NOT NULL DEFAULT 0,
		repetitions INTEGER NOT NULL DEFAULT 0,
		lapses INTEGER NOT NULL DEFAULT 0,
		last_review_at INTEGER,
		next_review_at INTEGER NOT NULL,
		cached_priority REAL NOT NULL DEFAULT 0,
		ability REAL NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (learner_id, object_id),
		FOREIGN KEY (object_id) REFERENCES language_objects(id)
	);
	CREATE INDEX IF NOT EXISTS idx_mastery_learner ON mastery_states(learner_id);
	CREATE INDEX IF NOT EXISTS idx_mastery_due ON mastery_states(learner_id, next_review_at);

	CREATE TABLE IF NOT EXISTS outcome_records (
		id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL,
		object_id TEXT NOT NULL,
		component TEXT NOT NULL,
		correct INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		cue_level INTEGER NOT NULL,
		session_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (object_id) REFERENCES language_objects(id)
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_learner_time ON outcome_records(learner_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_outcomes_component ON outcome_records(learner_id, component);

	CREATE TABLE IF NOT EXISTS component_error_stats (
		learner_id TEXT NOT NULL,
		component TEXT NOT NULL,
		total_errors INTEGER NOT NULL,
		recent_errors INTEGER NOT NULL,
		error_rate REAL NOT NULL,
		trend REAL NOT NULL,
		recommendation TEXT,
		is_bottleneck INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (learner_id, component)
	);

	CREATE TABLE IF NOT EXISTS priority_cache (
		learner_id TEXT NOT NULL,
		object_id TEXT NOT NULL,
		base_value REAL NOT NULL,
		adjustment REAL NOT NULL,
		urgency REAL NOT NULL,
		boost REAL NOT NULL,
		effective REAL NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (learner_id, object_id)
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertLanguageObject(obj *models.LanguageObject) error {
	query := `
		INSERT INTO language_objects (id, content, component, freq_value, relational_value,
			domain_value, morph_value, phon_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			component = excluded.component,
			freq_value = excluded.freq_value,
			relational_value = excluded.relational_value,
			domain_value = excluded.domain_value,
			morph_value = excluded.morph_value,
			phon_value = excluded.phon_value
	`

	_, err := c.db.Exec(
		query,
		obj.ID,
		obj.Content,
		string(obj.Component),
		obj.Value.Frequency,
		obj.Value.Relational,
		obj.Value.Domain,
		obj.Value.Morph,
		obj.Value.Phon,
		obj.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert language object: %w", err)
	}

	return nil
}

func (c *Client) GetLanguageObject(id string) (*models.LanguageObject, error) {
	query := `SELECT id, content, component, freq_value, relational_value, domain_value,
		morph_value, phon_value, created_at FROM language_objects WHERE id = ?`

	var obj models.LanguageObject
	var component string
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&obj.ID,
		&obj.Content,
		&component,
		&obj.Value.Frequency,
		&obj.Value.Relational,
		&obj.Value.Domain,
		&obj.Value.Morph,
		&obj.Value.Phon,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: language object %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get language object: %w", err)
	}

	obj.Component = models.Component(component)
	obj.CreatedAt = time.Unix(createdAt, 0)

	return &obj, nil
}

func (c *Client) ListLanguageObjects() ([]models.LanguageObject, error) {
	query := `SELECT id, content, component, freq_value, relational_value, domain_value,
		morph_value, phon_value, created_at FROM language_objects`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list language objects: %w", err)
	}
	defer rows.Close()

	var objects []models.LanguageObject
	for rows.Next() {
		var obj models.LanguageObject
		var component string
		var createdAt int64

		err := rows.Scan(&obj.ID, &obj.Content, &component, &obj.Value.Frequency,
			&obj.Value.Relational, &obj.Value.Domain, &obj.Value.Morph, &obj.Value.Phon, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		obj.Component = models.Component(component)
		obj.CreatedAt = time.Unix(createdAt, 0)
		objects = append(objects, obj)
	}

	return objects, rows.Err()
}

func (c *Client) GetMasteryState(learnerID, objectID string) (*models.MasteryState, error) {
	query := `SELECT learner_id, object_id, stage, cue_free_accuracy, cue_assisted_accuracy,
		exposure_count, decay_stability, decay_difficulty, repetitions, lapses,
		last_review_at, next_review_at, cached_priority, ability, updated_at
		FROM mastery_states WHERE learner_id = ? AND object_id = ?`

	st, err := scanMasteryState(c.db.QueryRow(query, learnerID, objectID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: mastery state %s/%s", ErrNotFound, learnerID, objectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mastery state: %w", err)
	}

	return st, nil
}

func (c *Client) GetMasteryStates(learnerID string) ([]models.MasteryState, error) {
	query := `SELECT learner_id, object_id, stage, cue_free_accuracy, cue_assisted_accuracy,
		exposure_count, decay_stability, decay_difficulty, repetitions, lapses,
		last_review_at, next_review_at, cached_priority, ability, updated_at
		FROM mastery_states WHERE learner_id = ?`

	rows, err := c.db.Query(query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mastery states: %w", err)
	}
	defer rows.Close()

	var states []models.MasteryState
	for rows.Next() {
		st, err := scanMasteryState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		states = append(states, *st)
	}

	return states, rows.Err()
}

func (c *Client) UpsertMasteryState(st *models.MasteryState) error {
	_, err := c.db.Exec(upsertMasteryQuery, upsertMasteryArgs(st)...)
	if err != nil {
		return fmt.Errorf("failed to upsert mastery state: %w", err)
	}
	return nil
}

func (c *Client) AppendOutcome(rec *models.OutcomeRecord) error {
	_, err := c.db.Exec(insertOutcomeQuery, insertOutcomeArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to append outcome record: %w", err)
	}
	return nil
}

// SaveEvaluation commits the complete result of one response evaluation in a
// single transaction: the mutated mastery state, the appended outcome record
// and the refreshed priority. Either every row lands or none does; a partial
// commit would leave the mastery machine and the decay model disagreeing.
func (c *Client) SaveEvaluation(ctx context.Context, st *models.MasteryState, rec *models.OutcomeRecord, base, adjustment, urgency, boost, effective float64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(upsertMasteryQuery, upsertMasteryArgs(st)...); err != nil {
		return fmt.Errorf("failed to upsert mastery state: %w", err)
	}
	if _, err := tx.Exec(insertOutcomeQuery, insertOutcomeArgs(rec)...); err != nil {
		return fmt.Errorf("failed to append outcome record: %w", err)
	}
	if _, err := tx.Exec(upsertPriorityQuery,
		st.LearnerID, st.ObjectID, base, adjustment, urgency, boost, effective, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to upsert priority: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit evaluation: %w", err)
	}

	logger.Debug("Evaluation persisted",
		zap.String("learner_id", st.LearnerID),
		zap.String("object_id", st.ObjectID),
		zap.Float64("effective_priority", effective),
	)
	return nil
}

func (c *Client) GetOutcomeRecords(learnerID string, component models.Component, since time.Time) ([]models.OutcomeRecord, error) {
	query := `SELECT id, learner_id, object_id, component, correct, latency_ms, cue_level,
		session_id, created_at FROM outcome_records
		WHERE learner_id = ? AND created_at >= ?`
	args := []interface{}{learnerID, since.Unix()}

	if component != "" {
		query += " AND component = ?"
		args = append(args, string(component))
	}
	query += " ORDER BY created_at ASC"

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome records: %w", err)
	}
	defer rows.Close()

	var records []models.OutcomeRecord
	for rows.Next() {
		var r models.OutcomeRecord
		var component string
		var correct int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.LearnerID, &r.ObjectID, &component, &correct,
			&r.LatencyMs, &r.CueLevel, &r.SessionID, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Component = models.Component(component)
		r.Correct = correct != 0
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) UpsertComponentStats(stats []models.ComponentErrorStats) error {
	query := `
		INSERT INTO component_error_stats (learner_id, component, total_errors, recent_errors,
			error_rate, trend, recommendation, is_bottleneck, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(learner_id, component) DO UPDATE SET
			total_errors = excluded.total_errors,
			recent_errors = excluded.recent_errors,
			error_rate = excluded.error_rate,
			trend = excluded.trend,
			recommendation = excluded.recommendation,
			is_bottleneck = excluded.is_bottleneck,
			updated_at = excluded.updated_at
	`

	for _, s := range stats {
		isBottleneck := 0
		if s.IsBottleneck {
			isBottleneck = 1
		}
		_, err := c.db.Exec(query, s.LearnerID, string(s.Component), s.TotalErrors,
			s.RecentErrors, s.ErrorRate, s.Trend, s.Recommendation, isBottleneck, s.UpdatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to upsert component stats: %w", err)
		}
	}

	return nil
}

func (c *Client) GetComponentStats(learnerID string) ([]models.ComponentErrorStats, error) {
	query := `SELECT learner_id, component, total_errors, recent_errors, error_rate, trend,
		recommendation, is_bottleneck, updated_at
		FROM component_error_stats WHERE learner_id = ?`

	rows, err := c.db.Query(query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get component stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ComponentErrorStats
	for rows.Next() {
		var s models.ComponentErrorStats
		var component string
		var isBottleneck int
		var updatedAt int64

		err := rows.Scan(&s.LearnerID, &component, &s.TotalErrors, &s.RecentErrors,
			&s.ErrorRate, &s.Trend, &s.Recommendation, &isBottleneck, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		s.Component = models.Component(component)
		s.IsBottleneck = isBottleneck != 0
		s.UpdatedAt = time.Unix(updatedAt, 0)
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// UpsertPriority stores a recomputed score and keeps the copy denormalized
// onto the mastery state in step with it.
func (c *Client) UpsertPriority(learnerID, objectID string, base, adjustment, urgency, boost, effective float64) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if _, err := tx.Exec(upsertPriorityQuery,
		learnerID, objectID, base, adjustment, urgency, boost, effective, now); err != nil {
		return fmt.Errorf("failed to upsert priority: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE mastery_states SET cached_priority = ?, updated_at = ? WHERE learner_id = ? AND object_id = ?`,
		effective, now, learnerID, objectID); err != nil {
		return fmt.Errorf("failed to update cached priority: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListLearners returns every learner with at least one mastery state.
func (c *Client) ListLearners() ([]string, error) {
	rows, err := c.db.Query(`SELECT DISTINCT learner_id FROM mastery_states`)
	if err != nil {
		return nil, fmt.Errorf("failed to list learners: %w", err)
	}
	defer rows.Close()

	var learners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		learners = append(learners, id)
	}

	return learners, rows.Err()
}

// StageCounts returns the number of the learner's items at each stage.
func (c *Client) StageCounts(learnerID string) (map[int]int, error) {
	query := `SELECT stage, COUNT(*) FROM mastery_states WHERE learner_id = ? GROUP BY stage`

	rows, err := c.db.Query(query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var stage, count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[stage] = count
	}

	return counts, rows.Err()
}

// DueCount returns how many of the learner's items are due at the given time.
func (c *Client) DueCount(learnerID string, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM mastery_states WHERE learner_id = ? AND next_review_at <= ?`

	var count int
	err := c.db.QueryRow(query, learnerID, now.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get due count: %w", err)
	}
	return count, nil
}

const upsertMasteryQuery = `
	INSERT INTO mastery_states (learner_id, object_id, stage, cue_free_accuracy,
		cue_assisted_accuracy, exposure_count, decay_stability, decay_difficulty,
		repetitions, lapses, last_review_at, next_review_at, cached_priority, ability, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(learner_id, object_id) DO UPDATE SET
		stage = excluded.stage,
		cue_free_accuracy = excluded.cue_free_accuracy,
		cue_assisted_accuracy = excluded.cue_assisted_accuracy,
		exposure_count = excluded.exposure_count,
		decay_stability = excluded.decay_stability,
		decay_difficulty = excluded.decay_difficulty,
		repetitions = excluded.repetitions,
		lapses = excluded.lapses,
		last_review_at = excluded.last_review_at,
		next_review_at = excluded.next_review_at,
		cached_priority = excluded.cached_priority,
		ability = excluded.ability,
		updated_at = excluded.updated_at
`

func upsertMasteryArgs(st *models.MasteryState) []interface{} {
	var lastReview interface{}
	if st.LastReviewAt != nil {
		lastReview = st.LastReviewAt.Unix()
	}
	return []interface{}{
		st.LearnerID,
		st.ObjectID,
		int(st.Stage),
		st.CueFreeAccuracy,
		st.CueAssistedAccuracy,
		st.ExposureCount,
		st.DecayStability,
		st.DecayDifficulty,
		st.Repetitions,
		st.Lapses,
		lastReview,
		st.NextReviewAt.Unix(),
		st.CachedPriority,
		st.Ability,
		st.UpdatedAt.Unix(),
	}
}

const insertOutcomeQuery = `
	INSERT INTO outcome_records (id, learner_id, object_id, component, correct,
		latency_ms, cue_level, session_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func insertOutcomeArgs(rec *models.OutcomeRecord) []interface{} {
	correct := 0
	if rec.Correct {
		correct = 1
	}
	return []interface{}{
		rec.ID,
		rec.LearnerID,
		rec.ObjectID,
		string(rec.Component),
		correct,
		rec.LatencyMs,
		rec.CueLevel,
		rec.SessionID,
		rec.CreatedAt.Unix(),
	}
}

const upsertPriorityQuery = `
	INSERT INTO priority_cache (learner_id, object_id, base_value, adjustment,
		urgency, boost, effective, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(learner_id, object_id) DO UPDATE SET
		base_value = excluded.base_value,
		adjustment = excluded.adjustment,
		urgency = excluded.urgency,
		boost = excluded.boost,
		effective = excluded.effective,
		updated_at = excluded.updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMasteryState(row rowScanner) (*models.MasteryState, error) {
	var st models.MasteryState
	var stage int
	var lastReview sql.NullInt64
	var nextReview, updatedAt int64

	err := row.Scan(
		&st.LearnerID,
		&st.ObjectID,
		&stage,
		&st.CueFreeAccuracy,
		&st.CueAssistedAccuracy,
		&st.ExposureCount,
		&st.DecayStability,
		&st.DecayDifficulty,
		&st.Repetitions,
		&st.Lapses,
		&lastReview,
		&nextReview,
		&st.CachedPriority,
		&st.Ability,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	st.Stage = models.Stage(stage)
	if lastReview.Valid {
		t := time.Unix(lastReview.Int64, 0)
		st.LastReviewAt = &t
	}
	st.NextReviewAt = time.Unix(nextReview, 0)
	st.UpdatedAt = time.Unix(updatedAt, 0)

	return &st, nil
}
