package bottleneck

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptlearn/backend/internal/storage/models"
)

var analysisTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// componentRecords builds total records for one component inside the window,
// the first errs of them incorrect. Session IDs rotate so co-occurrence
// counting sees multiple sessions.
func componentRecords(c models.Component, total, errs int) []models.OutcomeRecord {
	records := make([]models.OutcomeRecord, 0, total)
	for i := 0; i < total; i++ {
		records = append(records, models.OutcomeRecord{
			ID:        fmt.Sprintf("%s-%d", c, i),
			LearnerID: "learner-1",
			ObjectID:  fmt.Sprintf("obj-%s-%d", c, i),
			Component: c,
			Correct:   i >= errs,
			SessionID: fmt.Sprintf("session-%d", i%5),
			CreatedAt: analysisTime.Add(-time.Duration(i%10*24) * time.Hour),
		})
	}
	return records
}

func TestAnalyzeInsufficientData(t *testing.T) {
	d := NewDetector(Config{}, nil)

	a, err := d.Analyze(componentRecords(models.Lexicon, 19, 10), nil, analysisTime)
	require.NoError(t, err)
	assert.True(t, a.InsufficientData)
	assert.False(t, a.HasBottleneck)
	assert.Zero(t, a.Confidence)
	assert.Equal(t, 19, a.TotalResponses)
	assert.Contains(t, a.Recommendation, "Insufficient data")
}

func TestAnalyzeIgnoresRecordsOutsideWindow(t *testing.T) {
	d := NewDetector(Config{}, nil)

	records := componentRecords(models.Lexicon, 10, 5)
	for i := 0; i < 15; i++ {
		records = append(records, models.OutcomeRecord{
			ID:        fmt.Sprintf("stale-%d", i),
			Component: models.Lexicon,
			Correct:   false,
			CreatedAt: analysisTime.AddDate(0, 0, -20),
		})
	}

	a, err := d.Analyze(records, nil, analysisTime)
	require.NoError(t, err)
	assert.True(t, a.InsufficientData, "stale records must not count toward the minimum")
	assert.Equal(t, 10, a.TotalResponses)
}

func TestAnalyzeRejectsUnknownComponent(t *testing.T) {
	d := NewDetector(Config{}, nil)

	records := []models.OutcomeRecord{{ID: "bad", Component: "SEMANTICS", CreatedAt: analysisTime}}
	_, err := d.Analyze(records, nil, analysisTime)
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

// A weak upstream component dragging a downstream one must be reported as
// the root cause, even though the downstream error rate is also elevated.
func TestAnalyzeCascade(t *testing.T) {
	d := NewDetector(Config{}, nil)

	var records []models.OutcomeRecord
	records = append(records, componentRecords(models.Phonology, 20, 8)...)  // 40%
	records = append(records, componentRecords(models.Morphology, 20, 2)...) // 10%
	records = append(records, componentRecords(models.Lexicon, 20, 7)...)    // 35%
	records = append(records, componentRecords(models.Syntax, 20, 1)...)     // 5%
	records = append(records, componentRecords(models.Pragmatics, 20, 1)...) // 5%

	a, err := d.Analyze(records, nil, analysisTime)
	require.NoError(t, err)

	assert.True(t, a.HasBottleneck)
	assert.Equal(t, models.Phonology, a.Primary)
	assert.True(t, a.ViaCascade)
	assert.Equal(t, []models.Component{models.Lexicon}, a.CascadeChain)
	assert.InDelta(t, 0.70, a.CascadeConfidence, 1e-9)
	assert.Contains(t, a.Recommendation, "phonology")
	assert.Contains(t, a.Recommendation, "vocabulary")
}

// The cascade attribution strength is a configured constant, not derived from
// the evidence. It must track the config and stay zero outside cascades.
func TestCascadeConfidenceFollowsConfig(t *testing.T) {
	cascade := func() []models.OutcomeRecord {
		var records []models.OutcomeRecord
		records = append(records, componentRecords(models.Phonology, 20, 8)...) // 40%
		records = append(records, componentRecords(models.Lexicon, 20, 7)...)   // 35%
		return records
	}

	low := NewDetector(Config{CascadeConfidence: 0.10}, nil)
	a, err := low.Analyze(cascade(), nil, analysisTime)
	require.NoError(t, err)
	require.True(t, a.ViaCascade)
	assert.InDelta(t, 0.10, a.CascadeConfidence, 1e-9)

	high := NewDetector(Config{CascadeConfidence: 0.95}, nil)
	a, err = high.Analyze(cascade(), nil, analysisTime)
	require.NoError(t, err)
	require.True(t, a.ViaCascade)
	assert.InDelta(t, 0.95, a.CascadeConfidence, 1e-9)
}

// When two components are over the threshold and linked by the hierarchy,
// the upstream one wins even with the lower error rate. Scanning in severity
// order instead would misattribute the root cause.
func TestAnalyzeUpstreamWinsOverWorseDownstream(t *testing.T) {
	d := NewDetector(Config{}, nil)

	var records []models.OutcomeRecord
	records = append(records, componentRecords(models.Phonology, 20, 7)...) // 35%
	records = append(records, componentRecords(models.Lexicon, 20, 9)...)   // 45%

	a, err := d.Analyze(records, nil, analysisTime)
	require.NoError(t, err)

	assert.True(t, a.HasBottleneck)
	assert.Equal(t, models.Phonology, a.Primary)
	assert.True(t, a.ViaCascade)
	assert.Contains(t, a.CascadeChain, models.Lexicon)
}

func TestAnalyzeStandaloneSpike(t *testing.T) {
	d := NewDetector(Config{}, nil)

	var records []models.OutcomeRecord
	records = append(records, componentRecords(models.Phonology, 20, 1)...) // 5%
	records = append(records, componentRecords(models.Lexicon, 20, 8)...)   // 40%
	records = append(records, componentRecords(models.Syntax, 20, 1)...)    // 5%

	a, err := d.Analyze(records, nil, analysisTime)
	require.NoError(t, err)

	assert.True(t, a.HasBottleneck)
	assert.Equal(t, models.Lexicon, a.Primary)
	assert.False(t, a.ViaCascade, "no downstream elevation means no cascade")
	assert.Empty(t, a.CascadeChain)
	assert.Zero(t, a.CascadeConfidence)
}

func TestAnalyzeNoBottleneck(t *testing.T) {
	d := NewDetector(Config{}, nil)

	var records []models.OutcomeRecord
	for _, c := range models.Hierarchy {
		records = append(records, componentRecords(c, 20, 2)...) // 10% each
	}

	a, err := d.Analyze(records, nil, analysisTime)
	require.NoError(t, err)

	assert.False(t, a.HasBottleneck)
	assert.Zero(t, a.Confidence)
	assert.Contains(t, a.Recommendation, "keep the current practice mix")
}

func TestConfidenceBounds(t *testing.T) {
	d := NewDetector(Config{}, nil)

	// Cascade with plenty of data saturates at 1.
	var heavy []models.OutcomeRecord
	heavy = append(heavy, componentRecords(models.Phonology, 40, 16)...)
	heavy = append(heavy, componentRecords(models.Lexicon, 40, 14)...)
	a, err := d.Analyze(heavy, nil, analysisTime)
	require.NoError(t, err)
	assert.True(t, a.HasBottleneck)
	assert.Equal(t, 1.0, a.Confidence)

	// Bare minimum data without a cascade stays well below 1.
	sparse := componentRecords(models.Syntax, 20, 8)
	a, err = d.Analyze(sparse, nil, analysisTime)
	require.NoError(t, err)
	assert.True(t, a.HasBottleneck)
	assert.Greater(t, a.Confidence, 0.0)
	assert.InDelta(t, 0.4, a.Confidence, 1e-9, "20 of 50 responses, no cascade, single component")
}

func TestAnalyzePatterns(t *testing.T) {
	d := NewDetector(Config{}, nil)

	var records []models.OutcomeRecord
	records = append(records, componentRecords(models.Morphology, 25, 10)...)

	objects := make(map[string]models.LanguageObject)
	for i := 0; i < 25; i++ {
		content := "walked"
		if i%5 == 0 {
			content = "ran"
		}
		id := fmt.Sprintf("obj-%s-%d", models.Morphology, i)
		objects[id] = models.LanguageObject{ID: id, Component: models.Morphology, Content: content}
	}

	a, err := d.Analyze(records, objects, analysisTime)
	require.NoError(t, err)

	require.True(t, a.HasBottleneck)
	require.NotEmpty(t, a.Patterns)
	assert.Equal(t, "suffix_-ed", a.Patterns[0].Label)
	assert.Equal(t, 8, a.Patterns[0].Count)
}

func TestCoOccurrences(t *testing.T) {
	mkRec := func(id string, c models.Component, correct bool, session string) models.OutcomeRecord {
		return models.OutcomeRecord{
			ID: id, Component: c, Correct: correct,
			SessionID: session, CreatedAt: analysisTime,
		}
	}

	records := []models.OutcomeRecord{
		mkRec("1", models.Phonology, false, "s1"),
		mkRec("2", models.Lexicon, false, "s1"),
		mkRec("3", models.Phonology, false, "s2"),
		mkRec("4", models.Lexicon, false, "s2"),
		mkRec("5", models.Phonology, false, "s3"),
		mkRec("6", models.Syntax, true, "s3"), // correct rows never pair
	}

	pairs := coOccurrences(records, 2)
	require.Len(t, pairs, 1)
	assert.Equal(t, models.Phonology, pairs[0].A)
	assert.Equal(t, models.Lexicon, pairs[0].B)
	assert.Equal(t, 2, pairs[0].Count)
}

func TestHalfTrend(t *testing.T) {
	older := analysisTime.Add(-48 * time.Hour)
	newer := analysisTime.Add(-1 * time.Hour)

	// Errors early, clean late: positive trend (improving).
	improving := []models.OutcomeRecord{
		{Correct: false, CreatedAt: older},
		{Correct: false, CreatedAt: older.Add(time.Hour)},
		{Correct: true, CreatedAt: newer},
		{Correct: true, CreatedAt: newer.Add(time.Minute)},
	}
	assert.InDelta(t, 1.0, halfTrend(improving), 1e-9)

	worsening := []models.OutcomeRecord{
		{Correct: true, CreatedAt: older},
		{Correct: true, CreatedAt: older.Add(time.Hour)},
		{Correct: false, CreatedAt: newer},
		{Correct: false, CreatedAt: newer.Add(time.Minute)},
	}
	assert.InDelta(t, -1.0, halfTrend(worsening), 1e-9)

	assert.Zero(t, halfTrend(nil))
}
