package bottleneck

import (
	"time"

	"github.com/adaptlearn/backend/internal/storage/models"
)

// BuildStats materializes ComponentErrorStats rows from the outcome log and
// a completed analysis. The rows are a view, not ground truth: callers may
// recompute and upsert them wholesale at any time.
//
// Two recency definitions exist on purpose and serve different consumers:
// the stats trend below uses the fixed recent sub-window (current vs prior
// period, positive = worsening), while the per-analysis cascade evidence uses
// the 75th-percentile positional split. See DESIGN.md.
func BuildStats(learnerID string, records []models.OutcomeRecord, analysis *Analysis, cfg Config, now time.Time) []models.ComponentErrorStats {
	if cfg.RecentWindowDays == 0 {
		cfg.RecentWindowDays = DefaultConfig().RecentWindowDays
	}
	recentCutoff := now.AddDate(0, 0, -cfg.RecentWindowDays)
	priorCutoff := now.AddDate(0, 0, -2*cfg.RecentWindowDays)

	byComponent := make(map[models.Component][]models.OutcomeRecord)
	for _, r := range records {
		byComponent[r.Component] = append(byComponent[r.Component], r)
	}

	var stats []models.ComponentErrorStats
	for _, c := range models.Hierarchy {
		rs, ok := byComponent[c]
		if !ok {
			continue
		}

		var recent, prior []models.OutcomeRecord
		row := models.ComponentErrorStats{
			LearnerID: learnerID,
			Component: c,
			UpdatedAt: now,
		}
		for _, r := range rs {
			if !r.Correct {
				row.TotalErrors++
			}
			switch {
			case !r.CreatedAt.Before(recentCutoff):
				recent = append(recent, r)
				if !r.Correct {
					row.RecentErrors++
				}
			case !r.CreatedAt.Before(priorCutoff):
				prior = append(prior, r)
			}
		}
		row.ErrorRate = errorRate(rs)
		row.Trend = errorRate(recent) - errorRate(prior)

		if analysis != nil && analysis.HasBottleneck && analysis.Primary == c {
			row.IsBottleneck = true
			row.Recommendation = analysis.Recommendation
		}
		stats = append(stats, row)
	}
	return stats
}
