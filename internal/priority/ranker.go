// Package priority fuses objective item value, learner fit, temporal urgency
// and bottleneck severity into one effective score, and orders the review
// queue by it.
package priority

import (
	"math"
	"sort"
	"time"

	"github.com/adaptlearn/backend/internal/bottleneck"
	"github.com/adaptlearn/backend/internal/storage/models"
)

// Weights configures the ranking. The five value weights plus urgency and
// bottleneck weights sum to 1.0; BottleneckBoost is the additive term applied
// to items matching the learner's primary bottleneck.
type Weights struct {
	Frequency  float64
	Relational float64
	Domain     float64
	Morph      float64
	Phon       float64

	Urgency         float64
	BottleneckBoost float64
}

func DefaultWeights() Weights {
	return Weights{
		Frequency:       0.20,
		Relational:      0.15,
		Domain:          0.15,
		Morph:           0.10,
		Phon:            0.10,
		Urgency:         0.20,
		BottleneckBoost: 0.10,
	}
}

type Ranker struct {
	w Weights
}

func NewRanker(w Weights) *Ranker {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &Ranker{w: w}
}

// Score is the decomposed priority of one object for one learner at one
// point in time. Effective is the only field used for ordering; the rest is
// kept for observability.
type Score struct {
	ObjectID   string
	Base       float64
	Adjustment float64
	Urgency    float64
	Boost      float64
	Effective  float64
}

// Score computes S_eff = S_base * g(m) + wUrgency * urgency + boost.
// A nil analysis (or one without a bottleneck) simply contributes no boost;
// ranking always degrades to base value rather than failing.
func (r *Ranker) Score(obj models.LanguageObject, st *models.MasteryState, analysis *bottleneck.Analysis, now time.Time) Score {
	s := Score{
		ObjectID:   obj.ID,
		Base:       r.BaseValue(obj.Value),
		Adjustment: masteryAdjustment(st),
		Urgency:    Urgency(st.NextReviewAt, now),
	}

	if analysis != nil && analysis.HasBottleneck && analysis.Primary == obj.Component {
		s.Boost = r.w.BottleneckBoost
	}

	s.Effective = s.Base*s.Adjustment + r.w.Urgency*s.Urgency + s.Boost
	return s
}

// BaseValue is the learner-independent worth of an item:
// weighted sum over its normalized value vector.
func (r *Ranker) BaseValue(v models.ValueVector) float64 {
	return r.w.Frequency*v.Frequency +
		r.w.Relational*v.Relational +
		r.w.Domain*v.Domain +
		r.w.Morph*v.Morph +
		r.w.Phon*v.Phon
}

// masteryAdjustment is the zone-of-proximal-development multiplier
// g(m) = stageFactor * accuracyFactor * gapFactor.
func masteryAdjustment(st *models.MasteryState) float64 {
	return stageFactor(st.Stage) * accuracyFactor(st.CueFreeAccuracy) * gapFactor(st.ScaffoldingGap())
}

// Lower stages are weighted up: more to gain from practicing them.
func stageFactor(s models.Stage) float64 {
	switch s {
	case models.StageUnknown:
		return 1.0
	case models.StageRecognition:
		return 0.9
	case models.StageRecall:
		return 0.7
	case models.StageControlled:
		return 0.5
	case models.StageAutomatic:
		return 0.3
	default:
		return 1.0
	}
}

// The 0.40–0.70 band is where practice pays off most; far below it the item
// is frustrating, far above it returns diminish.
func accuracyFactor(acc float64) float64 {
	switch {
	case acc < 0.40:
		return 0.8
	case acc <= 0.70:
		return 1.0
	case acc <= 0.90:
		return 0.6
	default:
		return 0.3
	}
}

// Items still dependent on cues get a push toward independent practice.
func gapFactor(gap float64) float64 {
	return 1 + 0.5*gap
}

// Urgency maps the distance to the due date into (0, 1]: saturates at 1.0
// once an item is two days overdue, floors at 0.1 for items due a week or
// more out.
func Urgency(nextReviewAt, now time.Time) float64 {
	if !nextReviewAt.After(now) {
		hoursOverdue := now.Sub(nextReviewAt).Hours()
		return math.Min(1.0, 0.5+hoursOverdue/48)
	}
	hoursUntilDue := nextReviewAt.Sub(now).Hours()
	return math.Max(0.1, 0.5-hoursUntilDue/168)
}

// QueueItem pairs an object with its score and current stage for ordering.
type QueueItem struct {
	Object models.LanguageObject
	Stage  models.Stage
	Score  Score
}

// BuildQueue totally orders items by effective priority descending. Ties go
// to the lower mastery stage, then to the higher base value, so the order is
// deterministic for identical scores.
func BuildQueue(items []QueueItem) []QueueItem {
	sorted := make([]QueueItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score.Effective != sorted[j].Score.Effective {
			return sorted[i].Score.Effective > sorted[j].Score.Effective
		}
		if sorted[i].Stage != sorted[j].Stage {
			return sorted[i].Stage < sorted[j].Stage
		}
		return sorted[i].Score.Base > sorted[j].Score.Base
	})
	return sorted
}
