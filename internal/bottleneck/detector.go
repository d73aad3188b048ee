// Package bottleneck analyzes a learner's windowed outcome log to find the
// linguistic component most likely causing their errors. Components form a
// processing hierarchy, so a weak upstream component can drag down everything
// after it; the detector separates such cascades from independent spikes.
package bottleneck

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/adaptlearn/backend/internal/storage/models"
)

// ErrUnknownComponent marks an outcome record tagged with a component outside
// the hierarchy. Silently skipping such rows would corrupt every aggregate,
// so analysis fails instead.
var ErrUnknownComponent = errors.New("bottleneck: outcome record references unknown component")

type Config struct {
	WindowDays         int
	RecentWindowDays   int
	ErrorRateThreshold float64
	CascadeRatio       float64 // fraction of the threshold downstream components must reach
	CascadeConfidence  float64
	MinResponses       int
	MinPatternCount    int
	TopPatterns        int
}

func DefaultConfig() Config {
	return Config{
		WindowDays:         14,
		RecentWindowDays:   7,
		ErrorRateThreshold: 0.30,
		CascadeRatio:       0.67,
		CascadeConfidence:  0.70,
		MinResponses:       20,
		MinPatternCount:    2,
		TopPatterns:        5,
	}
}

type Detector struct {
	cfg      Config
	classify PatternClassifier
}

// NewDetector builds a detector. A nil classifier falls back to the default
// content heuristics.
func NewDetector(cfg Config, classify PatternClassifier) *Detector {
	d := DefaultConfig()
	if cfg.WindowDays == 0 {
		cfg.WindowDays = d.WindowDays
	}
	if cfg.RecentWindowDays == 0 {
		cfg.RecentWindowDays = d.RecentWindowDays
	}
	if cfg.ErrorRateThreshold == 0 {
		cfg.ErrorRateThreshold = d.ErrorRateThreshold
	}
	if cfg.CascadeRatio == 0 {
		cfg.CascadeRatio = d.CascadeRatio
	}
	if cfg.CascadeConfidence == 0 {
		cfg.CascadeConfidence = d.CascadeConfidence
	}
	if cfg.MinResponses == 0 {
		cfg.MinResponses = d.MinResponses
	}
	if cfg.MinPatternCount == 0 {
		cfg.MinPatternCount = d.MinPatternCount
	}
	if cfg.TopPatterns == 0 {
		cfg.TopPatterns = d.TopPatterns
	}
	if classify == nil {
		classify = ClassifyError
	}
	return &Detector{cfg: cfg, classify: classify}
}

// Evidence is the per-component aggregation over the analysis window.
type Evidence struct {
	Component     models.Component
	Total         int
	Errors        int
	ErrorRate     float64
	RecentErrors  int     // errors inside the fixed recent sub-window
	LateErrors    int     // errors after the 75th-percentile time split
	Trend         float64 // first-half minus second-half error rate; positive = improving
}

// Pattern is a recurring error shape within the primary component.
type Pattern struct {
	Label string
	Count int
}

// CoOccurrence counts sessions in which two distinct components both erred.
type CoOccurrence struct {
	A, B  models.Component
	Count int
}

// Analysis is the full detector output for one learner.
type Analysis struct {
	Primary           models.Component
	HasBottleneck     bool
	ViaCascade        bool
	CascadeChain      []models.Component // downstream components dragged by Primary
	CascadeConfidence float64            // fixed attribution strength of the cascade; 0 when not via cascade
	Confidence        float64
	Evidence          []Evidence
	Patterns          []Pattern
	CoOccurrences     []CoOccurrence
	Recommendation    string
	TotalResponses    int
	InsufficientData  bool
	AnalyzedAt        time.Time
}

// Analyze runs the full pipeline over the learner's outcome records. The
// objects map supplies item content for pattern heuristics; records outside
// the window are ignored. Insufficient data is not an error: the analysis
// comes back with zero confidence and no root cause.
func (d *Detector) Analyze(records []models.OutcomeRecord, objects map[string]models.LanguageObject, now time.Time) (*Analysis, error) {
	cutoff := now.AddDate(0, 0, -d.cfg.WindowDays)

	var windowed []models.OutcomeRecord
	for _, r := range records {
		if !r.Component.IsValid() {
			return nil, fmt.Errorf("%w: %q (record %s)", ErrUnknownComponent, r.Component, r.ID)
		}
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		windowed = append(windowed, r)
	}

	analysis := &Analysis{AnalyzedAt: now, TotalResponses: len(windowed)}

	if len(windowed) < d.cfg.MinResponses {
		analysis.InsufficientData = true
		analysis.Recommendation = fmt.Sprintf(
			"Insufficient data: %d responses recorded, %d needed for a reliable analysis.",
			len(windowed), d.cfg.MinResponses)
		return analysis, nil
	}

	analysis.Evidence = d.aggregate(windowed, now)
	d.scanCascade(analysis)
	d.extractPatterns(analysis, windowed, objects)
	analysis.CoOccurrences = coOccurrences(windowed, d.cfg.MinPatternCount)
	analysis.Confidence = d.confidence(analysis)
	analysis.Recommendation = d.recommendation(analysis)

	return analysis, nil
}

// aggregate computes per-component counts. Components with zero observations
// are absent from the result, not reported as zero-error.
func (d *Detector) aggregate(records []models.OutcomeRecord, now time.Time) []Evidence {
	recentCutoff := now.AddDate(0, 0, -d.cfg.RecentWindowDays)
	splitAt := percentileSplit(records, 0.75)

	byComponent := make(map[models.Component][]models.OutcomeRecord)
	for _, r := range records {
		byComponent[r.Component] = append(byComponent[r.Component], r)
	}

	var evidence []Evidence
	for _, c := range models.Hierarchy {
		rs, ok := byComponent[c]
		if !ok {
			continue
		}
		ev := Evidence{Component: c, Total: len(rs)}
		for _, r := range rs {
			if r.Correct {
				continue
			}
			ev.Errors++
			if !r.CreatedAt.Before(recentCutoff) {
				ev.RecentErrors++
			}
			if !r.CreatedAt.Before(splitAt) {
				ev.LateErrors++
			}
		}
		ev.ErrorRate = float64(ev.Errors) / float64(ev.Total)
		ev.Trend = halfTrend(rs)
		evidence = append(evidence, ev)
	}
	return evidence
}

// scanCascade walks the hierarchy in order. The first component over the
// threshold whose downstream components also show elevated error rates is the
// root cause; an earlier upstream always wins over a later independent spike.
// Without a qualifying cascade, the single worst component over the threshold
// is reported as a standalone bottleneck.
func (d *Detector) scanCascade(a *Analysis) {
	byComponent := make(map[models.Component]Evidence, len(a.Evidence))
	for _, ev := range a.Evidence {
		byComponent[ev.Component] = ev
	}

	downstreamBar := d.cfg.CascadeRatio * d.cfg.ErrorRateThreshold

	for _, c := range models.Hierarchy {
		ev, ok := byComponent[c]
		if !ok || ev.ErrorRate < d.cfg.ErrorRateThreshold {
			continue
		}

		var chain []models.Component
		for _, down := range models.Hierarchy {
			if !c.Downstream(down) {
				continue
			}
			if dev, ok := byComponent[down]; ok && dev.ErrorRate >= downstreamBar {
				chain = append(chain, down)
			}
		}

		if len(chain) > 0 {
			a.Primary = c
			a.HasBottleneck = true
			a.ViaCascade = true
			a.CascadeChain = chain
			a.CascadeConfidence = d.cfg.CascadeConfidence
			return
		}
	}

	// Fallback: highest error rate over the threshold, if any.
	var best Evidence
	for _, ev := range a.Evidence {
		if ev.ErrorRate >= d.cfg.ErrorRateThreshold && ev.ErrorRate > best.ErrorRate {
			best = ev
		}
	}
	if best.Total > 0 {
		a.Primary = best.Component
		a.HasBottleneck = true
	}
}

func (d *Detector) extractPatterns(a *Analysis, records []models.OutcomeRecord, objects map[string]models.LanguageObject) {
	if !a.HasBottleneck {
		return
	}

	counts := make(map[string]int)
	for _, r := range records {
		if r.Correct || r.Component != a.Primary {
			continue
		}
		obj, ok := objects[r.ObjectID]
		if !ok {
			continue
		}
		label := d.classify(r.Component, obj.Content)
		if label != "" {
			counts[label]++
		}
	}

	var patterns []Pattern
	for label, count := range counts {
		if count >= d.cfg.MinPatternCount {
			patterns = append(patterns, Pattern{Label: label, Count: count})
		}
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Label < patterns[j].Label
	})
	if len(patterns) > d.cfg.TopPatterns {
		patterns = patterns[:d.cfg.TopPatterns]
	}
	a.Patterns = patterns
}

// coOccurrences counts, per session, pairs of distinct components that both
// produced errors. Corroborating evidence for a cascade, never the deciding
// signal.
func coOccurrences(records []models.OutcomeRecord, minCount int) []CoOccurrence {
	bySession := make(map[string]map[models.Component]bool)
	for _, r := range records {
		if r.Correct {
			continue
		}
		set, ok := bySession[r.SessionID]
		if !ok {
			set = make(map[models.Component]bool)
			bySession[r.SessionID] = set
		}
		set[r.Component] = true
	}

	type key struct{ a, b models.Component }
	counts := make(map[key]int)
	for _, set := range bySession {
		for i, a := range models.Hierarchy {
			if !set[a] {
				continue
			}
			for _, b := range models.Hierarchy[i+1:] {
				if set[b] {
					counts[key{a, b}]++
				}
			}
		}
	}

	var pairs []CoOccurrence
	for k, count := range counts {
		if count >= minCount {
			pairs = append(pairs, CoOccurrence{A: k.a, B: k.b, Count: count})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		if pairs[i].A != pairs[j].A {
			return pairs[i].A.Index() < pairs[j].A.Index()
		}
		return pairs[i].B.Index() < pairs[j].B.Index()
	})
	return pairs
}

// confidence fuses three signals: volume of data, whether a cascade was
// found, and how clearly the top component separates from the runner-up.
// Always within [0, 1].
func (d *Detector) confidence(a *Analysis) float64 {
	if !a.HasBottleneck {
		return 0
	}

	dataConfidence := math.Min(1, float64(a.TotalResponses)/50.0)

	cascadeBoost := 0.0
	if a.ViaCascade {
		cascadeBoost = 0.2
	}

	differentiationBoost := 0.0
	if len(a.Evidence) >= 2 {
		rates := make([]float64, 0, len(a.Evidence))
		for _, ev := range a.Evidence {
			rates = append(rates, ev.ErrorRate)
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(rates)))
		differentiationBoost = math.Min(0.2, rates[0]-rates[1])
	}

	total := dataConfidence + cascadeBoost + differentiationBoost
	return math.Max(0, math.Min(1, total))
}

func (d *Detector) recommendation(a *Analysis) string {
	if !a.HasBottleneck {
		return "No component exceeds the error threshold; keep the current practice mix."
	}

	var primary Evidence
	for _, ev := range a.Evidence {
		if ev.Component == a.Primary {
			primary = ev
			break
		}
	}

	msg := fmt.Sprintf("Focus on %s: %.0f%% error rate over the last %d days.",
		componentLabel(a.Primary), primary.ErrorRate*100, d.cfg.WindowDays)

	if a.ViaCascade {
		msg += " Errors here appear to cascade into"
		for i, c := range a.CascadeChain {
			if i > 0 {
				msg += ","
			}
			msg += " " + componentLabel(c)
		}
		msg += "."
	}

	if len(a.Patterns) > 0 {
		msg += fmt.Sprintf(" Most frequent pattern: %s (%d occurrences).",
			a.Patterns[0].Label, a.Patterns[0].Count)
	}

	if primary.Trend > 0 {
		msg += " The trend is improving."
	} else if primary.Trend < 0 {
		msg += " The trend is worsening."
	}

	return msg
}

func componentLabel(c models.Component) string {
	switch c {
	case models.Phonology:
		return "phonology"
	case models.Morphology:
		return "morphology"
	case models.Lexicon:
		return "vocabulary"
	case models.Syntax:
		return "syntax"
	case models.Pragmatics:
		return "pragmatics"
	default:
		return string(c)
	}
}

// percentileSplit returns the timestamp splitting the records at the given
// positional percentile of their time order.
func percentileSplit(records []models.OutcomeRecord, p float64) time.Time {
	times := make([]time.Time, len(records))
	for i, r := range records {
		times[i] = r.CreatedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	idx := int(float64(len(times)) * p)
	if idx >= len(times) {
		idx = len(times) - 1
	}
	return times[idx]
}

// halfTrend compares the error rate of the first half of a component's own
// history against the second half. Positive means errors are thinning out.
func halfTrend(rs []models.OutcomeRecord) float64 {
	if len(rs) < 2 {
		return 0
	}
	sorted := make([]models.OutcomeRecord, len(rs))
	copy(sorted, rs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	mid := len(sorted) / 2
	return errorRate(sorted[:mid]) - errorRate(sorted[mid:])
}

func errorRate(rs []models.OutcomeRecord) float64 {
	if len(rs) == 0 {
		return 0
	}
	errs := 0
	for _, r := range rs {
		if !r.Correct {
			errs++
		}
	}
	return float64(errs) / float64(len(rs))
}
