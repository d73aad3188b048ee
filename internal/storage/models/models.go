package models

import (
	"fmt"
	"time"
)

// Component is a linguistic skill component. The declared order is the
// processing hierarchy: errors in an earlier component can cascade into
// every later one.
type Component string

const (
	Phonology  Component = "PHON"
	Morphology Component = "MORPH"
	Lexicon    Component = "LEX"
	Syntax     Component = "SYNT"
	Pragmatics Component = "PRAG"
)

// Hierarchy is the fixed cascade order. Detection logic iterates this slice
// rather than map keys so the upstream-wins rule cannot depend on iteration
// order.
var Hierarchy = []Component{Phonology, Morphology, Lexicon, Syntax, Pragmatics}

var hierarchyIndex = map[Component]int{
	Phonology:  0,
	Morphology: 1,
	Lexicon:    2,
	Syntax:     3,
	Pragmatics: 4,
}

// Index returns the component's position in the hierarchy, or -1 for an
// unknown component.
func (c Component) Index() int {
	i, ok := hierarchyIndex[c]
	if !ok {
		return -1
	}
	return i
}

func (c Component) IsValid() bool {
	_, ok := hierarchyIndex[c]
	return ok
}

// Downstream reports whether other sits strictly after c in the hierarchy.
func (c Component) Downstream(other Component) bool {
	ci, oi := c.Index(), other.Index()
	return ci >= 0 && oi >= 0 && oi > ci
}

// Stage is a mastery stage. Stages are ordered and transitions move by
// exactly one level per evaluation.
type Stage int

const (
	StageUnknown Stage = iota
	StageRecognition
	StageRecall
	StageControlled
	StageAutomatic
)

var stageNames = [...]string{
	StageUnknown:     "unknown",
	StageRecognition: "recognition",
	StageRecall:      "recall",
	StageControlled:  "controlled",
	StageAutomatic:   "automatic",
}

func (s Stage) String() string {
	if s >= StageUnknown && s <= StageAutomatic {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ValueVector is the learner-independent objective value of a language
// object. All dimensions are normalized to [0, 1].
type ValueVector struct {
	Frequency  float64
	Relational float64
	Domain     float64
	Morph      float64
	Phon       float64
}

// LanguageObject is one learnable unit. Reference data owned by the content
// catalog; the scheduler never mutates it.
type LanguageObject struct {
	ID        string
	Content   string
	Component Component
	Value     ValueVector
	CreatedAt time.Time
}

// MasteryState is the per-learner, per-object scheduling state. One row per
// (learner, object), created on first exposure and mutated after every
// response.
type MasteryState struct {
	LearnerID           string
	ObjectID            string
	Stage               Stage
	CueFreeAccuracy     float64
	CueAssistedAccuracy float64
	ExposureCount       int
	DecayStability      float64 // days; 0 before first review
	DecayDifficulty     float64 // 1..10; 0 before first review
	Repetitions         int
	Lapses              int
	LastReviewAt        *time.Time
	NextReviewAt        time.Time
	CachedPriority      float64
	Ability             float64
	UpdatedAt           time.Time
}

// ScaffoldingGap is always derived from the two stored accuracies, never
// stored on its own.
func (m *MasteryState) ScaffoldingGap() float64 {
	return m.CueAssistedAccuracy - m.CueFreeAccuracy
}

// OutcomeRecord is one appended row per response. It is the sole source of
// truth for bottleneck analysis and error statistics; rows are never updated.
type OutcomeRecord struct {
	ID        string
	LearnerID string
	ObjectID  string
	Component Component
	Correct   bool
	LatencyMs int
	CueLevel  int
	SessionID string
	CreatedAt time.Time
}

// ComponentErrorStats is a materialized view over the outcome log for one
// (learner, component). Recomputed wholesale, safe to rebuild at any time.
type ComponentErrorStats struct {
	LearnerID      string
	Component      Component
	TotalErrors    int
	RecentErrors   int
	ErrorRate      float64
	Trend          float64 // positive = worsening (recent error rate rising)
	Recommendation string
	IsBottleneck   bool
	UpdatedAt      time.Time
}
