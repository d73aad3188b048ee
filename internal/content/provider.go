// Package content talks to the generative content collaborator. The
// scheduler core never generates learning content itself; this package only
// turns an evaluation outcome into learner-facing feedback text, and always
// has a deterministic fallback so feedback can never block a session.
package content

import "context"

// FeedbackRequest describes one evaluated response for feedback generation.
type FeedbackRequest struct {
	Expected     string
	Given        string
	Correct      bool
	Credit       float64
	ErrorSubtype string
	StageChanged bool
	NewStage     string
}

// Provider produces learner-facing feedback text.
type Provider interface {
	FeedbackText(ctx context.Context, req FeedbackRequest) (string, error)
}
