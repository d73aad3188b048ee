package content

import (
	"context"
	"fmt"
)

// TemplateProvider is the deterministic fallback: fixed feedback phrasing
// keyed on the evaluation outcome. It never fails, which is what lets the
// session pipeline promise feedback regardless of collaborator health.
type TemplateProvider struct{}

func NewTemplateProvider() *TemplateProvider {
	return &TemplateProvider{}
}

func (p *TemplateProvider) FeedbackText(_ context.Context, req FeedbackRequest) (string, error) {
	switch {
	case req.Correct && req.StageChanged:
		return fmt.Sprintf("Correct! You've advanced to the %s stage for this item.", req.NewStage), nil
	case req.Correct && req.Credit < 1.0:
		return "Almost perfect, watch the spelling next time.", nil
	case req.Correct:
		return "Correct!", nil
	}

	switch req.ErrorSubtype {
	case "spelling":
		return fmt.Sprintf("Close! Check the spelling: the answer was %q.", req.Expected), nil
	case "typo":
		return fmt.Sprintf("Nearly there, a letter or two off: the answer was %q.", req.Expected), nil
	default:
		return fmt.Sprintf("Not quite. The answer was %q.", req.Expected), nil
	}
}
