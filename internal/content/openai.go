package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/pkg/circuitbreaker"
	"github.com/adaptlearn/backend/pkg/logger"
	"github.com/adaptlearn/backend/pkg/retry"
)

const feedbackSystemPrompt = `You write one-sentence feedback for a language learner.
Be encouraging but concrete. Mention what was wrong when the answer missed.
Never reveal the expected answer verbatim when the learner was close.`

// OpenAIProvider generates feedback through the OpenAI API, guarded by a
// circuit breaker and bounded retries. Callers are expected to fall back to
// the template provider when it errors.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewOpenAIProvider(apiKey, model string, temperature float32, maxTokens, timeoutSec int) *OpenAIProvider {
	cb := circuitbreaker.New("content", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    2,
		InitialDelay:   300 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Content provider initialized", zap.String("model", model))

	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (p *OpenAIProvider) FeedbackText(ctx context.Context, req FeedbackRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	userPrompt := buildPrompt(req)

	var result string
	err := p.cb.Execute(ctx, func() error {
		return retry.Do(ctx, p.retryConfig, func() error {
			resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       p.model,
				Temperature: p.temperature,
				MaxTokens:   p.maxTokens,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: feedbackSystemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: userPrompt},
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}
			result = strings.TrimSpace(resp.Choices[0].Message.Content)
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

func buildPrompt(req FeedbackRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Expected answer: %q\nLearner answered: %q\nCorrect: %v\nCredit: %.2f\n",
		req.Expected, req.Given, req.Correct, req.Credit)
	if req.ErrorSubtype != "" {
		fmt.Fprintf(&b, "Error type: %s\n", req.ErrorSubtype)
	}
	if req.StageChanged {
		fmt.Fprintf(&b, "The learner just reached the %q mastery stage.\n", req.NewStage)
	}
	return b.String()
}
