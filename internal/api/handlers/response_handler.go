package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/internal/evaluation"
	"github.com/adaptlearn/backend/internal/session"
	"github.com/adaptlearn/backend/internal/storage/sqlite"
	"github.com/adaptlearn/backend/pkg/logger"
)

type ResponseHandler struct {
	engine *session.Engine
}

func NewResponseHandler(engine *session.Engine) *ResponseHandler {
	return &ResponseHandler{
		engine: engine,
	}
}

type responseRequest struct {
	LearnerID   string `json:"learner_id"`
	ObjectID    string `json:"object_id"`
	Response    string `json:"response"`
	LatencyMs   int    `json:"latency_ms"`
	CueLevel    int    `json:"cue_level"`
	SessionID   string `json:"session_id"`
	SessionMode string `json:"session_mode"`
}

func (h *ResponseHandler) HandleResponse(c *fiber.Ctx) error {
	var req responseRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.LearnerID == "" || req.ObjectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "learner_id and object_id are required",
		})
	}
	if req.SessionMode == "" {
		req.SessionMode = string(evaluation.ModeTraining)
	}

	result, err := h.engine.ProcessResponse(c.Context(), session.ResponsePayload{
		LearnerID:         req.LearnerID,
		ObjectID:          req.ObjectID,
		RawResponse:       req.Response,
		ResponseLatencyMs: req.LatencyMs,
		CueLevelUsed:      req.CueLevel,
		SessionID:         req.SessionID,
		SessionMode:       evaluation.SessionMode(req.SessionMode),
	})
	if err != nil {
		return writeEngineError(c, err, "Failed to process response")
	}

	body := fiber.Map{
		"correct":        result.Correct,
		"credit":         result.Credit,
		"feedback":       result.FeedbackText,
		"stage":          result.NewStage.String(),
		"stage_changed":  result.StageChanged,
		"next_review_at": result.NextReviewAt,
		"next_cue_level": int(result.NextCueLevel),
	}
	if result.UpdatedBottleneck != nil {
		body["bottleneck"] = result.UpdatedBottleneck
	}
	if result.NextQueueItem != nil {
		body["next_item"] = queueItemJSON(*result.NextQueueItem)
	}

	return c.JSON(body)
}

func writeEngineError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Object not found",
		})
	case errors.Is(err, session.ErrInvalidCueLevel),
		errors.Is(err, evaluation.ErrNegativeLatency),
		errors.Is(err, evaluation.ErrInvalidSessionMode):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		logger.Error(fallback, zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fallback,
		})
	}
}
