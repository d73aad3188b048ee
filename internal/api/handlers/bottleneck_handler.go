package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/internal/session"
	"github.com/adaptlearn/backend/pkg/logger"
)

type BottleneckHandler struct {
	engine *session.Engine
}

func NewBottleneckHandler(engine *session.Engine) *BottleneckHandler {
	return &BottleneckHandler{
		engine: engine,
	}
}

func (h *BottleneckHandler) GetBottleneck(c *fiber.Ctx) error {
	learnerID := c.Query("learner_id")
	if learnerID == "" {
		learnerID = c.Get("X-Learner-ID")
	}
	if learnerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "learner_id is required",
		})
	}

	analysis, err := h.engine.Bottleneck(c.Context(), learnerID)
	if err != nil {
		logger.Error("Failed to analyze bottleneck", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to analyze bottleneck",
		})
	}

	if analysis.InsufficientData {
		return c.JSON(fiber.Map{
			"learner_id":        learnerID,
			"insufficient_data": true,
			"total_responses":   analysis.TotalResponses,
		})
	}

	return c.JSON(fiber.Map{
		"learner_id":         learnerID,
		"has_bottleneck":     analysis.HasBottleneck,
		"primary":            analysis.Primary,
		"via_cascade":        analysis.ViaCascade,
		"cascade_chain":      analysis.CascadeChain,
		"cascade_confidence": analysis.CascadeConfidence,
		"confidence":         analysis.Confidence,
		"evidence":           analysis.Evidence,
		"patterns":           analysis.Patterns,
		"co_occurrences":     analysis.CoOccurrences,
		"recommendation":     analysis.Recommendation,
		"total_responses":    analysis.TotalResponses,
		"analyzed_at":        analysis.AnalyzedAt,
	})
}
