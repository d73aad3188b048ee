package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/internal/session"
	"github.com/adaptlearn/backend/pkg/logger"
)

type StatsHandler struct {
	engine *session.Engine
}

func NewStatsHandler(engine *session.Engine) *StatsHandler {
	return &StatsHandler{
		engine: engine,
	}
}

func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	learnerID := c.Query("learner_id")
	if learnerID == "" {
		learnerID = c.Get("X-Learner-ID")
	}
	if learnerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "learner_id is required",
		})
	}

	stats, err := h.engine.LearnerStats(c.Context(), learnerID)
	if err != nil {
		logger.Error("Failed to collect learner stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to collect learner stats",
		})
	}

	components := make([]fiber.Map, 0, len(stats.Components))
	for _, s := range stats.Components {
		components = append(components, fiber.Map{
			"component":      string(s.Component),
			"total_errors":   s.TotalErrors,
			"recent_errors":  s.RecentErrors,
			"error_rate":     s.ErrorRate,
			"trend":          s.Trend,
			"is_bottleneck":  s.IsBottleneck,
			"recommendation": s.Recommendation,
		})
	}

	return c.JSON(fiber.Map{
		"learner_id":   learnerID,
		"stage_counts": stats.StageCounts,
		"due_count":    stats.DueCount,
		"components":   components,
	})
}
