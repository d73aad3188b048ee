package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/internal/priority"
	"github.com/adaptlearn/backend/internal/session"
	"github.com/adaptlearn/backend/pkg/logger"
)

type QueueHandler struct {
	engine *session.Engine
}

func NewQueueHandler(engine *session.Engine) *QueueHandler {
	return &QueueHandler{
		engine: engine,
	}
}

func (h *QueueHandler) GetQueue(c *fiber.Ctx) error {
	learnerID := c.Query("learner_id")
	if learnerID == "" {
		learnerID = c.Get("X-Learner-ID")
	}
	if learnerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "learner_id is required",
		})
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	queue, err := h.engine.ReviewQueue(c.Context(), learnerID)
	if err != nil {
		logger.Error("Failed to build review queue", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build review queue",
		})
	}

	total := len(queue)
	if len(queue) > limit {
		queue = queue[:limit]
	}

	items := make([]fiber.Map, 0, len(queue))
	for _, item := range queue {
		items = append(items, queueItemJSON(item))
	}

	return c.JSON(fiber.Map{
		"learner_id": learnerID,
		"total":      total,
		"items":      items,
	})
}

func queueItemJSON(item priority.QueueItem) fiber.Map {
	return fiber.Map{
		"object_id": item.Object.ID,
		"content":   item.Object.Content,
		"component": string(item.Object.Component),
		"stage":     item.Stage.String(),
		"priority":  item.Score.Effective,
		"urgency":   item.Score.Urgency,
	}
}
