package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/internal/evaluation"
	"github.com/adaptlearn/backend/internal/session"
	"github.com/adaptlearn/backend/internal/storage/sqlite"
	"github.com/adaptlearn/backend/pkg/logger"
)

// WebSocketHandler drives a live practice session over one connection:
// the client submits responses, the server answers with the evaluation
// result and the next queue item.
type WebSocketHandler struct {
	engine *session.Engine
}

func NewWebSocketHandler(engine *session.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

type sessionMessage struct {
	Type        string `json:"type"`
	LearnerID   string `json:"learner_id"`
	ObjectID    string `json:"object_id"`
	Response    string `json:"response"`
	LatencyMs   int    `json:"latency_ms"`
	CueLevel    int    `json:"cue_level"`
	SessionID   string `json:"session_id"`
	SessionMode string `json:"session_mode"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Session connection established")

	defer func() {
		c.Close()
		logger.Info("Session connection closed")
	}()

	for {
		var msg sessionMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("Failed to read session message", zap.Error(err))
			}
			break
		}

		switch msg.Type {
		case "response":
			h.handleResponse(c, msg)
		case "queue":
			h.handleQueue(c, msg)
		default:
			h.sendError(c, "Unknown message type")
		}
	}
}

func (h *WebSocketHandler) handleResponse(c *websocket.Conn, msg sessionMessage) {
	if msg.SessionMode == "" {
		msg.SessionMode = string(evaluation.ModeTraining)
	}

	result, err := h.engine.ProcessResponse(context.Background(), session.ResponsePayload{
		LearnerID:         msg.LearnerID,
		ObjectID:          msg.ObjectID,
		RawResponse:       msg.Response,
		ResponseLatencyMs: msg.LatencyMs,
		CueLevelUsed:      msg.CueLevel,
		SessionID:         msg.SessionID,
		SessionMode:       evaluation.SessionMode(msg.SessionMode),
	})
	if err != nil {
		switch {
		case errors.Is(err, sqlite.ErrNotFound):
			h.sendError(c, "Object not found")
		case errors.Is(err, session.ErrInvalidCueLevel),
			errors.Is(err, evaluation.ErrNegativeLatency),
			errors.Is(err, evaluation.ErrInvalidSessionMode):
			h.sendError(c, err.Error())
		default:
			logger.Error("Failed to process session response", zap.Error(err))
			h.sendError(c, "Failed to process response")
		}
		return
	}

	payload := map[string]interface{}{
		"type":           "result",
		"correct":        result.Correct,
		"credit":         result.Credit,
		"feedback":       result.FeedbackText,
		"stage":          result.NewStage.String(),
		"stage_changed":  result.StageChanged,
		"next_review_at": result.NextReviewAt,
		"next_cue_level": int(result.NextCueLevel),
	}
	if result.NextQueueItem != nil {
		payload["next_item"] = queueItemJSON(*result.NextQueueItem)
	}
	if result.UpdatedBottleneck != nil {
		payload["bottleneck"] = result.UpdatedBottleneck
	}

	if err := c.WriteJSON(payload); err != nil {
		logger.Error("Failed to write session result", zap.Error(err))
	}
}

func (h *WebSocketHandler) handleQueue(c *websocket.Conn, msg sessionMessage) {
	queue, err := h.engine.ReviewQueue(context.Background(), msg.LearnerID)
	if err != nil {
		logger.Error("Failed to build review queue", zap.Error(err))
		h.sendError(c, "Failed to build review queue")
		return
	}

	const head = 10
	if len(queue) > head {
		queue = queue[:head]
	}

	items := make([]interface{}, 0, len(queue))
	for _, item := range queue {
		items = append(items, queueItemJSON(item))
	}

	if err := c.WriteJSON(map[string]interface{}{
		"type":  "queue",
		"items": items,
	}); err != nil {
		logger.Error("Failed to write queue message", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, message string) {
	if err := c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": message,
	}); err != nil {
		logger.Error("Failed to write error message", zap.Error(err))
	}
}
