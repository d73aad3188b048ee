package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/internal/storage/models"
	"github.com/adaptlearn/backend/internal/storage/sqlite"
	"github.com/adaptlearn/backend/pkg/logger"
)

// ObjectHandler manages the learnable-content catalog.
type ObjectHandler struct {
	db *sqlite.Client
}

func NewObjectHandler(db *sqlite.Client) *ObjectHandler {
	return &ObjectHandler{
		db: db,
	}
}

type objectRequest struct {
	Content    string  `json:"content"`
	Component  string  `json:"component"`
	Frequency  float64 `json:"frequency"`
	Relational float64 `json:"relational"`
	Domain     float64 `json:"domain"`
	Morph      float64 `json:"morph"`
	Phon       float64 `json:"phon"`
}

func (h *ObjectHandler) CreateObject(c *fiber.Ctx) error {
	var req objectRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "content is required",
		})
	}
	component := models.Component(req.Component)
	if !component.IsValid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "component must be one of PHON, MORPH, LEX, SYNT, PRAG",
		})
	}
	for _, v := range []float64{req.Frequency, req.Relational, req.Domain, req.Morph, req.Phon} {
		if v < 0 || v > 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "value dimensions must be between 0 and 1",
			})
		}
	}

	obj := &models.LanguageObject{
		ID:        uuid.New().String(),
		Content:   req.Content,
		Component: component,
		Value: models.ValueVector{
			Frequency:  req.Frequency,
			Relational: req.Relational,
			Domain:     req.Domain,
			Morph:      req.Morph,
			Phon:       req.Phon,
		},
		CreatedAt: time.Now(),
	}

	if err := h.db.InsertLanguageObject(obj); err != nil {
		logger.Error("Failed to insert language object", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create object",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":        obj.ID,
		"content":   obj.Content,
		"component": string(obj.Component),
	})
}

func (h *ObjectHandler) GetObject(c *fiber.Ctx) error {
	obj, err := h.db.GetLanguageObject(c.Params("objectID"))
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Object not found",
		})
	}
	if err != nil {
		logger.Error("Failed to fetch language object", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch object",
		})
	}

	return c.JSON(fiber.Map{
		"id":        obj.ID,
		"content":   obj.Content,
		"component": string(obj.Component),
		"value": fiber.Map{
			"frequency":  obj.Value.Frequency,
			"relational": obj.Value.Relational,
			"domain":     obj.Value.Domain,
			"morph":      obj.Value.Morph,
			"phon":       obj.Value.Phon,
		},
		"created_at": obj.CreatedAt,
	})
}

func (h *ObjectHandler) ListObjects(c *fiber.Ctx) error {
	objects, err := h.db.ListLanguageObjects()
	if err != nil {
		logger.Error("Failed to list language objects", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list objects",
		})
	}

	items := make([]fiber.Map, 0, len(objects))
	for _, obj := range objects {
		items = append(items, fiber.Map{
			"id":        obj.ID,
			"content":   obj.Content,
			"component": string(obj.Component),
		})
	}

	return c.JSON(fiber.Map{
		"total": len(items),
		"items": items,
	})
}
