package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/internal/decay"
	"github.com/adaptlearn/backend/internal/mastery"
	"github.com/adaptlearn/backend/internal/storage/sqlite"
	"github.com/adaptlearn/backend/pkg/logger"
)

type MasteryHandler struct {
	db       *sqlite.Client
	reviewer *decay.Reviewer
}

func NewMasteryHandler(db *sqlite.Client, reviewer *decay.Reviewer) *MasteryHandler {
	return &MasteryHandler{
		db:       db,
		reviewer: reviewer,
	}
}

func (h *MasteryHandler) GetMastery(c *fiber.Ctx) error {
	objectID := c.Params("objectID")
	learnerID := c.Query("learner_id")
	if learnerID == "" {
		learnerID = c.Get("X-Learner-ID")
	}
	if learnerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "learner_id is required",
		})
	}

	st, err := h.db.GetMasteryState(learnerID, objectID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No mastery state for this object",
		})
	}
	if err != nil {
		logger.Error("Failed to fetch mastery state", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch mastery state",
		})
	}

	body := fiber.Map{
		"learner_id":            st.LearnerID,
		"object_id":             st.ObjectID,
		"stage":                 st.Stage.String(),
		"cue_free_accuracy":     st.CueFreeAccuracy,
		"cue_assisted_accuracy": st.CueAssistedAccuracy,
		"scaffolding_gap":       st.ScaffoldingGap(),
		"exposure_count":        st.ExposureCount,
		"stability":             st.DecayStability,
		"difficulty":            st.DecayDifficulty,
		"repetitions":           st.Repetitions,
		"lapses":                st.Lapses,
		"ability":               st.Ability,
		"next_review_at":        st.NextReviewAt,
		"next_cue_level":        int(mastery.SelectCueLevel(st)),
		"priority":              st.CachedPriority,
	}

	if st.LastReviewAt != nil {
		body["last_review_at"] = st.LastReviewAt
		body["retrievability"] = h.reviewer.Retrievability(decay.State{
			Stability:  st.DecayStability,
			Difficulty: st.DecayDifficulty,
		}, time.Since(*st.LastReviewAt))
	}

	return c.JSON(body)
}
