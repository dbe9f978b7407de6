package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bookverse/bookverse-backend/internal/requestdata"
	"github.com/bookverse/bookverse-backend/internal/services"
)

type AchievementHandler struct {
	svc services.AchievementService
}

func NewAchievementHandler(svc services.AchievementService) *AchievementHandler {
	return &AchievementHandler{svc: svc}
}

type trackRequest struct {
	ActionType string `json:"action_type" binding:"required"`
	// Value defaults to a single occurrence when omitted in delta
	// mode; absolute mode always requires it. An explicit value,
	// including zero, is forwarded as sent.
	Value    *float64               `json:"value"`
	Mode     string                 `json:"mode"`
	Metadata map[string]interface{} `json:"metadata"`
}

// POST /api/achievements/track
func (h *AchievementHandler) Track(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	mode := services.RecordMode(req.Mode)
	if req.Mode == "" {
		mode = services.RecordModeDelta
	}
	var value float64
	switch {
	case req.Value != nil:
		value = *req.Value
	case mode == services.RecordModeDelta:
		value = 1
	default:
		RespondError(c, http.StatusBadRequest, "validation", errors.New("value is required in absolute mode"))
		return
	}

	userID := requestdata.UserID(c.Request.Context())
	result, err := h.svc.TrackProgress(c.Request.Context(), userID, req.ActionType, value, mode, req.Metadata)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /api/achievements/progress
func (h *AchievementHandler) Progress(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	summary, err := h.svc.GetProgressSummary(c.Request.Context(), userID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, summary)
}

// GET /api/achievements
func (h *AchievementHandler) ListEarned(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	earned, err := h.svc.ListEarned(c.Request.Context(), userID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"achievements": earned})
}

// POST /api/books/:id/complete
func (h *AchievementHandler) CompleteBook(goals services.ReadingGoalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
			return
		}
		userID := requestdata.UserID(c.Request.Context())

		updated, err := goals.TrackBookCompletion(c.Request.Context(), userID, bookID)
		if err != nil {
			RespondAppError(c, err)
			return
		}
		result, err := h.svc.TrackProgress(c.Request.Context(), userID, "books_read", 1, services.RecordModeDelta, map[string]interface{}{
			"book_id": bookID.String(),
		})
		if err != nil {
			RespondAppError(c, err)
			return
		}
		RespondOK(c, gin.H{"achievements": result, "goals": updated})
	}
}
