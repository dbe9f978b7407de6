package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bookverse/bookverse-backend/internal/requestdata"
	"github.com/bookverse/bookverse-backend/internal/services"
)

type RecommendationHandler struct {
	svc services.RecommendationService
}

func NewRecommendationHandler(svc services.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{svc: svc}
}

// GET /api/recommendations
func (h *RecommendationHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	userID := requestdata.UserID(c.Request.Context())
	recs, err := h.svc.GetPersonalized(c.Request.Context(), userID, limit)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"recommendations": recs})
}

// POST /api/recommendations/refresh
func (h *RecommendationHandler) Refresh(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	recs, err := h.svc.Refresh(c.Request.Context(), userID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"recommendations": recs})
}

// POST /api/recommendations/:book_id/dismiss
func (h *RecommendationHandler) Dismiss(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("book_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}
	userID := requestdata.UserID(c.Request.Context())
	if err := h.svc.Dismiss(c.Request.Context(), userID, bookID); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"dismissed": bookID})
}
