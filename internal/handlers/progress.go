package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/bookverse/bookverse-backend/internal/requestdata"
	"github.com/bookverse/bookverse-backend/internal/services"
)

type ProgressHandler struct {
	svc services.ProgressService
}

func NewProgressHandler(svc services.ProgressService) *ProgressHandler {
	return &ProgressHandler{svc: svc}
}

// GET /api/progress
func (h *ProgressHandler) List(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	counters, err := h.svc.GetCounters(c.Request.Context(), userID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"counters": counters})
}

// GET /api/progress/:action
func (h *ProgressHandler) Get(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	counter, err := h.svc.GetCounter(c.Request.Context(), userID, c.Param("action"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, counter)
}
