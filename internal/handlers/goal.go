package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bookverse/bookverse-backend/internal/requestdata"
	"github.com/bookverse/bookverse-backend/internal/services"
)

type GoalHandler struct {
	svc services.ReadingGoalService
}

func NewGoalHandler(svc services.ReadingGoalService) *GoalHandler {
	return &GoalHandler{svc: svc}
}

type createGoalRequest struct {
	GoalType    string    `json:"goal_type" binding:"required"`
	TargetValue float64   `json:"target_value" binding:"required"`
	StartDate   time.Time `json:"start_date" binding:"required"`
	EndDate     time.Time `json:"end_date" binding:"required"`
}

// POST /api/goals
func (h *GoalHandler) Create(c *gin.Context) {
	var req createGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	userID := requestdata.UserID(c.Request.Context())
	goal, err := h.svc.CreateGoal(c.Request.Context(), userID, req.GoalType, req.TargetValue, req.StartDate, req.EndDate)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, goal)
}

// GET /api/goals
func (h *GoalHandler) List(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	goals, err := h.svc.ListGoals(c.Request.Context(), userID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"goals": goals})
}

type updateGoalRequest struct {
	Increment float64 `json:"increment" binding:"required"`
}

// POST /api/goals/:id/progress
func (h *GoalHandler) UpdateProgress(c *gin.Context) {
	goalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal id"})
		return
	}
	var req updateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	progress, err := h.svc.UpdateProgress(c.Request.Context(), goalID, req.Increment)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, progress)
}

// GET /api/goals/:id/progress
func (h *GoalHandler) Progress(c *gin.Context) {
	goalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal id"})
		return
	}
	progress, err := h.svc.GetProgress(c.Request.Context(), goalID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, progress)
}
