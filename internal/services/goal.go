package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookverse/bookverse-backend/internal/apperr"
	"github.com/bookverse/bookverse-backend/internal/events"
	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/repos"
	"github.com/bookverse/bookverse-backend/internal/types"
)

// GoalProgress is the UI-facing view of a goal. DailyTarget is nil when
// the period has ended; a finished period is not an error.
type GoalProgress struct {
	ID              uuid.UUID  `json:"id"`
	GoalType        string     `json:"goal_type"`
	TargetValue     float64    `json:"target_value"`
	CurrentValue    float64    `json:"current_value"`
	IsCompleted     bool       `json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	PercentComplete float64    `json:"percent_complete"`
	RemainingValue  float64    `json:"remaining_value"`
	DaysLeft        int        `json:"days_left"`
	DailyTarget     *float64   `json:"daily_target"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
}

type ReadingGoalService interface {
	CreateGoal(ctx context.Context, userID uuid.UUID, goalType string, target float64, start, end time.Time) (*types.ReadingGoal, error)
	ListGoals(ctx context.Context, userID uuid.UUID) ([]*types.ReadingGoal, error)
	// UpdateProgress applies increment to an active goal. Completion
	// is a one-way transition that fires goal_completed exactly once.
	UpdateProgress(ctx context.Context, goalID uuid.UUID, increment float64) (*GoalProgress, error)
	GetProgress(ctx context.Context, goalID uuid.UUID) (*GoalProgress, error)
	// TrackBookCompletion fans a finished book out to the user's
	// active goals; one failing goal update is logged and skipped.
	TrackBookCompletion(ctx context.Context, userID, bookID uuid.UUID) ([]*GoalProgress, error)
}

type readingGoalService struct {
	db          *gorm.DB
	log         *logger.Logger
	goalRepo    repos.ReadingGoalRepo
	bookRepo    repos.BookRepo
	historyRepo repos.ReadingHistoryRepo
	bus         *events.Bus
	now         func() time.Time
}

func NewReadingGoalService(db *gorm.DB, log *logger.Logger, goalRepo repos.ReadingGoalRepo, bookRepo repos.BookRepo, historyRepo repos.ReadingHistoryRepo, bus *events.Bus) ReadingGoalService {
	serviceLog := log.With("service", "ReadingGoalService")
	return &readingGoalService{
		db:          db,
		log:         serviceLog,
		goalRepo:    goalRepo,
		bookRepo:    bookRepo,
		historyRepo: historyRepo,
		bus:         bus,
		now:         time.Now,
	}
}

var validGoalTypes = map[string]struct{}{
	types.GoalTypeBooks:   {},
	types.GoalTypePages:   {},
	types.GoalTypeMinutes: {},
}

func (s *readingGoalService) CreateGoal(ctx context.Context, userID uuid.UUID, goalType string, target float64, start, end time.Time) (*types.ReadingGoal, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id required")
	}
	if _, ok := validGoalTypes[goalType]; !ok {
		return nil, apperr.Validation("unknown goal type %q", goalType)
	}
	if target <= 0 {
		return nil, apperr.Validation("target value must be positive, got %v", target)
	}
	if !end.After(start) {
		return nil, apperr.Validation("goal period must end after it starts")
	}

	goal := &types.ReadingGoal{
		UserID:      userID,
		GoalType:    goalType,
		TargetValue: target,
		StartDate:   start,
		EndDate:     end,
	}
	created, err := s.goalRepo.Create(ctx, nil, goal)
	if err != nil {
		return nil, fmt.Errorf("creating goal: %w", err)
	}
	return created, nil
}

func (s *readingGoalService) ListGoals(ctx context.Context, userID uuid.UUID) ([]*types.ReadingGoal, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id required")
	}
	return s.goalRepo.ListByUser(ctx, nil, userID)
}

func (s *readingGoalService) UpdateProgress(ctx context.Context, goalID uuid.UUID, increment float64) (*GoalProgress, error) {
	if increment <= 0 {
		return nil, apperr.Validation("increment must be positive, got %v", increment)
	}

	goal, err := s.goalRepo.GetByID(ctx, nil, goalID)
	if err != nil {
		return nil, fmt.Errorf("loading goal: %w", err)
	}
	if goal == nil {
		return nil, apperr.NotFound("goal %s does not exist", goalID)
	}
	if goal.IsCompleted {
		return nil, apperr.Validation("goal is already completed")
	}

	newValue, applied, err := s.goalRepo.IncrementProgress(ctx, nil, goalID, increment)
	if err != nil {
		return nil, fmt.Errorf("updating goal progress: %w", err)
	}
	if !applied {
		// Completed between our read and the conditional write.
		return nil, apperr.Validation("goal is already completed")
	}
	goal.CurrentValue = newValue

	if newValue >= goal.TargetValue {
		completedAt := s.now().UTC()
		flipped, err := s.goalRepo.MarkCompleted(ctx, nil, goalID, completedAt)
		if err != nil {
			return nil, fmt.Errorf("completing goal: %w", err)
		}
		if flipped {
			goal.IsCompleted = true
			goal.CompletedAt = &completedAt
			if s.bus != nil {
				s.bus.Publish(ctx, events.EventGoalCompleted, map[string]interface{}{
					"user_id":      goal.UserID.String(),
					"goal_id":      goal.ID.String(),
					"goal_type":    goal.GoalType,
					"target_value": goal.TargetValue,
				})
			}
		}
	}

	return s.buildProgress(goal), nil
}

func (s *readingGoalService) GetProgress(ctx context.Context, goalID uuid.UUID) (*GoalProgress, error) {
	goal, err := s.goalRepo.GetByID(ctx, nil, goalID)
	if err != nil {
		return nil, fmt.Errorf("loading goal: %w", err)
	}
	if goal == nil {
		return nil, apperr.NotFound("goal %s does not exist", goalID)
	}
	return s.buildProgress(goal), nil
}

func (s *readingGoalService) TrackBookCompletion(ctx context.Context, userID, bookID uuid.UUID) ([]*GoalProgress, error) {
	if userID == uuid.Nil || bookID == uuid.Nil {
		return nil, apperr.Validation("user id and book id required")
	}

	books, err := s.bookRepo.GetByIDs(ctx, nil, []uuid.UUID{bookID})
	if err != nil {
		return nil, fmt.Errorf("loading book: %w", err)
	}
	if len(books) == 0 {
		return nil, apperr.NotFound("book %s does not exist", bookID)
	}
	book := books[0]

	readAt := s.now().UTC()
	if err := s.historyRepo.Upsert(ctx, nil, userID, bookID, readAt); err != nil {
		s.log.Warn("Recording reading history failed", "book_id", bookID, "error", err)
	}

	var updated []*GoalProgress
	apply := func(goalType string, increment float64) {
		goals, err := s.goalRepo.GetActiveByUserAndType(ctx, nil, userID, goalType, readAt)
		if err != nil {
			s.log.Warn("Loading active goals failed", "goal_type", goalType, "error", err)
			return
		}
		for _, goal := range goals {
			progress, err := s.UpdateProgress(ctx, goal.ID, increment)
			if err != nil {
				s.log.Warn("Goal update failed, continuing", "goal_id", goal.ID, "error", err)
				continue
			}
			updated = append(updated, progress)
		}
	}

	apply(types.GoalTypeBooks, 1)
	if book.PageCount > 0 {
		apply(types.GoalTypePages, float64(book.PageCount))
	}
	return updated, nil
}

func (s *readingGoalService) buildProgress(goal *types.ReadingGoal) *GoalProgress {
	progress := &GoalProgress{
		ID:           goal.ID,
		GoalType:     goal.GoalType,
		TargetValue:  goal.TargetValue,
		CurrentValue: goal.CurrentValue,
		IsCompleted:  goal.IsCompleted,
		CompletedAt:  goal.CompletedAt,
		StartDate:    goal.StartDate,
		EndDate:      goal.EndDate,
	}

	if goal.TargetValue > 0 {
		progress.PercentComplete = math.Min(100, math.Round(goal.CurrentValue/goal.TargetValue*1000)/10)
	}
	progress.RemainingValue = math.Max(0, goal.TargetValue-goal.CurrentValue)

	now := s.now()
	if remaining := goal.EndDate.Sub(now); remaining > 0 {
		progress.DaysLeft = int(math.Ceil(remaining.Hours() / 24))
	}
	if !goal.IsCompleted && progress.DaysLeft > 0 {
		dailyTarget := progress.RemainingValue / float64(progress.DaysLeft)
		progress.DailyTarget = &dailyTarget
	}
	return progress
}
