package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/types"
)

type ReadingGoalRepo interface {
	Create(ctx context.Context, tx *gorm.DB, goal *types.ReadingGoal) (*types.ReadingGoal, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ReadingGoal, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ReadingGoal, error)
	GetActiveByUserAndType(ctx context.Context, tx *gorm.DB, userID uuid.UUID, goalType string, asOf time.Time) ([]*types.ReadingGoal, error)
	// IncrementProgress adds increment to an uncompleted goal and
	// returns the updated value. Returns applied=false when the goal
	// is already completed (the terminal state rejects writes).
	IncrementProgress(ctx context.Context, tx *gorm.DB, id uuid.UUID, increment float64) (newValue float64, applied bool, err error)
	// MarkCompleted flips is_completed exactly once; the conditional
	// WHERE clause makes the transition safe under concurrent updates.
	MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, completedAt time.Time) (bool, error)
}

type readingGoalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReadingGoalRepo(db *gorm.DB, baseLog *logger.Logger) ReadingGoalRepo {
	repoLog := baseLog.With("repo", "ReadingGoalRepo")
	return &readingGoalRepo{db: db, log: repoLog}
}

func (r *readingGoalRepo) Create(ctx context.Context, tx *gorm.DB, goal *types.ReadingGoal) (*types.ReadingGoal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if goal == nil {
		return nil, nil
	}

	if err := transaction.WithContext(ctx).Create(goal).Error; err != nil {
		return nil, err
	}
	return goal, nil
}

func (r *readingGoalRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ReadingGoal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.ReadingGoal
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *readingGoalRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ReadingGoal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ReadingGoal
	if userID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *readingGoalRepo) GetActiveByUserAndType(ctx context.Context, tx *gorm.DB, userID uuid.UUID, goalType string, asOf time.Time) ([]*types.ReadingGoal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ReadingGoal
	if userID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND goal_type = ? AND is_completed = false AND start_date <= ? AND end_date >= ?", userID, goalType, asOf, asOf).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

const incrementGoalSQL = `
UPDATE reading_goal
SET current_value = current_value + ?, updated_at = now()
WHERE id = ? AND is_completed = false
RETURNING current_value`

func (r *readingGoalRepo) IncrementProgress(ctx context.Context, tx *gorm.DB, id uuid.UUID, increment float64) (float64, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []float64
	if err := transaction.WithContext(ctx).
		Raw(incrementGoalSQL, increment, id).
		Scan(&rows).Error; err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0], true, nil
}

func (r *readingGoalRepo) MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, completedAt time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	result := transaction.WithContext(ctx).
		Model(&types.ReadingGoal{}).
		Where("id = ? AND is_completed = false", id).
		Updates(map[string]interface{}{
			"is_completed": true,
			"completed_at": completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
