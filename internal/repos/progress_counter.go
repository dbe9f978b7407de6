package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/types"
)

type ProgressCounterRepo interface {
	// Increment applies value atomically and returns the resulting
	// counter value in the same statement, so callers can evaluate
	// thresholds without a second read. In absolute mode the stored
	// value is clamped upward (GREATEST), never decreased.
	Increment(ctx context.Context, tx *gorm.DB, userID uuid.UUID, actionType string, value float64, absolute bool) (float64, error)
	GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ProgressCounter, error)
	GetByUserAndAction(ctx context.Context, tx *gorm.DB, userID uuid.UUID, actionType string) (*types.ProgressCounter, error)
}

type progressCounterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressCounterRepo(db *gorm.DB, baseLog *logger.Logger) ProgressCounterRepo {
	repoLog := baseLog.With("repo", "ProgressCounterRepo")
	return &progressCounterRepo{db: db, log: repoLog}
}

const incrementDeltaSQL = `
INSERT INTO progress_counter (user_id, action_type, current_value, created_at, updated_at)
VALUES (?, ?, ?, now(), now())
ON CONFLICT (user_id, action_type)
DO UPDATE SET current_value = progress_counter.current_value + EXCLUDED.current_value, updated_at = now()
RETURNING current_value`

const incrementAbsoluteSQL = `
INSERT INTO progress_counter (user_id, action_type, current_value, created_at, updated_at)
VALUES (?, ?, ?, now(), now())
ON CONFLICT (user_id, action_type)
DO UPDATE SET current_value = GREATEST(progress_counter.current_value, EXCLUDED.current_value), updated_at = now()
RETURNING current_value`

func (r *progressCounterRepo) Increment(ctx context.Context, tx *gorm.DB, userID uuid.UUID, actionType string, value float64, absolute bool) (float64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	stmt := incrementDeltaSQL
	if absolute {
		stmt = incrementAbsoluteSQL
	}

	var newValue float64
	if err := transaction.WithContext(ctx).
		Raw(stmt, userID, actionType, value).
		Scan(&newValue).Error; err != nil {
		return 0, err
	}
	return newValue, nil
}

func (r *progressCounterRepo) GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ProgressCounter, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ProgressCounter
	if userID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *progressCounterRepo) GetByUserAndAction(ctx context.Context, tx *gorm.DB, userID uuid.UUID, actionType string) (*types.ProgressCounter, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.ProgressCounter
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND action_type = ?", userID, actionType).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}
