package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/types"
)

type RecommendationRepo interface {
	// ReplaceForUser swaps the user's materialized list in one
	// transaction so readers never observe a half-written refresh.
	// Dismissed rows are left untouched; a dismissal outlives every
	// refresh.
	ReplaceForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rows []*types.BookRecommendation) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.BookRecommendation, error)
	DismissedBookIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error)
	Dismiss(ctx context.Context, tx *gorm.DB, userID, bookID uuid.UUID) (bool, error)
}

type recommendationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecommendationRepo(db *gorm.DB, baseLog *logger.Logger) RecommendationRepo {
	repoLog := baseLog.With("repo", "RecommendationRepo")
	return &recommendationRepo{db: db, log: repoLog}
}

func (r *recommendationRepo) ReplaceForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rows []*types.BookRecommendation) error {
	run := func(transaction *gorm.DB) error {
		if err := transaction.WithContext(ctx).
			Where("user_id = ? AND is_dismissed = false", userID).
			Delete(&types.BookRecommendation{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return transaction.WithContext(ctx).Create(&rows).Error
	}

	if tx != nil {
		return run(tx)
	}
	return r.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return run(transaction)
	})
}

func (r *recommendationRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.BookRecommendation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.BookRecommendation
	if userID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Preload("Book").
		Where("user_id = ? AND is_dismissed = false", userID).
		Order("rank ASC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *recommendationRepo) DismissedBookIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.BookRecommendation{}).
		Where("user_id = ? AND is_dismissed = true", userID).
		Pluck("book_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *recommendationRepo) Dismiss(ctx context.Context, tx *gorm.DB, userID, bookID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	result := transaction.WithContext(ctx).
		Model(&types.BookRecommendation{}).
		Where("user_id = ? AND book_id = ? AND is_dismissed = false", userID, bookID).
		Update("is_dismissed", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
