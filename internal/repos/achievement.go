package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/types"
)

type AchievementRepo interface {
	GetActiveByActionType(ctx context.Context, tx *gorm.DB, actionType string) ([]*types.AchievementDefinition, error)
	CountActiveDefinitions(ctx context.Context, tx *gorm.DB) (int64, error)
	GetEarnedDefinitionIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (map[uuid.UUID]struct{}, error)
	// InsertEarnedIfAbsent relies on the unique (user_id,
	// achievement_id) index: a concurrent or repeated unlock is
	// reported as inserted=false, never as an error.
	InsertEarnedIfAbsent(ctx context.Context, tx *gorm.DB, row *types.UserAchievement) (bool, error)
	ListEarnedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.UserAchievement, error)
}

type achievementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAchievementRepo(db *gorm.DB, baseLog *logger.Logger) AchievementRepo {
	repoLog := baseLog.With("repo", "AchievementRepo")
	return &achievementRepo{db: db, log: repoLog}
}

func (r *achievementRepo) GetActiveByActionType(ctx context.Context, tx *gorm.DB, actionType string) ([]*types.AchievementDefinition, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.AchievementDefinition
	if actionType == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("action_type = ? AND is_active = true", actionType).
		Order("threshold ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *achievementRepo) CountActiveDefinitions(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.AchievementDefinition{}).
		Where("is_active = true").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *achievementRepo) GetEarnedDefinitionIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.UserAchievement{}).
		Where("user_id = ?", userID).
		Pluck("achievement_id", &ids).Error; err != nil {
		return nil, err
	}

	earned := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		earned[id] = struct{}{}
	}
	return earned, nil
}

func (r *achievementRepo) InsertEarnedIfAbsent(ctx context.Context, tx *gorm.DB, row *types.UserAchievement) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return false, nil
	}

	result := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoNothing: true,
		}).
		Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *achievementRepo) ListEarnedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.UserAchievement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.UserAchievement
	if userID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Preload("Achievement").
		Where("user_id = ?", userID).
		Order("earned_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
