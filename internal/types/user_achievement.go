package types

import (
	"time"

	"github.com/google/uuid"
)

// UserAchievement is the unlock record. The unique (user_id,
// achievement_id) index is the duplicate-unlock guard; rows are created
// exactly once and never updated.
type UserAchievement struct {
	ID            uuid.UUID              `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID        uuid.UUID              `gorm:"type:uuid;not null;index:idx_user_achievement,unique" json:"user_id"`
	User          *User                  `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	AchievementID uuid.UUID              `gorm:"type:uuid;not null;index:idx_user_achievement,unique" json:"achievement_id"`
	Achievement   *AchievementDefinition `gorm:"constraint:OnDelete:CASCADE;foreignKey:AchievementID;references:ID" json:"achievement,omitempty"`
	EarnedAt      time.Time              `gorm:"not null;default:now();column:earned_at" json:"earned_at"`
	CreatedAt     time.Time              `gorm:"not null;default:now()" json:"created_at"`
}

func (UserAchievement) TableName() string { return "user_achievement" }
