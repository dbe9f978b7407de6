package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefinitionKindAchievement = "achievement"
	DefinitionKindBadge       = "badge"
)

// AchievementDefinition is admin-managed reference data; the engine
// treats it as immutable during evaluation.
type AchievementDefinition struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Code        string    `gorm:"uniqueIndex;not null;column:code" json:"code"`
	Kind        string    `gorm:"not null;default:'achievement';column:kind" json:"kind"`
	Title       string    `gorm:"not null;column:title" json:"title"`
	Description string    `gorm:"column:description" json:"description"`
	ActionType  string    `gorm:"not null;index;column:action_type" json:"action_type"`
	Threshold   float64   `gorm:"not null;column:threshold" json:"threshold"`
	Comparison  string    `gorm:"not null;default:'gte';column:comparison" json:"comparison"`
	Points      int       `gorm:"not null;default:0;column:points" json:"points"`
	Difficulty  string    `gorm:"not null;default:'common';column:difficulty" json:"difficulty"`
	IsActive    bool      `gorm:"not null;default:true;index;column:is_active" json:"is_active"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (AchievementDefinition) TableName() string { return "achievement_definition" }
