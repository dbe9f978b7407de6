package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	GoalTypeBooks   = "books"
	GoalTypePages   = "pages"
	GoalTypeMinutes = "minutes"
)

type ReadingGoal struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User         *User      `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	GoalType     string     `gorm:"not null;index;column:goal_type" json:"goal_type"`
	TargetValue  float64    `gorm:"not null;column:target_value" json:"target_value"`
	CurrentValue float64    `gorm:"not null;default:0;column:current_value" json:"current_value"`
	StartDate    time.Time  `gorm:"not null;column:start_date" json:"start_date"`
	EndDate      time.Time  `gorm:"not null;column:end_date" json:"end_date"`
	IsCompleted  bool       `gorm:"not null;default:false;column:is_completed" json:"is_completed"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (ReadingGoal) TableName() string { return "reading_goal" }
