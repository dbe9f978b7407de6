package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProgressCounter is the per-user accumulator for one trackable action
// type. current_value never decreases within a tracking period; it is
// mutated only through ProgressCounterRepo.Increment.
type ProgressCounter struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_counter_user_action,unique" json:"user_id"`
	User         *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	ActionType   string         `gorm:"not null;index:idx_counter_user_action,unique;column:action_type" json:"action_type"`
	CurrentValue float64        `gorm:"not null;default:0;column:current_value" json:"current_value"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ProgressCounter) TableName() string { return "progress_counter" }
