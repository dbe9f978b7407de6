package types

import (
	"time"

	"github.com/google/uuid"
)

type ReadingHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_history_user_book,unique" json:"user_id"`
	User       *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	BookID     uuid.UUID `gorm:"type:uuid;not null;index:idx_history_user_book,unique" json:"book_id"`
	Book       *Book     `gorm:"constraint:OnDelete:CASCADE;foreignKey:BookID;references:ID" json:"book,omitempty"`
	LastReadAt time.Time `gorm:"not null;index;column:last_read_at" json:"last_read_at"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ReadingHistory) TableName() string { return "reading_history" }
