package types

import (
	"time"

	"github.com/google/uuid"
)

// BookRecommendation is the materialized recommendation list, replaced
// wholesale on each refresh.
type BookRecommendation struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index:idx_rec_user_book,unique" json:"user_id"`
	User        *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	BookID      uuid.UUID `gorm:"type:uuid;not null;index:idx_rec_user_book,unique" json:"book_id"`
	Book        *Book     `gorm:"constraint:OnDelete:CASCADE;foreignKey:BookID;references:ID" json:"book,omitempty"`
	Source      string    `gorm:"not null;column:source" json:"source"`
	Reason      string    `gorm:"column:reason" json:"reason"`
	AvgRating   float64   `gorm:"not null;default:0;column:avg_rating" json:"avg_rating"`
	Rank        int       `gorm:"not null;default:0;column:rank" json:"rank"`
	IsDismissed bool      `gorm:"not null;default:false;column:is_dismissed" json:"is_dismissed"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (BookRecommendation) TableName() string { return "book_recommendation" }
