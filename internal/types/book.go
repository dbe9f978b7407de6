package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Book struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title     string         `gorm:"not null;column:title" json:"title"`
	Author    string         `gorm:"not null;index;column:author" json:"author"`
	AvgRating float64        `gorm:"not null;default:0;column:avg_rating" json:"avg_rating"`
	ReadCount int64          `gorm:"not null;default:0;index;column:read_count" json:"read_count"`
	PageCount int            `gorm:"not null;default:0;column:page_count" json:"page_count"`
	Genres    []BookGenre    `gorm:"foreignKey:BookID;references:ID" json:"genres,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Book) TableName() string { return "book" }

type BookGenre struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BookID uuid.UUID `gorm:"type:uuid;not null;index:idx_book_genre,unique" json:"book_id"`
	Book   *Book     `gorm:"constraint:OnDelete:CASCADE;foreignKey:BookID;references:ID" json:"book,omitempty"`
	Genre  string    `gorm:"not null;index;index:idx_book_genre,unique;column:genre" json:"genre"`
}

func (BookGenre) TableName() string { return "book_genre" }
