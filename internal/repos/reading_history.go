package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/types"
)

// HistoryEntry is a read-model row joining a history record with the
// user's rating of that book, the shape the recommendation engine
// consumes.
type HistoryEntry struct {
	BookID     uuid.UUID `json:"book_id"`
	Author     string    `json:"author"`
	Rating     int       `json:"rating"`
	LastReadAt time.Time `json:"last_read_at"`
}

type ReadingHistoryRepo interface {
	GetRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]HistoryEntry, error)
	BookIDsByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error)
	Upsert(ctx context.Context, tx *gorm.DB, userID, bookID uuid.UUID, readAt time.Time) error
}

type readingHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReadingHistoryRepo(db *gorm.DB, baseLog *logger.Logger) ReadingHistoryRepo {
	repoLog := baseLog.With("repo", "ReadingHistoryRepo")
	return &readingHistoryRepo{db: db, log: repoLog}
}

func (r *readingHistoryRepo) GetRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]HistoryEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []HistoryEntry
	if userID == uuid.Nil {
		return rows, nil
	}

	if err := transaction.WithContext(ctx).
		Table("reading_history AS h").
		Select("h.book_id, b.author, COALESCE(rv.rating, 0) AS rating, h.last_read_at").
		Joins("JOIN book b ON b.id = h.book_id").
		Joins("LEFT JOIN review rv ON rv.book_id = h.book_id AND rv.user_id = h.user_id").
		Where("h.user_id = ?", userID).
		Order("h.last_read_at DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *readingHistoryRepo) BookIDsByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var ids []uuid.UUID
	if userID == uuid.Nil {
		return ids, nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.ReadingHistory{}).
		Where("user_id = ?", userID).
		Pluck("book_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

const upsertHistorySQL = `
INSERT INTO reading_history (user_id, book_id, last_read_at, created_at, updated_at)
VALUES (?, ?, ?, now(), now())
ON CONFLICT (user_id, book_id)
DO UPDATE SET last_read_at = GREATEST(reading_history.last_read_at, EXCLUDED.last_read_at), updated_at = now()`

func (r *readingHistoryRepo) Upsert(ctx context.Context, tx *gorm.DB, userID, bookID uuid.UUID, readAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Exec(upsertHistorySQL, userID, bookID, readAt).Error
}
