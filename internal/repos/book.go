package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/types"
)

type BookRepo interface {
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Book, error)
	// GetByGenres returns unread books carrying any of the genres,
	// best rated first.
	GetByGenres(ctx context.Context, tx *gorm.DB, genres []string, excluded []uuid.UUID, limit int) ([]*types.Book, error)
	GetByAuthor(ctx context.Context, tx *gorm.DB, author string, excluded []uuid.UUID, limit int) ([]*types.Book, error)
	// GetPopular returns unread books by read count, the shared
	// cold-start source.
	GetPopular(ctx context.Context, tx *gorm.DB, excluded []uuid.UUID, limit int) ([]*types.Book, error)
	GenresForBooks(ctx context.Context, tx *gorm.DB, bookIDs []uuid.UUID) (map[uuid.UUID][]string, error)
}

type bookRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBookRepo(db *gorm.DB, baseLog *logger.Logger) BookRepo {
	repoLog := baseLog.With("repo", "BookRepo")
	return &bookRepo{db: db, log: repoLog}
}

func (r *bookRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Book, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Book
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *bookRepo) GetByGenres(ctx context.Context, tx *gorm.DB, genres []string, excluded []uuid.UUID, limit int) ([]*types.Book, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Book
	if len(genres) == 0 {
		return results, nil
	}

	query := transaction.WithContext(ctx).
		Model(&types.Book{}).
		Distinct("book.*").
		Joins("JOIN book_genre bg ON bg.book_id = book.id").
		Where("bg.genre IN ?", genres)
	if len(excluded) > 0 {
		query = query.Where("book.id NOT IN ?", excluded)
	}
	if err := query.
		Order("book.avg_rating DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *bookRepo) GetByAuthor(ctx context.Context, tx *gorm.DB, author string, excluded []uuid.UUID, limit int) ([]*types.Book, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Book
	if author == "" {
		return results, nil
	}

	query := transaction.WithContext(ctx).
		Where("author = ?", author)
	if len(excluded) > 0 {
		query = query.Where("id NOT IN ?", excluded)
	}
	if err := query.
		Order("avg_rating DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *bookRepo) GetPopular(ctx context.Context, tx *gorm.DB, excluded []uuid.UUID, limit int) ([]*types.Book, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	query := transaction.WithContext(ctx).Model(&types.Book{})
	if len(excluded) > 0 {
		query = query.Where("id NOT IN ?", excluded)
	}

	var results []*types.Book
	if err := query.
		Order("read_count DESC, avg_rating DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *bookRepo) GenresForBooks(ctx context.Context, tx *gorm.DB, bookIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	out := make(map[uuid.UUID][]string, len(bookIDs))
	if len(bookIDs) == 0 {
		return out, nil
	}

	var rows []types.BookGenre
	if err := transaction.WithContext(ctx).
		Where("book_id IN ?", bookIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.BookID] = append(out[row.BookID], row.Genre)
	}
	return out, nil
}
