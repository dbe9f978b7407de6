package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/bookverse/bookverse-backend/internal/apperr"
	"github.com/bookverse/bookverse-backend/internal/clients/redis"
	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/repos"
	"github.com/bookverse/bookverse-backend/internal/types"
)

const (
	SourceSimilar = "similar"
	SourceGenre   = "genre"
	SourcePopular = "popular"
)

// sourcePriority is the explicit merge order: lower wins ties and is
// appended first, so first-seen dedupe and the final sort agree. Do
// not rely on call order anywhere else.
var sourcePriority = map[string]int{
	SourceSimilar: 1,
	SourceGenre:   2,
	SourcePopular: 3,
}

const (
	genreBaseWeight    = 1.0
	genreRatingBoost   = 1.0
	genreRecencyBoost  = 0.5
	genreRecencyWindow = 30 * 24 * time.Hour
	maxFavoriteGenres  = 5

	historyWindow     = 50
	maxSimilarSeeds   = 5
	perSourceFetch    = 40
	defaultRecLimit   = 20
	defaultRecBudget  = 3 * time.Second
	popularCacheKey   = "recommendations:popular"
	popularCacheTTL   = 10 * time.Minute
	personalizedTTL   = time.Hour
	personalizedScope = "recommendations:%s:*"
)

type Recommendation struct {
	BookID    uuid.UUID `json:"book_id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
	AvgRating float64   `json:"avg_rating"`
	Rank      int       `json:"rank"`
}

type RecommendationService interface {
	// GetPersonalized serves the cached or materialized list, falling
	// back to a fresh generation. Never hard-fails on a single
	// candidate-source outage.
	GetPersonalized(ctx context.Context, userID uuid.UUID, limit int) ([]Recommendation, error)
	// Refresh regenerates and persists the materialized list.
	Refresh(ctx context.Context, userID uuid.UUID) ([]Recommendation, error)
	Dismiss(ctx context.Context, userID, bookID uuid.UUID) error
}

type recommendationService struct {
	db          *gorm.DB
	log         *logger.Logger
	historyRepo repos.ReadingHistoryRepo
	bookRepo    repos.BookRepo
	recRepo     repos.RecommendationRepo
	cache       redis.Cache
	budget      time.Duration
	now         func() time.Time
}

func NewRecommendationService(db *gorm.DB, log *logger.Logger, historyRepo repos.ReadingHistoryRepo, bookRepo repos.BookRepo, recRepo repos.RecommendationRepo, cache redis.Cache, budget time.Duration) RecommendationService {
	serviceLog := log.With("service", "RecommendationService")
	if budget <= 0 {
		budget = defaultRecBudget
	}
	return &recommendationService{
		db:          db,
		log:         serviceLog,
		historyRepo: historyRepo,
		bookRepo:    bookRepo,
		recRepo:     recRepo,
		cache:       cache,
		budget:      budget,
		now:         time.Now,
	}
}

func (s *recommendationService) GetPersonalized(ctx context.Context, userID uuid.UUID, limit int) ([]Recommendation, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id required")
	}
	if limit <= 0 {
		limit = defaultRecLimit
	}

	cacheKey := fmt.Sprintf("recommendations:%s:%d", userID, limit)
	if s.cache != nil {
		var cached []Recommendation
		if err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	rows, err := s.recRepo.ListByUser(ctx, nil, userID, limit)
	if err != nil {
		s.log.Warn("Materialized recommendations unavailable, regenerating", "error", err)
	}
	var result []Recommendation
	if len(rows) >= limit {
		result = fromMaterialized(rows)
	} else {
		result, err = s.Refresh(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, result, personalizedTTL); err != nil {
			s.log.Warn("Recommendation cache write failed", "error", err)
		}
	}
	return result, nil
}

func (s *recommendationService) Refresh(ctx context.Context, userID uuid.UUID) ([]Recommendation, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id required")
	}

	ctx, span := otel.Tracer("recommendation").Start(ctx, "Refresh")
	defer span.End()

	result, err := s.generate(ctx, userID, defaultRecLimit)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("candidates", len(result)))

	rows := make([]*types.BookRecommendation, 0, len(result))
	for _, rec := range result {
		rows = append(rows, &types.BookRecommendation{
			UserID:    userID,
			BookID:    rec.BookID,
			Source:    rec.Source,
			Reason:    rec.Reason,
			AvgRating: rec.AvgRating,
			Rank:      rec.Rank,
		})
	}
	if err := s.recRepo.ReplaceForUser(ctx, nil, userID, rows); err != nil {
		return nil, fmt.Errorf("persisting recommendations: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, fmt.Sprintf(personalizedScope, userID)); err != nil {
			s.log.Warn("Recommendation cache invalidation failed", "error", err)
		}
	}
	return result, nil
}

func (s *recommendationService) Dismiss(ctx context.Context, userID, bookID uuid.UUID) error {
	if userID == uuid.Nil || bookID == uuid.Nil {
		return apperr.Validation("user id and book id required")
	}
	dismissed, err := s.recRepo.Dismiss(ctx, nil, userID, bookID)
	if err != nil {
		return fmt.Errorf("dismissing recommendation: %w", err)
	}
	if !dismissed {
		return apperr.NotFound("no active recommendation of book %s for this user", bookID)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, fmt.Sprintf(personalizedScope, userID)); err != nil {
			s.log.Warn("Recommendation cache invalidation failed", "error", err)
		}
	}
	return nil
}

type candidate struct {
	book   *types.Book
	source string
	reason string
}

func (s *recommendationService) generate(ctx context.Context, userID uuid.UUID, limit int) ([]Recommendation, error) {
	history, err := s.historyRepo.GetRecentByUser(ctx, nil, userID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("loading reading history: %w", err)
	}
	readIDs, err := s.historyRepo.BookIDsByUser(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("loading read set: %w", err)
	}
	dismissedIDs, err := s.recRepo.DismissedBookIDs(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("loading dismissed set: %w", err)
	}
	// Dismissed books are excluded exactly like read ones so they never
	// come back on a refresh.
	excluded := make([]uuid.UUID, 0, len(readIDs)+len(dismissedIDs))
	excluded = append(excluded, readIDs...)
	excluded = append(excluded, dismissedIDs...)

	historyBookIDs := make([]uuid.UUID, 0, len(history))
	for _, entry := range history {
		historyBookIDs = append(historyBookIDs, entry.BookID)
	}
	genresByBook, err := s.bookRepo.GenresForBooks(ctx, nil, historyBookIDs)
	if err != nil {
		s.log.Warn("Loading history genres failed, continuing without genre affinity", "error", err)
		genresByBook = map[uuid.UUID][]string{}
	}

	favorites := favoriteGenres(genreAffinityScores(history, genresByBook, s.now()))

	// Each candidate source is independent: a failed or timed-out
	// source degrades to whatever the others produced.
	budgetCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	var similar, byGenre, popular []candidate
	group, groupCtx := errgroup.WithContext(budgetCtx)

	if len(history) > 0 {
		group.Go(func() error {
			similar = s.fetchSimilar(groupCtx, history, excluded)
			return nil
		})
	}
	if len(favorites) > 0 {
		group.Go(func() error {
			byGenre = s.fetchByGenre(groupCtx, favorites, excluded)
			return nil
		})
	}
	group.Go(func() error {
		popular = s.fetchPopular(groupCtx)
		return nil
	})
	_ = group.Wait()

	readSet := make(map[uuid.UUID]struct{}, len(excluded))
	for _, id := range excluded {
		readSet[id] = struct{}{}
	}

	merged := make([]candidate, 0, len(similar)+len(byGenre)+len(popular))
	merged = append(merged, similar...)
	merged = append(merged, byGenre...)
	merged = append(merged, popular...)
	return mergeCandidates(merged, readSet, limit), nil
}

func (s *recommendationService) fetchSimilar(ctx context.Context, history []repos.HistoryEntry, excluded []uuid.UUID) []candidate {
	seeds := similarSeeds(history)
	if len(seeds) == 0 {
		return nil
	}

	seedIDs := make([]uuid.UUID, 0, len(seeds))
	for _, seed := range seeds {
		seedIDs = append(seedIDs, seed.BookID)
	}
	seedGenres, err := s.bookRepo.GenresForBooks(ctx, nil, seedIDs)
	if err != nil {
		s.log.Warn("Similar source: seed genres unavailable", "error", err)
		seedGenres = map[uuid.UUID][]string{}
	}

	var out []candidate
	for _, seed := range seeds {
		byAuthor, err := s.bookRepo.GetByAuthor(ctx, nil, seed.Author, excluded, maxSimilarSeeds)
		if err != nil {
			s.log.Warn("Similar source: author lookup failed, skipping seed", "error", err)
		} else {
			for _, book := range byAuthor {
				out = append(out, candidate{book: book, source: SourceSimilar, reason: fmt.Sprintf("more by %s", seed.Author)})
			}
		}

		if genres := seedGenres[seed.BookID]; len(genres) > 0 {
			sameGenre, err := s.bookRepo.GetByGenres(ctx, nil, genres, excluded, maxSimilarSeeds)
			if err != nil {
				s.log.Warn("Similar source: genre lookup failed, skipping seed", "error", err)
				continue
			}
			for _, book := range sameGenre {
				out = append(out, candidate{book: book, source: SourceSimilar, reason: "similar to a book you liked"})
			}
		}
	}
	return out
}

func (s *recommendationService) fetchByGenre(ctx context.Context, favorites []string, excluded []uuid.UUID) []candidate {
	books, err := s.bookRepo.GetByGenres(ctx, nil, favorites, excluded, perSourceFetch)
	if err != nil {
		s.log.Warn("Genre source failed, degrading", "error", err)
		return nil
	}
	out := make([]candidate, 0, len(books))
	for _, book := range books {
		out = append(out, candidate{book: book, source: SourceGenre, reason: "matches your favorite genres"})
	}
	return out
}

// fetchPopular is the shared cold-start source; it is cached without
// per-user exclusions (those are applied at merge time) so every user
// hits the same key.
func (s *recommendationService) fetchPopular(ctx context.Context) []candidate {
	var books []*types.Book
	if s.cache != nil {
		if err := s.cache.GetJSON(ctx, popularCacheKey, &books); err != nil && err != redis.ErrCacheMiss {
			s.log.Warn("Popular cache read failed", "error", err)
		}
	}
	if len(books) == 0 {
		var err error
		books, err = s.bookRepo.GetPopular(ctx, nil, nil, perSourceFetch)
		if err != nil {
			s.log.Warn("Popular source failed, degrading", "error", err)
			return nil
		}
		if s.cache != nil && len(books) > 0 {
			if err := s.cache.SetJSON(ctx, popularCacheKey, books, popularCacheTTL); err != nil {
				s.log.Warn("Popular cache write failed", "error", err)
			}
		}
	}

	out := make([]candidate, 0, len(books))
	for _, book := range books {
		out = append(out, candidate{book: book, source: SourcePopular, reason: "popular with other readers"})
	}
	return out
}

// genreAffinityScores accumulates the per-genre weights across reading
// history: 1.0 per occurrence, +1.0 when the user rated the book >= 4,
// +0.5 when read within the last 30 days. The boosts compound on top
// of the base count so one old favorite cannot outrank a pattern of
// recent reading.
func genreAffinityScores(history []repos.HistoryEntry, genresByBook map[uuid.UUID][]string, now time.Time) map[string]float64 {
	scores := make(map[string]float64)
	for _, entry := range history {
		weight := genreBaseWeight
		if entry.Rating >= 4 {
			weight += genreRatingBoost
		}
		if now.Sub(entry.LastReadAt) < genreRecencyWindow {
			weight += genreRecencyBoost
		}
		for _, genre := range genresByBook[entry.BookID] {
			scores[genre] += weight
		}
	}
	return scores
}

func favoriteGenres(scores map[string]float64) []string {
	type genreScore struct {
		genre string
		score float64
	}
	ranked := make([]genreScore, 0, len(scores))
	for genre, score := range scores {
		ranked = append(ranked, genreScore{genre: genre, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].genre < ranked[j].genre
	})
	if len(ranked) > maxFavoriteGenres {
		ranked = ranked[:maxFavoriteGenres]
	}
	out := make([]string, 0, len(ranked))
	for _, gs := range ranked {
		out = append(out, gs.genre)
	}
	return out
}

func similarSeeds(history []repos.HistoryEntry) []repos.HistoryEntry {
	seeds := make([]repos.HistoryEntry, 0, maxSimilarSeeds)
	for _, entry := range history {
		if entry.Rating >= 4 {
			seeds = append(seeds, entry)
			if len(seeds) == maxSimilarSeeds {
				break
			}
		}
	}
	return seeds
}

// mergeCandidates deduplicates by book id keeping the first-seen entry,
// drops every already-read book, sorts by (source priority, rating
// desc) and truncates to limit.
func mergeCandidates(candidates []candidate, readSet map[uuid.UUID]struct{}, limit int) []Recommendation {
	seen := make(map[uuid.UUID]struct{}, len(candidates))
	unique := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.book == nil {
			continue
		}
		if _, read := readSet[c.book.ID]; read {
			continue
		}
		if _, dup := seen[c.book.ID]; dup {
			continue
		}
		seen[c.book.ID] = struct{}{}
		unique = append(unique, c)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		pi, pj := sourcePriority[unique[i].source], sourcePriority[unique[j].source]
		if pi != pj {
			return pi < pj
		}
		return unique[i].book.AvgRating > unique[j].book.AvgRating
	})

	if len(unique) > limit {
		unique = unique[:limit]
	}
	out := make([]Recommendation, 0, len(unique))
	for i, c := range unique {
		out = append(out, Recommendation{
			BookID:    c.book.ID,
			Title:     c.book.Title,
			Author:    c.book.Author,
			Source:    c.source,
			Reason:    c.reason,
			AvgRating: c.book.AvgRating,
			Rank:      i + 1,
		})
	}
	return out
}

func fromMaterialized(rows []*types.BookRecommendation) []Recommendation {
	out := make([]Recommendation, 0, len(rows))
	for _, row := range rows {
		rec := Recommendation{
			BookID:    row.BookID,
			Source:    row.Source,
			Reason:    row.Reason,
			AvgRating: row.AvgRating,
			Rank:      row.Rank,
		}
		if row.Book != nil {
			rec.Title = row.Book.Title
			rec.Author = row.Book.Author
		}
		out = append(out, rec)
	}
	return out
}
