package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookverse/bookverse-backend/internal/clients/redis"
	"github.com/bookverse/bookverse-backend/internal/events"
	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/repos"
	"github.com/bookverse/bookverse-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func testBus(t *testing.T) *events.Bus {
	t.Helper()
	return events.NewBus(testLogger(t))
}

// fakeCounterRepo mimics the upsert-returning counter table in memory,
// including the absolute-mode upward clamp.
type fakeCounterRepo struct {
	counters map[string]float64
	failures int
	calls    int
}

func newFakeCounterRepo() *fakeCounterRepo {
	return &fakeCounterRepo{counters: make(map[string]float64)}
}

func counterKey(userID uuid.UUID, actionType string) string {
	return userID.String() + "|" + actionType
}

func (f *fakeCounterRepo) Increment(ctx context.Context, tx *gorm.DB, userID uuid.UUID, actionType string, value float64, absolute bool) (float64, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return 0, fmt.Errorf("deadlock detected")
	}
	key := counterKey(userID, actionType)
	current := f.counters[key]
	if absolute {
		if value > current {
			current = value
		}
	} else {
		current += value
	}
	f.counters[key] = current
	return current, nil
}

func (f *fakeCounterRepo) GetByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ProgressCounter, error) {
	var out []*types.ProgressCounter
	for key, value := range f.counters {
		out = append(out, &types.ProgressCounter{UserID: userID, ActionType: key, CurrentValue: value})
	}
	return out, nil
}

func (f *fakeCounterRepo) GetByUserAndAction(ctx context.Context, tx *gorm.DB, userID uuid.UUID, actionType string) (*types.ProgressCounter, error) {
	value, ok := f.counters[counterKey(userID, actionType)]
	if !ok {
		return nil, nil
	}
	return &types.ProgressCounter{UserID: userID, ActionType: actionType, CurrentValue: value}, nil
}

type fakeAchievementRepo struct {
	defs      []*types.AchievementDefinition
	earned    map[uuid.UUID]struct{}
	failIDs   map[uuid.UUID]bool
	inserted  []uuid.UUID
	listErr   error
	earnedErr error
	earnedRet []*types.UserAchievement
}

func newFakeAchievementRepo(defs ...*types.AchievementDefinition) *fakeAchievementRepo {
	return &fakeAchievementRepo{
		defs:    defs,
		earned:  make(map[uuid.UUID]struct{}),
		failIDs: make(map[uuid.UUID]bool),
	}
}

func (f *fakeAchievementRepo) GetActiveByActionType(ctx context.Context, tx *gorm.DB, actionType string) ([]*types.AchievementDefinition, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*types.AchievementDefinition
	for _, def := range f.defs {
		if def.ActionType == actionType && def.IsActive {
			out = append(out, def)
		}
	}
	return out, nil
}

func (f *fakeAchievementRepo) CountActiveDefinitions(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	for _, def := range f.defs {
		if def.IsActive {
			count++
		}
	}
	return count, nil
}

func (f *fakeAchievementRepo) GetEarnedDefinitionIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	if f.earnedErr != nil {
		return nil, f.earnedErr
	}
	out := make(map[uuid.UUID]struct{}, len(f.earned))
	for id := range f.earned {
		out[id] = struct{}{}
	}
	return out, nil
}

func (f *fakeAchievementRepo) InsertEarnedIfAbsent(ctx context.Context, tx *gorm.DB, row *types.UserAchievement) (bool, error) {
	if f.failIDs[row.AchievementID] {
		return false, fmt.Errorf("connection reset")
	}
	if _, ok := f.earned[row.AchievementID]; ok {
		return false, nil
	}
	f.earned[row.AchievementID] = struct{}{}
	f.inserted = append(f.inserted, row.AchievementID)
	return true, nil
}

func (f *fakeAchievementRepo) ListEarnedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.UserAchievement, error) {
	return f.earnedRet, nil
}

type fakeGoalRepo struct {
	goals map[uuid.UUID]*types.ReadingGoal
}

func newFakeGoalRepo(goals ...*types.ReadingGoal) *fakeGoalRepo {
	f := &fakeGoalRepo{goals: make(map[uuid.UUID]*types.ReadingGoal)}
	for _, goal := range goals {
		if goal.ID == uuid.Nil {
			goal.ID = uuid.New()
		}
		f.goals[goal.ID] = goal
	}
	return f
}

func (f *fakeGoalRepo) Create(ctx context.Context, tx *gorm.DB, goal *types.ReadingGoal) (*types.ReadingGoal, error) {
	goal.ID = uuid.New()
	f.goals[goal.ID] = goal
	return goal, nil
}

func (f *fakeGoalRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ReadingGoal, error) {
	goal, ok := f.goals[id]
	if !ok {
		return nil, nil
	}
	copied := *goal
	return &copied, nil
}

func (f *fakeGoalRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ReadingGoal, error) {
	var out []*types.ReadingGoal
	for _, goal := range f.goals {
		if goal.UserID == userID {
			out = append(out, goal)
		}
	}
	return out, nil
}

func (f *fakeGoalRepo) GetActiveByUserAndType(ctx context.Context, tx *gorm.DB, userID uuid.UUID, goalType string, asOf time.Time) ([]*types.ReadingGoal, error) {
	var out []*types.ReadingGoal
	for _, goal := range f.goals {
		if goal.UserID == userID && goal.GoalType == goalType && !goal.IsCompleted &&
			!asOf.Before(goal.StartDate) && !asOf.After(goal.EndDate) {
			out = append(out, goal)
		}
	}
	return out, nil
}

func (f *fakeGoalRepo) IncrementProgress(ctx context.Context, tx *gorm.DB, id uuid.UUID, increment float64) (float64, bool, error) {
	goal, ok := f.goals[id]
	if !ok || goal.IsCompleted {
		return 0, false, nil
	}
	goal.CurrentValue += increment
	return goal.CurrentValue, true, nil
}

func (f *fakeGoalRepo) MarkCompleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, completedAt time.Time) (bool, error) {
	goal, ok := f.goals[id]
	if !ok || goal.IsCompleted {
		return false, nil
	}
	goal.IsCompleted = true
	goal.CompletedAt = &completedAt
	return true, nil
}

type fakeBookRepo struct {
	books    map[uuid.UUID]*types.Book
	genres   map[uuid.UUID][]string
	byGenre  []*types.Book
	byAuthor map[string][]*types.Book
	popular  []*types.Book

	genreErr   error
	popularErr error
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{
		books:    make(map[uuid.UUID]*types.Book),
		genres:   make(map[uuid.UUID][]string),
		byAuthor: make(map[string][]*types.Book),
	}
}

func (f *fakeBookRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Book, error) {
	var out []*types.Book
	for _, id := range ids {
		if book, ok := f.books[id]; ok {
			out = append(out, book)
		}
	}
	return out, nil
}

func (f *fakeBookRepo) GetByGenres(ctx context.Context, tx *gorm.DB, genres []string, excluded []uuid.UUID, limit int) ([]*types.Book, error) {
	if f.genreErr != nil {
		return nil, f.genreErr
	}
	return f.byGenre, nil
}

func (f *fakeBookRepo) GetByAuthor(ctx context.Context, tx *gorm.DB, author string, excluded []uuid.UUID, limit int) ([]*types.Book, error) {
	return f.byAuthor[author], nil
}

func (f *fakeBookRepo) GetPopular(ctx context.Context, tx *gorm.DB, excluded []uuid.UUID, limit int) ([]*types.Book, error) {
	if f.popularErr != nil {
		return nil, f.popularErr
	}
	return f.popular, nil
}

func (f *fakeBookRepo) GenresForBooks(ctx context.Context, tx *gorm.DB, bookIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string)
	for _, id := range bookIDs {
		if genres, ok := f.genres[id]; ok {
			out[id] = genres
		}
	}
	return out, nil
}

type fakeHistoryRepo struct {
	entries  []repos.HistoryEntry
	readIDs  []uuid.UUID
	upserted []uuid.UUID
}

func (f *fakeHistoryRepo) GetRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]repos.HistoryEntry, error) {
	return f.entries, nil
}

func (f *fakeHistoryRepo) BookIDsByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error) {
	return f.readIDs, nil
}

func (f *fakeHistoryRepo) Upsert(ctx context.Context, tx *gorm.DB, userID, bookID uuid.UUID, readAt time.Time) error {
	f.upserted = append(f.upserted, bookID)
	return nil
}

type fakeRecRepo struct {
	rows     []*types.BookRecommendation
	replaced int
	dismiss  map[uuid.UUID]bool
}

func newFakeRecRepo() *fakeRecRepo {
	return &fakeRecRepo{dismiss: make(map[uuid.UUID]bool)}
}

func (f *fakeRecRepo) ReplaceForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rows []*types.BookRecommendation) error {
	var kept []*types.BookRecommendation
	for _, row := range f.rows {
		if row.IsDismissed {
			kept = append(kept, row)
		}
	}
	f.rows = append(kept, rows...)
	f.replaced++
	return nil
}

func (f *fakeRecRepo) DismissedBookIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, row := range f.rows {
		if row.IsDismissed {
			ids = append(ids, row.BookID)
		}
	}
	return ids, nil
}

func (f *fakeRecRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.BookRecommendation, error) {
	var out []*types.BookRecommendation
	for _, row := range f.rows {
		if !row.IsDismissed {
			out = append(out, row)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRecRepo) Dismiss(ctx context.Context, tx *gorm.DB, userID, bookID uuid.UUID) (bool, error) {
	for _, row := range f.rows {
		if row.BookID == bookID && !row.IsDismissed {
			row.IsDismissed = true
			f.dismiss[bookID] = true
			return true, nil
		}
	}
	return false, nil
}

// fakeCache is an in-memory redis.Cache.
type fakeCache struct {
	data        map[string][]byte
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	raw, ok := f.data[key]
	if !ok {
		return redis.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, pattern string) error {
	f.invalidated = append(f.invalidated, pattern)
	f.data = make(map[string][]byte)
	return nil
}

func (f *fakeCache) Close() error { return nil }
