package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/bookverse/bookverse-backend/internal/apperr"
	"github.com/bookverse/bookverse-backend/internal/clients/redis"
	"github.com/bookverse/bookverse-backend/internal/events"
	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/repos"
	"github.com/bookverse/bookverse-backend/internal/types"
)

// Comparison decides whether a progress value satisfies a definition's
// threshold. Comparisons beyond the built-in gte/eq are registered by
// name, keeping composite criteria ("N distinct genres read") explicit
// instead of special-cased.
type Comparison func(value, threshold float64) bool

type UnlockedAchievement struct {
	ID     uuid.UUID `json:"id"`
	Code   string    `json:"code"`
	Kind   string    `json:"kind"`
	Title  string    `json:"title"`
	Points int       `json:"points"`
}

type TrackResult struct {
	ActionType      string                `json:"action_type"`
	UpdatedProgress float64               `json:"updated_progress"`
	NewAchievements []UnlockedAchievement `json:"new_achievements"`
	// Failed lists definition codes whose unlock write failed; the
	// rest of the batch still commits.
	Failed []string `json:"failed,omitempty"`
	// EvaluationError is set when the progress write committed but the
	// unlock evaluation could not run. Re-sending the same action in
	// absolute mode re-evaluates without double counting.
	EvaluationError string `json:"evaluation_error,omitempty"`
}

type AchievementSummary struct {
	Earned          int64   `json:"earned"`
	Locked          int64   `json:"locked"`
	Total           int64   `json:"total"`
	PercentComplete float64 `json:"percent_complete"`
	TotalPoints     int     `json:"total_points"`
}

type AchievementService interface {
	// TrackProgress records an action and unlocks every definition the
	// fresh value newly satisfies, each exactly once.
	TrackProgress(ctx context.Context, userID uuid.UUID, actionType string, value float64, mode RecordMode, metadata map[string]interface{}) (*TrackResult, error)
	GetProgressSummary(ctx context.Context, userID uuid.UUID) (*AchievementSummary, error)
	ListEarned(ctx context.Context, userID uuid.UUID) ([]*types.UserAchievement, error)
	RegisterComparison(name string, cmp Comparison)
}

type achievementService struct {
	db              *gorm.DB
	log             *logger.Logger
	progressService ProgressService
	achievementRepo repos.AchievementRepo
	bus             *events.Bus
	cache           redis.Cache

	mu          sync.RWMutex
	comparisons map[string]Comparison
}

func NewAchievementService(db *gorm.DB, log *logger.Logger, progressService ProgressService, achievementRepo repos.AchievementRepo, bus *events.Bus, cache redis.Cache) AchievementService {
	serviceLog := log.With("service", "AchievementService")
	s := &achievementService{
		db:              db,
		log:             serviceLog,
		progressService: progressService,
		achievementRepo: achievementRepo,
		bus:             bus,
		cache:           cache,
		comparisons:     make(map[string]Comparison),
	}
	s.comparisons["gte"] = func(value, threshold float64) bool { return value >= threshold }
	s.comparisons["eq"] = func(value, threshold float64) bool { return value == threshold }
	return s
}

func (s *achievementService) RegisterComparison(name string, cmp Comparison) {
	if name == "" || cmp == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comparisons[name] = cmp
}

func (s *achievementService) comparison(name string) (Comparison, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cmp, ok := s.comparisons[name]
	return cmp, ok
}

func (s *achievementService) TrackProgress(ctx context.Context, userID uuid.UUID, actionType string, value float64, mode RecordMode, metadata map[string]interface{}) (*TrackResult, error) {
	ctx, span := otel.Tracer("achievement").Start(ctx, "TrackProgress")
	defer span.End()
	span.SetAttributes(attribute.String("action_type", actionType))

	newValue, err := s.progressService.RecordAction(ctx, userID, actionType, value, mode, metadata)
	if err != nil {
		return nil, err
	}

	result := &TrackResult{
		ActionType:      actionType,
		UpdatedProgress: newValue,
		NewAchievements: []UnlockedAchievement{},
	}

	// The progress write committed above; an evaluation failure from
	// here on is reported on the result instead of erasing it.
	definitions, err := s.achievementRepo.GetActiveByActionType(ctx, nil, actionType)
	if err != nil {
		s.log.Error("Loading definitions failed, progress recorded without evaluation", "action_type", actionType, "error", err)
		result.EvaluationError = "achievement evaluation unavailable"
		return result, nil
	}
	if len(definitions) == 0 {
		return result, nil
	}

	earned, err := s.achievementRepo.GetEarnedDefinitionIDs(ctx, nil, userID)
	if err != nil {
		s.log.Error("Loading earned achievements failed, progress recorded without evaluation", "action_type", actionType, "error", err)
		result.EvaluationError = "achievement evaluation unavailable"
		return result, nil
	}

	for _, def := range definitions {
		if _, already := earned[def.ID]; already {
			continue
		}
		cmp, ok := s.comparison(def.Comparison)
		if !ok {
			s.log.Warn("Definition uses unknown comparison, skipping", "code", def.Code, "comparison", def.Comparison)
			continue
		}
		if !cmp(newValue, def.Threshold) {
			continue
		}

		// Each unlock is independently transactional: one failure must
		// not block the rest of the batch.
		inserted, insertErr := s.achievementRepo.InsertEarnedIfAbsent(ctx, nil, &types.UserAchievement{
			UserID:        userID,
			AchievementID: def.ID,
			EarnedAt:      time.Now().UTC(),
		})
		if insertErr != nil {
			s.log.Error("Achievement unlock write failed, continuing batch", "code", def.Code, "error", insertErr)
			result.Failed = append(result.Failed, def.Code)
			continue
		}
		if !inserted {
			// Lost the race to a concurrent evaluation; that one
			// already notified.
			continue
		}

		unlocked := UnlockedAchievement{
			ID:     def.ID,
			Code:   def.Code,
			Kind:   def.Kind,
			Title:  def.Title,
			Points: def.Points,
		}
		result.NewAchievements = append(result.NewAchievements, unlocked)

		if s.bus != nil {
			s.bus.Publish(ctx, events.EventAchievementUnlocked, map[string]interface{}{
				"user_id":        userID.String(),
				"achievement_id": def.ID.String(),
				"code":           def.Code,
				"title":          def.Title,
				"points":         def.Points,
			})
		}
	}

	if len(result.NewAchievements) > 0 && s.cache != nil {
		if err := s.cache.Invalidate(ctx, fmt.Sprintf("achievements:%s:*", userID)); err != nil {
			s.log.Warn("Achievement cache invalidation failed", "error", err)
		}
	}
	return result, nil
}

func (s *achievementService) GetProgressSummary(ctx context.Context, userID uuid.UUID) (*AchievementSummary, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id required")
	}

	cacheKey := fmt.Sprintf("achievements:%s:summary", userID)
	if s.cache != nil {
		var cached AchievementSummary
		if err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	total, err := s.achievementRepo.CountActiveDefinitions(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("counting definitions: %w", err)
	}
	rows, err := s.achievementRepo.ListEarnedByUser(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("listing earned achievements: %w", err)
	}

	summary := &AchievementSummary{
		Earned: int64(len(rows)),
		Locked: total - int64(len(rows)),
		Total:  total,
	}
	if summary.Locked < 0 {
		summary.Locked = 0
	}
	for _, row := range rows {
		if row.Achievement != nil {
			summary.TotalPoints += row.Achievement.Points
		}
	}
	if total > 0 {
		summary.PercentComplete = float64(len(rows)) / float64(total) * 100
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, summary, 30*time.Minute); err != nil {
			s.log.Warn("Summary cache write failed", "error", err)
		}
	}
	return summary, nil
}

func (s *achievementService) ListEarned(ctx context.Context, userID uuid.UUID) ([]*types.UserAchievement, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id required")
	}
	return s.achievementRepo.ListEarnedByUser(ctx, nil, userID)
}
