package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookverse/bookverse-backend/internal/apperr"
	"github.com/bookverse/bookverse-backend/internal/events"
	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/repos"
	"github.com/bookverse/bookverse-backend/internal/types"
)

type RecordMode string

const (
	// RecordModeDelta adds value to the stored counter (+1 page).
	RecordModeDelta RecordMode = "delta"
	// RecordModeAbsolute reports a snapshot (streak day count); the
	// stored counter only moves up.
	RecordModeAbsolute RecordMode = "absolute"
)

const (
	recordRetryAttempts = 3
	recordRetryDelay    = 25 * time.Millisecond
)

type ProgressService interface {
	// RecordAction applies one trackable user action and returns the
	// resulting counter value, so callers can evaluate thresholds
	// against exactly what was written.
	RecordAction(ctx context.Context, userID uuid.UUID, actionType string, value float64, mode RecordMode, metadata map[string]interface{}) (float64, error)
	GetCounters(ctx context.Context, userID uuid.UUID) ([]*types.ProgressCounter, error)
	GetCounter(ctx context.Context, userID uuid.UUID, actionType string) (*types.ProgressCounter, error)
}

type progressService struct {
	db          *gorm.DB
	log         *logger.Logger
	counterRepo repos.ProgressCounterRepo
	bus         *events.Bus
}

func NewProgressService(db *gorm.DB, log *logger.Logger, counterRepo repos.ProgressCounterRepo, bus *events.Bus) ProgressService {
	serviceLog := log.With("service", "ProgressService")
	return &progressService{
		db:          db,
		log:         serviceLog,
		counterRepo: counterRepo,
		bus:         bus,
	}
}

func (s *progressService) RecordAction(ctx context.Context, userID uuid.UUID, actionType string, value float64, mode RecordMode, metadata map[string]interface{}) (float64, error) {
	if userID == uuid.Nil {
		return 0, apperr.Validation("user id required")
	}
	actionType = strings.TrimSpace(actionType)
	if actionType == "" {
		return 0, apperr.Validation("action type required")
	}
	if value < 0 {
		return 0, apperr.Validation("progress value must be non-negative, got %v", value)
	}
	switch mode {
	case RecordModeDelta, RecordModeAbsolute:
	default:
		return 0, apperr.Validation("unknown record mode %q", mode)
	}

	var (
		newValue float64
		err      error
	)
	for attempt := 1; attempt <= recordRetryAttempts; attempt++ {
		newValue, err = s.counterRepo.Increment(ctx, nil, userID, actionType, value, mode == RecordModeAbsolute)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.log.Warn("Counter update failed, retrying", "action_type", actionType, "attempt", attempt, "error", err)
		time.Sleep(recordRetryDelay)
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrConflict, err, "counter update kept failing")
	}

	if s.bus != nil {
		data := map[string]interface{}{
			"user_id":     userID.String(),
			"action_type": actionType,
			"value":       newValue,
		}
		if len(metadata) > 0 {
			data["metadata"] = metadata
		}
		s.bus.Publish(ctx, events.EventProgressRecorded, data)
	}
	return newValue, nil
}

func (s *progressService) GetCounters(ctx context.Context, userID uuid.UUID) ([]*types.ProgressCounter, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id required")
	}
	return s.counterRepo.GetByUser(ctx, nil, userID)
}

func (s *progressService) GetCounter(ctx context.Context, userID uuid.UUID, actionType string) (*types.ProgressCounter, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("user id required")
	}
	actionType = strings.TrimSpace(actionType)
	if actionType == "" {
		return nil, apperr.Validation("action type required")
	}
	counter, err := s.counterRepo.GetByUserAndAction(ctx, nil, userID, actionType)
	if err != nil {
		return nil, err
	}
	if counter == nil {
		return nil, apperr.NotFound("no recorded progress for %q", actionType)
	}
	return counter, nil
}
