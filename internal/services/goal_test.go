package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bookverse/bookverse-backend/internal/apperr"
	"github.com/bookverse/bookverse-backend/internal/events"
	"github.com/bookverse/bookverse-backend/internal/types"
)

func goalService(t *testing.T, repo *fakeGoalRepo, bus *events.Bus, now time.Time) *readingGoalService {
	t.Helper()
	svc := NewReadingGoalService(nil, testLogger(t), repo, newFakeBookRepo(), &fakeHistoryRepo{}, bus).(*readingGoalService)
	svc.now = func() time.Time { return now }
	return svc
}

func TestCreateGoalValidation(t *testing.T) {
	svc := goalService(t, newFakeGoalRepo(), nil, time.Now())
	userID := uuid.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	tests := []struct {
		name     string
		userID   uuid.UUID
		goalType string
		target   float64
		start    time.Time
		end      time.Time
	}{
		{"nil user", uuid.Nil, types.GoalTypeBooks, 5, start, end},
		{"unknown type", userID, "chapters", 5, start, end},
		{"zero target", userID, types.GoalTypeBooks, 0, start, end},
		{"inverted period", userID, types.GoalTypeBooks, 5, end, start},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateGoal(context.Background(), tc.userID, tc.goalType, tc.target, tc.start, tc.end)
			if !apperr.IsValidation(err) {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}

	goal, err := svc.CreateGoal(context.Background(), userID, types.GoalTypeBooks, 5, start, end)
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if goal.ID == uuid.Nil {
		t.Fatal("created goal has no id")
	}
}

func TestUpdateProgressPaceMath(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeGoalRepo(&types.ReadingGoal{
		UserID:      uuid.New(),
		GoalType:    types.GoalTypePages,
		TargetValue: 100,
		StartDate:   now.AddDate(0, 0, -10),
		EndDate:     now.AddDate(0, 0, 10),
	})
	var goalID uuid.UUID
	for id := range repo.goals {
		goalID = id
	}
	svc := goalService(t, repo, nil, now)

	progress, err := svc.UpdateProgress(context.Background(), goalID, 40)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if progress.CurrentValue != 40 || progress.RemainingValue != 60 {
		t.Fatalf("current/remaining = %v/%v, want 40/60", progress.CurrentValue, progress.RemainingValue)
	}
	if progress.PercentComplete != 40 {
		t.Fatalf("percent %v, want 40", progress.PercentComplete)
	}
	if progress.DaysLeft != 10 {
		t.Fatalf("days left %d, want 10", progress.DaysLeft)
	}
	if progress.DailyTarget == nil || *progress.DailyTarget != 6 {
		t.Fatalf("daily target %v, want 6", progress.DailyTarget)
	}
}

func TestProgressAfterPeriodEndHasNoDailyTarget(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeGoalRepo(&types.ReadingGoal{
		UserID:       uuid.New(),
		GoalType:     types.GoalTypeBooks,
		TargetValue:  10,
		CurrentValue: 4,
		StartDate:    now.AddDate(0, -2, 0),
		EndDate:      now.AddDate(0, -1, 0),
	})
	var goalID uuid.UUID
	for id := range repo.goals {
		goalID = id
	}
	svc := goalService(t, repo, nil, now)

	progress, err := svc.GetProgress(context.Background(), goalID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if progress.DaysLeft != 0 {
		t.Fatalf("days left %d, want 0", progress.DaysLeft)
	}
	if progress.DailyTarget != nil {
		t.Fatalf("daily target %v, want nil for an ended period", *progress.DailyTarget)
	}
}

func TestGoalCompletionFiresExactlyOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeGoalRepo(&types.ReadingGoal{
		UserID:       uuid.New(),
		GoalType:     types.GoalTypeBooks,
		TargetValue:  5,
		CurrentValue: 4,
		StartDate:    now.AddDate(0, 0, -5),
		EndDate:      now.AddDate(0, 0, 5),
	})
	var goalID uuid.UUID
	for id := range repo.goals {
		goalID = id
	}

	bus := testBus(t)
	completions := 0
	bus.Subscribe(events.EventGoalCompleted, func(ctx context.Context, event string, data map[string]interface{}) error {
		completions++
		return nil
	})
	svc := goalService(t, repo, bus, now)

	progress, err := svc.UpdateProgress(context.Background(), goalID, 1)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if !progress.IsCompleted || progress.CompletedAt == nil {
		t.Fatal("goal should be completed")
	}
	if completions != 1 {
		t.Fatalf("goal_completed fired %d times, want 1", completions)
	}

	// Terminal state: further increments are rejected and nothing
	// fires again.
	_, err = svc.UpdateProgress(context.Background(), goalID, 1)
	if !apperr.IsValidation(err) {
		t.Fatalf("got %v, want validation error on completed goal", err)
	}
	if completions != 1 {
		t.Fatalf("goal_completed fired %d times after rejection, want 1", completions)
	}
	if repo.goals[goalID].CurrentValue != 5 {
		t.Fatalf("completed goal value moved to %v, want 5", repo.goals[goalID].CurrentValue)
	}
}

func TestUpdateProgressValidation(t *testing.T) {
	svc := goalService(t, newFakeGoalRepo(), nil, time.Now())

	if _, err := svc.UpdateProgress(context.Background(), uuid.New(), 0); !apperr.IsValidation(err) {
		t.Fatalf("got %v, want validation error for zero increment", err)
	}
	if _, err := svc.UpdateProgress(context.Background(), uuid.New(), 1); !apperr.IsNotFound(err) {
		t.Fatalf("got %v, want not found for unknown goal", err)
	}
}

func TestTrackBookCompletionFansOutToActiveGoals(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	bookGoal := &types.ReadingGoal{
		UserID:      userID,
		GoalType:    types.GoalTypeBooks,
		TargetValue: 12,
		StartDate:   now.AddDate(0, 0, -15),
		EndDate:     now.AddDate(0, 0, 15),
	}
	pageGoal := &types.ReadingGoal{
		UserID:      userID,
		GoalType:    types.GoalTypePages,
		TargetValue: 1000,
		StartDate:   now.AddDate(0, 0, -15),
		EndDate:     now.AddDate(0, 0, 15),
	}
	completedGoal := &types.ReadingGoal{
		UserID:      userID,
		GoalType:    types.GoalTypeBooks,
		TargetValue: 1,
		IsCompleted: true,
		StartDate:   now.AddDate(0, 0, -15),
		EndDate:     now.AddDate(0, 0, 15),
	}
	repo := newFakeGoalRepo(bookGoal, pageGoal, completedGoal)

	bookRepo := newFakeBookRepo()
	bookID := uuid.New()
	bookRepo.books[bookID] = &types.Book{ID: bookID, Title: "Dune", Author: "Frank Herbert", PageCount: 412}
	history := &fakeHistoryRepo{}

	svc := NewReadingGoalService(nil, testLogger(t), repo, bookRepo, history, nil).(*readingGoalService)
	svc.now = func() time.Time { return now }

	updated, err := svc.TrackBookCompletion(context.Background(), userID, bookID)
	if err != nil {
		t.Fatalf("TrackBookCompletion: %v", err)
	}
	if len(updated) != 2 {
		t.Fatalf("updated %d goals, want 2", len(updated))
	}
	if repo.goals[bookGoal.ID].CurrentValue != 1 {
		t.Fatalf("book goal at %v, want 1", repo.goals[bookGoal.ID].CurrentValue)
	}
	if repo.goals[pageGoal.ID].CurrentValue != 412 {
		t.Fatalf("page goal at %v, want 412", repo.goals[pageGoal.ID].CurrentValue)
	}
	if len(history.upserted) != 1 || history.upserted[0] != bookID {
		t.Fatalf("history upserts %v, want [%s]", history.upserted, bookID)
	}
}

func TestTrackBookCompletionUnknownBook(t *testing.T) {
	svc := NewReadingGoalService(nil, testLogger(t), newFakeGoalRepo(), newFakeBookRepo(), &fakeHistoryRepo{}, nil)
	_, err := svc.TrackBookCompletion(context.Background(), uuid.New(), uuid.New())
	if !apperr.IsNotFound(err) {
		t.Fatalf("got %v, want not found", err)
	}
}
