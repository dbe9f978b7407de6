package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bookverse/bookverse-backend/internal/events"
	"github.com/bookverse/bookverse-backend/internal/types"
)

func definition(code, actionType string, threshold float64) *types.AchievementDefinition {
	return &types.AchievementDefinition{
		ID:         uuid.New(),
		Code:       code,
		Kind:       types.DefinitionKindAchievement,
		Title:      code,
		ActionType: actionType,
		Threshold:  threshold,
		Comparison: "gte",
		Points:     10,
		IsActive:   true,
	}
}

func TestTrackProgressUnlocksEveryCrossedThreshold(t *testing.T) {
	defs := newFakeAchievementRepo(
		definition("first_book", "books_read", 1),
		definition("bookworm", "books_read", 5),
		definition("bibliophile", "books_read", 10),
	)
	progress := NewProgressService(nil, testLogger(t), newFakeCounterRepo(), nil)
	svc := NewAchievementService(nil, testLogger(t), progress, defs, testBus(t), newFakeCache())

	result, err := svc.TrackProgress(context.Background(), uuid.New(), "books_read", 10, RecordModeAbsolute, nil)
	if err != nil {
		t.Fatalf("TrackProgress: %v", err)
	}
	if result.UpdatedProgress != 10 {
		t.Fatalf("updated progress %v, want 10", result.UpdatedProgress)
	}
	if len(result.NewAchievements) != 3 {
		t.Fatalf("unlocked %d achievements, want 3", len(result.NewAchievements))
	}
	if len(result.Failed) != 0 {
		t.Fatalf("unexpected failures: %v", result.Failed)
	}
}

func TestTrackProgressIsIdempotent(t *testing.T) {
	defs := newFakeAchievementRepo(definition("first_book", "books_read", 1))
	progress := NewProgressService(nil, testLogger(t), newFakeCounterRepo(), nil)
	svc := NewAchievementService(nil, testLogger(t), progress, defs, nil, nil)
	userID := uuid.New()

	first, err := svc.TrackProgress(context.Background(), userID, "books_read", 1, RecordModeDelta, nil)
	if err != nil {
		t.Fatalf("first TrackProgress: %v", err)
	}
	if len(first.NewAchievements) != 1 {
		t.Fatalf("first call unlocked %d, want 1", len(first.NewAchievements))
	}

	second, err := svc.TrackProgress(context.Background(), userID, "books_read", 1, RecordModeDelta, nil)
	if err != nil {
		t.Fatalf("second TrackProgress: %v", err)
	}
	if len(second.NewAchievements) != 0 {
		t.Fatalf("second call unlocked %d, want 0", len(second.NewAchievements))
	}
	if len(defs.inserted) != 1 {
		t.Fatalf("earned rows created %d times, want 1", len(defs.inserted))
	}
}

func TestTrackProgressOneFailedUnlockDoesNotBlockTheRest(t *testing.T) {
	broken := definition("bookworm", "books_read", 5)
	defs := newFakeAchievementRepo(
		definition("first_book", "books_read", 1),
		broken,
		definition("bibliophile", "books_read", 10),
	)
	defs.failIDs[broken.ID] = true

	progress := NewProgressService(nil, testLogger(t), newFakeCounterRepo(), nil)
	svc := NewAchievementService(nil, testLogger(t), progress, defs, nil, nil)

	result, err := svc.TrackProgress(context.Background(), uuid.New(), "books_read", 10, RecordModeAbsolute, nil)
	if err != nil {
		t.Fatalf("TrackProgress: %v", err)
	}
	if len(result.NewAchievements) != 2 {
		t.Fatalf("unlocked %d achievements, want 2", len(result.NewAchievements))
	}
	if len(result.Failed) != 1 || result.Failed[0] != "bookworm" {
		t.Fatalf("failed codes %v, want [bookworm]", result.Failed)
	}
}

func TestTrackProgressKeepsCommittedProgressWhenEvaluationFails(t *testing.T) {
	cases := []struct {
		name string
		prep func(defs *fakeAchievementRepo)
	}{
		{"definitions unavailable", func(defs *fakeAchievementRepo) {
			defs.listErr = errors.New("connection refused")
		}},
		{"earned set unavailable", func(defs *fakeAchievementRepo) {
			defs.earnedErr = errors.New("connection refused")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defs := newFakeAchievementRepo(definition("first_book", "books_read", 1))
			tc.prep(defs)

			progress := NewProgressService(nil, testLogger(t), newFakeCounterRepo(), nil)
			svc := NewAchievementService(nil, testLogger(t), progress, defs, nil, nil)

			result, err := svc.TrackProgress(context.Background(), uuid.New(), "books_read", 3, RecordModeDelta, nil)
			if err != nil {
				t.Fatalf("TrackProgress: %v", err)
			}
			if result.UpdatedProgress != 3 {
				t.Fatalf("updated progress %v, want 3", result.UpdatedProgress)
			}
			if result.EvaluationError == "" {
				t.Fatal("expected an evaluation error marker on the result")
			}
			if len(result.NewAchievements) != 0 {
				t.Fatalf("unlocked %d achievements, want 0", len(result.NewAchievements))
			}
		})
	}
}

func TestTrackProgressPublishesUnlockEvents(t *testing.T) {
	defs := newFakeAchievementRepo(definition("first_book", "books_read", 1))
	bus := testBus(t)
	var published []string
	bus.Subscribe(events.EventAchievementUnlocked, func(ctx context.Context, event string, data map[string]interface{}) error {
		published = append(published, data["code"].(string))
		return nil
	})

	progress := NewProgressService(nil, testLogger(t), newFakeCounterRepo(), nil)
	svc := NewAchievementService(nil, testLogger(t), progress, defs, bus, nil)

	if _, err := svc.TrackProgress(context.Background(), uuid.New(), "books_read", 1, RecordModeDelta, nil); err != nil {
		t.Fatalf("TrackProgress: %v", err)
	}
	if len(published) != 1 || published[0] != "first_book" {
		t.Fatalf("published codes %v, want [first_book]", published)
	}
}

func TestTrackProgressCustomComparison(t *testing.T) {
	def := definition("genre_explorer", "distinct_genres_read", 5)
	def.Comparison = "gte_int"
	defs := newFakeAchievementRepo(def)

	progress := NewProgressService(nil, testLogger(t), newFakeCounterRepo(), nil)
	svc := NewAchievementService(nil, testLogger(t), progress, defs, nil, nil)

	// Unknown comparison: definition is skipped, not an error.
	result, err := svc.TrackProgress(context.Background(), uuid.New(), "distinct_genres_read", 6, RecordModeAbsolute, nil)
	if err != nil {
		t.Fatalf("TrackProgress: %v", err)
	}
	if len(result.NewAchievements) != 0 {
		t.Fatalf("unlocked %d with unknown comparison, want 0", len(result.NewAchievements))
	}

	svc.RegisterComparison("gte_int", func(value, threshold float64) bool {
		return float64(int(value)) >= threshold
	})
	result, err = svc.TrackProgress(context.Background(), uuid.New(), "distinct_genres_read", 6, RecordModeAbsolute, nil)
	if err != nil {
		t.Fatalf("TrackProgress: %v", err)
	}
	if len(result.NewAchievements) != 1 {
		t.Fatalf("unlocked %d with registered comparison, want 1", len(result.NewAchievements))
	}
}

func TestGetProgressSummary(t *testing.T) {
	defs := newFakeAchievementRepo(
		definition("a", "books_read", 1),
		definition("b", "books_read", 5),
		definition("c", "books_read", 10),
		definition("d", "books_read", 25),
	)
	earned := definition("a", "books_read", 1)
	defs.earnedRet = []*types.UserAchievement{
		{AchievementID: earned.ID, Achievement: earned},
	}

	progress := NewProgressService(nil, testLogger(t), newFakeCounterRepo(), nil)
	svc := NewAchievementService(nil, testLogger(t), progress, defs, nil, newFakeCache())

	summary, err := svc.GetProgressSummary(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetProgressSummary: %v", err)
	}
	if summary.Earned != 1 || summary.Locked != 3 || summary.Total != 4 {
		t.Fatalf("got %d earned, %d locked of %d, want 1/3/4", summary.Earned, summary.Locked, summary.Total)
	}
	if summary.PercentComplete != 25 {
		t.Fatalf("percent %v, want 25", summary.PercentComplete)
	}
	if summary.TotalPoints != 10 {
		t.Fatalf("points %d, want 10", summary.TotalPoints)
	}
}
