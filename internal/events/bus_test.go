package events

import (
	"context"
	"errors"
	"testing"

	"github.com/bookverse/bookverse-backend/internal/logger"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewBus(log)
}

func TestPublishReturnsSubscriberCount(t *testing.T) {
	bus := newTestBus(t)

	if got := bus.Publish(context.Background(), EventGoalCompleted, nil); got != 0 {
		t.Fatalf("publish with no subscribers returned %d, want 0", got)
	}

	calls := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(EventGoalCompleted, func(ctx context.Context, event string, data map[string]interface{}) error {
			calls++
			return nil
		})
	}

	if got := bus.Publish(context.Background(), EventGoalCompleted, map[string]interface{}{"goal_id": "g1"}); got != 3 {
		t.Fatalf("publish returned %d, want 3", got)
	}
	if calls != 3 {
		t.Fatalf("subscribers called %d times, want 3", calls)
	}
}

func TestSubscriberFailureDoesNotStopOthers(t *testing.T) {
	bus := newTestBus(t)

	var order []string
	bus.Subscribe(EventAchievementUnlocked, func(ctx context.Context, event string, data map[string]interface{}) error {
		order = append(order, "failing")
		return errors.New("boom")
	})
	bus.Subscribe(EventAchievementUnlocked, func(ctx context.Context, event string, data map[string]interface{}) error {
		order = append(order, "panicking")
		panic("boom")
	})
	bus.Subscribe(EventAchievementUnlocked, func(ctx context.Context, event string, data map[string]interface{}) error {
		order = append(order, "healthy")
		return nil
	})

	got := bus.Publish(context.Background(), EventAchievementUnlocked, nil)
	if got != 3 {
		t.Fatalf("publish returned %d, want 3", got)
	}
	if len(order) != 3 || order[2] != "healthy" {
		t.Fatalf("subscriber order = %v, want all three with healthy last", order)
	}
}

func TestSubscribeDifferentEventsAreIsolated(t *testing.T) {
	bus := newTestBus(t)

	bus.Subscribe(EventRatingChanged, func(ctx context.Context, event string, data map[string]interface{}) error {
		t.Fatal("rating subscriber must not fire for progress events")
		return nil
	})

	if got := bus.Publish(context.Background(), EventProgressRecorded, nil); got != 0 {
		t.Fatalf("publish returned %d, want 0", got)
	}
	if bus.SubscriberCount(EventRatingChanged) != 1 {
		t.Fatalf("subscriber count = %d, want 1", bus.SubscriberCount(EventRatingChanged))
	}
}
