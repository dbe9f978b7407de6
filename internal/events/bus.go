package events

import (
	"context"
	"sync"

	"github.com/bookverse/bookverse-backend/internal/logger"
)

// Event names published by the engine.
const (
	EventAchievementUnlocked = "achievement_unlocked"
	EventGoalCompleted       = "goal_completed"
	EventRatingChanged       = "rating_changed"
	EventProgressRecorded    = "progress_recorded"
)

type Handler func(ctx context.Context, event string, data map[string]interface{}) error

// Bus is an in-process fan-out, not a durable queue. It is constructed
// in main and passed to components; subscriptions live for the process.
type Bus struct {
	mu       sync.RWMutex
	log      *logger.Logger
	handlers map[string][]Handler
}

func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		log:      log.With("component", "EventBus"),
		handlers: make(map[string][]Handler),
	}
}

func (b *Bus) Subscribe(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], h)
}

// Publish invokes every subscriber for event and returns how many were
// called. A subscriber returning an error or panicking is logged and
// does not affect the other subscribers or the publisher.
func (b *Bus) Publish(ctx context.Context, event string, data map[string]interface{}) int {
	b.mu.RLock()
	subscribers := make([]Handler, len(b.handlers[event]))
	copy(subscribers, b.handlers[event])
	b.mu.RUnlock()

	for _, h := range subscribers {
		b.invoke(ctx, event, data, h)
	}
	return len(subscribers)
}

func (b *Bus) invoke(ctx context.Context, event string, data map[string]interface{}, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event subscriber panicked", "event", event, "panic", r)
		}
	}()
	if err := h(ctx, event, data); err != nil {
		b.log.Warn("Event subscriber failed", "event", event, "error", err)
	}
}

// SubscriberCount reports registrations for event, mostly for tests and
// startup logging.
func (b *Bus) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}
