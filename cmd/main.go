package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bookverse/bookverse-backend/internal/clients/redis"
	"github.com/bookverse/bookverse-backend/internal/db"
	"github.com/bookverse/bookverse-backend/internal/events"
	"github.com/bookverse/bookverse-backend/internal/handlers"
	"github.com/bookverse/bookverse-backend/internal/logger"
	"github.com/bookverse/bookverse-backend/internal/middleware"
	"github.com/bookverse/bookverse-backend/internal/observability"
	"github.com/bookverse/bookverse-backend/internal/repos"
	"github.com/bookverse/bookverse-backend/internal/server"
	"github.com/bookverse/bookverse-backend/internal/services"
	"github.com/bookverse/bookverse-backend/internal/types"
	"github.com/bookverse/bookverse-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	redisAddr := utils.GetEnv("REDIS_ADDR", "localhost:6379", log)
	recBudgetMs := utils.GetEnvAsInt("RECOMMENDATION_BUDGET_MS", 3000, log)
	allowedOrigins := utils.GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000", log)

	// Tracing
	ctx := context.Background()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "bookverse-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis
	cache, err := redis.NewCache(log, redisAddr)
	if err != nil {
		log.Warn("Redis init failed, continuing without cache", "error", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	bookRepo := repos.NewBookRepo(thePG, log)
	counterRepo := repos.NewProgressCounterRepo(thePG, log)
	achievementRepo := repos.NewAchievementRepo(thePG, log)
	goalRepo := repos.NewReadingGoalRepo(thePG, log)
	historyRepo := repos.NewReadingHistoryRepo(thePG, log)
	recommendationRepo := repos.NewRecommendationRepo(thePG, log)
	userEventRepo := repos.NewUserEventRepo(thePG, log)

	// Event bus
	log.Info("Setting up event bus from main...")
	bus := events.NewBus(log)

	// Services
	log.Info("Setting up Services from main...")
	progressService := services.NewProgressService(thePG, log, counterRepo, bus)
	achievementService := services.NewAchievementService(thePG, log, progressService, achievementRepo, bus, cache)
	goalService := services.NewReadingGoalService(thePG, log, goalRepo, bookRepo, historyRepo, bus)
	recommendationService := services.NewRecommendationService(
		thePG,
		log,
		historyRepo,
		bookRepo,
		recommendationRepo,
		cache,
		time.Duration(recBudgetMs)*time.Millisecond,
	)

	// Subscribers: audit trail plus recommendation invalidation on
	// signals that change a user's taste profile.
	auditEvents := []string{
		events.EventProgressRecorded,
		events.EventAchievementUnlocked,
		events.EventGoalCompleted,
		events.EventRatingChanged,
	}
	for _, event := range auditEvents {
		bus.Subscribe(event, func(ctx context.Context, event string, data map[string]interface{}) error {
			userID, err := eventUserID(data)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(data)
			if err != nil {
				return err
			}
			_, err = userEventRepo.Create(ctx, nil, &types.UserEvent{
				UserID: userID,
				Type:   event,
				Data:   payload,
			})
			return err
		})
	}
	if cache != nil {
		bus.Subscribe(events.EventRatingChanged, func(ctx context.Context, event string, data map[string]interface{}) error {
			userID, err := eventUserID(data)
			if err != nil {
				return err
			}
			return cache.Invalidate(ctx, fmt.Sprintf("recommendations:%s:*", userID))
		})
		invalidateAchievements := func(ctx context.Context, event string, data map[string]interface{}) error {
			userID, err := eventUserID(data)
			if err != nil {
				return err
			}
			return cache.Invalidate(ctx, fmt.Sprintf("achievements:%s:*", userID))
		}
		bus.Subscribe(events.EventAchievementUnlocked, invalidateAchievements)
		bus.Subscribe(events.EventGoalCompleted, invalidateAchievements)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	progressHandler := handlers.NewProgressHandler(progressService)
	achievementHandler := handlers.NewAchievementHandler(achievementService)
	goalHandler := handlers.NewGoalHandler(goalService)
	recommendationHandler := handlers.NewRecommendationHandler(recommendationService)

	// Middleware
	log.Info("Setting up middleware from main...")
	identityMiddleware := middleware.NewIdentityMiddleware(log, userRepo)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:           "bookverse-backend",
		AllowedOrigins:        strings.Split(allowedOrigins, ","),
		IdentityMiddleware:    identityMiddleware,
		ProgressHandler:       progressHandler,
		AchievementHandler:    achievementHandler,
		GoalHandler:           goalHandler,
		RecommendationHandler: recommendationHandler,
		GoalService:           goalService,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}

func eventUserID(data map[string]interface{}) (uuid.UUID, error) {
	raw, _ := data["user_id"].(string)
	return uuid.Parse(raw)
}
