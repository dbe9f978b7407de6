package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/bookverse/bookverse-backend/internal/handlers"
	"github.com/bookverse/bookverse-backend/internal/middleware"
	"github.com/bookverse/bookverse-backend/internal/services"
)

type RouterConfig struct {
	ServiceName           string
	AllowedOrigins        []string
	IdentityMiddleware    *middleware.IdentityMiddleware
	ProgressHandler       *handlers.ProgressHandler
	AchievementHandler    *handlers.AchievementHandler
	GoalHandler           *handlers.GoalHandler
	RecommendationHandler *handlers.RecommendationHandler
	GoalService           services.ReadingGoalService
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-User-ID", "X-Request-ID"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/api/health", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.IdentityMiddleware.RequireUser())
	{
		api.GET("/progress", cfg.ProgressHandler.List)
		api.GET("/progress/:action", cfg.ProgressHandler.Get)

		api.POST("/achievements/track", cfg.AchievementHandler.Track)
		api.GET("/achievements/progress", cfg.AchievementHandler.Progress)
		api.GET("/achievements", cfg.AchievementHandler.ListEarned)
		api.POST("/books/:id/complete", cfg.AchievementHandler.CompleteBook(cfg.GoalService))

		api.POST("/goals", cfg.GoalHandler.Create)
		api.GET("/goals", cfg.GoalHandler.List)
		api.POST("/goals/:id/progress", cfg.GoalHandler.UpdateProgress)
		api.GET("/goals/:id/progress", cfg.GoalHandler.Progress)

		api.GET("/recommendations", cfg.RecommendationHandler.List)
		api.POST("/recommendations/refresh", cfg.RecommendationHandler.Refresh)
		api.POST("/recommendations/:book_id/dismiss", cfg.RecommendationHandler.Dismiss)
	}

	return router
}
