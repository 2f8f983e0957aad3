package main

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/PixlGalaxy/EagleDocs/internal/handler"
	"github.com/PixlGalaxy/EagleDocs/internal/middleware"
	"github.com/PixlGalaxy/EagleDocs/internal/models"
	"github.com/PixlGalaxy/EagleDocs/pkg/config"
	"github.com/PixlGalaxy/EagleDocs/pkg/logger"
	corsmiddleware "github.com/PixlGalaxy/EagleDocs/pkg/middleware/cors"
	reqidmiddleware "github.com/PixlGalaxy/EagleDocs/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, logr *zap.Logger, app *application) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics, "/health", "/ready", cfg.Metrics.Path))

	metricsHandler := handler.NewMetricsHandler(app.metrics, 3*time.Second,
		handler.HealthCheck{Name: "postgres", Check: app.pingDB},
		handler.HealthCheck{Name: "redis", Optional: true, Check: app.cacheRepo.Ping},
		handler.HealthCheck{Name: "llm", Optional: true, Check: app.router.Health},
	)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	chatHandler := handler.NewChatHandler(app.chats)
	documentHandler := handler.NewDocumentHandler(app.documents)
	contextHandler := handler.NewContextHandler(app.retrieval)
	llmHandler := handler.NewLLMHandler(app.router, app.router.Backend().Name())

	api := r.Group(cfg.APIPrefix)
	api.GET("/documents/:documentId/download", documentHandler.Download)

	secured := api.Group("", middleware.JWT(app.auth))
	managers := middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin)

	secured.GET("/llm/models", llmHandler.Models)
	secured.GET("/llm/health", llmHandler.Health)

	secured.GET("/courses/:courseId/documents", documentHandler.List)
	secured.POST("/courses/:courseId/documents", managers, documentHandler.Upload)
	secured.DELETE("/courses/:courseId/documents/:documentId", managers, documentHandler.Delete)
	secured.POST("/courses/:courseId/reindex", managers, documentHandler.Reindex)

	secured.GET("/context/:courseCode", contextHandler.Preview)

	secured.GET("/chats", chatHandler.List)
	secured.POST("/chats", chatHandler.Create)
	secured.GET("/chats/:chatId", chatHandler.Get)
	secured.GET("/chats/:chatId/export", chatHandler.Export)
	secured.POST("/chats/:chatId/messages", chatHandler.SendMessage)
	secured.POST("/chats/:chatId/messages/stream", chatHandler.StreamMessage)

	return r
}
