package main

import (
	"collab-engine/internal/comment"
	"collab-engine/internal/config"
	"collab-engine/internal/db"
	"collab-engine/internal/event"
	"collab-engine/internal/jobs"
	"collab-engine/internal/logger"
	"collab-engine/internal/middleware"
	"collab-engine/internal/presence"
	"collab-engine/internal/session"
	"collab-engine/internal/version"
	"collab-engine/internal/worker"
	"collab-engine/redis"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	config.LoadConfig()

	log := logger.New(config.AppConfig.Environment)

	// Connect to database
	db.ConnectDb()
	defer db.CloseDb()

	// Migrate database schema
	db.Migrate()

	// Initialize Redis (presence store)
	redis.InitRedis()
	if redis.RedisClient == nil {
		log.Warn().Msg("presence tracking requires redis; presence routes will fail until it is available")
	}

	// Background worker pool for retention housekeeping
	pool := worker.NewWorkerPool(4, log)
	defer pool.Shutdown()

	// Initialize repositories
	sessionRepo := session.NewRepository(db.AppDb)
	eventRepo := event.NewRepository(db.AppDb)
	versionRepo := version.NewRepository(db.AppDb)
	commentRepo := comment.NewRepository(db.AppDb)
	presenceRepo := presence.NewRepository(redis.RedisClient)

	// Initialize services
	eventService := event.NewService(eventRepo, sessionRepo, log)
	sessionService := session.NewService(sessionRepo, eventService)
	versionService := version.NewService(versionRepo, sessionRepo, eventService, pool, config.AppConfig.AutoSaveKeepCount, log)
	commentService := comment.NewService(commentRepo, sessionRepo, eventService, log)
	presenceService := presence.NewService(presenceRepo, sessionRepo, eventService, log)

	// Initialize handlers
	sessionHandler := session.NewHandler(sessionService)
	eventHandler := event.NewHandler(eventService)
	versionHandler := version.NewHandler(versionService)
	commentHandler := comment.NewHandler(commentService)
	presenceHandler := presence.NewHandler(presenceService)

	// Presence staleness sweep
	scheduler := jobs.NewScheduler(presenceService, log)
	if err := scheduler.Start(config.AppConfig.PresenceSweepSpec); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer scheduler.Stop()

	// Initialize Gin router
	if config.AppConfig.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler(log))

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	authMiddleware := &middleware.Auth{JWTSecret: []byte(config.AppConfig.JWTSecret)}
	api := router.Group("/", authMiddleware.AuthMiddleWare())

	// Session routes
	api.POST("/sessions", sessionHandler.Create)
	api.GET("/sessions", sessionHandler.List)
	api.GET("/sessions/:id", sessionHandler.Show)
	api.PUT("/sessions/:id", sessionHandler.Update)
	api.POST("/sessions/:id/end", sessionHandler.End)
	api.POST("/sessions/:id/join", sessionHandler.Join)
	api.POST("/sessions/:id/leave", sessionHandler.Leave)
	api.GET("/sessions/:id/participants", sessionHandler.Participants)

	// Event routes
	api.POST("/sessions/:id/events", eventHandler.Append)
	api.GET("/sessions/:id/events", eventHandler.Query)
	api.DELETE("/sessions/:id/events", eventHandler.Delete)
	api.GET("/sessions/:id/events/summary", eventHandler.Summary)
	api.GET("/sessions/:id/events/metrics", eventHandler.Metrics)

	// Document / version routes
	api.POST("/documents", versionHandler.CreateDocument)
	api.GET("/documents/:id", versionHandler.ShowDocument)
	api.POST("/documents/:id/versions", versionHandler.CreateVersion)
	api.GET("/documents/:id/versions", versionHandler.History)
	api.GET("/version-diff", versionHandler.Diff)
	api.POST("/versions/:versionId/restore", versionHandler.Restore)
	api.DELETE("/versions/:versionId", versionHandler.DeleteVersion)

	// Comment routes
	api.POST("/comments", commentHandler.Create)
	api.GET("/comments/threads", commentHandler.ListThreads)
	api.PUT("/comments/:id", commentHandler.Update)
	api.DELETE("/comments/:id", commentHandler.Delete)
	api.POST("/comments/:id/reactions", commentHandler.AddReaction)
	api.DELETE("/comments/:id/reactions/:emoji", commentHandler.RemoveReaction)

	// Presence routes
	api.PUT("/presence", presenceHandler.Update)
	api.POST("/presence/heartbeat", presenceHandler.Heartbeat)
	api.DELETE("/presence", presenceHandler.Clear)
	api.GET("/sessions/:id/presence", presenceHandler.SessionPresence)

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Info().Str("port", serverPort).Msg("server listening")
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	<-ctx.Done()
	log.Info().Msg("server shutdown complete")
}
