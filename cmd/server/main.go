package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tuan304201/chat/internal/config"
	"github.com/tuan304201/chat/internal/handler"
	"github.com/tuan304201/chat/internal/middleware"
	"github.com/tuan304201/chat/internal/repository"
	"github.com/tuan304201/chat/internal/service"
	"github.com/tuan304201/chat/internal/socket"
	"github.com/tuan304201/chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)

	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	repos := repository.NewRepositories(dbPool, rdb, appLogger)
	services := service.NewServices(repos, cfg, appLogger)

	// Socket layer: the bus connects the processes, the hub tracks local
	// connections, fanout routes engine outcomes into both.
	bus := socket.NewRedisBus(rdb, appLogger)
	hub := socket.NewHub(bus, appLogger)
	fanout := socket.NewFanout(hub, services.Presence, appLogger)
	socketServer := socket.NewServer(hub, fanout, services, appLogger)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && hubCtx.Err() == nil {
			appLogger.Fatal("Socket hub stopped", "error", err)
		}
	}()

	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, cfg.Chat.HTTPRateLimit, cfg.Chat.HTTPRateWindow, appLogger)

	handlers := handler.NewHandlers(services, socketServer, fanout, cfg, appLogger)

	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	hubCancel()
	if err := bus.Close(); err != nil {
		appLogger.Error("Failed to close event bus", "error", err)
	}

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.Health.Check)

	// Token travels as a query parameter on the upgrade request.
	router.GET("/ws", handlers.WebSocket.Handle)

	v1 := router.Group("/api/v1")
	v1.Use(rateLimitMiddleware.Limit())
	v1.Use(authMiddleware.RequireAuth())
	{
		conversations := v1.Group("/conversations")
		{
			conversations.GET("", handlers.Conversation.List)
			conversations.POST("/private", handlers.Conversation.CreatePrivate)
			conversations.POST("/group", handlers.Conversation.CreateGroup)
			conversations.POST("/join", handlers.Conversation.JoinByInvite)
			conversations.GET("/:id", handlers.Conversation.GetByID)
			conversations.PATCH("/:id", handlers.Conversation.UpdateInfo)
			conversations.DELETE("/:id", handlers.Conversation.DeleteForUser)
			conversations.POST("/:id/members", handlers.Conversation.AddMembers)
			conversations.DELETE("/:id/members/:userId", handlers.Conversation.KickMember)
			conversations.PATCH("/:id/members/:userId/role", handlers.Conversation.UpdateMemberRole)
			conversations.POST("/:id/leave", handlers.Conversation.Leave)
			conversations.POST("/:id/disband", handlers.Conversation.Disband)
			conversations.POST("/:id/pin", handlers.Conversation.TogglePin)
			conversations.POST("/:id/mute", handlers.Conversation.Mute)
			conversations.GET("/:id/messages", handlers.Message.List)
			conversations.POST("/:id/messages", handlers.Message.Send)
		}

		messages := v1.Group("/messages")
		{
			messages.PATCH("/:messageId", handlers.Message.Edit)
			messages.DELETE("/:messageId", handlers.Message.Delete)
			messages.POST("/:messageId/recall", handlers.Message.Recall)
			messages.POST("/:messageId/react", handlers.Message.React)
		}

		friends := v1.Group("/friends")
		{
			friends.GET("/requests", handlers.Friend.ListRequests)
			friends.POST("/requests", handlers.Friend.SendRequest)
			friends.POST("/requests/:id/accept", handlers.Friend.AcceptRequest)
			friends.POST("/requests/:id/decline", handlers.Friend.DeclineRequest)
			friends.DELETE("/requests/:id", handlers.Friend.CancelRequest)
			friends.DELETE("/:userId", handlers.Friend.RemoveFriend)
		}
	}

	return router
}
