package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"mentorship-chat/internal/auth"
	"mentorship-chat/internal/config"
	"mentorship-chat/internal/db"
	"mentorship-chat/internal/directory"
	"mentorship-chat/internal/handlers"
	"mentorship-chat/internal/middleware"
	"mentorship-chat/internal/observability"
	"mentorship-chat/internal/rabbitmq"
	"mentorship-chat/internal/repositories"
	"mentorship-chat/internal/service"
	"mentorship-chat/internal/telemetry"
	"mentorship-chat/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, "mentorship-chat", cfg.Env)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, "mentorship-chat", cfg.Env)

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	var registry ws.BroadcastRegistry = hub
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		redisRegistry := ws.NewRedisRegistry(rdb, hub)
		go redisRegistry.Run(ctx)
		registry = redisRegistry
		log.Printf("cross-process broadcast enabled addr=%s", cfg.RedisAddr)
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	userDirectory := directory.NewHTTPClient(cfg.DirectoryBaseURL)

	lifecycle := service.NewLifecycle(chatRepo)
	messaging := service.NewMessaging(chatRepo, messageRepo, registry)

	sweeper := service.NewSweeper(chatRepo, cfg.SweepInterval)
	go sweeper.Run(ctx)

	chatHandler := handlers.NewChatHandler(lifecycle, messaging, chatRepo, userDirectory, audit)
	gateway := ws.NewGateway(registry, chatRepo, verifier, messaging)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("mentorship-chat"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier, userDirectory)

	api := router.Group("/api/v1")
	chats := api.Group("/chats", authMiddleware)
	chats.POST("", chatHandler.RequestChat)
	chats.GET("", chatHandler.ListChats)
	chats.POST("/:chatId/approve", middleware.RequireRoles(directory.RoleSenior, directory.RoleMentor, directory.RoleAdmin), chatHandler.ApproveChat)
	chats.POST("/:chatId/close", middleware.RequireRoles(directory.RoleAdmin), chatHandler.CloseChat)
	chats.POST("/:chatId/cancel", chatHandler.CancelChat)
	chats.GET("/:chatId/messages", chatHandler.ListMessages)
	chats.POST("/:chatId/messages", chatHandler.SendMessage)
	chats.POST("/:chatId/seen", chatHandler.MarkSeen)
	chats.PUT("/:chatId/messages/:messageId", chatHandler.UpdateMessage)
	chats.DELETE("/:chatId/messages/:messageId", chatHandler.DeleteMessage)

	router.GET("/ws", gateway.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("mentorship chat service listening on :%s", cfg.Port)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
