package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chatspace/internal/config"
	"chatspace/internal/db"
	"chatspace/internal/handlers"
	"chatspace/internal/middleware"
	"chatspace/internal/notify"
	"chatspace/internal/observability"
	"chatspace/internal/rabbitmq"
	"chatspace/internal/repositories"
	"chatspace/internal/storage"
	"chatspace/internal/telemetry"
	"chatspace/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing := observability.SetupTracing(context.Background(), "chatspace", cfg.OTLPEndpoint)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if wsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, "ws_events"); err != nil {
		log.Printf("ws event publisher disabled: %v", err)
	} else {
		observability.SetPublisher(wsPublisher)
		defer wsPublisher.Close()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(publisher))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, "chatspace", cfg.Environment)

	media := storage.NewMediaStore(cfg.MediaAPIBaseURL, cfg.MediaAPIKey)

	chatRepo := repositories.NewChatRepo(database)
	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	notifier := notify.New(hub)

	jwtManager := middleware.NewJWTManager(cfg.JWTSecret)

	chatHandler := handlers.NewChatHandler(chatRepo, userRepo, audit)
	groupHandler := handlers.NewGroupHandler(chatRepo, userRepo, messageRepo, media, notifier, audit, nil)
	messageHandler := handlers.NewMessageHandler(chatRepo, userRepo, messageRepo, media, notifier, audit)
	userWS := ws.NewUserWebSocketHandler(hub, jwtManager)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chatspace"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(jwtManager)

	router.GET("/chats", authMiddleware, chatHandler.ListMyChats)
	router.GET("/chats/groups", authMiddleware, chatHandler.ListMyGroups)
	router.POST("/chats/start", authMiddleware, chatHandler.StartDirectChat)
	router.POST("/chats/group", authMiddleware, groupHandler.CreateGroup)
	router.PUT("/chats/group/members", authMiddleware, groupHandler.AddMembers)
	router.DELETE("/chats/group/members", authMiddleware, groupHandler.RemoveMember)
	router.DELETE("/chats/group/:chat_id/leave", authMiddleware, groupHandler.Leave)
	router.GET("/chats/:chat_id", authMiddleware, chatHandler.GetChatDetails)
	router.PUT("/chats/:chat_id", authMiddleware, groupHandler.Rename)
	router.DELETE("/chats/:chat_id", authMiddleware, groupHandler.Delete)
	router.GET("/chats/:chat_id/messages", authMiddleware, messageHandler.ListMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, messageHandler.SendMessage)
	router.POST("/chats/:chat_id/attachments", authMiddleware, messageHandler.SendAttachments)

	router.GET("/ws", userWS.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
