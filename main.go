package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"agency-chat-service/internal/access"
	"agency-chat-service/internal/autoresponder"
	"agency-chat-service/internal/bus"
	"agency-chat-service/internal/chat"
	"agency-chat-service/internal/config"
	"agency-chat-service/internal/db"
	"agency-chat-service/internal/handlers"
	"agency-chat-service/internal/llm"
	"agency-chat-service/internal/logger"
	"agency-chat-service/internal/middleware"
	"agency-chat-service/internal/observability"
	"agency-chat-service/internal/rabbitmq"
	"agency-chat-service/internal/ratelimit"
	"agency-chat-service/internal/repositories"
	"agency-chat-service/internal/ws"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		zlog.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, zlog)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	zlog.Info("event publisher ready", zap.String("mode", rabbitmq.PublisherMode(publisher)))

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(context.Background(), cfg.TracingEndpoint)
		if err != nil {
			zlog.Warn("tracing disabled", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(ctx)
			}()
		}
	}

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	settingsRepo := repositories.NewSettingsRepo(database)
	auditRepo := repositories.NewAuditRepo(database)

	registry := ws.NewRegistry(zlog)
	rooms := ws.NewRooms()
	hub := ws.NewHub(registry, rooms, zlog)

	var fanout bus.Broadcaster = hub
	if cfg.NATSURL != "" {
		relay, err := bus.NewNATSFanout(cfg.NATSURL, uuid.NewString(), hub, zlog)
		if err != nil {
			zlog.Warn("nats relay unavailable, running single-instance fan-out", zap.Error(err))
		} else {
			defer relay.Close()
			fanout = relay
		}
	}

	checker := access.NewChecker(conversationRepo, zlog)
	limiter := ratelimit.NewLimiterWithDefaults(cfg.MessagesPerMinute, cfg.FilesPerMinute)

	llmClient := buildLLMClient(cfg, zlog)
	assistant := autoresponder.NewAssistant(settingsRepo, messageRepo, llmClient, cfg.LLMTimeout, zlog)
	bot := autoresponder.NewBot()

	router := chat.NewRouter(conversationRepo, messageRepo, settingsRepo, auditRepo,
		checker, limiter, fanout, cfg.PersistTimeout, zlog)

	chatWS := ws.NewChatSocketHandler(registry, rooms, checker, router, fanout,
		assistant, bot, settingsRepo, cfg.JWTSecret, zlog)
	chatHandler := handlers.NewChatHandler(conversationRepo, router)
	presenceHandler := handlers.NewPresenceHandler(registry)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(observability.HTTPMetricsMiddleware())
	engine.Use(otelgin.Middleware("agency-chat-service"))

	engine.GET("/healthz", handlers.Health(database))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.Auth(cfg.JWTSecret)
	api := engine.Group("/api/chat", auth)
	api.GET("/conversations", chatHandler.ListConversations)
	api.POST("/conversations", chatHandler.CreateConversation)
	api.DELETE("/conversations/:conversation_id", chatHandler.CloseConversation)
	api.DELETE("/conversations/:conversation_id/purge", chatHandler.PurgeConversation)
	api.GET("/conversations/:conversation_id/messages", chatHandler.GetMessages)
	api.POST("/conversations/:conversation_id/messages", chatHandler.PostMessage)
	api.PATCH("/conversations/:conversation_id/messages/:message_id", chatHandler.EditMessage)
	api.DELETE("/conversations/:conversation_id/messages/:message_id", chatHandler.DeleteMessage)
	api.POST("/conversations/:conversation_id/messages/:message_id/read", chatHandler.MarkRead)
	api.GET("/presence", presenceHandler.OnlineUsers)

	engine.GET("/ws/chat", chatWS.Handle)

	handlers.RegisterDebugRoutes(engine, cfg.JWTSecret, cfg.DebugRoutes)

	zlog.Info("chat service listening", zap.String("port", cfg.Port))
	if err := engine.Run(":" + cfg.Port); err != nil {
		zlog.Fatal("server error", zap.Error(err))
	}
}

func buildLLMClient(cfg *config.Config, zlog *zap.Logger) llm.Client {
	apiKey := cfg.OpenAIAPIKey
	if llm.Provider(cfg.LLMProvider) == llm.ProviderAnthropic {
		apiKey = cfg.AnthropicAPIKey
	}
	if apiKey == "" {
		zlog.Info("no llm api key configured, assistant backend disabled")
		return nil
	}

	client, err := llm.NewClient(llm.Provider(cfg.LLMProvider), apiKey)
	if err != nil {
		zlog.Warn("llm client unavailable", zap.Error(err))
		return nil
	}
	zlog.Info("llm client ready", zap.String("provider", client.Name()))
	return client
}
