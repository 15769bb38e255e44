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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"oarchat-service/internal/config"
	"oarchat-service/internal/db"
	"oarchat-service/internal/handlers"
	"oarchat-service/internal/observability"
	"oarchat-service/internal/rabbitmq"
	"oarchat-service/internal/repositories"
	"oarchat-service/internal/telemetry"
	"oarchat-service/internal/ws"
)

const serviceName = "oarchat-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLogger, err := newLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		logger.Fatalf("failed to init tracing: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	events := telemetry.NewEventEmitter(publisher, cfg.EventRoutingKey, serviceName, cfg.Environment, logger)

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub(logger)
	syncer := handlers.NewSyncer(userRepo, chatRepo, messageRepo, cfg.SyncChunkSize, cfg.SyncAckTimeout, logger)
	userOps := handlers.NewUserHandler(userRepo, hub, logger)
	registrar := handlers.NewChatRegistrar(chatRepo, hub, logger)
	router := handlers.NewDeliveryRouter(chatRepo, messageRepo, hub, events, cfg.DeliveryAckTimeout, logger)
	connections := handlers.NewConnectionHandler(hub, userRepo, syncer, userOps, registrar, router, events, logger)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(observability.HTTPMetricsMiddleware())

	engine.GET("/health", handlers.HealthHandler(time.Now()))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", connections.Handle)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown: %v", err)
		}

		router.Drain()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Errorf("tracer shutdown: %v", err)
		}
	}()

	logger.Infof("starting HTTP server on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server error: %v", err)
	}
	logger.Info("HTTP server stopped")
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
