package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/reqflow/internal/config"
	"github.com/example/reqflow/internal/db"
	"github.com/example/reqflow/internal/directory"
	httpserver "github.com/example/reqflow/internal/http"
	"github.com/example/reqflow/internal/logging"
	"github.com/example/reqflow/internal/models"
	"github.com/example/reqflow/internal/mq"
	"github.com/example/reqflow/internal/purchasing"
	"github.com/example/reqflow/internal/repository"
	"github.com/example/reqflow/internal/sequence"
	"github.com/example/reqflow/internal/service"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	autoMigrate(database, logger)

	var publisher mq.Publisher
	publisher, err = mq.NewRabbitPublisher(cfg.MQURL, cfg.MQExchange)
	if err != nil {
		logger.Warn("rabbitmq unavailable, continuing without events", zap.Error(err))
		publisher = nil
	}

	authorizer := directory.NewClient(cfg.DirectoryURL)
	purchasingClient := purchasing.NewHTTPClient(cfg.PurchasingURL)
	numbering := sequence.NewStore(database, cfg.SequencePrefix, cfg.SequencePad)
	requisitionRepo := repository.NewRequisitionRepository(database)
	workflowService := service.NewRequisitionService(
		database, requisitionRepo, numbering, authorizer, purchasingClient,
		publisher, cfg.CompanyID, logger)
	apiServer := httpserver.NewServer(requisitionRepo, workflowService, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:    cfg.HTTPPort,
		Handler: apiServer.Engine,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	if publisher != nil {
		if closer, ok := publisher.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	logger.Info("bye")
}

func autoMigrate(database *gorm.DB, logger *zap.Logger) {
	err := database.AutoMigrate(
		&models.Requisition{},
		&models.RequisitionLine{},
		&sequence.Sequence{},
	)
	if err != nil {
		logger.Fatal("auto migrate", zap.Error(err))
	}
}

func init() {
	if mode := os.Getenv("GIN_MODE"); mode == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
