// Package main runs the SIMKAS core HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simkas/backend/config"
	"github.com/simkas/backend/internal/attendance"
	"github.com/simkas/backend/internal/auth"
	"github.com/simkas/backend/internal/certificates"
	"github.com/simkas/backend/internal/events"
	"github.com/simkas/backend/internal/middleware"
	"github.com/simkas/backend/internal/payments"
	"github.com/simkas/backend/internal/registrations"
	"github.com/simkas/backend/internal/worker"
	"github.com/simkas/backend/pkg/database"
	"github.com/simkas/backend/pkg/queue"
	"github.com/simkas/backend/pkg/redis"
	"github.com/simkas/backend/pkg/response"
	"github.com/simkas/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			CertificatesBucket:   cfg.AWS.CertificatesBucket,
			FolderPrefix:         cfg.AWS.FolderPrefix,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifier := registrations.NewQueueNotifier(jobQueue)

	// Event catalog facts (read-only collaborator).
	eventRepo := events.NewRepository(pool)

	// Registration ledger: every status mutation goes through it.
	registrationRepo := registrations.NewRepository(pool)
	var proofUploader registrations.ProofUploader
	if s3Client != nil {
		proofUploader = s3Client
	}
	ledger := registrations.NewLedger(registrationRepo, eventRepo, proofUploader, notifier, logger)
	registrationHandler := registrations.NewHandler(ledger, logger)

	// Payment reconciliation.
	gateway := payments.NewClient(cfg.Gateway, logger)
	paymentAdapter := payments.NewAdapter(ledger, gateway, logger)
	paymentWebhook := payments.NewWebhookHandler(paymentAdapter, logger)

	// Attendance.
	attendanceRepo := attendance.NewRepository(pool)
	recorder := attendance.NewRecorder(attendanceRepo, registrationRepo, logger)
	attendanceHandler := attendance.NewHandler(recorder, logger)

	// Certificate matching.
	staging := certificates.NewStaging(cfg.Certificates.StagingDir, cfg.Certificates.MaxArchiveEntries, cfg.Certificates.MaxArchiveBytes)
	certRepo := certificates.NewRepository(pool)
	var certUploader certificates.Uploader
	var certPresigner certificates.DownloadPresigner
	if s3Client != nil {
		certUploader = s3Client
		certPresigner = s3Client
	}
	matcher := certificates.NewMatcher(staging, registrationRepo, certRepo, certUploader,
		cfg.Server.BaseURL, cfg.Certificates.CaseInsensitiveMatch, logger)
	certificateHandler := certificates.NewHandler(matcher, certRepo, certPresigner, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Gateway webhook (no JWT; authenticity is verified against the gateway).
	router.POST("/payment/notification", paymentWebhook.PaymentNotification)

	// User API (JWT required).
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/registration/:eventId", registrationHandler.Register)
		api.GET("/registration/:eventId/check", registrationHandler.Check)
		api.POST("/events/:eventId/attend", attendanceHandler.AttendWithToken)
		api.POST("/events/:eventId/attend/qr", attendanceHandler.AttendWithQR)

		// Admin surface.
		admin := api.Group("")
		admin.Use(middleware.RequireRole("admin"))
		{
			admin.PATCH("/registration/:id/payment-status", registrationHandler.SetPaymentStatus)
			admin.POST("/certificates/bulk/:eventId", certificateHandler.BulkUpload)
			admin.GET("/certificates/unmatched/:eventId", certificateHandler.GetUnmatched)
			admin.POST("/certificates/map/:eventId", certificateHandler.MapCertificates)
			admin.GET("/certificates/preview/:eventId/:filename", certificateHandler.Preview)
			admin.GET("/certificates/:eventId", certificateHandler.ListByEvent)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Notification dispatch (fire-and-forget consumer).
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Notify.Endpoint != "" {
		dispatcher := worker.NewNotificationDispatcher(cfg.Notify.Endpoint, jobQueue, logger)
		go dispatcher.Run(workerCtx)
		logger.Info("notification dispatcher started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
