package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/casaora/automation_backend/appctx"
	"github.com/casaora/automation_backend/config"
	"github.com/casaora/automation_backend/models"
	"github.com/casaora/automation_backend/notifications"
	"github.com/casaora/automation_backend/store"
	"github.com/casaora/automation_backend/workflow"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("ENGINE_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	settings, err := config.LoadSettings()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "settings"}).Fatal(err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(appctx.Set(c.Request.Context(), appctx.ContextKeyCorrelationId, cid))
		c.Next()
	})
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/readyz", func(c *gin.Context) {
		if config.GetDB() == nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	tableStore := store.NewGormStore(db)
	push := notifications.NewExpoPushSender(tableStore, logger)
	notifier := notifications.NewCenter(tableStore, logger, push)

	var triggers workflow.TriggerDispatcher
	if _, err := config.GetPubSubClient(sigCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Warn("pub/sub unavailable; workflow triggers will be logged only")
		triggers = &workflow.LogTriggerDispatcher{Logger: logger}
	} else if strings.EqualFold(strings.TrimSpace(os.Getenv("TRIGGER_DISPATCH")), "inline") {
		triggers = &workflow.PubSubTriggerDispatcher{Logger: logger}
	} else {
		// Triggers are staged in the outbox and published by the worker so a
		// Pub/Sub outage never loses one.
		triggers = &workflow.OutboxTriggerDispatcher{DB: db, Logger: logger}
		go workflow.NewTriggerOutboxWorker(db, logger).Run(sigCtx)
	}

	engine := workflow.NewEngine(tableStore, logger, notifier, triggers, settings.AppPublicURL)

	scheduler := workflow.NewScheduler(engine, logger, settings)
	scheduler.Locker = config.GetRedisLock()
	scheduler.RetentionPurge = func(ctx context.Context, retentionDays int) {
		result, err := notifier.PurgeExpired(ctx, retentionDays)
		if err != nil {
			config.LogError(logger, "main", "RetentionPurge", "purge expired notifications", nil, err)
			return
		}
		if result.UserNotificationsDeleted > 0 || result.NotificationEventsDeleted > 0 {
			logger.WithFields(logrus.Fields{
				"user_notifications":  result.UserNotificationsDeleted,
				"notification_events": result.NotificationEventsDeleted,
			}).Info("notification retention purge completed")
		}
	}
	scheduler.IntervalJobs = []*workflow.IntervalJob{
		{
			Name:  "payment_instruction_expiry",
			Every: settings.WorkflowPollInterval,
			Run: func(ctx context.Context) {
				engine.ExpireStaleInstructions(ctx)
			},
		},
	}

	go scheduler.Run(sigCtx)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := appctx.GetString(c.Request.Context(), appctx.ContextKeyCorrelationId)
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
