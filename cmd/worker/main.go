package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/posadmin/posadmin/internal/app"
	jobmetrics "github.com/posadmin/posadmin/internal/jobs"
	"github.com/posadmin/posadmin/internal/observability"
	"github.com/posadmin/posadmin/internal/platform/db"
	"github.com/posadmin/posadmin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	services := app.NewServices(cfg, pool, logger)
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	// The worker always delivers over SMTP; the expiry summary goes through
	// the configured dispatcher so it lands on the mail queue in queue mode.
	sendEmail := jobs.NewSendEmailJob(services.SMTP, logger, jobMetrics)
	snapshot := jobs.NewSupplierSnapshotJob(services.Suppliers, logger, jobMetrics)
	expiry := &jobs.DocumentExpiryJob{
		Source:    services.Suppliers,
		Mailer:    services.Mailer,
		Recipient: cfg.AdminNotifyEmail,
		Logger:    logger,
		Metrics:   jobMetrics,
	}
	if cfg.AdminNotifyEmail == "" {
		logger.Warn("ADMIN_NOTIFY_EMAIL not set, expiry summaries will only be logged")
	}

	snapshotTask, err := jobs.NewSupplierSnapshotTask(time.Time{})
	if err != nil {
		logger.Error("build snapshot task", slog.Any("error", err))
		os.Exit(1)
	}
	expiryTask, err := jobs.NewDocumentExpiryTask(time.Time{})
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.RedisOpts(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: sendEmail.Handle},
			{Type: jobs.TaskSupplierSnapshot, Handler: snapshot.Handle},
			{Type: jobs.TaskDocumentExpiry, Handler: expiry.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.SnapshotCron, Task: snapshotTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: jobs.ExpiryCron, Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
