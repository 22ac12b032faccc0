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
	"github.com/posadmin/posadmin/internal/audit"
	"github.com/posadmin/posadmin/internal/auth"
	"github.com/posadmin/posadmin/internal/observability"
	"github.com/posadmin/posadmin/internal/platform/cache"
	"github.com/posadmin/posadmin/internal/platform/db"
	"github.com/posadmin/posadmin/internal/rbac"
	"github.com/posadmin/posadmin/internal/shared"
	"github.com/posadmin/posadmin/internal/suppliers"
	"github.com/posadmin/posadmin/internal/users"
	"github.com/posadmin/posadmin/internal/view"
	"github.com/posadmin/posadmin/jobs"
	"github.com/posadmin/posadmin/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "posadmin_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	services := app.NewServices(cfg, dbpool, logger)
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	rbacMiddleware := rbac.Middleware{Service: services.RBAC, Logger: logger}

	authHandler := auth.NewHandler(logger, services.Auth, templates, sessionManager, csrfManager)
	usersHandler := users.NewHandler(logger, services.Users, templates, csrfManager, rbacMiddleware)

	reportClient := report.NewClient(cfg.GotenbergURL, report.A4Landscape)
	var pdf suppliers.PDFRenderer
	if reportClient.Configured() {
		pdf = reportClient
	}
	suppliersHandler := suppliers.NewHandler(logger, services.Suppliers, templates, csrfManager, rbacMiddleware, pdf)

	activityHandler := audit.NewHandler(logger, services.Audit, templates, rbacMiddleware)

	inspector := asynq.NewInspector(cfg.RedisOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	health := map[string]app.Pinger{
		"postgres": app.PingFunc(dbpool.Ping),
		"redis": app.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}
	if reportClient.Configured() {
		health["gotenberg"] = reportClient
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		RBACMiddleware:   rbacMiddleware,
		AuthHandler:      authHandler,
		UsersHandler:     usersHandler,
		SuppliersHandler: suppliersHandler,
		ActivityHandler:  activityHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
		Health:           health,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
