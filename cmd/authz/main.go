package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aegisx-platform/authz/internal/app"
	"github.com/aegisx-platform/authz/internal/assignments"
	"github.com/aegisx-platform/authz/internal/observability"
	"github.com/aegisx-platform/authz/internal/permissions"
	"github.com/aegisx-platform/authz/internal/platform/cache"
	"github.com/aegisx-platform/authz/internal/platform/db"
	"github.com/aegisx-platform/authz/internal/platform/pg"
	"github.com/aegisx-platform/authz/internal/rbac"
	"github.com/aegisx-platform/authz/internal/resolver"
	"github.com/aegisx-platform/authz/internal/roles"
	"github.com/aegisx-platform/authz/internal/shared"
	"github.com/aegisx-platform/authz/jobs"
	"github.com/aegisx-platform/authz/migrations"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, migrations.FS, logger); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, permission cache degraded", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	if err := resolver.SetupCacheMetrics(metrics.Registerer()); err != nil {
		logger.Warn("register cache metrics", slog.Any("error", err))
	}

	resolverStore := resolver.NewStore(pool)
	var permCache resolver.CachePort
	if redisClient != nil {
		permCache = resolver.NewRedisCache(redisClient, cfg.PermCacheTTL)
	}
	resolverService := resolver.NewService(resolverStore, permCache, logger)

	auditLogger := shared.NewAuditLogger(pool)

	permissionsRepo := permissions.NewRepository(pool)
	permissionsService := permissions.NewService(permissionsRepo, resolverService, auditLogger, logger)
	permissionsHandler := permissions.NewHandler(logger, permissionsService)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, resolverService, auditLogger, logger)
	rolesHandler := roles.NewHandler(logger, rolesService)

	assignmentsRepo := assignments.NewRepository(pool)
	assignmentsService := assignments.NewService(assignmentsRepo, resolverService, auditLogger, logger)
	assignmentsHandler := assignments.NewHandler(logger, assignmentsService)

	statsRepo := rbac.NewStatsRepository(pool)
	rbacHandler := rbac.NewHandler(statsRepo, resolverService, logger)
	rbacMiddleware := rbac.Middleware{Checker: resolverService, Logger: logger}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		AssignmentsHandler: assignmentsHandler,
		RBACHandler:        rbacHandler,
		RBACMiddleware:     rbacMiddleware,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
