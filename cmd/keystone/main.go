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
	"golang.org/x/sync/errgroup"

	"github.com/keystone-pm/keystone/internal/app"
	"github.com/keystone-pm/keystone/internal/audit"
	audithttp "github.com/keystone-pm/keystone/internal/audit/http"
	"github.com/keystone-pm/keystone/internal/auth"
	"github.com/keystone-pm/keystone/internal/authz"
	"github.com/keystone-pm/keystone/internal/lockout"
	"github.com/keystone-pm/keystone/internal/observability"
	"github.com/keystone-pm/keystone/internal/platform/cache"
	"github.com/keystone-pm/keystone/internal/platform/db"
	"github.com/keystone-pm/keystone/internal/ratelimit"
	"github.com/keystone-pm/keystone/internal/shared"
	"github.com/keystone-pm/keystone/internal/users"
	"github.com/keystone-pm/keystone/jobs"
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

	sessionManager := shared.NewSessionManager(redisClient, "keystone_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	tracker := lockout.NewTracker(lockout.Config{
		Store:     usersService,
		Threshold: cfg.LockoutThreshold,
		Duration:  cfg.LockoutDuration,
		Logger:    logger,
	})

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(usersService, tracker, authRepo, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	auditEnqueuer := jobs.NewAuditEnqueuer(asynqClient)
	defer func() {
		if err := auditEnqueuer.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	emitter := audit.NewEmitter(audit.EmitterConfig{
		Sink:      auditEnqueuer,
		Logger:    logger,
		QueueSize: cfg.AuditQueueSize,
		Emitted:   metrics.AuditEmitted(),
		Dropped:   metrics.AuditDropped(),
	})
	defer emitter.Close()

	auditRepo := audit.NewPGRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audithttp.NewHandler(logger, auditService)

	policies, err := app.NewPolicySet()
	if err != nil {
		logger.Error("load route policies", slog.Any("error", err))
		os.Exit(1)
	}
	resolver := authz.DefaultResolver()
	limiter := ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit, cfg.RateWindow)

	guard := authz.NewGuard(authz.GuardConfig{
		Policies:   policies,
		Resolver:   resolver,
		Identities: usersService,
		Limiter:    limiter,
		Recorder:   emitter,
		Logger:     logger,
	})
	guardMiddleware := &authz.Middleware{
		Guard:     guard,
		Logger:    logger,
		Metrics:   metrics,
		LoginPath: "/auth/login",
	}
	introspectHandler := authz.NewIntrospectionHandler(logger, resolver)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Authz:             guardMiddleware,
		AuthHandler:       authHandler,
		UsersHandler:      usersHandler,
		AuditHandler:      auditHandler,
		IntrospectHandler: introspectHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server run", slog.Any("error", err))
		os.Exit(1)
	}
}
