package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v79"

	"github.com/refinery-dev/refinery/internal/config"
	"github.com/refinery-dev/refinery/internal/engine"
	"github.com/refinery-dev/refinery/internal/handler"
	"github.com/refinery-dev/refinery/internal/metrics"
	"github.com/refinery-dev/refinery/internal/repository"
	"github.com/refinery-dev/refinery/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("database connected")

	temporalClient, err := engine.Dial(cfg.TemporalHostPort, cfg.TemporalNamespace)
	if err != nil {
		return fmt.Errorf("connect execution engine: %w", err)
	}
	defer temporalClient.Close()

	stripe.Key = cfg.StripeSecretKey

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	temporalEngine := engine.Instrument(temporalClient, m)

	store := repository.NewStore(db)
	userRepo := repository.NewUserRepository(store)
	tokenRepo := repository.NewTokenRepository(store)
	jobRepo := repository.NewJobRepository(store)
	quotaRepo := repository.NewQuotaRepository(store)
	specRepo := repository.NewSpecRepository(store)
	heartbeatRepo := repository.NewHeartbeatRepository(store)
	subscriptionRepo := repository.NewSubscriptionRepository(store)
	paymentRepo := repository.NewPaymentRepository(store)
	auditRepo := repository.NewAuditRepository(store)
	configRepo := repository.NewConfigRepository(store)
	projectRepo := repository.NewProjectRepository(store)
	notificationRepo := repository.NewNotificationRepository(store)

	hostname, _ := os.Hostname()

	authSvc := service.NewAuthService(userRepo, tokenRepo, subscriptionRepo, service.AuthConfig{
		GoogleClientID:     cfg.GoogleClientID,
		GoogleClientSecret: cfg.GoogleClientSecret,
		GitHubClientID:     cfg.GitHubClientID,
		GitHubClientSecret: cfg.GitHubClientSecret,
		JWTSecret:          cfg.JWTSecret,
		FrontendURL:        cfg.FrontendURL,
	})
	quotaSvc := service.NewQuotaService(store, quotaRepo, hostname)
	jobSvc := service.NewJobService(jobRepo, subscriptionRepo, quotaSvc, auditRepo, notificationRepo, projectRepo, heartbeatRepo, temporalEngine, cfg.ArtifactTTL)
	specSvc := service.NewSpecService(store, specRepo, jobRepo, temporalEngine)
	heartbeatSvc := service.NewHeartbeatService(heartbeatRepo, jobRepo, temporalEngine)
	subscriptionSvc := service.NewSubscriptionService(subscriptionRepo, quotaRepo, jobRepo)
	webhookSvc := service.NewWebhookService(store, paymentRepo)
	projectSvc := service.NewProjectService(projectRepo)
	notificationSvc := service.NewNotificationService(notificationRepo)
	killSwitch := service.NewKillSwitch(configRepo.KillSwitch)

	authHandler := handler.NewAuthHandler(authSvc)
	jobHandler := handler.NewJobHandler(jobSvc, heartbeatSvc, m)
	specHandler := handler.NewSpecHandler(specSvc)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionSvc)
	billingHandler := handler.NewBillingHandler(subscriptionSvc, cfg.FrontendURL)
	webhookHandler := handler.NewWebhookHandler(webhookSvc, cfg.StripeWebhookSecret, m)
	adminHandler := handler.NewAdminHandler(configRepo, auditRepo, jobSvc)
	projectHandler := handler.NewProjectHandler(projectSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	healthHandler := handler.NewHealthHandler(db)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Validator = handler.NewAppValidator()

	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Recover())
	e.Use(handler.RequestLogger(m))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentType, "X-Client-Surface"},
		ExposeHeaders:    []string{echo.HeaderXRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	e.Use(handler.KillSwitchGuard(killSwitch, m))

	e.GET("/health", healthHandler.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	e.POST("/webhooks/stripe", webhookHandler.Stripe)

	api := e.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/google", authHandler.GoogleRedirect)
	auth.GET("/google/callback", authHandler.GoogleCallback)
	auth.GET("/github", authHandler.GitHubRedirect)
	auth.GET("/github/callback", authHandler.GitHubCallback)

	protected := api.Group("", handler.JWTAuth(authSvc))
	protected.GET("/auth/me", authHandler.Me)

	jobs := protected.Group("/jobs")
	jobs.POST("", jobHandler.Create)
	jobs.GET("", jobHandler.List)
	jobs.GET("/:id", jobHandler.Get)
	jobs.POST("/:id/start", jobHandler.Start)
	jobs.POST("/:id/cancel", jobHandler.Cancel)
	jobs.POST("/:id/force-terminate", jobHandler.ForceTerminate)
	jobs.POST("/:id/proposal", jobHandler.SelectProposal)
	jobs.POST("/:id/spec/approve", jobHandler.ApproveSpec)
	jobs.POST("/:id/intervention/deep-fix", jobHandler.DeepFix)
	jobs.POST("/:id/intervention/command", jobHandler.InterventionCommand)
	jobs.POST("/:id/intervention/run-tests", jobHandler.RunTests)
	jobs.POST("/:id/heartbeat", jobHandler.Heartbeat)
	jobs.GET("/:id/spec", specHandler.Get)
	jobs.PUT("/:id/spec", specHandler.Update)
	jobs.POST("/:id/spec/nl-convert", specHandler.NLConvert)
	jobs.GET("/:id/usage", subscriptionHandler.JobUsage)

	projects := protected.Group("/projects")
	projects.POST("", projectHandler.Create)
	projects.GET("", projectHandler.List)
	projects.GET("/:id", projectHandler.Get)

	notifications := protected.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.POST("/:id/read", notificationHandler.MarkRead)
	notifications.POST("/read-all", notificationHandler.MarkAllRead)

	protected.GET("/subscription", subscriptionHandler.Current)
	protected.GET("/subscription/usage", subscriptionHandler.Usage)
	protected.POST("/billing/portal", billingHandler.Portal)

	admin := protected.Group("/admin", handler.RequireAdmin())
	admin.GET("/configs/:key", adminHandler.GetConfig)
	admin.PUT("/configs/:key", adminHandler.SetConfig)
	admin.GET("/jobs/:id/audit", adminHandler.JobAudit)
	admin.POST("/jobs/:id/status", adminHandler.AdvanceJobStatus)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
