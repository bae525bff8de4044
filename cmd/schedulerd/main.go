package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	authapp "github.com/slacklater/slacklater/internal/auth/app"
	authpg "github.com/slacklater/slacklater/internal/auth/repository/postgres"
	"github.com/slacklater/slacklater/internal/platform/config"
	"github.com/slacklater/slacklater/internal/platform/database"
	"github.com/slacklater/slacklater/internal/platform/logger"
	schedapp "github.com/slacklater/slacklater/internal/scheduler/app"
	schedpg "github.com/slacklater/slacklater/internal/scheduler/repository/postgres"
	"github.com/slacklater/slacklater/internal/slackapi"
	transporthttp "github.com/slacklater/slacklater/internal/transport/http"
	"github.com/slacklater/slacklater/internal/transport/http/middleware"
)

const (
	serviceName     = "schedulerd"
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	log.Info("Starting service...")

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		log.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("Database connection pool initialized")

	// Wire the engine: explicitly constructed components, no globals.
	slackClient := slackapi.NewClient(log, cfg.SlackAPIBaseURL, cfg.SlackClientID, cfg.SlackClientSecret, nil)
	credentialRepo := authpg.NewPgCredentialRepository(dbPool, log)
	tokenService := authapp.NewTokenService(credentialRepo, slackClient, log)
	messageRepo := schedpg.NewPgScheduledMessageRepository(dbPool, log)
	schedulerService := schedapp.NewSchedulerService(messageRepo, tokenService, slackClient, log)

	poller := schedapp.NewPoller(messageRepo, schedulerService, log, schedapp.PollerConfig{
		PollingInterval: cfg.SchedulerPollingInterval,
		BatchSize:       cfg.SchedulerBatchSize,
	})

	// HTTP surface: session-authenticated message API plus health/metrics.
	validate := validator.New()
	messageHandler := transporthttp.NewMessageHandler(schedulerService, tokenService, slackClient, log, validate)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/v1", func(r chi.Router) {
		r.Use(middleware.SessionAuth(cfg.JWTSessionSecret, log))
		messageHandler.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return poller.Run(groupCtx)
	})

	g.Go(func() error {
		log.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Initiating HTTP server graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	log.Info("Service components initialized and workers started. Service is ready.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received termination signal", "signal", sig.String())
	case <-groupCtx.Done():
		log.Error("A critical component failed, initiating shutdown")
	}

	mainCancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Error during graceful shutdown of components", "error", err)
	}

	log.Info("Service shutdown complete.")
}
