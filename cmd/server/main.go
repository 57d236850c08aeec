package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neodiag/internal/app"
	"neodiag/internal/config"
	"neodiag/internal/interview"
	"neodiag/internal/service"
	"neodiag/internal/transport/rest"
	"neodiag/internal/transport/rest/handler"
	"neodiag/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("AI config",
		"question_model", cfg.AI.Models.Question,
		"report_model", cfg.AI.Models.Report,
		"api_key_set", cfg.AI.IsEnabled(),
		"timeout", cfg.AI.Timeout(),
	)
	if !cfg.AI.IsEnabled() {
		logger.Warn("GEMINI_API_KEY not set, interviews cannot generate questions")
	}
	if !cfg.ReviewerEnabled() {
		logger.Warn("reviewer panel disabled", "password_env", cfg.Auth.PasswordEnv)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, tokens are signed with a random key and expire on restart")
	}

	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	knowledge, err := config.LoadKnowledge(cfg.KnowledgePath)
	if err != nil {
		return err
	}
	if knowledge == "" {
		logger.Warn("knowledge base is empty", "path", cfg.KnowledgePath)
	}

	gen, err := service.NewGeneratorService(ctx, cfg.AI, knowledge,
		service.WithGeneratorLogger(logger),
		service.WithGeneratorMetrics(deps.Metrics),
	)
	if err != nil {
		return err
	}

	authSvc := service.NewAuthService(cfg.Auth.MasterPassword, cfg.Auth.JWTSecret, cfg.Auth.ReviewerTTL, cfg.Auth.SubjectTTL)

	wsHub := ws.NewHub(logger)
	defer wsHub.Close()

	seq := interview.NewSequencer(
		interview.Policy{MaxQuestions: cfg.Flow.MaxQuestionsTotal, StopThreshold: cfg.Flow.ConfidenceStop},
		interview.WithAppVersion(cfg.App.Version),
	)
	interviewSvc := service.NewInterviewService(seq, deps.SessionCache, deps.SessionRepo, gen, authSvc,
		service.WithInterviewLogger(logger),
		service.WithInterviewMetrics(deps.Metrics),
		service.WithBroadcaster(wsHub),
		service.WithFollowupsPerStep(cfg.Flow.MaxFollowupsPerStep),
	)
	reviewSvc := service.NewReviewService(deps.SessionRepo, gen,
		service.WithReviewLogger(logger),
		service.WithReviewMetrics(deps.Metrics),
		service.WithReviewBroadcaster(wsHub),
	)

	router := rest.NewRouter(&rest.Container{
		AuthService:      authSvc,
		InterviewService: interviewSvc,
		ReviewService:    reviewSvc,
		WSHub:            wsHub,
		HealthChecks: map[string]handler.HealthCheck{
			"cache": deps.SessionCache.Ping,
			"store": deps.SessionRepo.Ping,
		},
		Gatherer:       deps.Registry,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "version", cfg.App.Version, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}
