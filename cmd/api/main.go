package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rate-my-movie/internal/app"
	"rate-my-movie/internal/catalog"
	"rate-my-movie/internal/config"
	apihttp "rate-my-movie/internal/http"
	"rate-my-movie/internal/repository"
	"rate-my-movie/internal/service"
	"rate-my-movie/internal/view"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stores, err := app.OpenStores(ctx, cfg, logger, reg)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer stores.Close()
	store := stores.KV
	redisClient := stores.Redis

	userRepo := repository.NewKVUserRepository(logger, store)
	ratedRepo := repository.NewKVRatedMovieRepository(logger, store)

	signInWindow := time.Duration(cfg.SignInWindowMinutes) * time.Minute
	var (
		limiter    service.SignInLimiter
		revocation service.RevocationStore
	)
	if redisClient != nil {
		limiter = service.NewRedisSignInLimiter(redisClient, logger, signInWindow, cfg.SignInMaxAttempts)
		revocation = service.NewRedisRevocationStore(redisClient)
	} else {
		limiter = service.NewSignInLimiter(signInWindow, cfg.SignInMaxAttempts)
	}

	state := service.NewSessionState()
	sessionSvc := service.NewSessionService(logger, userRepo, state, service.NewBcryptHasher(cfg.BcryptCost), ratedRepo, limiter)
	if err := sessionSvc.Start(ctx); err != nil {
		logger.Fatal("session start", zap.Error(err))
	}
	librarySvc := service.NewLibraryService(logger, ratedRepo, state, view.NewEngineForLocale(cfg.CollationLocale))

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		revocation,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	catalogSvc := catalog.NewRepository(catalog.NewClient(cfg.TMDBBaseURL, cfg.TMDBAPIKey, nil, logger))

	router := apihttp.NewRouter(apihttp.RouterDeps{
		Logger:      logger,
		Auth:        apihttp.NewAuthHandler(logger, sessionSvc, jwtSvc),
		Movies:      apihttp.NewMovieHandler(logger, catalogSvc, cfg.TMDBImageBaseURL),
		Rated:       apihttp.NewRatedHandler(logger, librarySvc, catalogSvc),
		RequireAuth: apihttp.JWTAuthMiddleware(jwtSvc, state),
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Registerer:  reg,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
