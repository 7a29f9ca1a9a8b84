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

	"account_service/internal/account"
	"account_service/internal/auth"
	"account_service/internal/config"
	"account_service/internal/http_server/cookie"
	"account_service/internal/http_server/handlers/login"
	"account_service/internal/http_server/handlers/logout"
	"account_service/internal/http_server/handlers/me"
	resetPassword "account_service/internal/http_server/handlers/password_reset"
	resetRequest "account_service/internal/http_server/handlers/password_reset_request"
	"account_service/internal/http_server/handlers/refresh"
	"account_service/internal/http_server/handlers/register"
	"account_service/internal/http_server/handlers/verify"
	verifyRequest "account_service/internal/http_server/handlers/verify_request"
	"account_service/internal/http_server/middleware/authn"
	"account_service/internal/lib/jwt"
	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/lib/password"
	"account_service/internal/lib/verification"
	"account_service/internal/metrics"
	"account_service/internal/rabbitmq"
	sessions "account_service/internal/refresh"
	"account_service/internal/storage/memory"
	"account_service/internal/storage/postgres"
	"account_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

type repository interface {
	account.Repository
	sessions.Repository
}

type service interface {
	register.Registrar
	login.Authenticator
	refresh.Refresher
	logout.Logouter
	authn.Authenticator
	verify.Verifier
	verifyRequest.VerificationRequester
	resetRequest.ResetRequester
	resetPassword.PasswordResetter
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting account service", slog.String("env", cfg.Env), slog.String("storage", cfg.Storage))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	repo, closeRepo, err := setupStorage(ctx, cfg)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}
	defer closeRepo()

	usedTokens, closeUsedTokens, err := setupUsedTokens(ctx, cfg, repo)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer closeUsedTokens()

	publisher, closePublisher, err := setupPublisher(cfg, log)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer closePublisher()

	hasher := password.New(password.DefaultParams())
	codec := jwt.New(cfg.Tokens.Secret)
	refreshStore := sessions.New(log, repo, cfg.Tokens.RefreshTokenTTL)

	authService := auth.New(
		log,
		account.New(log, repo, hasher),
		refreshStore,
		codec,
		hasher,
		verification.New(log, publisher),
		usedTokens,
		auth.Settings{
			AccessTokenTTL:       cfg.Tokens.AccessTokenTTL,
			VerificationTokenTTL: cfg.Tokens.VerificationTokenTTL,
			ResetTokenTTL:        cfg.Tokens.ResetTokenTTL,
			PublicURL:            cfg.HTTPServer.PublicURL,
		},
	)

	m := metrics.New()

	go refreshStore.RunSweeper(ctx, cfg.Sweeper.Interval, m.ObserveSwept)

	router := setupRouter(
		log,
		validator.New(),
		authService,
		m,
		cookie.Settings{
			Secure: cfg.Cookie.Secure,
			MaxAge: cfg.Tokens.RefreshTokenTTL,
		},
	)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Account service stopped")
}

func setupStorage(ctx context.Context, cfg *config.Config) (repository, func(), error) {
	if cfg.Storage == config.StorageMemory {
		return memory.New(), func() {}, nil
	}

	dsn := cfg.Postgres.DSN()

	if err := postgres.Migrate(ctx, dsn); err != nil {
		return nil, nil, err
	}

	repo, err := postgres.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}

	return repo, repo.Close, nil
}

// setupUsedTokens picks Redis when it is configured. Otherwise reset token
// marks live in process memory, next to the memory repository if there is one.
func setupUsedTokens(ctx context.Context, cfg *config.Config, repo repository) (auth.UsedTokenMarker, func(), error) {
	if cfg.Redis.Addr == "" {
		if mem, ok := repo.(*memory.Storage); ok {
			return mem, func() {}, nil
		}

		return memory.New(), func() {}, nil
	}

	r, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}

	return r, r.Close, nil
}

func setupPublisher(cfg *config.Config, log *slog.Logger) (verification.Publisher, func(), error) {
	if cfg.RabbitMQ.URL == "" {
		log.Warn("rabbitmq is not configured, links will be logged")

		return verification.NewLogPublisher(log), func() {}, nil
	}

	r, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		return nil, nil, err
	}

	return r, r.Close, nil
}

func setupRouter(
	log *slog.Logger,
	validate *validator.Validate,
	authService service,
	m *metrics.Metrics,
	cookies cookie.Settings,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{
			"status":  "OK",
			"message": "Server is running",
		})
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/account", func(r chi.Router) {
		r.Post("/register", register.New(log, validate, authService))
		r.Post("/login", login.New(log, validate, authService, cookies))
		r.Post("/refresh", refresh.New(log, authService, cookies))
		r.Post("/logout", logout.New(log, authService, cookies))
		r.Get("/verify", verify.New(log, authService))
		r.Post("/password-reset-request", resetRequest.New(log, validate, authService))
		r.Post("/password-reset", resetPassword.New(log, validate, authService))

		r.Group(func(r chi.Router) {
			r.Use(authn.New(log, authService))

			r.Get("/me", me.New(log))
			r.Post("/verify-request", verifyRequest.New(log, authService))
		})
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		fallthrough
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
