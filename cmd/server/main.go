package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/welldanyogia/replydesk/backend/internal/accounts"
	"github.com/welldanyogia/replydesk/backend/internal/auth"
	"github.com/welldanyogia/replydesk/backend/internal/autoreply"
	"github.com/welldanyogia/replydesk/backend/internal/completion"
	"github.com/welldanyogia/replydesk/backend/internal/compose"
	"github.com/welldanyogia/replydesk/backend/internal/config"
	"github.com/welldanyogia/replydesk/backend/internal/gateway"
	"github.com/welldanyogia/replydesk/backend/internal/health"
	"github.com/welldanyogia/replydesk/backend/internal/logger"
	"github.com/welldanyogia/replydesk/backend/internal/mailbox"
	"github.com/welldanyogia/replydesk/backend/internal/metrics"
	appmw "github.com/welldanyogia/replydesk/backend/internal/middleware"
	"github.com/welldanyogia/replydesk/backend/internal/repository"
	"github.com/welldanyogia/replydesk/backend/internal/sanitizer"
	"github.com/welldanyogia/replydesk/backend/internal/sentmail"
	"github.com/welldanyogia/replydesk/backend/internal/settings"
	"github.com/welldanyogia/replydesk/backend/internal/webhook"
	"github.com/welldanyogia/replydesk/backend/internal/whitelist"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg := config.Load()

	log := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("Server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if cfg.JWT.AccessSecret == "" {
		return errors.New("JWT_ACCESS_SECRET environment variable is required")
	}

	dbPool, err := setupDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	// The ledger uses sqlx over the pgx stdlib driver
	ledgerDB, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}
	defer ledgerDB.Close()
	ledgerDB.SetMaxOpenConns(10)
	ledgerDB.SetConnMaxIdleTime(time.Minute)

	redisClient := setupRedis(cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	collector := metrics.NewDBStatsCollector(dbPool, ledgerDB.DB, log)
	collector.Start(15 * time.Second)
	defer collector.Stop()

	// Repositories
	credentialRepo := repository.NewCredentialRepository(dbPool)
	whitelistRepo := repository.NewWhitelistRepository(dbPool)
	settingsRepo := repository.NewSettingsRepository(dbPool)
	sentMailRepo := repository.NewSentMailRepo(ledgerDB)

	// Outbound clients
	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:     cfg.Gateway.BaseURL,
		AccessToken: cfg.Gateway.AccessToken,
		Timeout:     cfg.Gateway.Timeout,
	}, log)
	if !gatewayClient.IsConfigured() {
		log.Warn("Mail gateway is not configured; auto-replies will be aborted")
	}

	completionClient := completion.NewClient(completion.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
	})
	if !completionClient.IsConfigured() {
		log.Warn("Completion API key is not configured; auto-replies will be aborted")
	}

	// Auto-reply pipeline
	var claims autoreply.ClaimStore = autoreply.NoopClaimStore{}
	if redisClient != nil {
		claims = autoreply.NewRedisClaimStore(redisClient)
	}

	htmlSanitizer := sanitizer.New()
	pipeline := autoreply.NewPipeline(autoreply.Deps{
		Credentials: credentialRepo,
		Whitelist:   whitelistRepo,
		Settings:    settingsRepo,
		Ledger:      sentMailRepo,
		Gateway:     gatewayClient,
		Completer:   completionClient,
		Claims:      claims,
		Sanitizer:   htmlSanitizer,
		Logger:      log,
	}, autoreply.Config{
		CallTimeout:    cfg.AutoReply.CallTimeout,
		ClaimTTL:       cfg.AutoReply.IdempotencyTTL,
		SummarySize:    cfg.AutoReply.SummarySize,
		DedupeRePrefix: cfg.AutoReply.DedupeRePrefix,
	})

	// Handlers
	webhookHandler := webhook.NewHandler(webhook.NewDispatcher(pipeline, sentMailRepo, log), log)
	whitelistHandler := whitelist.NewHandler(whitelist.NewService(whitelistRepo, log), log)
	settingsHandler := settings.NewHandler(settingsRepo, log)
	sentMailHandler := sentmail.NewHandler(sentMailRepo, log)
	composeHandler := compose.NewHandler(compose.NewService(compose.Deps{
		Credentials: credentialRepo,
		Thread:      autoreply.NewThreadContextBuilder(gatewayClient, htmlSanitizer, cfg.AutoReply.SummarySize, cfg.AutoReply.CallTimeout, log),
		Drafter:     autoreply.NewDrafter(completionClient, cfg.AutoReply.CallTimeout),
		Sender:      autoreply.NewDeliverer(gatewayClient, sentMailRepo, htmlSanitizer, cfg.AutoReply.DedupeRePrefix, cfg.AutoReply.CallTimeout, log),
		Completer:   completionClient,
		Gateway:     gatewayClient,
		Ledger:      sentMailRepo,
		Sanitizer:   htmlSanitizer,
		CallTimeout: cfg.AutoReply.CallTimeout,
		Logger:      log,
	}), log)
	mailboxHandler := mailbox.NewHandler(mailbox.NewService(credentialRepo, gatewayClient, htmlSanitizer, cfg.AutoReply.CallTimeout), log)
	accountsHandler := accounts.NewHandler(accounts.NewService(credentialRepo, gatewayClient, accounts.OAuthConfig{
		RedirectURL: cfg.Gateway.MicrosoftRedirectURL,
		ProviderID:  cfg.Gateway.MicrosoftProviderID,
	}, log), log)

	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = health.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	healthHandler := health.NewHandler(health.Config{
		Database:   health.PingFunc(func(ctx context.Context) error { return metrics.PingDatabase(ctx, dbPool) }),
		Redis:      redisPinger,
		Gateway:    gatewayClient,
		Completion: completionClient,
		Version:    Version,
	})

	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:      cfg.JWT.AccessSecret,
		AccessTokenExpiry: cfg.JWT.AccessTokenExpiry,
		Issuer:            cfg.JWT.Issuer,
	})
	authMiddleware := appmw.NewAuthMiddleware(tokenService)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rateLimiter := appmw.NewRateLimiter(cfg.Server.RateLimit, time.Minute)
	go rateLimiter.Run(ctx)

	// Authenticated routes are rate limited per user after the token is checked
	protected := func(next http.Handler) http.Handler {
		return authMiddleware.Authenticate(rateLimiter.PerUser(next))
	}

	// Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmw.StructuredLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The gateway cannot authenticate; the webhook is open and always acknowledges
		webhook.RegisterRoutes(r, webhookHandler)

		accounts.RegisterRoutes(r, accountsHandler, protected)
		whitelist.RegisterRoutes(r, whitelistHandler, protected)
		settings.RegisterRoutes(r, settingsHandler, protected)
		sentmail.RegisterRoutes(r, sentMailHandler, protected)
		compose.RegisterRoutes(r, composeHandler, protected)
		mailbox.RegisterRoutes(r, mailboxHandler, protected)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A webhook run makes several remote calls, each bounded by the call timeout
		WriteTimeout: 5*cfg.AutoReply.CallTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", slog.String("addr", addr), slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	healthHandler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited")
	return nil
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Connected to database",
		slog.String("database", cfg.Database.DBName),
		slog.String("host", cfg.Database.Host),
	)
	return pool, nil
}

// setupRedis connects to Redis when configured. Redis only backs idempotency
// claims, so a failed connection is logged and the server runs without it.
func setupRedis(cfg *config.Config, log *slog.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		log.Info("Redis not configured; duplicate deliveries are caught by the ledger only")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable; claims will fail open", slog.String("error", err.Error()))
	}
	return client
}
