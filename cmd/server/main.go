// Package main is the intake chat server entry point
// Following Hexagonal Architecture: wiring only, no business logic
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

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"intake-chat/internal/adapters/gateway"
	"intake-chat/internal/adapters/handler"
	"intake-chat/internal/adapters/metrics"
	"intake-chat/internal/adapters/repository"
	"intake-chat/internal/adapters/websocket"
	"intake-chat/internal/config"
	"intake-chat/internal/core/ports"
	"intake-chat/internal/core/services"
)

const version = "1.0.0"

func main() {
	var cfg *config.Config
	var logger *slog.Logger

	root := &cobra.Command{
		Use:           "intake-chat",
		Short:         "Customer intake chat: widget API server and terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger = cfg.Log.NewLogger(os.Stderr)
			slog.SetDefault(logger)
			return nil
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}

	root.AddCommand(serveCmd, newChatCommand(&cfg))

	if err := root.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// runServe wires adapters and services, then runs until ctx is cancelled
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("=== Intake Chat - Server Initialization ===", "version", version)

	collectors := metrics.New()
	dependencies := map[string]handler.Pinger{}

	// 1. Token store: Redis when configured, memory otherwise
	var tokens ports.TokenStore = repository.NewMemoryTokenStore()
	if cfg.Redis.Addr != "" {
		rdb, err := connectRedis(ctx, cfg.Redis, 5, 2*time.Second)
		if err != nil {
			return err
		}
		defer rdb.Close()

		redisStore := repository.NewRedisTokenStore(rdb, cfg.Redis.Namespace, cfg.Redis.TokenTTL)
		tokens = redisStore
		dependencies["redis"] = redisStore
		logger.Info("Redis token store ready", "addr", cfg.Redis.Addr)
	} else {
		logger.Info("REDIS_ADDR not set, using in-memory token store")
	}

	// 2. Exchange audit log: MariaDB when configured
	var exchangeLog ports.ExchangeLogRepository
	var auditRepo *repository.MariaDBRepository
	if cfg.AuditLogEnabled() {
		db, err := connectMariaDB(ctx, cfg.DB, 5, 2*time.Second)
		if err != nil {
			return err
		}
		defer db.Close()

		auditRepo = repository.NewMariaDBRepository(db)
		if err := auditRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		exchangeLog = auditRepo
		dependencies["mariadb"] = auditRepo
		logger.Info("MariaDB exchange log ready", "host", cfg.DB.Host, "retention", cfg.DB.Retention)
	} else {
		logger.Info("DB_HOST not set, exchange audit log disabled")
	}

	// 3. Gateways and services
	api := gateway.NewAPIClient(gateway.APIClientConfig{
		BaseURL:    cfg.Backend.BaseURL,
		Timeout:    cfg.Backend.Timeout,
		MaxRetries: cfg.Backend.MaxRetries,
		Observer:   collectors,
	}, tokens)
	webhook := gateway.NewWebhookClient(cfg.Webhook.URL, collectors)

	visits := services.NewVisitManager(api, api, webhook, services.VisitConfig{
		IdleTTL:             cfg.Chat.VisitIdleTTL,
		WebhookTimeout:      cfg.Webhook.Timeout,
		CollectedDataPolicy: services.CollectedDataPolicy(cfg.Chat.CollectedDataMode),
		Typing:              services.DefaultTypingOptions(),
		Recorder:            collectors,
		ExchangeLog:         exchangeLog,
	}, logger)
	authenticator := services.NewAuthenticator(api, tokens, logger)
	agentAdmin := services.NewAgentAdmin(api, logger)

	// 4. HTTP surface
	hub := websocket.NewVisitHub(cfg.App.AllowedOrigins, logger)
	limiter := handler.NewRateLimiter(handler.RateLimiterOptions{
		Limit:     rate.Limit(cfg.App.RateLimitRPS),
		Burst:     cfg.App.RateLimitBurst,
		OnLimited: collectors.RateLimited,
	})

	routes := handler.RouterConfig{
		Visits:      handler.NewVisitHandler(visits, hub),
		Auth:        handler.NewAuthHandler(authenticator),
		Agents:      handler.NewAgentHandler(agentAdmin),
		Ops:         handler.NewOpsHandler(visits, version, dependencies),
		RateLimiter: limiter,
		Observer:    collectors,
		Metrics:     collectors.Handler(),
	}
	if auditRepo != nil {
		routes.Exchanges = handler.NewExchangeHandler(auditRepo)
	}
	router := handler.NewRouter(routes)

	// no WriteTimeout: a send waits for the webhook, up to WEBHOOK_TIMEOUT
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("[HTTP] Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		visits.RunReaper(gctx, cfg.Chat.ReaperInterval)
		return nil
	})

	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})

	if auditRepo != nil {
		g.Go(func() error {
			runRetentionPurge(gctx, auditRepo, cfg.DB.Retention, time.Hour)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		hub.Close()
		err := srv.Shutdown(shutdownCtx)
		visits.Shutdown()
		if err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	logger.Info("[READY] Press Ctrl+C to stop")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}
