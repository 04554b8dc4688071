package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/teamcart-backend/api/routes"
	"github.com/angelmondragon/teamcart-backend/internal/bootstrap"
	"github.com/angelmondragon/teamcart-backend/internal/conversion"
	"github.com/angelmondragon/teamcart-backend/internal/idempotency"
	"github.com/angelmondragon/teamcart-backend/internal/settlement"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/db"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/metrics"
	"github.com/angelmondragon/teamcart-backend/pkg/migrate"
	"github.com/angelmondragon/teamcart-backend/pkg/queue"
	"github.com/angelmondragon/teamcart-backend/pkg/redis"
	"github.com/angelmondragon/teamcart-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"
	logg = bootstrap.NewLogger("api", cfg.App)

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	queueClient, err := queue.NewClient(cfg.Queue, cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to create queue client", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing queue client", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}

	cartMetrics := metrics.NewTeamCartMetrics(prometheus.DefaultRegisterer)
	stack, err := bootstrap.NewStack(bootstrap.Params{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		Scheduler: queueClient,
		Metrics:   cartMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire team cart stack", err)
		os.Exit(1)
	}

	webhookGuard, err := idempotency.NewGuard(redisClient, cfg.Eventing.IdempotencyTTL, "payment-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	coordinator, err := settlement.NewCoordinator(settlement.Config{
		Executor:       stack.Executor,
		Gateway:        settlement.NewStripeGateway(stripeClient),
		Guard:          webhookGuard,
		GatewayTimeout: cfg.Payments.GatewayTimeout,
		Metrics:        cartMetrics,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement coordinator", err)
		os.Exit(1)
	}

	converter, err := conversion.NewService(conversion.ServiceConfig{
		Executor: stack.Executor,
		Sheets:   stack.Sheets,
		Orders:   conversion.NewOrderRepository(dbClient.DB()),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create conversion service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"stripe_env":   stripeClient.Environment(),
		"allocation":   stack.Strategy.Name(),
		"queueEnabled": queueClient.Enabled(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			stack.Tokens,
			stack.Service,
			coordinator,
			converter,
			stack.Projector,
			stripeClient,
		),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
