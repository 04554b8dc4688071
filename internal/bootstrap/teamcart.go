// Package bootstrap assembles the team cart stack shared by the binaries.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/teamcart-backend/internal/pricing"
	"github.com/angelmondragon/teamcart-backend/internal/projection"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/auth"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/db"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/metrics"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox"
	"github.com/angelmondragon/teamcart-backend/pkg/redis"
)

type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.Client
	Redis     *redis.Client
	Scheduler teamcart.ExpiryScheduler
	Metrics   *metrics.TeamCartMetrics
}

// Stack is the wired cart core: persistence, executor, projection and the
// command service.
type Stack struct {
	Repo      *teamcart.Repository
	Sheets    *teamcart.SheetBuilder
	Views     *teamcart.ViewBuilder
	Projector *projection.Projector
	Executor  *teamcart.Executor
	Service   teamcart.Service
	Tokens    *auth.Issuer
	Strategy  teamcart.AllocationStrategy
}

func NewStack(params Params) (*Stack, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	cfg := params.Config

	strategy, err := teamcart.StrategyFor(cfg.TeamCart.AllocationStrategy)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewIssuer(cfg.JWT, cfg.ShareToken)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	conn := params.DB.DB()
	repo := teamcart.NewRepository(conn)
	sheets := teamcart.NewSheetBuilder(pricing.NewCatalog(conn))
	views := teamcart.NewViewBuilder(repo, sheets)

	store, err := projection.NewViewStore(params.Redis, cfg.Projection.ViewTTL)
	if err != nil {
		return nil, fmt.Errorf("projection store: %w", err)
	}
	projector, err := projection.NewProjector(views, store, params.Metrics, params.Logger)
	if err != nil {
		return nil, fmt.Errorf("projector: %w", err)
	}

	exec, err := teamcart.NewExecutor(teamcart.ExecutorConfig{
		Tx:          params.DB,
		Store:       repo,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), params.Logger),
		Projector:   projector,
		MaxAttempts: cfg.TeamCart.CommandMaxAttempts,
		MaxLifetime: cfg.TeamCart.MaxLifetime,
		Metrics:     params.Metrics,
		Logger:      params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	svc, err := teamcart.NewService(teamcart.ServiceConfig{
		Executor:      exec,
		Sheets:        sheets,
		Views:         views,
		Strategy:      strategy,
		Tokens:        tokens,
		Scheduler:     params.Scheduler,
		ShareTokenTTL: cfg.ShareToken.TTL,
		Logger:        params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("team cart service: %w", err)
	}

	return &Stack{
		Repo:      repo,
		Sheets:    sheets,
		Views:     views,
		Projector: projector,
		Executor:  exec,
		Service:   svc,
		Tokens:    tokens,
		Strategy:  strategy,
	}, nil
}

// NewLogger builds the service logger from the app config.
func NewLogger(service string, cfg config.AppConfig) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: service,
		Level:       cfg.LogLevel,
		WarnStack:   cfg.LogWarnStack,
		Format:      cfg.LogFormat,
	})
}
